package helpdesk

import "time"

// Action is a routing outcome for a request. The dispatcher only understands
// the four known values; anything else is logged and skipped.
type Action string

const (
	ActionNotifyTeam   Action = "notify-team"
	ActionCreateTask   Action = "create-task"
	ActionCreateTicket Action = "create-ticket"
	ActionStoreOnly    Action = "store-only"
)

// KnownAction reports whether a is one of the four routable values.
func KnownAction(a Action) bool {
	switch a {
	case ActionNotifyTeam, ActionCreateTask, ActionCreateTicket, ActionStoreOnly:
		return true
	}
	return false
}

// Request is the canonical helpdesk record. It is created once by the intake
// layer and read-only inside the worker pipeline. Identity is
// (Category, ID): category is the storage partition, ID the row key.
type Request struct {
	Category       string    `json:"category"`
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Priority       string    `json:"priority"` // Low, Normal, High
	ActionHint     string    `json:"action_hint,omitempty"`
	RequesterEmail string    `json:"requester_email,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Envelope is the slim queue message published at submission time. It is a
// denormalized snapshot used only to locate the canonical record; the worker
// always re-fetches the record and never trusts these fields for routing.
type Envelope struct {
	TablePartition string `json:"tablePartition"`
	TableRow       string `json:"tableRow"`
	Title          string `json:"title"`
	Category       string `json:"category"`
	Priority       string `json:"priority"`
	ActionHint     string `json:"actionHint"`
	RequesterEmail string `json:"requesterEmail"`
}

// NewEnvelope builds the queue snapshot for a stored request.
func NewEnvelope(r *Request) Envelope {
	return Envelope{
		TablePartition: r.Category,
		TableRow:       r.ID,
		Title:          r.Title,
		Category:       r.Category,
		Priority:       r.Priority,
		ActionHint:     r.ActionHint,
		RequesterEmail: r.RequesterEmail,
	}
}

// EnrichedView is the AI-normalized presentation of a request. It is derived
// fresh per message and never persisted.
type EnrichedView struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Urgency string `json:"urgency"`
}

// DefaultView returns the enriched view built from raw record fields, used
// whenever enrichment is unavailable or fails.
func DefaultView(r *Request) EnrichedView {
	return EnrichedView{
		Title:   r.Title,
		Summary: r.Description,
		Urgency: r.Priority,
	}
}

// DecisionSource says where a routing decision came from, for logs and
// metrics only; it has no effect on dispatch.
type DecisionSource string

const (
	SourceModel    DecisionSource = "model"
	SourceFallback DecisionSource = "fallback"
)

// Decision is the routing outcome for one message. Produced once per message,
// never cached.
type Decision struct {
	Action Action         `json:"action"`
	Source DecisionSource `json:"-"`
}

// FallbackDecision is the deterministic decision used when the routing model
// is unconfigured or its answer cannot be used: the request's hint when set,
// otherwise notify-team.
func FallbackDecision(r *Request) Decision {
	action := Action(r.ActionHint)
	if action == "" {
		action = ActionNotifyTeam
	}
	return Decision{Action: action, Source: SourceFallback}
}
