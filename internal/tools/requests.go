package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/linnemanlabs/helpdesk/internal/helpdesk"
)

// actionLegend explains the routing actions in the tool outputs so the model
// keeps the terminology straight when summarizing for the user.
const actionLegend = "All action types: notify-team=Teams notification, create-task=task board entry, create-ticket=workflow ticket, store-only=no action"

// CategoryCount counts stored requests per category.
type CategoryCount struct {
	store helpdesk.Lister
}

// NewCategoryCount creates the category counting tool over the given store.
func NewCategoryCount(store helpdesk.Lister) *CategoryCount {
	return &CategoryCount{store: store}
}

func (c *CategoryCount) Name() string { return "count_tickets_by_category" }

func (c *CategoryCount) Description() string {
	return "Count helpdesk requests by category. If category is specified, count only that category. Otherwise, return counts for all categories."
}

func (c *CategoryCount) Parameters() json.RawMessage {
	return json.RawMessage(`{
        "type": "object",
        "properties": {
            "category": {
                "type": "string",
                "description": "Optional specific category to count (HR, IT, Finance, Operations, Other). Leave empty for all categories."
            }
        }
    }`)
}

func (c *CategoryCount) Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var input struct {
		Category string `json:"category"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &input); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
	}

	records, err := c.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}

	result := countField(records, input.Category, func(r *helpdesk.Request) string { return r.Category })
	return json.Marshal(result)
}

// PriorityCount counts stored requests per priority level.
type PriorityCount struct {
	store helpdesk.Lister
}

// NewPriorityCount creates the priority counting tool over the given store.
func NewPriorityCount(store helpdesk.Lister) *PriorityCount {
	return &PriorityCount{store: store}
}

func (p *PriorityCount) Name() string { return "count_tickets_by_priority" }

func (p *PriorityCount) Description() string {
	return "Count helpdesk requests by priority level (Low, Normal, High)."
}

func (p *PriorityCount) Parameters() json.RawMessage {
	return json.RawMessage(`{
        "type": "object",
        "properties": {
            "priority": {
                "type": "string",
                "description": "Optional specific priority to count (Low, Normal, High). Leave empty for all priorities."
            }
        }
    }`)
}

func (p *PriorityCount) Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var input struct {
		Priority string `json:"priority"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &input); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
	}

	records, err := p.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}

	result := countField(records, input.Priority, func(r *helpdesk.Request) string { return r.Priority })
	return json.Marshal(result)
}

// ActionCount counts stored requests per routing action.
type ActionCount struct {
	store helpdesk.Lister
}

// NewActionCount creates the action counting tool over the given store.
func NewActionCount(store helpdesk.Lister) *ActionCount {
	return &ActionCount{store: store}
}

func (a *ActionCount) Name() string { return "count_tickets_by_action" }

func (a *ActionCount) Description() string {
	return "Count helpdesk requests by action type. Actions are: notify-team (Teams notification), create-task (task board entry), create-ticket (workflow ticket), or store-only (no action)."
}

func (a *ActionCount) Parameters() json.RawMessage {
	return json.RawMessage(`{
        "type": "object",
        "properties": {
            "action": {
                "type": "string",
                "description": "Optional specific action to count (notify-team, create-task, create-ticket, store-only). Leave empty for all actions."
            }
        }
    }`)
}

func (a *ActionCount) Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var input struct {
		Action string `json:"action"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &input); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
	}

	records, err := a.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}

	// A record without a hint was routed store-only.
	hint := func(r *helpdesk.Request) string {
		if r.ActionHint == "" {
			return string(helpdesk.ActionStoreOnly)
		}
		return r.ActionHint
	}

	if input.Action != "" {
		count := 0
		for _, r := range records {
			if strings.EqualFold(hint(r), input.Action) {
				count++
			}
		}
		return json.Marshal(map[string]any{
			input.Action:     count,
			"total_requests": len(records),
			"description":    fmt.Sprintf("Requests with action %q", input.Action),
		})
	}

	counts := make(map[string]int)
	for _, r := range records {
		counts[hint(r)]++
	}
	return json.Marshal(map[string]any{
		"action_breakdown": counts,
		"total_requests":   len(records),
		"description":      actionLegend,
	})
}

// RecentRequests lists the newest requests within a look-back window.
type RecentRequests struct {
	store helpdesk.Lister
	now   func() time.Time
}

// NewRecentRequests creates the recent-requests tool over the given store.
func NewRecentRequests(store helpdesk.Lister) *RecentRequests {
	return &RecentRequests{store: store, now: time.Now}
}

func (r *RecentRequests) Name() string { return "get_recent_tickets" }

func (r *RecentRequests) Description() string {
	return "Get recent helpdesk requests from the last N days."
}

func (r *RecentRequests) Parameters() json.RawMessage {
	return json.RawMessage(`{
        "type": "object",
        "properties": {
            "days": {
                "type": "integer",
                "description": "Number of days to look back. Use 1 for today, 7 for this week, 30 for this month. Default 7."
            },
            "limit": {
                "type": "integer",
                "description": "Maximum number of requests to return. Default 10."
            }
        }
    }`)
}

type recentItem struct {
	Title      string `json:"title"`
	Category   string `json:"category"`
	Priority   string `json:"priority"`
	Timestamp  string `json:"timestamp"`
	ActionHint string `json:"actionHint"`
}

func (r *RecentRequests) Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var input struct {
		Days  int `json:"days"`
		Limit int `json:"limit"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &input); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
	}
	if input.Days <= 0 {
		input.Days = 7
	}
	if input.Limit <= 0 {
		input.Limit = 10
	}

	records, err := r.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}

	cutoff := r.now().UTC().AddDate(0, 0, -input.Days)

	recent := make([]*helpdesk.Request, 0, len(records))
	for _, rec := range records {
		if !rec.CreatedAt.Before(cutoff) {
			recent = append(recent, rec)
		}
	}
	sort.Slice(recent, func(i, j int) bool {
		return recent[i].CreatedAt.After(recent[j].CreatedAt)
	})

	items := make([]recentItem, 0, input.Limit)
	for _, rec := range recent {
		if len(items) >= input.Limit {
			break
		}
		hint := rec.ActionHint
		if hint == "" {
			hint = string(helpdesk.ActionStoreOnly)
		}
		items = append(items, recentItem{
			Title:      rec.Title,
			Category:   rec.Category,
			Priority:   rec.Priority,
			Timestamp:  rec.CreatedAt.UTC().Format(time.RFC3339),
			ActionHint: hint,
		})
	}

	return json.Marshal(map[string]any{
		"requests":    items,
		"total_found": len(recent),
		"days":        input.Days,
		"limit":       input.Limit,
	})
}

// TotalCount reports how many requests are stored overall.
type TotalCount struct {
	store helpdesk.Lister
}

// NewTotalCount creates the total counting tool over the given store.
func NewTotalCount(store helpdesk.Lister) *TotalCount {
	return &TotalCount{store: store}
}

func (t *TotalCount) Name() string { return "get_total_ticket_count" }

func (t *TotalCount) Description() string {
	return "Get the total count of all helpdesk requests in the system."
}

func (t *TotalCount) Parameters() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *TotalCount) Execute(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
	records, err := t.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return json.Marshal(map[string]int{"total_tickets": len(records)})
}

// NewRequestRegistry registers every query tool over the given store.
func NewRequestRegistry(store helpdesk.Lister) *Registry {
	reg := NewRegistry()
	reg.Register(NewCategoryCount(store))
	reg.Register(NewPriorityCount(store))
	reg.Register(NewActionCount(store))
	reg.Register(NewRecentRequests(store))
	reg.Register(NewTotalCount(store))
	return reg
}

// countField tallies records by a single field, case-insensitive when a
// specific value is asked for. Empty field values count as "Unknown".
func countField(records []*helpdesk.Request, want string, field func(*helpdesk.Request) string) map[string]any {
	if want != "" {
		count := 0
		for _, r := range records {
			if strings.EqualFold(field(r), want) {
				count++
			}
		}
		return map[string]any{want: count, "total": len(records)}
	}

	counts := make(map[string]int)
	for _, r := range records {
		v := field(r)
		if v == "" {
			v = "Unknown"
		}
		counts[v]++
	}
	out := make(map[string]any, len(counts)+1)
	for k, v := range counts {
		out[k] = v
	}
	out["total"] = len(records)
	return out
}
