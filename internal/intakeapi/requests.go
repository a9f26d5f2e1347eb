package intakeapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/linnemanlabs/helpdesk/internal/helpdesk"
)

// submission is the accepted intake payload. Category is the only hard
// requirement; everything else has a sensible zero.
type submission struct {
	Category       string `json:"category"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	Priority       string `json:"priority"`
	ActionHint     string `json:"actionHint"`
	RequesterEmail string `json:"requesterEmail"`
}

func (s submission) toRequest() *helpdesk.Request {
	return &helpdesk.Request{
		Category:       s.Category,
		ID:             uuid.NewString(),
		Title:          s.Title,
		Description:    s.Description,
		Priority:       s.Priority,
		ActionHint:     s.ActionHint,
		RequesterEmail: s.RequesterEmail,
		CreatedAt:      time.Now().UTC(),
	}
}

func (a *API) handleSubmitRequest(w http.ResponseWriter, r *http.Request) {
	var sub submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(sub.Category) == "" {
		http.Error(w, `{"error":"category is required"}`, http.StatusBadRequest)
		return
	}
	if sub.Priority == "" {
		sub.Priority = "Normal"
	}

	req := sub.toRequest()
	if err := a.store.Put(r.Context(), req); err != nil {
		a.logger.Error(r.Context(), err, "failed to store request", "category", req.Category, "id", req.ID)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	resp := map[string]any{
		"id":       req.ID,
		"category": req.Category,
	}

	// The record is durable at this point. A publish failure leaves it
	// stored but unrouted, so the caller gets the ID plus a warning
	// instead of an error that would invite a duplicate submit.
	if err := a.publisher.Publish(r.Context(), helpdesk.NewEnvelope(req)); err != nil {
		a.logger.Error(r.Context(), err, "failed to enqueue request", "category", req.Category, "id", req.ID)
		resp["warning"] = "stored but not enqueued for routing"
	}

	a.logger.Info(r.Context(), "request accepted", "category", req.Category, "id", req.ID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(resp)
}
