package intakeapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type chatQuestion struct {
	Question string `json:"question"`
}

// handleChat runs the analytics assistant over a single question and
// returns its answer.
func (a *API) handleChat(w http.ResponseWriter, r *http.Request) {
	if a.analyst == nil {
		http.Error(w, `{"error":"analytics assistant is not configured"}`, http.StatusServiceUnavailable)
		return
	}

	var q chatQuestion
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(q.Question) == "" {
		http.Error(w, `{"error":"question is required"}`, http.StatusBadRequest)
		return
	}

	answer, err := a.analyst.Ask(r.Context(), q.Question)
	if err != nil {
		a.logger.Error(r.Context(), err, "chat question failed")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"answer": fmt.Sprintf("Sorry, I encountered an error: %v", err),
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"answer": answer})
}
