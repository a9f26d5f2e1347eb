// Package enrich produces the AI-normalized view of a helpdesk request.
//
// Enrichment never fails the pipeline: any error (no provider configured,
// network failure, malformed model output) yields the default view built
// from the raw record fields.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/helpdesk/internal/helpdesk"
	"github.com/linnemanlabs/helpdesk/internal/llm"
)

const callTimeout = 8 * time.Second

const systemPrompt = "You strictly output JSON."

// Enricher asks the model for a nicer title/summary/urgency view of a
// request. A nil provider means enrichment is disabled.
type Enricher struct {
	provider  llm.Provider
	logger    log.Logger
	onFailure func()
}

// New creates an Enricher. provider may be nil when no model is configured.
// onFailure, when non-nil, is invoked each time a configured provider call
// fails or returns unusable output and the default view is used instead.
func New(provider llm.Provider, logger log.Logger, onFailure func()) *Enricher {
	if logger == nil {
		logger = log.Nop()
	}
	return &Enricher{provider: provider, logger: logger, onFailure: onFailure}
}

func (e *Enricher) failed() {
	if e.onFailure != nil {
		e.onFailure()
	}
}

// Enrich returns the enriched view for a request. Without a provider it
// returns the default view with zero network calls.
func (e *Enricher) Enrich(ctx context.Context, r *helpdesk.Request) helpdesk.EnrichedView {
	view := helpdesk.DefaultView(r)

	if e.provider == nil {
		return view
	}

	cctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	raw, err := e.provider.Complete(cctx, systemPrompt, buildPrompt(r))
	if err != nil {
		e.logger.Warn(ctx, "enrichment call failed, using raw fields", "error", err, "request_id", r.ID)
		e.failed()
		return view
	}

	if err := overlay(&view, raw); err != nil {
		e.logger.Warn(ctx, "enrichment output unparsable, using raw fields", "error", err, "request_id", r.ID)
		e.failed()
	}
	return view
}

func buildPrompt(r *helpdesk.Request) string {
	return fmt.Sprintf(`You are helping an internal helpdesk. Given the following ticket fields, produce a short JSON with keys: title, summary, urgency.

Title: %s
Description: %s
Category: %s
Priority: %s
ActionHint: %s
Return concise summary (max 40 words). Urgency should be Low, Normal, or High.`,
		r.Title, r.Description, r.Category, r.Priority, r.ActionHint)
}

// overlay merges the model's JSON output onto the view field-by-field.
// Keys the model omits keep their defaults.
func overlay(view *helpdesk.EnrichedView, raw string) error {
	text := strings.TrimSpace(raw)
	text = stripFence(text)

	var fields struct {
		Title   *string `json:"title"`
		Summary *string `json:"summary"`
		Urgency *string `json:"urgency"`
	}

	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		// Noisy output: take the substring between the first '{' and the
		// last '}' and try again.
		start := strings.Index(text, "{")
		end := strings.LastIndex(text, "}")
		if start == -1 || end <= start {
			return fmt.Errorf("no JSON object in output: %w", err)
		}
		if err := json.Unmarshal([]byte(text[start:end+1]), &fields); err != nil {
			return fmt.Errorf("parse extracted object: %w", err)
		}
	}

	if fields.Title != nil {
		view.Title = *fields.Title
	}
	if fields.Summary != nil {
		view.Summary = *fields.Summary
	}
	if fields.Urgency != nil {
		view.Urgency = *fields.Urgency
	}
	return nil
}

// stripFence removes a surrounding markdown code fence, dropping the first
// line when it carries a language tag like "json".
func stripFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.Trim(text, "`")
	if first, rest, ok := strings.Cut(text, "\n"); ok {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(first)), "json") {
			return strings.TrimSpace(rest)
		}
	}
	return strings.TrimSpace(text)
}
