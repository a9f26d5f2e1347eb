// Package agent decides the routing action for a helpdesk request.
//
// The decision path is fallback-on-any-failure: when the routing model is
// unconfigured, errors, or answers with something unparsable, Decide returns
// the request's action hint (or notify-team) and never propagates an error.
package agent

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

const instructions = `You are a helpdesk routing agent. Your job is to decide the action type.
Based on the Category, Priority, and ActionHint provided:
- If ActionHint is 'notify-team', return: {"action": "notify-team"}
- If ActionHint is 'create-task', return: {"action": "create-task"}
- If ActionHint is 'create-ticket', return: {"action": "create-ticket"}
- If ActionHint is 'store-only', return: {"action": "store-only"}

You must respond with ONLY valid JSON. No explanations, no markdown, just JSON.`

// Decider produces a routing decision per request. A nil provider means the
// model is unconfigured and the deterministic fallback path is taken
// without any network call.
type Decider struct {
	provider  llm.Provider
	logger    log.Logger
	onFailure func()
}

// New creates a Decider. provider may be nil when no model is configured.
// onFailure, when non-nil, is invoked each time a configured provider call
// fails or answers unparsably and the hint fallback is taken.
func New(provider llm.Provider, logger log.Logger, onFailure func()) *Decider {
	if logger == nil {
		logger = log.Nop()
	}
	return &Decider{provider: provider, logger: logger, onFailure: onFailure}
}

func (d *Decider) failed() {
	if d.onFailure != nil {
		d.onFailure()
	}
}

// Decide returns the routing decision for a request. It never returns an
// error: every failure falls back to the hint-based decision.
func (d *Decider) Decide(ctx context.Context, r *helpdesk.Request) helpdesk.Decision {
	if d.provider == nil {
		return helpdesk.FallbackDecision(r)
	}

	cctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	raw, err := d.provider.Complete(cctx, instructions, buildPrompt(r))
	if err != nil {
		d.logger.Warn(ctx, "agent call failed, falling back to hint", "error", err, "request_id", r.ID)
		d.failed()
		return helpdesk.FallbackDecision(r)
	}

	action, err := parseAction(raw)
	if err != nil {
		d.logger.Warn(ctx, "agent returned unparsable decision, falling back to hint",
			"error", err, "raw", raw, "request_id", r.ID)
		d.failed()
		return helpdesk.FallbackDecision(r)
	}

	return helpdesk.Decision{Action: action, Source: helpdesk.SourceModel}
}

func buildPrompt(r *helpdesk.Request) string {
	hint := r.ActionHint
	if hint == "" {
		hint = string(helpdesk.ActionNotifyTeam)
	}
	return fmt.Sprintf(`Determine the action for this helpdesk request:
Category: %s
Priority: %s
ActionHint: %s

Return JSON with the action field.`, r.Category, r.Priority, hint)
}

// parseAction extracts the action string from the model's response:
// trim, strip a surrounding code fence (and a language-tag first line),
// then parse as JSON.
func parseAction(raw string) (helpdesk.Action, error) {
	text := strings.TrimSpace(raw)

	if strings.HasPrefix(text, "```") {
		text = strings.Trim(text, "`")
		if first, rest, ok := strings.Cut(text, "\n"); ok {
			if tag := strings.ToLower(strings.TrimSpace(first)); tag == "" || strings.HasPrefix(tag, "json") {
				text = rest
			}
		}
		text = strings.TrimSpace(text)
	}

	var decision struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal([]byte(text), &decision); err != nil {
		return "", fmt.Errorf("parse decision: %w", err)
	}
	if decision.Action == "" {
		return "", fmt.Errorf("decision has no action field")
	}

	return helpdesk.Action(decision.Action), nil
}
