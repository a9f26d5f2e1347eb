package effector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/helpdesk/internal/helpdesk"
)

// Workflow raises a ticket by posting the request to an HTTP-triggered flow.
type Workflow struct {
	flowURL string
	client  *http.Client
	logger  log.Logger
}

// NewWorkflow creates the workflow-trigger effector. An empty flowURL leaves
// it unconfigured.
func NewWorkflow(flowURL string, logger log.Logger) *Workflow {
	if logger == nil {
		logger = log.Nop()
	}
	return &Workflow{
		flowURL: flowURL,
		client:  &http.Client{Timeout: effectorTimeout},
		logger:  logger,
	}
}

// Trigger posts the full request record to the flow. The flow parses what
// it needs.
func (w *Workflow) Trigger(ctx context.Context, r *helpdesk.Request) error {
	if w.flowURL == "" {
		w.logger.Info(ctx, "workflow effector not configured, skipping ticket", "request_id", r.ID)
		return nil
	}

	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("workflow: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.flowURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("workflow: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req) //nolint:gosec // G704: flowURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("workflow: post: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("workflow: flow returned %d: %s", resp.StatusCode, string(respBody))
	}

	w.logger.Info(ctx, "workflow triggered", "request_id", r.ID)
	return nil
}
