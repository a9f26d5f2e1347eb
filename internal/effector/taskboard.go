package effector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/helpdesk/internal/helpdesk"
)

// TaskBoard creates tasks on a task-board API for create-task decisions.
type TaskBoard struct {
	baseURL    string
	token      string
	planID     string
	bucketID   string
	assigneeID string
	client     *http.Client
	logger     log.Logger
}

// NewTaskBoard creates the task-board effector. Missing baseURL, plan, or
// bucket leaves it unconfigured. assigneeID is optional.
func NewTaskBoard(baseURL, token, planID, bucketID, assigneeID string, logger log.Logger) *TaskBoard {
	if logger == nil {
		logger = log.Nop()
	}
	return &TaskBoard{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		planID:     planID,
		bucketID:   bucketID,
		assigneeID: assigneeID,
		client:     &http.Client{Timeout: effectorTimeout},
		logger:     logger,
	}
}

// Create posts a new board task for the request.
func (b *TaskBoard) Create(ctx context.Context, r *helpdesk.Request) error {
	if b.baseURL == "" || b.planID == "" || b.bucketID == "" {
		b.logger.Info(ctx, "task-board effector not configured, skipping task", "request_id", r.ID)
		return nil
	}

	title := r.Title
	if title == "" {
		title = "New helpdesk request"
	}

	task := map[string]any{
		"planId":   b.planID,
		"bucketId": b.bucketID,
		"title":    title,
	}
	if b.assigneeID != "" {
		task["assignments"] = map[string]any{
			b.assigneeID: map[string]any{"orderHint": " !"},
		}
	}

	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("taskboard: marshal task: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/tasks", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("taskboard: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}

	resp, err := b.client.Do(req) //nolint:gosec // G704: baseURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("taskboard: post: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("taskboard: api returned %d: %s", resp.StatusCode, string(respBody))
	}

	var created struct {
		ID string `json:"id"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&created)
	b.logger.Info(ctx, "board task created", "request_id", r.ID, "task_id", created.ID)
	return nil
}
