// Package teams posts helpdesk request cards to a Teams incoming webhook.
package teams

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/linnemanlabs/helpdesk/internal/helpdesk"
)

const httpTimeout = 10 * time.Second

const (
	defaultColor = "0078D4" // Teams blue
	alertColor   = "FF0000" // high urgency
)

// Notifier sends request cards to a Teams webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

// New creates a new Teams notifier. If webhookURL is empty, Send is a no-op.
func New(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
	}
}

// Send posts a card for the request to the configured webhook.
// If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) Send(ctx context.Context, view helpdesk.EnrichedView, r *helpdesk.Request) error {
	if n.webhookURL == "" {
		return nil
	}

	msg := buildCard(view, r)

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("teams: marshal card: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("teams: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("teams: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("teams: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func buildCard(view helpdesk.EnrichedView, r *helpdesk.Request) map[string]any {
	title := view.Title
	if title == "" {
		title = "New helpdesk request"
	}
	hint := r.ActionHint
	if hint == "" {
		hint = "n/a"
	}
	requester := r.RequesterEmail
	if requester == "" {
		requester = "n/a"
	}

	return map[string]any{
		"@type":      "MessageCard",
		"@context":   "https://schema.org/extensions",
		"summary":    title,
		"themeColor": cardColor(view.Urgency),
		"title":      title,
		"sections": []map[string]any{
			{
				"activityTitle": fmt.Sprintf("Category: **%s** | Priority: **%s**", r.Category, view.Urgency),
				"facts": []map[string]any{
					{"name": "Action hint", "value": hint},
					{"name": "Requester", "value": requester},
				},
				"text": view.Summary,
			},
		},
	}
}

// cardColor keys the card severity color off urgency, case-insensitively.
func cardColor(urgency string) string {
	if strings.EqualFold(urgency, "high") {
		return alertColor
	}
	return defaultColor
}
