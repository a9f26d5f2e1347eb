package effector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/helpdesk/internal/helpdesk"
)

const effectorTimeout = 10 * time.Second

// Mailer sends the notify-team email through an email-API endpoint.
type Mailer struct {
	apiURL     string
	sender     string
	recipients []string
	client     *http.Client
	logger     log.Logger
}

// NewMailer creates the email effector. Any of apiURL, sender, or recipients
// being empty leaves the effector unconfigured (Send becomes a logged no-op).
func NewMailer(apiURL, sender string, recipients []string, logger log.Logger) *Mailer {
	if logger == nil {
		logger = log.Nop()
	}
	return &Mailer{
		apiURL:     apiURL,
		sender:     sender,
		recipients: recipients,
		client:     &http.Client{Timeout: effectorTimeout},
		logger:     logger,
	}
}

type emailAddress struct {
	Address string `json:"address"`
}

type emailMessage struct {
	SenderAddress string `json:"senderAddress"`
	Content       struct {
		Subject   string `json:"subject"`
		PlainText string `json:"plainText"`
		HTML      string `json:"html"`
	} `json:"content"`
	Recipients struct {
		To []emailAddress `json:"to"`
	} `json:"recipients"`
}

// Send posts a notification email summarising the request.
func (m *Mailer) Send(ctx context.Context, r *helpdesk.Request, view helpdesk.EnrichedView) error {
	if m.apiURL == "" || m.sender == "" || len(m.recipients) == 0 {
		m.logger.Info(ctx, "email effector not configured, skipping send", "request_id", r.ID)
		return nil
	}

	msg := buildEmail(m.sender, m.recipients, r, view)

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("email: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("email: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req) //nolint:gosec // G704: apiURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("email: post: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("email: api returned %d: %s", resp.StatusCode, string(respBody))
	}

	m.logger.Info(ctx, "notification email sent", "request_id", r.ID, "recipients", len(m.recipients))
	return nil
}

func buildEmail(sender string, recipients []string, r *helpdesk.Request, view helpdesk.EnrichedView) emailMessage {
	requester := r.RequesterEmail
	if requester == "" {
		requester = "n/a"
	}

	var msg emailMessage
	msg.SenderAddress = sender
	msg.Content.Subject = fmt.Sprintf("Helpdesk request: %s", view.Title)
	msg.Content.PlainText = fmt.Sprintf(
		"Summary: %s\nPriority: %s\nCategory: %s\nRequester: %s",
		view.Summary, view.Urgency, r.Category, requester,
	)
	msg.Content.HTML = fmt.Sprintf(
		"<p><strong>Summary:</strong> %s</p><p><strong>Priority:</strong> %s</p><p><strong>Category:</strong> %s</p><p><strong>Requester:</strong> %s</p>",
		view.Summary, view.Urgency, r.Category, requester,
	)
	for _, addr := range recipients {
		msg.Recipients.To = append(msg.Recipients.To, emailAddress{Address: addr})
	}
	return msg
}
