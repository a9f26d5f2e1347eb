package cfg

import (
	"errors"
	"flag"
	"fmt"
)

// Config holds every tunable of the helpdesk binaries. Both the intake
// server and the routing worker register the same set; fields a binary
// does not use are simply ignored by it.
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	APIToken              string

	AMQPURL       string
	QueueName     string
	PrefetchCount int

	DatabaseURL string

	ClaudeAPIKey string
	ClaudeModel  string

	TeamsWebhookURL string

	MailAPIURL   string
	MailSender   string
	NotifyEmails string

	TaskBoardURL      string
	TaskBoardToken    string
	TaskBoardPlan     string
	TaskBoardBucket   string
	TaskBoardAssignee string

	WorkflowURL string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight work to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token required on intake API requests (empty = unauthenticated)")
	fs.StringVar(&c.AMQPURL, "amqp-url", "", "AMQP broker URL for the request queue")
	fs.StringVar(&c.QueueName, "queue-name", "helpdesk-requests", "queue the intake publishes to and the worker consumes")
	fs.IntVar(&c.PrefetchCount, "prefetch-count", 5, "max unacknowledged deliveries held by the worker (1..100)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory store)")
	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for the Claude LLM provider (empty = fallback routing, no enrichment)")
	fs.StringVar(&c.ClaudeModel, "claude-model", "claude-sonnet-4-20250514", "Claude model to use")
	fs.StringVar(&c.TeamsWebhookURL, "teams-webhook-url", "", "Teams incoming webhook URL for request cards (empty = disabled)")
	fs.StringVar(&c.MailAPIURL, "mail-api-url", "", "mail delivery API endpoint for notify-team actions (empty = disabled)")
	fs.StringVar(&c.MailSender, "mail-sender", "", "sender address for notification mail")
	fs.StringVar(&c.NotifyEmails, "notify-emails", "", "comma-separated recipient addresses for notification mail")
	fs.StringVar(&c.TaskBoardURL, "taskboard-url", "", "task board API base URL for create-task actions (empty = disabled)")
	fs.StringVar(&c.TaskBoardToken, "taskboard-token", "", "bearer token for the task board API")
	fs.StringVar(&c.TaskBoardPlan, "taskboard-plan", "", "task board plan ID new tasks are filed under")
	fs.StringVar(&c.TaskBoardBucket, "taskboard-bucket", "", "task board bucket ID new tasks are filed under")
	fs.StringVar(&c.TaskBoardAssignee, "taskboard-assignee", "", "user ID assigned to new tasks")
	fs.StringVar(&c.WorkflowURL, "workflow-url", "", "workflow trigger URL for create-ticket actions (empty = disabled)")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	// The queue is the spine of the system, both binaries need it
	if c.AMQPURL == "" {
		errs = append(errs, errors.New("AMQP_URL is required"))
	}
	if c.QueueName == "" {
		errs = append(errs, errors.New("QUEUE_NAME is required"))
	}
	if c.PrefetchCount <= 0 || c.PrefetchCount > 100 {
		errs = append(errs, fmt.Errorf("invalid PREFETCH_COUNT %d (must be 1..100)", c.PrefetchCount))
	}

	// Claude is optional, but a key without a model is a misconfiguration
	if c.ClaudeAPIKey != "" && c.ClaudeModel == "" {
		errs = append(errs, errors.New("CLAUDE_MODEL is required when CLAUDE_API_KEY is set"))
	}

	// Mail delivery needs a sender and at least one recipient
	if c.MailAPIURL != "" && (c.MailSender == "" || c.NotifyEmails == "") {
		errs = append(errs, errors.New("MAIL_SENDER and NOTIFY_EMAILS are required when MAIL_API_URL is set"))
	}

	// Task board needs a token and filing coordinates
	if c.TaskBoardURL != "" && (c.TaskBoardToken == "" || c.TaskBoardPlan == "" || c.TaskBoardBucket == "") {
		errs = append(errs, errors.New("TASKBOARD_TOKEN, TASKBOARD_PLAN and TASKBOARD_BUCKET are required when TASKBOARD_URL is set"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
