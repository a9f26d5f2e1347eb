// Package pipeline processes one queue message end to end: rehydrate the
// request record, enrich it, notify the team channel, decide the routing
// action, and dispatch to an effector.
//
// Failure isolation follows three tiers. An unparsable envelope is fatal to
// the message (abandoned for redelivery). A record that cannot be found is
// terminal but acknowledged. Everything else degrades: enrichment,
// notification, decision, and effector failures are logged and the message
// still completes and is acknowledged.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/helpdesk/internal/helpdesk"
)

// Enricher produces the normalized view of a request. It must not fail.
type Enricher interface {
	Enrich(ctx context.Context, r *helpdesk.Request) helpdesk.EnrichedView
}

// Decider produces the routing decision for a request. It must not fail.
type Decider interface {
	Decide(ctx context.Context, r *helpdesk.Request) helpdesk.Decision
}

// Notifier posts the request card to the team channel.
type Notifier interface {
	Send(ctx context.Context, view helpdesk.EnrichedView, r *helpdesk.Request) error
}

// MailSender is the notify-team effector contract.
type MailSender interface {
	Send(ctx context.Context, r *helpdesk.Request, view helpdesk.EnrichedView) error
}

// TaskCreator is the create-task effector contract.
type TaskCreator interface {
	Create(ctx context.Context, r *helpdesk.Request) error
}

// WorkflowTrigger is the create-ticket effector contract.
type WorkflowTrigger interface {
	Trigger(ctx context.Context, r *helpdesk.Request) error
}

// Effectors bundles the downstream action clients the dispatcher routes to.
type Effectors struct {
	Mail  MailSender
	Tasks TaskCreator
	Flow  WorkflowTrigger
}

// Pipeline orchestrates the per-message stages.
type Pipeline struct {
	store     helpdesk.Store
	enricher  Enricher
	decider   Decider
	notifier  Notifier
	effectors Effectors
	logger    log.Logger
	metrics   *helpdesk.Metrics
}

// New creates a Pipeline. metrics may be nil (an unregistered set is used).
func New(store helpdesk.Store, enricher Enricher, decider Decider, notifier Notifier, effectors Effectors, logger log.Logger, metrics *helpdesk.Metrics) *Pipeline {
	if logger == nil {
		logger = log.Nop()
	}
	if metrics == nil {
		metrics = helpdesk.NewMetrics(prometheus.NewRegistry())
	}
	return &Pipeline{
		store:     store,
		enricher:  enricher,
		decider:   decider,
		notifier:  notifier,
		effectors: effectors,
		logger:    logger,
		metrics:   metrics,
	}
}

// Process runs one queue message through the pipeline. A non-nil error means
// the message must be abandoned (redelivered); nil means acknowledge, even
// when downstream effectors failed.
func (p *Pipeline) Process(ctx context.Context, body []byte) error {
	start := time.Now()

	var env helpdesk.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		p.metrics.MessagesTotal.WithLabelValues("abandoned").Inc()
		return fmt.Errorf("parse envelope: %w", err)
	}

	L := p.logger.With("category", env.TablePartition, "request_id", env.TableRow)
	L.Info(ctx, "processing queue message", "title", env.Title, "hint", env.ActionHint)

	// Rehydrate the canonical record; the envelope is only a locator. Any
	// store error counts as not-found: a record we cannot fetch is not
	// retried indefinitely.
	var req *helpdesk.Request
	if env.TablePartition != "" && env.TableRow != "" {
		r, ok, err := p.store.Get(ctx, env.TablePartition, env.TableRow)
		switch {
		case err != nil:
			L.Warn(ctx, "store lookup failed, treating as missing", "error", err)
		case ok:
			req = r
		}
	}
	if req == nil {
		L.Warn(ctx, "request record not found, acknowledging without action")
		p.metrics.MessagesTotal.WithLabelValues("missing").Inc()
		return nil
	}

	view := p.enricher.Enrich(ctx, req)

	if p.notifier != nil {
		if err := p.notifier.Send(ctx, view, req); err != nil {
			L.Warn(ctx, "team notification failed", "error", err)
			p.metrics.StageFailuresTotal.WithLabelValues("notify").Inc()
		}
	}

	decision := p.decider.Decide(ctx, req)
	// Actions are model output, so the metric label is clamped to the known
	// set to keep cardinality bounded.
	actionLabel := string(decision.Action)
	if !helpdesk.KnownAction(decision.Action) {
		actionLabel = "other"
	}
	p.metrics.DecisionsTotal.WithLabelValues(actionLabel, string(decision.Source)).Inc()
	L.Info(ctx, "action decided", "action", decision.Action, "source", decision.Source)

	p.dispatch(ctx, decision, req, view)

	p.metrics.MessagesTotal.WithLabelValues("acked").Inc()
	p.metrics.PipelineDuration.Observe(time.Since(start).Seconds())
	return nil
}
