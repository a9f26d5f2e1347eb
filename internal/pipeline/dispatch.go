package pipeline

import (
	"context"

	"github.com/linnemanlabs/helpdesk/internal/helpdesk"
)

// dispatch maps a decision to exactly one effector. It retains no state
// between calls and never lets an effector failure escape: errors and panics
// are logged and counted, and the pipeline completes regardless.
func (p *Pipeline) dispatch(ctx context.Context, d helpdesk.Decision, r *helpdesk.Request, view helpdesk.EnrichedView) {
	L := p.logger.With("request_id", r.ID, "action", d.Action)

	switch d.Action {
	case helpdesk.ActionNotifyTeam:
		p.invoke(ctx, "email", r.ID, func() error { return p.effectors.Mail.Send(ctx, r, view) })
	case helpdesk.ActionCreateTask:
		p.invoke(ctx, "taskboard", r.ID, func() error { return p.effectors.Tasks.Create(ctx, r) })
	case helpdesk.ActionCreateTicket:
		p.invoke(ctx, "workflow", r.ID, func() error { return p.effectors.Flow.Trigger(ctx, r) })
	case helpdesk.ActionStoreOnly:
		L.Info(ctx, "no downstream action requested")
	default:
		L.Warn(ctx, "unrecognized action, skipping")
	}
}

// invoke runs one effector call behind a recover so a misbehaving effector
// cannot abort message completion.
func (p *Pipeline) invoke(ctx context.Context, effector, requestID string, call func() error) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Warn(ctx, "effector panicked", "effector", effector, "request_id", requestID, "panic", rec)
			p.metrics.EffectorCallsTotal.WithLabelValues(effector, "error").Inc()
		}
	}()

	if err := call(); err != nil {
		p.logger.Error(ctx, err, "effector failed", "effector", effector, "request_id", requestID)
		p.metrics.EffectorCallsTotal.WithLabelValues(effector, "error").Inc()
		return
	}
	p.metrics.EffectorCallsTotal.WithLabelValues(effector, "ok").Inc()
}
