// Helpdesk worker is the routing daemon: it consumes queued request
// envelopes, rehydrates the stored record, enriches it with the LLM, posts
// the team card, asks the routing agent for an action, and dispatches to
// the matching effector.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/linnemanlabs/go-core/cfg"
	"github.com/linnemanlabs/go-core/health"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/metrics"
	"github.com/linnemanlabs/go-core/opshttp"
	"github.com/linnemanlabs/go-core/otelx"
	"github.com/linnemanlabs/go-core/prof"
	v "github.com/linnemanlabs/go-core/version"

	"github.com/linnemanlabs/helpdesk/internal/agent"
	"github.com/linnemanlabs/helpdesk/internal/bus"
	hc "github.com/linnemanlabs/helpdesk/internal/cfg"
	"github.com/linnemanlabs/helpdesk/internal/effector"
	"github.com/linnemanlabs/helpdesk/internal/enrich"
	"github.com/linnemanlabs/helpdesk/internal/helpdesk"
	"github.com/linnemanlabs/helpdesk/internal/helpdesk/memstore"
	"github.com/linnemanlabs/helpdesk/internal/helpdesk/pgstore"
	"github.com/linnemanlabs/helpdesk/internal/llm"
	"github.com/linnemanlabs/helpdesk/internal/llm/claude"
	"github.com/linnemanlabs/helpdesk/internal/notify/teams"
	"github.com/linnemanlabs/helpdesk/internal/pipeline"
)

const appName = "helpdesk"
const component = "worker"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal error:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	v.AppName = appName
	v.Component = component
	vi := v.Get()

	// each package registers its own flags and options struct
	var (
		appCfg   hc.Config
		logCfg   log.Config
		opsCfg   opshttp.Config
		profCfg  prof.Config
		traceCfg otelx.Config
	)

	appCfg.RegisterFlags(flag.CommandLine)
	logCfg.RegisterFlags(flag.CommandLine)
	opsCfg.RegisterFlags(flag.CommandLine)
	profCfg.RegisterFlags(flag.CommandLine)
	traceCfg.RegisterFlags(flag.CommandLine)
	var showVersion bool
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")

	flag.Parse()
	if showVersion {
		fmt.Printf(
			"%s (%s) %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
			vi.AppName, vi.Component, vi.Version, vi.Commit, vi.CommitDate, vi.BuildId, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		return nil
	}

	// Fill in config values from environment variables with prefix HELPDESK_,
	// these do not override cmdline flags
	cfg.FillFromEnv(flag.CommandLine, "HELPDESK_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := errors.Join(
		appCfg.Validate(),
		logCfg.Validate(),
		opsCfg.Validate(),
		profCfg.Validate(),
		traceCfg.Validate(),
	); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	lg, err := log.New(logCfg.ToOptions(v.AppName))
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = lg.Sync() }()

	L := lg.With("component", vi.Component)
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_id", vi.BuildId,
		"go_version", vi.GoVersion,
		"admin_port", opsCfg.Port,
		"queue", appCfg.QueueName,
		"prefetch", appCfg.PrefetchCount,
		"enable_pyroscope", profCfg.EnablePyroscope,
		"enable_tracing", traceCfg.EnableTracing,
	)

	// Setup pyroscope profiling early so we get profiles from the entire app lifetime
	profOpts := profCfg.ToOptions()
	profOpts.AppName = v.AppName
	profOpts.Tags = map[string]string{
		"app":       v.AppName,
		"component": v.Component,
		"version":   vi.Version,
		"commit":    vi.Commit,
		"build_id":  vi.BuildId,
		"source":    "lmlabs-go-agent",
	}
	stopProf, profErr := prof.Start(ctx, profOpts)
	if profErr != nil {
		L.Error(ctx, profErr, "pyroscope start failed", "pyro_server", profCfg.PyroServer)
	}
	if stopProf != nil {
		defer stopProf()
	}

	// Setup otel for tracing
	traceOpts := traceCfg.ToOptions()
	traceOpts.Service = v.AppName
	traceOpts.Component = v.Component
	traceOpts.Version = v.Version

	shutdownOtelx, err := otelx.Init(ctx, traceOpts)
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	if shutdownOtelx != nil {
		defer func() { _ = shutdownOtelx(context.Background()) }()
	}

	// Setup metrics, we use our own metrics package for internal instrumentation
	var m = metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, component, &vi)
	m.SetProfilingActive(profErr == nil && profCfg.EnablePyroscope)

	// Initialize the request store
	var store helpdesk.Store
	if appCfg.DatabaseURL != "" {
		pgStore, err := pgstore.New(ctx, appCfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("pgstore init: %w", err)
		}
		defer pgStore.Close()
		store = pgStore
		L.Info(ctx, "using postgres store")
	} else {
		store = memstore.New()
		L.Info(ctx, "using in-memory store (no database-url configured)")
	}

	// Initialize the LLM provider. Without a key the enricher falls back to
	// raw record fields and the agent to hint-based routing.
	var provider llm.Provider
	if appCfg.ClaudeAPIKey != "" {
		provider = claude.New(appCfg.ClaudeAPIKey, appCfg.ClaudeModel)
		L.Info(ctx, "initialized LLM provider", "provider", "claude", "model", appCfg.ClaudeModel)
	} else {
		L.Warn(ctx, "no claude-api-key configured, running with fallback enrichment and routing")
	}

	pipeMetrics := helpdesk.NewMetrics(m.Registry())

	enricher := enrich.New(provider, L, pipeMetrics.StageFailure("enrich"))
	decider := agent.New(provider, L, pipeMetrics.StageFailure("decide"))

	// Teams notifier, disabled when no webhook is configured.
	var notifier pipeline.Notifier
	if appCfg.TeamsWebhookURL != "" {
		notifier = teams.New(appCfg.TeamsWebhookURL)
		L.Info(ctx, "notifier enabled", "type", "teams")
	}

	// Effectors. Each is constructed unconditionally; unconfigured ones
	// no-op and log, so a partial deployment still routes what it can.
	var recipients []string
	if appCfg.NotifyEmails != "" {
		recipients = strings.Split(appCfg.NotifyEmails, ",")
		for i := range recipients {
			recipients[i] = strings.TrimSpace(recipients[i])
		}
	}
	effectors := pipeline.Effectors{
		Mail:  effector.NewMailer(appCfg.MailAPIURL, appCfg.MailSender, recipients, L),
		Tasks: effector.NewTaskBoard(appCfg.TaskBoardURL, appCfg.TaskBoardToken, appCfg.TaskBoardPlan, appCfg.TaskBoardBucket, appCfg.TaskBoardAssignee, L),
		Flow:  effector.NewWorkflow(appCfg.WorkflowURL, L),
	}

	pipe := pipeline.New(store, enricher, decider, notifier, effectors, L, pipeMetrics)

	// Readiness gate: fails during shutdown so orchestration stops routing
	// probes here while in-flight work drains.
	var shutdownGate health.ShutdownGate
	readiness := health.All(
		shutdownGate.Probe(),
	)
	liveness := health.Fixed(true, "")

	// Configure ops http server for metrics, health checks, pprof, etc
	opsOpts := opsCfg.ToOptions()
	opsOpts.Metrics = m.Handler()
	opsOpts.Health = liveness
	opsOpts.Readiness = readiness
	opsOpts.UseRecoverMW = true
	opsOpts.OnPanic = m.IncHttpPanic

	opsHTTPStop, err := opshttp.Start(ctx, L, opsOpts)
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		return err
	}
	defer func() {
		err := opsHTTPStop(context.Background())
		if err != nil {
			L.Error(ctx, err, "failed to stop ops http listener")
		}
	}()

	// Connect the queue consumer and start the processing loop. The loop
	// owns one message at a time; messages already handed to the pipeline
	// finish before cancellation is honored.
	consumer, err := bus.NewConsumer(appCfg.AMQPURL, appCfg.QueueName, appCfg.PrefetchCount, L)
	if err != nil {
		return fmt.Errorf("queue consumer: %w", err)
	}
	defer consumer.Close()

	consumeCtx, cancelConsume := context.WithCancel(ctx)
	defer cancelConsume()

	consumeErr := make(chan error, 1)
	go func() {
		consumeErr <- consumer.Run(consumeCtx, pipe.Process)
	}()

	// Notify systemd that we started successfully if started under systemd
	if err := notifySystemd(); err != nil {
		// log and dont exit, worst case systemd will kill the process after timeout
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	// Wait for a signal or a broker-side failure of the consume loop.
	loopDone := false
	select {
	case <-ctx.Done():
		L.Info(context.Background(), "shutdown signal received")
	case err := <-consumeErr:
		loopDone = true
		if err != nil {
			L.Error(context.Background(), err, "consumer stopped")
			return err
		}
		L.Info(context.Background(), "consumer stopped")
	}

	// fail readiness during drain
	shutdownGate.Set("draining")
	L.Info(context.Background(), "shutdown gate closed")

	// Give the in-flight message time to finish. The consume loop exits on
	// its own once the current delivery is settled.
	cancelConsume()
	if !loopDone {
		drainDuration := time.Duration(appCfg.DrainSeconds) * time.Second
		select {
		case <-consumeErr:
			L.Info(context.Background(), "consume loop drained")
		case <-time.After(drainDuration):
			L.Warn(context.Background(), "drain period elapsed before consume loop exited")
		}
	}

	// Shutdown components with per-component budget sliced from total.
	type stopFn struct {
		name string
		fn   func(context.Context) error
	}
	stopFns := []stopFn{
		{"ops http server", opsHTTPStop},
		{"otel", shutdownOtelx},
	}

	budget := time.Duration(appCfg.ShutdownBudgetSeconds) * time.Second
	perComponent := budget / time.Duration(len(stopFns))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()

	for _, s := range stopFns {
		cctx, ccancel := context.WithTimeout(shutdownCtx, perComponent)
		if err := s.fn(cctx); err != nil {
			L.Error(context.Background(), err, s.name+" shutdown")
		}
		ccancel()
	}

	consumer.Close()
	stopProf()

	L.Info(context.Background(), "shutdown complete")
	return nil
}

func notifySystemd() error {
	// systemd will set NOTIFY_SOCKET to a unix socket path if we were started under systemd with type=notify
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr) //nolint:gosec,noctx // G704: addr is from NOTIFY_SOCKET set by systemd not user input, no context support in net package for unixgram sockets
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	defer func() { _ = conn.Close() }()
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		return fmt.Errorf("systemd notify failed: write failed: %w", err)
	}
	return nil
}
