package helpdesk

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the worker pipeline.
type Metrics struct {
	MessagesTotal      *prometheus.CounterVec
	StageFailuresTotal *prometheus.CounterVec
	DecisionsTotal     *prometheus.CounterVec
	EffectorCallsTotal *prometheus.CounterVec
	PipelineDuration   prometheus.Histogram
}

// NewMetrics registers and returns pipeline metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_messages_total",
			Help: "Queue messages processed by outcome (acked, missing, abandoned).",
		}, []string{"outcome"}),
		StageFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_stage_failures_total",
			Help: "Degraded stage failures by stage (enrich, notify, decide).",
		}, []string{"stage"}),
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_decisions_total",
			Help: "Routing decisions by action and source (model or fallback).",
		}, []string{"action", "source"}),
		EffectorCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_effector_calls_total",
			Help: "Effector invocations by effector and status.",
		}, []string{"effector", "status"}),
		PipelineDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "helpdesk_pipeline_duration_seconds",
			Help:    "End-to-end duration of one message through the pipeline.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s .. ~51s
		}),
	}

	reg.MustRegister(
		m.MessagesTotal,
		m.StageFailuresTotal,
		m.DecisionsTotal,
		m.EffectorCallsTotal,
		m.PipelineDuration,
	)

	return m
}

// StageFailure returns a hook that counts a degraded failure of the named
// stage. Handed to components that fall back instead of failing the message.
func (m *Metrics) StageFailure(stage string) func() {
	c := m.StageFailuresTotal.WithLabelValues(stage)
	return func() { c.Inc() }
}
