package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the liveness module. All methods are
// safe on a nil receiver so tests can run without a registry.
type Metrics struct {
	// Stage transitions by source and destination stage
	StageTransitions *prometheus.CounterVec

	// Backend and capture-surface call latencies by call
	CallLatency *prometheus.HistogramVec

	// Failed remote calls by call
	CallErrors *prometheus.CounterVec

	// Terminal flows by result and error kind
	FlowOutcomes *prometheus.CounterVec

	// Time between launch and the terminal outcome event
	OutcomeWait prometheus.Histogram

	StaleResults       prometheus.Counter
	UncorrelatedEvents prometheus.Counter
	ActiveFlows        prometheus.Gauge
}

// New registers the liveness metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		StageTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "liveness_stage_transitions_total",
			Help: "Flow stage transitions by source and destination stage",
		}, []string{"from", "to"}),

		CallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "liveness_call_duration_seconds",
			Help:    "Duration of remote calls made by a flow",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"call"}), // call: "scan", "upload", "allocate", "credentials", "launch", "result"

		CallErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "liveness_call_errors_total",
			Help: "Failed remote calls made by a flow",
		}, []string{"call"}),

		FlowOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "liveness_flow_outcomes_total",
			Help: "Terminal flows by result and error kind",
		}, []string{"result", "error_kind"}),

		OutcomeWait: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "liveness_outcome_wait_seconds",
			Help:    "Time between launching the capture surface and its terminal event",
			Buckets: []float64{1, 5, 10, 20, 30, 60, 120, 300},
		}),

		StaleResults: factory.NewCounter(prometheus.CounterOpts{
			Name: "liveness_stale_results_dropped_total",
			Help: "Async results dropped because the flow was reset after they started",
		}),

		UncorrelatedEvents: factory.NewCounter(prometheus.CounterOpts{
			Name: "liveness_uncorrelated_events_total",
			Help: "Outcome events dropped because their session id did not match the launched session",
		}),

		ActiveFlows: factory.NewGauge(prometheus.GaugeOpts{
			Name: "liveness_active_flows",
			Help: "Flows currently registered with the service",
		}),
	}
}

func (m *Metrics) IncrementTransition(from, to string) {
	if m != nil {
		m.StageTransitions.WithLabelValues(from, to).Inc()
	}
}

// ObserveCall records a remote call's duration and whether it failed.
func (m *Metrics) ObserveCall(call string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.CallLatency.WithLabelValues(call).Observe(d.Seconds())
	if err != nil {
		m.CallErrors.WithLabelValues(call).Inc()
	}
}

func (m *Metrics) IncrementOutcome(result, errorKind string) {
	if m != nil {
		m.FlowOutcomes.WithLabelValues(result, errorKind).Inc()
	}
}

func (m *Metrics) ObserveOutcomeWait(d time.Duration) {
	if m != nil {
		m.OutcomeWait.Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementStaleResult() {
	if m != nil {
		m.StaleResults.Inc()
	}
}

func (m *Metrics) IncrementUncorrelatedEvent() {
	if m != nil {
		m.UncorrelatedEvents.Inc()
	}
}

func (m *Metrics) SetActiveFlows(n int) {
	if m != nil {
		m.ActiveFlows.Set(float64(n))
	}
}
