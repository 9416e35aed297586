// Package telemetry holds the harvester's prometheus metrics and tracer.
package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	MetricsNamespace = "harvester"
	TracerName       = "go-portal-harvester/harvest"
)

// Metrics methods are safe on a nil receiver so components can run without
// metrics in tests.
type Metrics struct {
	LinksDiscovered   *prometheus.CounterVec
	PostingsRejected  *prometheus.CounterVec
	DedupDecisions    *prometheus.CounterVec
	NavigationErrors  *prometheus.CounterVec
	LoginAttempts     *prometheus.CounterVec
	CycleDuration     prometheus.Histogram
	CycleItems        prometheus.Gauge
	LastCycleSuccess  prometheus.Gauge
	ExtractIncomplete prometheus.Counter
}

// NewMetrics registers every metric on reg (the default registerer when nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		LinksDiscovered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "links_discovered_total",
			Help:      "Links found on listing pages, by kind (posting, navigation)",
		}, []string{"kind"}),
		PostingsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "postings_rejected_total",
			Help:      "Postings refused by the content validator, by reason",
		}, []string{"reason"}),
		DedupDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "dedup_decisions_total",
			Help:      "Dedup decisions, by action and match kind",
		}, []string{"action", "matched_by"}),
		NavigationErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "navigation_errors_total",
			Help:      "Failed navigations, by page kind (listing, posting, login)",
		}, []string{"kind"}),
		LoginAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "login_attempts_total",
			Help:      "Login attempts, by outcome",
		}, []string{"outcome"}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of one harvest invocation",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600},
		}),
		CycleItems: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Name:      "cycle_items_harvested",
			Help:      "Items harvested so far in the current hourly cycle",
		}),
		LastCycleSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Name:      "last_run_success_timestamp_seconds",
			Help:      "Unix time of the last invocation that finished without a hard failure",
		}),
		ExtractIncomplete: factory.NewCounter(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "extraction_incomplete_total",
			Help:      "Posting pages where title, company or description was missing",
		}),
	}
}

func (m *Metrics) Discovered(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.LinksDiscovered.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) Rejected(reason string) {
	if m == nil {
		return
	}
	m.PostingsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) Decision(action, matchedBy string) {
	if m == nil {
		return
	}
	if matchedBy == "" {
		matchedBy = "none"
	}
	m.DedupDecisions.WithLabelValues(action, matchedBy).Inc()
}

func (m *Metrics) NavigationError(kind string) {
	if m == nil {
		return
	}
	m.NavigationErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) LoginAttempt(outcome string) {
	if m == nil {
		return
	}
	m.LoginAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Incomplete() {
	if m == nil {
		return
	}
	m.ExtractIncomplete.Inc()
}

func (m *Metrics) RunFinished(seconds float64, cycleItems int, ok bool, unix float64) {
	if m == nil {
		return
	}
	m.CycleDuration.Observe(seconds)
	m.CycleItems.Set(float64(cycleItems))
	if ok {
		m.LastCycleSuccess.Set(unix)
	}
}

// Tracer wraps the otel tracer. Without a configured provider spans are no-ops.
type Tracer struct {
	tracer trace.Tracer
}

func NewTracer() *Tracer {
	return &Tracer{tracer: otel.Tracer(TracerName)}
}

// Start begins a span. Caller ends it.
func (t *Tracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if t == nil {
		return otel.Tracer(TracerName).Start(ctx, name, opts...)
	}
	return t.tracer.Start(ctx, name, opts...)
}
