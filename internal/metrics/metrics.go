// Package metrics holds the Prometheus collectors for the governance pipeline.
// Collectors live on a private registry so tests and embedded uses never
// collide with the global default registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "warden"

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	registry *prometheus.Registry

	classifications   *prometheus.CounterVec
	classifyDuration  *prometheus.HistogramVec
	classifyFailures  *prometheus.CounterVec
	modelTokens       *prometheus.CounterVec
	approvals         *prometheus.CounterVec
	approvalWait      prometheus.Histogram
	toolCalls         *prometheus.CounterVec
	auditAppends      prometheus.Counter
	auditAppendErrors prometheus.Counter
	notifyErrors      *prometheus.CounterVec
}

// New registers all collectors, plus the Go runtime and process collectors,
// on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Tool calls classified, by risk level and source.",
		}, []string{"level", "source"}),
		classifyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classify_duration_seconds",
			Help:      "Time spent classifying one tool call.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5, 15, 30},
		}, []string{"source"}),
		classifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_failures_total",
			Help:      "Model fallbacks that degraded to the failure level.",
		}, []string{"reason"}),
		modelTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_model_tokens_total",
			Help:      "Tokens consumed by the classification model.",
		}, []string{"direction"}),
		approvals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approvals_total",
			Help:      "Approvals resolved, by terminal status.",
		}, []string{"status"}),
		approvalWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "approval_wait_seconds",
			Help:      "Time a tool call spent waiting for a human decision.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Governed tool calls, by audited action.",
		}, []string{"action"}),
		auditAppends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_appends_total",
			Help:      "Entries appended to the audit chain.",
		}),
		auditAppendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_append_errors_total",
			Help:      "Audit appends that failed to persist.",
		}),
		notifyErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_errors_total",
			Help:      "Approval notifications that could not be delivered.",
		}, []string{"notifier"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.classifications,
		m.classifyDuration,
		m.classifyFailures,
		m.modelTokens,
		m.approvals,
		m.approvalWait,
		m.toolCalls,
		m.auditAppends,
		m.auditAppendErrors,
		m.notifyErrors,
	)
	return m
}

// Registry exposes the underlying registry for gathering in tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// PendingApprovals registers a gauge that reads the pending count on scrape.
func (m *Metrics) PendingApprovals(count func() int) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "approvals_pending",
		Help:      "Approvals currently awaiting a decision.",
	}, func() float64 { return float64(count()) }))
}

func (m *Metrics) ObserveClassification(level, source string, d time.Duration) {
	if m == nil {
		return
	}
	m.classifications.WithLabelValues(level, source).Inc()
	m.classifyDuration.WithLabelValues(source).Observe(d.Seconds())
}

func (m *Metrics) ClassifierFailure(reason string) {
	if m == nil {
		return
	}
	m.classifyFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) ModelTokens(in, out int) {
	if m == nil {
		return
	}
	m.modelTokens.WithLabelValues("input").Add(float64(in))
	m.modelTokens.WithLabelValues("output").Add(float64(out))
}

func (m *Metrics) ApprovalResolved(status string, waited time.Duration) {
	if m == nil {
		return
	}
	m.approvals.WithLabelValues(status).Inc()
	m.approvalWait.Observe(waited.Seconds())
}

func (m *Metrics) ToolCall(action string) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(action).Inc()
}

func (m *Metrics) AuditAppend(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.auditAppendErrors.Inc()
		return
	}
	m.auditAppends.Inc()
}

func (m *Metrics) NotifyError(notifier string) {
	if m == nil {
		return
	}
	m.notifyErrors.WithLabelValues(notifier).Inc()
}
