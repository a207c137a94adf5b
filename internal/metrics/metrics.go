// Package metrics provides Prometheus metrics for the sandbox server and the
// investigation pipeline. All methods are safe to call on a nil *Metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "triage"

// Metrics holds every collector the service exports.
type Metrics struct {
	HTTPRequestTotal           *prometheus.CounterVec
	HTTPRequestDurationSeconds *prometheus.HistogramVec

	// SandboxExecutionsTotal counts snippet runs by outcome (success, failure).
	SandboxExecutionsTotal          *prometheus.CounterVec
	SandboxExecutionDurationSeconds prometheus.Histogram
	SandboxImportsStrippedTotal     prometheus.Counter

	InvestigationsTotal        *prometheus.CounterVec
	InvestigationIterations    prometheus.Histogram
	LLMRetriesTotal            *prometheus.CounterVec
	ToolCallsTotal             *prometheus.CounterVec
	AlarmsSkippedTotal         *prometheus.CounterVec
	NotificationFailuresTotal  prometheus.Counter
	ReportPersistFailuresTotal prometheus.Counter
}

// New registers all collectors with reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDurationSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 10), // 1ms to ~9.3s
			},
			[]string{"method", "path"},
		),
		SandboxExecutionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sandbox",
				Name:      "executions_total",
				Help:      "Total number of snippet executions by outcome.",
			},
			[]string{"outcome"},
		),
		SandboxExecutionDurationSeconds: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "sandbox",
				Name:      "execution_duration_seconds",
				Help:      "Snippet execution time in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 4, 9), // 1ms to ~65s
			},
		),
		SandboxImportsStrippedTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sandbox",
				Name:      "imports_stripped_total",
				Help:      "Total number of import statements removed from snippets.",
			},
		),
		InvestigationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "investigations_total",
				Help:      "Total number of investigations by terminal state.",
			},
			[]string{"outcome"},
		),
		InvestigationIterations: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "investigation_iterations",
				Help:      "Model round-trips per investigation.",
				Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 34, 55, 100},
			},
		),
		LLMRetriesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_retries_total",
				Help:      "Total number of retried model calls by error class.",
			},
			[]string{"class"},
		),
		ToolCallsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_calls_total",
				Help:      "Total number of tool dispatches by outcome.",
			},
			[]string{"outcome"},
		),
		AlarmsSkippedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alarms_skipped_total",
				Help:      "Total number of alarm events not investigated, by reason.",
			},
			[]string{"reason"},
		),
		NotificationFailuresTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notification_failures_total",
				Help:      "Total number of failed notification deliveries.",
			},
		),
		ReportPersistFailuresTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "report_persist_failures_total",
				Help:      "Total number of investigation reports that could not be saved.",
			},
		),
	}
}

func (m *Metrics) ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDurationSeconds.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveExecution(success bool, seconds float64, importsStripped int) {
	if m == nil {
		return
	}
	m.SandboxExecutionsTotal.WithLabelValues(outcome(success)).Inc()
	m.SandboxExecutionDurationSeconds.Observe(seconds)
	m.SandboxImportsStrippedTotal.Add(float64(importsStripped))
}

// ObserveInvestigation records a finished investigation. state is one of
// "reported", "fallback" or "iteration_limit".
func (m *Metrics) ObserveInvestigation(state string, iterations int) {
	if m == nil {
		return
	}
	m.InvestigationsTotal.WithLabelValues(state).Inc()
	m.InvestigationIterations.Observe(float64(iterations))
}

func (m *Metrics) IncRetry(class string) {
	if m == nil {
		return
	}
	m.LLMRetriesTotal.WithLabelValues(class).Inc()
}

func (m *Metrics) IncToolCall(success bool) {
	if m == nil {
		return
	}
	m.ToolCallsTotal.WithLabelValues(outcome(success)).Inc()
}

func (m *Metrics) IncSkipped(reason string) {
	if m == nil {
		return
	}
	m.AlarmsSkippedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncNotificationFailure() {
	if m == nil {
		return
	}
	m.NotificationFailuresTotal.Inc()
}

func (m *Metrics) IncReportFailure() {
	if m == nil {
		return
	}
	m.ReportPersistFailuresTotal.Inc()
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
