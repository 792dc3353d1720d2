// Package metrics defines the Prometheus collectors exported on /metrics.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Vision call kinds.
const (
	KindBatch         = "batch"
	KindConsolidation = "consolidation"
)

type Metrics struct {
	runs           *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	visionCalls    *prometheus.CounterVec
	visionDuration *prometheus.HistogramVec
	visionTokens   *prometheus.CounterVec
	framesSkipped  prometheus.Counter
	recoveries     *prometheus.CounterVec
	inFlight       prometheus.Gauge
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	gatherer       prometheus.Gatherer
}

// New creates the collectors and registers them with reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swing_orchestrator_runs_total",
				Help: "Orchestrator runs by outcome",
			},
			[]string{"outcome", "source"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swing_orchestrator_run_duration_seconds",
				Help:    "Wall time of orchestrator runs that reached the pipeline",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			},
			[]string{"outcome"},
		),
		visionCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swing_vision_calls_total",
				Help: "Vision model calls by kind and result",
			},
			[]string{"kind", "result"},
		),
		visionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swing_vision_call_duration_seconds",
				Help:    "Latency of vision model calls",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 9),
			},
			[]string{"kind"},
		),
		visionTokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swing_vision_tokens_total",
				Help: "Tokens reported by the vision model",
			},
			[]string{"kind"},
		),
		framesSkipped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "swing_frames_skipped_total",
				Help: "Frames dropped because their bytes could not be fetched",
			},
		),
		recoveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swing_recovery_attempts_total",
				Help: "Recovery re-triggers attempted during polls, by result",
			},
			[]string{"result"},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "swing_orchestrator_runs_in_flight",
				Help: "Orchestrator runs currently executing",
			},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swing_http_requests_total",
				Help: "HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swing_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		gatherer: reg,
	}

	reg.MustRegister(
		m.runs, m.runDuration,
		m.visionCalls, m.visionDuration, m.visionTokens,
		m.framesSkipped, m.recoveries, m.inFlight,
		m.httpRequests, m.httpDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

// RunFinished counts a run by outcome and trigger source.
func (m *Metrics) RunFinished(outcome, source string) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.runs.WithLabelValues(outcome, source).Inc()
}

// RunDuration observes the wall time of a run that reached the pipeline.
func (m *Metrics) RunDuration(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.runDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Metrics) VisionCall(kind string, d time.Duration, tokens int, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.visionCalls.WithLabelValues(kind, result).Inc()
	m.visionDuration.WithLabelValues(kind).Observe(d.Seconds())
	if tokens > 0 {
		m.visionTokens.WithLabelValues(kind).Add(float64(tokens))
	}
}

func (m *Metrics) FramesSkipped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.framesSkipped.Add(float64(n))
}

func (m *Metrics) Recovery(result string) {
	if m == nil {
		return
	}
	m.recoveries.WithLabelValues(result).Inc()
}

func (m *Metrics) HTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
