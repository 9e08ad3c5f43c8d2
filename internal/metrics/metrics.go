package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics Prometheus 指标；nil *Metrics 上的所有方法都是 no-op
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec

	sessionsStarted *prometheus.CounterVec
	sessionsActive  prometheus.Gauge
	framesTotal     *prometheus.CounterVec
	backendErrors   *prometheus.CounterVec
	scanDuration    prometheus.Histogram
	validRatio      prometheus.Histogram
	diagnoses       *prometheus.CounterVec
}

// NewMetrics 在独立 registry 上注册全部指标（附带 Go/进程指标）
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		sessionsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "heradx_biometric_sessions_started_total",
			Help: "Biometric sessions started by operating mode.",
		}, []string{"mode"}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "heradx_biometric_sessions_active",
			Help: "Biometric sessions currently active.",
		}),
		framesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "heradx_biometric_frames_total",
			Help: "Frames processed by operating mode and result.",
		}, []string{"mode", "result"}),
		backendErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "heradx_biometric_backend_errors_total",
			Help: "Vitals backend failures by kind (timeout, backend, bridge_exited, encoding, busy, unavailable, other).",
		}, []string{"kind"}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "heradx_biometric_scan_duration_seconds",
			Help:    "Scan duration reported in stopped-session summaries.",
			Buckets: []float64{5, 10, 20, 30, 45, 60, 90, 120, 300},
		}),
		validRatio: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "heradx_biometric_valid_reading_ratio",
			Help:    "validReadings / totalReadings per stopped session.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		diagnoses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "heradx_diagnosis_requests_total",
			Help: "Triage analyses by outcome (ok, fallback).",
		}, []string{"result"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpDuration,
		m.sessionsStarted,
		m.sessionsActive,
		m.framesTotal,
		m.backendErrors,
		m.scanDuration,
		m.validRatio,
		m.diagnoses,
	)
	return m
}

// Registry 测试用
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		if m != nil {
			m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
			m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}
	})
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SessionStarted(mode string) {
	if m == nil {
		return
	}
	m.sessionsStarted.WithLabelValues(mode).Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.sessionsActive.Set(float64(n))
}

func (m *Metrics) Frame(mode string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.framesTotal.WithLabelValues(mode, result).Inc()
}

func (m *Metrics) BackendError(kind string) {
	if m == nil {
		return
	}
	m.backendErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) SessionStopped(scanDurationSec, validReadings, totalReadings int) {
	if m == nil {
		return
	}
	m.scanDuration.Observe(float64(scanDurationSec))
	if totalReadings > 0 {
		m.validRatio.Observe(float64(validReadings) / float64(totalReadings))
	}
}

func (m *Metrics) Diagnosis(fallback bool) {
	if m == nil {
		return
	}
	result := "ok"
	if fallback {
		result = "fallback"
	}
	m.diagnoses.WithLabelValues(result).Inc()
}
