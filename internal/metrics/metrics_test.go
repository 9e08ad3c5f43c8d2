package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()

	m.SessionStarted("simulation")
	m.SessionStarted("simulation")
	m.Frame("bridge", true)
	m.Frame("bridge", false)
	m.BackendError("timeout")
	m.SetActiveSessions(3)
	m.Diagnosis(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.sessionsStarted.WithLabelValues("simulation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.framesTotal.WithLabelValues("bridge", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.backendErrors.WithLabelValues("timeout")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.sessionsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.diagnoses.WithLabelValues("fallback")))
}

func TestMetrics_WrapHandlerAndExposition(t *testing.T) {
	m := NewMetrics()
	h := m.WrapHandler("/api/biometrics/stop", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/biometrics/stop", nil))
	m.SessionStopped(30, 8, 10)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `http_requests_total{route="/api/biometrics/stop",status="404"} 1`))
	assert.Contains(t, body, "heradx_biometric_scan_duration_seconds_count 1")
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.SessionStarted("api")
	m.Frame("api", true)
	m.BackendError("other")
	m.SessionStopped(1, 1, 1)
	m.Diagnosis(false)

	rec := httptest.NewRecorder()
	m.WrapHandler("/x", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
