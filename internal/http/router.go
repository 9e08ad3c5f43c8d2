package httpapi

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"heradx-vitals/internal/metrics"
)

// RouterDeps 路由依赖
type RouterDeps struct {
	Biometrics  *BiometricsHandler
	Diagnosis   *DiagnosisHandler
	History     *HistoryHandler
	Health      *HealthHandler
	Metrics     *metrics.Metrics
	CORSOrigins []string
	Logger      *zap.Logger
}

// NewRouter 注册全部路由；外层包 CORS 和 panic recovery
func NewRouter(d RouterDeps) http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	handle := func(path string, h http.HandlerFunc, method string) {
		api.Handle(path, d.Metrics.WrapHandler("/api"+path, h)).Methods(method)
	}

	handle("/health", d.Health.Health, http.MethodGet)

	handle("/biometrics/start", d.Biometrics.Start, http.MethodPost)
	handle("/biometrics/frame", d.Biometrics.Frame, http.MethodPost)
	handle("/biometrics/stop", d.Biometrics.Stop, http.MethodPost)
	handle("/biometrics/mode", d.Biometrics.Mode, http.MethodGet)
	handle("/biometrics/summary/{sessionId}", d.Biometrics.Summary, http.MethodGet)

	handle("/diagnosis/analyze", d.Diagnosis.Analyze, http.MethodPost)

	handle("/history", d.History.List, http.MethodGet)
	handle("/history/export", d.History.Export, http.MethodGet)

	r.Handle("/metrics", d.Metrics.Handler()).Methods(http.MethodGet)

	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	cors := handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(zap.NewStdLog(d.Logger)),
		handlers.PrintRecoveryStack(true),
	)
	return recovery(cors(r))
}
