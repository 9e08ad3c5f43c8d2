package httpapi

import (
	"net/http"
	"time"

	"heradx-vitals/internal/service"
)

type HealthHandler struct {
	scans            *service.ScanService
	geminiConfigured bool
}

func NewHealthHandler(scans *service.ScanService, geminiConfigured bool) *HealthHandler {
	return &HealthHandler{scans: scans, geminiConfigured: geminiConfigured}
}

// Health GET /api/health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
		"geminiConfigured": h.geminiConfigured,
		"mode":             h.scans.Mode().Kind,
	})
}
