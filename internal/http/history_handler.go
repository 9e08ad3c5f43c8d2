package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"heradx-vitals/internal/repository"
	"heradx-vitals/internal/service"
)

// HistoryHandler /api/history*
type HistoryHandler struct {
	scans  *service.ScanService
	logger *zap.Logger
}

func NewHistoryHandler(scans *service.ScanService, logger *zap.Logger) *HistoryHandler {
	return &HistoryHandler{scans: scans, logger: logger}
}

// List GET /api/history?limit=N -> {items, total}
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := repository.NormalizeLimit(parseInt(r.URL.Query().Get("limit"), repository.DefaultListLimit))
	records, err := h.scans.History(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list scan history", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to list scan history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": records,
		"total": len(records),
	})
}

// Export GET /api/history/export?limit=N -> xlsx
func (h *HistoryHandler) Export(w http.ResponseWriter, r *http.Request) {
	limit := repository.NormalizeLimit(parseInt(r.URL.Query().Get("limit"), repository.MaxListLimit))
	records, err := h.scans.History(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list scan history for export", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to list scan history")
		return
	}

	data, err := GenerateScanHistoryExport(records)
	if err != nil {
		h.logger.Error("Failed to generate scan history export", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to generate export")
		return
	}

	filename := fmt.Sprintf("scan_history_%s.xlsx", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
