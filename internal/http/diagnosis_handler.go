package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"heradx-vitals/internal/domain"
	"heradx-vitals/internal/metrics"
	"heradx-vitals/internal/service"
	"heradx-vitals/internal/triage"
)

// DiagnosisHandler /api/diagnosis/*
type DiagnosisHandler struct {
	analyzer triage.Analyzer
	scans    *service.ScanService
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewDiagnosisHandler(analyzer triage.Analyzer, scans *service.ScanService, m *metrics.Metrics, logger *zap.Logger) *DiagnosisHandler {
	return &DiagnosisHandler{analyzer: analyzer, scans: scans, metrics: m, logger: logger}
}

type analyzeRequest struct {
	Intake     *domain.IntakeData       `json:"intake"`
	Biometrics *domain.BiometricSummary `json:"biometrics"`
	SessionID  string                   `json:"sessionId,omitempty"`
}

// Analyze POST /api/diagnosis/analyze {intake, biometrics|null, sessionId?}
// 分析器失败时仍返回 200 + 安全的 MODERATE 结果
func (h *DiagnosisHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Intake == nil || req.Intake.LifeStage == "" || req.Intake.SelectedBodyParts == nil {
		writeError(w, http.StatusBadRequest, "Invalid intake data")
		return
	}

	biometrics := req.Biometrics
	if biometrics == nil && req.SessionID != "" {
		if cached, err := h.scans.CachedSummary(r.Context(), req.SessionID); err == nil {
			biometrics = &cached
		} else {
			h.logger.Debug("No cached summary for diagnosis", zap.String("session_id", req.SessionID), zap.Error(err))
		}
	}

	result, err := h.analyzer.Analyze(r.Context(), *req.Intake, biometrics)
	if err != nil {
		h.logger.Error("Diagnosis error, returning fallback", zap.Error(err))
		h.metrics.Diagnosis(true)
		writeJSON(w, http.StatusOK, triage.FallbackResult())
		return
	}
	h.metrics.Diagnosis(false)
	h.logger.Info("Diagnosis completed",
		zap.String("urgency", string(result.UrgencyLevel)),
		zap.Bool("with_biometrics", biometrics != nil),
	)
	writeJSON(w, http.StatusOK, result)
}
