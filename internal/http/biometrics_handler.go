package httpapi

import (
	"errors"
	"math"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"heradx-vitals/internal/biometrics"
	"heradx-vitals/internal/service"
	"heradx-vitals/internal/store"
)

// BiometricsHandler /api/biometrics/*
type BiometricsHandler struct {
	scans  *service.ScanService
	logger *zap.Logger
}

func NewBiometricsHandler(scans *service.ScanService, logger *zap.Logger) *BiometricsHandler {
	return &BiometricsHandler{scans: scans, logger: logger}
}

type sessionRequest struct {
	SessionID string `json:"sessionId"`
}

type frameRequest struct {
	SessionID string  `json:"sessionId"`
	Frame     string  `json:"frame"`
	Timestamp float64 `json:"timestamp"`
}

// Start POST /api/biometrics/start {sessionId} -> {status:"ready"}
func (h *BiometricsHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	if err := h.scans.StartSession(r.Context(), req.SessionID); err != nil {
		h.logger.Error("Biometrics start error", zap.String("session_id", req.SessionID), zap.Error(err))
		writeError(w, statusFor(err), "Failed to start biometric session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Frame POST /api/biometrics/frame {sessionId, frame, timestamp} -> BiometricReading
func (h *BiometricsHandler) Frame(w http.ResponseWriter, r *http.Request) {
	var req frameRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.SessionID == "" || req.Frame == "" {
		writeError(w, http.StatusBadRequest, "sessionId and frame are required")
		return
	}

	ts := int64(0)
	if req.Timestamp > 0 && !math.IsInf(req.Timestamp, 0) {
		ts = int64(req.Timestamp)
	}
	reading, err := h.scans.ProcessFrame(r.Context(), req.SessionID, req.Frame, ts)
	if err != nil {
		h.logger.Warn("Biometrics frame error", zap.String("session_id", req.SessionID), zap.Error(err))
		writeError(w, statusFor(err), "Failed to process frame")
		return
	}
	writeJSON(w, http.StatusOK, reading)
}

// Stop POST /api/biometrics/stop {sessionId} -> BiometricSummary
func (h *BiometricsHandler) Stop(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	summary, err := h.scans.StopSession(r.Context(), req.SessionID)
	if err != nil {
		h.logger.Error("Biometrics stop error", zap.String("session_id", req.SessionID), zap.Error(err))
		writeError(w, statusFor(err), "Failed to stop biometric session")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Mode GET /api/biometrics/mode -> {mode, realPresage}
func (h *BiometricsHandler) Mode(w http.ResponseWriter, r *http.Request) {
	mode := h.scans.Mode()
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":        mode.Kind,
		"realPresage": mode.Real(),
	})
}

// Summary GET /api/biometrics/summary/{sessionId} -> 缓存的汇总
func (h *BiometricsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]
	summary, err := h.scans.CachedSummary(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, store.ErrMiss) {
			writeError(w, http.StatusNotFound, "summary not found")
			return
		}
		h.logger.Error("Failed to read cached summary", zap.String("session_id", sessionID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to read summary")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// statusFor 错误 -> HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, biometrics.ErrInvalidSession):
		return http.StatusBadRequest
	case errors.Is(err, biometrics.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, biometrics.ErrBridgeBusy):
		return http.StatusConflict
	case errors.Is(err, biometrics.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
