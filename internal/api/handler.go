// Package api provides the HTTP API handlers and routing for the screening service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/DotoriPicnic/condition-pick/internal/apperrors"
	"github.com/DotoriPicnic/condition-pick/internal/catalog"
	"github.com/DotoriPicnic/condition-pick/internal/health"
	"github.com/DotoriPicnic/condition-pick/internal/screening"
)

// notReadyMessage is returned while no screening result has been cached.
const notReadyMessage = "조건검색 결과가 아직 준비되지 않았습니다. 잠시 후 다시 시도해주세요."

// ScreeningService is the part of screening.Service the handlers use.
type ScreeningService interface {
	RunNow(ctx context.Context) (*screening.Result, error)
	Cached(ctx context.Context) (*screening.Result, time.Time, error)
	Status() screening.Status
}

// Handler contains HTTP handlers for the screening API
type Handler struct {
	svc     ScreeningService
	catalog *catalog.Catalog
	health  *health.Checker
	now     func() time.Time
}

// NewHandler creates a new API handler
func NewHandler(svc ScreeningService, cat *catalog.Catalog, healthChecker *health.Checker) *Handler {
	return &Handler{
		svc:     svc,
		catalog: cat,
		health:  healthChecker,
		now:     time.Now,
	}
}

type runResponse struct {
	Success       bool             `json:"success"`
	ConditionName string           `json:"condition_name"`
	Count         int              `json:"count"`
	Result        []screening.Item `json:"result"`
}

type resultData struct {
	ConditionName string           `json:"condition_name"`
	Count         int              `json:"count"`
	Result        []screening.Item `json:"result"`
}

type cachedResponse struct {
	Success    bool       `json:"success"`
	Data       resultData `json:"data"`
	LastUpdate time.Time  `json:"lastUpdate"`
}

type statusResponse struct {
	IsRunning       bool       `json:"isRunning"`
	LastError       *string    `json:"lastError"`
	LastUpdate      *time.Time `json:"lastUpdate"`
	SchedulerActive bool       `json:"schedulerActive"`
	LastRunAt       *time.Time `json:"lastRunAt"`
}

type serverStatusResponse struct {
	Server    string    `json:"server"`
	IsRunning bool      `json:"isRunning"`
	Timestamp time.Time `json:"timestamp"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// RunNow handles POST /api/condition/search
func (h *Handler) RunNow(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.RunNow(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, runResponse{
		Success:       true,
		ConditionName: result.ConditionName,
		Count:         result.Count,
		Result:        result.Items,
	})
}

// Cached handles GET /api/condition/result
func (h *Handler) Cached(w http.ResponseWriter, r *http.Request) {
	result, updated, err := h.svc.Cached(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, cachedResponse{
		Success: true,
		Data: resultData{
			ConditionName: result.ConditionName,
			Count:         result.Count,
			Result:        result.Items,
		},
		LastUpdate: updated,
	})
}

// Status handles GET /api/condition/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	st := h.svc.Status()

	resp := statusResponse{
		IsRunning:       st.IsRunning,
		LastUpdate:      st.LastUpdate,
		SchedulerActive: st.SchedulerActive,
		LastRunAt:       st.LastRunAt,
	}
	if st.LastError != "" {
		resp.LastError = &st.LastError
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Catalog handles GET /api/condition/list
func (h *Handler) Catalog(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.catalog.Entries())
}

// ServerStatus handles GET /api/status
func (h *Handler) ServerStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, serverStatusResponse{
		Server:    "running",
		IsRunning: h.svc.Status().IsRunning,
		Timestamp: h.now().UTC(),
	})
}

// Livez handles GET /livez - liveness probe.
// Returns 200 if the process is alive. Does not check dependencies.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	response := h.health.Liveness(r.Context())
	h.writeJSON(w, http.StatusOK, response)
}

// Readyz handles GET /readyz - readiness probe.
// Returns 200 while the screener can be started, even if degraded.
// Returns 503 if the runner backend is unavailable or the service is stopping.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if !response.IsReady() {
		status = http.StatusServiceUnavailable
	}

	h.writeJSON(w, status, response)
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// handleError handles errors from service layer with appropriate HTTP status codes.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	switch {
	case errors.Is(err, apperrors.ErrEmpty):
		h.writeJSON(w, status, errorResponse{Message: notReadyMessage})
		return
	case status >= 500:
		slog.Error("Request failed", "error", err, "path", r.URL.Path, "status", status)
	default:
		slog.Warn("Client error", "error", err, "path", r.URL.Path, "status", status)
	}
	h.writeJSON(w, status, errorResponse{Error: err.Error()})
}
