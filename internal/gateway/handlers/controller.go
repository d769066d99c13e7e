package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"relink/internal/reconnect"
)

// Controller is the slice of reconnect.Controller the API drives.
type Controller interface {
	State() reconnect.State
	Metrics() reconnect.Metrics
	Config() reconnect.Config
	UpdateConfig(patch reconnect.ConfigPatch) error
	RequestReconnect(ctx context.Context, reason string) (bool, error)
	AssessQuality() reconnect.QualitySignal
}

// ControllerHandler serves state, metrics, config, quality and forced reconnects.
type ControllerHandler struct {
	ctrl Controller
}

// NewControllerHandler creates a handler for ctrl.
func NewControllerHandler(ctrl Controller) *ControllerHandler {
	return &ControllerHandler{ctrl: ctrl}
}

// StatusResponse combines state and metrics.
type StatusResponse struct {
	State   StateView   `json:"state"`
	Metrics MetricsView `json:"metrics"`
}

// ReconnectRequest is the POST /api/reconnect body.
type ReconnectRequest struct {
	Reason string `json:"reason"`
}

// ReconnectResponse reports the forced attempt's outcome.
type ReconnectResponse struct {
	Success bool      `json:"success"`
	State   StateView `json:"state"`
}

// GetState handles GET /api/state.
func (h *ControllerHandler) GetState(w http.ResponseWriter, r *http.Request) {
	SendJSON(w, http.StatusOK, NewStateView(h.ctrl.State()))
}

// GetMetrics handles GET /api/metrics.
func (h *ControllerHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	SendJSON(w, http.StatusOK, NewMetricsView(h.ctrl.Metrics()))
}

// GetStatus handles GET /api/status.
func (h *ControllerHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	SendJSON(w, http.StatusOK, StatusResponse{
		State:   NewStateView(h.ctrl.State()),
		Metrics: NewMetricsView(h.ctrl.Metrics()),
	})
}

// GetConfig handles GET /api/config.
func (h *ControllerHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	SendJSON(w, http.StatusOK, NewConfigView(h.ctrl.Config()))
}

// PatchConfig handles PATCH /api/config.
func (h *ControllerHandler) PatchConfig(w http.ResponseWriter, r *http.Request) {
	var req ConfigPatchRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body: "+err.Error())
		return
	}

	patch, err := req.Patch()
	if err != nil {
		SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	if err := h.ctrl.UpdateConfig(patch); err != nil {
		sendControllerError(w, err)
		return
	}

	SendJSON(w, http.StatusOK, NewConfigView(h.ctrl.Config()))
}

// Reconnect handles POST /api/reconnect. An empty body is allowed. A
// rejected request answers 409; a completed attempt answers 200 with its
// outcome.
func (h *ControllerHandler) Reconnect(w http.ResponseWriter, r *http.Request) {
	var req ReconnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body: "+err.Error())
		return
	}

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "manual"
	}

	ok, err := h.ctrl.RequestReconnect(r.Context(), reason)
	if err != nil {
		sendControllerError(w, err)
		return
	}
	SendJSON(w, http.StatusOK, ReconnectResponse{
		Success: ok,
		State:   NewStateView(h.ctrl.State()),
	})
}

// AssessQuality handles POST /api/quality. It runs an assessment, which may
// open a cycle or retune the policy.
func (h *ControllerHandler) AssessQuality(w http.ResponseWriter, r *http.Request) {
	sig := h.ctrl.AssessQuality()
	SendJSON(w, http.StatusOK, QualityView{
		QualitySignal:         sig,
		RollingAverageLatency: sig.RollingAverageLatency.String(),
	})
}
