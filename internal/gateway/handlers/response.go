// Package handlers implements the status API endpoints.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"relink/internal/reconnect"
)

// ErrorResponse is the envelope of every non-2xx API answer.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a machine-readable code and a message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// API error codes.
const (
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeInvalidConfig      = "INVALID_CONFIG"
	ErrCodeConflict           = "CONFLICT" // controller stopped or attempt in flight
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE" // event history disabled
)

// SendJSON writes data as JSON with the given status.
func SendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// SendError writes an ErrorResponse.
func SendError(w http.ResponseWriter, status int, code, message string) {
	SendJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}

// sendControllerError maps an error returned by the reconnection controller
// to its API answer.
func sendControllerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, reconnect.ErrInvalidConfig):
		SendError(w, http.StatusBadRequest, ErrCodeInvalidConfig, err.Error())
	case errors.Is(err, reconnect.ErrNotStarted):
		SendError(w, http.StatusConflict, ErrCodeConflict, "reconnection controller is stopped")
	case errors.Is(err, reconnect.ErrAttemptInFlight):
		SendError(w, http.StatusConflict, ErrCodeConflict, "a reconnection attempt is already in flight")
	default:
		SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
	}
}
