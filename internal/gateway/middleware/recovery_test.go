package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"relink/internal/gateway/handlers"
)

func TestRecoveryKeepsAPIServing(t *testing.T) {
	var logs bytes.Buffer
	r := mux.NewRouter()
	r.Use(Recovery(zerolog.New(&logs)))
	r.HandleFunc("/api/reconnect", func(w http.ResponseWriter, r *http.Request) {
		panic("nil transport")
	}).Methods(http.MethodPost)
	r.HandleFunc("/api/state", func(w http.ResponseWriter, r *http.Request) {
		handlers.SendJSON(w, http.StatusOK, map[string]string{"phase": "idle"})
	}).Methods(http.MethodGet)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/reconnect", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	var resp handlers.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if resp.Error.Code != handlers.ErrCodeInternalError {
		t.Errorf("code = %s, want %s", resp.Error.Code, handlers.ErrCodeInternalError)
	}
	if strings.Contains(resp.Error.Message, "transport") {
		t.Errorf("panic value leaked to client: %q", resp.Error.Message)
	}

	var entry map[string]any
	if err := json.Unmarshal(logs.Bytes(), &entry); err != nil {
		t.Fatalf("log entry: %v (%s)", err, logs.String())
	}
	if entry["level"] != "error" || entry["method"] != http.MethodPost || entry["path"] != "/api/reconnect" {
		t.Errorf("log entry = %v", entry)
	}
	if entry["error"] != "nil transport" {
		t.Errorf("logged error = %v", entry["error"])
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/state", nil))
	if w.Code != http.StatusOK {
		t.Errorf("state after panic: status = %d, want %d", w.Code, http.StatusOK)
	}
}
