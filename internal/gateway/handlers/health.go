package handlers

import (
	"net/http"
	"sync"
	"time"

	"relink/internal/reconnect"
)

var (
	startTime time.Time
	startOnce sync.Once
)

// InitStartTime records the server start time. Only the first call counts.
func InitStartTime() {
	startOnce.Do(func() {
		startTime = time.Now()
	})
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string          `json:"status"`
	Version string          `json:"version"`
	Uptime  int64           `json:"uptime"`
	Phase   reconnect.Phase `json:"phase,omitempty"`
}

// StateSource provides the controller phase for the health report.
type StateSource interface {
	State() reconnect.State
}

// HealthHandler reports "ok" when connected and "reconnecting" while a
// cycle is open. The daemon itself is healthy either way, so the status
// code is always 200.
func HealthHandler(version string, source StateSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(0)
		if !startTime.IsZero() {
			uptime = int64(time.Since(startTime).Seconds())
		}

		resp := HealthResponse{
			Status:  "ok",
			Version: version,
			Uptime:  uptime,
		}
		if source != nil {
			st := source.State()
			resp.Phase = st.Phase
			if st.IsReconnecting {
				resp.Status = "reconnecting"
			}
		}
		SendJSON(w, http.StatusOK, resp)
	}
}
