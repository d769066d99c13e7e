package reconnect

import "time"

// Phase is the controller's position in the reconnection state machine.
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseScheduled       Phase = "scheduled"
	PhaseAttempting      Phase = "attempting"
	PhaseFallbackPending Phase = "fallback_pending"
)

// State is a snapshot of the reconnection state.
type State struct {
	Phase                   Phase         `json:"phase"`
	IsReconnecting          bool          `json:"is_reconnecting"`
	CurrentAttempt          int           `json:"current_attempt"`
	NextAttemptIn           time.Duration `json:"next_attempt_in"`
	LastAttemptAt           time.Time     `json:"last_attempt_at,omitzero"`
	Strategy                Strategy      `json:"strategy"`
	Reason                  string        `json:"reason"`
	CycleID                 string        `json:"cycle_id,omitempty"`
	CircuitBreakerOpen      bool          `json:"circuit_breaker_open"`
	Breaker                 BreakerState  `json:"breaker"`
	FallbackModeActive      bool          `json:"fallback_mode_active"`
	AdaptiveDelayMultiplier float64       `json:"adaptive_delay_multiplier"`
}
