package reconnect

import "time"

// BreakerState is a snapshot of the circuit breaker.
type BreakerState struct {
	ConsecutiveFailures int       `json:"consecutive_failures"`
	OpenedAt            time.Time `json:"opened_at,omitzero"`
}

// Open reports whether the breaker is open.
func (s BreakerState) Open() bool {
	return !s.OpenedAt.IsZero()
}

// CircuitBreaker counts consecutive failed attempts and opens once a
// threshold is reached. It is not safe for concurrent use; the controller
// serialises access.
type CircuitBreaker struct {
	threshold   int
	resetWindow time.Duration
	state       BreakerState
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(threshold int, resetWindow time.Duration) *CircuitBreaker {
	return &CircuitBreaker{threshold: threshold, resetWindow: resetWindow}
}

// SetThreshold changes the failure count that opens the breaker.
func (b *CircuitBreaker) SetThreshold(threshold int) {
	b.threshold = threshold
}

// RecordFailure counts a failure and returns true when this call opened the breaker.
func (b *CircuitBreaker) RecordFailure(now time.Time) bool {
	b.state.ConsecutiveFailures++
	if b.state.Open() || b.state.ConsecutiveFailures < b.threshold {
		return false
	}
	b.state.OpenedAt = now
	return true
}

// Reset closes the breaker and clears the failure count.
func (b *CircuitBreaker) Reset() {
	b.state = BreakerState{}
}

// IsOpen reports whether the breaker is open.
func (b *CircuitBreaker) IsOpen() bool {
	return b.state.Open()
}

// CooledDown reports whether an open breaker has been open for the full reset window.
func (b *CircuitBreaker) CooledDown(now time.Time) bool {
	return b.state.Open() && now.Sub(b.state.OpenedAt) >= b.resetWindow
}

// ResetWindow is the delay forced while the breaker is open.
func (b *CircuitBreaker) ResetWindow() time.Duration {
	return b.resetWindow
}

// State returns a snapshot.
func (b *CircuitBreaker) State() BreakerState {
	return b.state
}
