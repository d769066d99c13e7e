// Package reconnect implements an adaptive reconnection controller: backoff,
// circuit breaking, fallback escalation and quality-driven retuning around an
// external connection probe.
package reconnect

import (
	"errors"
	"fmt"
)

// Sentinel errors for controller operations.
var (
	// ErrAlreadyStarted indicates Start was called on a running controller.
	ErrAlreadyStarted = errors.New("reconnect: controller already started")

	// ErrNotStarted indicates the controller is not running.
	ErrNotStarted = errors.New("reconnect: controller not started")

	// ErrAttemptInFlight indicates a forced reconnect was refused because a
	// probe call is already running.
	ErrAttemptInFlight = errors.New("reconnect: attempt already in flight")

	// ErrHealthCheckFailed is reported when the probe answers unhealthy without an error.
	ErrHealthCheckFailed = errors.New("reconnect: health check reported unhealthy")
)

// InvalidConfigError indicates a rejected configuration value.
type InvalidConfigError struct {
	Field   string
	Message string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("reconnect: invalid config %s: %s", e.Field, e.Message)
}

// Is implements errors.Is for InvalidConfigError.
func (e *InvalidConfigError) Is(target error) bool {
	_, ok := target.(*InvalidConfigError)
	return ok
}

// ErrInvalidConfig is a sentinel for errors.Is matching.
var ErrInvalidConfig = &InvalidConfigError{}

// AttemptError wraps the cause of a failed attempt with its position in the cycle.
type AttemptError struct {
	CycleID string
	Attempt int
	Cause   error
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("reconnect: attempt %d of cycle %s failed: %v", e.Attempt, e.CycleID, e.Cause)
}

func (e *AttemptError) Unwrap() error {
	return e.Cause
}
