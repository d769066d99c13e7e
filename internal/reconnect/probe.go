package reconnect

import "context"

// Status is the connectivity status reported by a probe.
type Status string

const (
	StatusOnline   Status = "online"
	StatusDegraded Status = "degraded"
	StatusOffline  Status = "offline"
)

// Probe is the transport being kept alive. The controller never tests
// connectivity itself; it only asks the probe.
type Probe interface {
	// IsOnline reports the transport's current view of connectivity.
	IsOnline() bool
	// QualityScore returns a 0..100 composite health score.
	QualityScore() int
	// PerformHealthCheck tests the remote end. false or a non-nil error
	// both count as a failed attempt. Any timeout is the probe's own.
	PerformHealthCheck(ctx context.Context) (bool, error)
	// OnConnectionLost registers a callback for transport loss.
	OnConnectionLost(fn func())
	// OnReconnected registers a callback for transport recovery.
	OnReconnected(fn func())
	// OnStatusChange registers a callback for status transitions.
	OnStatusChange(fn func(Status))
}
