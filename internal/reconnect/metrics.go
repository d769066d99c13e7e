package reconnect

import "time"

// rollingCapacity is the number of samples kept for trend queries.
const rollingCapacity = 10

// Metrics is a snapshot of cumulative reconnection counters.
type Metrics struct {
	TotalAttempts           int           `json:"total_attempts"`
	SuccessfulReconnections int           `json:"successful_reconnections"`
	FailedAttempts          int           `json:"failed_attempts"`
	AverageReconnectionTime time.Duration `json:"average_reconnection_time"`
	LastSuccessAt           time.Time     `json:"last_success_at,omitzero"`
	CumulativeUptime        time.Duration `json:"cumulative_uptime"`
}

// rollingWindow is a fixed-capacity FIFO; the oldest entry is evicted on overflow.
type rollingWindow[T any] struct {
	items []T
	limit int
}

func newRollingWindow[T any](limit int) *rollingWindow[T] {
	return &rollingWindow[T]{items: make([]T, 0, limit), limit: limit}
}

func (w *rollingWindow[T]) push(v T) {
	if len(w.items) == w.limit {
		copy(w.items, w.items[1:])
		w.items = w.items[:w.limit-1]
	}
	w.items = append(w.items, v)
}

// last returns up to n most recent entries, oldest first.
func (w *rollingWindow[T]) last(n int) []T {
	if n > len(w.items) {
		n = len(w.items)
	}
	return w.items[len(w.items)-n:]
}

func (w *rollingWindow[T]) len() int {
	return len(w.items)
}

func (w *rollingWindow[T]) reset() {
	w.items = w.items[:0]
}

// MetricsRecorder accumulates attempt outcomes. Not safe for concurrent use.
type MetricsRecorder struct {
	metrics   Metrics
	successes *rollingWindow[bool]
	latencies *rollingWindow[time.Duration]
}

// NewMetricsRecorder creates an empty recorder.
func NewMetricsRecorder() *MetricsRecorder {
	return &MetricsRecorder{
		successes: newRollingWindow[bool](rollingCapacity),
		latencies: newRollingWindow[time.Duration](rollingCapacity),
	}
}

// Outcome describes one completed attempt.
type Outcome struct {
	Success bool
	// Latency is the probe round trip; only pushed when HasLatency is set.
	Latency    time.Duration
	HasLatency bool
	// ReconnectionTime is the time from cycle start to success.
	ReconnectionTime time.Duration
	At               time.Time
}

// Record accounts for a completed attempt.
func (r *MetricsRecorder) Record(o Outcome) {
	r.metrics.TotalAttempts++
	if o.Success {
		n := time.Duration(r.metrics.SuccessfulReconnections)
		r.metrics.AverageReconnectionTime = (r.metrics.AverageReconnectionTime*n + o.ReconnectionTime) / (n + 1)
		r.metrics.SuccessfulReconnections++
		r.metrics.LastSuccessAt = o.At
	} else {
		r.metrics.FailedAttempts++
	}

	r.successes.push(o.Success)
	if o.HasLatency {
		r.latencies.push(o.Latency)
	}
}

// AddUptime adds d to the cumulative uptime.
func (r *MetricsRecorder) AddUptime(d time.Duration) {
	r.metrics.CumulativeUptime += d
}

// SampleCount is the number of rolling success samples.
func (r *MetricsRecorder) SampleCount() int {
	return r.successes.len()
}

// RollingSuccessRate is the success share over the last n samples.
// ok is false when there are no samples.
func (r *MetricsRecorder) RollingSuccessRate(n int) (rate float64, ok bool) {
	samples := r.successes.last(n)
	if len(samples) == 0 {
		return 0, false
	}
	var hits int
	for _, s := range samples {
		if s {
			hits++
		}
	}
	return float64(hits) / float64(len(samples)), true
}

// RollingAverageLatency is the mean of the last n latency samples.
// ok is false when there are no samples.
func (r *MetricsRecorder) RollingAverageLatency(n int) (avg time.Duration, ok bool) {
	samples := r.latencies.last(n)
	if len(samples) == 0 {
		return 0, false
	}
	var sum time.Duration
	for _, l := range samples {
		sum += l
	}
	return sum / time.Duration(len(samples)), true
}

// Snapshot returns a copy of the counters.
func (r *MetricsRecorder) Snapshot() Metrics {
	return r.metrics
}

// ClearRolling drops all rolling samples and keeps cumulative counters.
func (r *MetricsRecorder) ClearRolling() {
	r.successes.reset()
	r.latencies.reset()
}
