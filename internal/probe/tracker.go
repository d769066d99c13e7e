// Package probe implements reconnect.Probe over HTTP and WebSocket transports.
package probe

import (
	"math"
	"sync"
	"time"

	"relink/internal/reconnect"
)

const (
	sampleWindow = 10
	// degradedBelow is the score under which an online probe reports degraded.
	degradedBelow = 50
)

// Options configures a probe.
type Options struct {
	// Timeout bounds a single health check.
	Timeout time.Duration
	// Interval is the period of the background monitor.
	Interval time.Duration
	// LatencyBudget is the round trip that costs the full latency penalty.
	LatencyBudget time.Duration
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}
	if o.Interval <= 0 {
		o.Interval = 10 * time.Second
	}
	if o.LatencyBudget <= 0 {
		o.LatencyBudget = time.Second
	}
	return o
}

// tracker keeps the connectivity view shared by all probes: the online
// flag, a window of recent results and the registered callbacks.
type tracker struct {
	mu        sync.Mutex
	online    bool
	status    reconnect.Status
	budget    time.Duration
	results   []bool
	latencies []time.Duration

	lost     []func()
	restored []func()
	statusFn []func(reconnect.Status)
}

func newTracker(budget time.Duration) *tracker {
	return &tracker{online: true, status: reconnect.StatusOnline, budget: budget}
}

func (t *tracker) IsOnline() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.online
}

func (t *tracker) QualityScore() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.scoreLocked()
}

// Status returns the last computed status.
func (t *tracker) Status() reconnect.Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *tracker) OnConnectionLost(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lost = append(t.lost, fn)
}

func (t *tracker) OnReconnected(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.restored = append(t.restored, fn)
}

func (t *tracker) OnStatusChange(fn func(reconnect.Status)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.statusFn = append(t.statusFn, fn)
}

// observe records one check result. Transitions fire the lost and restored
// callbacks only when notify is set; checks requested by the controller pass
// false so it is not told about its own attempts.
func (t *tracker) observe(ok bool, latency time.Duration, notify bool) {
	t.mu.Lock()
	t.results = pushWindow(t.results, ok)
	if ok {
		t.latencies = pushWindow(t.latencies, latency)
	}

	var fire []func()
	if ok != t.online {
		t.online = ok
		if notify {
			if ok {
				fire = append(fire, t.restored...)
			} else {
				fire = append(fire, t.lost...)
			}
		}
	}

	status := t.statusLocked()
	var statusFns []func(reconnect.Status)
	if status != t.status {
		t.status = status
		statusFns = append(statusFns, t.statusFn...)
	}
	t.mu.Unlock()

	for _, fn := range statusFns {
		fn(status)
	}
	for _, fn := range fire {
		fn()
	}
}

func (t *tracker) statusLocked() reconnect.Status {
	switch {
	case !t.online:
		return reconnect.StatusOffline
	case t.scoreLocked() < degradedBelow:
		return reconnect.StatusDegraded
	default:
		return reconnect.StatusOnline
	}
}

// scoreLocked is 100 minus a latency penalty of up to 50 (average latency
// relative to the budget) and a failure penalty of up to 50.
func (t *tracker) scoreLocked() int {
	if len(t.results) == 0 {
		return 100
	}

	var hits int
	for _, r := range t.results {
		if r {
			hits++
		}
	}
	failurePenalty := (1 - float64(hits)/float64(len(t.results))) * 50

	var latencyPenalty float64
	if len(t.latencies) > 0 {
		var sum time.Duration
		for _, l := range t.latencies {
			sum += l
		}
		avg := sum / time.Duration(len(t.latencies))
		latencyPenalty = math.Min(50, float64(avg)/float64(t.budget)*50)
	}

	score := int(math.Round(100 - latencyPenalty - failurePenalty))
	return max(0, min(100, score))
}

func pushWindow[T any](w []T, v T) []T {
	if len(w) == sampleWindow {
		copy(w, w[1:])
		w = w[:sampleWindow-1]
	}
	return append(w, v)
}
