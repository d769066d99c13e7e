package reconnect

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// manualScheduler runs timer callbacks synchronously from Advance so
// controller tests step through virtual time deterministically.
type manualScheduler struct {
	mu     sync.Mutex
	clock  *clockwork.FakeClock
	timers []*manualTimer
}

type manualTimer struct {
	s       *manualScheduler
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{
		clock: clockwork.NewFakeClockAt(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
	}
}

func (s *manualScheduler) Now() time.Time {
	return s.clock.Now()
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{s: s, at: s.clock.Now().Add(d), fn: f}
	s.timers = append(s.timers, t)
	return t
}

// Advance moves time forward by d, firing due timers in order. Timers armed
// by callbacks fire in the same call when they fall within the window.
func (s *manualScheduler) Advance(d time.Duration) {
	target := s.clock.Now().Add(d)
	for {
		s.mu.Lock()
		var next *manualTimer
		for _, t := range s.timers {
			if t.stopped || t.fired || t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}
		if next == nil {
			s.mu.Unlock()
			break
		}
		next.fired = true
		if now := s.clock.Now(); next.at.After(now) {
			s.clock.Advance(next.at.Sub(now))
		}
		s.mu.Unlock()
		next.fn()
	}
	if now := s.clock.Now(); target.After(now) {
		s.clock.Advance(target.Sub(now))
	}
}

// pendingCount is the number of live timers.
func (s *manualScheduler) pendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

var errProbe = errors.New("probe: connection refused")

// fakeProbe is a scripted Probe.
type fakeProbe struct {
	mu       sync.Mutex
	online   bool
	score    int
	results  []bool
	fallback bool
	err      error
	calls    int
	onCheck  func()

	lost     []func()
	restored []func()
	status   []func(Status)
}

func newFakeProbe() *fakeProbe {
	return &fakeProbe{online: true, score: 100}
}

func (p *fakeProbe) IsOnline() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online
}

func (p *fakeProbe) QualityScore() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.score
}

func (p *fakeProbe) PerformHealthCheck(ctx context.Context) (bool, error) {
	p.mu.Lock()
	p.calls++
	hook := p.onCheck
	ok := p.fallback
	if len(p.results) > 0 {
		ok = p.results[0]
		p.results = p.results[1:]
	}
	err := p.err
	p.mu.Unlock()

	if hook != nil {
		hook()
	}
	if ok {
		return true, nil
	}
	return false, err
}

func (p *fakeProbe) OnConnectionLost(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lost = append(p.lost, fn)
}

func (p *fakeProbe) OnReconnected(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.restored = append(p.restored, fn)
}

func (p *fakeProbe) OnStatusChange(fn func(Status)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = append(p.status, fn)
}

func (p *fakeProbe) set(online bool, score int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online = online
	p.score = score
}

// script queues health check results; once drained every check returns fallback.
func (p *fakeProbe) script(fallback bool, results ...bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fallback = fallback
	p.results = append([]bool(nil), results...)
}

func (p *fakeProbe) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *fakeProbe) loseConnection() {
	p.mu.Lock()
	p.online = false
	fns := append([]func(){}, p.lost...)
	p.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (p *fakeProbe) restoreConnection() {
	p.mu.Lock()
	p.online = true
	fns := append([]func(){}, p.restored...)
	p.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// testConfig has jitter and adaptation off so delays are exact.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxAttempts = 3
	cfg.BaseDelay = 1 * time.Second
	cfg.MaxDelay = 4 * time.Second
	cfg.Multiplier = 2
	cfg.JitterEnabled = false
	cfg.AdaptiveEnabled = false
	cfg.QualityInterval = time.Hour
	return cfg
}

type harness struct {
	ctrl  *Controller
	probe *fakeProbe
	sched *manualScheduler
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	probe := newFakeProbe()
	sched := newManualScheduler()
	var n int
	ctrl, err := NewController(probe, cfg,
		WithScheduler(sched),
		WithRand(rand.New(rand.NewPCG(1, 2))),
		WithLogger(zerolog.Nop()),
		WithCycleIDs(func() string {
			n++
			return fmt.Sprintf("cycle-%d", n)
		}),
	)
	require.NoError(t, err)
	require.NoError(t, ctrl.Start(context.Background()))
	t.Cleanup(ctrl.Stop)
	return &harness{ctrl: ctrl, probe: probe, sched: sched}
}

// advanceToNext fires the next pending attempt.
func (h *harness) advanceToNext(t *testing.T) {
	t.Helper()
	st := h.ctrl.State()
	require.Contains(t, []Phase{PhaseScheduled, PhaseFallbackPending}, st.Phase)
	h.sched.Advance(st.NextAttemptIn)
}

// fixedRand returns the same value for every draw.
type fixedRand float64

func (r fixedRand) Float64() float64 { return float64(r) }
