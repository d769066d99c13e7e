package reconnect

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventLog struct {
	events []Event
}

func (l *eventLog) kinds() []EventKind {
	out := make([]EventKind, 0, len(l.events))
	for _, ev := range l.events {
		out = append(out, ev.Kind)
	}
	return out
}

func (h *harness) record() *eventLog {
	l := &eventLog{}
	h.ctrl.Subscribe(func(ev Event) { l.events = append(l.events, ev) })
	return l
}

func TestNewControllerRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttempts = 0

	_, err := NewController(newFakeProbe(), cfg, WithLogger(zerolog.Nop()))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestStartTwice(t *testing.T) {
	h := newHarness(t, testConfig())
	assert.ErrorIs(t, h.ctrl.Start(context.Background()), ErrAlreadyStarted)
}

func TestHappyPathReconnect(t *testing.T) {
	h := newHarness(t, testConfig())
	log := h.record()
	start := h.sched.Now()
	h.probe.script(true)

	h.probe.loseConnection()

	st := h.ctrl.State()
	assert.Equal(t, PhaseScheduled, st.Phase)
	assert.True(t, st.IsReconnecting)
	assert.Equal(t, 1*time.Second, st.NextAttemptIn)
	assert.Equal(t, "connection lost", st.Reason)
	assert.Equal(t, "cycle-1", st.CycleID)
	assert.Equal(t, StrategyExponential, st.Strategy)

	h.sched.Advance(400 * time.Millisecond)
	assert.Equal(t, 600*time.Millisecond, h.ctrl.State().NextAttemptIn)

	h.advanceToNext(t)

	st = h.ctrl.State()
	assert.Equal(t, PhaseIdle, st.Phase)
	assert.False(t, h.ctrl.IsReconnecting())
	assert.Equal(t, start.Add(time.Second), st.LastAttemptAt)
	assert.Equal(t, []EventKind{EventStart, EventSuccess}, log.kinds())
	for _, ev := range log.events {
		assert.Equal(t, "cycle-1", ev.CycleID)
	}

	m := h.ctrl.Metrics()
	assert.Equal(t, 1, m.TotalAttempts)
	assert.Equal(t, 1, m.SuccessfulReconnections)
	assert.Equal(t, time.Second, m.AverageReconnectionTime)
	assert.Equal(t, start.Add(time.Second), m.LastSuccessAt)
	assert.Equal(t, 1, h.sched.pendingCount(), "only the quality tick remains")
}

func TestConnectionLostIsIgnoredDuringCycle(t *testing.T) {
	h := newHarness(t, testConfig())
	h.probe.script(false)

	h.probe.loseConnection()
	h.sched.Advance(500 * time.Millisecond)
	h.probe.loseConnection()

	st := h.ctrl.State()
	assert.Equal(t, "cycle-1", st.CycleID)
	assert.Equal(t, 500*time.Millisecond, st.NextAttemptIn)
}

func TestExhaustionEscalatesToFallback(t *testing.T) {
	h := newHarness(t, testConfig())
	log := h.record()
	h.probe.script(false)

	h.probe.loseConnection()

	var delays []time.Duration
	for i := 0; i < 3; i++ {
		delays = append(delays, h.ctrl.State().NextAttemptIn)
		h.advanceToNext(t)
	}
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}, delays)

	assert.Equal(t, []EventKind{
		EventStart, EventFailure,
		EventStart, EventFailure,
		EventStart, EventFailure,
		EventMaxAttemptsReached, EventFallbackMode,
	}, log.kinds())
	assert.True(t, log.events[len(log.events)-1].FallbackActive)

	st := h.ctrl.State()
	assert.Equal(t, PhaseFallbackPending, st.Phase)
	assert.False(t, st.IsReconnecting)
	assert.Zero(t, st.CurrentAttempt)
	assert.Equal(t, 8*time.Second, st.NextAttemptIn)
	assert.Equal(t, StrategyLinear, st.Strategy)
	assert.True(t, st.FallbackModeActive)

	h.advanceToNext(t)

	st = h.ctrl.State()
	assert.Equal(t, PhaseScheduled, st.Phase)
	assert.Equal(t, "fallback attempt", st.Reason)
	assert.Equal(t, "cycle-2", st.CycleID)
	assert.Equal(t, StrategyLinear, st.Strategy)
	assert.Equal(t, 1, st.CurrentAttempt)
	assert.Equal(t, 2*time.Second, st.NextAttemptIn)

	var fallback []bool
	h.ctrl.OnFallbackMode(func(active bool) { fallback = append(fallback, active) })
	h.probe.script(true)
	h.advanceToNext(t)

	st = h.ctrl.State()
	assert.Equal(t, PhaseIdle, st.Phase)
	assert.False(t, st.FallbackModeActive)
	assert.Equal(t, StrategyExponential, st.Strategy)
	assert.Equal(t, []bool{false}, fallback)
}

func TestCircuitBreakerOpensAndResets(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttempts = 10
	h := newHarness(t, cfg)
	h.probe.script(false)

	var opened int
	var fallback []bool
	h.ctrl.OnCircuitBreakerOpen(func() { opened++ })
	h.ctrl.OnFallbackMode(func(active bool) { fallback = append(fallback, active) })

	h.probe.loseConnection()
	var delays []time.Duration
	for i := 0; i < 5; i++ {
		delays = append(delays, h.ctrl.State().NextAttemptIn)
		h.advanceToNext(t)
	}
	assert.Equal(t, []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second, 4 * time.Second,
	}, delays)

	st := h.ctrl.State()
	assert.Equal(t, 1, opened)
	assert.True(t, st.CircuitBreakerOpen)
	assert.Equal(t, 5, st.Breaker.ConsecutiveFailures)
	assert.Equal(t, CircuitResetWindow, st.NextAttemptIn)
	assert.Equal(t, StrategyLinear, st.Strategy)
	assert.True(t, st.FallbackModeActive)
	assert.Equal(t, []bool{true}, fallback)

	h.probe.script(true)
	h.advanceToNext(t)

	st = h.ctrl.State()
	assert.Equal(t, PhaseIdle, st.Phase)
	assert.False(t, st.CircuitBreakerOpen)
	assert.Equal(t, BreakerState{}, st.Breaker)
	assert.False(t, st.FallbackModeActive)
	assert.Equal(t, []bool{true, false}, fallback)
	assert.Equal(t, 6, h.probe.callCount())
}

func TestBreakerCooldownThenFailureUsesBackoff(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttempts = 10
	cfg.MaxDelay = 30 * time.Second
	cfg.CircuitBreakerThreshold = 2
	h := newHarness(t, cfg)
	log := h.record()
	h.probe.script(false)

	h.probe.loseConnection()
	h.advanceToNext(t)
	h.advanceToNext(t)

	st := h.ctrl.State()
	require.True(t, st.CircuitBreakerOpen)
	require.Equal(t, CircuitResetWindow, st.NextAttemptIn)
	require.Equal(t, StrategyLinear, st.Strategy)

	h.advanceToNext(t)

	st = h.ctrl.State()
	assert.False(t, st.CircuitBreakerOpen)
	assert.Equal(t, 1, st.Breaker.ConsecutiveFailures)
	assert.False(t, st.FallbackModeActive)
	assert.Equal(t, StrategyExponential, st.Strategy)
	assert.Equal(t, 3, st.CurrentAttempt)
	assert.Equal(t, 8*time.Second, st.NextAttemptIn, "attempt 4 on the exponential curve")

	last := log.events[len(log.events)-1]
	assert.Equal(t, EventFailure, last.Kind)
	assert.Equal(t, StrategyExponential, last.Strategy)
}

func TestBreakerAndExhaustionOnSameFailureEscalateOnce(t *testing.T) {
	cfg := testConfig()
	cfg.CircuitBreakerThreshold = 3
	h := newHarness(t, cfg)
	h.probe.script(false)

	var fallback []bool
	var reached int
	h.ctrl.OnFallbackMode(func(active bool) { fallback = append(fallback, active) })
	h.ctrl.OnMaxAttemptsReached(func() { reached++ })

	h.probe.loseConnection()
	for i := 0; i < 3; i++ {
		h.advanceToNext(t)
	}

	st := h.ctrl.State()
	assert.Equal(t, 1, reached)
	assert.Equal(t, PhaseFallbackPending, st.Phase)
	assert.True(t, st.CircuitBreakerOpen)
	assert.True(t, st.FallbackModeActive)
	assert.Equal(t, StrategyLinear, st.Strategy, "one step down the ladder")
	assert.Equal(t, []bool{true}, fallback)

	// fallback attempt fails while the breaker is still open
	h.advanceToNext(t)
	st = h.ctrl.State()
	require.Equal(t, CircuitResetWindow, st.NextAttemptIn)

	// the breaker turned fallback on, so its cooldown turns it off
	h.advanceToNext(t)
	st = h.ctrl.State()
	assert.False(t, st.CircuitBreakerOpen)
	assert.False(t, st.FallbackModeActive)
	assert.Equal(t, StrategyExponential, st.Strategy)
	assert.Equal(t, 4*time.Second, st.NextAttemptIn)
	assert.Equal(t, []bool{true, false}, fallback)
}

func TestImmediateStrategyFailureWaitsForFallback(t *testing.T) {
	cfg := testConfig()
	cfg.CircuitBreakerThreshold = 100
	h := newHarness(t, cfg)
	h.probe.script(false)

	h.probe.loseConnection()
	// exponential cycle, then the linear fallback cycle, both exhausted
	for i := 0; i < 6; i++ {
		h.advanceToNext(t)
	}
	st := h.ctrl.State()
	require.Equal(t, StrategyImmediate, st.Strategy)
	require.Equal(t, PhaseFallbackPending, st.Phase)
	require.Equal(t, 6, h.probe.callCount())

	h.advanceToNext(t)

	st = h.ctrl.State()
	assert.Equal(t, 7, h.probe.callCount(), "one attempt per immediate cycle")
	assert.Equal(t, "cycle-3", st.CycleID)
	assert.False(t, st.IsReconnecting)
	assert.Equal(t, PhaseFallbackPending, st.Phase)
	assert.Equal(t, 8*time.Second, st.NextAttemptIn)
	assert.True(t, st.FallbackModeActive)

	h.sched.Advance(7 * time.Second)
	assert.Equal(t, 7, h.probe.callCount())

	h.probe.script(true)
	h.sched.Advance(time.Second)
	assert.Equal(t, 8, h.probe.callCount())

	st = h.ctrl.State()
	assert.Equal(t, PhaseIdle, st.Phase)
	assert.False(t, st.FallbackModeActive)
	assert.Equal(t, StrategyExponential, st.Strategy)
}

func TestFailureCarriesAttemptError(t *testing.T) {
	h := newHarness(t, testConfig())
	h.probe.script(false)
	h.probe.err = errProbe

	var errs []error
	var attempts []int
	h.ctrl.OnFailure(func(attempt int, err error) {
		attempts = append(attempts, attempt)
		errs = append(errs, err)
		// listeners run outside the lock
		_ = h.ctrl.State()
	})

	h.probe.loseConnection()
	h.advanceToNext(t)
	h.advanceToNext(t)

	require.Len(t, errs, 2)
	assert.Equal(t, []int{1, 2}, attempts)
	assert.ErrorIs(t, errs[0], errProbe)

	var ae *AttemptError
	require.ErrorAs(t, errs[1], &ae)
	assert.Equal(t, 2, ae.Attempt)
	assert.Equal(t, "cycle-1", ae.CycleID)
}

func TestUnhealthyWithoutErrorReportsSentinel(t *testing.T) {
	h := newHarness(t, testConfig())
	h.probe.script(false)

	var got error
	h.ctrl.OnFailure(func(_ int, err error) { got = err })
	h.probe.loseConnection()
	h.advanceToNext(t)

	assert.ErrorIs(t, got, ErrHealthCheckFailed)
}

func TestPanickingProbeCountsAsFailure(t *testing.T) {
	h := newHarness(t, testConfig())
	h.probe.onCheck = func() { panic("socket gone") }

	var got error
	h.ctrl.OnFailure(func(_ int, err error) { got = err })
	h.probe.loseConnection()
	h.advanceToNext(t)

	require.Error(t, got)
	assert.Contains(t, got.Error(), "socket gone")
	assert.Equal(t, PhaseScheduled, h.ctrl.State().Phase)
}

func TestForceReconnectNotStarted(t *testing.T) {
	probe := newFakeProbe()
	ctrl, err := NewController(probe, testConfig(), WithLogger(zerolog.Nop()), WithScheduler(newManualScheduler()))
	require.NoError(t, err)

	assert.False(t, ctrl.ForceReconnect(context.Background(), "manual"))
	ok, err := ctrl.RequestReconnect(context.Background(), "manual")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.Zero(t, probe.callCount())
}

func TestForceReconnectPreemptsScheduledAttempt(t *testing.T) {
	h := newHarness(t, testConfig())
	log := h.record()
	h.probe.script(true)

	h.probe.loseConnection()
	require.Equal(t, 2, h.sched.pendingCount())

	assert.True(t, h.ctrl.ForceReconnect(context.Background(), "manual"))
	assert.Equal(t, 1, h.probe.callCount())
	assert.Equal(t, 1, h.sched.pendingCount())
	assert.Equal(t, PhaseIdle, h.ctrl.State().Phase)

	require.Len(t, log.events, 2)
	assert.Equal(t, StrategyImmediate, log.events[0].Strategy)
	assert.Equal(t, "manual", log.events[0].Reason)
	assert.Equal(t, "cycle-2", log.events[0].CycleID)

	h.sched.Advance(10 * time.Second)
	assert.Equal(t, 1, h.probe.callCount(), "cancelled attempt never fires")
}

func TestForceReconnectFailureReturnsToIdle(t *testing.T) {
	h := newHarness(t, testConfig())
	h.probe.script(false)

	assert.False(t, h.ctrl.ForceReconnect(context.Background(), "manual"))

	st := h.ctrl.State()
	assert.Equal(t, PhaseIdle, st.Phase)
	assert.False(t, st.IsReconnecting)
	assert.Equal(t, 1, h.ctrl.Metrics().FailedAttempts)
	assert.Equal(t, 1, h.sched.pendingCount())
}

func TestForceReconnectRejectedWhileInFlight(t *testing.T) {
	h := newHarness(t, testConfig())
	h.probe.script(true)

	var nested *bool
	var nestedErr error
	h.probe.onCheck = func() {
		if nested == nil {
			ok, err := h.ctrl.RequestReconnect(context.Background(), "nested")
			nested, nestedErr = &ok, err
		}
	}

	ok, err := h.ctrl.RequestReconnect(context.Background(), "manual")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NotNil(t, nested)
	assert.False(t, *nested)
	assert.ErrorIs(t, nestedErr, ErrAttemptInFlight)
	assert.Equal(t, 1, h.probe.callCount())
}

func TestRequestReconnectFailedAttemptHasNoError(t *testing.T) {
	h := newHarness(t, testConfig())
	h.probe.script(false)

	ok, err := h.ctrl.RequestReconnect(context.Background(), "manual")
	assert.False(t, ok)
	assert.NoError(t, err, "a completed attempt is not a rejection")
}

func TestForceReconnectCancelsFallbackTimer(t *testing.T) {
	h := newHarness(t, testConfig())
	h.probe.script(false)
	h.probe.loseConnection()
	for i := 0; i < 3; i++ {
		h.advanceToNext(t)
	}
	require.Equal(t, PhaseFallbackPending, h.ctrl.State().Phase)

	h.probe.script(true)
	assert.True(t, h.ctrl.ForceReconnect(context.Background(), "manual"))

	st := h.ctrl.State()
	assert.Equal(t, PhaseIdle, st.Phase)
	assert.False(t, st.FallbackModeActive)
	assert.Equal(t, 1, h.sched.pendingCount())
}

func TestRestoredSignalEndsCycle(t *testing.T) {
	h := newHarness(t, testConfig())
	log := h.record()

	h.probe.restoreConnection()
	assert.Empty(t, log.events, "ignored while idle")

	h.probe.loseConnection()
	h.sched.Advance(300 * time.Millisecond)
	h.probe.restoreConnection()

	assert.Equal(t, []EventKind{EventSuccess}, log.kinds())
	assert.Equal(t, PhaseIdle, h.ctrl.State().Phase)
	assert.Zero(t, h.probe.callCount())

	m := h.ctrl.Metrics()
	assert.Equal(t, 1, m.SuccessfulReconnections)
	assert.Equal(t, 300*time.Millisecond, m.AverageReconnectionTime)
	assert.Equal(t, 1, h.sched.pendingCount())
}

func TestRestoredSignalDuringAttemptDiscardsResult(t *testing.T) {
	h := newHarness(t, testConfig())
	log := h.record()
	h.probe.script(false)

	restored := false
	h.probe.onCheck = func() {
		if !restored {
			restored = true
			h.probe.restoreConnection()
		}
	}

	h.probe.loseConnection()
	h.advanceToNext(t)

	assert.Equal(t, []EventKind{EventStart, EventSuccess}, log.kinds())
	m := h.ctrl.Metrics()
	assert.Equal(t, 1, m.TotalAttempts)
	assert.Zero(t, m.FailedAttempts)
	assert.Equal(t, PhaseIdle, h.ctrl.State().Phase)
}

func TestStopCancelsEverything(t *testing.T) {
	h := newHarness(t, testConfig())
	h.probe.script(false)
	h.probe.loseConnection()
	h.advanceToNext(t)

	h.ctrl.Stop()

	st := h.ctrl.State()
	assert.Equal(t, PhaseIdle, st.Phase)
	assert.False(t, st.IsReconnecting)
	assert.False(t, st.CircuitBreakerOpen)
	assert.Zero(t, h.sched.pendingCount())

	h.probe.loseConnection()
	assert.False(t, h.ctrl.IsReconnecting(), "signals ignored while stopped")
	assert.False(t, h.ctrl.ForceReconnect(context.Background(), "manual"))

	require.NoError(t, h.ctrl.Start(context.Background()))
	assert.Equal(t, 1, h.sched.pendingCount())
	assert.Equal(t, 1, h.ctrl.Metrics().FailedAttempts, "cumulative counters survive restart")
}

func TestUpdateConfig(t *testing.T) {
	h := newHarness(t, testConfig())

	bad := 0
	err := h.ctrl.UpdateConfig(ConfigPatch{MaxAttempts: &bad})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Equal(t, 3, h.ctrl.Config().MaxAttempts, "rejected patch leaves config unchanged")

	base := 2 * time.Second
	require.NoError(t, h.ctrl.UpdateConfig(ConfigPatch{BaseDelay: &base}))
	assert.Equal(t, 2*time.Second, h.ctrl.Config().BaseDelay)

	h.probe.script(false)
	h.probe.loseConnection()
	assert.Equal(t, 2*time.Second, h.ctrl.State().NextAttemptIn)
}

func TestLoweredMaxAttemptsBoundsCycle(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttempts = 5
	h := newHarness(t, cfg)
	h.probe.script(false)

	var reached int
	h.ctrl.OnMaxAttemptsReached(func() { reached++ })

	h.probe.loseConnection()
	h.advanceToNext(t)

	one := 1
	require.NoError(t, h.ctrl.UpdateConfig(ConfigPatch{MaxAttempts: &one}))
	h.advanceToNext(t)

	assert.Equal(t, 1, h.probe.callCount())
	assert.Equal(t, 1, reached)
	assert.Equal(t, PhaseFallbackPending, h.ctrl.State().Phase)
}

func TestLoweredMaxAttemptsClampsCurrentAttempt(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttempts = 5
	cfg.MaxDelay = 30 * time.Second
	h := newHarness(t, cfg)
	h.probe.script(false)

	h.probe.loseConnection()
	for i := 0; i < 3; i++ {
		h.advanceToNext(t)
	}
	require.Equal(t, 3, h.ctrl.State().CurrentAttempt)

	two := 2
	require.NoError(t, h.ctrl.UpdateConfig(ConfigPatch{MaxAttempts: &two}))

	st := h.ctrl.State()
	assert.Equal(t, 2, st.CurrentAttempt)
	assert.LessOrEqual(t, st.CurrentAttempt, h.ctrl.Config().MaxAttempts)

	h.advanceToNext(t)
	assert.Equal(t, 3, h.probe.callCount(), "no attempt past the lowered limit")
	assert.Equal(t, PhaseFallbackPending, h.ctrl.State().Phase)
}

func TestAssessQualityOffline(t *testing.T) {
	h := newHarness(t, testConfig())
	h.probe.set(false, 0)

	sig := h.ctrl.AssessQuality()
	assert.True(t, sig.Triggered)
	assert.Equal(t, "connection lost", sig.Reason)
	assert.True(t, h.ctrl.IsReconnecting())

	assert.False(t, h.ctrl.AssessQuality().Triggered, "cycle already running")
}

func TestAssessQualityProactiveTrigger(t *testing.T) {
	h := newHarness(t, testConfig())
	recordN(h.ctrl.metrics, 5, false, time.Millisecond)
	h.probe.set(true, 25)

	sig := h.ctrl.AssessQuality()
	assert.True(t, sig.Triggered)
	assert.Contains(t, sig.Reason, "25")

	st := h.ctrl.State()
	assert.Equal(t, PhaseScheduled, st.Phase)
	assert.Equal(t, sig.Reason, st.Reason)
}

func TestAssessQualityClampsScore(t *testing.T) {
	h := newHarness(t, testConfig())

	h.probe.set(true, 150)
	assert.Equal(t, 100, h.ctrl.AssessQuality().QualityScore)

	h.probe.set(true, -3)
	assert.Zero(t, h.ctrl.AssessQuality().QualityScore)
}

func TestAssessQualityRetunes(t *testing.T) {
	cfg := testConfig()
	cfg.AdaptiveEnabled = true
	h := newHarness(t, cfg)
	recordN(h.ctrl.metrics, 5, true, time.Millisecond)
	h.probe.set(true, 95)

	sig := h.ctrl.AssessQuality()
	assert.True(t, sig.Retuned)
	assert.False(t, sig.Triggered)

	got := h.ctrl.Config()
	assert.Equal(t, 1200*time.Millisecond, got.BaseDelay)
	assert.Equal(t, 5, got.MaxAttempts)
}

func TestQualityTickAccumulatesUptime(t *testing.T) {
	h := newHarness(t, testConfig())

	h.sched.Advance(time.Hour)
	assert.Equal(t, time.Hour, h.ctrl.Metrics().CumulativeUptime)
	assert.Equal(t, 1, h.sched.pendingCount(), "tick re-armed")

	h.probe.set(false, 0)
	h.sched.Advance(time.Hour)
	assert.Equal(t, time.Hour, h.ctrl.Metrics().CumulativeUptime, "no uptime while offline")
	assert.True(t, h.ctrl.IsReconnecting())
}

func TestAdaptiveMultiplier(t *testing.T) {
	cfg := testConfig()
	cfg.AdaptiveEnabled = true
	h := newHarness(t, cfg)
	h.probe.script(true, false)

	h.probe.loseConnection()
	h.advanceToNext(t)
	assert.InDelta(t, 1.1, h.ctrl.State().AdaptiveDelayMultiplier, 1e-9)
	assert.Equal(t, 2200*time.Millisecond, h.ctrl.State().NextAttemptIn)

	h.advanceToNext(t)
	assert.InDelta(t, 0.99, h.ctrl.State().AdaptiveDelayMultiplier, 1e-9)
}

func TestAdaptiveMultiplierOffStaysAtOne(t *testing.T) {
	h := newHarness(t, testConfig())
	h.probe.script(false)

	h.probe.loseConnection()
	h.advanceToNext(t)
	assert.Equal(t, 1.0, h.ctrl.State().AdaptiveDelayMultiplier)
}

func TestOnStartUnsubscribe(t *testing.T) {
	h := newHarness(t, testConfig())
	h.probe.script(false)

	var starts []int
	off := h.ctrl.OnStart(func(attempt int) { starts = append(starts, attempt) })

	h.probe.loseConnection()
	h.advanceToNext(t)
	off()
	h.advanceToNext(t)

	assert.Equal(t, []int{1}, starts)
}
