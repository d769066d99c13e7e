package reconnect

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"relink/pkg/logger"
)

// Adaptive multiplier steps applied after each attempt outcome.
const (
	successAdjustment = 0.9
	failureAdjustment = 1.1
)

// Option configures a Controller.
type Option func(*Controller)

// WithScheduler sets the time source and timer factory.
func WithScheduler(s Scheduler) Option {
	return func(c *Controller) {
		c.sched = s
	}
}

// WithRand sets the jitter source.
func WithRand(r Rand) Option {
	return func(c *Controller) {
		c.rnd = r
	}
}

// WithLogger sets the controller's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) {
		c.log = l
	}
}

// WithCycleIDs sets the generator for reconnection cycle IDs.
func WithCycleIDs(fn func() string) Option {
	return func(c *Controller) {
		c.newID = fn
	}
}

type pendingTimer struct {
	timer Timer
	seq   uint64
}

// Controller decides whether, when and how to reconnect. All state is owned
// by the controller and guarded by mu; the probe is called with mu released
// and at most one probe call is outstanding.
type Controller struct {
	mu sync.Mutex

	probe Probe
	sched Scheduler
	rnd   Rand
	log   zerolog.Logger
	bus   *Bus
	newID func() string

	cfg      Config
	breaker  *CircuitBreaker
	fallback *FallbackSelector
	metrics  *MetricsRecorder
	quality  *QualityAssessor

	hookOnce sync.Once
	active   bool
	ctx      context.Context
	cancel   context.CancelFunc

	reconnecting  bool
	forced        bool
	inFlight      bool
	phase         Phase
	attempt       int
	strategy      Strategy
	reason        string
	cycleID       string
	cycleStart    time.Time
	cycleGen      uint64
	lastAttemptAt time.Time
	nextAttemptAt time.Time
	adaptive      float64

	seq           uint64
	attemptTimer  *pendingTimer
	fallbackTimer *pendingTimer
	qualityTimer  *pendingTimer

	pending []Event
}

// NewController creates a stopped controller for probe.
func NewController(probe Probe, cfg Config, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Controller{
		probe:    probe,
		cfg:      cfg.clone(),
		breaker:  NewCircuitBreaker(cfg.CircuitBreakerThreshold, CircuitResetWindow),
		fallback: NewFallbackSelector(cfg.FallbackStrategies),
		metrics:  NewMetricsRecorder(),
		phase:    PhaseIdle,
		adaptive: 1.0,
		newID:    uuid.NewString,
		log:      logger.Component("reconnect"),
	}
	c.quality = NewQualityAssessor(c.metrics)

	for _, opt := range opts {
		opt(c)
	}
	if c.sched == nil {
		c.sched = NewClockScheduler(nil)
	}
	if c.rnd == nil {
		now := uint64(time.Now().UnixNano())
		c.rnd = rand.New(rand.NewPCG(now, now>>1))
	}
	c.bus = NewBus(c.log)
	c.strategy = c.fallback.Current()

	return c, nil
}

// Start arms the quality tick and begins reacting to probe signals.
// ctx bounds every probe call made by scheduled attempts.
func (c *Controller) Start(ctx context.Context) error {
	c.hookOnce.Do(c.hookProbe)

	c.mu.Lock()
	defer c.unlock()

	if c.active {
		return ErrAlreadyStarted
	}
	c.active = true
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.armLocked(&c.qualityTimer, c.cfg.QualityInterval, c.onQualityTimer)

	c.log.Info().
		Int("max_attempts", c.cfg.MaxAttempts).
		Dur("base_delay", c.cfg.BaseDelay).
		Dur("max_delay", c.cfg.MaxDelay).
		Msg("Reconnection controller started")
	return nil
}

// Stop cancels every pending timer and returns the controller to idle.
// A probe call still in flight completes but its result is discarded.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.unlock()

	if !c.active {
		return
	}
	c.active = false
	c.cancel()

	c.cancelLocked(&c.attemptTimer)
	c.cancelLocked(&c.fallbackTimer)
	c.cancelLocked(&c.qualityTimer)

	c.endCycleLocked()
	c.breaker.Reset()
	c.fallback.Deactivate()
	c.strategy = c.fallback.Current()
	c.metrics.ClearRolling()

	c.log.Info().Msg("Reconnection controller stopped")
}

// IsReconnecting reports whether a reconnection cycle is running.
func (c *Controller) IsReconnecting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnecting
}

// State returns a snapshot of the reconnection state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	var next time.Duration
	if !c.nextAttemptAt.IsZero() {
		next = max(0, c.nextAttemptAt.Sub(c.sched.Now()))
	}
	bs := c.breaker.State()
	return State{
		Phase:                   c.phase,
		IsReconnecting:          c.reconnecting,
		CurrentAttempt:          c.attempt,
		NextAttemptIn:           next,
		LastAttemptAt:           c.lastAttemptAt,
		Strategy:                c.strategy,
		Reason:                  c.reason,
		CycleID:                 c.cycleID,
		CircuitBreakerOpen:      bs.Open(),
		Breaker:                 bs,
		FallbackModeActive:      c.fallback.Active(),
		AdaptiveDelayMultiplier: c.adaptive,
	}
}

// Metrics returns a snapshot of the cumulative counters.
func (c *Controller) Metrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics.Snapshot()
}

// Config returns a copy of the active configuration.
func (c *Controller) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.clone()
}

// UpdateConfig applies a partial configuration. Changes take effect from the
// next scheduled attempt.
func (c *Controller) UpdateConfig(patch ConfigPatch) error {
	c.mu.Lock()
	defer c.unlock()

	next := patch.Apply(c.cfg)
	if err := next.Validate(); err != nil {
		return err
	}
	c.applyConfigLocked(next)
	c.log.Info().Msg("Reconnection config updated")
	return nil
}

// ForceReconnect runs one immediate attempt and reports whether it
// succeeded. It returns false without probing when the request is rejected;
// see RequestReconnect.
func (c *Controller) ForceReconnect(ctx context.Context, reason string) bool {
	ok, _ := c.RequestReconnect(ctx, reason)
	return ok
}

// RequestReconnect is ForceReconnect with the rejection reason: ErrNotStarted
// when the controller is stopped, ErrAttemptInFlight when a probe call is
// running. A scheduled attempt that has not fired yet is cancelled. A
// completed attempt reports its outcome with a nil error.
func (c *Controller) RequestReconnect(ctx context.Context, reason string) (bool, error) {
	c.mu.Lock()
	defer c.unlock()

	if !c.active {
		return false, ErrNotStarted
	}
	if c.inFlight || (c.reconnecting && c.attemptTimer == nil) {
		c.log.Debug().Str("reason", reason).Msg("Force reconnect rejected, attempt in flight")
		return false, ErrAttemptInFlight
	}

	c.cancelLocked(&c.attemptTimer)
	c.cancelLocked(&c.fallbackTimer)
	c.reconnecting = false

	c.openCycleLocked(reason, StrategyImmediate, true)
	c.attempt = 1
	c.log.Info().Str("cycle_id", c.cycleID).Str("reason", reason).Msg("Forced reconnection")
	return c.performLocked(ctx), nil
}

// AssessQuality reads the probe's quality signal, starts a cycle when the
// connection is lost or badly degraded, and retunes the policy when adaptive
// mode is on.
func (c *Controller) AssessQuality() QualitySignal {
	online := c.probe.IsOnline()
	score := min(100, max(0, c.probe.QualityScore()))

	c.mu.Lock()
	defer c.unlock()

	sig := c.quality.Assess(online, score, c.reconnecting, c.cfg)
	if sig.Triggered {
		sig.Triggered = c.beginCycleLocked(sig.Reason)
	}

	if tuned, changed := c.quality.Retune(score, c.cfg); changed {
		c.log.Info().
			Int("quality_score", score).
			Dur("base_delay", tuned.BaseDelay).
			Int("max_attempts", tuned.MaxAttempts).
			Msg("Reconnection policy retuned")
		c.applyConfigLocked(tuned)
		sig.Retuned = true
	}
	return sig
}

// OnStart registers fn for attempt starts.
func (c *Controller) OnStart(fn func(attempt int)) (unsubscribe func()) {
	return c.bus.On(EventStart, func(ev Event) { fn(ev.Attempt) })
}

// OnSuccess registers fn for successful reconnections.
func (c *Controller) OnSuccess(fn func()) (unsubscribe func()) {
	return c.bus.On(EventSuccess, func(Event) { fn() })
}

// OnFailure registers fn for failed attempts.
func (c *Controller) OnFailure(fn func(attempt int, err error)) (unsubscribe func()) {
	return c.bus.On(EventFailure, func(ev Event) { fn(ev.Attempt, ev.Err) })
}

// OnMaxAttemptsReached registers fn for cycle exhaustion.
func (c *Controller) OnMaxAttemptsReached(fn func()) (unsubscribe func()) {
	return c.bus.On(EventMaxAttemptsReached, func(Event) { fn() })
}

// OnCircuitBreakerOpen registers fn for breaker openings.
func (c *Controller) OnCircuitBreakerOpen(fn func()) (unsubscribe func()) {
	return c.bus.On(EventCircuitBreakerOpen, func(Event) { fn() })
}

// OnFallbackMode registers fn for fallback mode changes.
func (c *Controller) OnFallbackMode(fn func(active bool)) (unsubscribe func()) {
	return c.bus.On(EventFallbackMode, func(ev Event) { fn(ev.FallbackActive) })
}

// Subscribe registers fn for every event.
func (c *Controller) Subscribe(fn func(Event)) (unsubscribe func()) {
	return c.bus.Subscribe(fn)
}

func (c *Controller) hookProbe() {
	c.probe.OnConnectionLost(c.handleConnectionLost)
	c.probe.OnReconnected(c.handleReconnected)
	c.probe.OnStatusChange(func(s Status) {
		c.log.Debug().Str("status", string(s)).Msg("Probe status changed")
	})
}

func (c *Controller) handleConnectionLost() {
	c.mu.Lock()
	defer c.unlock()
	c.beginCycleLocked("connection lost")
}

// handleReconnected treats transport recovery during a cycle as a success
// without probing again.
func (c *Controller) handleReconnected() {
	c.mu.Lock()
	defer c.unlock()

	if !c.active || !c.reconnecting {
		return
	}
	c.log.Info().Str("cycle_id", c.cycleID).Msg("Connection restored by transport")
	c.succeedLocked(nil)
}

func (c *Controller) onAttemptTimer(seq uint64) {
	c.mu.Lock()
	defer c.unlock()

	if !c.active || c.attemptTimer == nil || c.attemptTimer.seq != seq {
		return
	}
	c.attemptTimer = nil

	if c.inFlight {
		// A superseded probe call has not returned yet.
		c.armLocked(&c.attemptTimer, c.cfg.BaseDelay, c.onAttemptTimer)
		return
	}

	c.attempt++
	if c.attempt > c.cfg.MaxAttempts {
		c.attempt = c.cfg.MaxAttempts
		c.maxAttemptsReachedLocked(true)
		return
	}
	c.performLocked(c.ctx)
}

func (c *Controller) onFallbackTimer(seq uint64) {
	c.mu.Lock()
	defer c.unlock()

	if !c.active || c.fallbackTimer == nil || c.fallbackTimer.seq != seq {
		return
	}
	c.fallbackTimer = nil
	if c.reconnecting || c.inFlight {
		return
	}

	c.openCycleLocked("fallback attempt", c.fallback.Current(), false)
	c.attempt = 1
	c.performLocked(c.ctx)
}

func (c *Controller) onQualityTimer(seq uint64) {
	c.mu.Lock()
	if !c.active || c.qualityTimer == nil || c.qualityTimer.seq != seq {
		c.unlock()
		return
	}
	c.qualityTimer = nil
	interval := c.cfg.QualityInterval
	c.unlock()

	sig := c.AssessQuality()

	c.mu.Lock()
	defer c.unlock()
	if !c.active {
		return
	}
	if sig.IsOnline {
		c.metrics.AddUptime(interval)
	}
	c.armLocked(&c.qualityTimer, c.cfg.QualityInterval, c.onQualityTimer)
}

// beginCycleLocked moves Idle to Scheduled. It is a no-op while a cycle runs.
func (c *Controller) beginCycleLocked(reason string) bool {
	if !c.active || c.reconnecting {
		return false
	}
	c.cancelLocked(&c.fallbackTimer)
	c.openCycleLocked(reason, c.fallback.Current(), false)
	c.log.Info().Str("cycle_id", c.cycleID).Str("reason", reason).Msg("Reconnection cycle started")
	c.scheduleNextLocked()
	return true
}

func (c *Controller) openCycleLocked(reason string, strategy Strategy, forced bool) {
	c.reconnecting = true
	c.forced = forced
	c.cycleGen++
	c.cycleID = c.newID()
	c.cycleStart = c.sched.Now()
	c.reason = reason
	c.strategy = strategy
	c.attempt = 0
}

func (c *Controller) endCycleLocked() {
	c.cancelLocked(&c.attemptTimer)
	c.reconnecting = false
	c.forced = false
	c.attempt = 0
	c.phase = PhaseIdle
	c.cycleGen++
	c.nextAttemptAt = time.Time{}
	c.strategy = c.fallback.Current()
}

func (c *Controller) scheduleNextLocked() {
	var delay time.Duration
	if c.breaker.IsOpen() {
		delay = c.breaker.ResetWindow()
	} else {
		delay = Delay(c.attempt+1, c.strategy, c.cfg, c.adaptive, c.rnd)
	}

	c.phase = PhaseScheduled
	c.nextAttemptAt = c.sched.Now().Add(delay)
	c.armLocked(&c.attemptTimer, delay, c.onAttemptTimer)

	c.log.Debug().
		Str("cycle_id", c.cycleID).
		Int("next_attempt", c.attempt+1).
		Str("strategy", string(c.strategy)).
		Dur("delay", delay).
		Bool("circuit_open", c.breaker.IsOpen()).
		Msg("Reconnection attempt scheduled")
}

// performLocked runs one attempt. It is called with mu held, releases it
// around the probe call and returns with mu held again.
func (c *Controller) performLocked(ctx context.Context) bool {
	now := c.sched.Now()
	if c.breaker.CooledDown(now) {
		c.resetBreakerLocked()
	}

	gen := c.cycleGen
	attempt := c.attempt
	cycleID := c.cycleID
	c.phase = PhaseAttempting
	c.inFlight = true
	c.lastAttemptAt = now
	c.nextAttemptAt = time.Time{}
	c.emitLocked(Event{Kind: EventStart, Attempt: attempt, Reason: c.reason, Strategy: c.strategy})

	c.unlock()
	ok, err := c.check(ctx)
	latency := c.sched.Now().Sub(now)
	c.mu.Lock()

	c.inFlight = false
	if !c.active || gen != c.cycleGen {
		c.log.Debug().Str("cycle_id", cycleID).Int("attempt", attempt).Msg("Discarding superseded attempt result")
		return false
	}
	if ok {
		c.succeedLocked(&latency)
		return true
	}
	if err == nil {
		err = ErrHealthCheckFailed
	}
	c.failLocked(&AttemptError{CycleID: cycleID, Attempt: attempt, Cause: err}, latency)
	return false
}

func (c *Controller) check(ctx context.Context) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("health check panicked: %v", r)
		}
	}()
	return c.probe.PerformHealthCheck(ctx)
}

func (c *Controller) succeedLocked(latency *time.Duration) {
	now := c.sched.Now()
	o := Outcome{Success: true, ReconnectionTime: now.Sub(c.cycleStart), At: now}
	if latency != nil {
		o.Latency, o.HasLatency = *latency, true
	}
	c.metrics.Record(o)
	c.breaker.Reset()
	if c.cfg.AdaptiveEnabled {
		c.adaptive = clampMultiplier(c.adaptive * successAdjustment)
	}

	c.emitLocked(Event{Kind: EventSuccess, Attempt: c.attempt, Reason: c.reason, Strategy: c.strategy})
	if c.fallback.Deactivate() {
		c.emitLocked(Event{Kind: EventFallbackMode, FallbackActive: false, Strategy: c.fallback.Current()})
	}

	c.log.Info().
		Str("cycle_id", c.cycleID).
		Int("attempt", c.attempt).
		Dur("reconnection_time", o.ReconnectionTime).
		Msg("Reconnected")
	c.endCycleLocked()
}

func (c *Controller) failLocked(err *AttemptError, latency time.Duration) {
	now := c.sched.Now()
	c.metrics.Record(Outcome{Success: false, Latency: latency, HasLatency: true, At: now})
	opened := c.breaker.RecordFailure(now)
	immediate := c.strategy == StrategyImmediate
	if c.cfg.AdaptiveEnabled {
		c.adaptive = clampMultiplier(c.adaptive * failureAdjustment)
	}

	c.emitLocked(Event{Kind: EventFailure, Attempt: err.Attempt, Reason: c.reason, Strategy: c.strategy, Err: err})
	c.log.Warn().Err(err.Cause).Str("cycle_id", err.CycleID).Int("attempt", err.Attempt).Msg("Reconnection attempt failed")

	if opened {
		c.emitLocked(Event{Kind: EventCircuitBreakerOpen, Attempt: err.Attempt})
		c.log.Warn().
			Int("consecutive_failures", c.breaker.State().ConsecutiveFailures).
			Msg("Circuit breaker opened")
		c.escalateLocked(TriggerCircuitBreaker)
	}

	// At most one escalation per failed attempt.
	switch {
	case c.forced:
		c.endCycleLocked()
	case c.attempt >= c.cfg.MaxAttempts:
		c.maxAttemptsReachedLocked(!opened)
	case immediate:
		// Immediate attempts are never retried inside their cycle. The next
		// one waits for the fallback timer.
		c.log.Info().Str("cycle_id", c.cycleID).Msg("Immediate attempt failed, waiting for fallback attempt")
		c.endCycleLocked()
		c.armFallbackLocked()
	default:
		c.scheduleNextLocked()
	}
}

func (c *Controller) maxAttemptsReachedLocked(escalate bool) {
	c.emitLocked(Event{Kind: EventMaxAttemptsReached, Attempt: c.attempt, Reason: c.reason, Strategy: c.strategy})
	c.log.Warn().Str("cycle_id", c.cycleID).Int("attempts", c.attempt).Msg("Max reconnection attempts reached")

	if escalate {
		c.escalateLocked(TriggerMaxAttempts)
	}
	c.endCycleLocked()
	c.armFallbackLocked()
}

// armFallbackLocked leaves the controller idle with one attempt due after
// twice the maximum delay.
func (c *Controller) armFallbackLocked() {
	delay := 2 * c.cfg.MaxDelay
	c.phase = PhaseFallbackPending
	c.nextAttemptAt = c.sched.Now().Add(delay)
	c.armLocked(&c.fallbackTimer, delay, c.onFallbackTimer)
}

func (c *Controller) escalateLocked(trigger EscalationTrigger) {
	activated := c.fallback.Escalate(trigger)
	if !c.forced {
		c.strategy = c.fallback.Current()
	}
	if activated {
		c.emitLocked(Event{Kind: EventFallbackMode, FallbackActive: true, Strategy: c.fallback.Current()})
	}
	c.log.Warn().
		Str("trigger", string(trigger)).
		Str("strategy", string(c.fallback.Current())).
		Msg("Fallback strategy escalated")
}

func (c *Controller) resetBreakerLocked() {
	c.breaker.Reset()
	c.log.Info().Msg("Circuit breaker reset after cooldown")
	if c.fallback.DeactivateIfTriggeredBy(TriggerCircuitBreaker) {
		if !c.forced {
			c.strategy = c.fallback.Current()
		}
		c.emitLocked(Event{Kind: EventFallbackMode, FallbackActive: false, Strategy: c.fallback.Current()})
	}
}

func (c *Controller) applyConfigLocked(cfg Config) {
	c.cfg = cfg
	// A lowered limit ends the running cycle at its next attempt.
	c.attempt = min(c.attempt, cfg.MaxAttempts)
	c.breaker.SetThreshold(cfg.CircuitBreakerThreshold)
	c.fallback.SetStrategies(cfg.FallbackStrategies)
	if !c.reconnecting {
		c.strategy = c.fallback.Current()
	}
}

func (c *Controller) armLocked(slot **pendingTimer, d time.Duration, fn func(seq uint64)) {
	c.cancelLocked(slot)
	c.seq++
	seq := c.seq
	t := c.sched.AfterFunc(d, func() { fn(seq) })
	*slot = &pendingTimer{timer: t, seq: seq}
}

func (c *Controller) cancelLocked(slot **pendingTimer) {
	if *slot != nil {
		(*slot).timer.Stop()
		*slot = nil
	}
}

// emitLocked queues ev for delivery once mu is released.
func (c *Controller) emitLocked(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = c.sched.Now()
	}
	if ev.CycleID == "" {
		ev.CycleID = c.cycleID
	}
	c.pending = append(c.pending, ev)
}

// unlock releases mu and then delivers queued events, so listeners may call
// back into the controller.
func (c *Controller) unlock() {
	events := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, ev := range events {
		c.bus.Publish(ev)
	}
}
