package reconnect

// EscalationTrigger names what caused fallback escalation.
type EscalationTrigger string

const (
	TriggerCircuitBreaker EscalationTrigger = "circuit_breaker"
	TriggerMaxAttempts    EscalationTrigger = "max_attempts"
)

// FallbackSelector walks the configured strategy ladder when failures persist.
type FallbackSelector struct {
	strategies  []Strategy
	current     Strategy
	active      bool
	activatedBy EscalationTrigger
}

// NewFallbackSelector starts at the first entry of strategies.
func NewFallbackSelector(strategies []Strategy) *FallbackSelector {
	f := &FallbackSelector{}
	f.SetStrategies(strategies)
	return f
}

// SetStrategies replaces the ladder. The current strategy is kept when it is
// still part of the ladder, otherwise the selector restarts at the first entry.
func (f *FallbackSelector) SetStrategies(strategies []Strategy) {
	f.strategies = append([]Strategy(nil), strategies...)
	if f.indexOf(f.current) < 0 {
		f.current = f.first()
	}
}

// Escalate advances to the next strategy, wrapping around, and returns true
// when fallback mode was inactive before the call. The trigger that turned
// fallback mode on is kept until deactivation.
func (f *FallbackSelector) Escalate(trigger EscalationTrigger) bool {
	if len(f.strategies) > 0 {
		i := f.indexOf(f.current)
		f.current = f.strategies[(i+1)%len(f.strategies)]
	}

	if f.active {
		return false
	}
	f.active = true
	f.activatedBy = trigger
	return true
}

// ActivatedBy returns the trigger that turned fallback mode on, or "".
func (f *FallbackSelector) ActivatedBy() EscalationTrigger {
	return f.activatedBy
}

// Deactivate leaves fallback mode and returns to the first strategy. It
// returns true when fallback mode was active.
func (f *FallbackSelector) Deactivate() bool {
	was := f.active
	f.active = false
	f.activatedBy = ""
	f.current = f.first()
	return was
}

// DeactivateIfTriggeredBy deactivates only when trigger turned fallback mode on.
func (f *FallbackSelector) DeactivateIfTriggeredBy(trigger EscalationTrigger) bool {
	if !f.active || f.activatedBy != trigger {
		return false
	}
	return f.Deactivate()
}

// Current returns the strategy new attempts should use.
func (f *FallbackSelector) Current() Strategy {
	return f.current
}

// Active reports whether fallback mode is on.
func (f *FallbackSelector) Active() bool {
	return f.active
}

func (f *FallbackSelector) first() Strategy {
	if len(f.strategies) == 0 {
		return StrategyExponential
	}
	return f.strategies[0]
}

// indexOf returns -1 when s is not in the ladder. Escalating from an unknown
// strategy therefore lands on the first entry.
func (f *FallbackSelector) indexOf(s Strategy) int {
	for i, v := range f.strategies {
		if v == s {
			return i
		}
	}
	return -1
}
