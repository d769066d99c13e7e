package reconnect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFallbackSelectorCycles(t *testing.T) {
	f := NewFallbackSelector([]Strategy{StrategyExponential, StrategyLinear, StrategyImmediate})
	assert.Equal(t, StrategyExponential, f.Current())
	assert.False(t, f.Active())

	assert.True(t, f.Escalate(TriggerMaxAttempts), "first escalation activates")
	assert.Equal(t, StrategyLinear, f.Current())

	assert.False(t, f.Escalate(TriggerMaxAttempts))
	assert.Equal(t, StrategyImmediate, f.Current())

	assert.False(t, f.Escalate(TriggerMaxAttempts))
	assert.Equal(t, StrategyExponential, f.Current(), "wraps around")
	assert.True(t, f.Active())
}

func TestFallbackSelectorDeactivate(t *testing.T) {
	f := NewFallbackSelector([]Strategy{StrategyExponential, StrategyLinear})

	assert.False(t, f.Deactivate(), "inactive selector")

	f.Escalate(TriggerMaxAttempts)
	assert.True(t, f.Deactivate())
	assert.False(t, f.Active())
	assert.Equal(t, StrategyExponential, f.Current())
}

func TestFallbackSelectorDeactivateIfTriggeredBy(t *testing.T) {
	f := NewFallbackSelector([]Strategy{StrategyExponential, StrategyLinear, StrategyImmediate})

	f.Escalate(TriggerCircuitBreaker)
	f.Escalate(TriggerMaxAttempts)
	assert.Equal(t, TriggerCircuitBreaker, f.ActivatedBy(), "later escalations keep the activating trigger")
	assert.True(t, f.DeactivateIfTriggeredBy(TriggerCircuitBreaker))
	assert.False(t, f.Active())
	assert.Equal(t, StrategyExponential, f.Current())
	assert.Equal(t, EscalationTrigger(""), f.ActivatedBy())

	f.Escalate(TriggerMaxAttempts)
	f.Escalate(TriggerCircuitBreaker)
	assert.False(t, f.DeactivateIfTriggeredBy(TriggerCircuitBreaker), "max attempts turned fallback on")
	assert.True(t, f.Active())
	assert.Equal(t, StrategyImmediate, f.Current())
}

func TestFallbackSelectorSetStrategies(t *testing.T) {
	f := NewFallbackSelector([]Strategy{StrategyExponential, StrategyLinear, StrategyImmediate})
	f.Escalate(TriggerMaxAttempts)

	f.SetStrategies([]Strategy{StrategyImmediate, StrategyLinear})
	assert.Equal(t, StrategyLinear, f.Current(), "current kept when still listed")

	f.SetStrategies([]Strategy{StrategyImmediate})
	assert.Equal(t, StrategyImmediate, f.Current(), "restart at first entry")

	f.SetStrategies(nil)
	assert.Equal(t, StrategyExponential, f.Current(), "empty ladder falls back to exponential")
}
