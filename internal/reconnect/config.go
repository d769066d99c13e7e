package reconnect

import (
	"fmt"
	"time"
)

// Strategy selects how the delay between attempts grows.
type Strategy string

const (
	StrategyExponential Strategy = "exponential"
	StrategyLinear      Strategy = "linear"
	StrategyImmediate   Strategy = "immediate"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyExponential, StrategyLinear, StrategyImmediate:
		return true
	default:
		return false
	}
}

const (
	// CircuitResetWindow is the forced delay while the breaker is open and
	// the minimum time before an open breaker may auto-reset.
	CircuitResetWindow = 60 * time.Second

	// DefaultQualityInterval is the period of the quality assessment tick.
	DefaultQualityInterval = 30 * time.Second

	// MinAdaptiveMultiplier and MaxAdaptiveMultiplier bound the adaptive delay multiplier.
	MinAdaptiveMultiplier = 0.5
	MaxAdaptiveMultiplier = 3.0
)

// Config holds the reconnection policy.
type Config struct {
	// MaxAttempts is the number of attempts in one cycle before escalation.
	MaxAttempts int `json:"max_attempts" mapstructure:"max_attempts" yaml:"max_attempts"`
	// BaseDelay is the first delay of a cycle.
	BaseDelay time.Duration `json:"base_delay" mapstructure:"base_delay" yaml:"base_delay"`
	// MaxDelay caps every computed delay.
	MaxDelay time.Duration `json:"max_delay" mapstructure:"max_delay" yaml:"max_delay"`
	// Multiplier is the exponential growth factor.
	Multiplier float64 `json:"multiplier" mapstructure:"multiplier" yaml:"multiplier"`
	// JitterEnabled adds up to 10% random delay to each attempt.
	JitterEnabled bool `json:"jitter_enabled" mapstructure:"jitter_enabled" yaml:"jitter_enabled"`
	// QualityThreshold is the score (0-100) under which proactive reconnection is considered.
	QualityThreshold int `json:"quality_threshold" mapstructure:"quality_threshold" yaml:"quality_threshold"`
	// CircuitBreakerThreshold is the number of consecutive failures that opens the breaker.
	CircuitBreakerThreshold int `json:"circuit_breaker_threshold" mapstructure:"circuit_breaker_threshold" yaml:"circuit_breaker_threshold"`
	// AdaptiveEnabled turns on the adaptive delay multiplier and parameter retuning.
	AdaptiveEnabled bool `json:"adaptive_enabled" mapstructure:"adaptive_enabled" yaml:"adaptive_enabled"`
	// FallbackStrategies is the escalation ladder, first entry is the normal strategy.
	FallbackStrategies []Strategy `json:"fallback_strategies" mapstructure:"fallback_strategies" yaml:"fallback_strategies"`
	// QualityInterval is the period of the quality tick.
	QualityInterval time.Duration `json:"quality_interval" mapstructure:"quality_interval" yaml:"quality_interval"`
}

// DefaultConfig returns the default reconnection policy.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:             10,
		BaseDelay:               1 * time.Second,
		MaxDelay:                30 * time.Second,
		Multiplier:              2.0,
		JitterEnabled:           true,
		QualityThreshold:        60,
		CircuitBreakerThreshold: 5,
		AdaptiveEnabled:         true,
		FallbackStrategies:      []Strategy{StrategyExponential, StrategyLinear, StrategyImmediate},
		QualityInterval:         DefaultQualityInterval,
	}
}

// Validate checks the config for values the controller cannot work with.
func (c Config) Validate() error {
	switch {
	case c.MaxAttempts < 1:
		return &InvalidConfigError{Field: "max_attempts", Message: "must be at least 1"}
	case c.BaseDelay <= 0:
		return &InvalidConfigError{Field: "base_delay", Message: "must be positive"}
	case c.MaxDelay < c.BaseDelay:
		return &InvalidConfigError{Field: "max_delay", Message: "must not be lower than base_delay"}
	case c.Multiplier < 1:
		return &InvalidConfigError{Field: "multiplier", Message: "must be at least 1"}
	case c.QualityThreshold < 0 || c.QualityThreshold > 100:
		return &InvalidConfigError{Field: "quality_threshold", Message: "must be within 0..100"}
	case c.CircuitBreakerThreshold < 1:
		return &InvalidConfigError{Field: "circuit_breaker_threshold", Message: "must be at least 1"}
	case len(c.FallbackStrategies) == 0:
		return &InvalidConfigError{Field: "fallback_strategies", Message: "must not be empty"}
	case c.QualityInterval <= 0:
		return &InvalidConfigError{Field: "quality_interval", Message: "must be positive"}
	}
	for i, s := range c.FallbackStrategies {
		if !s.Valid() {
			return &InvalidConfigError{
				Field:   "fallback_strategies",
				Message: fmt.Sprintf("entry %d: unknown strategy %q", i, s),
			}
		}
	}
	return nil
}

// clone returns a copy that shares no slices with c.
func (c Config) clone() Config {
	c.FallbackStrategies = append([]Strategy(nil), c.FallbackStrategies...)
	return c
}

// ConfigPatch is a partial Config update. Nil fields are left unchanged.
type ConfigPatch struct {
	MaxAttempts             *int           `json:"max_attempts,omitempty"`
	BaseDelay               *time.Duration `json:"base_delay,omitempty"`
	MaxDelay                *time.Duration `json:"max_delay,omitempty"`
	Multiplier              *float64       `json:"multiplier,omitempty"`
	JitterEnabled           *bool          `json:"jitter_enabled,omitempty"`
	QualityThreshold        *int           `json:"quality_threshold,omitempty"`
	CircuitBreakerThreshold *int           `json:"circuit_breaker_threshold,omitempty"`
	AdaptiveEnabled         *bool          `json:"adaptive_enabled,omitempty"`
	FallbackStrategies      []Strategy     `json:"fallback_strategies,omitempty"`
	QualityInterval         *time.Duration `json:"quality_interval,omitempty"`
}

// Apply returns c with every non-nil field of p applied.
func (p ConfigPatch) Apply(c Config) Config {
	out := c.clone()
	if p.MaxAttempts != nil {
		out.MaxAttempts = *p.MaxAttempts
	}
	if p.BaseDelay != nil {
		out.BaseDelay = *p.BaseDelay
	}
	if p.MaxDelay != nil {
		out.MaxDelay = *p.MaxDelay
	}
	if p.Multiplier != nil {
		out.Multiplier = *p.Multiplier
	}
	if p.JitterEnabled != nil {
		out.JitterEnabled = *p.JitterEnabled
	}
	if p.QualityThreshold != nil {
		out.QualityThreshold = *p.QualityThreshold
	}
	if p.CircuitBreakerThreshold != nil {
		out.CircuitBreakerThreshold = *p.CircuitBreakerThreshold
	}
	if p.AdaptiveEnabled != nil {
		out.AdaptiveEnabled = *p.AdaptiveEnabled
	}
	if p.FallbackStrategies != nil {
		out.FallbackStrategies = append([]Strategy(nil), p.FallbackStrategies...)
	}
	if p.QualityInterval != nil {
		out.QualityInterval = *p.QualityInterval
	}
	return out
}

// PatchFrom builds a patch that sets every field to the value in c.
func PatchFrom(c Config) ConfigPatch {
	c = c.clone()
	return ConfigPatch{
		MaxAttempts:             &c.MaxAttempts,
		BaseDelay:               &c.BaseDelay,
		MaxDelay:                &c.MaxDelay,
		Multiplier:              &c.Multiplier,
		JitterEnabled:           &c.JitterEnabled,
		QualityThreshold:        &c.QualityThreshold,
		CircuitBreakerThreshold: &c.CircuitBreakerThreshold,
		AdaptiveEnabled:         &c.AdaptiveEnabled,
		FallbackStrategies:      c.FallbackStrategies,
		QualityInterval:         &c.QualityInterval,
	}
}
