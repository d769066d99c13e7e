package handlers

import (
	"fmt"
	"time"

	"relink/internal/reconnect"
)

// The API renders durations as Go duration strings ("1.5s") instead of
// nanosecond integers. Embedded fields are shadowed by the string fields
// of the same JSON name.

// StateView is the JSON form of reconnect.State.
type StateView struct {
	reconnect.State
	NextAttemptIn string `json:"next_attempt_in"`
}

// NewStateView converts st.
func NewStateView(st reconnect.State) StateView {
	return StateView{State: st, NextAttemptIn: st.NextAttemptIn.String()}
}

// MetricsView is the JSON form of reconnect.Metrics.
type MetricsView struct {
	reconnect.Metrics
	AverageReconnectionTime string `json:"average_reconnection_time"`
	CumulativeUptime        string `json:"cumulative_uptime"`
}

// NewMetricsView converts m.
func NewMetricsView(m reconnect.Metrics) MetricsView {
	return MetricsView{
		Metrics:                 m,
		AverageReconnectionTime: m.AverageReconnectionTime.String(),
		CumulativeUptime:        m.CumulativeUptime.String(),
	}
}

// QualityView is the JSON form of reconnect.QualitySignal.
type QualityView struct {
	reconnect.QualitySignal
	RollingAverageLatency string `json:"rolling_average_latency"`
}

// ConfigView is the JSON form of reconnect.Config.
type ConfigView struct {
	reconnect.Config
	BaseDelay       string `json:"base_delay"`
	MaxDelay        string `json:"max_delay"`
	QualityInterval string `json:"quality_interval"`
}

// NewConfigView converts cfg.
func NewConfigView(cfg reconnect.Config) ConfigView {
	return ConfigView{
		Config:          cfg,
		BaseDelay:       cfg.BaseDelay.String(),
		MaxDelay:        cfg.MaxDelay.String(),
		QualityInterval: cfg.QualityInterval.String(),
	}
}

// ConfigPatchRequest is the PATCH /api/config body. Absent fields are left unchanged.
type ConfigPatchRequest struct {
	MaxAttempts             *int                 `json:"max_attempts,omitempty"`
	BaseDelay               *string              `json:"base_delay,omitempty"`
	MaxDelay                *string              `json:"max_delay,omitempty"`
	Multiplier              *float64             `json:"multiplier,omitempty"`
	JitterEnabled           *bool                `json:"jitter_enabled,omitempty"`
	QualityThreshold        *int                 `json:"quality_threshold,omitempty"`
	CircuitBreakerThreshold *int                 `json:"circuit_breaker_threshold,omitempty"`
	AdaptiveEnabled         *bool                `json:"adaptive_enabled,omitempty"`
	FallbackStrategies      []reconnect.Strategy `json:"fallback_strategies,omitempty"`
	QualityInterval         *string              `json:"quality_interval,omitempty"`
}

// Patch parses the duration fields.
func (r ConfigPatchRequest) Patch() (reconnect.ConfigPatch, error) {
	p := reconnect.ConfigPatch{
		MaxAttempts:             r.MaxAttempts,
		Multiplier:              r.Multiplier,
		JitterEnabled:           r.JitterEnabled,
		QualityThreshold:        r.QualityThreshold,
		CircuitBreakerThreshold: r.CircuitBreakerThreshold,
		AdaptiveEnabled:         r.AdaptiveEnabled,
		FallbackStrategies:      r.FallbackStrategies,
	}

	var err error
	if p.BaseDelay, err = parseDuration("base_delay", r.BaseDelay); err != nil {
		return p, err
	}
	if p.MaxDelay, err = parseDuration("max_delay", r.MaxDelay); err != nil {
		return p, err
	}
	if p.QualityInterval, err = parseDuration("quality_interval", r.QualityInterval); err != nil {
		return p, err
	}
	return p, nil
}

func parseDuration(field string, s *string) (*time.Duration, error) {
	if s == nil {
		return nil, nil
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return &d, nil
}
