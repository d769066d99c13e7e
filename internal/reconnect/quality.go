package reconnect

import (
	"fmt"
	"time"
)

// Proactive trigger and retune thresholds. Rates are fractions in [0,1],
// scores are on the probe's 0..100 scale.
const (
	trendWindow       = 5
	minTrendSamples   = 5
	criticalScore     = 30
	criticalRate      = 0.2
	criticalLatency   = 2000 * time.Millisecond
	degradedScore     = 40
	degradedRate      = 0.5
	healthyScore      = 80
	healthyRate       = 0.9
	minTunedBaseDelay = 500 * time.Millisecond
	maxTunedBaseDelay = 2000 * time.Millisecond
	minTunedAttempts  = 5
	maxTunedAttempts  = 15
)

// QualitySignal is the outcome of one quality assessment.
type QualitySignal struct {
	IsOnline              bool          `json:"is_online"`
	QualityScore          int           `json:"quality_score"`
	SampleCount           int           `json:"sample_count"`
	RollingSuccessRate    float64       `json:"rolling_success_rate"`
	RollingAverageLatency time.Duration `json:"rolling_average_latency"`
	// Triggered is set when the assessment started a reconnection cycle.
	Triggered bool   `json:"triggered"`
	Reason    string `json:"reason,omitempty"`
	// Retuned is set when the assessment changed BaseDelay or MaxAttempts.
	Retuned bool `json:"retuned"`
}

// QualityAssessor turns the probe's quality signal and the rolling history
// into reconnect and retune decisions. It holds no state of its own.
type QualityAssessor struct {
	metrics *MetricsRecorder
}

// NewQualityAssessor reads trends from metrics.
func NewQualityAssessor(metrics *MetricsRecorder) *QualityAssessor {
	return &QualityAssessor{metrics: metrics}
}

// Assess fills a signal and decides whether a cycle must start.
// reconnecting suppresses the trigger, not the retune.
func (q *QualityAssessor) Assess(online bool, score int, reconnecting bool, cfg Config) QualitySignal {
	sig := QualitySignal{
		IsOnline:     online,
		QualityScore: score,
		SampleCount:  q.metrics.SampleCount(),
	}
	sig.RollingSuccessRate, _ = q.metrics.RollingSuccessRate(trendWindow)
	sig.RollingAverageLatency, _ = q.metrics.RollingAverageLatency(trendWindow)

	if reconnecting {
		return sig
	}

	if !online {
		sig.Triggered = true
		sig.Reason = "connection lost"
		return sig
	}

	if score < cfg.QualityThreshold && q.shouldReconnectProactively(score) {
		sig.Triggered = true
		sig.Reason = fmt.Sprintf("poor connection quality (score %d)", score)
	}
	return sig
}

func (q *QualityAssessor) shouldReconnectProactively(score int) bool {
	if q.metrics.SampleCount() < minTrendSamples {
		return false
	}
	if score > criticalScore {
		return false
	}
	rate, _ := q.metrics.RollingSuccessRate(trendWindow)
	if rate < criticalRate {
		return true
	}
	latency, ok := q.metrics.RollingAverageLatency(trendWindow)
	return ok && latency > criticalLatency
}

// Retune adjusts BaseDelay and MaxAttempts from the observed trend. It
// returns the new config and whether anything changed.
func (q *QualityAssessor) Retune(score int, cfg Config) (Config, bool) {
	if !cfg.AdaptiveEnabled {
		return cfg, false
	}
	rate, ok := q.metrics.RollingSuccessRate(trendWindow)
	if !ok {
		return cfg, false
	}

	out := cfg.clone()
	switch {
	case score < degradedScore && rate < degradedRate:
		out.BaseDelay = max(minTunedBaseDelay, scaleDuration(cfg.BaseDelay, 0.8))
		out.MaxAttempts = min(maxTunedAttempts, cfg.MaxAttempts+2)
	case score > healthyScore && rate > healthyRate:
		out.BaseDelay = min(maxTunedBaseDelay, scaleDuration(cfg.BaseDelay, 1.2))
		out.MaxAttempts = max(minTunedAttempts, cfg.MaxAttempts-1)
	default:
		return cfg, false
	}
	if out.MaxDelay < out.BaseDelay {
		out.MaxDelay = out.BaseDelay
	}

	changed := out.BaseDelay != cfg.BaseDelay || out.MaxAttempts != cfg.MaxAttempts
	return out, changed
}

func scaleDuration(d time.Duration, f float64) time.Duration {
	return (time.Duration(float64(d)*f) / time.Millisecond) * time.Millisecond
}
