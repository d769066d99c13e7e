package reconnect

import (
	"math"
	"time"

	"github.com/jpillora/backoff"
)

// Rand is the random source used for jitter.
type Rand interface {
	// Float64 returns a value in [0.0, 1.0).
	Float64() float64
}

// jitterFraction is the largest share of a delay added as jitter.
const jitterFraction = 0.10

// Delay returns the wait before the given attempt of a cycle.
// attempt is 1-based; values below 1 are treated as 1.
func Delay(attempt int, strategy Strategy, cfg Config, adaptiveMultiplier float64, rnd Rand) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	var delay float64
	switch strategy {
	case StrategyImmediate:
		return 0
	case StrategyLinear:
		delay = float64(cfg.BaseDelay) * float64(attempt)
	default:
		b := &backoff.Backoff{
			Min:    cfg.BaseDelay,
			Max:    cfg.MaxDelay,
			Factor: cfg.Multiplier,
		}
		delay = float64(b.ForAttempt(float64(attempt - 1)))
	}

	if cfg.AdaptiveEnabled {
		delay *= clampMultiplier(adaptiveMultiplier)
	}

	if cfg.JitterEnabled && delay > 0 && rnd != nil {
		delay += rnd.Float64() * jitterFraction * delay
	}

	if delay < 0 {
		delay = 0
	}
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}

	ms := math.Round(delay / float64(time.Millisecond))
	return time.Duration(ms) * time.Millisecond
}

func clampMultiplier(m float64) float64 {
	if m < MinAdaptiveMultiplier {
		return MinAdaptiveMultiplier
	}
	if m > MaxAdaptiveMultiplier {
		return MaxAdaptiveMultiplier
	}
	return m
}
