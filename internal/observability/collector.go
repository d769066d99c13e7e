package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// controllerCollector reads one State and Metrics pair per scrape so the
// exported values are mutually consistent.
type controllerCollector struct {
	source StatusSource

	attempts       *prometheus.Desc
	successes      *prometheus.Desc
	failures       *prometheus.Desc
	avgReconnect   *prometheus.Desc
	uptime         *prometheus.Desc
	lastSuccess    *prometheus.Desc
	reconnecting   *prometheus.Desc
	currentAttempt *prometheus.Desc
	circuitOpen    *prometheus.Desc
	fallback       *prometheus.Desc
	multiplier     *prometheus.Desc
	phase          *prometheus.Desc
}

func newControllerCollector(namespace string, source StatusSource) *controllerCollector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}
	return &controllerCollector{
		source:         source,
		attempts:       desc("attempts_total", "Reconnection attempts made."),
		successes:      desc("successful_reconnections_total", "Reconnection cycles that ended in success."),
		failures:       desc("failed_attempts_total", "Reconnection attempts that failed."),
		avgReconnect:   desc("average_reconnection_seconds", "Running mean of the time from cycle start to successful reconnection."),
		uptime:         desc("cumulative_uptime_seconds", "Time spent connected since start."),
		lastSuccess:    desc("last_success_timestamp_seconds", "Unix time of the last successful reconnection."),
		reconnecting:   desc("reconnecting", "1 while a reconnection cycle is open."),
		currentAttempt: desc("current_attempt", "Attempt number within the open cycle."),
		circuitOpen:    desc("circuit_breaker_open", "1 while the circuit breaker is open."),
		fallback:       desc("fallback_mode_active", "1 while fallback mode is active."),
		multiplier:     desc("adaptive_delay_multiplier", "Current adaptive delay multiplier."),
		phase:          desc("phase", "Current controller phase.", "phase"),
	}
}

func (c *controllerCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.attempts, c.successes, c.failures, c.avgReconnect, c.uptime, c.lastSuccess,
		c.reconnecting, c.currentAttempt, c.circuitOpen, c.fallback, c.multiplier, c.phase,
	} {
		ch <- d
	}
}

func (c *controllerCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.source.State()
	m := c.source.Metrics()

	counter := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v)
	}
	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}

	counter(c.attempts, float64(m.TotalAttempts))
	counter(c.successes, float64(m.SuccessfulReconnections))
	counter(c.failures, float64(m.FailedAttempts))
	gauge(c.avgReconnect, m.AverageReconnectionTime.Seconds())
	counter(c.uptime, m.CumulativeUptime.Seconds())

	var last float64
	if !m.LastSuccessAt.IsZero() {
		last = float64(m.LastSuccessAt.UnixMilli()) / 1000
	}
	gauge(c.lastSuccess, last)

	gauge(c.reconnecting, boolValue(st.IsReconnecting))
	gauge(c.currentAttempt, float64(st.CurrentAttempt))
	gauge(c.circuitOpen, boolValue(st.CircuitBreakerOpen))
	gauge(c.fallback, boolValue(st.FallbackModeActive))
	gauge(c.multiplier, st.AdaptiveDelayMultiplier)
	gauge(c.phase, 1, string(st.Phase))
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
