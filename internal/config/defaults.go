package config

import (
	"time"

	"github.com/spf13/viper"
)

// SetDefaults 设置所有配置项的默认值
func SetDefaults() {
	// Reconnect 配置，与 reconnect.DefaultConfig 保持一致
	viper.SetDefault("reconnect.max_attempts", 10)
	viper.SetDefault("reconnect.base_delay", 1*time.Second)
	viper.SetDefault("reconnect.max_delay", 30*time.Second)
	viper.SetDefault("reconnect.multiplier", 2.0)
	viper.SetDefault("reconnect.jitter_enabled", true)
	viper.SetDefault("reconnect.quality_threshold", 60)
	viper.SetDefault("reconnect.circuit_breaker_threshold", 5)
	viper.SetDefault("reconnect.adaptive_enabled", true)
	viper.SetDefault("reconnect.fallback_strategies", []string{"exponential", "linear", "immediate"})
	viper.SetDefault("reconnect.quality_interval", 30*time.Second)

	// Probe 配置
	viper.SetDefault("probe.kind", ProbeHTTP)
	viper.SetDefault("probe.url", "http://127.0.0.1:8080/health")
	viper.SetDefault("probe.timeout", 5*time.Second)
	viper.SetDefault("probe.interval", 10*time.Second)
	viper.SetDefault("probe.latency_budget", 1*time.Second)

	// Log 配置
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "auto")
	viper.SetDefault("log.file", "")

	// Storage 配置
	viper.SetDefault("storage.driver", "sqlite")
	viper.SetDefault("storage.path", "")
	viper.SetDefault("storage.retention", 7*24*time.Hour)

	// Server 配置
	viper.SetDefault("server.enabled", true)
	viper.SetDefault("server.host", "127.0.0.1")
	viper.SetDefault("server.port", 7878)

	// Metrics 配置
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.namespace", "relink")

	// Snapshot 配置
	viper.SetDefault("snapshot.enabled", true)
	viper.SetDefault("snapshot.schedule", "@every 1m")
	viper.SetDefault("snapshot.prune_schedule", "@daily")
}
