// Package config loads relink configuration from file, environment and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"relink/internal/reconnect"
)

// Config 是应用配置的根结构体
type Config struct {
	Reconnect ReconnectConfig `mapstructure:"reconnect" yaml:"reconnect"`
	Probe     ProbeConfig     `mapstructure:"probe" yaml:"probe"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Snapshot  SnapshotConfig  `mapstructure:"snapshot" yaml:"snapshot"`
}

// ReconnectConfig 重连策略配置，时长字段使用 Go duration 字符串（如 "1s"）
type ReconnectConfig struct {
	MaxAttempts             int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	BaseDelay               time.Duration `mapstructure:"base_delay" yaml:"base_delay"`
	MaxDelay                time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
	Multiplier              float64       `mapstructure:"multiplier" yaml:"multiplier"`
	JitterEnabled           bool          `mapstructure:"jitter_enabled" yaml:"jitter_enabled"`
	QualityThreshold        int           `mapstructure:"quality_threshold" yaml:"quality_threshold"`
	CircuitBreakerThreshold int           `mapstructure:"circuit_breaker_threshold" yaml:"circuit_breaker_threshold"`
	AdaptiveEnabled         bool          `mapstructure:"adaptive_enabled" yaml:"adaptive_enabled"`
	FallbackStrategies      []string      `mapstructure:"fallback_strategies" yaml:"fallback_strategies"`
	QualityInterval         time.Duration `mapstructure:"quality_interval" yaml:"quality_interval"`
}

// ToReconnect 转换为控制器使用的配置
func (c ReconnectConfig) ToReconnect() reconnect.Config {
	strategies := make([]reconnect.Strategy, 0, len(c.FallbackStrategies))
	for _, s := range c.FallbackStrategies {
		strategies = append(strategies, reconnect.Strategy(strings.ToLower(strings.TrimSpace(s))))
	}
	return reconnect.Config{
		MaxAttempts:             c.MaxAttempts,
		BaseDelay:               c.BaseDelay,
		MaxDelay:                c.MaxDelay,
		Multiplier:              c.Multiplier,
		JitterEnabled:           c.JitterEnabled,
		QualityThreshold:        c.QualityThreshold,
		CircuitBreakerThreshold: c.CircuitBreakerThreshold,
		AdaptiveEnabled:         c.AdaptiveEnabled,
		FallbackStrategies:      strategies,
		QualityInterval:         c.QualityInterval,
	}
}

// 探测器类型
const (
	ProbeHTTP      = "http"
	ProbeWebSocket = "websocket"
)

// ProbeConfig 连接探测配置
type ProbeConfig struct {
	Kind          string        `mapstructure:"kind" yaml:"kind"` // http, websocket
	URL           string        `mapstructure:"url" yaml:"url"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Interval      time.Duration `mapstructure:"interval" yaml:"interval"`             // 后台探测/心跳间隔
	LatencyBudget time.Duration `mapstructure:"latency_budget" yaml:"latency_budget"` // 质量评分的延迟基准
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

// StorageConfig 存储配置
type StorageConfig struct {
	Driver    string        `mapstructure:"driver" yaml:"driver"`
	Path      string        `mapstructure:"path" yaml:"path"`
	Retention time.Duration `mapstructure:"retention" yaml:"retention"` // 事件保留时长
}

// ServerConfig 状态 API 配置
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Host    string `mapstructure:"host" yaml:"host"`
	Port    int    `mapstructure:"port" yaml:"port"`
}

// Addr 返回监听地址
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MetricsConfig Prometheus 指标配置
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
}

// SnapshotConfig 定时任务配置（cron 表达式）
type SnapshotConfig struct {
	Enabled       bool   `mapstructure:"enabled" yaml:"enabled"`
	Schedule      string `mapstructure:"schedule" yaml:"schedule"`
	PruneSchedule string `mapstructure:"prune_schedule" yaml:"prune_schedule"`
}

// Validate 校验配置
func (c *Config) Validate() error {
	if err := c.Reconnect.ToReconnect().Validate(); err != nil {
		return err
	}
	switch c.Probe.Kind {
	case ProbeHTTP, ProbeWebSocket:
	default:
		return fmt.Errorf("probe.kind: unknown probe %q", c.Probe.Kind)
	}
	if c.Probe.URL == "" {
		return errors.New("probe.url: must not be empty")
	}
	if c.Probe.Timeout <= 0 {
		return errors.New("probe.timeout: must be positive")
	}
	if c.Probe.LatencyBudget <= 0 {
		return errors.New("probe.latency_budget: must be positive")
	}
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return fmt.Errorf("server.port: %d out of range", c.Server.Port)
	}
	return nil
}

var (
	globalConfig *Config
	configPath   string
	mu           sync.RWMutex
)

// Load 加载配置文件
// 优先级: ENV > 配置文件 > 默认值
func Load(path string) (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	SetDefaults()

	viper.SetEnvPrefix("RELINK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if path != "" {
		expandedPath, err := expandHome(path)
		if err != nil {
			return nil, err
		}
		configPath = expandedPath

		viper.SetConfigFile(expandedPath)
		if err := viper.ReadInConfig(); err != nil {
			// 忽略文件不存在错误，解析错误需要返回
			var pathErr *os.PathError
			if !errors.As(err, &pathErr) && !os.IsNotExist(err) {
				if _, ok := err.(viper.ConfigParseError); ok {
					return nil, err
				}
			}
		}
	}

	cfg, err := decode()
	if err != nil {
		return nil, err
	}
	globalConfig = cfg
	return cfg, nil
}

// Reload 重新读取配置文件，供热加载使用
func Reload() (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	if configPath == "" {
		return nil, errors.New("config path not set")
	}
	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg, err := decode()
	if err != nil {
		return nil, err
	}
	globalConfig = cfg
	return cfg, nil
}

// decode 解析当前 viper 配置并补全路径，调用者需要持有锁
func decode() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.resolvePaths(configPath); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolvePaths 展开 ~ 前缀；storage.path 未配置时使用配置文件同目录下的 history.db
func (c *Config) resolvePaths(cfgFile string) error {
	if c.Storage.Path == "" {
		dir := filepath.Dir(cfgFile)
		if cfgFile == "" {
			var err error
			if dir, err = defaultDir(); err != nil {
				return err
			}
		}
		c.Storage.Path = filepath.Join(dir, "history.db")
	}

	var err error
	if c.Storage.Path, err = expandHome(c.Storage.Path); err != nil {
		return fmt.Errorf("storage.path: %w", err)
	}
	if c.Log.File, err = expandHome(c.Log.File); err != nil {
		return fmt.Errorf("log.file: %w", err)
	}
	return nil
}

// DefaultPath 返回默认配置文件路径 (~/.relink/config.yaml)
func DefaultPath() (string, error) {
	dir, err := defaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func defaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".relink"), nil
}

// expandHome 将 ~ 前缀展开为用户主目录
func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path[1:], "/")), nil
}

// GetConfig 获取当前配置
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return globalConfig
}

// Path 返回当前配置文件路径
func Path() string {
	mu.RLock()
	defer mu.RUnlock()
	return configPath
}

// Get 获取任意配置键值
func Get(key string) any {
	return viper.Get(key)
}

// GetString 获取字符串配置值
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt 获取整数配置值
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool 获取布尔配置值
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// AllSettings 返回所有配置项
func AllSettings() map[string]any {
	return viper.AllSettings()
}

// Set 设置配置值并持久化
func Set(key string, value any) error {
	mu.Lock()
	defer mu.Unlock()

	viper.Set(key, value)

	if configPath != "" {
		return save()
	}
	return nil
}

// SetValidated 设置配置值，整体校验通过后才持久化；失败时恢复原值。
// 列表类配置项接受逗号分隔的字符串。
func SetValidated(key string, value any) error {
	mu.Lock()
	defer mu.Unlock()

	prev := viper.Get(key)
	if str, ok := value.(string); ok {
		coerced, err := coerce(str, prev)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		value = coerced
	}

	viper.Set(key, value)

	cfg, err := decode()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		viper.Set(key, prev)
		return err
	}

	globalConfig = cfg
	if configPath != "" {
		return save()
	}
	return nil
}

// coerce 按原值类型解析字符串，使写回的 YAML 保持原有类型
func coerce(str string, prev any) (any, error) {
	switch prev.(type) {
	case []string, []any:
		parts := strings.Split(str, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	case int:
		return strconv.Atoi(str)
	case float64:
		return strconv.ParseFloat(str, 64)
	case bool:
		return strconv.ParseBool(str)
	case time.Duration:
		return time.ParseDuration(str)
	}
	return str, nil
}

// Save 保存配置到文件
func Save() error {
	mu.Lock()
	defer mu.Unlock()
	return save()
}

// save 内部保存函数，调用者需要持有锁
func save() error {
	if configPath == "" {
		return errors.New("config path not set")
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(viper.AllSettings())
	if err != nil {
		return err
	}
	return os.WriteFile(configPath, data, 0600)
}

// Reset 重置配置（主要用于测试）
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = nil
	configPath = ""
	viper.Reset()
}
