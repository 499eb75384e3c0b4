package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration. It is built once at
// startup and passed by reference; nothing reads configuration ambiently.
type Config struct {
	Hub     HubConfig     `mapstructure:"hub"`
	Limits  LimitsConfig  `mapstructure:"limits"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Storage StorageConfig `mapstructure:"storage"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// HubConfig identifies the monitored hub and how to reach it.
type HubConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	RequestTimeout  string `mapstructure:"request_timeout"`
	CatalogCacheTTL string `mapstructure:"catalog_cache_ttl"`
}

// LimitsConfig defines the daily usage policy.
type LimitsConfig struct {
	MaxMinutes      int    `mapstructure:"max_minutes"`
	WarnPercentages []int  `mapstructure:"warn_percentages"`
	TickInterval    string `mapstructure:"tick_interval"`
}

// NotifyConfig defines how warnings and shutdown notices are delivered.
// An empty broker disables delivery.
type NotifyConfig struct {
	Broker         string   `mapstructure:"broker"`
	ClientID       string   `mapstructure:"client_id"`
	TopicPrefix    string   `mapstructure:"topic_prefix"`
	Recipients     []string `mapstructure:"recipients"`
	PublishTimeout string   `mapstructure:"publish_timeout"`
}

// StorageConfig defines storage backend settings.
type StorageConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines Redis connection settings.
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// ServerConfig defines listen ports and addresses.
type ServerConfig struct {
	BindAddress string `mapstructure:"bind_address"`
	HTTPPort    int    `mapstructure:"http_port"`
	MetricsPort int    `mapstructure:"metrics_port"`
}

// LoggingConfig defines logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetEnvPrefix("HUBWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and environment variables
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Hub defaults
	v.SetDefault("hub.port", 8088)
	v.SetDefault("hub.request_timeout", "10s")
	v.SetDefault("hub.catalog_cache_ttl", "1h")

	// Limits defaults
	v.SetDefault("limits.warn_percentages", []int{50, 90})
	v.SetDefault("limits.tick_interval", "1m")

	// Notify defaults
	v.SetDefault("notify.client_id", "hubwatch")
	v.SetDefault("notify.topic_prefix", "home/notify")
	v.SetDefault("notify.publish_timeout", "5s")

	// Storage defaults
	v.SetDefault("storage.redis.host", "127.0.0.1")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 2)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")

	// Server defaults
	v.SetDefault("server.bind_address", "0.0.0.0")
	v.SetDefault("server.http_port", 8186)
	v.SetDefault("server.metrics_port", 9186)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// validate validates the configuration.
func validate(cfg *Config) error {
	if cfg.Hub.Host == "" {
		return fmt.Errorf("hub host is required")
	}
	if cfg.Hub.Port <= 0 || cfg.Hub.Port > 65535 {
		return fmt.Errorf("invalid hub port: %d", cfg.Hub.Port)
	}

	if cfg.Limits.MaxMinutes <= 0 {
		return fmt.Errorf("max_minutes must be positive, got %d", cfg.Limits.MaxMinutes)
	}
	for _, pct := range cfg.Limits.WarnPercentages {
		if pct <= 0 || pct >= 100 {
			return fmt.Errorf("warn percentage must be in (0,100), got %d", pct)
		}
	}
	if !sort.IntsAreSorted(cfg.Limits.WarnPercentages) {
		return fmt.Errorf("warn_percentages must be ascending")
	}
	if _, err := time.ParseDuration(cfg.Limits.TickInterval); err != nil {
		return fmt.Errorf("invalid tick_interval: %w", err)
	}

	if cfg.Notify.Broker != "" && len(cfg.Notify.Recipients) == 0 {
		return fmt.Errorf("notify broker is set but no recipients are configured")
	}

	if cfg.Storage.Redis.Host == "" {
		return fmt.Errorf("redis host is required")
	}

	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", cfg.Server.HTTPPort)
	}
	if cfg.Server.MetricsPort <= 0 || cfg.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.Server.MetricsPort)
	}

	return nil
}

// TickInterval returns the parsed sampling interval.
func (c *Config) TickInterval() time.Duration {
	d, _ := time.ParseDuration(c.Limits.TickInterval)
	return d
}
