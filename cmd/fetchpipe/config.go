package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full CLI configuration, loadable from a YAML file and
// FETCHPIPE_* environment variables (environment wins).
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Client   ClientConfig   `mapstructure:"client"`
	Transfer TransferConfig `mapstructure:"transfer"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// PipelineConfig configures queue capacity and worker pool size.
type PipelineConfig struct {
	QueueCapacity int `mapstructure:"queue_capacity"`
	Workers       int `mapstructure:"workers"`
}

// ClientConfig configures the resilient client.
type ClientConfig struct {
	MaxConcurrency   int           `mapstructure:"max_concurrency"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	BaseDelay        time.Duration `mapstructure:"base_delay"`
	ThrottleInterval time.Duration `mapstructure:"throttle_interval"`
}

// TransferConfig selects the transfer variant.
type TransferConfig struct {
	Kind           string        `mapstructure:"kind"`
	UserAgent      string        `mapstructure:"user_agent"`
	SimLatency     time.Duration `mapstructure:"sim_latency"`
	SimFailureRate float64       `mapstructure:"sim_failure_rate"`
}

// RedisConfig enables the Redis outcome sink when Addr is set.
type RedisConfig struct {
	Addr   string `mapstructure:"addr"`
	Prefix string `mapstructure:"prefix"`
}

// LoadConfig reads configuration from the optional file at path plus
// environment variables prefixed FETCHPIPE_.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("pipeline.queue_capacity", 10)
	v.SetDefault("pipeline.workers", 3)
	v.SetDefault("client.max_concurrency", 5)
	v.SetDefault("client.timeout", 10*time.Second)
	v.SetDefault("client.max_attempts", 3)
	v.SetDefault("client.base_delay", 500*time.Millisecond)
	v.SetDefault("client.throttle_interval", time.Duration(0))
	v.SetDefault("transfer.kind", "http")
	v.SetDefault("transfer.user_agent", "fetchpipe/0.1.0")
	v.SetDefault("transfer.sim_latency", 50*time.Millisecond)
	v.SetDefault("transfer.sim_failure_rate", 0.0)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.prefix", "fetchpipe")

	v.SetEnvPrefix("FETCHPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Pipeline.QueueCapacity < 1 {
		return fmt.Errorf("pipeline.queue_capacity must be >= 1 (got %d)", c.Pipeline.QueueCapacity)
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline.workers must be >= 1 (got %d)", c.Pipeline.Workers)
	}
	if c.Client.MaxConcurrency < 1 {
		return fmt.Errorf("client.max_concurrency must be >= 1 (got %d)", c.Client.MaxConcurrency)
	}
	if c.Client.Timeout <= 0 {
		return fmt.Errorf("client.timeout must be positive (got %v)", c.Client.Timeout)
	}
	if c.Client.MaxAttempts < 1 {
		return fmt.Errorf("client.max_attempts must be >= 1 (got %d)", c.Client.MaxAttempts)
	}
	if c.Client.BaseDelay <= 0 {
		return fmt.Errorf("client.base_delay must be positive (got %v)", c.Client.BaseDelay)
	}
	switch c.Transfer.Kind {
	case "http", "sim":
	default:
		return fmt.Errorf("transfer.kind must be http or sim (got %q)", c.Transfer.Kind)
	}
	return nil
}
