package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	System   SystemConfig   `mapstructure:"system"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Remote   RemoteConfig   `mapstructure:"remote"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Client   ClientConfig   `mapstructure:"client"`
	Resolver ResolverConfig `mapstructure:"resolver"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type SystemConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type AuthConfig struct {
	APIKey string `mapstructure:"api_key"`
}

type RemoteConfig struct {
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"api_key"`
}

type RetryConfig struct {
	IntervalSeconds int `mapstructure:"interval_seconds"`
	MaxRetries      int `mapstructure:"max_retries"`
}

// Interval returns the scheduler wake interval.
func (c RetryConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

type ClientConfig struct {
	SendTimeoutSeconds   int `mapstructure:"send_timeout_seconds"`
	HealthTimeoutSeconds int `mapstructure:"health_timeout_seconds"`
}

func (c ClientConfig) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutSeconds) * time.Second
}

func (c ClientConfig) HealthTimeout() time.Duration {
	return time.Duration(c.HealthTimeoutSeconds) * time.Second
}

type ResolverConfig struct {
	CacheTTLSeconds int `mapstructure:"cache_ttl_seconds"`
}

func (c ResolverConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// LoadConfig reads the YAML config file and applies PAI_-prefixed environment
// overrides. A missing file is not an error; defaults cover every knob.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.SetDefault("server.port", 8000)
	v.SetDefault("system.name", "Bob")
	v.SetDefault("system.version", "1.0.0")
	v.SetDefault("database.path", "data/pairelay.db")
	v.SetDefault("auth.api_key", "dev-key")
	v.SetDefault("remote.url", "http://localhost:8000")
	v.SetDefault("remote.api_key", "dev-key")
	v.SetDefault("retry.interval_seconds", 60)
	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("client.send_timeout_seconds", 5)
	v.SetDefault("client.health_timeout_seconds", 3)
	v.SetDefault("resolver.cache_ttl_seconds", 300)

	v.SetEnvPrefix("PAI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}
