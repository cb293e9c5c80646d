// Package config handles YAML configuration loading with environment variable expansion.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"go.yaml.in/yaml/v3"
)

// Config is the top-level daemon configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Cache     CacheConfig     `yaml:"cache"`
	Resolver  ResolverConfig  `yaml:"resolver"`
	Auth      AuthConfig      `yaml:"auth"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Seeds     []SeedEntry     `yaml:"seeds"`
}

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`    // OTLP gRPC endpoint
	SampleRate float64 `yaml:"sample_rate"` // 0.0 to 1.0
}

// CacheConfig holds memoizing cache settings.
type CacheConfig struct {
	MaxEntries    int           `yaml:"max_entries"`    // bound on expiring entries; pinned entries are exempt
	DefaultTTL    time.Duration `yaml:"default_ttl"`    // used when a request omits ttl
	SweepInterval time.Duration `yaml:"sweep_interval"` // 0 = no background sweep
}

// ResolverConfig holds settings for memoized DNS lookups.
type ResolverConfig struct {
	TTL             time.Duration `yaml:"ttl"`
	RefreshInterval time.Duration `yaml:"refresh_interval"` // 0 = no background refresh
}

// AuthConfig holds admin API authentication settings.
type AuthConfig struct {
	AdminToken string `yaml:"admin_token"` // bearer token for /v1; empty disables auth
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// SeedEntry is a cache entry preloaded at startup.
// A zero TTL pins the entry.
type SeedEntry struct {
	Key   string        `yaml:"key"`
	Value any           `yaml:"value"`
	TTL   time.Duration `yaml:"ttl"`
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnv replaces ${VAR} patterns with environment variable values.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := string(match[2 : len(match)-1])
		if val, ok := os.LookupEnv(varName); ok {
			return []byte(val)
		}
		return match
	})
}

// Load reads and parses a YAML config file, expanding environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	data = expandEnv(data)

	cfg := &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Cache: CacheConfig{
			MaxEntries:    10_000,
			DefaultTTL:    5 * time.Minute,
			SweepInterval: time.Minute,
		},
		Resolver: ResolverConfig{
			TTL:             time.Minute,
			RefreshInterval: 5 * time.Minute,
		},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	if c.Cache.MaxEntries <= 0 {
		return errors.New("cache.max_entries must be positive")
	}
	if c.Cache.DefaultTTL <= 0 {
		return errors.New("cache.default_ttl must be positive")
	}
	if c.Resolver.TTL <= 0 {
		return errors.New("resolver.ttl must be positive")
	}
	for i, s := range c.Seeds {
		if s.Key == "" {
			return fmt.Errorf("seeds[%d]: key is required", i)
		}
		if s.TTL < 0 {
			return fmt.Errorf("seeds[%d]: ttl must not be negative", i)
		}
	}
	return nil
}
