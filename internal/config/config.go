// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration. Values are read once at
// startup and treated as immutable afterwards.
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	Debug       bool   `env:"DEBUG" envDefault:"false"`
	DatabaseURL string `env:"DATABASE_URL"`

	ORS   ORSConfig
	Cache CacheConfig

	// RedisAddr is the broker address for the prewarm queue (asynq).
	RedisAddr string `env:"REDIS_ADDR" envDefault:"127.0.0.1:6379"`
}

// ORSConfig holds the OpenRouteService upstream settings.
type ORSConfig struct {
	APIKey        string        `env:"ORS_API_KEY"`
	BaseURL       string        `env:"ORS_BASE_URL" envDefault:"https://api.openrouteservice.org/v2/directions/foot-walking"`
	Timeout       time.Duration `env:"ORS_TIMEOUT" envDefault:"10s"`
	MaxRetries    int           `env:"ORS_MAX_RETRIES" envDefault:"2"`
	BackoffFactor float64       `env:"ORS_BACKOFF_FACTOR" envDefault:"0.75"`

	// AllowedProfiles is the comma-separated routing-profile allow-list.
	AllowedProfiles []string `env:"ORS_ALLOWED_PROFILES" envDefault:"foot-walking,driving-car,cycling-regular"`
}

// CacheConfig holds the route-cache settings.
type CacheConfig struct {
	// RedisURL selects the distributed store when set (e.g. redis://host:6379/0).
	RedisURL string `env:"REDIS_URL"`

	TTLSeconds     int    `env:"CACHE_TTL_SECONDS" envDefault:"10800"`
	MaxTTLSeconds  int    `env:"CACHE_MAX_TTL_SECONDS" envDefault:"21600"`
	BoltPath       string `env:"CACHE_BOLT_PATH" envDefault:"cache.db"`
	LockTTLSeconds int    `env:"CACHE_LOCK_TTL_SECONDS" envDefault:"30"`

	AllowHeaderOverride bool `env:"CACHE_ALLOW_HEADER_OVERRIDE" envDefault:"false"`
	AlwaysCompress      bool `env:"CACHE_ALWAYS_COMPRESS" envDefault:"true"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	normalized := cfg.ORS.AllowedProfiles[:0]
	for _, p := range cfg.ORS.AllowedProfiles {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			normalized = append(normalized, p)
		}
	}
	cfg.ORS.AllowedProfiles = normalized

	return cfg, nil
}

// Validate ensures the upstream client can be constructed.
func (c *Config) Validate() error {
	if c.ORS.APIKey == "" {
		return fmt.Errorf("ORS_API_KEY is not set")
	}
	if c.ORS.BaseURL == "" {
		return fmt.Errorf("ORS_BASE_URL is not set")
	}
	if len(c.ORS.AllowedProfiles) == 0 {
		return fmt.Errorf("ORS_ALLOWED_PROFILES must list at least one profile")
	}
	return nil
}
