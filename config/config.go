package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// TomlFeed holds the feed engine tuning knobs
type TomlFeed struct {
	// Max number of post ids kept per user timeline cache entry
	CacheSize int `toml:"cache_size"`
	// How long a timeline cache entry lives without new writes
	RetentionHours int `toml:"retention_hours"`
	// Default and max page sizes for feed queries
	DefaultLimit int `toml:"default_limit"`
	MaxLimit     int `toml:"max_limit"`
	// Per-lookup timeout for the push and pull fetches, in milliseconds
	LookupTimeoutMs int `toml:"lookup_timeout_ms"`
}

// TomlRedis holds timeline cache connection settings
type TomlRedis struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password,omitempty"`
	DB       int    `toml:"db,omitempty"`
	PoolSize int    `toml:"pool_size,omitempty"`
}

// TomlNats holds fanout queue connection settings
type TomlNats struct {
	URL string `toml:"url"`
}

// TomlConfig represents the top-level configuration
type TomlConfig struct {
	Database string    `toml:"database"`
	Feed     TomlFeed  `toml:"feed"`
	Redis    TomlRedis `toml:"redis"`
	Nats     TomlNats  `toml:"nats"`
}

// Default returns the configuration used when no config file is given.
func Default() *TomlConfig {
	return &TomlConfig{
		Database: "instagram.db",
		Feed: TomlFeed{
			CacheSize:       1000,
			RetentionHours:  24,
			DefaultLimit:    10,
			MaxLimit:        100,
			LookupTimeoutMs: 2000,
		},
		Redis: TomlRedis{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Nats: TomlNats{
			URL: "nats://localhost:4222",
		},
	}
}

func LoadConfig(path string) (*TomlConfig, error) {
	config := Default()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return config, nil
}

// Retention returns the cache retention window as a duration.
func (c *TomlConfig) Retention() time.Duration {
	return time.Duration(c.Feed.RetentionHours) * time.Hour
}

// LookupTimeout returns the per-lookup timeout for feed queries.
func (c *TomlConfig) LookupTimeout() time.Duration {
	return time.Duration(c.Feed.LookupTimeoutMs) * time.Millisecond
}
