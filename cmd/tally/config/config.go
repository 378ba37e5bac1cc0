// Package config provides configuration for the tally CLI.
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/TFMV/tally/pkg/store"
)

// Config represents the CLI configuration.
type Config struct {
	// Database is the DuckDB path, ":memory:" for an in-memory store.
	Database string `yaml:"database" json:"database"`
	// Table is the record table name.
	Table string `yaml:"table" json:"table"`
	// EnumType is the user-defined enum type backing the category column.
	EnumType string `yaml:"enum_type" json:"enum_type"`
	// BatchSize is the batch writer's flush threshold.
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// RecordCount is how many fixture records ingest generates.
	RecordCount int `yaml:"record_count" json:"record_count"`
	// Seed feeds the fixture builder's PRNG for reproducible runs.
	Seed int64 `yaml:"seed" json:"seed"`
	// Identity selects the identity-generation strategy: client, store, none.
	Identity string `yaml:"identity" json:"identity"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// Metrics configuration
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

// MetricsConfig represents metrics configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Address string `yaml:"address" json:"address"`
}

// DefaultConfig returns the configuration matching the reference scenario:
// one hundred thousand skewed records flushed in groups of one hundred.
func DefaultConfig() *Config {
	return &Config{
		Database:    ":memory:",
		Table:       "task",
		EnumType:    "task_status",
		BatchSize:   100,
		RecordCount: 100000,
		Seed:        1,
		Identity:    "client",
		LogLevel:    "info",
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9090",
		},
	}
}

// LoadFromViper builds a config from bound flags, environment, and any
// config file viper has read.
func LoadFromViper(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()

	if v.IsSet("database") {
		cfg.Database = v.GetString("database")
	}
	if v.IsSet("table") {
		cfg.Table = v.GetString("table")
	}
	if v.IsSet("enum-type") {
		cfg.EnumType = v.GetString("enum-type")
	}
	if v.IsSet("batch-size") {
		cfg.BatchSize = v.GetInt("batch-size")
	}
	if v.IsSet("records") {
		cfg.RecordCount = v.GetInt("records")
	}
	if v.IsSet("seed") {
		cfg.Seed = v.GetInt64("seed")
	}
	if v.IsSet("identity") {
		cfg.Identity = v.GetString("identity")
	}
	if v.IsSet("log-level") {
		cfg.LogLevel = v.GetString("log-level")
	}
	if v.IsSet("metrics") {
		cfg.Metrics.Enabled = v.GetBool("metrics")
	}
	if v.IsSet("metrics-address") {
		cfg.Metrics.Address = v.GetString("metrics-address")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Database == "" {
		return fmt.Errorf("database cannot be empty")
	}
	if c.Table == "" {
		return fmt.Errorf("table cannot be empty")
	}
	if c.EnumType == "" {
		return fmt.Errorf("enum type cannot be empty")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.RecordCount < 0 {
		return fmt.Errorf("record count cannot be negative, got %d", c.RecordCount)
	}
	if _, err := store.ParseIdentityStrategy(c.Identity); err != nil {
		return fmt.Errorf("invalid identity strategy %q", c.Identity)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return fmt.Errorf("metrics address cannot be empty when metrics are enabled")
	}
	return nil
}

// IdentityStrategy returns the parsed identity strategy. Call Validate first.
func (c *Config) IdentityStrategy() store.IdentityStrategy {
	strategy, _ := store.ParseIdentityStrategy(c.Identity)
	return strategy
}
