//-------------------------------------------------------------------------
//
// pgEdge Market Data Generator
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package config handles configuration management for pgedge-marketgen.
// Configuration is loaded from a config file, then MARKETGEN_* environment
// variables (optionally from a .env file), then CLI flags, with later
// sources taking precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/pgEdge/pgedge-marketgen/internal/market"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MARKETGEN"

// Source names accepted by ingest.source.
const (
	SourceSynthetic = "synthetic"
	SourceProvider  = "provider"
)

// MaxBatchSize caps rows per upsert statement well below the protocol's
// bind parameter limit.
const MaxBatchSize = 1000

var identifierRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*(\.[a-z_][a-z0-9_]*)?$`)

// Config holds all configuration for pgedge-marketgen.
type Config struct {
	// Connection is the PostgreSQL connection string.
	Connection string `mapstructure:"connection"`

	// LogLevel controls logging verbosity (debug, info, warn, error).
	LogLevel string `mapstructure:"log_level"`

	// LogFormat is "pretty" or "json".
	LogFormat string `mapstructure:"log_format"`

	// MetricsAddr serves Prometheus metrics when set (e.g. ":9090").
	MetricsAddr string `mapstructure:"metrics_addr"`

	Store    StoreConfig    `mapstructure:"store"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Provider ProviderConfig `mapstructure:"provider"`
}

// StoreConfig describes the bar table and its partition and compression
// policy.
type StoreConfig struct {
	Table             string `mapstructure:"table"`
	ChunkIntervalDays int    `mapstructure:"chunk_interval_days"`
	CompressAfterDays int    `mapstructure:"compress_after_days"`
	MaxConns          int    `mapstructure:"max_conns"`

	// TargetState is the lifecycle state init migrates to: flat,
	// partitioned or compressed.
	TargetState string `mapstructure:"target_state"`
}

// IngestConfig holds configuration for the ingest command.
type IngestConfig struct {
	// Source is "synthetic" or "provider".
	Source       string `mapstructure:"source"`
	Horizon      string `mapstructure:"horizon"`
	Intraday     bool   `mapstructure:"intraday"`
	IntradayDays int    `mapstructure:"intraday_days"`

	// GroupSize bounds how many symbols are in flight per group.
	GroupSize   int `mapstructure:"group_size"`
	Concurrency int `mapstructure:"concurrency"`
	BatchSize   int `mapstructure:"batch_size"`

	// Seed makes synthetic series reproducible; 0 is random.
	Seed uint64 `mapstructure:"seed"`

	UniverseFile string `mapstructure:"universe_file"`

	// ReferenceDate (YYYY-MM-DD) is the last day of generated series;
	// empty means today.
	ReferenceDate string `mapstructure:"reference_date"`

	// DryRun generates without writing to the database.
	DryRun bool `mapstructure:"dry_run"`

	// ReportInterval is how often to log progress (in seconds).
	ReportInterval int `mapstructure:"report_interval"`
}

// ProviderConfig configures the external price provider client.
type ProviderConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`

	// RequestDelayMs is the enforced gap between provider calls.
	RequestDelayMs int `mapstructure:"request_delay_ms"`
	MaxAttempts    int `mapstructure:"max_attempts"`
	BackoffMs      int `mapstructure:"backoff_ms"`
	PageSize       int `mapstructure:"page_size"`
	TimeoutSec     int `mapstructure:"timeout_sec"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "pretty",
		Store: StoreConfig{
			Table:             "bars",
			ChunkIntervalDays: 30,
			CompressAfterDays: 7,
			MaxConns:          20,
			TargetState:       "compressed",
		},
		Ingest: IngestConfig{
			Source:         SourceSynthetic,
			Horizon:        "1Y",
			IntradayDays:   market.DefaultIntradayDays,
			GroupSize:      25,
			Concurrency:    4,
			BatchSize:      100,
			ReportInterval: 10,
		},
		Provider: ProviderConfig{
			RequestDelayMs: 12000,
			MaxAttempts:    5,
			BackoffMs:      15000,
			PageSize:       5000,
			TimeoutSec:     30,
		},
	}
}

// envKeys are the keys that can be overridden from the environment, e.g.
// MARKETGEN_INGEST_CONCURRENCY.
var envKeys = []string{
	"connection", "log_level", "log_format", "metrics_addr",
	"store.table", "store.chunk_interval_days", "store.compress_after_days",
	"store.max_conns", "store.target_state",
	"ingest.source", "ingest.horizon", "ingest.intraday", "ingest.intraday_days",
	"ingest.group_size", "ingest.concurrency", "ingest.batch_size", "ingest.seed",
	"ingest.universe_file", "ingest.reference_date", "ingest.dry_run",
	"ingest.report_interval",
	"provider.base_url", "provider.api_key", "provider.request_delay_ms",
	"provider.max_attempts", "provider.backoff_ms", "provider.page_size",
	"provider.timeout_sec",
}

// Load reads configuration from config files and the environment.
// Config file locations (in order of precedence):
// 1. Path specified by configFile parameter
// 2. ./pgedge-marketgen.yaml
// 3. ~/.config/pgedge-marketgen/pgedge-marketgen.yaml
func Load(configFile string) (*Config, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()

	// Set config name and type
	v.SetConfigName("pgedge-marketgen")
	v.SetConfigType("yaml")

	// Add config paths
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "pgedge-marketgen"))
	}

	// Use specific config file if provided
	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("error binding environment for %s: %w", key, err)
		}
	}

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Start with defaults
	cfg := DefaultConfig()

	// Unmarshal config file values
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	return cfg, nil
}

// LoadDotEnv loads variables from a .env file into the environment
// without overriding variables that are already set. A missing file is
// not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("error loading %s: %w", path, err)
	}
	return nil
}

// ReferenceDate returns the configured reference date, or the zero time
// when unset.
func (c *Config) ReferenceDate() (time.Time, error) {
	if c.Ingest.ReferenceDate == "" {
		return time.Time{}, nil
	}
	return market.ParseDay(c.Ingest.ReferenceDate)
}

// RequestDelay returns the provider pacing delay.
func (p ProviderConfig) RequestDelay() time.Duration {
	return time.Duration(p.RequestDelayMs) * time.Millisecond
}

// Backoff returns the provider retry delay.
func (p ProviderConfig) Backoff() time.Duration {
	return time.Duration(p.BackoffMs) * time.Millisecond
}

// Timeout returns the per-request HTTP timeout.
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSec) * time.Second
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Connection == "" {
		return fmt.Errorf("connection string is required")
	}
	return c.validateStore()
}

func (c *Config) validateStore() error {
	if !identifierRe.MatchString(c.Store.Table) {
		return fmt.Errorf("invalid table name %q", c.Store.Table)
	}
	if c.Store.MaxConns < 1 {
		return fmt.Errorf("max_conns must be at least 1")
	}
	return nil
}

// ValidateInit checks configuration required for init command.
func (c *Config) ValidateInit() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Store.ChunkIntervalDays < 1 {
		return fmt.Errorf("chunk_interval_days must be at least 1")
	}
	if c.Store.CompressAfterDays < 0 {
		return fmt.Errorf("compress_after_days must be non-negative")
	}
	switch c.Store.TargetState {
	case "flat", "partitioned", "compressed":
	default:
		return fmt.Errorf("target_state must be 'flat', 'partitioned' or 'compressed'")
	}
	return nil
}

// ValidateIngest checks configuration required for ingest command. A
// dry run needs no connection.
func (c *Config) ValidateIngest() error {
	if c.Ingest.DryRun {
		if err := c.validateStore(); err != nil {
			return err
		}
	} else if err := c.Validate(); err != nil {
		return err
	}

	in := c.Ingest
	if in.Source != SourceSynthetic && in.Source != SourceProvider {
		return fmt.Errorf("source must be '%s' or '%s'", SourceSynthetic, SourceProvider)
	}
	if _, err := market.ParseHorizon(in.Horizon, time.Now()); err != nil {
		return err
	}
	if in.IntradayDays < 0 {
		return fmt.Errorf("intraday_days must be non-negative")
	}
	if in.GroupSize < 1 {
		return fmt.Errorf("group_size must be at least 1")
	}
	if in.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}
	if in.BatchSize < 1 || in.BatchSize > MaxBatchSize {
		return fmt.Errorf("batch_size must be between 1 and %d", MaxBatchSize)
	}
	if _, err := c.ReferenceDate(); err != nil {
		return err
	}

	if in.Source == SourceProvider {
		p := c.Provider
		if p.BaseURL == "" {
			return fmt.Errorf("provider.base_url is required for the provider source")
		}
		if p.MaxAttempts < 1 {
			return fmt.Errorf("provider.max_attempts must be at least 1")
		}
		if p.RequestDelayMs < 0 || p.BackoffMs < 0 {
			return fmt.Errorf("provider delays must be non-negative")
		}
		if p.PageSize < 1 {
			return fmt.Errorf("provider.page_size must be at least 1")
		}
	}
	return nil
}
