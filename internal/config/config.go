// Package config provides configuration management for the trading journal.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Account     AccountConfig     `mapstructure:"account"`
	Sync        SyncConfig        `mapstructure:"sync"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Fx          FxConfig          `mapstructure:"fx"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Log         LogConfig         `mapstructure:"log"`
	Credentials Credentials       `mapstructure:"-"` // Loaded separately
}

// AccountConfig holds account-level settings.
type AccountConfig struct {
	BaseCurrency string `mapstructure:"base_currency"` // GBP by default
	Username     string `mapstructure:"username"`
}

// SyncConfig holds broker sync scheduling configuration.
type SyncConfig struct {
	Schedule        string        `mapstructure:"schedule"` // cron spec
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	DefaultCooldown time.Duration `mapstructure:"default_cooldown"`
	MaxCooldown     time.Duration `mapstructure:"max_cooldown"`
}

// CacheConfig holds cache TTLs.
type CacheConfig struct {
	FxTTL    time.Duration `mapstructure:"fx_ttl"`
	OrderTTL time.Duration `mapstructure:"order_ttl"`
	QuoteTTL time.Duration `mapstructure:"quote_ttl"`
}

// FxConfig holds fx rate source configuration.
type FxConfig struct {
	SourceURL string `mapstructure:"source_url"`
}

// StorageConfig holds persistence paths.
type StorageConfig struct {
	StatePath      string `mapstructure:"state_path"`
	MarketDataPath string `mapstructure:"market_data_path"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
	File    bool   `mapstructure:"file"`
}

// Credentials holds broker API credentials.
type Credentials struct {
	Trading212 Trading212Credentials `mapstructure:"trading212"`
}

// Trading212Credentials holds the Trading212 API key and host.
type Trading212Credentials struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/trading-journal"
	}
	return filepath.Join(home, ".config", "trading-journal")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{}

	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg, configDir)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir, name string, target interface{}) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil // defaults apply
		}
		return err
	}

	return v.Unmarshal(target)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRADING212_API_KEY"); v != "" {
		cfg.Credentials.Trading212.APIKey = v
	}
	if v := os.Getenv("TRADING212_BASE_URL"); v != "" {
		cfg.Credentials.Trading212.BaseURL = v
	}
	if v := os.Getenv("JOURNAL_BASE_CURRENCY"); v != "" {
		cfg.Account.BaseCurrency = v
	}
}

func applyDefaults(cfg *Config, configDir string) {
	if cfg.Account.BaseCurrency == "" {
		cfg.Account.BaseCurrency = "GBP"
	}
	if cfg.Sync.Schedule == "" {
		cfg.Sync.Schedule = "@every 5m"
	}
	if cfg.Sync.MaxRetries == 0 {
		cfg.Sync.MaxRetries = 3
	}
	if cfg.Sync.RetryDelay == 0 {
		cfg.Sync.RetryDelay = 2 * time.Second
	}
	if cfg.Sync.DefaultCooldown == 0 {
		cfg.Sync.DefaultCooldown = time.Minute
	}
	if cfg.Sync.MaxCooldown == 0 {
		cfg.Sync.MaxCooldown = 30 * time.Minute
	}
	if cfg.Cache.FxTTL == 0 {
		cfg.Cache.FxTTL = 6 * time.Hour
	}
	if cfg.Cache.OrderTTL == 0 {
		cfg.Cache.OrderTTL = 20 * time.Second
	}
	if cfg.Cache.QuoteTTL == 0 {
		cfg.Cache.QuoteTTL = 15 * time.Second
	}
	if cfg.Fx.SourceURL == "" {
		cfg.Fx.SourceURL = "https://api.frankfurter.dev/v1/latest"
	}
	if cfg.Storage.StatePath == "" {
		cfg.Storage.StatePath = filepath.Join(configDir, "state.json")
	}
	if cfg.Storage.MarketDataPath == "" {
		cfg.Storage.MarketDataPath = filepath.Join(configDir, "marketdata.db")
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
		cfg.Log.Console = true
		cfg.Log.File = true
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if len(c.Account.BaseCurrency) != 3 {
		return fmt.Errorf("base_currency must be a 3-letter ISO code, got %q", c.Account.BaseCurrency)
	}
	if c.Sync.MaxRetries < 1 {
		return fmt.Errorf("sync.max_retries must be at least 1")
	}
	return nil
}
