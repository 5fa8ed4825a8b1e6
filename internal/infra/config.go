package infra

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration. Secrets may be
// overridden through environment variables after loading.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Trading struct {
		Mode  string `yaml:"mode"` // "paper" or "live"
		Venue string `yaml:"venue"`
	} `yaml:"trading"`

	API struct {
		RestURL    string `yaml:"rest_url"`
		WSURL      string `yaml:"ws_url"`
		AccessKey  string `yaml:"access_key"`
		SecretKey  string `yaml:"secret_key"`
		Passphrase string `yaml:"passphrase"`
	} `yaml:"api"`

	Risk struct {
		MaxPositionNotional string `yaml:"max_position_notional"`
		MaxTotalExposure    string `yaml:"max_total_exposure"`
		MaxOpenPositions    int    `yaml:"max_open_positions"`
		MaxLeverage         string `yaml:"max_leverage"`
		MaxCorrelated       int    `yaml:"max_correlated"`
		DailyLossLimit      string `yaml:"daily_loss_limit"`
		RequireProtective   bool   `yaml:"require_protective"`
		DuplicateTolerance  string `yaml:"duplicate_tolerance"`
		PrecisionTolerance  string `yaml:"precision_tolerance"`
	} `yaml:"risk"`

	Execution struct {
		MaxRetries          int `yaml:"max_retries"`
		BreakerThreshold    int `yaml:"breaker_threshold"`
		BreakerCooldownSec  int `yaml:"breaker_cooldown_sec"`
		SubmitTimeoutMS     int `yaml:"submit_timeout_ms"`
		ReconcileIntervalMS int `yaml:"reconcile_interval_ms"`
	} `yaml:"execution"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and validates the yaml configuration. A .env file, if
// present, is loaded first; environment variables always win for secrets.
func LoadConfig(path string) (*Config, error) {
	// Missing .env is fine; real deployments inject the environment.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// overrideWithEnv applies secret overrides. Keys never live in the yaml in
// production deployments.
func overrideWithEnv(cfg *Config) {
	if v := os.Getenv("VENUE_ACCESS_KEY"); v != "" {
		cfg.API.AccessKey = v
	}
	if v := os.Getenv("VENUE_SECRET_KEY"); v != "" {
		cfg.API.SecretKey = v
	}
	if v := os.Getenv("VENUE_PASSPHRASE"); v != "" {
		cfg.API.Passphrase = v
	}
}

// Validate checks configuration validity. Fail fast on anything that would
// otherwise surface mid-trade.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Trading.Mode) {
	case "paper", "live":
	default:
		return fmt.Errorf("trading mode must be paper or live, got %q", c.Trading.Mode)
	}
	if c.Trading.Venue == "" {
		return fmt.Errorf("trading venue is required")
	}
	if strings.ToLower(c.Trading.Mode) == "live" {
		if c.API.RestURL == "" {
			return fmt.Errorf("rest_url is required in live mode")
		}
		if c.API.AccessKey == "" || c.API.SecretKey == "" {
			return fmt.Errorf("live mode requires access and secret keys")
		}
	}
	if c.Execution.MaxRetries <= 0 {
		return fmt.Errorf("max_retries must be positive")
	}
	if c.Execution.BreakerThreshold <= 0 {
		return fmt.Errorf("breaker_threshold must be positive")
	}
	if c.Execution.ReconcileIntervalMS <= 0 {
		return fmt.Errorf("reconcile_interval_ms must be positive")
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage path is required")
	}
	for name, raw := range map[string]string{
		"max_position_notional": c.Risk.MaxPositionNotional,
		"max_total_exposure":    c.Risk.MaxTotalExposure,
		"max_leverage":          c.Risk.MaxLeverage,
	} {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("risk.%s: %w", name, err)
		}
		if !d.IsPositive() {
			return fmt.Errorf("risk.%s must be positive, got %s", name, d)
		}
	}
	return nil
}

// RiskDecimal parses a risk field that passed Validate.
func RiskDecimal(raw string) decimal.Decimal {
	d, _ := decimal.NewFromString(raw)
	return d
}

// SubmitTimeout returns the submission-ack timeout.
func (c *Config) SubmitTimeout() time.Duration {
	return time.Duration(c.Execution.SubmitTimeoutMS) * time.Millisecond
}

// ReconcileInterval returns the ledger reconciliation period.
func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.Execution.ReconcileIntervalMS) * time.Millisecond
}
