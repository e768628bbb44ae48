// Package config loads server configuration.
//
// Sources are layered, later ones winning:
//
//	defaults -> YAML file -> .env / environment -> command-line flags
//
// Flags are applied by cmd/server on top of what Load returns.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port      int             `yaml:"port"`
	DB        DBConfig        `yaml:"db"`
	Auth      AuthConfig      `yaml:"auth"`
	Recurring RecurringConfig `yaml:"recurring"`
	Budget    BudgetConfig    `yaml:"budget"`
	Currency  CurrencyConfig  `yaml:"currency"`
	Log       LogConfig       `yaml:"log"`
}

type DBConfig struct {
	Driver string `yaml:"driver"` // sqlite | postgres
	DSN    string `yaml:"dsn"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type RecurringConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	CatchUp  bool          `yaml:"catch_up"`
}

type BudgetConfig struct {
	WarningPercent int `yaml:"warning_percent"`
}

type CurrencyConfig struct {
	Default string `yaml:"default"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port: 8080,
		DB: DBConfig{
			Driver: "sqlite",
			DSN:    "finance.db",
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Recurring: RecurringConfig{
			Enabled:  true,
			Interval: time.Hour,
		},
		Budget:   BudgetConfig{WarningPercent: 80},
		Currency: CurrencyConfig{Default: "MXN"},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path, and the environment. A .env file in the working directory is loaded
// first if present; variables already set in the environment win.
// Callers apply their overrides and then call Validate.
func Load(path string, envPath ...string) (Config, error) {
	if len(envPath) > 0 && envPath[0] != "" {
		if err := godotenv.Load(envPath[0]); err != nil {
			return Config{}, fmt.Errorf("failed to load .env file: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg := Default()

	if path == "" {
		path = os.Getenv("FINANCE_CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var err error
	if c.Port, err = intEnv("FINANCE_PORT", c.Port); err != nil {
		return err
	}
	c.DB.Driver = getEnvOrDefault("FINANCE_DB_DRIVER", c.DB.Driver)
	c.DB.DSN = getEnvOrDefault("FINANCE_DB_DSN", c.DB.DSN)
	c.Auth.JWTSecret = getEnvOrDefault("FINANCE_JWT_SECRET", c.Auth.JWTSecret)
	if c.Auth.TokenTTL, err = durationEnv("FINANCE_TOKEN_TTL", c.Auth.TokenTTL); err != nil {
		return err
	}
	if c.Recurring.Enabled, err = boolEnv("FINANCE_RECURRING_ENABLED", c.Recurring.Enabled); err != nil {
		return err
	}
	if c.Recurring.Interval, err = durationEnv("FINANCE_RECURRING_INTERVAL", c.Recurring.Interval); err != nil {
		return err
	}
	if c.Recurring.CatchUp, err = boolEnv("FINANCE_RECURRING_CATCH_UP", c.Recurring.CatchUp); err != nil {
		return err
	}
	if c.Budget.WarningPercent, err = intEnv("FINANCE_BUDGET_WARNING_PERCENT", c.Budget.WarningPercent); err != nil {
		return err
	}
	c.Currency.Default = getEnvOrDefault("FINANCE_CURRENCY", c.Currency.Default)
	c.Log.Level = getEnvOrDefault("FINANCE_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnvOrDefault("FINANCE_LOG_FORMAT", c.Log.Format)
	return nil
}

// Validate checks values that cannot be defaulted.
func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	switch c.DB.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("db.driver must be sqlite or postgres, got %q", c.DB.Driver))
	}
	if c.DB.DSN == "" {
		errs = append(errs, errors.New("db.dsn is required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if c.Recurring.Enabled && c.Recurring.Interval <= 0 {
		errs = append(errs, errors.New("recurring.interval must be positive"))
	}
	if c.Budget.WarningPercent <= 0 || c.Budget.WarningPercent >= 100 {
		errs = append(errs, fmt.Errorf("budget.warning_percent must be between 1 and 99, got %d", c.Budget.WarningPercent))
	}
	if len(strings.TrimSpace(c.Currency.Default)) != 3 {
		errs = append(errs, fmt.Errorf("currency.default must be a 3-letter code, got %q", c.Currency.Default))
	}
	return errors.Join(errs...)
}

// =============================================================================
// ENV HELPERS
// =============================================================================

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func intEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func boolEnv(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func durationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
