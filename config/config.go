// Package config loads the server configuration and watches the stack
// inventory file for changes.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/soyjavierquiroz/kurukin-core/billing"
)

// GatewayConfig holds the gateway client settings.
type GatewayConfig struct {
	// DefaultEndpoint serves tenants when no stack is available.
	DefaultEndpoint string `yaml:"default_endpoint"`
	// DefaultCredential pairs with DefaultEndpoint.
	DefaultCredential string `yaml:"default_credential"`
	// DefaultWebhookBase pairs with DefaultEndpoint.
	DefaultWebhookBase string `yaml:"default_webhook_base"`
	// FallbackCredential is tried once when a stack credential gets a 401.
	FallbackCredential string `yaml:"fallback_credential"`
	TimeoutSeconds     int    `yaml:"timeout_seconds"`
	Debug              bool   `yaml:"debug"`
}

// CreditsConfig holds the ledger settings.
type CreditsConfig struct {
	MinRequired        string `yaml:"min_required"`
	GraceDays          int    `yaml:"grace_days"`
	Currency           string `yaml:"currency"`
	SweepIntervalHours int    `yaml:"sweep_interval_hours"`
}

// Config is the full server configuration.
type Config struct {
	Listen string `yaml:"listen"`
	// JWTSecret signs and verifies tenant bearer tokens.
	JWTSecret string `yaml:"jwt_secret"`
	// AdminSecret authorizes admin and engine endpoints.
	AdminSecret string `yaml:"admin_secret"`
	// StacksFile points at the YAML stack inventory.
	StacksFile string `yaml:"stacks_file"`
	// Database is the SQLite file path.
	Database string `yaml:"database"`
	// ElevenLabsEndpoint overrides the voice credential validation host.
	ElevenLabsEndpoint string `yaml:"elevenlabs_endpoint"`

	Gateway GatewayConfig  `yaml:"gateway"`
	Credits CreditsConfig  `yaml:"credits"`
	Rules   []billing.Rule `yaml:"credit_rules"`
}

// Load reads the configuration file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	cfg.applyDefaults()
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt_secret is required")
	}
	if cfg.AdminSecret == "" {
		return nil, fmt.Errorf("admin_secret is required")
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.Database == "" {
		c.Database = "kurukin.db"
	}
	if c.Gateway.TimeoutSeconds <= 0 {
		c.Gateway.TimeoutSeconds = 15
	}
	if c.Credits.MinRequired == "" {
		c.Credits.MinRequired = "0.010000"
	}
	if c.Credits.GraceDays <= 0 {
		c.Credits.GraceDays = 365
	}
	if c.Credits.Currency == "" {
		c.Credits.Currency = "USD"
	}
	if c.Credits.SweepIntervalHours <= 0 {
		c.Credits.SweepIntervalHours = 24
	}
}

// GatewayTimeout returns the gateway round-trip timeout as a duration.
func (c *Config) GatewayTimeout() time.Duration {
	return time.Duration(c.Gateway.TimeoutSeconds) * time.Second
}
