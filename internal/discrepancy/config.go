package discrepancy

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Thresholds is the YAML shape of a policy. Nil fields inherit from defaults.
type Thresholds struct {
	WarningBandPct     *float64 `yaml:"warning_band_pct"`
	TolerableThreshold *float64 `yaml:"tolerable_threshold"`
}

// NotifyConfig configures alert delivery.
type NotifyConfig struct {
	WebhookURL    string        `yaml:"webhook_url"`
	WebhookSecret string        `yaml:"webhook_secret"`
	Template      string        `yaml:"template"`
	Timeout       time.Duration `yaml:"timeout"`
	Cooldown      time.Duration `yaml:"cooldown"`
	DedupeWindow  time.Duration `yaml:"dedupe_window"`
}

// Config is the discrepancy policy file.
type Config struct {
	Defaults Thresholds            `yaml:"defaults"`
	Stations map[string]Thresholds `yaml:"stations"`
	Notify   NotifyConfig          `yaml:"notify"`
}

// LoadConfig reads DISCREPANCY_POLICY_PATH when set and applies env overrides.
func LoadConfig() (Config, error) {
	cfg, err := LoadConfigFile(os.Getenv("DISCREPANCY_POLICY_PATH"))
	if err != nil {
		return cfg, err
	}
	if value := os.Getenv("DISCREPANCY_WARNING_BAND_PCT"); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return cfg, fmt.Errorf("discrepancy: DISCREPANCY_WARNING_BAND_PCT: %w", err)
		}
		cfg.Defaults.WarningBandPct = &parsed
	}
	if value := os.Getenv("DISCREPANCY_TOLERABLE_THRESHOLD"); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return cfg, fmt.Errorf("discrepancy: DISCREPANCY_TOLERABLE_THRESHOLD: %w", err)
		}
		cfg.Defaults.TolerableThreshold = &parsed
	}
	if cfg.Notify.WebhookURL == "" {
		cfg.Notify.WebhookURL = os.Getenv("DISCREPANCY_WEBHOOK_URL")
	}
	if cfg.Notify.WebhookSecret == "" {
		cfg.Notify.WebhookSecret = os.Getenv("DISCREPANCY_WEBHOOK_SECRET")
	}
	return cfg, cfg.Validate()
}

// LoadConfigFile parses a policy file. An empty path yields the defaults.
func LoadConfigFile(path string) (Config, error) {
	cfg := Config{Notify: NotifyConfig{Timeout: 5 * time.Second}}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if cfg.Notify.Timeout <= 0 {
		cfg.Notify.Timeout = 5 * time.Second
	}
	return cfg, cfg.Validate()
}

// Validate rejects negative bands and thresholds.
func (c Config) Validate() error {
	if err := c.Defaults.validate(); err != nil {
		return fmt.Errorf("discrepancy: defaults: %w", err)
	}
	for stationID, override := range c.Stations {
		if err := override.validate(); err != nil {
			return fmt.Errorf("discrepancy: station %s: %w", stationID, err)
		}
	}
	return nil
}

func (t Thresholds) validate() error {
	if t.WarningBandPct != nil && *t.WarningBandPct < 0 {
		return errors.New("negative warning_band_pct")
	}
	if t.TolerableThreshold != nil && *t.TolerableThreshold < 0 {
		return errors.New("negative tolerable_threshold")
	}
	return nil
}

// PolicyFor returns the effective policy for a station.
func (c Config) PolicyFor(stationID string) Policy {
	policy := applyThresholds(DefaultPolicy(), c.Defaults)
	if c.Stations != nil {
		if override, ok := c.Stations[stationID]; ok {
			policy = applyThresholds(policy, override)
		}
	}
	return policy
}

func applyThresholds(base Policy, override Thresholds) Policy {
	if override.WarningBandPct != nil {
		base.WarningBandPct = decimal.NewFromFloat(*override.WarningBandPct)
	}
	if override.TolerableThreshold != nil {
		base.TolerableThreshold = decimal.NewFromFloat(*override.TolerableThreshold)
	}
	return base
}
