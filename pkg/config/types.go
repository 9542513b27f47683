package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Config represents the persistent ccmeter configuration stored as config.toml
// in the .ccmeter/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Backend     BackendConfig     `toml:"backend"`
	Attribution AttributionConfig `toml:"attribution"`
	Billing     BillingConfig     `toml:"billing"`
	Backfill    BackfillConfig    `toml:"backfill"`
	Claude      ClaudeConfig      `toml:"claude"`
}

// BackendConfig holds the metering backend connection settings.
type BackendConfig struct {
	Endpoint string `toml:"endpoint,omitempty"`
	APIKey   string `toml:"api_key,omitempty"`

	// ClientID identifies this install in payload resource attributes.
	// Generated once on first save.
	ClientID string `toml:"client_id,omitempty"`
}

// AttributionConfig holds optional fields attached to every usage record.
type AttributionConfig struct {
	Email            string `toml:"email,omitempty"`
	OrganizationID   string `toml:"organization_id,omitempty"`
	OrganizationName string `toml:"organization_name,omitempty"`
	ProductID        string `toml:"product_id,omitempty"`
	ProductName      string `toml:"product_name,omitempty"`
}

// BillingConfig holds cost multiplier inputs. CostMultiplier is a pointer so
// an explicit zero override is distinguishable from "absent".
type BillingConfig struct {
	SubscriptionTier string   `toml:"subscription_tier,omitempty"`
	CostMultiplier   *float64 `toml:"cost_multiplier,omitempty"`
}

// BackfillConfig holds backfill batching defaults, overridable per run via flags.
type BackfillConfig struct {
	BatchSize int `toml:"batch_size,omitempty"`
	DelayMS   int `toml:"delay_ms,omitempty"`
}

// ClaudeConfig holds the local Claude Code paths ccmeter reads from.
type ClaudeConfig struct {
	ProjectsDir string `toml:"projects_dir,omitempty"`
}

// IsConfigured reports whether the backend connection settings required for
// delivery are present.
func (c *Config) IsConfigured() bool {
	return c.Backend.Endpoint != "" && c.Backend.APIKey != ""
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"backend.endpoint": {
		get: func(c *Config) string { return c.Backend.Endpoint },
		set: func(c *Config, v string) error { c.Backend.Endpoint = v; return nil },
	},
	"backend.api_key": {
		get: func(c *Config) string { return c.Backend.APIKey },
		set: func(c *Config, v string) error { c.Backend.APIKey = v; return nil },
	},
	"attribution.email": {
		get: func(c *Config) string { return c.Attribution.Email },
		set: func(c *Config, v string) error { c.Attribution.Email = v; return nil },
	},
	"attribution.organization_id": {
		get: func(c *Config) string { return c.Attribution.OrganizationID },
		set: func(c *Config, v string) error { c.Attribution.OrganizationID = v; return nil },
	},
	"attribution.organization_name": {
		get: func(c *Config) string { return c.Attribution.OrganizationName },
		set: func(c *Config, v string) error { c.Attribution.OrganizationName = v; return nil },
	},
	"attribution.product_id": {
		get: func(c *Config) string { return c.Attribution.ProductID },
		set: func(c *Config, v string) error { c.Attribution.ProductID = v; return nil },
	},
	"attribution.product_name": {
		get: func(c *Config) string { return c.Attribution.ProductName },
		set: func(c *Config, v string) error { c.Attribution.ProductName = v; return nil },
	},
	"billing.subscription_tier": {
		get: func(c *Config) string { return c.Billing.SubscriptionTier },
		set: func(c *Config, v string) error {
			if v != "" && !IsKnownTier(v) {
				return fmt.Errorf("unknown subscription tier: %q (known tiers: %s)", v, strings.Join(KnownTiers(), ", "))
			}
			c.Billing.SubscriptionTier = v
			return nil
		},
	},
	"billing.cost_multiplier": {
		get: func(c *Config) string {
			if c.Billing.CostMultiplier == nil {
				return ""
			}
			return strconv.FormatFloat(*c.Billing.CostMultiplier, 'f', -1, 64)
		},
		set: func(c *Config, v string) error {
			if v == "" {
				c.Billing.CostMultiplier = nil
				return nil
			}
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for billing.cost_multiplier: %w", err)
			}
			if f < 0 {
				return fmt.Errorf("billing.cost_multiplier cannot be negative")
			}
			c.Billing.CostMultiplier = &f
			return nil
		},
	},
	"backfill.batch_size": {
		get: func(c *Config) string {
			if c.Backfill.BatchSize == 0 {
				return ""
			}
			return strconv.Itoa(c.Backfill.BatchSize)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for backfill.batch_size: %w", err)
			}
			c.Backfill.BatchSize = n
			return nil
		},
	},
	"backfill.delay_ms": {
		get: func(c *Config) string { return strconv.Itoa(c.Backfill.DelayMS) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for backfill.delay_ms: %w", err)
			}
			c.Backfill.DelayMS = n
			return nil
		},
	},
	"claude.projects_dir": {
		get: func(c *Config) string { return c.Claude.ProjectsDir },
		set: func(c *Config, v string) error { c.Claude.ProjectsDir = v; return nil },
	},
}
