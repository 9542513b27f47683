package config

import "sort"

const (
	defaultBatchSize = 100
	defaultDelayMS   = 100

	// defaultCostMultiplier is the fallback when neither an explicit override
	// nor a recognized subscription tier is configured.
	defaultCostMultiplier = 1.0
)

// tierMultipliers maps subscription tiers to the multiplier the backend
// applies when rating usage.
var tierMultipliers = map[string]float64{
	"free":       1.0,
	"pro":        1.0,
	"max_5x":     5.0,
	"max_20x":    20.0,
	"team":       1.0,
	"enterprise": 1.0,
}

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Backfill: BackfillConfig{
			BatchSize: defaultBatchSize,
			DelayMS:   defaultDelayMS,
		},
	}
}

// applyDefaults fills zero-value fields in cfg with values from NewDefaultConfig().
func applyDefaults(cfg *Config) {
	defaults := NewDefaultConfig()

	if cfg.Version == 0 {
		cfg.Version = defaults.Version
	}
	if cfg.Backfill.BatchSize == 0 {
		cfg.Backfill.BatchSize = defaults.Backfill.BatchSize
	}
	if cfg.Backfill.DelayMS == 0 {
		cfg.Backfill.DelayMS = defaults.Backfill.DelayMS
	}
}

// ResolveCostMultiplier resolves the effective multiplier with the precedence
// explicit override (zero included) > tier-derived > default.
func ResolveCostMultiplier(cfg *Config) float64 {
	if cfg.Billing.CostMultiplier != nil {
		return *cfg.Billing.CostMultiplier
	}
	if m, ok := tierMultipliers[cfg.Billing.SubscriptionTier]; ok {
		return m
	}
	return defaultCostMultiplier
}

// IsKnownTier reports whether the given subscription tier has a multiplier.
func IsKnownTier(tier string) bool {
	_, ok := tierMultipliers[tier]
	return ok
}

// KnownTiers returns the sorted list of recognized subscription tiers.
func KnownTiers() []string {
	tiers := make([]string, 0, len(tierMultipliers))
	for t := range tierMultipliers {
		tiers = append(tiers, t)
	}
	sort.Strings(tiers)
	return tiers
}
