package config

// UsageConfig configures the per-user feature meter.
type UsageConfig struct {
	DatabasePath string `yaml:"database_path"`
	// Limits maps a metered feature to its monthly allowance.
	Limits map[string]int `yaml:"limits"`
}

// LimitFor returns the monthly allowance for a feature. Unknown features get 0,
// which means every call is refused.
func (u UsageConfig) LimitFor(feature string) int {
	return u.Limits[feature]
}
