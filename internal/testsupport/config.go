package testsupport

import (
	"path/filepath"
	"testing"

	"recap/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Enrichment.APIKey = "test"
	cfg.Enrichment.CooldownSeconds = 0

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithPlan overrides or adds one plan tier on the test config.
func WithPlan(name string, plan config.Plan) ConfigOption {
	return func(cfg *config.Config) {
		if cfg.Plans == nil {
			cfg.Plans = map[string]config.Plan{}
		}
		cfg.Plans[name] = plan
	}
}

// WithGuestLimit overrides the guest daily limit on the test config.
func WithGuestLimit(limit int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Guest.DailyLimit = limit
	}
}
