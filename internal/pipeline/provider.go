package pipeline

import (
	"fmt"
	"strings"
	"time"

	"recap/internal/config"
	"recap/internal/enrich"
	"recap/internal/services"
	"recap/internal/services/deepseek"
	"recap/internal/services/openrouter"
)

// NewProvider selects the enrichment backend named in configuration. The
// scheduler never branches on the provider; the choice happens once, here.
func NewProvider(cfg config.Enrichment) (enrich.Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "openrouter":
		return openrouter.NewClient(openrouter.Config{
			APIKey:         cfg.APIKey,
			BaseURL:        cfg.BaseURL,
			Model:          cfg.Model,
			TimeoutSeconds: cfg.TimeoutSeconds,
		}), nil
	case "deepseek":
		opts := []deepseek.Option{
			deepseek.WithModel(cfg.Model),
		}
		if base := strings.TrimSpace(cfg.BaseURL); base != "" {
			opts = append(opts, deepseek.WithBaseURL(base))
		}
		if cfg.TimeoutSeconds > 0 {
			opts = append(opts, deepseek.WithTimeout(time.Duration(cfg.TimeoutSeconds)*time.Second))
		}
		return deepseek.NewClient(cfg.APIKey, opts...), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "provider",
			fmt.Sprintf("unknown enrichment provider %q", cfg.Provider), nil)
	}
}
