package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateFetch(); err != nil {
		return err
	}
	if err := c.validateEnrichment(); err != nil {
		return err
	}
	if err := c.validatePlans(); err != nil {
		return err
	}
	if err := c.validateGuest(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Backend {
	case "sqlite":
		return nil
	case "postgres":
		if strings.TrimSpace(c.Store.PostgresDSN) == "" {
			return errors.New("store.postgres_dsn must be set when store.backend is postgres")
		}
		return nil
	default:
		return fmt.Errorf("store.backend must be sqlite or postgres, got %q", c.Store.Backend)
	}
}

func (c *Config) validateFetch() error {
	if strings.TrimSpace(c.Fetch.FeedBaseURL) == "" {
		return errors.New("fetch.feed_base_url must be set")
	}
	if c.Fetch.TimeoutMinutes <= 0 {
		return errors.New("fetch.timeout_minutes must be positive")
	}
	if c.Fetch.DefaultLimit <= 0 {
		return errors.New("fetch.default_limit must be positive")
	}
	return nil
}

func (c *Config) validateEnrichment() error {
	switch c.Enrichment.Provider {
	case "openrouter", "deepseek":
	default:
		return fmt.Errorf("enrichment.provider must be openrouter or deepseek, got %q", c.Enrichment.Provider)
	}
	if c.Enrichment.MaxAttempts <= 0 {
		return errors.New("enrichment.max_attempts must be positive")
	}
	if c.Enrichment.BulkChunkSize <= 0 || c.Enrichment.CustomChunkSize <= 0 {
		return errors.New("enrichment chunk sizes must be positive")
	}
	if c.Enrichment.CooldownSeconds < 0 {
		return errors.New("enrichment.cooldown_seconds must not be negative")
	}
	if c.Enrichment.ContextBudget <= 0 {
		return errors.New("enrichment.context_budget must be positive")
	}
	switch c.Enrichment.DetailLevel {
	case "short", "detailed":
	default:
		return fmt.Errorf("enrichment.detail_level must be short or detailed, got %q", c.Enrichment.DetailLevel)
	}
	return nil
}

func (c *Config) validatePlans() error {
	if len(c.Plans) == 0 {
		return errors.New("at least one [plans.<tier>] section must be configured")
	}
	for name, plan := range c.Plans {
		switch plan.Period {
		case "daily", "monthly":
		default:
			return fmt.Errorf("plans.%s.period must be daily or monthly, got %q", name, plan.Period)
		}
		if plan.Limit <= 0 {
			return fmt.Errorf("plans.%s.limit must be positive", name)
		}
	}
	return nil
}

func (c *Config) validateGuest() error {
	if c.Guest.DailyLimit < 0 {
		return errors.New("guest.daily_limit must not be negative")
	}
	if c.Guest.TTLHours <= 0 {
		return errors.New("guest.ttl_hours must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}
