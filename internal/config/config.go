package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Store contains persistence backend configuration. The sqlite backend is
// the default and needs no DSN; the postgres backend requires one.
type Store struct {
	Backend      string `toml:"backend"`
	PostgresDSN  string `toml:"postgres_dsn"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// Fetch contains configuration for the bulk source fetcher.
type Fetch struct {
	FeedBaseURL     string `toml:"feed_base_url"`
	WatchBaseURL    string `toml:"watch_base_url"`
	CaptionsBaseURL string `toml:"captions_base_url"`
	UserAgent       string `toml:"user_agent"`
	TimeoutMinutes  int    `toml:"timeout_minutes"`
	DefaultLimit    int    `toml:"default_limit"`
	CaptionLanguage string `toml:"caption_language"`
}

// Enrichment contains configuration for the summarization provider and the
// fan-out scheduler.
type Enrichment struct {
	Provider        string `toml:"provider"`
	APIKey          string `toml:"api_key"`
	BaseURL         string `toml:"base_url"`
	Model           string `toml:"model"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	MaxAttempts     int    `toml:"max_attempts"`
	BulkChunkSize   int    `toml:"bulk_chunk_size"`
	CustomChunkSize int    `toml:"custom_chunk_size"`
	CooldownSeconds int    `toml:"cooldown_seconds"`
	ContextBudget   int    `toml:"context_budget"`
	DetailLevel     string `toml:"detail_level"`
}

// Plan declares the capacity policy for one subscription tier.
type Plan struct {
	Period string `toml:"period"`
	Limit  int    `toml:"limit"`
}

// Guest contains configuration for unauthenticated callers. Guests always
// run on a fixed daily period keyed by caller fingerprint.
type Guest struct {
	DailyLimit int `toml:"daily_limit"`
	TTLHours   int `toml:"ttl_hours"`
}

// Notifications contains configuration for ntfy-style push delivery.
type Notifications struct {
	Topic          string `toml:"topic"`
	RequestTimeout int    `toml:"request_timeout"`
	RunCompleted   bool   `toml:"run_completed"`
	RunFailed      bool   `toml:"run_failed"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for recap.
//
// Configuration sections by subsystem:
//   - Paths: data and log directories
//   - Store: persistence backend (sqlite or postgres)
//   - Fetch: bulk transcript source settings
//   - Enrichment: provider selection, retry, chunking, cooldown
//   - Plans: per-tier capacity limits served to the quota ledger
//   - Guest: fingerprint-keyed daily allowance for unauthenticated callers
//   - Notifications: ntfy push settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths           `toml:"paths"`
	Store         Store           `toml:"store"`
	Fetch         Fetch           `toml:"fetch"`
	Enrichment    Enrichment      `toml:"enrichment"`
	Plans         map[string]Plan `toml:"plans"`
	Guest         Guest           `toml:"guest"`
	Notifications Notifications   `toml:"notifications"`
	Logging       Logging         `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/recap/config.toml")
}

// SampleConfig returns the embedded sample configuration document.
func SampleConfig() string {
	return sampleConfig
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("recap.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories recap needs to operate.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	c.Enrichment.Provider = strings.ToLower(strings.TrimSpace(c.Enrichment.Provider))
	c.Enrichment.DetailLevel = strings.ToLower(strings.TrimSpace(c.Enrichment.DetailLevel))
	for name, plan := range c.Plans {
		plan.Period = strings.ToLower(strings.TrimSpace(plan.Period))
		c.Plans[name] = plan
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}
