// Package config loads, defaults, and validates the TOML configuration that
// drives recap: storage backend selection, source fetching, enrichment
// provider settings, plan limits for the quota ledger, guest access, and
// notification delivery.
//
// Load resolves the config path (explicit flag, then
// ~/.config/recap/config.toml, then ./recap.toml), merges the file over
// Default(), expands ~ in paths, and validates the result. Components receive
// a *Config and read only their own section.
package config
