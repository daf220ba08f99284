package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate", "--path", env.configPath}, env.configPath, "")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	tmp := t.TempDir()
	target := filepath.Join(tmp, "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, env.configPath, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")

	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	// Existing file refuses to be replaced without --overwrite.
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, env.configPath, ""); err == nil {
		t.Fatal("expected error for existing config without --overwrite")
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, env.configPath, ""); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigDoctor(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "doctor"}, env.configPath, "")
	if err != nil {
		t.Fatalf("config doctor: %v", err)
	}
	requireContains(t, out, "config")
	requireContains(t, out, "sqlite backend ready")
	requireContains(t, out, "openrouter configured")
	requireContains(t, out, "disabled (no topic configured)")
}

func TestConfigDoctorFlagsMissingAPIKey(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.Enrichment.APIKey = ""
	writeTestConfig(t, env.configPath, env.cfg)

	_, _, err := runCLI(t, []string{"config", "doctor"}, env.configPath, "")
	if err == nil {
		t.Fatal("expected doctor to fail without an api key")
	}
	requireContains(t, err.Error(), "doctor found problems")
}
