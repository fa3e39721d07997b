package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.toml")
	cfg, resolved, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Fatal("missing file should report exists=false")
	}
	if resolved != path {
		t.Fatalf("unexpected resolved path %q", resolved)
	}
	if cfg.Matching.AutoAcceptScore != defaultAutoAcceptScore {
		t.Fatalf("defaults not applied: %+v", cfg.Matching)
	}
	if cfg.Discogs.BaseURL != defaultDiscogsBaseURL {
		t.Fatalf("defaults not applied: %+v", cfg.Discogs)
	}
}

func TestLoadOverridesAndNormalizes(t *testing.T) {
	base := t.TempDir()
	path := writeConfig(t, `
[paths]
data_dir = "`+base+`/data"
socket_path = "`+base+`/cratedigd.sock"

[discogs]
token = "from-file"
base_url = "https://discogs.test/"

[matching]
auto_accept_score = 90
auto_accept_margin = 5
high_confidence_score = 98
`)

	cfg, _, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists {
		t.Fatal("expected exists=true")
	}
	if cfg.Discogs.Token != "from-file" {
		t.Fatalf("token not read: %q", cfg.Discogs.Token)
	}
	if cfg.Discogs.BaseURL != "https://discogs.test" {
		t.Fatalf("base url not normalized: %q", cfg.Discogs.BaseURL)
	}
	if cfg.Matching.AutoAcceptScore != 90 || cfg.Matching.HighConfidenceScore != 98 {
		t.Fatalf("matching overrides not applied: %+v", cfg.Matching)
	}
	// Unset sections keep their defaults.
	if cfg.Enrichment.WorkersPerProvider != defaultWorkersPerProvider {
		t.Fatalf("unset section lost defaults: %+v", cfg.Enrichment)
	}
}

func TestLoadTokenFromEnvironment(t *testing.T) {
	t.Setenv("DISCOGS_TOKEN", "from-env")
	t.Setenv("MUSICBRAINZ_TOKEN", "mb-from-env")

	path := filepath.Join(t.TempDir(), "absent.toml")
	cfg, _, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Discogs.Token != "from-env" || cfg.MusicBrainz.Token != "mb-from-env" {
		t.Fatalf("env tokens not picked up: %q %q", cfg.Discogs.Token, cfg.MusicBrainz.Token)
	}
}

func TestFileTokenBeatsEnvironment(t *testing.T) {
	t.Setenv("DISCOGS_TOKEN", "from-env")
	base := t.TempDir()
	path := writeConfig(t, `
[paths]
data_dir = "`+base+`/data"
socket_path = "`+base+`/cratedigd.sock"

[discogs]
token = "from-file"
`)
	cfg, _, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Discogs.Token != "from-file" {
		t.Fatalf("file token should win: %q", cfg.Discogs.Token)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty data dir", func(c *Config) { c.Paths.DataDir = "" }},
		{"empty socket", func(c *Config) { c.Paths.SocketPath = "" }},
		{"score above 100", func(c *Config) { c.Matching.AutoAcceptScore = 101 }},
		{"high below accept", func(c *Config) { c.Matching.HighConfidenceScore = 50 }},
		{"negative margin", func(c *Config) { c.Matching.AutoAcceptMargin = -1 }},
		{"zero candidates", func(c *Config) { c.Matching.MaxCandidates = 0 }},
		{"zero workers", func(c *Config) { c.Enrichment.WorkersPerProvider = 0 }},
		{"zero attempts", func(c *Config) { c.Enrichment.MaxAttempts = 0 }},
		{"bad log format", func(c *Config) { c.Logging.Format = "yaml" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := writeConfig(t, `
[matching]
auto_accept_score = 120
`)
	if _, _, _, err := Load(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}

	expanded, err := ExpandPath("~/music")
	if err != nil {
		t.Fatalf("ExpandPath: %v", err)
	}
	if expanded != filepath.Join(home, "music") {
		t.Fatalf("unexpected expansion %q", expanded)
	}

	abs, err := ExpandPath("relative/dir")
	if err != nil {
		t.Fatalf("ExpandPath relative: %v", err)
	}
	if !filepath.IsAbs(abs) {
		t.Fatalf("expected absolute path, got %q", abs)
	}

	empty, err := ExpandPath("   ")
	if err != nil || empty != "" {
		t.Fatalf("blank input should expand to empty: %q %v", empty, err)
	}
}

func TestWriteSampleRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := WriteSample(path); err != nil {
		t.Fatalf("WriteSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[matching]") {
		t.Fatal("sample config missing matching section")
	}
	if err := WriteSample(path); err == nil {
		t.Fatal("expected refusal to overwrite existing config")
	}
}

func TestDatabaseAndLockPaths(t *testing.T) {
	cfg := Default()
	cfg.Paths.DataDir = "/var/lib/cratedig"
	cfg.Paths.LogDir = "/var/log/cratedig"

	if cfg.DatabasePath() != "/var/lib/cratedig/library.db" {
		t.Fatalf("unexpected db path %q", cfg.DatabasePath())
	}
	if cfg.LockPath() != "/var/log/cratedig/cratedigd.lock" {
		t.Fatalf("unexpected lock path %q", cfg.LockPath())
	}
}
