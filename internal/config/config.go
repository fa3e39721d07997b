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

// Paths contains directory and socket configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	LogDir     string `toml:"log_dir"`
	SocketPath string `toml:"socket_path"`
}

// Discogs contains configuration for the Discogs catalog client.
type Discogs struct {
	Token           string  `toml:"token"`
	BaseURL         string  `toml:"base_url"`
	UserAgent       string  `toml:"user_agent"`
	RequestsPerMin  float64 `toml:"requests_per_minute"`
	RequestTimeout  int     `toml:"request_timeout"`
	ResultsPerQuery int     `toml:"results_per_query"`
}

// MusicBrainz contains configuration for the MusicBrainz catalog client.
type MusicBrainz struct {
	Token           string  `toml:"token"`
	BaseURL         string  `toml:"base_url"`
	AppName         string  `toml:"app_name"`
	AppVersion      string  `toml:"app_version"`
	Contact         string  `toml:"contact"`
	RequestsPerMin  float64 `toml:"requests_per_minute"`
	RequestTimeout  int     `toml:"request_timeout"`
	ResultsPerQuery int     `toml:"results_per_query"`
}

// Matching contains the tunables for auto-accepting catalog lookups.
type Matching struct {
	// AutoAcceptScore is the minimum top-candidate score for an automatic
	// match when the runner-up trails by at least AutoAcceptMargin.
	AutoAcceptScore  float64 `toml:"auto_accept_score"`
	AutoAcceptMargin float64 `toml:"auto_accept_margin"`
	// HighConfidenceScore accepts the top candidate outright regardless of
	// the runner-up.
	HighConfidenceScore float64 `toml:"high_confidence_score"`
	MaxCandidates       int     `toml:"max_candidates"`
}

// Enrichment contains scheduler tuning for background lookups.
type Enrichment struct {
	WorkersPerProvider int `toml:"workers_per_provider"`
	MaxAttempts        int `toml:"max_attempts"`
	RetryBackoffSecs   int `toml:"retry_backoff_seconds"`
	JobRetentionSecs   int `toml:"job_retention_seconds"`
	QueueDepth         int `toml:"queue_depth"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	ReviewNeeded   bool   `toml:"review_needed"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for cratedig.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories and the IPC socket
//   - Discogs / MusicBrainz: catalog client credentials and budgets
//   - Matching: auto-accept thresholds for lookup results
//   - Enrichment: worker pool sizing and retry policy
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Discogs       Discogs       `toml:"discogs"`
	MusicBrainz   MusicBrainz   `toml:"musicbrainz"`
	Matching      Matching      `toml:"matching"`
	Enrichment    Enrichment    `toml:"enrichment"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/cratedig/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. When no file exists at
// the resolved path the defaults are returned and the bool is false.
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
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

// WriteSample writes the embedded sample configuration to path, refusing to
// overwrite an existing file.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config already exists at %s", expanded)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// EnsureDirectories creates the data and log directories if missing.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the location of the library database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "library.db")
}

// LockPath returns the daemon lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "cratedigd.lock")
}

// ExpandPath resolves "~" and relative segments to an absolute path.
func ExpandPath(path string) (string, error) {
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if trimmed == "~" {
			return home, nil
		}
		return filepath.Join(home, trimmed[2:]), nil
	}
	return filepath.Abs(trimmed)
}
