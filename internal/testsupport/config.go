package testsupport

import (
	"path/filepath"
	"testing"

	"cratedig/internal/config"
)

// ConfigOption mutates the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig builds a validated config rooted in a per-test temp directory,
// with fast retry and retention settings so scheduler tests stay quick.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.SocketPath = filepath.Join(base, "cratedigd.sock")
	cfgVal.Discogs.Token = "test"
	cfgVal.MusicBrainz.Contact = "test@example.com"
	cfgVal.Enrichment.RetryBackoffSecs = 0
	cfgVal.Enrichment.JobRetentionSecs = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("prepare config directories: %v", err)
	}
	return builder.cfg
}

// WithMatching overrides the auto-accept thresholds on the test config.
func WithMatching(accept, margin, high float64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Matching.AutoAcceptScore = accept
		b.cfg.Matching.AutoAcceptMargin = margin
		b.cfg.Matching.HighConfidenceScore = high
	}
}

// WithWorkers overrides the per-provider worker count on the test config.
func WithWorkers(workers int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Enrichment.WorkersPerProvider = workers
	}
}

// BaseDir recovers the temp directory a NewConfig result was rooted in.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
