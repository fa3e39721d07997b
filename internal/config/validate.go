package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateMatching(); err != nil {
		return err
	}
	if err := c.validateEnrichment(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Paths.SocketPath == "" {
		return errors.New("paths.socket_path must be set")
	}
	return nil
}

func (c *Config) validateMatching() error {
	m := c.Matching
	if m.AutoAcceptScore < 0 || m.AutoAcceptScore > 100 {
		return errors.New("matching.auto_accept_score must be between 0 and 100")
	}
	if m.HighConfidenceScore < m.AutoAcceptScore {
		return errors.New("matching.high_confidence_score must not be below matching.auto_accept_score")
	}
	if m.AutoAcceptMargin < 0 || m.AutoAcceptMargin > 100 {
		return errors.New("matching.auto_accept_margin must be between 0 and 100")
	}
	if m.MaxCandidates < 1 {
		return errors.New("matching.max_candidates must be at least 1")
	}
	return nil
}

func (c *Config) validateEnrichment() error {
	e := c.Enrichment
	if e.WorkersPerProvider < 1 {
		return errors.New("enrichment.workers_per_provider must be at least 1")
	}
	if e.MaxAttempts < 1 {
		return errors.New("enrichment.max_attempts must be at least 1")
	}
	if e.QueueDepth < 1 {
		return errors.New("enrichment.queue_depth must be at least 1")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}
