package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDiscogs()
	c.normalizeMusicBrainz()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.SocketPath, err = expandPath(c.Paths.SocketPath); err != nil {
		return fmt.Errorf("paths.socket_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeDiscogs() {
	if c.Discogs.Token == "" {
		if value, ok := os.LookupEnv("DISCOGS_TOKEN"); ok {
			c.Discogs.Token = value
		}
	}
	c.Discogs.BaseURL = strings.TrimRight(strings.TrimSpace(c.Discogs.BaseURL), "/")
	if c.Discogs.BaseURL == "" {
		c.Discogs.BaseURL = defaultDiscogsBaseURL
	}
	if strings.TrimSpace(c.Discogs.UserAgent) == "" {
		c.Discogs.UserAgent = defaultDiscogsUserAgent
	}
	if c.Discogs.RequestsPerMin <= 0 {
		c.Discogs.RequestsPerMin = defaultDiscogsRequestsPerMin
	}
	if c.Discogs.RequestTimeout <= 0 {
		c.Discogs.RequestTimeout = defaultRequestTimeout
	}
	if c.Discogs.ResultsPerQuery <= 0 {
		c.Discogs.ResultsPerQuery = defaultResultsPerQuery
	}
}

func (c *Config) normalizeMusicBrainz() {
	if c.MusicBrainz.Token == "" {
		if value, ok := os.LookupEnv("MUSICBRAINZ_TOKEN"); ok {
			c.MusicBrainz.Token = value
		}
	}
	c.MusicBrainz.BaseURL = strings.TrimRight(strings.TrimSpace(c.MusicBrainz.BaseURL), "/")
	if c.MusicBrainz.BaseURL == "" {
		c.MusicBrainz.BaseURL = defaultMusicBrainzBaseURL
	}
	if strings.TrimSpace(c.MusicBrainz.AppName) == "" {
		c.MusicBrainz.AppName = defaultMusicBrainzAppName
	}
	if strings.TrimSpace(c.MusicBrainz.AppVersion) == "" {
		c.MusicBrainz.AppVersion = defaultMusicBrainzAppVersion
	}
	if strings.TrimSpace(c.MusicBrainz.Contact) == "" {
		c.MusicBrainz.Contact = defaultMusicBrainzContact
	}
	if c.MusicBrainz.RequestsPerMin <= 0 {
		c.MusicBrainz.RequestsPerMin = defaultMusicBrainzRequestsPerMin
	}
	if c.MusicBrainz.RequestTimeout <= 0 {
		c.MusicBrainz.RequestTimeout = defaultRequestTimeout
	}
	if c.MusicBrainz.ResultsPerQuery <= 0 {
		c.MusicBrainz.ResultsPerQuery = defaultResultsPerQuery
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
