package main

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// loadEnvFiles reads provider credentials from .env files before config
// load so DISCOGS_TOKEN and MUSICBRAINZ_TOKEN can live outside config.toml.
// Missing files are fine; explicit environment variables win.
func loadEnvFiles() {
	candidates := []string{".env"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "cratedig", ".env"))
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		_ = godotenv.Load(candidate)
	}
}
