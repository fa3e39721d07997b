// Package config loads, normalizes, and validates the TOML configuration
// shared by the daemon and CLI.
//
// Configuration resolves from an explicit --config path or the default
// location under ~/.config/cratedig. Missing files fall back to defaults so
// the daemon can start with nothing but catalog credentials in the
// environment. Path fields are tilde-expanded and normalized before
// validation runs.
package config
