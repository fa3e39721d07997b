// Package logging builds the slog loggers used across the daemon and CLI.
//
// Output goes to stdout and, when a log directory is configured, a shared
// log file. The console handler prints a compact single-line format with the
// component attribute folded into the message prefix; the JSON handler is
// intended for machine consumption.
package logging
