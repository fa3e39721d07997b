// Package notifications delivers operator alerts via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. Review and error alerts can be toggled independently so a noisy
// library does not bury real failures.
//
// Extend this package if you need alternative transports; the pipeline
// depends only on the Service interface.
package notifications
