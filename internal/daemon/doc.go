// Package daemon wires the library store, enrichment scheduler, resolver,
// and notification service into the single long-running process and guards
// it with a file lock so only one instance touches the database.
package daemon
