// Package main hosts the cratedig CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into IPC
// calls against the daemon: library status listings, candidate review and
// confirmation, observation ingest, likes refreshing, job inspection, and
// configuration scaffolding. It centralizes configuration resolution and
// socket discovery so subcommands can focus on presentation.
//
// Keep this package lean: new behavior belongs in the internal packages
// first, surfaced here through dedicated commands or flags.
package main
