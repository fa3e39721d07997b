// Package library persists the mirrored SoundCloud library in SQLite and is
// the single source of truth for track, playlist, and match state.
//
// The Store serializes every mutation through an internal lock so scheduler
// workers, resolver calls, and activity upserts can interleave safely. Reads
// go straight to the database. Every observable mutation publishes a
// library-updated event on the injected bus.
//
// Match state lives in provider_matches keyed by (track, provider); a
// missing row reads as "unchecked". Candidates are retained per pair only
// until the next terminal transition replaces them.
package library
