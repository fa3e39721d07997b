package testsupport

import (
	"context"
	"testing"

	"cratedig/internal/config"
	"cratedig/internal/events"
	"cratedig/internal/library"
)

// MustOpenStore opens a library.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config, bus *events.Bus) *library.Store {
	t.Helper()

	store, err := library.Open(cfg, bus)
	if err != nil {
		t.Fatalf("library.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// SeedTrack upserts a minimal track for tests using the provided store.
func SeedTrack(t testing.TB, store *library.Store, trackID, title, artist string) {
	t.Helper()

	record := &library.TrackRecord{
		TrackID: trackID,
		Title:   title,
		Artist:  artist,
	}
	if err := store.UpsertTrack(context.Background(), record); err != nil {
		t.Fatalf("store.UpsertTrack: %v", err)
	}
}
