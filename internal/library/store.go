package library

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"cratedig/internal/config"
	"cratedig/internal/events"
)

// ErrNotFound reports a lookup for an unknown track or playlist.
var ErrNotFound = errors.New("library: entity not found")

// Store is the single source of truth for the mirrored library. All writes
// are serialized through its mutex; other components never touch the
// database directly.
type Store struct {
	db   *sql.DB
	path string
	bus  *events.Bus

	// writeMu serializes mutations so interleaved multi-statement writes
	// from scheduler workers and resolver calls cannot tear each other.
	writeMu chan struct{}
}

// Open initializes or connects to the library database and applies the schema.
// The bus may be nil when change notifications are not needed (tests, tools).
func Open(cfg *config.Config, bus *events.Bus) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.DatabasePath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath, bus: bus, writeMu: make(chan struct{}, 1)}
	if err := store.applySchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) applySchema(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != 0 && version != schemaVersion {
		return fmt.Errorf("library database schema version %d is unsupported (want %d); remove %s to recreate", version, schemaVersion, s.path)
	}
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return nil
}

func (s *Store) lock(ctx context.Context) error {
	select {
	case s.writeMu <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) unlock() {
	<-s.writeMu
}

// publishTrackUpdated attaches the post-mutation track view to the event so
// subscribers can render without reading the store back. The snapshot read
// does not take writeMu; callers may still hold it.
func (s *Store) publishTrackUpdated(ctx context.Context, trackID string) {
	if s.bus == nil {
		return
	}
	payload := events.LibraryPayload{Kind: "track", ID: trackID}
	if track, err := s.GetTrack(ctx, trackID); err == nil {
		if raw, err := json.Marshal(track); err == nil {
			payload.Entity = raw
		}
	}
	s.bus.Publish(events.TopicLibrary, payload)
}

func (s *Store) publishPlaylistUpdated(record *PlaylistRecord) {
	if s.bus == nil {
		return
	}
	payload := events.LibraryPayload{Kind: "playlist", ID: record.PlaylistID}
	if raw, err := json.Marshal(record); err == nil {
		payload.Entity = raw
	}
	s.bus.Publish(events.TopicLibrary, payload)
}

func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func encodeTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	cleaned := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		trimmed := strings.TrimSpace(tag)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		cleaned = append(cleaned, trimmed)
	}
	sort.Strings(cleaned)
	raw, err := json.Marshal(cleaned)
	if err != nil {
		return ""
	}
	return string(raw)
}

func decodeTags(encoded string) []string {
	if strings.TrimSpace(encoded) == "" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(encoded), &tags); err != nil {
		return nil
	}
	return tags
}

func nullable(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func nullableInt(value int64) any {
	if value <= 0 {
		return nil
	}
	return value
}
