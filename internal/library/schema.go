package library

// schemaVersion tracks the SQLite layout. Bump it whenever the statements
// below change shape; the store recreates nothing on its own, so a version
// mismatch is reported instead of silently migrated.
const schemaVersion = 1

const schemaSQL = `
CREATE TABLE IF NOT EXISTS tracks (
    id TEXT PRIMARY KEY,
    source_id TEXT,
    title TEXT,
    artist TEXT,
    album TEXT,
    duration_ms INTEGER,
    artwork_url TEXT,
    permalink_url TEXT,
    tags TEXT,
    liked_at TEXT,
    raw_payload TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS playlists (
    id TEXT PRIMARY KEY,
    source_id TEXT,
    title TEXT,
    permalink_url TEXT,
    tags TEXT,
    track_count INTEGER NOT NULL DEFAULT 0,
    raw_payload TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS playlist_tracks (
    playlist_id TEXT NOT NULL,
    track_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    PRIMARY KEY (playlist_id, track_id),
    FOREIGN KEY (playlist_id) REFERENCES playlists(id) ON DELETE CASCADE,
    FOREIGN KEY (track_id) REFERENCES tracks(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS local_assets (
    track_id TEXT PRIMARY KEY,
    location TEXT NOT NULL,
    checksum TEXT,
    available INTEGER NOT NULL DEFAULT 1,
    duration_ms INTEGER,
    recorded_at TEXT NOT NULL,
    FOREIGN KEY (track_id) REFERENCES tracks(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS external_memberships (
    external_id TEXT PRIMARY KEY,
    track_id TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    FOREIGN KEY (track_id) REFERENCES tracks(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS provider_matches (
    track_id TEXT NOT NULL,
    provider TEXT NOT NULL,
    status TEXT NOT NULL,
    release_id TEXT,
    confidence REAL,
    query TEXT,
    message TEXT,
    checked_at TEXT NOT NULL,
    PRIMARY KEY (track_id, provider),
    FOREIGN KEY (track_id) REFERENCES tracks(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS provider_candidates (
    match_id TEXT NOT NULL,
    provider TEXT NOT NULL,
    release_id TEXT,
    score REAL,
    raw_payload TEXT NOT NULL,
    FOREIGN KEY (match_id) REFERENCES tracks(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS provider_matches_status_idx ON provider_matches(provider, status);
CREATE INDEX IF NOT EXISTS provider_candidates_match_idx ON provider_candidates(match_id, provider);
CREATE INDEX IF NOT EXISTS playlist_tracks_track_idx ON playlist_tracks(track_id);
CREATE INDEX IF NOT EXISTS tracks_updated_idx ON tracks(updated_at);
`
