package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// UpsertTrack creates or refreshes a track. Re-observing the same track id
// updates fields in place; the id row is never duplicated. liked_at mirrors
// the observation verbatim so an unliked track reads as unliked again.
func (s *Store) UpsertTrack(ctx context.Context, record *TrackRecord) error {
	if record == nil || strings.TrimSpace(record.TrackID) == "" {
		return errors.New("upsert track: missing track id")
	}
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()

	if err := s.upsertTrackLocked(ctx, s.db, record); err != nil {
		return err
	}
	s.publishTrackUpdated(ctx, record.TrackID)
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) upsertTrackLocked(ctx context.Context, db execer, record *TrackRecord) error {
	now := nowStamp()
	var raw any
	if len(record.RawPayload) > 0 {
		raw = string(record.RawPayload)
	}
	_, err := db.ExecContext(ctx, `
        INSERT INTO tracks (
            id, source_id, title, artist, album, duration_ms,
            artwork_url, permalink_url, tags, liked_at, raw_payload,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            source_id = COALESCE(excluded.source_id, tracks.source_id),
            title = COALESCE(excluded.title, tracks.title),
            artist = COALESCE(excluded.artist, tracks.artist),
            album = COALESCE(excluded.album, tracks.album),
            duration_ms = COALESCE(excluded.duration_ms, tracks.duration_ms),
            artwork_url = COALESCE(excluded.artwork_url, tracks.artwork_url),
            permalink_url = COALESCE(excluded.permalink_url, tracks.permalink_url),
            tags = COALESCE(excluded.tags, tracks.tags),
            liked_at = excluded.liked_at,
            raw_payload = COALESCE(excluded.raw_payload, tracks.raw_payload),
            updated_at = excluded.updated_at`,
		record.TrackID,
		nullable(record.SourceID),
		nullable(record.Title),
		nullable(record.Artist),
		nullable(record.Album),
		nullableInt(record.DurationMS),
		nullable(record.ArtworkURL),
		nullable(record.PermalinkURL),
		nullable(encodeTags(record.Tags)),
		nullable(record.LikedAt),
		raw,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("upsert track %s: %w", record.TrackID, err)
	}
	return nil
}

// ensureTrack inserts a bare row so foreign keys hold for out-of-order
// observations (a match arriving before the track's metadata).
func (s *Store) ensureTrack(ctx context.Context, db execer, trackID string) error {
	now := nowStamp()
	_, err := db.ExecContext(ctx,
		"INSERT OR IGNORE INTO tracks (id, created_at, updated_at) VALUES (?, ?, ?)",
		trackID, now, now)
	if err != nil {
		return fmt.Errorf("ensure track %s: %w", trackID, err)
	}
	return nil
}

// UpsertPlaylist creates or refreshes a playlist and rewrites its member
// list. Member tracks must be upserted separately; membership rows only
// reference them.
func (s *Store) UpsertPlaylist(ctx context.Context, record *PlaylistRecord) error {
	if record == nil || strings.TrimSpace(record.PlaylistID) == "" {
		return errors.New("upsert playlist: missing playlist id")
	}
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin playlist upsert: %w", err)
	}
	defer tx.Rollback()

	now := nowStamp()
	updated := record.UpdatedAt
	if strings.TrimSpace(updated) == "" {
		updated = now
	}
	var raw any
	if len(record.RawPayload) > 0 {
		raw = string(record.RawPayload)
	}
	if _, err := tx.ExecContext(ctx, `
        INSERT INTO playlists (
            id, source_id, title, permalink_url, tags, track_count,
            raw_payload, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            source_id = COALESCE(excluded.source_id, playlists.source_id),
            title = COALESCE(excluded.title, playlists.title),
            permalink_url = COALESCE(excluded.permalink_url, playlists.permalink_url),
            tags = COALESCE(excluded.tags, playlists.tags),
            track_count = excluded.track_count,
            raw_payload = COALESCE(excluded.raw_payload, playlists.raw_payload),
            updated_at = excluded.updated_at`,
		record.PlaylistID,
		nullable(record.SourceID),
		nullable(record.Title),
		nullable(record.PermalinkURL),
		nullable(encodeTags(record.Tags)),
		record.TrackCount,
		raw,
		now,
		updated,
	); err != nil {
		return fmt.Errorf("upsert playlist %s: %w", record.PlaylistID, err)
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM playlist_tracks WHERE playlist_id = ?", record.PlaylistID); err != nil {
		return fmt.Errorf("clear playlist members %s: %w", record.PlaylistID, err)
	}
	for _, member := range record.Members {
		if strings.TrimSpace(member.TrackID) == "" {
			continue
		}
		if err := s.ensureTrack(ctx, tx, member.TrackID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT OR REPLACE INTO playlist_tracks (playlist_id, track_id, position) VALUES (?, ?, ?)",
			record.PlaylistID, member.TrackID, member.Position); err != nil {
			return fmt.Errorf("add playlist member %s/%s: %w", record.PlaylistID, member.TrackID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit playlist upsert: %w", err)
	}
	s.publishPlaylistUpdated(record)
	return nil
}

// GetTrack returns the stored view of a track including per-provider match
// state. Returns ErrNotFound for unknown ids.
func (s *Store) GetTrack(ctx context.Context, trackID string) (*Track, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT t.id, COALESCE(t.source_id, ''), COALESCE(t.title, ''), COALESCE(t.artist, ''),
               COALESCE(t.album, ''), COALESCE(t.duration_ms, 0), COALESCE(t.artwork_url, ''),
               COALESCE(t.permalink_url, ''), COALESCE(t.tags, ''), COALESCE(t.liked_at, ''),
               t.created_at, t.updated_at,
               COALESCE(la.location, ''), la.track_id IS NOT NULL, COALESCE(la.available, 0)
        FROM tracks t
        LEFT JOIN local_assets la ON la.track_id = t.id
        WHERE t.id = ?`, trackID)

	var track Track
	var tags string
	var available int
	if err := row.Scan(
		&track.TrackID, &track.SourceID, &track.Title, &track.Artist,
		&track.Album, &track.DurationMS, &track.ArtworkURL,
		&track.PermalinkURL, &tags, &track.LikedAt,
		&track.CreatedAt, &track.UpdatedAt,
		&track.LocalLocation, &track.LocalPresent, &available,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: track %s", ErrNotFound, trackID)
		}
		return nil, fmt.Errorf("get track %s: %w", trackID, err)
	}
	track.Tags = decodeTags(tags)
	track.LocalUsable = track.LocalPresent && available != 0

	matches, err := s.matchesForTrack(ctx, trackID)
	if err != nil {
		return nil, err
	}
	track.Matches = matches
	return &track, nil
}

// LookupSnapshot returns the metadata needed to rebuild a catalog query for
// the track. Returns ErrNotFound for unknown ids.
func (s *Store) LookupSnapshot(ctx context.Context, trackID string) (*LookupSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, COALESCE(title, ''), COALESCE(artist, ''), COALESCE(album, ''), COALESCE(tags, '')
        FROM tracks WHERE id = ?`, trackID)

	var snap LookupSnapshot
	var tags string
	if err := row.Scan(&snap.TrackID, &snap.Title, &snap.Artist, &snap.Album, &tags); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: track %s", ErrNotFound, trackID)
		}
		return nil, fmt.Errorf("lookup snapshot %s: %w", trackID, err)
	}
	snap.Tags = decodeTags(tags)
	return &snap, nil
}

// RecordLocalAsset stores or refreshes the local file backing a track.
func (s *Store) RecordLocalAsset(ctx context.Context, record *LocalAssetRecord) error {
	if record == nil || strings.TrimSpace(record.TrackID) == "" {
		return errors.New("record local asset: missing track id")
	}
	if strings.TrimSpace(record.Location) == "" {
		return errors.New("record local asset: missing location")
	}
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()

	if err := s.ensureTrack(ctx, s.db, record.TrackID); err != nil {
		return err
	}
	available := 0
	if record.Available {
		available = 1
	}
	if _, err := s.db.ExecContext(ctx, `
        INSERT INTO local_assets (track_id, location, checksum, available, duration_ms, recorded_at)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT(track_id) DO UPDATE SET
            location = excluded.location,
            checksum = excluded.checksum,
            available = excluded.available,
            duration_ms = excluded.duration_ms,
            recorded_at = excluded.recorded_at`,
		record.TrackID, record.Location, nullable(record.Checksum),
		available, nullableInt(record.DurationMS), nowStamp(),
	); err != nil {
		return fmt.Errorf("record local asset %s: %w", record.TrackID, err)
	}
	s.publishTrackUpdated(ctx, record.TrackID)
	return nil
}

// RecordExternalMembership links a track to an entry in an external DJ
// library (rekordbox et al), keyed by the external id.
func (s *Store) RecordExternalMembership(ctx context.Context, externalID, trackID string) error {
	if strings.TrimSpace(externalID) == "" || strings.TrimSpace(trackID) == "" {
		return errors.New("record external membership: missing id")
	}
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()

	if err := s.ensureTrack(ctx, s.db, trackID); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `
        INSERT INTO external_memberships (external_id, track_id, updated_at)
        VALUES (?, ?, ?)
        ON CONFLICT(external_id) DO UPDATE SET
            track_id = excluded.track_id,
            updated_at = excluded.updated_at`,
		externalID, trackID, nowStamp(),
	); err != nil {
		return fmt.Errorf("record external membership %s: %w", externalID, err)
	}
	s.publishTrackUpdated(ctx, trackID)
	return nil
}

// ListMissingAssets returns ids of tracks without a usable local file.
func (s *Store) ListMissingAssets(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT tracks.id
        FROM tracks
        LEFT JOIN local_assets ON local_assets.track_id = tracks.id
        WHERE local_assets.track_id IS NULL OR local_assets.available = 0
        ORDER BY tracks.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list missing assets: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan missing asset row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
