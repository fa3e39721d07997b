package library

import (
	"context"
	"fmt"
	"strings"
)

const (
	defaultStatusLimit = 100
	maxStatusLimit     = 500
)

// ListStatus returns a filtered, paginated snapshot of the library. Total
// counts the filtered set so callers can page without a second query.
func (s *Store) ListStatus(ctx context.Context, filter StatusFilter) (*StatusPage, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultStatusLimit
	}
	if limit > maxStatusLimit {
		limit = maxStatusLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	var conditions []string
	var args []any
	if filter.MissingLocalOnly {
		conditions = append(conditions, "(la.track_id IS NULL OR la.available = 0)")
	}
	if filter.UnresolvedProvider != "" {
		if !ValidProvider(filter.UnresolvedProvider) {
			return nil, fmt.Errorf("list status: unknown provider %q", filter.UnresolvedProvider)
		}
		conditions = append(conditions, `NOT EXISTS (
            SELECT 1 FROM provider_matches pm
            WHERE pm.track_id = t.id AND pm.provider = ?
              AND pm.status = 'success' AND pm.release_id IS NOT NULL)`)
		args = append(args, string(filter.UnresolvedProvider))
	}
	if filter.LikedOnly {
		conditions = append(conditions, "t.liked_at IS NOT NULL")
	}
	if filter.ExternalOnly {
		conditions = append(conditions, "em.track_id IS NOT NULL")
	}

	fromClause := `
        FROM tracks t
        LEFT JOIN local_assets la ON la.track_id = t.id
        LEFT JOIN external_memberships em ON em.track_id = t.id`
	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(DISTINCT t.id)" + fromClause + whereClause
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count status rows: %w", err)
	}

	selectQuery := `
        SELECT DISTINCT t.id, COALESCE(t.title, ''), COALESCE(t.artist, ''), COALESCE(t.album, ''),
               COALESCE(t.liked_at, ''), COALESCE(t.permalink_url, ''),
               la.track_id IS NOT NULL, COALESCE(la.available, 0), COALESCE(la.location, ''),
               em.track_id IS NOT NULL` +
		fromClause + whereClause + `
        ORDER BY t.updated_at DESC, t.id ASC
        LIMIT ? OFFSET ?`
	queryArgs := append(append([]any{}, args...), limit, offset)

	rows, err := s.db.QueryContext(ctx, selectQuery, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("list status rows: %w", err)
	}
	defer rows.Close()

	result := make([]StatusRow, 0, limit)
	for rows.Next() {
		var row StatusRow
		var available int
		if err := rows.Scan(
			&row.TrackID, &row.Title, &row.Artist, &row.Album,
			&row.LikedAt, &row.PermalinkURL,
			&row.HasLocalFile, &available, &row.LocalLocation,
			&row.InExternal,
		); err != nil {
			return nil, fmt.Errorf("scan status row: %w", err)
		}
		row.Liked = row.LikedAt != ""
		row.LocalAvailable = row.HasLocalFile && available != 0
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range result {
		matches, err := s.matchesForTrack(ctx, result[i].TrackID)
		if err != nil {
			return nil, err
		}
		for _, provider := range Providers() {
			if _, ok := matches[provider]; !ok {
				matches[provider] = ProviderState{Status: StatusUnchecked}
			}
		}
		result[i].ProviderStates = matches
	}

	return &StatusPage{Rows: result, Total: total, Limit: limit, Offset: offset}, nil
}

// Stats aggregates library counts for daemon status reporting.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	queries := []struct {
		dest  *int
		query string
	}{
		{&stats.Tracks, "SELECT COUNT(*) FROM tracks"},
		{&stats.Playlists, "SELECT COUNT(*) FROM playlists"},
		{&stats.Liked, "SELECT COUNT(*) FROM tracks WHERE liked_at IS NOT NULL"},
		{&stats.Matched, "SELECT COUNT(DISTINCT track_id) FROM provider_matches WHERE status = 'success'"},
		{&stats.Ambiguous, "SELECT COUNT(DISTINCT track_id) FROM provider_matches WHERE status = 'ambiguous'"},
		{&stats.Errored, "SELECT COUNT(DISTINCT track_id) FROM provider_matches WHERE status = 'error'"},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("library stats: %w", err)
		}
	}
	return stats, nil
}
