package library

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// SetMatch atomically replaces the (track, provider) status and its
// candidate set. A nil candidates slice clears any retained candidates.
func (s *Store) SetMatch(ctx context.Context, record *MatchRecord, candidates []Candidate) error {
	if record == nil || strings.TrimSpace(record.TrackID) == "" {
		return errors.New("set match: missing track id")
	}
	if !ValidProvider(record.Provider) {
		return fmt.Errorf("set match: unknown provider %q", record.Provider)
	}
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin match update: %w", err)
	}
	defer tx.Rollback()

	if err := s.ensureTrack(ctx, tx, record.TrackID); err != nil {
		return err
	}

	checkedAt := record.CheckedAt
	if strings.TrimSpace(checkedAt) == "" {
		checkedAt = nowStamp()
	}
	if _, err := tx.ExecContext(ctx, `
        INSERT INTO provider_matches (track_id, provider, status, release_id, confidence, query, message, checked_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(track_id, provider) DO UPDATE SET
            status = excluded.status,
            release_id = excluded.release_id,
            confidence = excluded.confidence,
            query = excluded.query,
            message = excluded.message,
            checked_at = excluded.checked_at`,
		record.TrackID, string(record.Provider), string(record.Status),
		nullable(record.ReleaseID), record.Confidence,
		nullable(record.Query), nullable(record.Message), checkedAt,
	); err != nil {
		return fmt.Errorf("upsert match %s/%s: %w", record.TrackID, record.Provider, err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE tracks SET updated_at = ? WHERE id = ?", nowStamp(), record.TrackID); err != nil {
		return fmt.Errorf("touch track %s: %w", record.TrackID, err)
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM provider_candidates WHERE match_id = ? AND provider = ?",
		record.TrackID, string(record.Provider)); err != nil {
		return fmt.Errorf("clear candidates %s/%s: %w", record.TrackID, record.Provider, err)
	}
	for _, candidate := range candidates {
		if candidate.MatchID != "" && candidate.MatchID != record.TrackID {
			continue
		}
		raw := candidate.RawPayload
		if len(raw) == 0 {
			raw = json.RawMessage("{}")
		}
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO provider_candidates (match_id, provider, release_id, score, raw_payload)
            VALUES (?, ?, ?, ?, ?)`,
			record.TrackID, string(record.Provider),
			nullable(candidate.ReleaseID), candidate.Score, string(raw),
		); err != nil {
			return fmt.Errorf("insert candidate %s/%s: %w", record.TrackID, record.Provider, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit match update: %w", err)
	}
	s.publishTrackUpdated(ctx, record.TrackID)
	return nil
}

// GetMatch returns the stored status for a (track, provider) pair.
// A missing row reads as StatusUnchecked.
func (s *Store) GetMatch(ctx context.Context, trackID string, provider Provider) (*ProviderState, error) {
	if !ValidProvider(provider) {
		return nil, fmt.Errorf("get match: unknown provider %q", provider)
	}
	matches, err := s.matchesForTrack(ctx, trackID)
	if err != nil {
		return nil, err
	}
	state, ok := matches[provider]
	if !ok {
		state = ProviderState{Status: StatusUnchecked}
	}
	return &state, nil
}

func (s *Store) matchesForTrack(ctx context.Context, trackID string) (map[Provider]ProviderState, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT provider, status, COALESCE(release_id, ''), COALESCE(confidence, 0),
               COALESCE(query, ''), COALESCE(message, ''), checked_at
        FROM provider_matches WHERE track_id = ?`, trackID)
	if err != nil {
		return nil, fmt.Errorf("load matches %s: %w", trackID, err)
	}
	defer rows.Close()

	matches := make(map[Provider]ProviderState, 2)
	for rows.Next() {
		var provider, status string
		var state ProviderState
		if err := rows.Scan(&provider, &status, &state.ReleaseID, &state.Confidence,
			&state.Query, &state.Message, &state.CheckedAt); err != nil {
			return nil, fmt.Errorf("scan match row: %w", err)
		}
		state.Status = ParseMatchStatus(status)
		matches[Provider(provider)] = state
	}
	return matches, rows.Err()
}

// ListCandidates returns the retained candidate set for a pair, best first.
func (s *Store) ListCandidates(ctx context.Context, trackID string, provider Provider) ([]Candidate, error) {
	if !ValidProvider(provider) {
		return nil, fmt.Errorf("list candidates: unknown provider %q", provider)
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT match_id, COALESCE(release_id, ''), COALESCE(score, 0), raw_payload
        FROM provider_candidates
        WHERE match_id = ? AND provider = ?
        ORDER BY score DESC`, trackID, string(provider))
	if err != nil {
		return nil, fmt.Errorf("list candidates %s/%s: %w", trackID, provider, err)
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		var candidate Candidate
		var raw string
		if err := rows.Scan(&candidate.MatchID, &candidate.ReleaseID, &candidate.Score, &raw); err != nil {
			return nil, fmt.Errorf("scan candidate row: %w", err)
		}
		candidate.RawPayload = json.RawMessage(raw)
		candidates = append(candidates, candidate)
	}
	return candidates, rows.Err()
}

// ClearCandidates drops retained candidates for a pair without touching the
// match status.
func (s *Store) ClearCandidates(ctx context.Context, trackID string, provider Provider) error {
	if !ValidProvider(provider) {
		return fmt.Errorf("clear candidates: unknown provider %q", provider)
	}
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()

	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM provider_candidates WHERE match_id = ? AND provider = ?",
		trackID, string(provider)); err != nil {
		return fmt.Errorf("clear candidates %s/%s: %w", trackID, provider, err)
	}
	return nil
}
