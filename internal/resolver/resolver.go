// Package resolver applies operator decisions to provider matches: listing
// retained candidates, confirming one, ignoring a pair, or retrying the
// lookup.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"cratedig/internal/enrich"
	"cratedig/internal/library"
	"cratedig/internal/logging"
)

// Resolver mediates between the stored match state and the scheduler. Every
// decision invalidates in-flight lookups for the pair before writing so the
// decision cannot be overwritten by a result that was already running.
type Resolver struct {
	store     *library.Store
	scheduler *enrich.Scheduler
	logger    *slog.Logger
}

func New(store *library.Store, scheduler *enrich.Scheduler, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Resolver{
		store:     store,
		scheduler: scheduler,
		logger:    logging.NewComponentLogger(logger, "resolver"),
	}
}

// ErrPending means a lookup was scheduled and candidates are not yet
// available.
var ErrPending = errors.New("resolver: lookup scheduled, candidates pending")

// Candidates returns the retained candidate set for a pair. When the cache
// is empty and the pair is not already being looked up, a fresh lookup is
// scheduled and ErrPending is returned.
func (r *Resolver) Candidates(ctx context.Context, trackID string, provider library.Provider) ([]library.Candidate, error) {
	if _, err := r.store.GetTrack(ctx, trackID); err != nil {
		return nil, err
	}
	candidates, err := r.store.ListCandidates(ctx, trackID, provider)
	if err != nil {
		return nil, err
	}
	if len(candidates) > 0 {
		return candidates, nil
	}
	if r.scheduler.Running(trackID, provider) {
		return nil, ErrPending
	}
	if _, err := r.scheduler.EnqueuePair(trackID, provider, "candidate refresh"); err != nil {
		return nil, err
	}
	return nil, ErrPending
}

// Confirm records an operator-chosen release for the pair and clears the
// retained candidates down to the chosen one. A non-empty raw payload is
// stored with the candidate; it covers releases that never appeared in the
// retained set, where the operator supplies the document themselves.
func (r *Resolver) Confirm(ctx context.Context, trackID string, provider library.Provider, releaseID string, raw json.RawMessage) error {
	if strings.TrimSpace(releaseID) == "" {
		return errors.New("confirm: missing release id")
	}
	candidates, err := r.store.ListCandidates(ctx, trackID, provider)
	if err != nil {
		return err
	}
	chosen := library.Candidate{MatchID: trackID, ReleaseID: releaseID, Score: 100}
	for _, candidate := range candidates {
		if candidate.ReleaseID == releaseID {
			chosen = candidate
			chosen.Score = 100
			break
		}
	}
	if len(raw) > 0 {
		chosen.RawPayload = raw
	}

	r.scheduler.Invalidate(trackID, provider)
	record := &library.MatchRecord{
		TrackID:    trackID,
		Provider:   provider,
		Status:     library.StatusSuccess,
		ReleaseID:  releaseID,
		Confidence: 100,
		Message:    "confirmed by operator",
	}
	if err := r.store.SetMatch(ctx, record, []library.Candidate{chosen}); err != nil {
		return fmt.Errorf("confirm %s/%s: %w", trackID, provider, err)
	}
	r.logger.Info("match confirmed",
		logging.String(logging.FieldTrackID, trackID),
		logging.String(logging.FieldProvider, string(provider)),
		logging.String("release_id", releaseID))
	return nil
}

// Ignore marks the pair as deliberately unmatched. An empty provider
// ignores the track on every provider.
func (r *Resolver) Ignore(ctx context.Context, trackID string, provider library.Provider) error {
	providers := []library.Provider{provider}
	if provider == "" {
		providers = library.Providers()
	}
	for _, p := range providers {
		r.scheduler.Invalidate(trackID, p)
		record := &library.MatchRecord{
			TrackID:  trackID,
			Provider: p,
			Status:   library.StatusIgnored,
			Message:  "ignored by operator",
		}
		if err := r.store.SetMatch(ctx, record, nil); err != nil {
			return fmt.Errorf("ignore %s/%s: %w", trackID, p, err)
		}
	}
	r.logger.Info("track ignored",
		logging.String(logging.FieldTrackID, trackID),
		logging.String(logging.FieldProvider, string(provider)))
	return nil
}

// Retry schedules a fresh lookup regardless of the pair's current status,
// superseding any lookup already in flight so the retry's outcome wins.
// An empty provider retries every provider. Returns the job id.
func (r *Resolver) Retry(ctx context.Context, trackID string, provider library.Provider) (string, error) {
	if _, err := r.store.GetTrack(ctx, trackID); err != nil {
		return "", err
	}
	if provider == "" {
		return r.scheduler.RetryTrack(trackID, "retry "+trackID)
	}
	return r.scheduler.RetryPair(trackID, provider, "retry "+trackID)
}
