package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"cratedig/internal/activity"
	"cratedig/internal/enrich"
	"cratedig/internal/identity"
	"cratedig/internal/library"
	"cratedig/internal/logging"
)

// Observer ingests raw observations from the listening client. Changed
// tracks are persisted and handed to the scheduler; unchanged ones are
// acknowledged without touching the store.
type Observer struct {
	store      *library.Store
	normalizer *activity.Normalizer
	scheduler  *enrich.Scheduler
	logger     *slog.Logger
}

func NewObserver(
	store *library.Store,
	normalizer *activity.Normalizer,
	scheduler *enrich.Scheduler,
	logger *slog.Logger,
) *Observer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Observer{
		store:      store,
		normalizer: normalizer,
		scheduler:  scheduler,
		logger:     logging.NewComponentLogger(logger, "observer"),
	}
}

// Track ingests one track observation. Lookups are scheduled only for
// providers the track has not already been matched on or ignored for.
func (o *Observer) Track(ctx context.Context, obs activity.TrackObservation, force bool) (*ObserveResult, error) {
	record, changed, err := o.normalizer.Track(obs, force)
	if err != nil {
		return nil, err
	}
	result := &ObserveResult{ID: record.TrackID, Changed: changed}
	if !changed {
		return result, nil
	}
	if err := o.store.UpsertTrack(ctx, record); err != nil {
		return nil, err
	}
	jobID, err := o.schedulePending(ctx, record.TrackID, "observe "+record.TrackID)
	if errors.Is(err, enrich.ErrNotRunning) {
		// Observations are still accepted while processing is stopped;
		// the next refresh picks the track up.
		o.logger.Warn("lookups not scheduled, scheduler stopped",
			logging.String(logging.FieldTrackID, record.TrackID))
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	result.JobID = jobID
	return result, nil
}

// Playlist ingests one playlist observation. Member tracks must be observed
// separately; membership rows only reference them.
func (o *Observer) Playlist(ctx context.Context, obs activity.PlaylistObservation, force bool) (*ObserveResult, error) {
	record, changed, err := o.normalizer.Playlist(obs, force)
	if err != nil {
		return nil, err
	}
	result := &ObserveResult{ID: record.PlaylistID, Changed: changed}
	if !changed {
		return result, nil
	}
	if err := o.store.UpsertPlaylist(ctx, record); err != nil {
		return nil, err
	}
	return result, nil
}

// RefreshLikes ingests a batch of liked-track observations and re-schedules
// lookups for every liked track still unresolved on some provider. An empty
// batch just re-scans the stored library.
func (o *Observer) RefreshLikes(ctx context.Context, observations []activity.TrackObservation, force bool) (*RefreshResult, error) {
	result := &RefreshResult{}
	for i, obs := range observations {
		record, changed, err := o.normalizer.Track(obs, force)
		if err != nil {
			return nil, fmt.Errorf("refresh likes: observation %d: %w", i, err)
		}
		result.Observed++
		if !changed {
			continue
		}
		if err := o.store.UpsertTrack(ctx, record); err != nil {
			return nil, err
		}
	}

	pairs, tracks, err := o.pendingLikedPairs(ctx)
	if err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		return result, nil
	}
	jobID, err := o.scheduler.EnqueueBatch("refresh likes", pairs)
	if err != nil {
		return nil, err
	}
	result.Scheduled = tracks
	result.JobID = jobID
	o.logger.Info("likes refresh scheduled",
		logging.Int("observed", result.Observed),
		logging.Int("scheduled", result.Scheduled),
		logging.String(logging.FieldJobID, jobID))
	return result, nil
}

// LocalAsset records the local file backing a track. No lookups are
// scheduled; asset state only affects listing filters.
func (o *Observer) LocalAsset(ctx context.Context, obs activity.LocalAssetObservation) error {
	if !identity.Valid(obs.TrackID) {
		return fmt.Errorf("record local asset: invalid track id %q", obs.TrackID)
	}
	if strings.TrimSpace(obs.Location) == "" {
		return errors.New("record local asset: missing location")
	}
	return o.store.RecordLocalAsset(ctx, &library.LocalAssetRecord{
		TrackID:    obs.TrackID,
		Location:   strings.TrimSpace(obs.Location),
		Checksum:   strings.TrimSpace(obs.Checksum),
		Available:  obs.Available,
		DurationMS: obs.DurationMS,
	})
}

// ExternalMembership links a track to an entry in an external DJ library.
func (o *Observer) ExternalMembership(ctx context.Context, obs activity.ExternalMembershipObservation) error {
	if strings.TrimSpace(obs.ExternalID) == "" {
		return errors.New("record external membership: missing external id")
	}
	if !identity.Valid(obs.TrackID) {
		return fmt.Errorf("record external membership: invalid track id %q", obs.TrackID)
	}
	return o.store.RecordExternalMembership(ctx, strings.TrimSpace(obs.ExternalID), obs.TrackID)
}

// MissingAssets lists ids of tracks without a usable local file.
func (o *Observer) MissingAssets(ctx context.Context) ([]string, error) {
	return o.store.ListMissingAssets(ctx)
}

// schedulePending enqueues lookups for providers still worth searching:
// unchecked and errored pairs. Successful, ambiguous, and ignored pairs are
// left to the operator.
func (o *Observer) schedulePending(ctx context.Context, trackID, label string) (string, error) {
	var jobID string
	for _, provider := range library.Providers() {
		state, err := o.store.GetMatch(ctx, trackID, provider)
		if err != nil {
			return "", err
		}
		if state.Status != library.StatusUnchecked && state.Status != library.StatusError {
			continue
		}
		id, err := o.scheduler.EnqueuePair(trackID, provider, label)
		if err != nil {
			return "", err
		}
		jobID = id
	}
	return jobID, nil
}

// pendingLikedPairs pages through the liked tracks and collects the
// (track, provider) pairs still worth searching. Pairs the operator has
// already settled, ignored or confirmed, never re-enter the batch; only
// unchecked and errored ones do. Also returns the distinct track count.
func (o *Observer) pendingLikedPairs(ctx context.Context) ([]enrich.Pair, int, error) {
	var pairs []enrich.Pair
	tracks := 0
	offset := 0
	for {
		page, err := o.store.ListStatus(ctx, library.StatusFilter{
			LikedOnly: true,
			Limit:     500,
			Offset:    offset,
		})
		if err != nil {
			return nil, 0, err
		}
		for _, row := range page.Rows {
			count := len(pairs)
			for _, provider := range library.Providers() {
				state := row.ProviderStates[provider]
				if state.Status != library.StatusUnchecked && state.Status != library.StatusError {
					continue
				}
				pairs = append(pairs, enrich.Pair{TrackID: row.TrackID, Provider: provider})
			}
			if len(pairs) > count {
				tracks++
			}
		}
		offset += len(page.Rows)
		if len(page.Rows) == 0 || offset >= page.Total {
			return pairs, tracks, nil
		}
	}
}
