// Package api is the command surface shared by IPC handlers and the CLI.
// It translates between wire DTOs and the internal packages that do the
// actual work.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"cratedig/internal/conflict"
	"cratedig/internal/enrich"
	"cratedig/internal/library"
	"cratedig/internal/logging"
	"cratedig/internal/resolver"
)

// Service wires the library store, scheduler, and resolver behind the
// operations the daemon exposes.
type Service struct {
	store     *library.Store
	scheduler *enrich.Scheduler
	resolver  *resolver.Resolver
	observer  *Observer
	logger    *slog.Logger
}

func NewService(
	store *library.Store,
	scheduler *enrich.Scheduler,
	res *resolver.Resolver,
	observer *Observer,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		store:     store,
		scheduler: scheduler,
		resolver:  res,
		observer:  observer,
		logger:    logging.NewComponentLogger(logger, "api"),
	}
}

// Observer returns the inbound observation handler.
func (s *Service) Observer() *Observer {
	return s.observer
}

// ListLibraryStatus returns one page of library rows matching the query.
// Conflicts are recomputed from provider state on every call.
func (s *Service) ListLibraryStatus(ctx context.Context, query StatusQuery) (*StatusPageView, error) {
	filter := library.StatusFilter{
		MissingLocalOnly:   query.MissingLocalOnly,
		UnresolvedProvider: library.Provider(query.UnresolvedProvider),
		LikedOnly:          query.LikedOnly,
		ExternalOnly:       query.ExternalOnly,
		Limit:              query.Limit,
		Offset:             query.Offset,
	}
	page, err := s.store.ListStatus(ctx, filter)
	if err != nil {
		return nil, err
	}

	view := &StatusPageView{
		Rows:   make([]TrackStatusView, 0, len(page.Rows)),
		Total:  page.Total,
		Limit:  page.Limit,
		Offset: page.Offset,
	}
	for _, row := range page.Rows {
		view.Rows = append(view.Rows, statusRowView(row))
	}
	return view, nil
}

// TrackStatus returns the listing row for one track.
func (s *Service) TrackStatus(ctx context.Context, trackID string) (*TrackStatusView, error) {
	track, err := s.store.GetTrack(ctx, trackID)
	if err != nil {
		return nil, err
	}
	view := TrackStatusView{
		TrackID:        track.TrackID,
		Title:          track.Title,
		Artist:         track.Artist,
		Album:          track.Album,
		Liked:          track.LikedAt != "",
		PermalinkURL:   track.PermalinkURL,
		HasLocalFile:   track.LocalPresent,
		LocalAvailable: track.LocalUsable,
		Providers:      providerViews(track.Matches),
		Conflicted:     conflict.Conflicted(track.Matches),
	}
	return &view, nil
}

// Candidates returns retained candidates for a pair. The pending flag means
// a fresh lookup was scheduled and the caller should poll again.
func (s *Service) Candidates(ctx context.Context, trackID, provider string) ([]CandidateView, bool, error) {
	p := library.Provider(provider)
	if !library.ValidProvider(p) {
		return nil, false, errors.New("candidates: unknown provider " + provider)
	}
	candidates, err := s.resolver.Candidates(ctx, trackID, p)
	if errors.Is(err, resolver.ErrPending) {
		return nil, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	views := make([]CandidateView, 0, len(candidates))
	for _, candidate := range candidates {
		views = append(views, CandidateView{
			ReleaseID: candidate.ReleaseID,
			Score:     candidate.Score,
			Raw:       candidate.RawPayload,
		})
	}
	return views, false, nil
}

// Confirm records an operator-chosen release for a pair. A non-empty raw
// payload is stored as the confirmed candidate's document.
func (s *Service) Confirm(ctx context.Context, trackID, provider, releaseID string, raw json.RawMessage) error {
	p := library.Provider(provider)
	if !library.ValidProvider(p) {
		return errors.New("confirm: unknown provider " + provider)
	}
	return s.resolver.Confirm(ctx, trackID, p, releaseID, raw)
}

// Ignore marks a pair, or the whole track when provider is empty, as
// deliberately unmatched.
func (s *Service) Ignore(ctx context.Context, trackID, provider string) error {
	p := library.Provider(provider)
	if provider != "" && !library.ValidProvider(p) {
		return errors.New("ignore: unknown provider " + provider)
	}
	return s.resolver.Ignore(ctx, trackID, p)
}

// Retry schedules a fresh lookup for a pair, or for every provider when
// provider is empty. Returns the tracking job id.
func (s *Service) Retry(ctx context.Context, trackID, provider string) (string, error) {
	p := library.Provider(provider)
	if provider != "" && !library.ValidProvider(p) {
		return "", errors.New("retry: unknown provider " + provider)
	}
	return s.resolver.Retry(ctx, trackID, p)
}

// Jobs returns the current background job table.
func (s *Service) Jobs() []JobView {
	jobs := s.scheduler.Jobs()
	views := make([]JobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, JobView{
			ID:        job.ID,
			Label:     job.Label,
			State:     string(job.State),
			Completed: job.Completed,
			Total:     job.Total,
			Message:   job.Message,
			UpdatedAt: job.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	return views
}

// Stats aggregates library counts.
func (s *Service) Stats(ctx context.Context) (*StatsView, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &StatsView{
		Tracks:    stats.Tracks,
		Playlists: stats.Playlists,
		Liked:     stats.Liked,
		Matched:   stats.Matched,
		Ambiguous: stats.Ambiguous,
		Errored:   stats.Errored,
	}, nil
}

func statusRowView(row library.StatusRow) TrackStatusView {
	return TrackStatusView{
		TrackID:        row.TrackID,
		Title:          row.Title,
		Artist:         row.Artist,
		Album:          row.Album,
		Liked:          row.Liked,
		PermalinkURL:   row.PermalinkURL,
		HasLocalFile:   row.HasLocalFile,
		LocalAvailable: row.LocalAvailable,
		InExternal:     row.InExternal,
		Providers:      providerViews(row.ProviderStates),
		Conflicted:     conflict.Conflicted(row.ProviderStates),
	}
}

func providerViews(states map[library.Provider]library.ProviderState) map[string]ProviderView {
	views := make(map[string]ProviderView, len(states))
	for provider, state := range states {
		views[string(provider)] = ProviderView{
			Status:     string(state.Status),
			ReleaseID:  state.ReleaseID,
			Confidence: state.Confidence,
			Message:    state.Message,
			CheckedAt:  state.CheckedAt,
		}
	}
	return views
}
