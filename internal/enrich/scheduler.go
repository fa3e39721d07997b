// Package enrich runs catalog lookups in the background and records their
// outcomes. The scheduler dedupes lookups per (track, provider) pair and
// discards results that lost a race against an operator decision or a
// superseding retry.
package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"cratedig/internal/catalog"
	"cratedig/internal/config"
	"cratedig/internal/events"
	"cratedig/internal/library"
	"cratedig/internal/logging"
)

// noCandidatesMessage is the stored error message for searches that came
// back empty.
const noCandidatesMessage = "no candidates found"

// ErrNotRunning means the scheduler has no workers to hand a lookup to.
var ErrNotRunning = errors.New("enrich: scheduler is not running")

// Notifier receives operator-facing alerts from the scheduler.
type Notifier interface {
	ReviewNeeded(ctx context.Context, trackID string, provider library.Provider, title string)
	LookupFailed(ctx context.Context, trackID string, provider library.Provider, message string)
}

// ReleaseFetcher is implemented by clients that can expand an accepted
// candidate into its full release document.
type ReleaseFetcher interface {
	FetchRelease(ctx context.Context, resourceURL string) (json.RawMessage, error)
}

// Pair addresses one (track, provider) lookup target.
type Pair struct {
	TrackID  string
	Provider library.Provider
}

type pairKey struct {
	trackID  string
	provider library.Provider
}

type task struct {
	key        pairKey
	generation uint64
	jobID      string
}

// Scheduler owns the per-provider worker pools and the pair bookkeeping.
type Scheduler struct {
	cfg      *config.Config
	store    *library.Store
	clients  map[library.Provider]catalog.Client
	bus      *events.Bus
	notifier Notifier
	logger   *slog.Logger
	jobs     *jobTracker

	mu          sync.Mutex
	inflight    map[pairKey]int
	generations map[pairKey]uint64
	queues      map[library.Provider]chan task

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

func NewScheduler(
	cfg *config.Config,
	store *library.Store,
	clients map[library.Provider]catalog.Client,
	bus *events.Bus,
	notifier Notifier,
	logger *slog.Logger,
) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	depth := cfg.Enrichment.QueueDepth
	if depth <= 0 {
		depth = 64
	}
	queues := make(map[library.Provider]chan task, len(clients))
	for provider := range clients {
		queues[provider] = make(chan task, depth)
	}
	return &Scheduler{
		cfg:         cfg,
		store:       store,
		clients:     clients,
		bus:         bus,
		notifier:    notifier,
		logger:      logging.NewComponentLogger(logger, "enrich"),
		jobs:        newJobTracker(bus, time.Duration(cfg.Enrichment.JobRetentionSecs)*time.Second),
		inflight:    make(map[pairKey]int),
		generations: make(map[pairKey]uint64),
		queues:      queues,
	}
}

// Start launches the worker pools. Workers stop when ctx is cancelled or
// Close is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.baseCtx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	workers := s.cfg.Enrichment.WorkersPerProvider
	if workers <= 0 {
		workers = 1
	}
	for provider, queue := range s.queues {
		for i := 0; i < workers; i++ {
			s.wg.Add(1)
			go s.worker(provider, queue)
		}
	}
	s.logger.Info("scheduler started",
		logging.Int("providers", len(s.queues)),
		logging.Int("workers_per_provider", workers))
}

// Close stops the workers and waits for in-flight lookups to finish.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.cancel()
	for _, queue := range s.queues {
		close(queue)
	}
	s.started = false
	s.mu.Unlock()
	s.wg.Wait()
}

// EnqueueTrack schedules a lookup against every configured provider and
// returns the tracking job id.
func (s *Scheduler) EnqueueTrack(trackID, label string) (string, error) {
	return s.enqueue(label, s.allPairs(trackID), false)
}

// EnqueuePair schedules a lookup for a single (track, provider) pair.
func (s *Scheduler) EnqueuePair(trackID string, provider library.Provider, label string) (string, error) {
	if _, ok := s.clients[provider]; !ok {
		return "", fmt.Errorf("enqueue: no client for provider %q", provider)
	}
	return s.enqueue(label, []Pair{{TrackID: trackID, Provider: provider}}, false)
}

// EnqueueBatch schedules lookups for the given pairs under one job. Callers
// decide which pairs are worth searching; pairs whose provider has no
// client count as skipped.
func (s *Scheduler) EnqueueBatch(label string, pairs []Pair) (string, error) {
	return s.enqueue(label, pairs, false)
}

// RetryPair schedules a fresh lookup for the pair, superseding any lookup
// already in flight: the pair generation is bumped so the in-flight result
// is discarded and the retry's outcome wins.
func (s *Scheduler) RetryPair(trackID string, provider library.Provider, label string) (string, error) {
	if _, ok := s.clients[provider]; !ok {
		return "", fmt.Errorf("retry: no client for provider %q", provider)
	}
	return s.enqueue(label, []Pair{{TrackID: trackID, Provider: provider}}, true)
}

// RetryTrack retries every configured provider for the track, superseding
// in-flight lookups the way RetryPair does.
func (s *Scheduler) RetryTrack(trackID, label string) (string, error) {
	return s.enqueue(label, s.allPairs(trackID), true)
}

func (s *Scheduler) allPairs(trackID string) []Pair {
	pairs := make([]Pair, 0, len(s.clients))
	for provider := range s.clients {
		pairs = append(pairs, Pair{TrackID: trackID, Provider: provider})
	}
	return pairs
}

func (s *Scheduler) enqueue(label string, pairs []Pair, supersede bool) (string, error) {
	jobID := s.jobs.create(label, len(pairs))

	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		s.jobs.fail(jobID, "scheduler is not running")
		return "", ErrNotRunning
	}
	queued, skipped := 0, 0
	for _, pair := range pairs {
		queue, ok := s.queues[pair.Provider]
		if !ok {
			skipped++
			continue
		}
		key := pairKey{trackID: pair.TrackID, provider: pair.Provider}
		if supersede {
			// The retry's task carries the bumped generation; any lookup
			// already running for the pair commits against a stale one.
			s.generations[key]++
		} else if s.inflight[key] > 0 {
			skipped++
			continue
		}
		t := task{key: key, generation: s.generations[key], jobID: jobID}
		select {
		case queue <- t:
			s.inflight[key]++
			queued++
		default:
			skipped++
			s.logger.Warn("lookup queue full",
				logging.String(logging.FieldTrackID, pair.TrackID),
				logging.String(logging.FieldProvider, string(pair.Provider)))
		}
	}
	s.mu.Unlock()

	// Pairs that were already in flight or dropped still count toward the
	// job total so it can complete.
	for i := 0; i < skipped; i++ {
		s.jobs.advance(jobID, "skipped")
	}
	if queued == 0 && skipped == 0 {
		s.jobs.fail(jobID, "nothing to do")
	}
	return jobID, nil
}

// Invalidate bumps the pair's generation so any in-flight lookup result for
// it is discarded. Operator decisions call this before writing their own
// state.
func (s *Scheduler) Invalidate(trackID string, provider library.Provider) {
	s.mu.Lock()
	s.generations[pairKey{trackID: trackID, provider: provider}]++
	s.mu.Unlock()
}

// Running reports whether a lookup is in flight for the pair.
func (s *Scheduler) Running(trackID string, provider library.Provider) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight[pairKey{trackID: trackID, provider: provider}] > 0
}

// Jobs returns a snapshot of tracked jobs.
func (s *Scheduler) Jobs() []Job {
	return s.jobs.snapshot()
}

func (s *Scheduler) release(key pairKey) {
	s.mu.Lock()
	if s.inflight[key] > 1 {
		s.inflight[key]--
	} else {
		delete(s.inflight, key)
	}
	s.mu.Unlock()
}

func (s *Scheduler) worker(provider library.Provider, queue chan task) {
	defer s.wg.Done()
	for t := range queue {
		s.jobs.start(t.jobID)
		s.runLookup(t)
		s.jobs.advance(t.jobID, t.key.trackID)
	}
}

func (s *Scheduler) runLookup(t task) {
	defer s.release(t.key)
	ctx := s.baseCtx
	logger := s.logger.With(
		logging.String(logging.FieldTrackID, t.key.trackID),
		logging.String(logging.FieldProvider, string(t.key.provider)))

	snap, err := s.store.LookupSnapshot(ctx, t.key.trackID)
	if err != nil {
		logger.Error("lookup snapshot failed", logging.Error(err))
		s.commit(ctx, t, &library.MatchRecord{
			TrackID:  t.key.trackID,
			Provider: t.key.provider,
			Status:   library.StatusError,
			Message:  "track metadata unavailable",
		}, nil)
		return
	}
	query := buildQuery(snap)
	if query.Empty() {
		s.commit(ctx, t, &library.MatchRecord{
			TrackID:  t.key.trackID,
			Provider: t.key.provider,
			Status:   library.StatusError,
			Query:    query.Term(),
			Message:  "insufficient metadata for search",
		}, nil)
		return
	}

	candidates, err := s.search(ctx, t.key.provider, query)
	if err != nil {
		if errors.Is(err, catalog.ErrMalformed) {
			logger.Warn("provider returned malformed payload", logging.Error(err))
			candidates, err = nil, nil
		} else {
			message := lookupFailureMessage(err)
			logger.Error("lookup failed", logging.Error(err))
			s.commit(ctx, t, &library.MatchRecord{
				TrackID:  t.key.trackID,
				Provider: t.key.provider,
				Status:   library.StatusError,
				Query:    query.Term(),
				Message:  message,
			}, nil)
			if s.notifier != nil {
				s.notifier.LookupFailed(ctx, t.key.trackID, t.key.provider, message)
			}
			return
		}
	}

	record, kept := s.decide(ctx, t, query, candidates, snap)
	s.commit(ctx, t, record, kept)
}

// search runs the provider query with exponential backoff on transient
// failures.
func (s *Scheduler) search(ctx context.Context, provider library.Provider, query catalog.Query) ([]catalog.Candidate, error) {
	client := s.clients[provider]
	maxAttempts := s.cfg.Enrichment.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	backoff := time.Duration(s.cfg.Enrichment.RetryBackoffSecs) * time.Second
	if backoff <= 0 {
		backoff = 5 * time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		candidates, err := client.Search(ctx, query)
		if err == nil {
			return candidates, nil
		}
		lastErr = err
		if !catalog.Transient(err) || attempt == maxAttempts {
			break
		}
		delay := backoff << (attempt - 1)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %v", catalog.ErrNetwork, ctx.Err())
		case <-timer.C:
		}
	}
	return nil, lastErr
}

// decide applies the acceptance rules to a candidate list and builds the
// match record to store.
func (s *Scheduler) decide(ctx context.Context, t task, query catalog.Query, candidates []catalog.Candidate, snap *library.LookupSnapshot) (*library.MatchRecord, []library.Candidate) {
	matching := s.cfg.Matching
	maxKeep := matching.MaxCandidates
	if maxKeep <= 0 {
		maxKeep = 5
	}
	if len(candidates) > maxKeep {
		candidates = candidates[:maxKeep]
	}

	record := &library.MatchRecord{
		TrackID:  t.key.trackID,
		Provider: t.key.provider,
		Query:    query.Term(),
	}

	if len(candidates) == 0 {
		record.Status = library.StatusError
		record.Message = noCandidatesMessage
		return record, nil
	}

	top := candidates[0]
	accepted := len(candidates) == 1 || top.Score >= matching.HighConfidenceScore
	if !accepted && len(candidates) > 1 {
		margin := top.Score - candidates[1].Score
		accepted = top.Score >= matching.AutoAcceptScore && margin >= matching.AutoAcceptMargin
	}

	if accepted {
		record.Status = library.StatusSuccess
		record.ReleaseID = top.ReleaseID
		record.Confidence = top.Score
		raw := s.expandRelease(ctx, t.key.provider, top)
		return record, []library.Candidate{{
			MatchID:    t.key.trackID,
			ReleaseID:  top.ReleaseID,
			Score:      top.Score,
			RawPayload: raw,
		}}
	}

	record.Status = library.StatusAmbiguous
	record.Confidence = top.Score
	record.Message = fmt.Sprintf("%d candidates need review", len(candidates))
	kept := make([]library.Candidate, 0, len(candidates))
	rawCandidates := make([]json.RawMessage, 0, len(candidates))
	for _, candidate := range candidates {
		kept = append(kept, library.Candidate{
			MatchID:    t.key.trackID,
			ReleaseID:  candidate.ReleaseID,
			Score:      candidate.Score,
			RawPayload: candidate.Raw,
		})
		rawCandidates = append(rawCandidates, candidate.Raw)
	}

	if s.bus != nil {
		s.bus.Publish(events.TopicAmbiguous, events.AmbiguousPayload{
			TrackID:    t.key.trackID,
			Provider:   string(t.key.provider),
			Query:      record.Query,
			Candidates: rawCandidates,
		})
	}
	if s.notifier != nil {
		s.notifier.ReviewNeeded(ctx, t.key.trackID, t.key.provider, snap.Title)
	}
	return record, kept
}

// expandRelease swaps an accepted candidate's search stub for the full
// release document when the client supports it. Failures fall back to the
// stub.
func (s *Scheduler) expandRelease(ctx context.Context, provider library.Provider, candidate catalog.Candidate) json.RawMessage {
	fetcher, ok := s.clients[provider].(ReleaseFetcher)
	if !ok {
		return candidate.Raw
	}
	var stub struct {
		ResourceURL string `json:"resource_url"`
	}
	if err := json.Unmarshal(candidate.Raw, &stub); err != nil || stub.ResourceURL == "" {
		return candidate.Raw
	}
	full, err := fetcher.FetchRelease(ctx, stub.ResourceURL)
	if err != nil {
		s.logger.Warn("release fetch failed, keeping search stub",
			logging.String(logging.FieldProvider, string(provider)),
			logging.Error(err))
		return candidate.Raw
	}
	return full
}

// commit writes the outcome unless an operator decision arrived while the
// lookup ran. The generation check and the write happen under the same lock
// that Invalidate takes, so a decision either invalidates this result or is
// written after it.
func (s *Scheduler) commit(ctx context.Context, t task, record *library.MatchRecord, candidates []library.Candidate) {
	s.mu.Lock()
	current := s.generations[t.key]
	if current != t.generation {
		s.mu.Unlock()
		s.logger.Info("discarding stale lookup result",
			logging.String(logging.FieldTrackID, t.key.trackID),
			logging.String(logging.FieldProvider, string(t.key.provider)))
		return
	}
	err := s.store.SetMatch(ctx, record, candidates)
	s.mu.Unlock()
	if err != nil {
		s.logger.Error("storing lookup result failed",
			logging.String(logging.FieldTrackID, t.key.trackID),
			logging.Error(err))
	}
}

func buildQuery(snap *library.LookupSnapshot) catalog.Query {
	query := catalog.Query{
		Title:  snap.Title,
		Artist: snap.Artist,
		Album:  snap.Album,
	}
	if query.Album == "" {
		query.Album = albumFromTags(snap.Tags)
	}
	return query
}

// albumFromTags reads an "album:<name>" tag when the track record carries no
// album field of its own.
func albumFromTags(tags []string) string {
	for _, tag := range tags {
		if rest, ok := cutPrefixFold(tag, "album:"); ok {
			return rest
		}
	}
	return ""
}

func cutPrefixFold(value, prefix string) (string, bool) {
	if len(value) < len(prefix) {
		return "", false
	}
	if !strings.EqualFold(value[:len(prefix)], prefix) {
		return "", false
	}
	rest := strings.TrimSpace(value[len(prefix):])
	return rest, rest != ""
}

func lookupFailureMessage(err error) string {
	switch {
	case errors.Is(err, catalog.ErrUnauthorized):
		return "provider rejected credentials"
	case errors.Is(err, catalog.ErrRateLimited):
		return "provider rate limit exhausted"
	case errors.Is(err, catalog.ErrNetwork):
		return "provider unreachable"
	default:
		return err.Error()
	}
}
