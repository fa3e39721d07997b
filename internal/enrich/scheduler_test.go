package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"cratedig/internal/catalog"
	"cratedig/internal/events"
	"cratedig/internal/library"
	"cratedig/internal/testsupport"
)

type fakeClient struct {
	mu      sync.Mutex
	calls   int
	results []catalog.Candidate
	err     error
	gate    chan struct{}
}

func (f *fakeClient) Search(ctx context.Context, query catalog.Query) ([]catalog.Candidate, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.results, f.err
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingNotifier struct {
	mu       sync.Mutex
	reviewed []string
	failed   []string
}

func (n *recordingNotifier) ReviewNeeded(ctx context.Context, trackID string, provider library.Provider, title string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reviewed = append(n.reviewed, trackID)
}

func (n *recordingNotifier) LookupFailed(ctx context.Context, trackID string, provider library.Provider, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, trackID+": "+message)
}

func (n *recordingNotifier) reviewCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.reviewed)
}

func (n *recordingNotifier) failureCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.failed)
}

func candidate(id string, score float64) catalog.Candidate {
	return catalog.Candidate{
		ReleaseID: id,
		Score:     score,
		Raw:       json.RawMessage(`{"id":"` + id + `"}`),
	}
}

type schedulerFixture struct {
	scheduler *Scheduler
	store     *library.Store
	notifier  *recordingNotifier
	bus       *events.Bus
}

func newFixture(t *testing.T, client catalog.Client) *schedulerFixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Enrichment.MaxAttempts = 1
	bus := events.NewBus(nil)
	t.Cleanup(bus.Close)
	store := testsupport.MustOpenStore(t, cfg, nil)
	notifier := &recordingNotifier{}

	scheduler := NewScheduler(cfg, store,
		map[library.Provider]catalog.Client{library.ProviderDiscogs: client},
		bus, notifier, nil)
	scheduler.Start(context.Background())
	t.Cleanup(scheduler.Close)
	return &schedulerFixture{scheduler: scheduler, store: store, notifier: notifier, bus: bus}
}

func (f *schedulerFixture) seed(t *testing.T, trackID string) {
	t.Helper()
	testsupport.SeedTrack(t, f.store, trackID, "Xtal", "Aphex Twin")
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (f *schedulerFixture) waitResolved(t *testing.T, trackID string) library.ProviderState {
	t.Helper()
	var state library.ProviderState
	waitFor(t, "lookup to resolve", func() bool {
		s, err := f.store.GetMatch(context.Background(), trackID, library.ProviderDiscogs)
		if err != nil {
			return false
		}
		state = *s
		return state.Status != library.StatusUnchecked
	})
	return state
}

func (f *schedulerFixture) waitJob(t *testing.T, jobID string) Job {
	t.Helper()
	var job Job
	waitFor(t, "job to finish", func() bool {
		for _, j := range f.scheduler.Jobs() {
			if j.ID == jobID && j.terminal() {
				job = j
				return true
			}
		}
		return false
	})
	return job
}

func TestSingleCandidateAutoAccepts(t *testing.T) {
	client := &fakeClient{results: []catalog.Candidate{candidate("r-1", 62)}}
	f := newFixture(t, client)
	f.seed(t, "soundcloud:1")

	if _, err := f.scheduler.EnqueuePair("soundcloud:1", library.ProviderDiscogs, "test"); err != nil {
		t.Fatalf("EnqueuePair: %v", err)
	}
	state := f.waitResolved(t, "soundcloud:1")
	if state.Status != library.StatusSuccess || state.ReleaseID != "r-1" {
		t.Fatalf("unexpected state %+v", state)
	}
	if state.Confidence != 62 {
		t.Fatalf("confidence should mirror the score, got %f", state.Confidence)
	}

	kept, err := f.store.ListCandidates(context.Background(), "soundcloud:1", library.ProviderDiscogs)
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	if len(kept) != 1 || kept[0].ReleaseID != "r-1" {
		t.Fatalf("accepted match should retain its candidate: %+v", kept)
	}
}

func TestHighConfidenceTopAutoAccepts(t *testing.T) {
	client := &fakeClient{results: []catalog.Candidate{candidate("r-1", 96), candidate("r-2", 94)}}
	f := newFixture(t, client)
	f.seed(t, "soundcloud:1")

	f.scheduler.EnqueuePair("soundcloud:1", library.ProviderDiscogs, "test")
	state := f.waitResolved(t, "soundcloud:1")
	if state.Status != library.StatusSuccess || state.ReleaseID != "r-1" {
		t.Fatalf("unexpected state %+v", state)
	}
}

func TestClearMarginAutoAccepts(t *testing.T) {
	client := &fakeClient{results: []catalog.Candidate{candidate("r-1", 88), candidate("r-2", 70)}}
	f := newFixture(t, client)
	f.seed(t, "soundcloud:1")

	f.scheduler.EnqueuePair("soundcloud:1", library.ProviderDiscogs, "test")
	state := f.waitResolved(t, "soundcloud:1")
	if state.Status != library.StatusSuccess || state.ReleaseID != "r-1" {
		t.Fatalf("unexpected state %+v", state)
	}
}

func TestCloseScoresNeedReview(t *testing.T) {
	client := &fakeClient{results: []catalog.Candidate{candidate("r-1", 86), candidate("r-2", 80)}}
	f := newFixture(t, client)
	f.seed(t, "soundcloud:1")

	ch, cancel := f.bus.Subscribe(4, events.TopicAmbiguous)
	defer cancel()

	f.scheduler.EnqueuePair("soundcloud:1", library.ProviderDiscogs, "test")
	state := f.waitResolved(t, "soundcloud:1")
	if state.Status != library.StatusAmbiguous {
		t.Fatalf("unexpected state %+v", state)
	}
	if state.Message != "2 candidates need review" {
		t.Fatalf("unexpected message %q", state.Message)
	}

	kept, err := f.store.ListCandidates(context.Background(), "soundcloud:1", library.ProviderDiscogs)
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	if len(kept) != 2 {
		t.Fatalf("expected both candidates retained, got %+v", kept)
	}

	select {
	case event := <-ch:
		var payload events.AmbiguousPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if payload.TrackID != "soundcloud:1" || len(payload.Candidates) != 2 {
			t.Fatalf("unexpected payload %+v", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("no ambiguous event published")
	}
	if f.notifier.reviewCount() != 1 {
		t.Fatalf("expected one review notification, got %d", f.notifier.reviewCount())
	}
}

func TestEmptySearchRecordsError(t *testing.T) {
	client := &fakeClient{}
	f := newFixture(t, client)
	f.seed(t, "soundcloud:1")

	f.scheduler.EnqueuePair("soundcloud:1", library.ProviderDiscogs, "test")
	state := f.waitResolved(t, "soundcloud:1")
	if state.Status != library.StatusError || state.Message != "no candidates found" {
		t.Fatalf("unexpected state %+v", state)
	}
}

func TestMalformedResponseReadsAsEmpty(t *testing.T) {
	client := &fakeClient{err: catalog.ErrMalformed}
	f := newFixture(t, client)
	f.seed(t, "soundcloud:1")

	f.scheduler.EnqueuePair("soundcloud:1", library.ProviderDiscogs, "test")
	state := f.waitResolved(t, "soundcloud:1")
	if state.Status != library.StatusError || state.Message != "no candidates found" {
		t.Fatalf("unexpected state %+v", state)
	}
	if f.notifier.failureCount() != 0 {
		t.Fatal("malformed payloads should not page anyone")
	}
}

func TestAuthFailureRecordsErrorAndNotifies(t *testing.T) {
	client := &fakeClient{err: catalog.ErrUnauthorized}
	f := newFixture(t, client)
	f.seed(t, "soundcloud:1")

	f.scheduler.EnqueuePair("soundcloud:1", library.ProviderDiscogs, "test")
	state := f.waitResolved(t, "soundcloud:1")
	if state.Status != library.StatusError || state.Message != "provider rejected credentials" {
		t.Fatalf("unexpected state %+v", state)
	}
	if client.callCount() != 1 {
		t.Fatalf("auth failures must not retry, got %d calls", client.callCount())
	}
	if f.notifier.failureCount() != 1 {
		t.Fatalf("expected one failure notification, got %d", f.notifier.failureCount())
	}
}

func TestMissingTrackRecordsError(t *testing.T) {
	client := &fakeClient{results: []catalog.Candidate{candidate("r-1", 90)}}
	f := newFixture(t, client)

	jobID, err := f.scheduler.EnqueuePair("soundcloud:404", library.ProviderDiscogs, "test")
	if err != nil {
		t.Fatalf("EnqueuePair: %v", err)
	}
	f.waitJob(t, jobID)

	state, err := f.store.GetMatch(context.Background(), "soundcloud:404", library.ProviderDiscogs)
	if err != nil {
		t.Fatalf("GetMatch: %v", err)
	}
	if state.Status != library.StatusError || state.Message != "track metadata unavailable" {
		t.Fatalf("unexpected state %+v", state)
	}
}

func TestBareTrackRecordsInsufficientMetadata(t *testing.T) {
	client := &fakeClient{results: []catalog.Candidate{candidate("r-1", 90)}}
	f := newFixture(t, client)
	if err := f.store.UpsertTrack(context.Background(), &library.TrackRecord{TrackID: "soundcloud:1"}); err != nil {
		t.Fatalf("seed bare track: %v", err)
	}

	f.scheduler.EnqueuePair("soundcloud:1", library.ProviderDiscogs, "test")
	state := f.waitResolved(t, "soundcloud:1")
	if state.Status != library.StatusError || state.Message != "insufficient metadata for search" {
		t.Fatalf("unexpected state %+v", state)
	}
	if client.callCount() != 0 {
		t.Fatal("no provider call expected without searchable metadata")
	}
}

func TestDuplicateEnqueueIsSkipped(t *testing.T) {
	gate := make(chan struct{})
	client := &fakeClient{gate: gate, results: []catalog.Candidate{candidate("r-1", 90)}}
	f := newFixture(t, client)
	f.seed(t, "soundcloud:1")

	first, err := f.scheduler.EnqueuePair("soundcloud:1", library.ProviderDiscogs, "first")
	if err != nil {
		t.Fatalf("first EnqueuePair: %v", err)
	}
	waitFor(t, "lookup to start", func() bool {
		return f.scheduler.Running("soundcloud:1", library.ProviderDiscogs)
	})

	second, err := f.scheduler.EnqueuePair("soundcloud:1", library.ProviderDiscogs, "second")
	if err != nil {
		t.Fatalf("second EnqueuePair: %v", err)
	}
	job := f.waitJob(t, second)
	if job.State != JobCompleted || job.Message != "skipped" {
		t.Fatalf("duplicate should complete as skipped: %+v", job)
	}

	close(gate)
	f.waitJob(t, first)
	if client.callCount() != 1 {
		t.Fatalf("expected a single provider call, got %d", client.callCount())
	}
}

func TestOperatorDecisionOutlivesLateResult(t *testing.T) {
	gate := make(chan struct{})
	client := &fakeClient{gate: gate, results: []catalog.Candidate{candidate("r-machine", 99)}}
	f := newFixture(t, client)
	f.seed(t, "soundcloud:1")

	jobID, err := f.scheduler.EnqueuePair("soundcloud:1", library.ProviderDiscogs, "test")
	if err != nil {
		t.Fatalf("EnqueuePair: %v", err)
	}
	waitFor(t, "lookup to start", func() bool {
		return f.scheduler.Running("soundcloud:1", library.ProviderDiscogs)
	})

	// Operator confirms a different release while the lookup is in flight.
	f.scheduler.Invalidate("soundcloud:1", library.ProviderDiscogs)
	if err := f.store.SetMatch(context.Background(), &library.MatchRecord{
		TrackID:    "soundcloud:1",
		Provider:   library.ProviderDiscogs,
		Status:     library.StatusSuccess,
		ReleaseID:  "r-operator",
		Confidence: 100,
	}, nil); err != nil {
		t.Fatalf("SetMatch: %v", err)
	}

	close(gate)
	f.waitJob(t, jobID)

	state, err := f.store.GetMatch(context.Background(), "soundcloud:1", library.ProviderDiscogs)
	if err != nil {
		t.Fatalf("GetMatch: %v", err)
	}
	if state.ReleaseID != "r-operator" {
		t.Fatalf("late lookup result overwrote the operator decision: %+v", state)
	}
}

func TestEnqueueRequiresRunningScheduler(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg, nil)
	scheduler := NewScheduler(cfg, store,
		map[library.Provider]catalog.Client{library.ProviderDiscogs: &fakeClient{}},
		nil, nil, nil)

	if _, err := scheduler.EnqueueTrack("soundcloud:1", "test"); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestEnqueuePairRejectsUnknownProvider(t *testing.T) {
	client := &fakeClient{}
	f := newFixture(t, client)
	if _, err := f.scheduler.EnqueuePair("soundcloud:1", library.ProviderMusicBrainz, "test"); err == nil {
		t.Fatal("expected error for provider without a client")
	}
}

func TestEnqueueBatchRunsOnlyGivenPairs(t *testing.T) {
	client := &fakeClient{results: []catalog.Candidate{candidate("r-1", 90)}}
	f := newFixture(t, client)
	f.seed(t, "soundcloud:1")

	jobID, err := f.scheduler.EnqueueBatch("batch", []Pair{
		{TrackID: "soundcloud:1", Provider: library.ProviderDiscogs},
		{TrackID: "soundcloud:1", Provider: library.ProviderMusicBrainz},
	})
	if err != nil {
		t.Fatalf("EnqueueBatch: %v", err)
	}
	job := f.waitJob(t, jobID)
	if job.State != JobCompleted || job.Total != 2 {
		t.Fatalf("unexpected job %+v", job)
	}

	state := f.waitResolved(t, "soundcloud:1")
	if state.Status != library.StatusSuccess || state.ReleaseID != "r-1" {
		t.Fatalf("unexpected state %+v", state)
	}
	if client.callCount() != 1 {
		t.Fatalf("expected a single provider call, got %d", client.callCount())
	}
}

func TestEnqueueTrackCoversEveryProvider(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Enrichment.MaxAttempts = 1
	store := testsupport.MustOpenStore(t, cfg, nil)
	discogsClient := &fakeClient{results: []catalog.Candidate{candidate("r-1", 90)}}
	mbClient := &fakeClient{results: []catalog.Candidate{candidate("mbid-1", 90)}}

	scheduler := NewScheduler(cfg, store, map[library.Provider]catalog.Client{
		library.ProviderDiscogs:     discogsClient,
		library.ProviderMusicBrainz: mbClient,
	}, nil, nil, nil)
	scheduler.Start(context.Background())
	t.Cleanup(scheduler.Close)
	testsupport.SeedTrack(t, store, "soundcloud:1", "Xtal", "Aphex Twin")

	if _, err := scheduler.EnqueueTrack("soundcloud:1", "test"); err != nil {
		t.Fatalf("EnqueueTrack: %v", err)
	}
	waitFor(t, "both providers to resolve", func() bool {
		track, err := store.GetTrack(context.Background(), "soundcloud:1")
		if err != nil {
			return false
		}
		for _, provider := range library.Providers() {
			if track.Matches[provider].Status != library.StatusSuccess {
				return false
			}
		}
		return true
	})
}
