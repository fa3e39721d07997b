package resolver_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"cratedig/internal/catalog"
	"cratedig/internal/enrich"
	"cratedig/internal/library"
	"cratedig/internal/resolver"
	"cratedig/internal/testsupport"
)

type stubClient struct {
	mu      sync.Mutex
	calls   int
	results []catalog.Candidate
}

func (s *stubClient) Search(ctx context.Context, query catalog.Query) ([]catalog.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.results, nil
}

func (s *stubClient) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fixture struct {
	resolver  *resolver.Resolver
	scheduler *enrich.Scheduler
	store     *library.Store
	client    *stubClient
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Enrichment.MaxAttempts = 1
	store := testsupport.MustOpenStore(t, cfg, nil)
	client := &stubClient{}

	scheduler := enrich.NewScheduler(cfg, store, map[library.Provider]catalog.Client{
		library.ProviderDiscogs:     client,
		library.ProviderMusicBrainz: client,
	}, nil, nil, nil)
	scheduler.Start(context.Background())
	t.Cleanup(scheduler.Close)

	return &fixture{
		resolver:  resolver.New(store, scheduler, nil),
		scheduler: scheduler,
		store:     store,
		client:    client,
	}
}

func (f *fixture) seedAmbiguous(t *testing.T, trackID string) {
	t.Helper()
	testsupport.SeedTrack(t, f.store, trackID, "Xtal", "Aphex Twin")
	record := &library.MatchRecord{
		TrackID:    trackID,
		Provider:   library.ProviderDiscogs,
		Status:     library.StatusAmbiguous,
		Confidence: 82,
		Message:    "2 candidates need review",
	}
	candidates := []library.Candidate{
		{MatchID: trackID, ReleaseID: "r-1", Score: 82, RawPayload: json.RawMessage(`{"id":"r-1"}`)},
		{MatchID: trackID, ReleaseID: "r-2", Score: 79, RawPayload: json.RawMessage(`{"id":"r-2"}`)},
	}
	if err := f.store.SetMatch(context.Background(), record, candidates); err != nil {
		t.Fatalf("seed ambiguous match: %v", err)
	}
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

func TestCandidatesReturnsRetainedSet(t *testing.T) {
	f := newFixture(t)
	f.seedAmbiguous(t, "soundcloud:1")

	candidates, err := f.resolver.Candidates(context.Background(), "soundcloud:1", library.ProviderDiscogs)
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(candidates) != 2 || candidates[0].ReleaseID != "r-1" {
		t.Fatalf("unexpected candidates %+v", candidates)
	}
	if f.client.callCount() != 0 {
		t.Fatal("retained candidates must not trigger a lookup")
	}
}

func TestCandidatesSchedulesLookupWhenEmpty(t *testing.T) {
	f := newFixture(t)
	f.client.results = []catalog.Candidate{
		{ReleaseID: "r-1", Score: 50, Raw: json.RawMessage(`{"id":"r-1"}`)},
		{ReleaseID: "r-2", Score: 48, Raw: json.RawMessage(`{"id":"r-2"}`)},
	}
	testsupport.SeedTrack(t, f.store, "soundcloud:1", "Xtal", "Aphex Twin")

	_, err := f.resolver.Candidates(context.Background(), "soundcloud:1", library.ProviderDiscogs)
	if !errors.Is(err, resolver.ErrPending) {
		t.Fatalf("expected ErrPending, got %v", err)
	}

	waitFor(t, "scheduled lookup to land", func() bool {
		candidates, err := f.resolver.Candidates(context.Background(), "soundcloud:1", library.ProviderDiscogs)
		return err == nil && len(candidates) == 2
	})
}

func TestCandidatesUnknownTrack(t *testing.T) {
	f := newFixture(t)
	if _, err := f.resolver.Candidates(context.Background(), "soundcloud:404", library.ProviderDiscogs); !errors.Is(err, library.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConfirmRecordsOperatorChoice(t *testing.T) {
	f := newFixture(t)
	f.seedAmbiguous(t, "soundcloud:1")

	if err := f.resolver.Confirm(context.Background(), "soundcloud:1", library.ProviderDiscogs, "r-2", nil); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	state, err := f.store.GetMatch(context.Background(), "soundcloud:1", library.ProviderDiscogs)
	if err != nil {
		t.Fatalf("GetMatch: %v", err)
	}
	if state.Status != library.StatusSuccess || state.ReleaseID != "r-2" {
		t.Fatalf("unexpected state %+v", state)
	}
	if state.Confidence != 100 || state.Message != "confirmed by operator" {
		t.Fatalf("confirmation not marked as operator decision: %+v", state)
	}

	candidates, err := f.store.ListCandidates(context.Background(), "soundcloud:1", library.ProviderDiscogs)
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	if len(candidates) != 1 || candidates[0].ReleaseID != "r-2" {
		t.Fatalf("candidates not narrowed to the chosen release: %+v", candidates)
	}
	if string(candidates[0].RawPayload) != `{"id":"r-2"}` {
		t.Fatalf("chosen candidate lost its payload: %s", candidates[0].RawPayload)
	}
}

func TestConfirmAcceptsUnlistedRelease(t *testing.T) {
	f := newFixture(t)
	f.seedAmbiguous(t, "soundcloud:1")

	if err := f.resolver.Confirm(context.Background(), "soundcloud:1", library.ProviderDiscogs, "r-manual", nil); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	state, err := f.store.GetMatch(context.Background(), "soundcloud:1", library.ProviderDiscogs)
	if err != nil {
		t.Fatalf("GetMatch: %v", err)
	}
	if state.ReleaseID != "r-manual" || state.Status != library.StatusSuccess {
		t.Fatalf("unexpected state %+v", state)
	}
}

func TestConfirmStoresProvidedPayload(t *testing.T) {
	f := newFixture(t)
	f.seedAmbiguous(t, "soundcloud:1")

	raw := json.RawMessage(`{"id":"r-manual","title":"Selected Ambient Works 85-92"}`)
	if err := f.resolver.Confirm(context.Background(), "soundcloud:1", library.ProviderDiscogs, "r-manual", raw); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	candidates, err := f.store.ListCandidates(context.Background(), "soundcloud:1", library.ProviderDiscogs)
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	if len(candidates) != 1 || candidates[0].ReleaseID != "r-manual" {
		t.Fatalf("unexpected candidates %+v", candidates)
	}
	if string(candidates[0].RawPayload) != string(raw) {
		t.Fatalf("provided payload not stored: %s", candidates[0].RawPayload)
	}
}

func TestConfirmRequiresReleaseID(t *testing.T) {
	f := newFixture(t)
	if err := f.resolver.Confirm(context.Background(), "soundcloud:1", library.ProviderDiscogs, "  ", nil); err == nil {
		t.Fatal("expected error for empty release id")
	}
}

func TestIgnoreSingleProvider(t *testing.T) {
	f := newFixture(t)
	f.seedAmbiguous(t, "soundcloud:1")

	if err := f.resolver.Ignore(context.Background(), "soundcloud:1", library.ProviderDiscogs); err != nil {
		t.Fatalf("Ignore: %v", err)
	}

	state, err := f.store.GetMatch(context.Background(), "soundcloud:1", library.ProviderDiscogs)
	if err != nil {
		t.Fatalf("GetMatch: %v", err)
	}
	if state.Status != library.StatusIgnored || state.Message != "ignored by operator" {
		t.Fatalf("unexpected state %+v", state)
	}

	other, err := f.store.GetMatch(context.Background(), "soundcloud:1", library.ProviderMusicBrainz)
	if err != nil {
		t.Fatalf("GetMatch other provider: %v", err)
	}
	if other.Status != library.StatusUnchecked {
		t.Fatalf("other provider should stay untouched: %+v", other)
	}
}

func TestIgnoreAllProviders(t *testing.T) {
	f := newFixture(t)
	testsupport.SeedTrack(t, f.store, "soundcloud:1", "Xtal", "Aphex Twin")

	if err := f.resolver.Ignore(context.Background(), "soundcloud:1", ""); err != nil {
		t.Fatalf("Ignore: %v", err)
	}
	for _, provider := range library.Providers() {
		state, err := f.store.GetMatch(context.Background(), "soundcloud:1", provider)
		if err != nil {
			t.Fatalf("GetMatch %s: %v", provider, err)
		}
		if state.Status != library.StatusIgnored {
			t.Fatalf("%s not ignored: %+v", provider, state)
		}
	}
}

func TestRetryRunsEvenFromIgnored(t *testing.T) {
	f := newFixture(t)
	f.client.results = []catalog.Candidate{{ReleaseID: "r-1", Score: 97, Raw: json.RawMessage(`{"id":"r-1"}`)}}
	testsupport.SeedTrack(t, f.store, "soundcloud:1", "Xtal", "Aphex Twin")
	if err := f.resolver.Ignore(context.Background(), "soundcloud:1", library.ProviderDiscogs); err != nil {
		t.Fatalf("Ignore: %v", err)
	}

	jobID, err := f.resolver.Retry(context.Background(), "soundcloud:1", library.ProviderDiscogs)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if jobID == "" {
		t.Fatal("expected a job id")
	}

	waitFor(t, "retry to resolve", func() bool {
		state, err := f.store.GetMatch(context.Background(), "soundcloud:1", library.ProviderDiscogs)
		return err == nil && state.Status == library.StatusSuccess && state.ReleaseID == "r-1"
	})
}

func TestRetryAllProviders(t *testing.T) {
	f := newFixture(t)
	f.client.results = []catalog.Candidate{{ReleaseID: "r-1", Score: 97, Raw: json.RawMessage(`{"id":"r-1"}`)}}
	testsupport.SeedTrack(t, f.store, "soundcloud:1", "Xtal", "Aphex Twin")

	if _, err := f.resolver.Retry(context.Background(), "soundcloud:1", ""); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	waitFor(t, "both providers to resolve", func() bool {
		track, err := f.store.GetTrack(context.Background(), "soundcloud:1")
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

// gatedClient blocks its first search until the gate opens and answers later
// searches immediately with a different result set.
type gatedClient struct {
	mu    sync.Mutex
	calls int
	gate  chan struct{}
	first []catalog.Candidate
	rest  []catalog.Candidate
}

func (g *gatedClient) Search(ctx context.Context, query catalog.Query) ([]catalog.Candidate, error) {
	g.mu.Lock()
	n := g.calls
	g.calls++
	g.mu.Unlock()
	if n == 0 {
		<-g.gate
		return g.first, nil
	}
	return g.rest, nil
}

func (g *gatedClient) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func TestRetrySupersedesInFlightLookup(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Enrichment.MaxAttempts = 1
	store := testsupport.MustOpenStore(t, cfg, nil)
	client := &gatedClient{
		gate:  make(chan struct{}),
		first: []catalog.Candidate{{ReleaseID: "r-old", Score: 97, Raw: json.RawMessage(`{"id":"r-old"}`)}},
		rest:  []catalog.Candidate{{ReleaseID: "r-new", Score: 97, Raw: json.RawMessage(`{"id":"r-new"}`)}},
	}
	scheduler := enrich.NewScheduler(cfg, store, map[library.Provider]catalog.Client{
		library.ProviderDiscogs: client,
	}, nil, nil, nil)
	scheduler.Start(context.Background())
	t.Cleanup(scheduler.Close)
	res := resolver.New(store, scheduler, nil)

	testsupport.SeedTrack(t, store, "soundcloud:1", "Xtal", "Aphex Twin")
	if _, err := scheduler.EnqueuePair("soundcloud:1", library.ProviderDiscogs, "lookup"); err != nil {
		t.Fatalf("EnqueuePair: %v", err)
	}
	waitFor(t, "first lookup to start", func() bool { return client.callCount() == 1 })

	if _, err := res.Retry(context.Background(), "soundcloud:1", library.ProviderDiscogs); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	close(client.gate)

	waitFor(t, "both lookups to finish", func() bool {
		return client.callCount() == 2 && !scheduler.Running("soundcloud:1", library.ProviderDiscogs)
	})
	state, err := store.GetMatch(context.Background(), "soundcloud:1", library.ProviderDiscogs)
	if err != nil {
		t.Fatalf("GetMatch: %v", err)
	}
	if state.Status != library.StatusSuccess || state.ReleaseID != "r-new" {
		t.Fatalf("in-flight result should lose to the retry: %+v", state)
	}
}

func TestRetryUnknownTrack(t *testing.T) {
	f := newFixture(t)
	if _, err := f.resolver.Retry(context.Background(), "soundcloud:404", ""); !errors.Is(err, library.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
