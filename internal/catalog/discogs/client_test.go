package discogs_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"cratedig/internal/catalog"
	"cratedig/internal/catalog/discogs"
	"cratedig/internal/config"
)

func testConfig() config.Discogs {
	return config.Discogs{
		Token:           "secret-token",
		UserAgent:       "cratedig-test/1.0",
		RequestsPerMin:  6000,
		ResultsPerQuery: 5,
	}
}

func newClient(t *testing.T, handler http.HandlerFunc) *discogs.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return discogs.New(testConfig(), nil,
		discogs.WithBaseURL(server.URL),
		discogs.WithHTTPClient(server.Client()))
}

func TestSearchBuildsScopedRequest(t *testing.T) {
	var got *http.Request
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		fmt.Fprint(w, `{"results":[]}`)
	})

	if _, err := client.Search(context.Background(), catalog.Query{
		Title:  "Xtal",
		Artist: "Aphex Twin",
	}); err != nil {
		t.Fatalf("Search: %v", err)
	}

	if got.URL.Path != "/database/search" {
		t.Fatalf("unexpected path %q", got.URL.Path)
	}
	params := got.URL.Query()
	if params.Get("type") != "release" || params.Get("per_page") != "5" {
		t.Fatalf("unexpected scoping params %v", params)
	}
	if params.Get("artist") != "Aphex Twin" || params.Get("release_title") != "Xtal" {
		t.Fatalf("unexpected field params %v", params)
	}
	if params.Get("q") != "Aphex Twin Xtal" {
		t.Fatalf("unexpected free-text param %q", params.Get("q"))
	}
	if got.Header.Get("Authorization") != "Discogs token=secret-token" {
		t.Fatalf("unexpected auth header %q", got.Header.Get("Authorization"))
	}
	if got.Header.Get("User-Agent") != "cratedig-test/1.0" {
		t.Fatalf("unexpected user agent %q", got.Header.Get("User-Agent"))
	}
}

func TestSearchFiltersNonReleaseResults(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results":[
            {"id":1,"type":"release","title":"Aphex Twin - Xtal","resource_url":"https://api.test/releases/1"},
            {"id":2,"type":"artist","title":"Aphex Twin","resource_url":"https://api.test/artists/2"},
            {"id":3,"type":"release","title":"Totally Unrelated"}
        ]}`)
	})

	candidates, err := client.Search(context.Background(), catalog.Query{Title: "Xtal", Artist: "Aphex Twin"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(candidates) != 1 || candidates[0].ReleaseID != "1" {
		t.Fatalf("unexpected candidates %+v", candidates)
	}
	if candidates[0].Score <= 0 || candidates[0].Score > 100 {
		t.Fatalf("score out of range: %f", candidates[0].Score)
	}
}

func TestSearchOrdersBySimilarity(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results":[
            {"id":1,"type":"release","title":"Completely Different Record","resource_url":"https://api.test/releases/1"},
            {"id":2,"type":"release","title":"Aphex Twin - Xtal","resource_url":"https://api.test/releases/2"}
        ]}`)
	})

	candidates, err := client.Search(context.Background(), catalog.Query{Title: "Xtal", Artist: "Aphex Twin"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected two candidates, got %d", len(candidates))
	}
	if candidates[0].ReleaseID != "2" {
		t.Fatalf("closest title not ranked first: %+v", candidates)
	}
	if candidates[0].Score < candidates[1].Score {
		t.Fatal("candidates not sorted by descending score")
	}
}

func TestSearchEmptyQueryShortCircuits(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected for an empty query")
	})
	candidates, err := client.Search(context.Background(), catalog.Query{})
	if err != nil || candidates != nil {
		t.Fatalf("expected nil, nil; got %v, %v", candidates, err)
	}
}

func TestSearchStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, catalog.ErrRateLimited},
		{http.StatusUnauthorized, catalog.ErrUnauthorized},
		{http.StatusForbidden, catalog.ErrUnauthorized},
		{http.StatusBadGateway, catalog.ErrNetwork},
		{http.StatusTeapot, catalog.ErrMalformed},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			})
			if _, err := client.Search(context.Background(), catalog.Query{Title: "Xtal"}); !errors.Is(err, tc.want) {
				t.Fatalf("status %d: expected %v, got %v", tc.status, tc.want, err)
			}
		})
	}
}

func TestSearchNotFoundMeansNoCandidates(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	candidates, err := client.Search(context.Background(), catalog.Query{Title: "Xtal"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("expected no candidates, got %+v", candidates)
	}
}

func TestSearchMalformedBody(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `not json`)
	})
	if _, err := client.Search(context.Background(), catalog.Query{Title: "Xtal"}); !errors.Is(err, catalog.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestFetchRelease(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/releases/42" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("Authorization") == "" {
			t.Error("missing auth header on release fetch")
		}
		fmt.Fprint(w, `{"id":42,"title":"Selected Ambient Works 85-92"}`)
	}))
	t.Cleanup(server.Close)

	client := discogs.New(testConfig(), nil, discogs.WithHTTPClient(server.Client()))
	raw, err := client.FetchRelease(context.Background(), server.URL+"/releases/42")
	if err != nil {
		t.Fatalf("FetchRelease: %v", err)
	}
	if len(raw) == 0 {
		t.Fatal("expected release payload")
	}

	if _, err := client.FetchRelease(context.Background(), server.URL+"/missing"); err == nil {
		t.Fatal("expected error for non-200 release fetch")
	}
}
