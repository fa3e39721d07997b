// Package catalog defines the contract shared by the external catalog
// clients: the query and candidate shapes, the error taxonomy the scheduler
// branches on, and request throttling helpers.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// Query carries the track metadata a search is built from.
type Query struct {
	Title  string
	Artist string
	Album  string
}

// Term returns the free-text form of the query ("artist title").
func (q Query) Term() string {
	parts := make([]string, 0, 2)
	if artist := strings.TrimSpace(q.Artist); artist != "" {
		parts = append(parts, artist)
	}
	if title := strings.TrimSpace(q.Title); title != "" {
		parts = append(parts, title)
	}
	return strings.Join(parts, " ")
}

// Empty reports whether the query has no searchable terms.
func (q Query) Empty() bool {
	return q.Term() == ""
}

// Candidate is one normalized search result, raw provider payload retained
// for UI display and match confirmation.
type Candidate struct {
	ReleaseID string
	Score     float64
	Raw       json.RawMessage
}

// Client searches one catalog provider. Implementations are safe for
// concurrent use and apply their own rate limiting.
type Client interface {
	// Search returns scored candidates, best first. An empty slice means
	// the provider had nothing plausible; taxonomy errors describe
	// everything else.
	Search(ctx context.Context, query Query) ([]Candidate, error)
}

// Error taxonomy. The scheduler retries ErrNetwork and ErrRateLimited with
// backoff, fails immediately on ErrUnauthorized, and treats ErrMalformed as
// zero candidates.
var (
	ErrRateLimited  = errors.New("catalog: rate limited")
	ErrUnauthorized = errors.New("catalog: unauthorized")
	ErrNetwork      = errors.New("catalog: network failure")
	ErrMalformed    = errors.New("catalog: malformed response")
)

// Transient reports whether err is worth retrying with backoff.
func Transient(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrRateLimited)
}
