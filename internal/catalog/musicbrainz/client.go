// Package musicbrainz implements the MusicBrainz release search client.
package musicbrainz

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"cratedig/internal/catalog"
	"cratedig/internal/config"
	"cratedig/internal/logging"
)

const (
	maxAttempts       = 3
	defaultRetryAfter = 5 * time.Second
)

// Client searches the MusicBrainz /ws/2/release endpoint. Search uses the
// Lucene query syntax and honors Retry-After on throttled responses before
// giving up.
type Client struct {
	baseURL    string
	token      string
	userAgent  string
	perQuery   int
	httpClient *http.Client
	limiter    *rate.Limiter
	sleep      func(ctx context.Context, d time.Duration) error
	logger     *slog.Logger
}

type Option func(*Client)

// WithHTTPClient overrides the HTTP client, for tests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// WithBaseURL overrides the API base, for tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithSleep overrides the retry sleep, for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = sleep }
}

func New(cfg config.MusicBrainz, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}
	perMin := cfg.RequestsPerMin
	if perMin <= 0 {
		perMin = 50
	}
	perQuery := cfg.ResultsPerQuery
	if perQuery <= 0 {
		perQuery = 5
	}
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	userAgent := fmt.Sprintf("%s/%s (%s)", cfg.AppName, cfg.AppVersion, cfg.Contact)
	client := &Client{
		baseURL:    cfg.BaseURL,
		token:      cfg.Token,
		userAgent:  userAgent,
		perQuery:   perQuery,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(perMin/60.0), 1),
		sleep:      sleepContext,
		logger:     logging.NewComponentLogger(logger, "musicbrainz"),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Search queries the release index, retrying throttled responses up to
// three attempts total.
func (c *Client) Search(ctx context.Context, query catalog.Query) ([]catalog.Candidate, error) {
	if query.Empty() {
		return nil, nil
	}
	lucene := BuildQuery(query)

	params := url.Values{}
	params.Set("query", lucene)
	params.Set("fmt", "json")
	params.Set("limit", strconv.Itoa(c.perQuery))
	endpoint := c.baseURL + "/ws/2/release/?" + params.Encode()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", catalog.ErrNetwork, err)
		}
		candidates, retryAfter, err := c.doSearch(ctx, endpoint)
		if err == nil {
			return candidates, nil
		}
		lastErr = err
		if retryAfter <= 0 {
			break
		}
		c.logger.Warn("throttled, retrying",
			logging.Int("attempt", attempt),
			logging.Duration("retry_after", retryAfter))
		if err := c.sleep(ctx, retryAfter); err != nil {
			return nil, fmt.Errorf("%w: %v", catalog.ErrNetwork, err)
		}
	}
	return nil, lastErr
}

// doSearch performs one request. A positive retryAfter means the caller may
// retry after that delay.
func (c *Client) doSearch(ctx context.Context, endpoint string) ([]catalog.Candidate, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", catalog.ErrNetwork, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
		return nil, retryAfter(resp), catalog.ErrRateLimited
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, 0, catalog.ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return nil, 0, nil
	case resp.StatusCode >= 500:
		return nil, 0, fmt.Errorf("%w: status %d", catalog.ErrNetwork, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, 0, fmt.Errorf("%w: status %d", catalog.ErrMalformed, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", catalog.ErrNetwork, err)
	}
	var envelope struct {
		Releases []json.RawMessage `json:"releases"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", catalog.ErrMalformed, err)
	}

	candidates := make([]catalog.Candidate, 0, len(envelope.Releases))
	for _, raw := range envelope.Releases {
		// The score key is a bare number or an "ext:score" string depending
		// on the API version; read both.
		var release struct {
			ID       string          `json:"id"`
			Score    json.RawMessage `json:"score"`
			ExtScore json.RawMessage `json:"ext:score"`
		}
		if err := json.Unmarshal(raw, &release); err != nil {
			c.logger.Warn("skipping unreadable release", logging.Error(err))
			continue
		}
		if release.ID == "" {
			continue
		}
		score := parseScore(release.Score)
		if score == 0 {
			score = parseScore(release.ExtScore)
		}
		candidates = append(candidates, catalog.Candidate{
			ReleaseID: release.ID,
			Score:     score,
			Raw:       raw,
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > c.perQuery {
		candidates = candidates[:c.perQuery]
	}
	return candidates, 0, nil
}

// BuildQuery renders the Lucene query for a track. The album term is added
// only when present.
func BuildQuery(query catalog.Query) string {
	terms := []string{
		`artist:"` + escapeLucene(query.Artist) + `"`,
		`recording:"` + escapeLucene(query.Title) + `"`,
	}
	if strings.TrimSpace(query.Album) != "" {
		terms = append(terms, `release:"`+escapeLucene(query.Album)+`"`)
	}
	return strings.Join(terms, " AND ")
}

func parseScore(raw json.RawMessage) float64 {
	text := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if text == "" {
		return 0
	}
	score, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0
	}
	return score
}

func escapeLucene(value string) string {
	return strings.ReplaceAll(value, `"`, `\"`)
}

func retryAfter(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if seconds, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultRetryAfter
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
