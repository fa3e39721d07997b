// Package discogs implements the Discogs database search client.
package discogs

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
	"time"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"golang.org/x/time/rate"

	"cratedig/internal/catalog"
	"cratedig/internal/config"
	"cratedig/internal/logging"
)

// Client searches the Discogs /database/search endpoint for releases.
// Discogs search results carry no relevance score, so candidates are scored
// locally by string similarity against the queried artist and title.
type Client struct {
	baseURL    string
	token      string
	userAgent  string
	perQuery   int
	httpClient *http.Client
	limiter    *rate.Limiter
	similarity *metrics.JaroWinkler
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

func New(cfg config.Discogs, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}
	perMin := cfg.RequestsPerMin
	if perMin <= 0 {
		perMin = 55
	}
	perQuery := cfg.ResultsPerQuery
	if perQuery <= 0 {
		perQuery = 5
	}
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := &Client{
		baseURL:    cfg.BaseURL,
		token:      cfg.Token,
		userAgent:  cfg.UserAgent,
		perQuery:   perQuery,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(perMin/60.0), 1),
		similarity: metrics.NewJaroWinkler(),
		logger:     logging.NewComponentLogger(logger, "discogs"),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type searchResult struct {
	ID          int64  `json:"id"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	ResourceURL string `json:"resource_url"`
}

// Search queries /database/search scoped to releases. Results without a
// resource_url or with a non-release type are dropped.
func (c *Client) Search(ctx context.Context, query catalog.Query) ([]catalog.Candidate, error) {
	if query.Empty() {
		return nil, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", catalog.ErrNetwork, err)
	}

	params := url.Values{}
	params.Set("type", "release")
	params.Set("per_page", strconv.Itoa(c.perQuery))
	if query.Artist != "" {
		params.Set("artist", query.Artist)
	}
	if query.Title != "" {
		params.Set("release_title", query.Title)
	}
	params.Set("q", query.Term())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/database/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Discogs token="+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", catalog.ErrNetwork, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, catalog.ErrRateLimited
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, catalog.ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", catalog.ErrNetwork, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d", catalog.ErrMalformed, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", catalog.ErrNetwork, err)
	}
	var envelope struct {
		Results []json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", catalog.ErrMalformed, err)
	}

	reference := query.Term()
	candidates := make([]catalog.Candidate, 0, len(envelope.Results))
	for _, raw := range envelope.Results {
		var result searchResult
		if err := json.Unmarshal(raw, &result); err != nil {
			c.logger.Warn("skipping unreadable search result", logging.Error(err))
			continue
		}
		if result.Type != "release" || result.ResourceURL == "" {
			continue
		}
		candidates = append(candidates, catalog.Candidate{
			ReleaseID: strconv.FormatInt(result.ID, 10),
			Score:     c.score(reference, result.Title),
			Raw:       raw,
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > c.perQuery {
		candidates = candidates[:c.perQuery]
	}
	return candidates, nil
}

// FetchRelease retrieves the full release document behind a search result's
// resource_url, used when a match is accepted.
func (c *Client) FetchRelease(ctx context.Context, resourceURL string) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", catalog.ErrNetwork, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build release request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Discogs token="+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", catalog.ErrNetwork, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: release fetch status %d", catalog.ErrMalformed, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", catalog.ErrNetwork, err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: release body is not JSON", catalog.ErrMalformed)
	}
	return json.RawMessage(body), nil
}

// score maps Jaro-Winkler similarity onto the 0..100 confidence range.
func (c *Client) score(reference, title string) float64 {
	if reference == "" || title == "" {
		return 0
	}
	return strutil.Similarity(reference, title, c.similarity) * 100
}
