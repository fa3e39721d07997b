package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cratedig/internal/config"
	"cratedig/internal/library"
)

const userAgent = "Cratedig-Go/0.1.0"

// Service defines the notification surface exposed to the enrichment
// pipeline and the daemon.
type Service interface {
	NotifyReviewNeeded(ctx context.Context, trackID string, provider library.Provider, title string) error
	NotifyLookupFailed(ctx context.Context, trackID string, provider library.Provider, message string) error
	NotifyConflict(ctx context.Context, trackID, title string) error
	NotifyRefreshCompleted(ctx context.Context, tracks, playlists int) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService returns an ntfy-backed service when a topic is configured,
// otherwise a noop implementation that swallows every call.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:     topic,
		client:       &http.Client{Timeout: timeout},
		reviewNeeded: cfg.Notifications.ReviewNeeded,
		errors:       cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint     string
	client       *http.Client
	reviewNeeded bool
	errors       bool
}

func (n *ntfyService) NotifyReviewNeeded(ctx context.Context, trackID string, provider library.Provider, title string) error {
	if !n.reviewNeeded {
		return nil
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = trackID
	}
	data := payload{
		title:   "Cratedig - Review Needed",
		message: fmt.Sprintf("Ambiguous %s match: %s\nManual review required", provider, title),
		tags:    []string{"cratedig", "match", "review"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyLookupFailed(ctx context.Context, trackID string, provider library.Provider, message string) error {
	if !n.errors {
		return nil
	}
	data := payload{
		title:    "Cratedig - Lookup Failed",
		message:  fmt.Sprintf("%s lookup failed for %s: %s", provider, trackID, strings.TrimSpace(message)),
		tags:     []string{"cratedig", "lookup", "error"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyConflict(ctx context.Context, trackID, title string) error {
	if !n.reviewNeeded {
		return nil
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = trackID
	}
	data := payload{
		title:   "Cratedig - Match Conflict",
		message: fmt.Sprintf("Providers disagree on: %s", title),
		tags:    []string{"cratedig", "match", "conflict"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRefreshCompleted(ctx context.Context, tracks, playlists int) error {
	data := payload{
		title:   "Cratedig - Refresh Complete",
		message: fmt.Sprintf("Library refresh complete: %d tracks, %d playlists", tracks, playlists),
		tags:    []string{"cratedig", "refresh", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Cratedig - Error",
		message:  builder.String(),
		tags:     []string{"cratedig", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Cratedig - Test",
		message:  "Notification system test",
		tags:     []string{"cratedig", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyReviewNeeded(context.Context, string, library.Provider, string) error {
	return nil
}
func (noopService) NotifyLookupFailed(context.Context, string, library.Provider, string) error {
	return nil
}
func (noopService) NotifyConflict(context.Context, string, string) error   { return nil }
func (noopService) NotifyRefreshCompleted(context.Context, int, int) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error       { return nil }
func (noopService) TestNotification(context.Context) error                 { return nil }
