// Package events carries change notifications from the core to the UI
// boundary. Every state transition publishes exactly one event; subscribers
// receive them on buffered channels and slow subscribers lose events rather
// than stalling publishers.
package events

import (
	"encoding/json"
	"log/slog"
	"sync"

	"cratedig/internal/logging"
)

// Topic identifies an event stream.
type Topic string

const (
	// TopicAmbiguous fires when a lookup needs manual review.
	TopicAmbiguous Topic = "lookup-ambiguous"
	// TopicJob fires on background job progress and completion.
	TopicJob Topic = "job-progress"
	// TopicLibrary fires when a library entity is created or mutated.
	TopicLibrary Topic = "library-updated"
)

// Event is a single notification.
type Event struct {
	Topic   Topic           `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// AmbiguousPayload describes a lookup awaiting manual resolution.
type AmbiguousPayload struct {
	TrackID    string            `json:"trackId"`
	Provider   string            `json:"provider"`
	Query      string            `json:"query"`
	Candidates []json.RawMessage `json:"candidates"`
}

// JobPayload mirrors the transient job model for subscribers.
type JobPayload struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	State     string `json:"state"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Message   string `json:"message,omitempty"`
	UpdatedAt string `json:"updatedAt"`
}

// LibraryPayload identifies a mutated library entity. Entity carries the
// publisher's serialized snapshot of the entity after the mutation, so
// subscribers can render without a read-back; it is empty when the snapshot
// could not be loaded.
type LibraryPayload struct {
	Kind       string          `json:"kind"` // "track" or "playlist"
	ID         string          `json:"id"`
	PlaylistID string          `json:"playlistId,omitempty"`
	Entity     json.RawMessage `json:"entity,omitempty"`
}

// Bus fans events out to subscribers.
type Bus struct {
	mu     sync.Mutex
	logger *slog.Logger
	subs   map[int]subscriber
	nextID int
	closed bool
}

type subscriber struct {
	ch     chan Event
	topics map[Topic]struct{}
}

// NewBus constructs an event bus. A nil logger suppresses drop warnings.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		logger: logging.NewComponentLogger(logger, "events"),
		subs:   make(map[int]subscriber),
	}
}

// Subscribe registers for the given topics (all topics when none are given).
// The returned cancel function must be called to release the subscription.
func (b *Bus) Subscribe(buffer int, topics ...Topic) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 16
	}
	sub := subscriber{ch: make(chan Event, buffer)}
	if len(topics) > 0 {
		sub.topics = make(map[Topic]struct{}, len(topics))
		for _, topic := range topics {
			sub.topics[topic] = struct{}{}
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = sub

	return sub.ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if existing, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(existing.ch)
		}
	}
}

// Publish delivers an event to all interested subscribers without blocking.
func (b *Bus) Publish(topic Topic, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		b.logger.Warn("drop unencodable event", logging.String("topic", string(topic)), logging.Error(err))
		return
	}
	event := Event{Topic: topic, Payload: raw}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		if sub.topics != nil {
			if _, ok := sub.topics[topic]; !ok {
				continue
			}
		}
		select {
		case sub.ch <- event:
		default:
			b.logger.Warn("drop event for slow subscriber", logging.String("topic", string(topic)))
		}
	}
}

// Close tears down all subscriptions. Publish becomes a no-op afterwards.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}
