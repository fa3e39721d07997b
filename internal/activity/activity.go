// Package activity turns raw observations from the listening client into
// normalized library records. A content signature per entity suppresses
// writes when nothing the library cares about has changed.
package activity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"cratedig/internal/identity"
	"cratedig/internal/library"
	"cratedig/internal/logging"
)

// TrackObservation is the inbound shape for one observed track. Field names
// follow the listening client's JSON.
type TrackObservation struct {
	SoundcloudID int64           `json:"soundcloudId"`
	Source       string          `json:"source,omitempty"`
	SourceID     int64           `json:"sourceId,omitempty"`
	Title        string          `json:"title"`
	Artist       string          `json:"artist"`
	Album        string          `json:"album,omitempty"`
	Tags         []string        `json:"tags,omitempty"`
	DurationMS   int64           `json:"durationMs,omitempty"`
	ArtworkURL   string          `json:"artworkUrl,omitempty"`
	PermalinkURL string          `json:"permalinkUrl,omitempty"`
	LikedAt      string          `json:"likedAt,omitempty"`
	Raw          json.RawMessage `json:"raw,omitempty"`
}

// PlaylistObservation is the inbound shape for one observed playlist,
// members included.
type PlaylistObservation struct {
	SoundcloudID int64             `json:"soundcloudId"`
	Source       string            `json:"source,omitempty"`
	SourceID     int64             `json:"sourceId,omitempty"`
	Title        string            `json:"title"`
	Tags         []string          `json:"tags,omitempty"`
	PermalinkURL string            `json:"permalinkUrl,omitempty"`
	Tracks       []MemberReference `json:"tracks,omitempty"`
	Raw          json.RawMessage   `json:"raw,omitempty"`
}

// MemberReference points at one playlist member by source id.
type MemberReference struct {
	SoundcloudID int64 `json:"soundcloudId"`
	Position     int   `json:"position"`
}

// LocalAssetObservation reports the local file backing a track, as found by
// a filesystem or download scan on the client side.
type LocalAssetObservation struct {
	TrackID    string `json:"trackId"`
	Location   string `json:"location"`
	Checksum   string `json:"checksum,omitempty"`
	Available  bool   `json:"available"`
	DurationMS int64  `json:"durationMs,omitempty"`
}

// ExternalMembershipObservation links a track to an entry in an external DJ
// library export, keyed by that library's own id.
type ExternalMembershipObservation struct {
	ExternalID string `json:"externalId"`
	TrackID    string `json:"trackId"`
}

// Normalizer validates observations, assigns canonical ids, and decides
// whether an observation carries new content. The signature cache is owned
// by the instance; a fresh Normalizer treats everything as changed.
type Normalizer struct {
	logger *slog.Logger

	mu         sync.Mutex
	signatures map[string]string
}

func NewNormalizer(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Normalizer{
		logger:     logging.NewComponentLogger(logger, "activity"),
		signatures: make(map[string]string),
	}
}

// Track normalizes one track observation. The returned changed flag is false
// when the observation's mutable content matches the last one seen for the
// same id; force overrides the check without clearing the cache.
func (n *Normalizer) Track(obs TrackObservation, force bool) (*library.TrackRecord, bool, error) {
	source, sourceID := obs.Source, obs.SourceID
	if source == "" {
		source = identity.SourceSoundCloud
	}
	if sourceID == 0 {
		sourceID = obs.SoundcloudID
	}
	trackID, err := identity.TrackID(source, sourceID)
	if err != nil {
		return nil, false, fmt.Errorf("normalize track: %w", err)
	}
	if strings.TrimSpace(obs.Title) == "" {
		return nil, false, fmt.Errorf("normalize track %s: missing title", trackID)
	}

	record := &library.TrackRecord{
		TrackID:      trackID,
		SourceID:     strconv.FormatInt(sourceID, 10),
		Title:        strings.TrimSpace(obs.Title),
		Artist:       strings.TrimSpace(obs.Artist),
		Album:        strings.TrimSpace(obs.Album),
		DurationMS:   obs.DurationMS,
		ArtworkURL:   strings.TrimSpace(obs.ArtworkURL),
		PermalinkURL: strings.TrimSpace(obs.PermalinkURL),
		Tags:         cleanTags(obs.Tags),
		LikedAt:      strings.TrimSpace(obs.LikedAt),
		RawPayload:   obs.Raw,
	}

	signature := trackSignature(record)
	changed := n.remember(trackID, signature) || force
	if !changed {
		n.logger.Debug("track unchanged", logging.String(logging.FieldTrackID, trackID))
	}
	return record, changed, nil
}

// Playlist normalizes one playlist observation. The playlist signature
// covers the playlist's own metadata and member ordering only, never member
// track metadata.
func (n *Normalizer) Playlist(obs PlaylistObservation, force bool) (*library.PlaylistRecord, bool, error) {
	source, sourceID := obs.Source, obs.SourceID
	if source == "" {
		source = identity.SourceSoundCloud
	}
	if sourceID == 0 {
		sourceID = obs.SoundcloudID
	}
	playlistID, err := identity.PlaylistID(source, sourceID)
	if err != nil {
		return nil, false, fmt.Errorf("normalize playlist: %w", err)
	}
	if strings.TrimSpace(obs.Title) == "" {
		return nil, false, fmt.Errorf("normalize playlist %s: missing title", playlistID)
	}

	members := make([]library.PlaylistMember, 0, len(obs.Tracks))
	for i, member := range obs.Tracks {
		memberID, err := identity.TrackID(source, member.SoundcloudID)
		if err != nil {
			return nil, false, fmt.Errorf("normalize playlist %s member %d: %w", playlistID, i, err)
		}
		position := member.Position
		if position <= 0 {
			position = i + 1
		}
		members = append(members, library.PlaylistMember{TrackID: memberID, Position: position})
	}
	sort.SliceStable(members, func(i, j int) bool { return members[i].Position < members[j].Position })

	record := &library.PlaylistRecord{
		PlaylistID:   playlistID,
		SourceID:     strconv.FormatInt(sourceID, 10),
		Title:        strings.TrimSpace(obs.Title),
		PermalinkURL: strings.TrimSpace(obs.PermalinkURL),
		Tags:         cleanTags(obs.Tags),
		TrackCount:   len(members),
		RawPayload:   obs.Raw,
		Members:      members,
	}

	signature := playlistSignature(record)
	changed := n.remember(playlistID, signature) || force
	if !changed {
		n.logger.Debug("playlist unchanged", logging.String("playlist_id", playlistID))
	}
	return record, changed, nil
}

// Forget drops the cached signature for an entity so the next observation
// always reads as changed.
func (n *Normalizer) Forget(id string) {
	n.mu.Lock()
	delete(n.signatures, id)
	n.mu.Unlock()
}

// remember stores the signature and reports whether it differs from the
// previous one for the same id.
func (n *Normalizer) remember(id, signature string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	previous, seen := n.signatures[id]
	n.signatures[id] = signature
	return !seen || previous != signature
}

// trackSignature hashes the mutable track fields in a fixed order. Tags are
// sorted first so reordering alone never reads as a change.
func trackSignature(record *library.TrackRecord) string {
	tags := append([]string(nil), record.Tags...)
	sort.Strings(tags)
	return digest(
		record.Title,
		record.Artist,
		record.Album,
		strconv.FormatInt(record.DurationMS, 10),
		record.ArtworkURL,
		record.PermalinkURL,
		record.LikedAt,
		strings.Join(tags, "\x1f"),
	)
}

func playlistSignature(record *library.PlaylistRecord) string {
	tags := append([]string(nil), record.Tags...)
	sort.Strings(tags)
	members := make([]string, 0, len(record.Members))
	for _, member := range record.Members {
		members = append(members, strconv.Itoa(member.Position)+"="+member.TrackID)
	}
	return digest(
		record.Title,
		record.PermalinkURL,
		strings.Join(tags, "\x1f"),
		strings.Join(members, "\x1f"),
	)
}

func digest(fields ...string) string {
	hash := sha256.New()
	for _, field := range fields {
		hash.Write([]byte(field))
		hash.Write([]byte{0})
	}
	return hex.EncodeToString(hash.Sum(nil))
}

func cleanTags(tags []string) []string {
	cleaned := make([]string, 0, len(tags))
	for _, tag := range tags {
		if trimmed := strings.TrimSpace(tag); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	if len(cleaned) == 0 {
		return nil
	}
	return cleaned
}
