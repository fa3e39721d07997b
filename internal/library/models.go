package library

import (
	"encoding/json"
	"strings"
)

// Provider identifies an external catalog service.
type Provider string

const (
	ProviderDiscogs     Provider = "discogs"
	ProviderMusicBrainz Provider = "musicbrainz"
)

// Providers lists every supported catalog provider.
func Providers() []Provider {
	return []Provider{ProviderDiscogs, ProviderMusicBrainz}
}

// ValidProvider reports whether value names a known provider.
func ValidProvider(value Provider) bool {
	switch value {
	case ProviderDiscogs, ProviderMusicBrainz:
		return true
	}
	return false
}

// MatchStatus represents the lifecycle of a (track, provider) lookup.
type MatchStatus string

const (
	StatusUnchecked MatchStatus = "unchecked"
	StatusSuccess   MatchStatus = "success"
	StatusAmbiguous MatchStatus = "ambiguous"
	StatusError     MatchStatus = "error"
	StatusIgnored   MatchStatus = "ignored"
)

// ParseMatchStatus maps persisted values back to a MatchStatus, defaulting
// unknown values to StatusError so bad rows surface instead of hiding.
func ParseMatchStatus(value string) MatchStatus {
	switch MatchStatus(strings.ToLower(strings.TrimSpace(value))) {
	case StatusSuccess:
		return StatusSuccess
	case StatusAmbiguous:
		return StatusAmbiguous
	case StatusIgnored:
		return StatusIgnored
	case StatusUnchecked, "":
		return StatusUnchecked
	default:
		return StatusError
	}
}

// TrackRecord is the canonical upsert input for a track.
type TrackRecord struct {
	TrackID      string
	SourceID     string
	Title        string
	Artist       string
	Album        string
	DurationMS   int64
	ArtworkURL   string
	PermalinkURL string
	Tags         []string
	LikedAt      string // RFC3339; empty when the track is not liked
	RawPayload   json.RawMessage
}

// PlaylistMember references a track at a playlist-scoped position.
type PlaylistMember struct {
	TrackID  string `json:"trackId"`
	Position int    `json:"position"`
}

// PlaylistRecord is the canonical upsert input for a playlist. It is also
// the entity snapshot attached to playlist events.
type PlaylistRecord struct {
	PlaylistID   string           `json:"playlistId"`
	SourceID     string           `json:"sourceId,omitempty"`
	Title        string           `json:"title,omitempty"`
	PermalinkURL string           `json:"permalinkUrl,omitempty"`
	Tags         []string         `json:"tags,omitempty"`
	TrackCount   int              `json:"trackCount"`
	UpdatedAt    string           `json:"updatedAt,omitempty"`
	RawPayload   json.RawMessage  `json:"-"`
	Members      []PlaylistMember `json:"members,omitempty"`
}

// MatchRecord captures the terminal outcome of one lookup.
type MatchRecord struct {
	TrackID    string
	Provider   Provider
	Status     MatchStatus
	ReleaseID  string
	Confidence float64
	Query      string
	Message    string
	CheckedAt  string // optional; store fills in current time when empty
}

// Candidate is one scored search result retained for manual resolution.
// MatchID scopes the candidate to the track it was produced for.
type Candidate struct {
	MatchID    string          `json:"matchId"`
	ReleaseID  string          `json:"releaseId"`
	Score      float64         `json:"score"`
	RawPayload json.RawMessage `json:"rawPayload"`
}

// LocalAssetRecord describes a local file backing a track.
type LocalAssetRecord struct {
	TrackID    string
	Location   string
	Checksum   string
	Available  bool
	DurationMS int64
}

// ProviderState is the per-provider slice of a track view.
type ProviderState struct {
	Status     MatchStatus `json:"status"`
	ReleaseID  string      `json:"releaseId,omitempty"`
	Confidence float64     `json:"confidence,omitempty"`
	Query      string      `json:"query,omitempty"`
	Message    string      `json:"message,omitempty"`
	CheckedAt  string      `json:"checkedAt,omitempty"`
}

// Track is the full stored view of a track. It doubles as the entity
// snapshot attached to library events, hence the json tags.
type Track struct {
	TrackID       string                     `json:"trackId"`
	SourceID      string                     `json:"sourceId,omitempty"`
	Title         string                     `json:"title,omitempty"`
	Artist        string                     `json:"artist,omitempty"`
	Album         string                     `json:"album,omitempty"`
	DurationMS    int64                      `json:"durationMs,omitempty"`
	ArtworkURL    string                     `json:"artworkUrl,omitempty"`
	PermalinkURL  string                     `json:"permalinkUrl,omitempty"`
	Tags          []string                   `json:"tags,omitempty"`
	LikedAt       string                     `json:"likedAt,omitempty"`
	CreatedAt     string                     `json:"createdAt,omitempty"`
	UpdatedAt     string                     `json:"updatedAt,omitempty"`
	LocalLocation string                     `json:"localLocation,omitempty"`
	LocalPresent  bool                       `json:"localPresent"`
	LocalUsable   bool                       `json:"localUsable"`
	Matches       map[Provider]ProviderState `json:"matches,omitempty"`
}

// LookupSnapshot carries the metadata needed to rebuild a catalog query for
// an existing track, used by retry and lazy candidate fetches.
type LookupSnapshot struct {
	TrackID string
	Title   string
	Artist  string
	Album   string
	Tags    []string
}

// StatusFilter controls ListStatus filtering and pagination. All filter
// flags default to off; filters combine with AND.
type StatusFilter struct {
	MissingLocalOnly   bool     `json:"missingLocalOnly"`
	UnresolvedProvider Provider `json:"unresolvedProvider,omitempty"`
	LikedOnly          bool     `json:"likedOnly"`
	ExternalOnly       bool     `json:"externalOnly"`
	Limit              int      `json:"limit,omitempty"`
	Offset             int      `json:"offset,omitempty"`
}

// StatusRow is one row of the library status listing.
type StatusRow struct {
	TrackID        string                     `json:"trackId"`
	Title          string                     `json:"title,omitempty"`
	Artist         string                     `json:"artist,omitempty"`
	Album          string                     `json:"album,omitempty"`
	Liked          bool                       `json:"liked"`
	LikedAt        string                     `json:"likedAt,omitempty"`
	HasLocalFile   bool                       `json:"hasLocalFile"`
	LocalAvailable bool                       `json:"localAvailable"`
	LocalLocation  string                     `json:"localLocation,omitempty"`
	InExternal     bool                       `json:"inExternalLibrary"`
	PermalinkURL   string                     `json:"permalinkUrl,omitempty"`
	ProviderStates map[Provider]ProviderState `json:"providers"`
}

// StatusPage is a paginated ListStatus response. Total reflects the
// filtered count, not the whole library.
type StatusPage struct {
	Rows   []StatusRow `json:"rows"`
	Total  int         `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// Stats aggregates library counts for daemon status reporting.
type Stats struct {
	Tracks    int `json:"tracks"`
	Playlists int `json:"playlists"`
	Liked     int `json:"liked"`
	Matched   int `json:"matched"`
	Ambiguous int `json:"ambiguous"`
	Errored   int `json:"errored"`
}
