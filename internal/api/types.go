package api

import "encoding/json"

// ProviderView is the externally visible match state for one provider.
type ProviderView struct {
	Status     string  `json:"status"`
	ReleaseID  string  `json:"release_id,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Message    string  `json:"message,omitempty"`
	CheckedAt  string  `json:"checked_at,omitempty"`
}

// TrackStatusView is one row of the library status listing.
type TrackStatusView struct {
	TrackID        string                  `json:"track_id"`
	Title          string                  `json:"title"`
	Artist         string                  `json:"artist"`
	Album          string                  `json:"album,omitempty"`
	Liked          bool                    `json:"liked"`
	PermalinkURL   string                  `json:"permalink_url,omitempty"`
	HasLocalFile   bool                    `json:"has_local_file"`
	LocalAvailable bool                    `json:"local_available"`
	InExternal     bool                    `json:"in_external"`
	Providers      map[string]ProviderView `json:"providers"`
	Conflicted     bool                    `json:"conflicted"`
}

// StatusQuery selects and pages the library status listing.
type StatusQuery struct {
	MissingLocalOnly   bool   `json:"missing_local_only"`
	UnresolvedProvider string `json:"unresolved_provider,omitempty"`
	LikedOnly          bool   `json:"liked_only"`
	ExternalOnly       bool   `json:"external_only"`
	Limit              int    `json:"limit"`
	Offset             int    `json:"offset"`
}

// StatusPageView is one page of status rows plus paging metadata.
type StatusPageView struct {
	Rows   []TrackStatusView `json:"rows"`
	Total  int               `json:"total"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

// CandidateView is one retained match candidate.
type CandidateView struct {
	ReleaseID string          `json:"release_id"`
	Score     float64         `json:"score"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

// JobView is the externally visible form of a background job.
type JobView struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	State     string `json:"state"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Message   string `json:"message,omitempty"`
	UpdatedAt string `json:"updated_at"`
}

// StatsView aggregates library counts.
type StatsView struct {
	Tracks    int `json:"tracks"`
	Playlists int `json:"playlists"`
	Liked     int `json:"liked"`
	Matched   int `json:"matched"`
	Ambiguous int `json:"ambiguous"`
	Errored   int `json:"errored"`
}

// ObserveResult reports what an observation changed and whether lookups were
// scheduled for it.
type ObserveResult struct {
	ID      string `json:"id"`
	Changed bool   `json:"changed"`
	JobID   string `json:"job_id,omitempty"`
}

// RefreshResult reports the outcome of a likes refresh.
type RefreshResult struct {
	Observed  int    `json:"observed"`
	Scheduled int    `json:"scheduled"`
	JobID     string `json:"job_id,omitempty"`
}
