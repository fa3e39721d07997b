package ipc

import (
	"encoding/json"

	"cratedig/internal/activity"
	"cratedig/internal/api"
)

// StartRequest triggers scheduler startup.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops background processing.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon and library status.
type StatusResponse struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	DatabasePath string         `json:"database_path"`
	LockPath     string         `json:"lock_path"`
	SocketPath   string         `json:"socket_path"`
	Stats        *api.StatsView `json:"stats,omitempty"`
	Jobs         []api.JobView  `json:"jobs,omitempty"`
}

// StatusListRequest pages the library status listing.
type StatusListRequest struct {
	Query api.StatusQuery `json:"query"`
}

// StatusListResponse contains one page of status rows.
type StatusListResponse struct {
	Page api.StatusPageView `json:"page"`
}

// TrackStatusRequest fetches a single track's status row.
type TrackStatusRequest struct {
	TrackID string `json:"track_id"`
}

// TrackStatusResponse contains a single status row.
type TrackStatusResponse struct {
	Track api.TrackStatusView `json:"track"`
}

// CandidatesRequest fetches retained candidates for a pair.
type CandidatesRequest struct {
	TrackID  string `json:"track_id"`
	Provider string `json:"provider"`
}

// CandidatesResponse contains the candidate set. Pending means a lookup was
// scheduled and the caller should poll again.
type CandidatesResponse struct {
	Candidates []api.CandidateView `json:"candidates"`
	Pending    bool                `json:"pending"`
}

// ConfirmRequest records an operator-chosen release for a pair. Raw, when
// set, is stored as the confirmed candidate's provider document.
type ConfirmRequest struct {
	TrackID   string          `json:"track_id"`
	Provider  string          `json:"provider"`
	ReleaseID string          `json:"release_id"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

// ConfirmResponse acknowledges a confirmation.
type ConfirmResponse struct {
	Confirmed bool `json:"confirmed"`
}

// IgnoreRequest marks a pair, or the whole track when provider is empty, as
// deliberately unmatched.
type IgnoreRequest struct {
	TrackID  string `json:"track_id"`
	Provider string `json:"provider"`
}

// IgnoreResponse acknowledges an ignore.
type IgnoreResponse struct {
	Ignored bool `json:"ignored"`
}

// RetryRequest schedules a fresh lookup. Empty provider retries all.
type RetryRequest struct {
	TrackID  string `json:"track_id"`
	Provider string `json:"provider"`
}

// RetryResponse returns the tracking job id.
type RetryResponse struct {
	JobID string `json:"job_id"`
}

// ObserveTrackRequest ingests one raw track observation.
type ObserveTrackRequest struct {
	Observation activity.TrackObservation `json:"observation"`
	Force       bool                      `json:"force"`
}

// ObserveTrackResponse reports the ingestion outcome.
type ObserveTrackResponse struct {
	Result api.ObserveResult `json:"result"`
}

// ObservePlaylistRequest ingests one raw playlist observation.
type ObservePlaylistRequest struct {
	Observation activity.PlaylistObservation `json:"observation"`
	Force       bool                         `json:"force"`
}

// ObservePlaylistResponse reports the ingestion outcome.
type ObservePlaylistResponse struct {
	Result api.ObserveResult `json:"result"`
}

// RecordLocalAssetRequest registers the local file backing a track.
type RecordLocalAssetRequest struct {
	Observation activity.LocalAssetObservation `json:"observation"`
}

// RecordLocalAssetResponse acknowledges the asset record.
type RecordLocalAssetResponse struct {
	Recorded bool `json:"recorded"`
}

// RecordExternalMembershipRequest links a track to an external DJ library
// entry.
type RecordExternalMembershipRequest struct {
	Observation activity.ExternalMembershipObservation `json:"observation"`
}

// RecordExternalMembershipResponse acknowledges the membership record.
type RecordExternalMembershipResponse struct {
	Recorded bool `json:"recorded"`
}

// MissingAssetsRequest lists tracks without a usable local file.
type MissingAssetsRequest struct{}

// MissingAssetsResponse contains the missing-asset track ids.
type MissingAssetsResponse struct {
	TrackIDs []string `json:"track_ids"`
}

// RefreshLikesRequest ingests a liked-track batch and re-schedules
// unresolved lookups.
type RefreshLikesRequest struct {
	Observations []activity.TrackObservation `json:"observations"`
	Force        bool                        `json:"force"`
}

// RefreshLikesResponse reports the refresh outcome.
type RefreshLikesResponse struct {
	Result api.RefreshResult `json:"result"`
}

// JobsRequest fetches the background job table.
type JobsRequest struct{}

// JobsResponse contains current jobs.
type JobsResponse struct {
	Jobs []api.JobView `json:"jobs"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
