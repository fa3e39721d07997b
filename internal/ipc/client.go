package ipc

import (
	"encoding/json"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"

	"cratedig/internal/activity"
	"cratedig/internal/api"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Start requests the daemon to start processing.
func (c *Client) Start() (*StartResponse, error) {
	var resp StartResponse
	if err := c.client.Call("Cratedig.Start", StartRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop requests the daemon to stop processing.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Cratedig.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Cratedig.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StatusList returns one page of library status rows.
func (c *Client) StatusList(query api.StatusQuery) (*StatusListResponse, error) {
	var resp StatusListResponse
	if err := c.client.Call("Cratedig.StatusList", StatusListRequest{Query: query}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TrackStatus returns the status row for one track.
func (c *Client) TrackStatus(trackID string) (*TrackStatusResponse, error) {
	var resp TrackStatusResponse
	if err := c.client.Call("Cratedig.TrackStatus", TrackStatusRequest{TrackID: trackID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Candidates returns the retained candidates for a pair.
func (c *Client) Candidates(trackID, provider string) (*CandidatesResponse, error) {
	var resp CandidatesResponse
	req := CandidatesRequest{TrackID: trackID, Provider: provider}
	if err := c.client.Call("Cratedig.Candidates", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Confirm records an operator-chosen release for a pair. raw may be nil;
// when set it is stored as the confirmed candidate's document.
func (c *Client) Confirm(trackID, provider, releaseID string, raw json.RawMessage) (*ConfirmResponse, error) {
	var resp ConfirmResponse
	req := ConfirmRequest{TrackID: trackID, Provider: provider, ReleaseID: releaseID, Raw: raw}
	if err := c.client.Call("Cratedig.Confirm", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Ignore marks a pair, or a whole track, as deliberately unmatched.
func (c *Client) Ignore(trackID, provider string) (*IgnoreResponse, error) {
	var resp IgnoreResponse
	req := IgnoreRequest{TrackID: trackID, Provider: provider}
	if err := c.client.Call("Cratedig.Ignore", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Retry schedules a fresh lookup for a pair or a whole track.
func (c *Client) Retry(trackID, provider string) (*RetryResponse, error) {
	var resp RetryResponse
	req := RetryRequest{TrackID: trackID, Provider: provider}
	if err := c.client.Call("Cratedig.Retry", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ObserveTrack submits one raw track observation.
func (c *Client) ObserveTrack(obs activity.TrackObservation, force bool) (*ObserveTrackResponse, error) {
	var resp ObserveTrackResponse
	req := ObserveTrackRequest{Observation: obs, Force: force}
	if err := c.client.Call("Cratedig.ObserveTrack", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ObservePlaylist submits one raw playlist observation.
func (c *Client) ObservePlaylist(obs activity.PlaylistObservation, force bool) (*ObservePlaylistResponse, error) {
	var resp ObservePlaylistResponse
	req := ObservePlaylistRequest{Observation: obs, Force: force}
	if err := c.client.Call("Cratedig.ObservePlaylist", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RecordLocalAsset registers the local file backing a track.
func (c *Client) RecordLocalAsset(obs activity.LocalAssetObservation) (*RecordLocalAssetResponse, error) {
	var resp RecordLocalAssetResponse
	req := RecordLocalAssetRequest{Observation: obs}
	if err := c.client.Call("Cratedig.RecordLocalAsset", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RecordExternalMembership links a track to an external DJ library entry.
func (c *Client) RecordExternalMembership(obs activity.ExternalMembershipObservation) (*RecordExternalMembershipResponse, error) {
	var resp RecordExternalMembershipResponse
	req := RecordExternalMembershipRequest{Observation: obs}
	if err := c.client.Call("Cratedig.RecordExternalMembership", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// MissingAssets lists tracks without a usable local file.
func (c *Client) MissingAssets() (*MissingAssetsResponse, error) {
	var resp MissingAssetsResponse
	if err := c.client.Call("Cratedig.MissingAssets", MissingAssetsRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RefreshLikes submits a liked-track batch and re-schedules unresolved
// lookups.
func (c *Client) RefreshLikes(observations []activity.TrackObservation, force bool) (*RefreshLikesResponse, error) {
	var resp RefreshLikesResponse
	req := RefreshLikesRequest{Observations: observations, Force: force}
	if err := c.client.Call("Cratedig.RefreshLikes", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Jobs returns the background job table.
func (c *Client) Jobs() (*JobsResponse, error) {
	var resp JobsResponse
	if err := c.client.Call("Cratedig.Jobs", JobsRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.client.Call("Cratedig.TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
