package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"log/slog"

	"cratedig/internal/daemon"
	"cratedig/internal/logging"
)

// Server answers CLI requests with JSON-RPC over a unix socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer binds the RPC surface to the socket at path. A stale socket
// file from a previous run is removed first.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Cratedig", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("ipc listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed", logging.Error(err))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close shuts the listener down and cleans up the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String(logging.FieldComponent, "ipc"))
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.log().Debug("daemon start requested")
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.DatabasePath = status.DatabasePath
	resp.LockPath = status.LockFilePath
	resp.SocketPath = status.SocketPath
	resp.Stats = status.Stats
	resp.Jobs = status.Jobs
	return nil
}

func (s *service) StatusList(req StatusListRequest, resp *StatusListResponse) error {
	page, err := s.daemon.Service().ListLibraryStatus(s.ctx, req.Query)
	if err != nil {
		return err
	}
	resp.Page = *page
	return nil
}

func (s *service) TrackStatus(req TrackStatusRequest, resp *TrackStatusResponse) error {
	track, err := s.daemon.Service().TrackStatus(s.ctx, req.TrackID)
	if err != nil {
		return err
	}
	resp.Track = *track
	return nil
}

func (s *service) Candidates(req CandidatesRequest, resp *CandidatesResponse) error {
	candidates, pending, err := s.daemon.Service().Candidates(s.ctx, req.TrackID, req.Provider)
	if err != nil {
		return err
	}
	resp.Candidates = candidates
	resp.Pending = pending
	return nil
}

func (s *service) Confirm(req ConfirmRequest, resp *ConfirmResponse) error {
	s.log().Debug("confirm requested",
		logging.String(logging.FieldTrackID, req.TrackID),
		logging.String(logging.FieldProvider, req.Provider))
	if err := s.daemon.Service().Confirm(s.ctx, req.TrackID, req.Provider, req.ReleaseID, req.Raw); err != nil {
		return err
	}
	resp.Confirmed = true
	return nil
}

func (s *service) Ignore(req IgnoreRequest, resp *IgnoreResponse) error {
	s.log().Debug("ignore requested",
		logging.String(logging.FieldTrackID, req.TrackID),
		logging.String(logging.FieldProvider, req.Provider))
	if err := s.daemon.Service().Ignore(s.ctx, req.TrackID, req.Provider); err != nil {
		return err
	}
	resp.Ignored = true
	return nil
}

func (s *service) Retry(req RetryRequest, resp *RetryResponse) error {
	jobID, err := s.daemon.Service().Retry(s.ctx, req.TrackID, req.Provider)
	if err != nil {
		return err
	}
	resp.JobID = jobID
	return nil
}

func (s *service) ObserveTrack(req ObserveTrackRequest, resp *ObserveTrackResponse) error {
	result, err := s.daemon.Service().Observer().Track(s.ctx, req.Observation, req.Force)
	if err != nil {
		return err
	}
	resp.Result = *result
	return nil
}

func (s *service) ObservePlaylist(req ObservePlaylistRequest, resp *ObservePlaylistResponse) error {
	result, err := s.daemon.Service().Observer().Playlist(s.ctx, req.Observation, req.Force)
	if err != nil {
		return err
	}
	resp.Result = *result
	return nil
}

func (s *service) RecordLocalAsset(req RecordLocalAssetRequest, resp *RecordLocalAssetResponse) error {
	if err := s.daemon.Service().Observer().LocalAsset(s.ctx, req.Observation); err != nil {
		return err
	}
	resp.Recorded = true
	return nil
}

func (s *service) RecordExternalMembership(req RecordExternalMembershipRequest, resp *RecordExternalMembershipResponse) error {
	if err := s.daemon.Service().Observer().ExternalMembership(s.ctx, req.Observation); err != nil {
		return err
	}
	resp.Recorded = true
	return nil
}

func (s *service) MissingAssets(_ MissingAssetsRequest, resp *MissingAssetsResponse) error {
	ids, err := s.daemon.Service().Observer().MissingAssets(s.ctx)
	if err != nil {
		return err
	}
	resp.TrackIDs = ids
	return nil
}

func (s *service) RefreshLikes(req RefreshLikesRequest, resp *RefreshLikesResponse) error {
	result, err := s.daemon.Service().Observer().RefreshLikes(s.ctx, req.Observations, req.Force)
	if err != nil {
		return err
	}
	resp.Result = *result
	return nil
}

func (s *service) Jobs(_ JobsRequest, resp *JobsResponse) error {
	resp.Jobs = s.daemon.Service().Jobs()
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
