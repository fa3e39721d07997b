// Package daemon assembles the long-running process: store, event bus,
// catalog clients, scheduler, resolver, and the api service, behind a
// single-instance file lock.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"

	"cratedig/internal/activity"
	"cratedig/internal/api"
	"cratedig/internal/catalog"
	"cratedig/internal/catalog/discogs"
	"cratedig/internal/catalog/musicbrainz"
	"cratedig/internal/config"
	"cratedig/internal/enrich"
	"cratedig/internal/events"
	"cratedig/internal/library"
	"cratedig/internal/logging"
	"cratedig/internal/notifications"
	"cratedig/internal/resolver"
)

// Daemon coordinates the background services and enforces single-instance
// execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *library.Store
	bus       *events.Bus
	scheduler *enrich.Scheduler
	service   *api.Service
	notifier  notifications.Service
	logPath   string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	DatabasePath string
	LockFilePath string
	SocketPath   string
	Stats        *api.StatsView
	Jobs         []api.JobView
}

// New constructs a daemon with all dependencies wired. The store and bus
// are owned by the daemon and closed with it.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("prepare directories: %w", err)
	}

	bus := events.NewBus(logger)
	store, err := library.Open(cfg, bus)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("open library: %w", err)
	}

	notifier := notifications.NewService(cfg)
	clients := map[library.Provider]catalog.Client{
		library.ProviderDiscogs:     discogs.New(cfg.Discogs, logger),
		library.ProviderMusicBrainz: musicbrainz.New(cfg.MusicBrainz, logger),
	}
	scheduler := enrich.NewScheduler(cfg, store, clients, bus, notifierAdapter{notifier, logger}, logger)
	res := resolver.New(store, scheduler, logger)
	normalizer := activity.NewNormalizer(logger)
	observer := api.NewObserver(store, normalizer, scheduler, logger)
	service := api.NewService(store, scheduler, res, observer, logger)

	return &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		store:     store,
		bus:       bus,
		scheduler: scheduler,
		service:   service,
		notifier:  notifier,
		logPath:   filepath.Join(cfg.Paths.LogDir, "cratedig.log"),
		lockPath:  cfg.LockPath(),
		lock:      flock.New(cfg.LockPath()),
	}, nil
}

// Service returns the command surface shared with IPC handlers.
func (d *Daemon) Service() *api.Service {
	return d.service
}

// Bus returns the daemon event bus.
func (d *Daemon) Bus() *events.Bus {
	return d.bus
}

// Start acquires the daemon lock and launches the scheduler workers.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another cratedig daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.scheduler.Start(d.ctx)
	d.running.Store(true)
	d.logger.Info("daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.scheduler.Close()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close releases all resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	d.bus.Close()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Status returns the current daemon status. Library stats are best effort;
// a store error leaves them nil.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.cfg.DatabasePath(),
		LockFilePath: d.lockPath,
		SocketPath:   d.cfg.Paths.SocketPath,
		Jobs:         d.service.Jobs(),
	}
	stats, err := d.service.Stats(ctx)
	if err != nil {
		d.logger.Warn("library stats unavailable", logging.Error(err))
	} else {
		status.Stats = stats
	}
	return status
}

// TestNotification triggers a test notification using the current
// configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// notifierAdapter bridges the fire-and-forget scheduler callbacks onto the
// error-returning notification service.
type notifierAdapter struct {
	service notifications.Service
	logger  *slog.Logger
}

func (a notifierAdapter) ReviewNeeded(ctx context.Context, trackID string, provider library.Provider, title string) {
	if err := a.service.NotifyReviewNeeded(ctx, trackID, provider, title); err != nil {
		a.logger.Warn("review notification failed", logging.Error(err))
	}
}

func (a notifierAdapter) LookupFailed(ctx context.Context, trackID string, provider library.Provider, message string) {
	if err := a.service.NotifyLookupFailed(ctx, trackID, provider, message); err != nil {
		a.logger.Warn("error notification failed", logging.Error(err))
	}
}
