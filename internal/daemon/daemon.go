package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"

	"reelscope/internal/api"
	"reelscope/internal/config"
	"reelscope/internal/contentstore"
	"reelscope/internal/logging"
	"reelscope/internal/notifications"
	"reelscope/internal/preflight"
	"reelscope/internal/workflow"
)

// Daemon coordinates the submission manager and HTTP API and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *contentstore.Store
	workflow *workflow.Manager
	logPath  string
	logHub   *logging.StreamHub
	notifier notifications.Service

	lockPath string
	lock     *flock.Flock
	server   *apiServer

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Option configures optional Daemon collaborators.
type Option func(*Daemon)

// WithLogStream exposes hub on /api/logs.
func WithLogStream(hub *logging.StreamHub, logPath string) Option {
	return func(d *Daemon) {
		d.logHub = hub
		d.logPath = logPath
	}
}

// WithNotifier overrides the notifier used for test notifications.
func WithNotifier(notifier notifications.Service) Option {
	return func(d *Daemon) {
		d.notifier = notifier
	}
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *contentstore.Store, logger *slog.Logger, wf *workflow.Manager, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, logger, and workflow manager")
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		workflow: wf,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.notifier == nil {
		d.notifier = notifications.NewService(cfg)
	}
	d.server = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, launches the submission manager and begins
// serving the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another reelscope daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.workflow.Start(d.ctx); err != nil {
		d.abortStart()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.server.start(d.ctx); err != nil {
		d.workflow.Stop()
		d.abortStart()
		return err
	}

	d.running.Store(true)
	d.logger.Info("reelscope daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("api", d.server.address()),
	)
	return nil
}

func (d *Daemon) abortStart() {
	_ = d.lock.Unlock()
	d.cancel()
	d.ctx = nil
	d.cancel = nil
}

// Stop stops the API and submission manager and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.server.stop()
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("reelscope daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Address returns the address the API is listening on.
func (d *Daemon) Address() string {
	return d.server.address()
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// LogStream returns the in-memory log hub, if any.
func (d *Daemon) LogStream() *logging.StreamHub {
	return d.logHub
}

// Status returns the current daemon status. When withChecks is set the
// preflight checks, including network probes, are run as well.
func (d *Daemon) Status(ctx context.Context, withChecks bool) api.DaemonStatus {
	analyzer := "unconfigured"
	if strings.TrimSpace(d.cfg.Analyzer.APIKey) != "" {
		analyzer = d.cfg.Analyzer.Model
	}
	status := api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		APIAddress:   d.server.address(),
		LockFilePath: d.lockPath,
		LogPath:      d.logPath,
		StoreBackend: d.store.Backend().Name(),
		Analyzer:     analyzer,
		Workflow:     d.workflow.Status(),
		Dependencies: preflight.CheckSystemDeps(d.cfg),
	}
	if withChecks {
		status.Checks = preflight.RunAll(ctx, d.cfg, d.store)
	}
	return status
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}
