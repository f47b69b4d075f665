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

	"docflow/internal/config"
	"docflow/internal/engine"
	"docflow/internal/logging"
	"docflow/internal/notifications"
	"docflow/internal/persist"
	"docflow/internal/workflow"
)

// Daemon owns the engine, its store and the background loops, and enforces
// single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	engine    *engine.Engine
	store     *persist.Store
	workflow  *workflow.Manager
	publisher notifications.Publisher
	api       *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Workflow     workflow.StatusSummary
	Stats        engine.Stats
	DefaultSteps []string
	DatabasePath string
	LockFilePath string
	APIBind      string
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithPublisher overrides the push publisher used for test notifications.
func WithPublisher(p notifications.Publisher) Option {
	return func(d *Daemon) {
		if p != nil {
			d.publisher = p
		}
	}
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, eng *engine.Engine, store *persist.Store, wf *workflow.Manager, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || eng == nil || store == nil || wf == nil {
		return nil, errors.New("daemon requires config, engine, store, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		engine:    eng,
		store:     store,
		workflow:  wf,
		publisher: notifications.NewPublisher(cfg),
		lockPath:  cfg.LockPath(),
		lock:      flock.New(cfg.LockPath()),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, launches the workflow loops and the HTTP
// API when configured.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another docflow daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.workflow.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		d.workflow.Stop()
		_ = d.lock.Unlock()
		cancel()
		return err
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("docflow daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops the API and background loops and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("docflow daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// Engine exposes the authoritative store to transports.
func (d *Daemon) Engine() *engine.Engine {
	return d.engine
}

// APIAddr returns the bound HTTP address, or "" when the API is disabled
// or not started.
func (d *Daemon) APIAddr() string {
	return d.api.addr()
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     d.workflow.Status(),
		Stats:        d.engine.Stats(),
		DefaultSteps: d.engine.DefaultSteps(),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
		APIBind:      d.APIAddr(),
	}
}

// Reconcile runs one notification pass immediately.
func (d *Daemon) Reconcile(ctx context.Context) notifications.Result {
	return d.workflow.ReconcileNow(ctx)
}

// Backup saves pending changes and copies the database.
func (d *Daemon) Backup(ctx context.Context) (string, error) {
	return d.workflow.Backup(ctx)
}

// DatabaseHealth returns database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (persist.Health, error) {
	return d.store.Health(ctx)
}

// TestNotification sends a test push using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.publisher.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}
