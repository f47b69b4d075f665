package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"docflow/internal/config"
	"docflow/internal/logging"
	"docflow/internal/model"
	"docflow/internal/notifications"
)

// Engine is the subset of the engine the loops drive.
type Engine interface {
	Scan(ctx context.Context) notifications.Result
	Snapshot() model.Snapshot
}

// Store is the persistence side of the autosave loop.
type Store interface {
	Flush(ctx context.Context, snapshotFn func() model.Snapshot) (bool, error)
	Backup(ctx context.Context, now time.Time) (string, error)
}

// Manager coordinates the reconcile scanner and autosave loops.
type Manager struct {
	cfg    *config.Config
	engine Engine
	store  Store
	logger *slog.Logger
	clock  func() time.Time

	reconcileInterval time.Duration
	autosaveInterval  time.Duration

	mu            sync.RWMutex
	running       bool
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	lastReconcile time.Time
	lastResult    notifications.Result
	lastSave      time.Time
	lastBackup    string
	lastErr       error
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithIntervals overrides the configured loop periods.
func WithIntervals(reconcile, autosave time.Duration) ManagerOption {
	return func(m *Manager) {
		if reconcile > 0 {
			m.reconcileInterval = reconcile
		}
		if autosave > 0 {
			m.autosaveInterval = autosave
		}
	}
}

// WithClock overrides the clock used for status timestamps and backup names.
func WithClock(clock func() time.Time) ManagerOption {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// NewManager constructs a manager. It does not start any goroutines.
func NewManager(cfg *config.Config, eng Engine, store Store, logger *slog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg:               cfg,
		engine:            eng,
		store:             store,
		logger:            logging.NewComponentLogger(logger, "workflow"),
		clock:             time.Now,
		reconcileInterval: cfg.ReconcileInterval(),
		autosaveInterval:  cfg.AutosaveInterval(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}
