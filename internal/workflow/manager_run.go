package workflow

import (
	"context"
	"errors"
	"time"

	"docflow/internal/logging"
	"docflow/internal/notifications"
)

const finalFlushTimeout = 10 * time.Second

// Start launches the reconcile and autosave loops. A reconcile pass runs
// immediately so alerts are current right after startup.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if m.reconcileInterval <= 0 || m.autosaveInterval <= 0 {
		m.mu.Unlock()
		return errors.New("workflow intervals must be positive")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(2)
	m.mu.Unlock()

	go m.runReconcile(runCtx)
	go m.runAutosave(runCtx)

	m.logger.Info("workflow started",
		logging.Duration("reconcile_interval", m.reconcileInterval),
		logging.Duration("autosave_interval", m.autosaveInterval),
	)
	return nil
}

// Stop terminates the loops, waits for them and performs a final flush.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()

	ctx, done := context.WithTimeout(context.Background(), finalFlushTimeout)
	defer done()
	if _, err := m.save(ctx, false); err != nil {
		logging.ErrorWithContext(m.logger, "final save failed", "final_save_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check data directory permissions and free space"),
		)
	}
	m.logger.Info("workflow stopped")
}

func (m *Manager) runReconcile(ctx context.Context) {
	defer m.wg.Done()
	for {
		m.ReconcileNow(ctx)
		if !sleep(ctx, m.reconcileInterval) {
			return
		}
	}
}

func (m *Manager) runAutosave(ctx context.Context) {
	defer m.wg.Done()
	for {
		if !sleep(ctx, m.autosaveInterval) {
			return
		}
		if _, err := m.save(ctx, true); err != nil && !errors.Is(err, context.Canceled) {
			logging.WarnWithContext(m.logger, "autosave failed", "autosave_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check data directory permissions and free space"),
				logging.String(logging.FieldImpact, "changes stay in memory and will be retried"),
			)
		}
	}
}

// sleep waits for d or cancellation and reports whether the loop should go on.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// ReconcileNow refreshes derived times and runs one notification pass.
func (m *Manager) ReconcileNow(ctx context.Context) notifications.Result {
	result := m.engine.Scan(ctx)

	m.mu.Lock()
	m.lastReconcile = m.clock()
	m.lastResult = result
	m.mu.Unlock()

	if result.Changed() || len(result.Failed) > 0 {
		m.logger.Info("notification scan complete",
			logging.String(logging.FieldEventType, "reconcile_complete"),
			logging.Int("created", len(result.Created)),
			logging.Int("removed", len(result.Removed)),
			logging.Int("failed_users", len(result.Failed)),
		)
	}
	return result
}

// save flushes the engine snapshot and, when withBackup is set and backups
// on save are enabled, backs up the database after a successful write.
func (m *Manager) save(ctx context.Context, withBackup bool) (bool, error) {
	saved, err := m.store.Flush(ctx, m.engine.Snapshot)
	if err != nil {
		m.setLastError(err)
		return false, err
	}
	if !saved {
		return false, nil
	}
	m.mu.Lock()
	m.lastSave = m.clock()
	m.mu.Unlock()
	m.logger.Debug("state saved")

	if withBackup && m.cfg.Backup.Enabled && m.cfg.Backup.OnSave {
		if _, err := m.backup(ctx); err != nil {
			return true, err
		}
	}
	return true, nil
}

func (m *Manager) backup(ctx context.Context) (string, error) {
	path, err := m.store.Backup(ctx, m.clock())
	if err != nil {
		m.setLastError(err)
		return "", err
	}
	m.mu.Lock()
	m.lastBackup = path
	m.mu.Unlock()
	return path, nil
}

// Backup saves pending changes and takes a backup immediately.
func (m *Manager) Backup(ctx context.Context) (string, error) {
	if _, err := m.save(ctx, false); err != nil {
		return "", err
	}
	return m.backup(ctx)
}
