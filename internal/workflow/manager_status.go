package workflow

import "time"

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running         bool
	LastReconcile   time.Time
	LastCreated     int
	LastRemoved     int
	LastFailedUsers int
	LastSave        time.Time
	LastBackup      string
	LastError       string
	ReconcileEvery  time.Duration
	AutosaveEvery   time.Duration
}

// Status returns the latest workflow information.
func (m *Manager) Status() StatusSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summary := StatusSummary{
		Running:         m.running,
		LastReconcile:   m.lastReconcile,
		LastCreated:     len(m.lastResult.Created),
		LastRemoved:     len(m.lastResult.Removed),
		LastFailedUsers: len(m.lastResult.Failed),
		LastSave:        m.lastSave,
		LastBackup:      m.lastBackup,
		ReconcileEvery:  m.reconcileInterval,
		AutosaveEvery:   m.autosaveInterval,
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	return summary
}
