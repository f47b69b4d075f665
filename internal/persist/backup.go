package persist

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"docflow/internal/fileutil"
	"docflow/internal/logging"
)

const backupStampLayout = "20060102_150405"

// Backup checkpoints the WAL and copies the database to a timestamped
// folder under the backup directory, then prunes folders beyond the
// configured retention. It returns the path of the new copy.
func (s *Store) Backup(ctx context.Context, now time.Time) (string, error) {
	ctx = ensureContext(ctx)
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	if err := retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
		return err
	}); err != nil {
		return "", fmt.Errorf("checkpoint wal: %w", err)
	}

	dir := s.cfg.BackupDir()
	dst := filepath.Join(dir, now.UTC().Format(backupStampLayout), filepath.Base(s.path))
	if err := fileutil.CopyFileVerified(s.path, dst); err != nil {
		return "", fmt.Errorf("copy database: %w", err)
	}

	removed, err := fileutil.PruneDirs(dir, s.cfg.Backup.Retention)
	if err != nil {
		logging.WarnWithContext(s.logger, "backup retention failed", "backup_prune_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permissions on the backup directory"),
			logging.String(logging.FieldImpact, "old backups were kept"),
		)
	}
	s.logger.Info("database backed up",
		logging.String("path", dst),
		logging.Int("pruned", len(removed)),
	)
	return dst, nil
}

// Health summarizes the database state.
type Health struct {
	Path          string
	SchemaVersion int
	Integrity     string
	Documents     int
	Users         int
	Notifications int
}

// Health runs an integrity check and counts rows.
func (s *Store) Health(ctx context.Context) (Health, error) {
	ctx = ensureContext(ctx)
	report := Health{Path: s.path}
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&report.SchemaVersion); err != nil {
		return report, fmt.Errorf("read schema version: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&report.Integrity); err != nil {
		return report, fmt.Errorf("integrity check: %w", err)
	}
	counts := []struct {
		table string
		dst   *int
	}{
		{"documents", &report.Documents},
		{"users", &report.Users},
		{"notifications", &report.Notifications},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM "+c.table).Scan(c.dst); err != nil {
			return report, fmt.Errorf("count %s: %w", c.table, err)
		}
	}
	return report, nil
}
