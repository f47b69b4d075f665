package persist

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"golang.org/x/crypto/bcrypt"

	"docflow/internal/logging"
	"docflow/internal/model"
)

const timeLayout = time.RFC3339Nano

// LoadAll reads the complete snapshot. An empty database yields the
// configured defaults: the default step sequence and an admin user holding
// every default step as a role and assignment.
func (s *Store) LoadAll(ctx context.Context) (model.Snapshot, error) {
	ctx = ensureContext(ctx)

	empty, err := s.isEmpty(ctx)
	if err != nil {
		return model.Snapshot{}, err
	}
	if empty {
		s.logger.Info("database empty, seeding defaults", logging.String("path", s.path))
		snap, err := s.defaultSnapshot()
		if err != nil {
			return model.Snapshot{}, err
		}
		s.MarkDirty()
		return snap, nil
	}

	var snap model.Snapshot
	if snap.Users, err = s.loadUsers(ctx); err != nil {
		return model.Snapshot{}, err
	}
	if snap.Documents, err = s.loadDocuments(ctx); err != nil {
		return model.Snapshot{}, err
	}
	if snap.StepDefaults, err = s.loadStepDefaults(ctx); err != nil {
		return model.Snapshot{}, err
	}
	if snap.Assignments, err = s.loadAssignments(ctx); err != nil {
		return model.Snapshot{}, err
	}
	if snap.Budgets, err = s.loadBudgets(ctx); err != nil {
		return model.Snapshot{}, err
	}
	if snap.Notifications, err = s.loadNotifications(ctx); err != nil {
		return model.Snapshot{}, err
	}
	return snap, nil
}

func (s *Store) isEmpty(ctx context.Context) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(1) FROM users) +
		(SELECT COUNT(1) FROM documents) +
		(SELECT COUNT(1) FROM step_defaults)`).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("count rows: %w", err)
	}
	return count == 0, nil
}

func (s *Store) defaultSnapshot() (model.Snapshot, error) {
	steps := slices.Clone(s.cfg.Pipeline.DefaultSteps)
	if len(steps) == 0 {
		steps = slices.Clone(model.DefaultSteps)
	}
	admin := model.NormalizeName(s.cfg.Pipeline.AdminUser)
	hash, err := bcrypt.GenerateFromPassword([]byte(s.cfg.Pipeline.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("hash admin password: %w", err)
	}
	return model.Snapshot{
		Users: []model.User{{
			Username:     admin,
			IsAdmin:      true,
			GlobalRoles:  model.SortedUnique(steps),
			CustomSteps:  []string{},
			PasswordHash: string(hash),
		}},
		Documents:     []model.Document{},
		StepDefaults:  steps,
		Assignments:   model.DefaultAssignments(steps, admin),
		Budgets:       s.cfg.StepBudgets(),
		Notifications: []model.Notification{},
	}, nil
}

func (s *Store) loadUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT username, is_admin, roles, custom_steps, password_hash FROM users ORDER BY username")
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0)
	for rows.Next() {
		var (
			user          model.User
			isAdmin       int
			roles, custom string
		)
		if err := rows.Scan(&user.Username, &isAdmin, &roles, &custom, &user.PasswordHash); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		user.IsAdmin = isAdmin != 0
		if err := decodeJSON(roles, &user.GlobalRoles); err != nil {
			return nil, fmt.Errorf("decode roles for %s: %w", user.Username, err)
		}
		if err := decodeJSON(custom, &user.CustomSteps); err != nil {
			return nil, fmt.Errorf("decode custom steps for %s: %w", user.Username, err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) loadDocuments(ctx context.Context) ([]model.Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, supplier, original_filename, step_sequence, current_step,
		step_status, step_assignments, step_budgets, creation_time FROM documents ORDER BY creation_time, id`)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	docs := make([]model.Document, 0)
	index := make(map[string]int)
	for rows.Next() {
		var (
			doc                                             model.Document
			sequence, status, assignments, budgets, created string
		)
		if err := rows.Scan(&doc.ID, &doc.Supplier, &doc.OriginalFilename, &sequence, &doc.CurrentStep,
			&status, &assignments, &budgets, &created); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if err := decodeJSON(sequence, &doc.StepSequence); err != nil {
			return nil, fmt.Errorf("decode step sequence for %s: %w", doc.ID, err)
		}
		var rawStatus map[string]model.StepStatusValue
		if err := decodeJSON(status, &rawStatus); err != nil {
			return nil, fmt.Errorf("decode step status for %s: %w", doc.ID, err)
		}
		doc.StepStatus = model.NormalizeStatusMap(rawStatus)
		if err := decodeJSON(assignments, &doc.StepAssignments); err != nil {
			return nil, fmt.Errorf("decode assignments for %s: %w", doc.ID, err)
		}
		if err := decodeJSON(budgets, &doc.StepBudgets); err != nil {
			return nil, fmt.Errorf("decode budgets for %s: %w", doc.ID, err)
		}
		if doc.CreationTime, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("parse creation time for %s: %w", doc.ID, err)
		}
		doc.History = []model.HistoryEntry{}
		index[doc.ID] = len(docs)
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	history, err := s.db.QueryContext(ctx, `SELECT document_id, step, timestamp, acting_user, artifact,
		comment, declared_status FROM history ORDER BY document_id, seq`)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer history.Close()
	for history.Next() {
		var (
			docID, stamp, declared string
			entry                  model.HistoryEntry
			artifact               sql.NullString
		)
		if err := history.Scan(&docID, &entry.Step, &stamp, &entry.ActingUser, &artifact,
			&entry.Comment, &declared); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if entry.Timestamp, err = parseTime(stamp); err != nil {
			return nil, fmt.Errorf("parse history timestamp for %s: %w", docID, err)
		}
		if artifact.Valid {
			ref := artifact.String
			entry.ArtifactReference = &ref
		}
		entry.DeclaredStatus = model.ParseStatus(declared)
		i, ok := index[docID]
		if !ok {
			continue
		}
		docs[i].History = append(docs[i].History, entry)
	}
	return docs, history.Err()
}

func (s *Store) loadStepDefaults(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM step_defaults ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("query step defaults: %w", err)
	}
	defer rows.Close()
	steps := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan step default: %w", err)
		}
		steps = append(steps, name)
	}
	return steps, rows.Err()
}

func (s *Store) loadAssignments(ctx context.Context) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT step, users FROM assignments")
	if err != nil {
		return nil, fmt.Errorf("query assignments: %w", err)
	}
	defer rows.Close()
	out := make(map[string][]string)
	for rows.Next() {
		var step, users string
		if err := rows.Scan(&step, &users); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		var names []string
		if err := decodeJSON(users, &names); err != nil {
			return nil, fmt.Errorf("decode assignment for %s: %w", step, err)
		}
		out[step] = model.SortedUnique(names)
	}
	return out, rows.Err()
}

func (s *Store) loadBudgets(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT step, minutes FROM budgets")
	if err != nil {
		return nil, fmt.Errorf("query budgets: %w", err)
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var (
			step    string
			minutes int
		)
		if err := rows.Scan(&step, &minutes); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		out[step] = minutes
	}
	return out, rows.Err()
}

func (s *Store) loadNotifications(ctx context.Context) ([]model.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, owner, type, title, message, file_id, step, created_at, read
		FROM notifications ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()
	out := make([]model.Notification, 0)
	for rows.Next() {
		var (
			n       model.Notification
			kind    string
			created string
			read    int
		)
		if err := rows.Scan(&n.ID, &n.Owner, &kind, &n.Title, &n.Message, &n.FileID, &n.Step, &created, &read); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Type = model.NotificationType(kind)
		n.Read = read != 0
		if n.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("parse notification time for %s: %w", n.ID, err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// SaveAll replaces every table with the snapshot inside one transaction.
func (s *Store) SaveAll(ctx context.Context, snap model.Snapshot) error {
	ctx = ensureContext(ctx)
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	return retryOnBusy(ctx, func() error {
		return s.withTx(ctx, "save snapshot", func(tx *sql.Tx) error {
			return writeSnapshot(ctx, tx, snap)
		})
	})
}

func writeSnapshot(ctx context.Context, tx *sql.Tx, snap model.Snapshot) error {
	for _, table := range []string{"history", "documents", "users", "notifications", "step_defaults", "assignments", "budgets"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for _, user := range snap.Users {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO users (username, is_admin, roles, custom_steps, password_hash) VALUES (?, ?, ?, ?, ?)",
			user.Username, boolInt(user.IsAdmin), encodeJSON(nonNil(user.GlobalRoles)), encodeJSON(nonNil(user.CustomSteps)), user.PasswordHash)
		if err != nil {
			return fmt.Errorf("insert user %s: %w", user.Username, err)
		}
	}

	for _, doc := range snap.Documents {
		_, err := tx.ExecContext(ctx, `INSERT INTO documents (id, supplier, original_filename, step_sequence,
			current_step, step_status, step_assignments, step_budgets, creation_time) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			doc.ID, doc.Supplier, doc.OriginalFilename, encodeJSON(nonNil(doc.StepSequence)), doc.CurrentStep,
			encodeJSON(doc.StepStatus), encodeJSON(doc.StepAssignments), encodeJSON(doc.StepBudgets),
			formatTime(doc.CreationTime))
		if err != nil {
			return fmt.Errorf("insert document %s: %w", doc.ID, err)
		}
		for seq, entry := range doc.History {
			var artifact any
			if entry.ArtifactReference != nil {
				artifact = *entry.ArtifactReference
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO history (document_id, seq, step, timestamp, acting_user,
				artifact, comment, declared_status) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				doc.ID, seq, entry.Step, formatTime(entry.Timestamp), entry.ActingUser, artifact,
				entry.Comment, string(entry.DeclaredStatus))
			if err != nil {
				return fmt.Errorf("insert history %s/%d: %w", doc.ID, seq, err)
			}
		}
	}

	for position, name := range snap.StepDefaults {
		if _, err := tx.ExecContext(ctx, "INSERT INTO step_defaults (position, name) VALUES (?, ?)", position, name); err != nil {
			return fmt.Errorf("insert step default %s: %w", name, err)
		}
	}
	for step, users := range snap.Assignments {
		if _, err := tx.ExecContext(ctx, "INSERT INTO assignments (step, users) VALUES (?, ?)", step, encodeJSON(nonNil(users))); err != nil {
			return fmt.Errorf("insert assignment %s: %w", step, err)
		}
	}
	for step, minutes := range snap.Budgets {
		if _, err := tx.ExecContext(ctx, "INSERT INTO budgets (step, minutes) VALUES (?, ?)", step, minutes); err != nil {
			return fmt.Errorf("insert budget %s: %w", step, err)
		}
	}
	for _, n := range snap.Notifications {
		_, err := tx.ExecContext(ctx, `INSERT INTO notifications (id, owner, type, title, message, file_id, step,
			created_at, read) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			n.ID, n.Owner, string(n.Type), n.Title, n.Message, n.FileID, n.Step, formatTime(n.CreatedAt), boolInt(n.Read))
		if err != nil {
			return fmt.Errorf("insert notification %s: %w", n.ID, err)
		}
	}
	return nil
}

func encodeJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(data)
}

func decodeJSON(raw string, dst any) error {
	if raw == "" || raw == "null" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dst)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) (time.Time, error) {
	return time.Parse(timeLayout, raw)
}
