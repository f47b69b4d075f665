package engine

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"docflow/internal/logging"
	"docflow/internal/model"
	"docflow/internal/notifications"
	"docflow/internal/pipeline"
	"docflow/internal/stepstatus"
)

// Clock returns the current time. Tests inject fixed clocks.
type Clock func() time.Time

// Persistence is notified whenever state changes. Implementations must not
// block; the actual write happens on the autosave loop.
type Persistence interface {
	MarkDirty()
}

// Options configures an Engine.
type Options struct {
	Clock       Clock
	Persistence Persistence
	Publisher   notifications.Publisher
	Logger      *slog.Logger
	NewID       func() string
}

// Engine is the coarse-locked authoritative store.
type Engine struct {
	mu sync.Mutex

	docs          map[string]*model.Document
	users         map[string]*model.User
	steps         []string
	assignments   map[string][]string
	budgets       map[string]int
	notifications []model.Notification

	clock     Clock
	persist   Persistence
	publisher notifications.Publisher
	logger    *slog.Logger
	newID     func() string
}

type noopPersistence struct{}

func (noopPersistence) MarkDirty() {}

// New builds an engine from a loaded snapshot. Every document is normalized
// once: statuses recomputed and current step advanced.
func New(snapshot model.Snapshot, opts Options) *Engine {
	e := &Engine{
		docs:          make(map[string]*model.Document, len(snapshot.Documents)),
		users:         make(map[string]*model.User, len(snapshot.Users)),
		steps:         slices.Clone(snapshot.StepDefaults),
		assignments:   make(map[string][]string, len(snapshot.Assignments)),
		budgets:       make(map[string]int, len(snapshot.Budgets)),
		notifications: slices.Clone(snapshot.Notifications),
		clock:         opts.Clock,
		persist:       opts.Persistence,
		publisher:     opts.Publisher,
		logger:        logging.NewComponentLogger(opts.Logger, "engine"),
		newID:         opts.NewID,
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.persist == nil {
		e.persist = noopPersistence{}
	}
	if e.publisher == nil {
		e.publisher = notifications.NewNop()
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}
	if e.steps == nil {
		e.steps = slices.Clone(model.DefaultSteps)
	}
	for step, users := range snapshot.Assignments {
		e.assignments[step] = model.SortedUnique(users)
	}
	for step, minutes := range snapshot.Budgets {
		e.budgets[step] = minutes
	}
	for i := range snapshot.Users {
		user := snapshot.Users[i].Clone()
		e.users[user.Username] = user
	}

	now := e.clock()
	for i := range snapshot.Documents {
		doc := snapshot.Documents[i].Clone()
		ensureMaps(doc)
		stepstatus.Recompute(doc, e.budgets, now)
		pipeline.Advance(doc)
		e.docs[doc.ID] = doc
	}
	return e
}

func ensureMaps(doc *model.Document) {
	if doc.StepSequence == nil {
		doc.StepSequence = []string{}
	}
	if doc.History == nil {
		doc.History = []model.HistoryEntry{}
	}
	if doc.StepStatus == nil {
		doc.StepStatus = map[string]model.StepRecord{}
	}
	if doc.StepAssignments == nil {
		doc.StepAssignments = map[string][]string{}
	}
	if doc.StepBudgets == nil {
		doc.StepBudgets = map[string]int{}
	}
}

// mutate runs fn under the lock. On success the documents fn returns are
// recomputed and advanced, notifications are reconciled and persistence is
// flagged. Alerts created by the reconcile are published after unlock.
func (e *Engine) mutate(ctx context.Context, fn func() ([]*model.Document, error)) error {
	e.mu.Lock()
	touched, err := fn()
	var created []model.Notification
	if err == nil {
		created = e.settleLocked(touched)
	}
	e.mu.Unlock()

	e.publish(ctx, created)
	return err
}

func (e *Engine) settleLocked(touched []*model.Document) []model.Notification {
	now := e.clock()
	for _, doc := range touched {
		if doc == nil {
			continue
		}
		stepstatus.Recompute(doc, e.budgets, now)
		pipeline.Advance(doc)
	}
	e.persist.MarkDirty()
	return e.reconcileLocked(now).Created
}

func (e *Engine) allDocsLocked() []*model.Document {
	docs := make([]*model.Document, 0, len(e.docs))
	for _, doc := range e.docs {
		docs = append(docs, doc)
	}
	sortDocuments(docs)
	return docs
}

func (e *Engine) allUsersLocked() []*model.User {
	users := make([]*model.User, 0, len(e.users))
	for _, user := range e.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users
}

func (e *Engine) reconcileLocked(now time.Time) notifications.Result {
	result := notifications.Reconcile(notifications.Input{
		Users:     e.allUsersLocked(),
		Documents: e.allDocsLocked(),
		Existing:  e.notifications,
		NewID:     e.newID,
		Now:       now,
	})
	for _, failure := range result.Failed {
		logging.WarnWithContext(e.logger, "notification reconcile skipped user", "reconcile_user_failed",
			logging.String(logging.FieldUser, failure.Username),
			logging.Error(failure.Err),
			logging.String(logging.FieldErrorHint, "inspect the user record for malformed roles"),
			logging.String(logging.FieldImpact, "existing alerts for this user were left unchanged"),
		)
	}
	e.notifications = result.Notifications
	if result.Changed() {
		e.persist.MarkDirty()
		e.logger.Debug("notifications reconciled",
			logging.Int("created", len(result.Created)),
			logging.Int("removed", len(result.Removed)),
		)
	}
	return result
}

func (e *Engine) publish(ctx context.Context, created []model.Notification) {
	if len(created) == 0 {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	for _, n := range created {
		if err := e.publisher.NotifyAssigned(ctx, n); err != nil {
			logging.WarnWithContext(e.logger, "assignment push failed", "notification_push_failed",
				logging.String(logging.FieldUser, n.Owner),
				logging.String(logging.FieldFileID, n.FileID),
				logging.String(logging.FieldStep, n.Step),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic and network reachability"),
				logging.String(logging.FieldImpact, "the in-app alert was still recorded"),
			)
		}
	}
}

func (e *Engine) docLocked(op, id string) (*model.Document, error) {
	doc, ok := e.docs[id]
	if !ok {
		return nil, notFound(op, "document %q", id)
	}
	return doc, nil
}

func (e *Engine) userLocked(op, username string) (*model.User, error) {
	user, ok := e.users[model.NormalizeName(username)]
	if !ok {
		return nil, notFound(op, "user %q", username)
	}
	return user, nil
}

func sortDocuments(docs []*model.Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		if !docs[i].CreationTime.Equal(docs[j].CreationTime) {
			return docs[i].CreationTime.Before(docs[j].CreationTime)
		}
		return docs[i].ID < docs[j].ID
	})
}

// Reconcile runs a notification pass immediately.
func (e *Engine) Reconcile(ctx context.Context) notifications.Result {
	e.mu.Lock()
	result := e.reconcileLocked(e.clock())
	e.mu.Unlock()

	e.publish(ctx, result.Created)
	return result
}

// Snapshot returns a deep copy of the complete state for persistence.
func (e *Engine) Snapshot() model.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := model.Snapshot{
		Users:         make([]model.User, 0, len(e.users)),
		Documents:     make([]model.Document, 0, len(e.docs)),
		StepDefaults:  slices.Clone(e.steps),
		Assignments:   make(map[string][]string, len(e.assignments)),
		Budgets:       make(map[string]int, len(e.budgets)),
		Notifications: slices.Clone(e.notifications),
	}
	for _, user := range e.allUsersLocked() {
		snap.Users = append(snap.Users, *user.Clone())
	}
	for _, doc := range e.allDocsLocked() {
		snap.Documents = append(snap.Documents, *doc.Clone())
	}
	for step, users := range e.assignments {
		snap.Assignments[step] = slices.Clone(users)
	}
	for step, minutes := range e.budgets {
		snap.Budgets[step] = minutes
	}
	return snap
}

// Stats summarizes the engine state for status output.
type Stats struct {
	Documents     int
	Completed     int
	Overdue       int
	Users         int
	Notifications int
	Unread        int
	ByStep        map[string]int
}

// Stats counts documents per current step, completed and overdue documents,
// users and alerts.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := Stats{
		Documents:     len(e.docs),
		Users:         len(e.users),
		Notifications: len(e.notifications),
		ByStep:        make(map[string]int),
	}
	for _, doc := range e.docs {
		if doc.CurrentStep != "" {
			stats.ByStep[doc.CurrentStep]++
		}
		if isComplete(doc) {
			stats.Completed++
		}
		for _, record := range doc.StepStatus {
			if record.IsOverdue {
				stats.Overdue++
				break
			}
		}
	}
	for _, n := range e.notifications {
		if !n.Read {
			stats.Unread++
		}
	}
	return stats
}

func isComplete(doc *model.Document) bool {
	if len(doc.StepSequence) == 0 {
		return false
	}
	for _, step := range doc.StepSequence {
		if !doc.StepStatus[step].Status.IsCompleted() {
			return false
		}
	}
	return true
}
