package engine

import (
	"context"
	"strings"
	"time"

	"docflow/internal/authz"
	"docflow/internal/model"
	"docflow/internal/notifications"
	"docflow/internal/pipeline"
	"docflow/internal/stepstatus"
)

// CreateRequest describes an artifact upload. An empty ID or an ID that does
// not exist yet creates a new document; an empty Step targets the current
// step.
type CreateRequest struct {
	ID                string
	Supplier          string
	OriginalFilename  string
	Step              string
	ArtifactReference string
	Comment           string
}

// CreateDocument records an upload, creating the document from the global
// defaults when it does not exist.
func (e *Engine) CreateDocument(ctx context.Context, actor string, req CreateRequest) (*model.Document, error) {
	const op = "create document"
	actor = model.NormalizeName(actor)
	artifact := strings.TrimSpace(req.ArtifactReference)
	if artifact == "" {
		return nil, validation(op, "artifact reference is required")
	}

	var out *model.Document
	err := e.mutate(ctx, func() ([]*model.Document, error) {
		user, ok := e.users[actor]
		if !ok {
			return nil, unauthorized(op, "unknown user %q", actor)
		}

		id := strings.TrimSpace(req.ID)
		doc, exists := e.docs[id]
		if !exists {
			if len(e.steps) == 0 {
				return nil, validation(op, "no default steps configured")
			}
			if id == "" {
				id = e.newID()
			}
			doc = model.NewDocument(id, req.Supplier, req.OriginalFilename, e.defaultsLocked(), e.clock())
		}

		step := model.NormalizeName(req.Step)
		if step == "" {
			step = doc.CurrentStep
		}
		if !doc.HasStep(step) {
			return nil, notFound(op, "step %q", step)
		}
		if !authz.IsAuthorized(user, step, doc) {
			return nil, unauthorized(op, "%s may not act on step %q", actor, step)
		}

		doc.History = append(doc.History, model.HistoryEntry{
			Step:              step,
			Timestamp:         e.clock(),
			ActingUser:        actor,
			ArtifactReference: &artifact,
			Comment:           strings.TrimSpace(req.Comment),
		})
		if !exists {
			e.docs[doc.ID] = doc
		}
		out = doc
		return []*model.Document{doc}, nil
	})
	if err != nil {
		return nil, err
	}
	return e.Document(out.ID)
}

// AppendHistory appends entry to the document after authorizing actor for
// the entry's step. Timestamp defaults to now; ActingUser is always actor.
func (e *Engine) AppendHistory(ctx context.Context, actor, docID string, entry model.HistoryEntry) (*model.Document, error) {
	const op = "append history"
	actor = model.NormalizeName(actor)
	entry.Step = model.NormalizeName(entry.Step)
	entry.DeclaredStatus = model.ParseStatus(string(entry.DeclaredStatus))
	entry.Comment = strings.TrimSpace(entry.Comment)
	if entry.ArtifactReference == nil && entry.DeclaredStatus == "" {
		return nil, validation(op, "entry needs an artifact or a status")
	}

	err := e.mutate(ctx, func() ([]*model.Document, error) {
		doc, err := e.docLocked(op, docID)
		if err != nil {
			return nil, err
		}
		if err := e.authorizeLocked(op, actor, entry.Step, doc); err != nil {
			return nil, err
		}
		if entry.Timestamp.IsZero() {
			entry.Timestamp = e.clock()
		}
		entry.ActingUser = actor
		doc.History = append(doc.History, entry)
		return []*model.Document{doc}, nil
	})
	if err != nil {
		return nil, err
	}
	return e.Document(docID)
}

// UpdateStatus records an explicit status change for step.
func (e *Engine) UpdateStatus(ctx context.Context, actor, docID, step, status, comment string) (*model.Document, error) {
	declared := model.ParseStatus(status)
	if declared == "" {
		return nil, validation("update status", "status is required")
	}
	return e.AppendHistory(ctx, actor, docID, model.HistoryEntry{
		Step:           step,
		DeclaredStatus: declared,
		Comment:        comment,
	})
}

// DeleteDocument removes a document. Only admins may delete.
func (e *Engine) DeleteDocument(ctx context.Context, actor, docID string) error {
	const op = "delete document"
	return e.mutate(ctx, func() ([]*model.Document, error) {
		user, ok := e.users[model.NormalizeName(actor)]
		if !ok || !user.IsAdmin {
			return nil, unauthorized(op, "only admins may delete documents")
		}
		if _, err := e.docLocked(op, docID); err != nil {
			return nil, err
		}
		delete(e.docs, docID)
		return nil, nil
	})
}

// Document returns a copy of one document.
func (e *Engine) Document(id string) (*model.Document, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	doc, err := e.docLocked("get document", id)
	if err != nil {
		return nil, err
	}
	return doc.Clone(), nil
}

// Documents returns copies of every document ordered by creation time.
func (e *Engine) Documents() []*model.Document {
	e.mu.Lock()
	defer e.mu.Unlock()
	docs := e.allDocsLocked()
	out := make([]*model.Document, len(docs))
	for i, doc := range docs {
		out[i] = doc.Clone()
	}
	return out
}

// Refresh recomputes every document against the current clock so worked
// minutes and overdue flags reflect elapsed time. Persistence is flagged only
// when a record changed, and notifications are reconciled only when a
// current step moved.
func (e *Engine) Refresh(ctx context.Context) {
	e.mu.Lock()
	now := e.clock()
	_, moved := e.refreshLocked(now)
	var created []model.Notification
	if moved {
		created = e.reconcileLocked(now).Created
	}
	e.mu.Unlock()

	e.publish(ctx, created)
}

// Scan is the periodic pass: one refresh followed by exactly one reconcile
// under the same lock.
func (e *Engine) Scan(ctx context.Context) notifications.Result {
	e.mu.Lock()
	now := e.clock()
	e.refreshLocked(now)
	result := e.reconcileLocked(now)
	e.mu.Unlock()

	e.publish(ctx, result.Created)
	return result
}

func (e *Engine) refreshLocked(now time.Time) (changed, moved bool) {
	for _, doc := range e.docs {
		previous, current := doc.StepStatus, doc.CurrentStep
		stepstatus.Recompute(doc, e.budgets, now)
		pipeline.Advance(doc)
		stepMoved := doc.CurrentStep != current
		if stepMoved || !sameRecords(previous, doc.StepStatus) {
			changed = true
		}
		moved = moved || stepMoved
	}
	if changed {
		e.persist.MarkDirty()
	}
	return changed, moved
}

func sameRecords(a, b map[string]model.StepRecord) bool {
	if len(a) != len(b) {
		return false
	}
	for step, record := range a {
		other, ok := b[step]
		if !ok || !record.Equal(other) {
			return false
		}
	}
	return true
}

// Authorized reports whether username may act on step of docID. An empty
// docID checks the user's global roles only.
func (e *Engine) Authorized(username, step, docID string) (bool, error) {
	const op = "authorize"
	e.mu.Lock()
	defer e.mu.Unlock()
	user, err := e.userLocked(op, username)
	if err != nil {
		return false, err
	}
	var doc *model.Document
	if docID != "" {
		if doc, err = e.docLocked(op, docID); err != nil {
			return false, err
		}
	}
	return authz.IsAuthorized(user, model.NormalizeName(step), doc), nil
}

func (e *Engine) authorizeLocked(op, actor, step string, doc *model.Document) error {
	if !doc.HasStep(step) {
		return notFound(op, "step %q on document %q", step, doc.ID)
	}
	user, ok := e.users[actor]
	if !ok {
		return unauthorized(op, "unknown user %q", actor)
	}
	if !authz.IsAuthorized(user, step, doc) {
		return unauthorized(op, "%s may not act on step %q", actor, step)
	}
	return nil
}

func (e *Engine) defaultsLocked() model.Defaults {
	return model.Defaults{Steps: e.steps, Assignments: e.assignments}
}

// SetStepBudget sets a step budget in minutes on one document, or on the
// global defaults when docID is empty.
func (e *Engine) SetStepBudget(ctx context.Context, docID, step string, minutes int) error {
	const op = "set step budget"
	step = model.NormalizeName(step)
	if minutes < 0 {
		return validation(op, "budget must not be negative, got %d", minutes)
	}
	if step == "" {
		return validation(op, "step name is required")
	}
	return e.mutate(ctx, func() ([]*model.Document, error) {
		if docID == "" {
			if !containsStep(e.steps, step) {
				return nil, notFound(op, "default step %q", step)
			}
			e.budgets[step] = minutes
			return e.allDocsLocked(), nil
		}
		doc, err := e.docLocked(op, docID)
		if err != nil {
			return nil, err
		}
		if !doc.HasStep(step) {
			return nil, notFound(op, "step %q on document %q", step, docID)
		}
		doc.StepBudgets[step] = minutes
		return []*model.Document{doc}, nil
	})
}
