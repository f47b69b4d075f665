package api

import (
	"math"
	"slices"
	"sort"
	"time"

	"docflow/internal/engine"
	"docflow/internal/model"
	"docflow/internal/notifications"
	"docflow/internal/workflow"
)

// FromDocument converts a document into its API representation. Steps are
// emitted in sequence order and history is included only when withHistory is
// set.
func FromDocument(doc *model.Document, withHistory bool) Document {
	if doc == nil {
		return Document{}
	}
	dto := Document{
		ID:               doc.ID,
		Supplier:         doc.Supplier,
		OriginalFilename: doc.OriginalFilename,
		CurrentStep:      doc.CurrentStep,
		CreatedAt:        formatTime(doc.CreationTime),
		Steps:            make([]Step, 0, len(doc.StepSequence)),
	}
	completed := len(doc.StepSequence) > 0
	for _, name := range doc.StepSequence {
		record, ok := doc.StepStatus[name]
		if !ok {
			record = model.NewStepRecord()
		}
		step := Step{
			Name:          name,
			Status:        record.Status.String(),
			Current:       name == doc.CurrentStep,
			LastUser:      record.LastUpdateUser,
			BudgetMinutes: record.AssignedBudgetMinutes,
			WorkedMinutes: math.Round(record.WorkedMinutes*100) / 100,
			Overdue:       record.IsOverdue,
		}
		if record.LastUpdateTime != nil {
			step.LastUpdate = formatTime(*record.LastUpdateTime)
		}
		if users, explicit := doc.Assignment(name); explicit {
			step.Assigned = slices.Clone(users)
			step.ExplicitAssign = true
		}
		if record.IsOverdue {
			dto.Overdue = true
		}
		if !record.Status.IsCompleted() {
			completed = false
		}
		dto.Steps = append(dto.Steps, step)
	}
	dto.Completed = completed
	if withHistory {
		dto.History = make([]HistoryEntry, 0, len(doc.History))
		for _, entry := range doc.History {
			dto.History = append(dto.History, FromHistoryEntry(entry))
		}
	}
	return dto
}

// FromDocuments converts a list without history.
func FromDocuments(docs []*model.Document) DocumentListResponse {
	out := DocumentListResponse{Documents: make([]Document, 0, len(docs))}
	for _, doc := range docs {
		out.Documents = append(out.Documents, FromDocument(doc, false))
	}
	return out
}

// FromHistoryEntry converts one history record.
func FromHistoryEntry(entry model.HistoryEntry) HistoryEntry {
	return HistoryEntry{
		Step:      entry.Step,
		Timestamp: formatTime(entry.Timestamp),
		User:      entry.ActingUser,
		Artifact:  entry.Artifact(),
		Comment:   entry.Comment,
		Status:    string(entry.DeclaredStatus),
	}
}

// FromNotification converts an alert.
func FromNotification(n model.Notification) Notification {
	return Notification{
		ID:        n.ID,
		Type:      string(n.Type),
		Title:     n.Title,
		Message:   n.Message,
		FileID:    n.FileID,
		Step:      n.Step,
		CreatedAt: formatTime(n.CreatedAt),
		Read:      n.Read,
	}
}

// FromNotifications builds the notifications payload, newest first.
func FromNotifications(list []model.Notification, unread int) NotificationList {
	out := NotificationList{Notifications: make([]Notification, 0, len(list)), UnreadCount: unread}
	for _, n := range list {
		out.Notifications = append(out.Notifications, FromNotification(n))
	}
	sort.SliceStable(out.Notifications, func(i, j int) bool {
		return out.Notifications[i].CreatedAt > out.Notifications[j].CreatedAt
	})
	return out
}

// FromUser converts an account, dropping its password hash.
func FromUser(u model.User) User {
	return User{
		Username:    u.Username,
		IsAdmin:     u.IsAdmin,
		Roles:       nonNil(u.GlobalRoles),
		CustomSteps: nonNil(u.CustomSteps),
	}
}

// FromReconcileResult summarizes a reconcile pass.
func FromReconcileResult(r notifications.Result) ReconcileResult {
	out := ReconcileResult{Created: len(r.Created), Removed: len(r.Removed)}
	for _, failure := range r.Failed {
		out.FailedUsers = append(out.FailedUsers, failure.Username)
	}
	return out
}

// FromStatusSummary converts workflow diagnostics.
func FromStatusSummary(s workflow.StatusSummary) WorkflowStatus {
	return WorkflowStatus{
		Running:          s.Running,
		LastReconcile:    formatTime(s.LastReconcile),
		LastCreated:      s.LastCreated,
		LastRemoved:      s.LastRemoved,
		LastSave:         formatTime(s.LastSave),
		LastBackup:       s.LastBackup,
		LastError:        s.LastError,
		ReconcileSeconds: int(s.ReconcileEvery / time.Second),
		AutosaveSeconds:  int(s.AutosaveEvery / time.Second),
	}
}

// FromStats converts engine counters.
func FromStats(s engine.Stats, defaultSteps []string) EngineStats {
	byStep := make(map[string]int, len(s.ByStep))
	for step, count := range s.ByStep {
		byStep[step] = count
	}
	return EngineStats{
		Documents:     s.Documents,
		Completed:     s.Completed,
		Overdue:       s.Overdue,
		Users:         s.Users,
		Notifications: s.Notifications,
		Unread:        s.Unread,
		ByStep:        byStep,
		DefaultSteps:  nonNil(defaultSteps),
	}
}

// ToCreateRequest maps a create body onto the engine request.
func (r CreateDocumentRequest) ToCreateRequest() engine.CreateRequest {
	return engine.CreateRequest{
		ID:                r.ID,
		Supplier:          r.Supplier,
		OriginalFilename:  r.OriginalFilename,
		Step:              r.Step,
		ArtifactReference: r.Artifact,
		Comment:           r.Comment,
	}
}

// ToHistoryEntry maps a history body onto a model entry. The engine stamps
// the time and acting user.
func (r HistoryRequest) ToHistoryEntry() model.HistoryEntry {
	entry := model.HistoryEntry{
		Step:           r.Step,
		Comment:        r.Comment,
		DeclaredStatus: model.ParseStatus(r.Status),
	}
	if r.Artifact != nil {
		ref := *r.Artifact
		entry.ArtifactReference = &ref
	}
	return entry
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return slices.Clone(values)
}
