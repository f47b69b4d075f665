package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Document describes a file in a transport-friendly format.
type Document struct {
	ID               string         `json:"id"`
	Supplier         string         `json:"supplier"`
	OriginalFilename string         `json:"originalFilename"`
	CurrentStep      string         `json:"currentStep"`
	Completed        bool           `json:"completed"`
	Overdue          bool           `json:"overdue"`
	CreatedAt        string         `json:"createdAt,omitempty"`
	Steps            []Step         `json:"steps"`
	History          []HistoryEntry `json:"history,omitempty"`
}

// Step is one row of a document's step table.
type Step struct {
	Name           string   `json:"name"`
	Status         string   `json:"status"`
	Current        bool     `json:"current"`
	LastUpdate     string   `json:"lastUpdate,omitempty"`
	LastUser       string   `json:"lastUser,omitempty"`
	BudgetMinutes  int      `json:"budgetMinutes"`
	WorkedMinutes  float64  `json:"workedMinutes"`
	Overdue        bool     `json:"overdue"`
	Assigned       []string `json:"assigned,omitempty"`
	ExplicitAssign bool     `json:"explicitAssignment"`
}

// HistoryEntry mirrors one history record.
type HistoryEntry struct {
	Step      string `json:"step"`
	Timestamp string `json:"timestamp"`
	User      string `json:"user"`
	Artifact  string `json:"artifact,omitempty"`
	Comment   string `json:"comment,omitempty"`
	Status    string `json:"status,omitempty"`
}

// DocumentListResponse wraps a collection of documents.
type DocumentListResponse struct {
	Documents []Document `json:"documents"`
}

// Notification mirrors a per-user alert.
type Notification struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	FileID    string `json:"fileId,omitempty"`
	Step      string `json:"step,omitempty"`
	CreatedAt string `json:"createdAt"`
	Read      bool   `json:"read"`
}

// NotificationList is the payload of the notifications endpoint.
type NotificationList struct {
	Notifications []Notification `json:"notifications"`
	UnreadCount   int            `json:"unread_count"`
}

// User mirrors an account without its password hash.
type User struct {
	Username    string   `json:"username"`
	IsAdmin     bool     `json:"isAdmin"`
	Roles       []string `json:"roles"`
	CustomSteps []string `json:"customSteps"`
}

// ReconcileResult summarizes one notification pass.
type ReconcileResult struct {
	Created     int      `json:"created"`
	Removed     int      `json:"removed"`
	FailedUsers []string `json:"failedUsers,omitempty"`
}

// WorkflowStatus summarizes the background loops.
type WorkflowStatus struct {
	Running          bool   `json:"running"`
	LastReconcile    string `json:"lastReconcile,omitempty"`
	LastCreated      int    `json:"lastCreated"`
	LastRemoved      int    `json:"lastRemoved"`
	LastSave         string `json:"lastSave,omitempty"`
	LastBackup       string `json:"lastBackup,omitempty"`
	LastError        string `json:"lastError,omitempty"`
	ReconcileSeconds int    `json:"reconcileSeconds"`
	AutosaveSeconds  int    `json:"autosaveSeconds"`
}

// EngineStats carries document and alert counters.
type EngineStats struct {
	Documents     int            `json:"documents"`
	Completed     int            `json:"completed"`
	Overdue       int            `json:"overdue"`
	Users         int            `json:"users"`
	Notifications int            `json:"notifications"`
	Unread        int            `json:"unread"`
	ByStep        map[string]int `json:"byStep"`
	DefaultSteps  []string       `json:"defaultSteps"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	DatabasePath string         `json:"databasePath"`
	LockFilePath string         `json:"lockFilePath"`
	APIBind      string         `json:"apiBind,omitempty"`
	Workflow     WorkflowStatus `json:"workflow"`
	Stats        EngineStats    `json:"stats"`
}

// CreateDocumentRequest is the body of POST /api/files.
type CreateDocumentRequest struct {
	ID               string `json:"id,omitempty" yaml:"id"`
	Supplier         string `json:"supplier" yaml:"supplier"`
	OriginalFilename string `json:"filename" yaml:"filename"`
	Step             string `json:"step,omitempty" yaml:"step"`
	Artifact         string `json:"artifact" yaml:"artifact"`
	Comment          string `json:"comment,omitempty" yaml:"comment"`
}

// HistoryRequest is the body of POST /api/files/{id}/history.
type HistoryRequest struct {
	Step     string  `json:"step"`
	Artifact *string `json:"artifact,omitempty"`
	Status   string  `json:"status,omitempty"`
	Comment  string  `json:"comment,omitempty"`
}

// StatusRequest is the body of POST /api/files/{id}/status.
type StatusRequest struct {
	Step    string `json:"step"`
	Status  string `json:"status"`
	Comment string `json:"comment,omitempty"`
}

// BudgetRequest is the body of PUT .../steps/{step}/budget.
type BudgetRequest struct {
	Minutes int `json:"minutes"`
}

// AssignmentRequest is the body of PUT .../steps/{step}/assignment.
type AssignmentRequest struct {
	Users []string `json:"users"`
}

// AddStepRequest is the body of POST .../steps. A negative or missing
// position appends.
type AddStepRequest struct {
	Name     string `json:"name"`
	Position *int   `json:"position,omitempty"`
}

// RenameStepRequest is the body of POST .../steps/{step}/rename.
type RenameStepRequest struct {
	Name string `json:"name"`
}

// ReorderStepsRequest is the body of PUT .../steps.
type ReorderStepsRequest struct {
	Order []string `json:"order"`
}

// MarkReadRequest is the body of POST /api/notifications/mark_read.
type MarkReadRequest struct {
	NotificationID string `json:"notification_id"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
