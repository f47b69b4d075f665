package ipc

import "docflow/internal/api"

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon, workflow and engine status.
type StatusResponse = api.DaemonStatus

// FileListRequest filters the document listing by current step.
type FileListRequest struct {
	Step string `json:"step"`
}

// FileListResponse contains documents without history.
type FileListResponse = api.DocumentListResponse

// FileShowRequest fetches a single document.
type FileShowRequest struct {
	ID string `json:"id"`
}

// FileResponse carries one document with its history.
type FileResponse struct {
	Document api.Document `json:"document"`
}

// FileCreateRequest records an upload on behalf of User.
type FileCreateRequest struct {
	User string                    `json:"user"`
	File api.CreateDocumentRequest `json:"file"`
}

// FileDeleteRequest removes a document.
type FileDeleteRequest struct {
	User string `json:"user"`
	ID   string `json:"id"`
}

// FileDeleteResponse reports deletion.
type FileDeleteResponse struct {
	Deleted bool `json:"deleted"`
}

// HistoryAppendRequest appends a history entry on behalf of User. The entry
// needs an artifact, a status, or both.
type HistoryAppendRequest struct {
	User  string             `json:"user"`
	ID    string             `json:"id"`
	Entry api.HistoryRequest `json:"entry"`
}

// StatusUpdateRequest records an explicit status change.
type StatusUpdateRequest struct {
	User    string `json:"user"`
	ID      string `json:"id"`
	Step    string `json:"step"`
	Status  string `json:"status"`
	Comment string `json:"comment"`
}

// SetBudgetRequest sets a step budget. An empty FileID targets the global
// defaults.
type SetBudgetRequest struct {
	User    string `json:"user"`
	FileID  string `json:"file_id"`
	Step    string `json:"step"`
	Minutes int    `json:"minutes"`
}

// SetAssignmentRequest replaces a step's assignment set, or restores the
// role fallback when Clear is set.
type SetAssignmentRequest struct {
	User   string   `json:"user"`
	FileID string   `json:"file_id"`
	Step   string   `json:"step"`
	Users  []string `json:"users"`
	Clear  bool     `json:"clear"`
}

// StepAddRequest inserts a step. A negative Position appends.
type StepAddRequest struct {
	User     string `json:"user"`
	FileID   string `json:"file_id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
}

// StepRemoveRequest deletes a step.
type StepRemoveRequest struct {
	User   string `json:"user"`
	FileID string `json:"file_id"`
	Name   string `json:"name"`
}

// StepRenameRequest renames a step.
type StepRenameRequest struct {
	User    string `json:"user"`
	FileID  string `json:"file_id"`
	Name    string `json:"name"`
	NewName string `json:"new_name"`
}

// StepReorderRequest replaces the step order.
type StepReorderRequest struct {
	User   string   `json:"user"`
	FileID string   `json:"file_id"`
	Order  []string `json:"order"`
}

// StepsResponse returns the edited document, or the default sequence when
// the edit targeted the global defaults.
type StepsResponse struct {
	Document     *api.Document `json:"document,omitempty"`
	DefaultSteps []string      `json:"default_steps,omitempty"`
}

// NotificationsRequest lists User's alerts.
type NotificationsRequest struct {
	User       string `json:"user"`
	UnreadOnly bool   `json:"unread_only"`
}

// NotificationsResponse mirrors the HTTP notifications payload.
type NotificationsResponse = api.NotificationList

// MarkReadRequest flags one alert as read.
type MarkReadRequest struct {
	User string `json:"user"`
	ID   string `json:"id"`
}

// MarkAllReadRequest flags every alert of User as read.
type MarkAllReadRequest struct {
	User string `json:"user"`
}

// MarkReadResponse reports how many alerts changed and what stays unread.
type MarkReadResponse struct {
	Marked      int `json:"marked"`
	UnreadCount int `json:"unread_count"`
}

// ReconcileRequest triggers an immediate notification pass.
type ReconcileRequest struct{}

// ReconcileResponse summarizes the pass.
type ReconcileResponse = api.ReconcileResult

// BackupRequest triggers an immediate database backup.
type BackupRequest struct{}

// BackupResponse reports the backup location.
type BackupResponse struct {
	Path string `json:"path"`
}

// UserSetRequest creates or replaces an account. An empty Password keeps
// the existing hash.
type UserSetRequest struct {
	User        string   `json:"user"`
	Username    string   `json:"username"`
	Password    string   `json:"password"`
	IsAdmin     bool     `json:"is_admin"`
	Roles       []string `json:"roles"`
	CustomSteps []string `json:"custom_steps"`
}

// UserDeleteRequest removes an account.
type UserDeleteRequest struct {
	User     string `json:"user"`
	Username string `json:"username"`
}

// UserDeleteResponse reports deletion.
type UserDeleteResponse struct {
	Deleted bool `json:"deleted"`
}

// UserResponse carries one account.
type UserResponse struct {
	User api.User `json:"user"`
}

// UserListRequest lists accounts.
type UserListRequest struct{}

// UserListResponse contains every account.
type UserListResponse struct {
	Users []api.User `json:"users"`
}

// TestNotificationRequest sends a test push.
type TestNotificationRequest struct{}

// TestNotificationResponse reports whether the push was sent.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

// DatabaseHealthRequest requests database diagnostics.
type DatabaseHealthRequest struct{}

// DatabaseHealthResponse summarizes database state.
type DatabaseHealthResponse struct {
	Path          string `json:"path"`
	SchemaVersion int    `json:"schema_version"`
	Integrity     string `json:"integrity"`
	Documents     int    `json:"documents"`
	Users         int    `json:"users"`
	Notifications int    `json:"notifications"`
}
