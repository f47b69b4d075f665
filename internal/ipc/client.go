package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func call[T any](c *Client, method string, req any) (*T, error) {
	var resp T
	if err := c.client.Call(ServiceName+"."+method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	return call[StatusResponse](c, "Status", StatusRequest{})
}

// FileList lists documents, optionally only those at step.
func (c *Client) FileList(step string) (*FileListResponse, error) {
	return call[FileListResponse](c, "FileList", FileListRequest{Step: step})
}

// FileShow fetches one document with history.
func (c *Client) FileShow(id string) (*FileResponse, error) {
	return call[FileResponse](c, "FileShow", FileShowRequest{ID: id})
}

// FileCreate records an upload.
func (c *Client) FileCreate(req FileCreateRequest) (*FileResponse, error) {
	return call[FileResponse](c, "FileCreate", req)
}

// FileDelete removes a document.
func (c *Client) FileDelete(user, id string) (*FileDeleteResponse, error) {
	return call[FileDeleteResponse](c, "FileDelete", FileDeleteRequest{User: user, ID: id})
}

// HistoryAppend appends an upload or status entry to a document.
func (c *Client) HistoryAppend(req HistoryAppendRequest) (*FileResponse, error) {
	return call[FileResponse](c, "HistoryAppend", req)
}

// StatusUpdate records an explicit status change.
func (c *Client) StatusUpdate(req StatusUpdateRequest) (*FileResponse, error) {
	return call[FileResponse](c, "StatusUpdate", req)
}

// SetBudget sets a step budget.
func (c *Client) SetBudget(req SetBudgetRequest) (*StepsResponse, error) {
	return call[StepsResponse](c, "SetBudget", req)
}

// SetAssignment replaces or clears a step assignment.
func (c *Client) SetAssignment(req SetAssignmentRequest) (*StepsResponse, error) {
	return call[StepsResponse](c, "SetAssignment", req)
}

// StepAdd inserts a step.
func (c *Client) StepAdd(req StepAddRequest) (*StepsResponse, error) {
	return call[StepsResponse](c, "StepAdd", req)
}

// StepRemove deletes a step.
func (c *Client) StepRemove(req StepRemoveRequest) (*StepsResponse, error) {
	return call[StepsResponse](c, "StepRemove", req)
}

// StepRename renames a step.
func (c *Client) StepRename(req StepRenameRequest) (*StepsResponse, error) {
	return call[StepsResponse](c, "StepRename", req)
}

// StepReorder replaces the step order.
func (c *Client) StepReorder(req StepReorderRequest) (*StepsResponse, error) {
	return call[StepsResponse](c, "StepReorder", req)
}

// Notifications lists a user's alerts.
func (c *Client) Notifications(user string, unreadOnly bool) (*NotificationsResponse, error) {
	return call[NotificationsResponse](c, "Notifications", NotificationsRequest{User: user, UnreadOnly: unreadOnly})
}

// MarkRead flags one alert as read.
func (c *Client) MarkRead(user, id string) (*MarkReadResponse, error) {
	return call[MarkReadResponse](c, "MarkRead", MarkReadRequest{User: user, ID: id})
}

// MarkAllRead flags every alert of user as read.
func (c *Client) MarkAllRead(user string) (*MarkReadResponse, error) {
	return call[MarkReadResponse](c, "MarkAllRead", MarkAllReadRequest{User: user})
}

// Reconcile runs a notification pass immediately.
func (c *Client) Reconcile() (*ReconcileResponse, error) {
	return call[ReconcileResponse](c, "Reconcile", ReconcileRequest{})
}

// Backup saves pending changes and backs up the database.
func (c *Client) Backup() (*BackupResponse, error) {
	return call[BackupResponse](c, "Backup", BackupRequest{})
}

// UserSet creates or replaces an account.
func (c *Client) UserSet(req UserSetRequest) (*UserResponse, error) {
	return call[UserResponse](c, "UserSet", req)
}

// UserDelete removes an account.
func (c *Client) UserDelete(user, username string) (*UserDeleteResponse, error) {
	return call[UserDeleteResponse](c, "UserDelete", UserDeleteRequest{User: user, Username: username})
}

// UserList lists accounts.
func (c *Client) UserList() (*UserListResponse, error) {
	return call[UserListResponse](c, "UserList", UserListRequest{})
}

// TestNotification sends a test push.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	return call[TestNotificationResponse](c, "TestNotification", TestNotificationRequest{})
}

// DatabaseHealth retrieves database diagnostics.
func (c *Client) DatabaseHealth() (*DatabaseHealthResponse, error) {
	return call[DatabaseHealthResponse](c, "DatabaseHealth", DatabaseHealthRequest{})
}
