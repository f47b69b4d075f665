package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"docflow/internal/api"
	"docflow/internal/daemon"
	"docflow/internal/engine"
	"docflow/internal/logging"
	"docflow/internal/model"
)

// ServiceName is the JSON-RPC service every method is registered under.
const ServiceName = "Docflow"

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	svc := &service{daemon: d, engine: d.Engine(), logger: logger, ctx: serverCtx}
	if err := rpcServer.RegisterName(ServiceName, svc); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the server is closed.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"),
				)
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"),
		)
	}
}

type service struct {
	daemon *daemon.Daemon
	engine *engine.Engine
	logger *slog.Logger
	ctx    context.Context
}

// requireAdmin guards configuration edits. The socket is trusted for
// identity, not for privilege.
func (s *service) requireAdmin(op, username string) error {
	user, err := s.engine.User(username)
	if err != nil {
		return err
	}
	if !user.IsAdmin {
		return fmt.Errorf("%s: %w: %s is not an administrator", op, engine.ErrUnauthorized, user.Username)
	}
	return nil
}

func (s *service) stepsResponse(fileID string, resp *StepsResponse) error {
	if fileID == "" {
		resp.DefaultSteps = s.engine.DefaultSteps()
		return nil
	}
	doc, err := s.engine.Document(fileID)
	if err != nil {
		return err
	}
	dto := api.FromDocument(doc, false)
	resp.Document = &dto
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	*resp = daemon.StatusPayload(s.daemon.Status())
	return nil
}

func (s *service) FileList(req FileListRequest, resp *FileListResponse) error {
	docs := s.engine.Documents()
	if req.Step != "" {
		filtered := docs[:0]
		for _, doc := range docs {
			if doc.CurrentStep == req.Step {
				filtered = append(filtered, doc)
			}
		}
		docs = filtered
	}
	*resp = api.FromDocuments(docs)
	return nil
}

func (s *service) FileShow(req FileShowRequest, resp *FileResponse) error {
	doc, err := s.engine.Document(req.ID)
	if err != nil {
		return err
	}
	resp.Document = api.FromDocument(doc, true)
	return nil
}

func (s *service) FileCreate(req FileCreateRequest, resp *FileResponse) error {
	doc, err := s.engine.CreateDocument(s.ctx, req.User, req.File.ToCreateRequest())
	if err != nil {
		return err
	}
	s.logger.Info("document uploaded via IPC",
		logging.String(logging.FieldEventType, "document_uploaded"),
		logging.String(logging.FieldFileID, doc.ID),
		logging.String(logging.FieldUser, req.User),
	)
	resp.Document = api.FromDocument(doc, true)
	return nil
}

func (s *service) FileDelete(req FileDeleteRequest, resp *FileDeleteResponse) error {
	if err := s.engine.DeleteDocument(s.ctx, req.User, req.ID); err != nil {
		return err
	}
	resp.Deleted = true
	return nil
}

func (s *service) HistoryAppend(req HistoryAppendRequest, resp *FileResponse) error {
	doc, err := s.engine.AppendHistory(s.ctx, req.User, req.ID, req.Entry.ToHistoryEntry())
	if err != nil {
		return err
	}
	resp.Document = api.FromDocument(doc, true)
	return nil
}

func (s *service) StatusUpdate(req StatusUpdateRequest, resp *FileResponse) error {
	doc, err := s.engine.UpdateStatus(s.ctx, req.User, req.ID, req.Step, req.Status, req.Comment)
	if err != nil {
		return err
	}
	resp.Document = api.FromDocument(doc, true)
	return nil
}

func (s *service) SetBudget(req SetBudgetRequest, resp *StepsResponse) error {
	if err := s.requireAdmin("set budget", req.User); err != nil {
		return err
	}
	if err := s.engine.SetStepBudget(s.ctx, req.FileID, req.Step, req.Minutes); err != nil {
		return err
	}
	return s.stepsResponse(req.FileID, resp)
}

func (s *service) SetAssignment(req SetAssignmentRequest, resp *StepsResponse) error {
	if err := s.requireAdmin("set assignment", req.User); err != nil {
		return err
	}
	var err error
	if req.Clear {
		err = s.engine.ClearStepAssignment(s.ctx, req.FileID, req.Step)
	} else {
		err = s.engine.SetStepAssignment(s.ctx, req.FileID, req.Step, req.Users)
	}
	if err != nil {
		return err
	}
	return s.stepsResponse(req.FileID, resp)
}

func (s *service) StepAdd(req StepAddRequest, resp *StepsResponse) error {
	if err := s.requireAdmin("add step", req.User); err != nil {
		return err
	}
	if err := s.engine.AddStep(s.ctx, req.FileID, req.Name, req.Position); err != nil {
		return err
	}
	return s.stepsResponse(req.FileID, resp)
}

func (s *service) StepRemove(req StepRemoveRequest, resp *StepsResponse) error {
	if err := s.requireAdmin("remove step", req.User); err != nil {
		return err
	}
	if err := s.engine.RemoveStep(s.ctx, req.FileID, req.Name); err != nil {
		return err
	}
	return s.stepsResponse(req.FileID, resp)
}

func (s *service) StepRename(req StepRenameRequest, resp *StepsResponse) error {
	if err := s.requireAdmin("rename step", req.User); err != nil {
		return err
	}
	if err := s.engine.RenameStep(s.ctx, req.FileID, req.Name, req.NewName); err != nil {
		return err
	}
	return s.stepsResponse(req.FileID, resp)
}

func (s *service) StepReorder(req StepReorderRequest, resp *StepsResponse) error {
	if err := s.requireAdmin("reorder steps", req.User); err != nil {
		return err
	}
	if err := s.engine.ReorderSteps(s.ctx, req.FileID, req.Order); err != nil {
		return err
	}
	return s.stepsResponse(req.FileID, resp)
}

func (s *service) Notifications(req NotificationsRequest, resp *NotificationsResponse) error {
	list := s.engine.Notifications(req.User)
	if req.UnreadOnly {
		unread := list[:0]
		for _, n := range list {
			if !n.Read {
				unread = append(unread, n)
			}
		}
		list = unread
	}
	*resp = api.FromNotifications(list, s.engine.UnreadCount(req.User))
	return nil
}

func (s *service) MarkRead(req MarkReadRequest, resp *MarkReadResponse) error {
	if err := s.engine.MarkRead(req.User, req.ID); err != nil {
		return err
	}
	resp.Marked = 1
	resp.UnreadCount = s.engine.UnreadCount(req.User)
	return nil
}

func (s *service) MarkAllRead(req MarkAllReadRequest, resp *MarkReadResponse) error {
	resp.Marked = s.engine.MarkAllRead(req.User)
	resp.UnreadCount = s.engine.UnreadCount(req.User)
	return nil
}

func (s *service) Reconcile(_ ReconcileRequest, resp *ReconcileResponse) error {
	*resp = api.FromReconcileResult(s.daemon.Reconcile(s.ctx))
	return nil
}

func (s *service) Backup(_ BackupRequest, resp *BackupResponse) error {
	path, err := s.daemon.Backup(s.ctx)
	if err != nil {
		return err
	}
	resp.Path = path
	s.logger.Info("backup created via IPC",
		logging.String(logging.FieldEventType, "backup_created"),
		logging.String("path", path),
	)
	return nil
}

func (s *service) UserSet(req UserSetRequest, resp *UserResponse) error {
	if err := s.requireAdmin("set user", req.User); err != nil {
		return err
	}
	user, err := s.engine.UpsertUser(s.ctx, model.User{
		Username:    req.Username,
		IsAdmin:     req.IsAdmin,
		GlobalRoles: req.Roles,
		CustomSteps: req.CustomSteps,
	}, req.Password)
	if err != nil {
		return err
	}
	resp.User = api.FromUser(*user)
	return nil
}

func (s *service) UserDelete(req UserDeleteRequest, resp *UserDeleteResponse) error {
	if err := s.requireAdmin("delete user", req.User); err != nil {
		return err
	}
	if err := s.engine.DeleteUser(s.ctx, req.Username); err != nil {
		return err
	}
	resp.Deleted = true
	return nil
}

func (s *service) UserList(_ UserListRequest, resp *UserListResponse) error {
	users := s.engine.Users()
	resp.Users = make([]api.User, 0, len(users))
	for _, user := range users {
		resp.Users = append(resp.Users, api.FromUser(user))
	}
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	if err != nil {
		return err
	}
	resp.Sent = sent
	resp.Message = message
	return nil
}

func (s *service) DatabaseHealth(_ DatabaseHealthRequest, resp *DatabaseHealthResponse) error {
	health, err := s.daemon.DatabaseHealth(s.ctx)
	if err != nil {
		return err
	}
	*resp = DatabaseHealthResponse(health)
	return nil
}
