package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"docflow/internal/api"
	"docflow/internal/config"
	"docflow/internal/engine"
	"docflow/internal/logging"
)

const maxRequestBody = 1 << 20

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	if cfg == nil || d == nil {
		return nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil
	}
	srv := &apiServer{
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}
	srv.server = &http.Server{
		Handler:           srv.routes(strings.TrimSpace(cfg.Paths.APIToken)),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) routes(token string) http.Handler {
	r := mux.NewRouter()
	r.Use(s.requestIDMiddleware)

	authed := r.PathPrefix("/api").Subrouter()
	authed.Use(func(next http.Handler) http.Handler {
		return authMiddleware(token, s.daemon.engine, next)
	})

	authed.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	authed.HandleFunc("/files", s.handleListFiles).Methods(http.MethodGet)
	authed.HandleFunc("/files", s.handleCreateFile).Methods(http.MethodPost)
	authed.HandleFunc("/files/{id}", s.handleShowFile).Methods(http.MethodGet)
	authed.HandleFunc("/files/{id}", s.handleDeleteFile).Methods(http.MethodDelete)
	authed.HandleFunc("/files/{id}/history", s.handleAppendHistory).Methods(http.MethodPost)
	authed.HandleFunc("/files/{id}/status", s.handleUpdateStatus).Methods(http.MethodPost)

	authed.HandleFunc("/files/{id}/steps", s.adminOnly(s.handleAddStep)).Methods(http.MethodPost)
	authed.HandleFunc("/files/{id}/steps", s.adminOnly(s.handleReorderSteps)).Methods(http.MethodPut)
	authed.HandleFunc("/files/{id}/steps/{step}", s.adminOnly(s.handleRemoveStep)).Methods(http.MethodDelete)
	authed.HandleFunc("/files/{id}/steps/{step}/rename", s.adminOnly(s.handleRenameStep)).Methods(http.MethodPost)
	authed.HandleFunc("/files/{id}/steps/{step}/budget", s.adminOnly(s.handleSetBudget)).Methods(http.MethodPut)
	authed.HandleFunc("/files/{id}/steps/{step}/assignment", s.adminOnly(s.handleSetAssignment)).Methods(http.MethodPut)
	authed.HandleFunc("/files/{id}/steps/{step}/assignment", s.adminOnly(s.handleClearAssignment)).Methods(http.MethodDelete)

	authed.HandleFunc("/notifications", s.handleNotifications).Methods(http.MethodGet)
	authed.HandleFunc("/notifications/mark_read", s.handleMarkRead).Methods(http.MethodPost)
	authed.HandleFunc("/notifications/mark_all_read", s.handleMarkAllRead).Methods(http.MethodPost)

	authed.HandleFunc("/reconcile", s.handleReconcile).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusNotFound, "not_found", "route not found")
	})
	return r
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := logging.WithRequestID(r.Context(), id)
		logging.WithContext(ctx, s.logger).Debug("api request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
		)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *apiServer) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.daemon.engine.User(actorFrom(r.Context()))
		if err != nil || !user.IsAdmin {
			s.writeError(w, http.StatusForbidden, "unauthorized", "administrator privileges required")
			return
		}
		next(w, r)
	}
}

func (s *apiServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, StatusPayload(s.daemon.Status()))
}

// StatusPayload converts daemon status into its wire representation.
func StatusPayload(status Status) api.DaemonStatus {
	return api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		DatabasePath: status.DatabasePath,
		LockFilePath: status.LockFilePath,
		APIBind:      status.APIBind,
		Workflow:     api.FromStatusSummary(status.Workflow),
		Stats:        api.FromStats(status.Stats, status.DefaultSteps),
	}
}

func (s *apiServer) handleListFiles(w http.ResponseWriter, r *http.Request) {
	docs := s.daemon.engine.Documents()
	if step := strings.TrimSpace(r.URL.Query().Get("step")); step != "" {
		filtered := docs[:0]
		for _, doc := range docs {
			if doc.CurrentStep == step {
				filtered = append(filtered, doc)
			}
		}
		docs = filtered
	}
	s.writeJSON(w, http.StatusOK, api.FromDocuments(docs))
}

func (s *apiServer) handleCreateFile(w http.ResponseWriter, r *http.Request) {
	var req api.CreateDocumentRequest
	if !s.decode(w, r, &req) {
		return
	}
	doc, err := s.daemon.engine.CreateDocument(r.Context(), actorFrom(r.Context()), req.ToCreateRequest())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.FromDocument(doc, true))
}

func (s *apiServer) handleShowFile(w http.ResponseWriter, r *http.Request) {
	doc, err := s.daemon.engine.Document(mux.Vars(r)["id"])
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromDocument(doc, true))
}

func (s *apiServer) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.engine.DeleteDocument(r.Context(), actorFrom(r.Context()), mux.Vars(r)["id"]); err != nil {
		s.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleAppendHistory(w http.ResponseWriter, r *http.Request) {
	var req api.HistoryRequest
	if !s.decode(w, r, &req) {
		return
	}
	doc, err := s.daemon.engine.AppendHistory(r.Context(), actorFrom(r.Context()), mux.Vars(r)["id"], req.ToHistoryEntry())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromDocument(doc, true))
}

func (s *apiServer) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req api.StatusRequest
	if !s.decode(w, r, &req) {
		return
	}
	doc, err := s.daemon.engine.UpdateStatus(r.Context(), actorFrom(r.Context()), mux.Vars(r)["id"], req.Step, req.Status, req.Comment)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromDocument(doc, true))
}

func (s *apiServer) handleAddStep(w http.ResponseWriter, r *http.Request) {
	var req api.AddStepRequest
	if !s.decode(w, r, &req) {
		return
	}
	position := -1
	if req.Position != nil {
		position = *req.Position
	}
	id := mux.Vars(r)["id"]
	s.respondDocument(w, id, s.daemon.engine.AddStep(r.Context(), id, req.Name, position))
}

func (s *apiServer) handleReorderSteps(w http.ResponseWriter, r *http.Request) {
	var req api.ReorderStepsRequest
	if !s.decode(w, r, &req) {
		return
	}
	id := mux.Vars(r)["id"]
	s.respondDocument(w, id, s.daemon.engine.ReorderSteps(r.Context(), id, req.Order))
}

func (s *apiServer) handleRemoveStep(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s.respondDocument(w, vars["id"], s.daemon.engine.RemoveStep(r.Context(), vars["id"], vars["step"]))
}

func (s *apiServer) handleRenameStep(w http.ResponseWriter, r *http.Request) {
	var req api.RenameStepRequest
	if !s.decode(w, r, &req) {
		return
	}
	vars := mux.Vars(r)
	s.respondDocument(w, vars["id"], s.daemon.engine.RenameStep(r.Context(), vars["id"], vars["step"], req.Name))
}

func (s *apiServer) handleSetBudget(w http.ResponseWriter, r *http.Request) {
	var req api.BudgetRequest
	if !s.decode(w, r, &req) {
		return
	}
	vars := mux.Vars(r)
	s.respondDocument(w, vars["id"], s.daemon.engine.SetStepBudget(r.Context(), vars["id"], vars["step"], req.Minutes))
}

func (s *apiServer) handleSetAssignment(w http.ResponseWriter, r *http.Request) {
	var req api.AssignmentRequest
	if !s.decode(w, r, &req) {
		return
	}
	vars := mux.Vars(r)
	s.respondDocument(w, vars["id"], s.daemon.engine.SetStepAssignment(r.Context(), vars["id"], vars["step"], req.Users))
}

func (s *apiServer) handleClearAssignment(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s.respondDocument(w, vars["id"], s.daemon.engine.ClearStepAssignment(r.Context(), vars["id"], vars["step"]))
}

func (s *apiServer) handleNotifications(w http.ResponseWriter, r *http.Request) {
	owner := actorFrom(r.Context())
	e := s.daemon.engine
	s.writeJSON(w, http.StatusOK, api.FromNotifications(e.Notifications(owner), e.UnreadCount(owner)))
}

func (s *apiServer) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	var req api.MarkReadRequest
	if !s.decode(w, r, &req) {
		return
	}
	owner := actorFrom(r.Context())
	if err := s.daemon.engine.MarkRead(owner, req.NotificationID); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"unread_count": s.daemon.engine.UnreadCount(owner)})
}

func (s *apiServer) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	marked := s.daemon.engine.MarkAllRead(actorFrom(r.Context()))
	s.writeJSON(w, http.StatusOK, map[string]int{"marked": marked, "unread_count": 0})
}

func (s *apiServer) handleReconcile(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, api.FromReconcileResult(s.daemon.Reconcile(r.Context())))
}

// respondDocument writes err or, on success, the refreshed document.
func (s *apiServer) respondDocument(w http.ResponseWriter, id string, err error) {
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	doc, err := s.daemon.engine.Document(id)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromDocument(doc, true))
}

func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "validation", "invalid request body: "+err.Error())
		return false
	}
	return true
}

// statusForKind maps engine error kinds onto HTTP status codes.
func statusForKind(kind string) int {
	switch kind {
	case "not_found":
		return http.StatusNotFound
	case "unauthorized":
		return http.StatusForbidden
	case "invalid_transition":
		return http.StatusConflict
	case "validation":
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) writeEngineError(w http.ResponseWriter, err error) {
	kind := engine.Kind(err)
	status := statusForKind(kind)
	if status == http.StatusInternalServerError {
		s.logger.Error("api request failed", logging.Error(err))
	}
	s.writeError(w, status, kind, err.Error())
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, kind, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message, Kind: kind})
}
