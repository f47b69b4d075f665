package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"docflow/internal/api"
	"docflow/internal/engine"
	"docflow/internal/model"
	"docflow/internal/testsupport"
	"docflow/internal/workflow"
)

type apiHarness struct {
	t       *testing.T
	daemon  *Daemon
	handler http.Handler
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithAPIToken("secret-token"))
	store := testsupport.MustOpenStore(t, cfg)
	snap, err := store.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	eng := engine.New(snap, engine.Options{Persistence: store})
	if _, err := eng.UpsertUser(context.Background(), model.User{Username: "alice", GlobalRoles: []string{"intake"}}, "alice-pw"); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	mgr := workflow.NewManager(cfg, eng, store, nil, workflow.WithIntervals(time.Hour, time.Hour))
	d, err := New(cfg, eng, store, mgr, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &apiHarness{t: t, daemon: d, handler: d.api.server.Handler}
}

func (h *apiHarness) do(method, path, user, password string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			h.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.SetBasicAuth(user, password)
	}
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	return w
}

func (h *apiHarness) admin(method, path string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	return h.do(method, path, "admin", "test-admin", body)
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func (h *apiHarness) createFile() api.Document {
	h.t.Helper()
	w := h.admin(http.MethodPost, "/api/files", api.CreateDocumentRequest{
		Supplier:         "ACME",
		OriginalFilename: "contract.pdf",
		Artifact:         "uploads/contract.pdf",
	})
	if w.Code != http.StatusCreated {
		h.t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	return decodeBody[api.Document](h.t, w)
}

func TestAPIRequiresAuthentication(t *testing.T) {
	h := newAPIHarness(t)

	w := h.do(http.MethodGet, "/api/status", "", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if w.Header().Get("WWW-Authenticate") == "" {
		t.Fatal("expected basic auth challenge")
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected request id on every response")
	}
	if w := h.do(http.MethodGet, "/api/status", "admin", "wrong", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", w.Code)
	}
	if w := h.admin(http.MethodGet, "/api/status", nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestAPIBearerTokenWithUserHeader(t *testing.T) {
	h := newAPIHarness(t)

	tests := []struct {
		name   string
		token  string
		user   string
		status int
	}{
		{"valid", "secret-token", "alice", http.StatusOK},
		{"wrong token", "nope", "alice", http.StatusUnauthorized},
		{"missing user", "secret-token", "", http.StatusUnauthorized},
		{"unknown user", "secret-token", "mallory", http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
			req.Header.Set("Authorization", "Bearer "+tc.token)
			if tc.user != "" {
				req.Header.Set(UserHeader, tc.user)
			}
			w := httptest.NewRecorder()
			h.handler.ServeHTTP(w, req)
			if w.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, w.Code)
			}
		})
	}
}

func TestAPIUploadAndAdvance(t *testing.T) {
	h := newAPIHarness(t)
	doc := h.createFile()
	if doc.CurrentStep != "intake" || len(doc.History) != 1 || doc.History[0].User != "admin" {
		t.Fatalf("unexpected created document %+v", doc)
	}

	w := h.admin(http.MethodPost, "/api/files/"+doc.ID+"/status", api.StatusRequest{Step: "intake", Status: "completed"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	updated := decodeBody[api.Document](t, w)
	if updated.CurrentStep != "processing" || updated.Steps[0].Status != "Completed" {
		t.Fatalf("expected advance to processing, got %+v", updated)
	}

	w = h.admin(http.MethodGet, "/api/files", nil)
	list := decodeBody[api.DocumentListResponse](t, w)
	if len(list.Documents) != 1 || list.Documents[0].ID != doc.ID {
		t.Fatalf("unexpected list %+v", list)
	}
	w = h.admin(http.MethodGet, "/api/files?step=final", nil)
	if list := decodeBody[api.DocumentListResponse](t, w); len(list.Documents) != 0 {
		t.Fatalf("expected step filter to exclude the document, got %+v", list)
	}
}

func TestAPIErrorMapping(t *testing.T) {
	h := newAPIHarness(t)
	doc := h.createFile()
	base := "/api/files/" + doc.ID

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		kind   string
	}{
		{"missing file", http.MethodGet, "/api/files/missing", nil, http.StatusNotFound, "not_found"},
		{"negative budget", http.MethodPut, base + "/steps/intake/budget", api.BudgetRequest{Minutes: -5}, http.StatusBadRequest, "validation"},
		{"remove current step", http.MethodDelete, base + "/steps/intake", nil, http.StatusConflict, "invalid_transition"},
		{"rename onto existing", http.MethodPost, base + "/steps/processing/rename", api.RenameStepRequest{Name: "final"}, http.StatusConflict, "invalid_transition"},
		{"bad reorder", http.MethodPut, base + "/steps", api.ReorderStepsRequest{Order: []string{"intake"}}, http.StatusBadRequest, "validation"},
		{"unknown step", http.MethodPost, base + "/history", api.HistoryRequest{Step: "nope", Status: "completed"}, http.StatusNotFound, "not_found"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := h.admin(tc.method, tc.path, tc.body)
			if w.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, w.Code, w.Body.String())
			}
			if resp := decodeBody[api.ErrorResponse](t, w); resp.Kind != tc.kind {
				t.Fatalf("expected kind %q, got %+v", tc.kind, resp)
			}
		})
	}

	if w := h.admin(http.MethodPost, base+"/status", map[string]string{"bogus": "x"}); w.Code != http.StatusBadRequest {
		t.Fatalf("expected unknown fields rejected, got %d", w.Code)
	}
}

func TestAPINonAdminRestrictions(t *testing.T) {
	h := newAPIHarness(t)
	doc := h.createFile()

	w := h.do(http.MethodPost, "/api/files/"+doc.ID+"/history", "alice", "alice-pw", api.HistoryRequest{Step: "intake", Status: "in progress"})
	if w.Code != http.StatusOK {
		t.Fatalf("alice's intake role should reach new documents, got %d: %s", w.Code, w.Body.String())
	}
	w = h.admin(http.MethodPut, "/api/files/"+doc.ID+"/steps/intake/assignment", api.AssignmentRequest{Users: []string{"admin"}})
	if w.Code != http.StatusOK {
		t.Fatalf("set assignment: %d %s", w.Code, w.Body.String())
	}
	w = h.do(http.MethodPost, "/api/files/"+doc.ID+"/history", "alice", "alice-pw", api.HistoryRequest{Step: "intake", Status: "completed"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("explicit admin assignment should block alice, got %d", w.Code)
	}
	w = h.do(http.MethodPut, "/api/files/"+doc.ID+"/steps/intake/budget", "alice", "alice-pw", api.BudgetRequest{Minutes: 10})
	if w.Code != http.StatusForbidden {
		t.Fatalf("step configuration is admin only, got %d", w.Code)
	}
	w = h.do(http.MethodDelete, "/api/files/"+doc.ID, "alice", "alice-pw", nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("delete is admin only, got %d", w.Code)
	}

	w = h.admin(http.MethodDelete, "/api/files/"+doc.ID+"/steps/intake/assignment", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("clear assignment: %d %s", w.Code, w.Body.String())
	}
	w = h.do(http.MethodPost, "/api/files/"+doc.ID+"/history", "alice", "alice-pw", api.HistoryRequest{Step: "intake", Status: "in progress"})
	if w.Code != http.StatusOK {
		t.Fatalf("alice should fall back to her global role, got %d: %s", w.Code, w.Body.String())
	}

	if w := h.admin(http.MethodDelete, "/api/files/"+doc.ID, nil); w.Code != http.StatusNoContent {
		t.Fatalf("admin delete: %d", w.Code)
	}
}

func TestAPIStepEditing(t *testing.T) {
	h := newAPIHarness(t)
	doc := h.createFile()
	base := "/api/files/" + doc.ID

	position := 1
	w := h.admin(http.MethodPost, base+"/steps", api.AddStepRequest{Name: "legal", Position: &position})
	if w.Code != http.StatusOK {
		t.Fatalf("add step: %d %s", w.Code, w.Body.String())
	}
	if got := decodeBody[api.Document](t, w); got.Steps[1].Name != "legal" {
		t.Fatalf("expected legal at position 1, got %+v", got.Steps)
	}

	w = h.admin(http.MethodPost, base+"/steps/legal/rename", api.RenameStepRequest{Name: "legal-review"})
	if w.Code != http.StatusOK {
		t.Fatalf("rename: %d %s", w.Code, w.Body.String())
	}
	w = h.admin(http.MethodPut, base+"/steps/legal-review/assignment", api.AssignmentRequest{Users: []string{"alice"}})
	if w.Code != http.StatusOK {
		t.Fatalf("assign: %d %s", w.Code, w.Body.String())
	}
	got := decodeBody[api.Document](t, w)
	if !got.Steps[1].ExplicitAssign || len(got.Steps[1].Assigned) != 1 || got.Steps[1].Assigned[0] != "alice" {
		t.Fatalf("unexpected assignment %+v", got.Steps[1])
	}
	w = h.admin(http.MethodPut, base+"/steps/legal-review/budget", api.BudgetRequest{Minutes: 30})
	if got := decodeBody[api.Document](t, w); got.Steps[1].BudgetMinutes != 30 {
		t.Fatalf("expected budget 30, got %+v", got.Steps[1])
	}
	if w := h.admin(http.MethodDelete, base+"/steps/legal-review", nil); w.Code != http.StatusOK {
		t.Fatalf("remove untouched step: %d %s", w.Code, w.Body.String())
	}
}

func TestAPINotifications(t *testing.T) {
	h := newAPIHarness(t)
	doc := h.createFile()

	w := h.admin(http.MethodGet, "/api/notifications", nil)
	list := decodeBody[api.NotificationList](t, w)
	if list.UnreadCount != 1 || len(list.Notifications) != 1 || list.Notifications[0].FileID != doc.ID {
		t.Fatalf("expected one assignment alert, got %+v", list)
	}

	w = h.admin(http.MethodPost, "/api/notifications/mark_read", api.MarkReadRequest{NotificationID: list.Notifications[0].ID})
	if w.Code != http.StatusOK {
		t.Fatalf("mark read: %d %s", w.Code, w.Body.String())
	}
	if got := decodeBody[map[string]int](t, w); got["unread_count"] != 0 {
		t.Fatalf("expected unread 0, got %v", got)
	}

	w = h.admin(http.MethodPost, "/api/reconcile", nil)
	if resp := decodeBody[api.ReconcileResult](t, w); resp.Created != 0 || resp.Removed != 0 {
		t.Fatalf("reconcile should be idempotent, got %+v", resp)
	}
	w = h.admin(http.MethodGet, "/api/notifications", nil)
	if list := decodeBody[api.NotificationList](t, w); !list.Notifications[0].Read {
		t.Fatal("reconcile must preserve read flags")
	}

	if w := h.admin(http.MethodPost, "/api/notifications/mark_all_read", nil); w.Code != http.StatusOK {
		t.Fatalf("mark all read: %d", w.Code)
	}
}

func TestStatusForKind(t *testing.T) {
	tests := map[string]int{
		"not_found":          http.StatusNotFound,
		"unauthorized":       http.StatusForbidden,
		"invalid_transition": http.StatusConflict,
		"validation":         http.StatusBadRequest,
		"internal":           http.StatusInternalServerError,
	}
	for kind, want := range tests {
		if got := statusForKind(kind); got != want {
			t.Fatalf("statusForKind(%q) = %d, want %d", kind, got, want)
		}
	}
}
