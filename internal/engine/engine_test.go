package engine_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"docflow/internal/engine"
	"docflow/internal/model"
	"docflow/internal/testsupport"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	dirty  int
	pushed []model.Notification
}

func (r *recorder) MarkDirty() {
	r.mu.Lock()
	r.dirty++
	r.mu.Unlock()
}

func (r *recorder) NotifyAssigned(_ context.Context, n model.Notification) error {
	r.mu.Lock()
	r.pushed = append(r.pushed, n)
	r.mu.Unlock()
	return nil
}

func (r *recorder) TestNotification(context.Context) error { return nil }

func (r *recorder) dirtyCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dirty
}

func (r *recorder) pushedTo(owner string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, n := range r.pushed {
		if n.Owner == owner {
			count++
		}
	}
	return count
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	next := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		next++
		return fmt.Sprintf("id-%d", next)
	}
}

func newEngine(t *testing.T, steps ...string) (*engine.Engine, *testsupport.Clock, *recorder) {
	t.Helper()
	if len(steps) == 0 {
		steps = []string{"intake", "approval"}
	}
	clock := testsupport.FixedClock(t0)
	rec := &recorder{}
	snap := model.Snapshot{
		Users: []model.User{
			{Username: "admin", IsAdmin: true},
			{Username: "alice", GlobalRoles: []string{"intake"}},
			{Username: "bob", GlobalRoles: []string{"approval"}},
		},
		StepDefaults: steps,
	}
	e := engine.New(snap, engine.Options{
		Clock:       clock.Now,
		Persistence: rec,
		Publisher:   rec,
		NewID:       sequentialIDs(),
	})
	return e, clock, rec
}

func upload(t *testing.T, e *engine.Engine, actor string) *model.Document {
	t.Helper()
	doc, err := e.CreateDocument(context.Background(), actor, engine.CreateRequest{
		Supplier:          "ACME",
		OriginalFilename:  "report.pdf",
		ArtifactReference: "uploads/report.pdf",
	})
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	return doc
}

func TestUploadThenCompleteAdvancesAndAccruesTime(t *testing.T) {
	ctx := context.Background()
	e, clock, rec := newEngine(t)

	doc := upload(t, e, "alice")
	if doc.CurrentStep != "intake" {
		t.Fatalf("expected current step intake, got %q", doc.CurrentStep)
	}
	if doc.StepStatus["intake"].Status != model.StatusInProgress {
		t.Fatalf("expected intake in progress, got %q", doc.StepStatus["intake"].Status)
	}

	clock.Advance(45 * time.Minute)
	doc, err := e.UpdateStatus(ctx, "alice", doc.ID, "intake", "completed", "checked")
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if doc.CurrentStep != "approval" {
		t.Fatalf("expected advance to approval, got %q", doc.CurrentStep)
	}
	if got := doc.StepStatus["intake"].WorkedMinutes; got != 45 {
		t.Fatalf("expected 45 worked minutes, got %v", got)
	}
	if len(doc.History) != 2 || doc.History[1].ActingUser != "alice" || doc.History[1].HasArtifact() {
		t.Fatalf("unexpected history %#v", doc.History)
	}
	if rec.dirtyCount() == 0 {
		t.Fatal("expected mutations to mark persistence dirty")
	}
}

func TestNotificationsFollowCurrentStep(t *testing.T) {
	ctx := context.Background()
	e, _, rec := newEngine(t, "intake", "approval", "final")

	doc := upload(t, e, "alice")
	if got := e.Notifications("alice"); len(got) != 1 || got[0].FileID != doc.ID || got[0].Step != "intake" {
		t.Fatalf("expected one intake alert for alice, got %#v", got)
	}
	if len(e.Notifications("bob")) != 0 {
		t.Fatal("bob should not be alerted while the document sits in intake")
	}

	if _, err := e.UpdateStatus(ctx, "alice", doc.ID, "intake", "Completed", ""); err != nil {
		t.Fatalf("complete intake: %v", err)
	}
	if len(e.Notifications("alice")) != 0 {
		t.Fatal("alice's alert should be removed once intake completes")
	}
	if got := e.Notifications("bob"); len(got) != 1 || got[0].Step != "approval" {
		t.Fatalf("expected an approval alert for bob, got %#v", got)
	}
	if rec.pushedTo("bob") != 1 {
		t.Fatalf("expected one push for bob, got %d", rec.pushedTo("bob"))
	}

	if _, err := e.UpdateStatus(ctx, "bob", doc.ID, "approval", "Completed", ""); err != nil {
		t.Fatalf("complete approval: %v", err)
	}
	if len(e.Notifications("bob")) != 0 {
		t.Fatal("bob's alert should be removed once the document moves to final")
	}

	result := e.Reconcile(ctx)
	if result.Changed() {
		t.Fatalf("second reconcile must be a no-op, got %+v", result)
	}
}

func TestExplicitEmptyAssignmentBlocksNonAdmin(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newEngine(t)
	doc := upload(t, e, "alice")

	if err := e.SetStepAssignment(ctx, doc.ID, "intake", nil); err != nil {
		t.Fatalf("SetStepAssignment: %v", err)
	}
	_, err := e.UpdateStatus(ctx, "alice", doc.ID, "intake", "Completed", "")
	if !errors.Is(err, engine.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if len(e.Notifications("alice")) != 0 {
		t.Fatal("an explicit empty assignment should remove alice's alert")
	}
	if _, err := e.UpdateStatus(ctx, "admin", doc.ID, "intake", "Completed", ""); err != nil {
		t.Fatalf("admin should bypass assignments: %v", err)
	}

	if err := e.ClearStepAssignment(ctx, doc.ID, "intake"); err != nil {
		t.Fatalf("ClearStepAssignment: %v", err)
	}
	ok, err := e.Authorized("alice", "intake", doc.ID)
	if err != nil || !ok {
		t.Fatalf("expected fallback to roles after clear, got %v %v", ok, err)
	}
}

func TestUnauthorizedUpload(t *testing.T) {
	e, _, _ := newEngine(t)
	_, err := e.CreateDocument(context.Background(), "bob", engine.CreateRequest{ArtifactReference: "x"})
	if !errors.Is(err, engine.ErrUnauthorized) {
		t.Fatalf("bob has no intake role, expected ErrUnauthorized, got %v", err)
	}
	_, err = e.CreateDocument(context.Background(), "nobody", engine.CreateRequest{ArtifactReference: "x"})
	if !errors.Is(err, engine.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for unknown user, got %v", err)
	}
	if len(e.Documents()) != 0 {
		t.Fatal("failed uploads must not create documents")
	}
}

func TestStepEditErrors(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newEngine(t, "intake", "review", "approval")
	doc := upload(t, e, "alice")

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{"remove current", func() error { return e.RemoveStep(ctx, doc.ID, "intake") }, engine.ErrInvalidTransition},
		{"remove unknown", func() error { return e.RemoveStep(ctx, doc.ID, "missing") }, engine.ErrNotFound},
		{"rename onto existing", func() error { return e.RenameStep(ctx, doc.ID, "review", "approval") }, engine.ErrInvalidTransition},
		{"rename to empty", func() error { return e.RenameStep(ctx, doc.ID, "review", "  ") }, engine.ErrValidation},
		{"add empty", func() error { return e.AddStep(ctx, doc.ID, "", 0) }, engine.ErrValidation},
		{"add duplicate", func() error { return e.AddStep(ctx, doc.ID, "review", 0) }, engine.ErrInvalidTransition},
		{"reorder subset", func() error { return e.ReorderSteps(ctx, doc.ID, []string{"intake", "review"}) }, engine.ErrValidation},
		{"reorder duplicate", func() error {
			return e.ReorderSteps(ctx, doc.ID, []string{"intake", "intake", "approval"})
		}, engine.ErrValidation},
		{"negative budget", func() error { return e.SetStepBudget(ctx, doc.ID, "intake", -5) }, engine.ErrValidation},
		{"budget unknown doc", func() error { return e.SetStepBudget(ctx, "nope", "intake", 5) }, engine.ErrNotFound},
		{"budget unknown step", func() error { return e.SetStepBudget(ctx, doc.ID, "missing", 5) }, engine.ErrNotFound},
		{"assign unknown user", func() error { return e.SetStepAssignment(ctx, doc.ID, "review", []string{"mallory"}) }, engine.ErrNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.run()
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if _, err := e.UpdateStatus(ctx, "admin", doc.ID, "review", "In Progress", ""); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if err := e.RemoveStep(ctx, doc.ID, "review"); !errors.Is(err, engine.ErrInvalidTransition) {
		t.Fatalf("removing a step with history should fail, got %v", err)
	}
}

func TestRenameRewritesReferences(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newEngine(t)
	doc := upload(t, e, "alice")
	if err := e.SetStepBudget(ctx, doc.ID, "intake", 30); err != nil {
		t.Fatalf("SetStepBudget: %v", err)
	}
	if err := e.SetStepAssignment(ctx, doc.ID, "intake", []string{"alice"}); err != nil {
		t.Fatalf("SetStepAssignment: %v", err)
	}

	if err := e.RenameStep(ctx, doc.ID, "intake", "receive"); err != nil {
		t.Fatalf("RenameStep: %v", err)
	}
	got, err := e.Document(doc.ID)
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	if got.CurrentStep != "receive" || got.StepSequence[0] != "receive" {
		t.Fatalf("expected renamed current step, got %q %v", got.CurrentStep, got.StepSequence)
	}
	if got.History[0].Step != "receive" {
		t.Fatalf("expected history rewritten, got %q", got.History[0].Step)
	}
	if got.StepStatus["receive"].Status != model.StatusInProgress || got.StepStatus["receive"].AssignedBudgetMinutes != 30 {
		t.Fatalf("expected status and budget to move with the rename, got %#v", got.StepStatus["receive"])
	}
	if _, ok := got.StepStatus["intake"]; ok {
		t.Fatal("old step key should be gone")
	}
	if users, explicit := got.Assignment("receive"); !explicit || len(users) != 1 {
		t.Fatalf("expected assignment to move, got %v", users)
	}
}

func TestAddAndReorderSteps(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newEngine(t)
	doc := upload(t, e, "alice")

	if err := e.AddStep(ctx, doc.ID, "legal", 1); err != nil {
		t.Fatalf("AddStep: %v", err)
	}
	if err := e.ReorderSteps(ctx, doc.ID, []string{"intake", "approval", "legal"}); err != nil {
		t.Fatalf("ReorderSteps: %v", err)
	}
	got, _ := e.Document(doc.ID)
	if fmt.Sprint(got.StepSequence) != "[intake approval legal]" {
		t.Fatalf("unexpected sequence %v", got.StepSequence)
	}
	if got.StepStatus["legal"].Status != model.StatusNotStarted {
		t.Fatalf("expected new step to start NotStarted, got %#v", got.StepStatus["legal"])
	}
}

func TestGlobalDefaultsApplyToNewDocuments(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newEngine(t)
	if err := e.AddStep(ctx, "", "archive", -1); err != nil {
		t.Fatalf("AddStep global: %v", err)
	}
	if err := e.SetStepBudget(ctx, "", "intake", 15); err != nil {
		t.Fatalf("SetStepBudget global: %v", err)
	}
	if err := e.RenameStep(ctx, "", "approval", "sign-off"); err != nil {
		t.Fatalf("RenameStep global: %v", err)
	}
	bob, err := e.User("bob")
	if err != nil || bob.GlobalRoles[0] != "sign-off" {
		t.Fatalf("expected global rename to update roles, got %#v %v", bob, err)
	}

	doc := upload(t, e, "alice")
	if fmt.Sprint(doc.StepSequence) != "[intake sign-off archive]" {
		t.Fatalf("unexpected sequence %v", doc.StepSequence)
	}
	if doc.StepStatus["intake"].AssignedBudgetMinutes != 15 || len(doc.StepBudgets) != 0 {
		t.Fatalf("expected the global budget without a document override, got %#v %v", doc.StepStatus["intake"], doc.StepBudgets)
	}
	if err := e.RemoveStep(ctx, "", "archive"); err != nil {
		t.Fatalf("RemoveStep global: %v", err)
	}
	if got := e.DefaultSteps(); len(got) != 2 {
		t.Fatalf("expected two default steps, got %v", got)
	}
	if again, _ := e.Document(doc.ID); len(again.StepSequence) != 3 {
		t.Fatal("removing a default step must not touch existing documents' sequences")
	}
}

func TestOverdueFlipsWithElapsedTime(t *testing.T) {
	ctx := context.Background()
	e, clock, _ := newEngine(t)
	if err := e.SetStepBudget(ctx, "", "intake", 10); err != nil {
		t.Fatalf("SetStepBudget: %v", err)
	}
	doc := upload(t, e, "alice")

	clock.Advance(10 * time.Minute)
	e.Refresh(ctx)
	got, _ := e.Document(doc.ID)
	if got.StepStatus["intake"].IsOverdue {
		t.Fatal("exactly on budget is not overdue")
	}
	clock.Advance(time.Second)
	e.Refresh(ctx)
	got, _ = e.Document(doc.ID)
	if !got.StepStatus["intake"].IsOverdue {
		t.Fatalf("expected overdue past budget, got %#v", got.StepStatus["intake"])
	}
	if stats := e.Stats(); stats.Overdue != 1 || stats.ByStep["intake"] != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestDeleteDocumentRequiresAdmin(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newEngine(t)
	doc := upload(t, e, "alice")

	if err := e.DeleteDocument(ctx, "alice", doc.ID); !errors.Is(err, engine.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := e.DeleteDocument(ctx, "admin", doc.ID); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if _, err := e.Document(doc.ID); !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if len(e.Notifications("alice")) != 0 {
		t.Fatal("alerts for a deleted document should be removed")
	}
}

func TestMarkRead(t *testing.T) {
	e, _, _ := newEngine(t)
	upload(t, e, "alice")
	upload(t, e, "alice")

	list := e.Notifications("alice")
	if len(list) != 2 || e.UnreadCount("alice") != 2 {
		t.Fatalf("expected two unread alerts, got %d (unread %d)", len(list), e.UnreadCount("alice"))
	}
	if err := e.MarkRead("bob", list[0].ID); !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("marking another user's alert should fail, got %v", err)
	}
	if err := e.MarkRead("alice", list[0].ID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if e.UnreadCount("alice") != 1 {
		t.Fatalf("expected one unread alert, got %d", e.UnreadCount("alice"))
	}
	if changed := e.MarkAllRead("alice"); changed != 1 {
		t.Fatalf("expected one alert changed, got %d", changed)
	}
	e.Reconcile(context.Background())
	if e.UnreadCount("alice") != 0 {
		t.Fatal("reconcile must preserve read flags")
	}
}

func TestUsersAndAuthentication(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newEngine(t)

	user, err := e.UpsertUser(ctx, model.User{Username: " carol ", GlobalRoles: []string{"approval", "approval"}}, "s3cret")
	if err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	if user.Username != "carol" || len(user.GlobalRoles) != 1 {
		t.Fatalf("expected normalized user, got %#v", user)
	}
	if _, err := e.Authenticate("carol", "s3cret"); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if _, err := e.Authenticate("carol", "wrong"); !errors.Is(err, engine.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	if _, err := e.UpsertUser(ctx, model.User{Username: "carol", CustomSteps: []string{"intake"}}, ""); err != nil {
		t.Fatalf("UpsertUser update: %v", err)
	}
	if _, err := e.Authenticate("carol", "s3cret"); err != nil {
		t.Fatalf("an empty password must keep the existing hash: %v", err)
	}
	if err := e.SetUserRoles(ctx, "carol", []string{"intake"}, nil); err != nil {
		t.Fatalf("SetUserRoles: %v", err)
	}
	if ok, _ := e.Authorized("carol", "intake", ""); !ok {
		t.Fatal("expected carol to hold intake")
	}

	if err := e.DeleteUser(ctx, "admin"); !errors.Is(err, engine.ErrInvalidTransition) {
		t.Fatalf("deleting the last admin should fail, got %v", err)
	}
	if err := e.DeleteUser(ctx, "carol"); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if len(e.Users()) != 3 {
		t.Fatalf("expected three users, got %d", len(e.Users()))
	}
}

func TestLoadNormalizesLegacyDocuments(t *testing.T) {
	ts := t0
	doc := model.Document{
		ID:           "legacy",
		StepSequence: []string{"intake", "approval"},
		CurrentStep:  "approval",
		History: []model.HistoryEntry{
			{Step: "intake", Timestamp: ts, ActingUser: "alice", DeclaredStatus: model.StatusInProgress},
		},
		CreationTime: ts,
	}
	e := engine.New(model.Snapshot{
		Users:        []model.User{{Username: "alice", GlobalRoles: []string{"intake"}}},
		Documents:    []model.Document{doc},
		StepDefaults: []string{"intake", "approval"},
	}, engine.Options{Clock: func() time.Time { return ts.Add(time.Hour) }})

	got, err := e.Document("legacy")
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	if got.CurrentStep != "intake" {
		t.Fatalf("expected load to repair the current step, got %q", got.CurrentStep)
	}
	if got.StepStatus["approval"].Status != model.StatusNotStarted {
		t.Fatalf("expected missing records to be materialized, got %#v", got.StepStatus)
	}
	if got.StepAssignments == nil {
		t.Fatal("expected empty assignment map rather than nil")
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	e, _, _ := newEngine(t)
	doc := upload(t, e, "alice")

	snap := e.Snapshot()
	snap.Documents[0].StepSequence[0] = "mutated"
	snap.Users[0].IsAdmin = false

	got, _ := e.Document(doc.ID)
	if got.StepSequence[0] != "intake" {
		t.Fatal("snapshot must not alias engine state")
	}
	if admin, _ := e.User("admin"); !admin.IsAdmin {
		t.Fatal("snapshot users must not alias engine state")
	}
	if engine.Kind(fmt.Errorf("wrapped: %w", &engine.Error{Kind: engine.ErrNotFound})) != "not_found" {
		t.Fatal("expected wrapped engine errors to classify")
	}
}

func TestGlobalBudgetReachesExistingDocuments(t *testing.T) {
	ctx := context.Background()
	e, clock, _ := newEngine(t)
	if err := e.SetStepBudget(ctx, "", "intake", 5); err != nil {
		t.Fatalf("SetStepBudget: %v", err)
	}
	first := upload(t, e, "alice")
	if err := e.SetStepBudget(ctx, "", "intake", 10); err != nil {
		t.Fatalf("SetStepBudget: %v", err)
	}
	second := upload(t, e, "alice")
	if err := e.SetStepBudget(ctx, second.ID, "approval", 7); err != nil {
		t.Fatalf("SetStepBudget override: %v", err)
	}

	clock.Advance(20 * time.Minute)
	if err := e.SetStepBudget(ctx, "", "intake", 30); err != nil {
		t.Fatalf("SetStepBudget: %v", err)
	}
	if err := e.SetStepBudget(ctx, "", "approval", 50); err != nil {
		t.Fatalf("SetStepBudget: %v", err)
	}

	for _, id := range []string{first.ID, second.ID} {
		got, err := e.Document(id)
		if err != nil {
			t.Fatalf("Document: %v", err)
		}
		intake := got.StepStatus["intake"]
		if intake.AssignedBudgetMinutes != 30 || intake.IsOverdue {
			t.Fatalf("%s: expected intake budget 30 and not overdue at 20 minutes, got %#v", id, intake)
		}
	}
	if got, _ := e.Document(first.ID); got.StepStatus["approval"].AssignedBudgetMinutes != 50 {
		t.Fatalf("expected the global approval budget, got %#v", got.StepStatus["approval"])
	}
	if got, _ := e.Document(second.ID); got.StepStatus["approval"].AssignedBudgetMinutes != 7 {
		t.Fatalf("a document override must win over the global budget, got %#v", got.StepStatus["approval"])
	}
}

func newSeededEngine(t *testing.T) (*engine.Engine, *testsupport.Clock) {
	t.Helper()
	steps := []string{"intake", "approval"}
	clock := testsupport.FixedClock(t0)
	snap := model.Snapshot{
		Users:        []model.User{{Username: "admin", IsAdmin: true, GlobalRoles: steps}},
		StepDefaults: steps,
		Assignments:  model.DefaultAssignments(steps, "admin"),
	}
	e := engine.New(snap, engine.Options{Clock: clock.Now, NewID: sequentialIDs()})
	return e, clock
}

func TestUserRolesFollowSeededAssignments(t *testing.T) {
	ctx := context.Background()
	e, _ := newSeededEngine(t)

	if _, err := e.UpsertUser(ctx, model.User{Username: "carol", GlobalRoles: []string{"intake"}}, ""); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	doc := upload(t, e, "carol")
	if ok, err := e.Authorized("carol", "intake", doc.ID); err != nil || !ok {
		t.Fatalf("carol should act on intake of a new document, got %v %v", ok, err)
	}
	if got := e.Notifications("carol"); len(got) != 1 || got[0].Step != "intake" {
		t.Fatalf("expected an intake alert for carol, got %#v", got)
	}

	if err := e.SetUserRoles(ctx, "carol", []string{"approval"}, nil); err != nil {
		t.Fatalf("SetUserRoles: %v", err)
	}
	next := upload(t, e, "admin")
	if ok, _ := e.Authorized("carol", "intake", next.ID); ok {
		t.Fatal("carol lost the intake role and must not be assigned on new documents")
	}
	if ok, _ := e.Authorized("carol", "approval", next.ID); !ok {
		t.Fatal("carol gained the approval role and should be assigned on new documents")
	}

	if err := e.DeleteUser(ctx, "carol"); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	for _, id := range []string{doc.ID, next.ID} {
		got, _ := e.Document(id)
		for step, users := range got.StepAssignments {
			for _, name := range users {
				if name == "carol" {
					t.Fatalf("deleted user still assigned on %s/%s", id, step)
				}
			}
		}
	}
	if got := e.Notifications("carol"); len(got) != 0 {
		t.Fatalf("deleted user should have no alerts, got %#v", got)
	}
}

func TestGlobalRenameUpdatesExistingDocuments(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newEngine(t)
	doc := upload(t, e, "alice")
	if ok, _ := e.Authorized("bob", "approval", doc.ID); !ok {
		t.Fatal("bob should reach approval through his role")
	}

	if err := e.RenameStep(ctx, "", "approval", "sign-off"); err != nil {
		t.Fatalf("RenameStep: %v", err)
	}
	got, err := e.Document(doc.ID)
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	if fmt.Sprint(got.StepSequence) != "[intake sign-off]" {
		t.Fatalf("expected the existing document renamed, got %v", got.StepSequence)
	}
	if _, ok := got.StepStatus["approval"]; ok {
		t.Fatal("old status key should be gone")
	}
	if ok, _ := e.Authorized("bob", "sign-off", doc.ID); !ok {
		t.Fatal("bob should keep access to the renamed step")
	}
}

func TestGlobalRenameSkipsDocumentsWithTheNewName(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newEngine(t)
	doc := upload(t, e, "alice")
	if err := e.AddStep(ctx, doc.ID, "sign-off", -1); err != nil {
		t.Fatalf("AddStep: %v", err)
	}
	if err := e.RenameStep(ctx, "", "approval", "sign-off"); err != nil {
		t.Fatalf("RenameStep: %v", err)
	}
	got, _ := e.Document(doc.ID)
	if fmt.Sprint(got.StepSequence) != "[intake approval sign-off]" {
		t.Fatalf("expected the conflicting document untouched, got %v", got.StepSequence)
	}
}

func TestConcurrentWritersKeepInvariants(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newEngine(t)
	doc := upload(t, e, "alice")

	const writers = 8
	const perWriter = 25
	var wg sync.WaitGroup
	errs := make(chan error, writers*perWriter*2)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if _, err := e.UpdateStatus(ctx, "alice", doc.ID, "intake", "in progress", ""); err != nil {
					errs <- err
				}
				users := []string{"bob"}
				if (w+i)%2 == 0 {
					users = append(users, "admin")
				}
				if err := e.SetStepAssignment(ctx, doc.ID, "approval", users); err != nil {
					errs <- err
				}
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				e.Reconcile(ctx)
				e.Refresh(ctx)
				e.Scan(ctx)
				_ = e.Snapshot()
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent write failed: %v", err)
	}

	got, err := e.Document(doc.ID)
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	if want := 1 + writers*perWriter; len(got.History) != want {
		t.Fatalf("expected %d history entries, got %d", want, len(got.History))
	}
	if got.CurrentStep != "intake" || !got.HasStep(got.CurrentStep) {
		t.Fatalf("expected a single current step intake, got %q", got.CurrentStep)
	}
	if result := e.Reconcile(ctx); result.Changed() {
		t.Fatalf("reconcile after the writers settle must be a no-op, got %+v", result)
	}
	if got := e.Notifications("alice"); len(got) != 1 {
		t.Fatalf("expected exactly one alert for alice, got %d", len(got))
	}
}

func TestRefreshFlagsDirtyOnlyWhenRecordsChange(t *testing.T) {
	ctx := context.Background()
	e, clock, rec := newEngine(t)
	upload(t, e, "alice")

	before := rec.dirtyCount()
	e.Refresh(ctx)
	if result := e.Scan(ctx); result.Changed() {
		t.Fatalf("scan without elapsed time should not change alerts, got %+v", result)
	}
	if got := rec.dirtyCount(); got != before {
		t.Fatalf("refresh without changes must not flag persistence, dirty %d -> %d", before, got)
	}

	clock.Advance(time.Minute)
	e.Refresh(ctx)
	if got := rec.dirtyCount(); got != before+1 {
		t.Fatalf("elapsed time changes worked minutes and should flag persistence once, dirty %d -> %d", before, got)
	}
}
