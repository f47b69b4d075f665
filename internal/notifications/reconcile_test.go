package notifications_test

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"docflow/internal/model"
	"docflow/internal/notifications"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("n-%d", n)
	}
}

func docAt(id, current string, steps ...string) *model.Document {
	doc := model.NewDocument(id, "acme", id+".pdf", model.Defaults{Steps: steps}, now)
	doc.CurrentStep = current
	return doc
}

func TestReconcileCreatesAndRemovesOnRoleChange(t *testing.T) {
	user := &model.User{Username: "u", GlobalRoles: []string{"approval"}}
	doc := docAt("doc-1", "approval", "intake", "approval")

	first := notifications.Reconcile(notifications.Input{
		Users:     []*model.User{user},
		Documents: []*model.Document{doc},
		NewID:     sequentialIDs(),
		Now:       now,
	})
	if len(first.Created) != 1 || len(first.Removed) != 0 {
		t.Fatalf("expected one create, got created=%d removed=%d", len(first.Created), len(first.Removed))
	}
	created := first.Created[0]
	if created.Owner != "u" || created.FileID != "doc-1" || created.Step != "approval" || created.Type != model.NotificationFileAssigned {
		t.Fatalf("unexpected notification: %#v", created)
	}
	if !strings.Contains(created.Message, "doc-1.pdf") || !strings.Contains(created.Message, "approval") {
		t.Fatalf("message should name file and step, got %q", created.Message)
	}

	user.GlobalRoles = nil
	second := notifications.Reconcile(notifications.Input{
		Users:     []*model.User{user},
		Documents: []*model.Document{doc},
		Existing:  first.Notifications,
		NewID:     sequentialIDs(),
		Now:       now,
	})
	if len(second.Removed) != 1 || second.Removed[0].ID != created.ID {
		t.Fatalf("expected the alert to be removed, got %#v", second.Removed)
	}
	if len(second.Notifications) != 0 {
		t.Fatalf("expected no remaining alerts, got %#v", second.Notifications)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	users := []*model.User{
		{Username: "alice", GlobalRoles: []string{"intake", "approval"}},
		{Username: "bob", CustomSteps: []string{"approval"}},
	}
	docs := []*model.Document{
		docAt("a", "intake", "intake", "approval"),
		docAt("b", "approval", "intake", "approval"),
	}
	in := notifications.Input{Users: users, Documents: docs, NewID: sequentialIDs(), Now: now}
	first := notifications.Reconcile(in)
	if len(first.Created) != 3 {
		t.Fatalf("expected three alerts, got %d", len(first.Created))
	}

	in.Existing = first.Notifications
	second := notifications.Reconcile(in)
	if second.Changed() {
		t.Fatalf("second pass changed state: created=%d removed=%d", len(second.Created), len(second.Removed))
	}
	if len(second.Notifications) != len(first.Notifications) {
		t.Fatalf("expected alert list preserved, got %d want %d", len(second.Notifications), len(first.Notifications))
	}
}

func TestReconcileRespectsExplicitAssignments(t *testing.T) {
	users := []*model.User{
		{Username: "alice", GlobalRoles: []string{"validation"}},
		{Username: "bob", GlobalRoles: []string{"validation"}},
		{Username: "carol"},
	}
	doc := docAt("doc", "validation", "validation")
	doc.StepAssignments["validation"] = []string{"bob", "carol"}

	res := notifications.Reconcile(notifications.Input{Users: users, Documents: []*model.Document{doc}, NewID: sequentialIDs(), Now: now})
	if len(res.Created) != 1 || res.Created[0].Owner != "bob" {
		t.Fatalf("expected only bob (role and assignment), got %#v", res.Created)
	}

	doc.StepAssignments["validation"] = []string{}
	res = notifications.Reconcile(notifications.Input{Users: users, Documents: []*model.Document{doc}, Existing: res.Notifications, NewID: sequentialIDs(), Now: now})
	if len(res.Removed) != 1 || len(res.Notifications) != 0 {
		t.Fatalf("explicit empty assignment should remove bob's alert, got %#v", res)
	}
}

func TestReconcileLeavesOtherTypesAlone(t *testing.T) {
	user := &model.User{Username: "u"}
	other := model.Notification{ID: "x", Owner: "u", Type: model.NotificationOther, FileID: "gone", Step: "intake"}
	res := notifications.Reconcile(notifications.Input{
		Users:    []*model.User{user},
		Existing: []model.Notification{other},
		Now:      now,
	})
	if res.Changed() || len(res.Notifications) != 1 || res.Notifications[0].ID != "x" {
		t.Fatalf("expected non file_assigned alert untouched, got %#v", res)
	}
}

func TestReconcileCollapsesDuplicatesAndDropsDeletedFiles(t *testing.T) {
	user := &model.User{Username: "u", GlobalRoles: []string{"intake"}}
	doc := docAt("doc", "intake", "intake")
	existing := []model.Notification{
		{ID: "1", Owner: "u", Type: model.NotificationFileAssigned, FileID: "doc", Step: "intake"},
		{ID: "2", Owner: "u", Type: model.NotificationFileAssigned, FileID: "doc", Step: "intake"},
		{ID: "3", Owner: "u", Type: model.NotificationFileAssigned, FileID: "deleted", Step: "intake"},
	}
	res := notifications.Reconcile(notifications.Input{Users: []*model.User{user}, Documents: []*model.Document{doc}, Existing: existing, Now: now})
	if len(res.Created) != 0 || len(res.Removed) != 2 {
		t.Fatalf("expected duplicate and stale alerts removed, got created=%d removed=%d", len(res.Created), len(res.Removed))
	}
	if len(res.Notifications) != 1 || res.Notifications[0].ID != "1" {
		t.Fatalf("expected the oldest alert kept, got %#v", res.Notifications)
	}
}

func TestReconcileIsolatesBadUsersAndOrphans(t *testing.T) {
	good := &model.User{Username: "good", GlobalRoles: []string{"intake"}}
	doc := docAt("doc", "intake", "intake")
	existing := []model.Notification{
		{ID: "orphan", Owner: "deleted-user", Type: model.NotificationFileAssigned, FileID: "doc", Step: "intake"},
		{ID: "orphan-other", Owner: "deleted-user", Type: model.NotificationOther},
	}
	res := notifications.Reconcile(notifications.Input{
		Users:     []*model.User{nil, {Username: "  "}, good},
		Documents: []*model.Document{doc, nil},
		Existing:  existing,
		NewID:     sequentialIDs(),
		Now:       now,
	})
	if len(res.Failed) != 2 {
		t.Fatalf("expected two isolated failures, got %#v", res.Failed)
	}
	if len(res.Created) != 1 || res.Created[0].Owner != "good" {
		t.Fatalf("valid users must still be reconciled, got %#v", res.Created)
	}
	if len(res.Removed) != 1 || res.Removed[0].ID != "orphan" {
		t.Fatalf("expected orphaned file_assigned alert removed, got %#v", res.Removed)
	}
	var keptOther bool
	for _, n := range res.Notifications {
		if n.ID == "orphan-other" {
			keptOther = true
		}
	}
	if !keptOther {
		t.Fatal("orphaned alerts of other types are left alone")
	}
}

func TestTargetsIgnoresDocumentsWithoutCurrentStep(t *testing.T) {
	user := &model.User{Username: "u", GlobalRoles: []string{"intake"}}
	empty := &model.Document{ID: "empty"}
	targets := notifications.Targets(user, []*model.Document{empty})
	if len(targets) != 0 {
		t.Fatalf("expected no targets, got %v", targets)
	}
}
