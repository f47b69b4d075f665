package model_test

import (
	"encoding/json"
	"testing"
	"time"

	"docflow/internal/model"
)

func TestStepStatusValueUpgradesLegacyStrings(t *testing.T) {
	raw := []byte(`{
		"intake": "Completed",
		"processing": {"status": "in progress", "assigned_budget_minutes": 30, "worked_minutes": 12.5},
		"validation": null,
		"approval": "Waiting on legal"
	}`)
	var decoded map[string]model.StepStatusValue
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	records := model.NormalizeStatusMap(decoded)

	tests := []struct {
		step   string
		status model.Status
		budget int
	}{
		{"intake", model.StatusCompleted, 0},
		{"processing", model.StatusInProgress, 30},
		{"validation", model.StatusNotStarted, 0},
		{"approval", model.Status("Waiting on legal"), 0},
	}
	for _, tc := range tests {
		got, ok := records[tc.step]
		if !ok {
			t.Fatalf("missing record for %s", tc.step)
		}
		if got.Status != tc.status {
			t.Fatalf("%s: expected status %q, got %q", tc.step, tc.status, got.Status)
		}
		if got.AssignedBudgetMinutes != tc.budget {
			t.Fatalf("%s: expected budget %d, got %d", tc.step, tc.budget, got.AssignedBudgetMinutes)
		}
	}
	if records["processing"].WorkedMinutes != 12.5 {
		t.Fatalf("expected worked minutes to survive upgrade, got %v", records["processing"].WorkedMinutes)
	}
}

func TestStepStatusValueMarshalsStructuredForm(t *testing.T) {
	value := model.StepStatusValue{Legacy: "Completed"}
	data, err := json.Marshal(value)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var record model.StepRecord
	if err := json.Unmarshal(data, &record); err != nil {
		t.Fatalf("expected structured record, got %s: %v", data, err)
	}
	if record.Status != model.StatusCompleted {
		t.Fatalf("expected Completed, got %q", record.Status)
	}
}

func TestParseStatus(t *testing.T) {
	tests := map[string]model.Status{
		"Completed":    model.StatusCompleted,
		" completed ":  model.StatusCompleted,
		"IN PROGRESS":  model.StatusInProgress,
		"not_started":  model.StatusNotStarted,
		"Needs rework": model.Status("Needs rework"),
		"":             model.Status(""),
	}
	for raw, want := range tests {
		if got := model.ParseStatus(raw); got != want {
			t.Fatalf("ParseStatus(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestNewDocumentMaterializesDefaults(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	defaults := model.Defaults{
		Steps:       []string{"intake", "approval"},
		Assignments: map[string][]string{"approval": {"bob", "alice", "bob"}},
	}
	doc := model.NewDocument("doc-1", " ACME ", "report.pdf", defaults, now)

	if doc.CurrentStep != "intake" {
		t.Fatalf("expected current step intake, got %q", doc.CurrentStep)
	}
	if len(doc.StepStatus) != 2 || doc.StepStatus["approval"].Status != model.StatusNotStarted {
		t.Fatalf("expected NotStarted records for every step, got %#v", doc.StepStatus)
	}
	users, explicit := doc.Assignment("approval")
	if !explicit || len(users) != 2 || users[0] != "alice" {
		t.Fatalf("expected sorted unique assignment copy, got %v (explicit=%v)", users, explicit)
	}
	if _, explicit := doc.Assignment("intake"); explicit {
		t.Fatal("intake should defer to global roles")
	}
	if len(doc.StepBudgets) != 0 {
		t.Fatalf("expected no budget overrides on a new document, got %v", doc.StepBudgets)
	}
	if doc.Supplier != "ACME" || !doc.CreationTime.Equal(now) {
		t.Fatalf("unexpected document header: %#v", doc)
	}

	defaults.Steps[0] = "mutated"
	defaults.Assignments["approval"][0] = "mallory"
	if doc.StepSequence[0] != "intake" || doc.StepAssignments["approval"][0] != "alice" {
		t.Fatal("document must not share containers with the defaults")
	}
}

func TestDocumentCloneIsDeep(t *testing.T) {
	ref := "uploads/a.pdf"
	ts := time.Now()
	doc := &model.Document{
		ID:              "doc",
		StepSequence:    []string{"intake"},
		History:         []model.HistoryEntry{{Step: "intake", ArtifactReference: &ref}},
		StepStatus:      map[string]model.StepRecord{"intake": {Status: model.StatusInProgress, LastUpdateTime: &ts}},
		StepAssignments: map[string][]string{"intake": {"alice"}},
		StepBudgets:     map[string]int{"intake": 10},
	}
	clone := doc.Clone()
	*clone.History[0].ArtifactReference = "changed"
	clone.StepAssignments["intake"][0] = "bob"
	clone.StepBudgets["intake"] = 99
	clone.StepSequence[0] = "other"

	if ref != "uploads/a.pdf" || doc.StepAssignments["intake"][0] != "alice" || doc.StepBudgets["intake"] != 10 || doc.StepSequence[0] != "intake" {
		t.Fatal("clone shares state with the original")
	}
}

func TestSortedUniqueKeepsEmptySet(t *testing.T) {
	got := model.SortedUnique(nil)
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
	got = model.SortedUnique([]string{" carol", "", "Caf\u00e9", "Cafe\u0301"})
	if len(got) != 2 {
		t.Fatalf("expected NFC-equal names to collapse, got %q", got)
	}
}

func TestUserAuthorizedStepsUnion(t *testing.T) {
	user := &model.User{GlobalRoles: []string{"intake"}, CustomSteps: []string{"approval", "intake"}}
	steps := user.AuthorizedSteps()
	if len(steps) != 2 {
		t.Fatalf("expected union of two steps, got %v", steps)
	}
	var nilUser *model.User
	if nilUser.AuthorizedSteps() != nil {
		t.Fatal("nil user has no steps")
	}
}
