// Package stepstatus derives per-step status, elapsed working time and the
// overdue flag of a document from its history log.
package stepstatus

import (
	"slices"
	"time"

	"docflow/internal/model"
)

type scan struct {
	status      model.Status
	completedAt *time.Time
	firstAt     *time.Time
	lastAt      *time.Time
	lastUser    string
}

// Recompute rebuilds doc.StepStatus from doc.History and returns the new map.
// globalBudgets supplies step budgets the document does not override. The
// function is deterministic for a fixed now so repeated calls are stable.
func Recompute(doc *model.Document, globalBudgets map[string]int, now time.Time) map[string]model.StepRecord {
	if doc == nil {
		return nil
	}
	scans := scanHistory(doc)

	previous := doc.StepStatus
	next := make(map[string]model.StepRecord, len(doc.StepSequence))
	for i, step := range doc.StepSequence {
		record, ok := previous[step]
		if !ok {
			record = model.NewStepRecord()
		}
		s := scans[step]

		record.Status = model.StatusNotStarted
		record.LastUpdateTime = nil
		record.LastUpdateUser = ""
		if s != nil {
			if s.status != "" {
				record.Status = s.status
			}
			if s.lastAt != nil {
				ts := *s.lastAt
				record.LastUpdateTime = &ts
			}
			record.LastUpdateUser = s.lastUser
		}

		record.AssignedBudgetMinutes = Budget(doc, globalBudgets, step)
		record.WorkedMinutes = workedMinutes(record.Status, startTime(doc, scans, i, now), s, now)
		record.IsOverdue = Overdue(record.AssignedBudgetMinutes, record.WorkedMinutes)
		next[step] = record
	}
	doc.StepStatus = next
	return next
}

// Budget resolves the time budget for step: the document override first,
// then the global value, else zero.
func Budget(doc *model.Document, globalBudgets map[string]int, step string) int {
	if doc != nil {
		if minutes, ok := doc.StepBudgets[step]; ok {
			return minutes
		}
	}
	return globalBudgets[step]
}

// Overdue reports whether worked time exceeds a positive budget.
func Overdue(budgetMinutes int, workedMinutes float64) bool {
	return budgetMinutes > 0 && workedMinutes > float64(budgetMinutes)
}

func scanHistory(doc *model.Document) map[string]*scan {
	ordered := slices.Clone(doc.History)
	slices.SortStableFunc(ordered, func(a, b model.HistoryEntry) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	scans := make(map[string]*scan, len(doc.StepSequence))
	for _, step := range doc.StepSequence {
		scans[step] = nil
	}
	for _, entry := range ordered {
		if _, tracked := scans[entry.Step]; !tracked {
			continue
		}
		s := scans[entry.Step]
		if s == nil {
			s = &scan{}
			scans[entry.Step] = s
		}
		ts := entry.Timestamp
		if s.firstAt == nil {
			s.firstAt = &ts
		}
		switch {
		case !entry.HasArtifact() && entry.DeclaredStatus.IsCompleted():
			s.status = model.StatusCompleted
			s.completedAt = &ts
		case entry.HasArtifact():
			s.status = model.StatusInProgress
		case entry.DeclaredStatus != "":
			s.status = entry.DeclaredStatus
		}
		s.lastAt = &ts
		s.lastUser = entry.ActingUser
	}
	return scans
}

// startTime applies the sequence rule: the first step starts at its first
// entry; every later step starts when its predecessor completed, or now when
// the predecessor is still open.
func startTime(doc *model.Document, scans map[string]*scan, index int, now time.Time) *time.Time {
	if index == 0 {
		s := scans[doc.StepSequence[0]]
		if s == nil {
			return nil
		}
		return s.firstAt
	}
	prev := scans[doc.StepSequence[index-1]]
	if prev != nil && prev.status.IsCompleted() && prev.completedAt != nil {
		return prev.completedAt
	}
	current := now
	return &current
}

func workedMinutes(status model.Status, start *time.Time, s *scan, now time.Time) float64 {
	if start == nil {
		return 0
	}
	var end time.Time
	switch {
	case status.IsCompleted() && s != nil && s.completedAt != nil:
		end = *s.completedAt
	case status == model.StatusInProgress:
		end = now
	default:
		return 0
	}
	minutes := end.Sub(*start).Seconds() / 60
	if minutes < 0 {
		return 0
	}
	return minutes
}
