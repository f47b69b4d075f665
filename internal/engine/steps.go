package engine

import (
	"context"
	"slices"

	"docflow/internal/model"
)

// SetStepAssignment replaces the set of users authorized for step on one
// document, or in the global defaults when docID is empty. An empty users
// list is an explicit "no one".
func (e *Engine) SetStepAssignment(ctx context.Context, docID, step string, users []string) error {
	const op = "set step assignment"
	step = model.NormalizeName(step)
	if step == "" {
		return validation(op, "step name is required")
	}
	names := model.SortedUnique(users)
	return e.mutate(ctx, func() ([]*model.Document, error) {
		for _, name := range names {
			if _, ok := e.users[name]; !ok {
				return nil, notFound(op, "user %q", name)
			}
		}
		if docID == "" {
			if !containsStep(e.steps, step) {
				return nil, notFound(op, "default step %q", step)
			}
			e.assignments[step] = names
			return nil, nil
		}
		doc, err := e.docLocked(op, docID)
		if err != nil {
			return nil, err
		}
		if !doc.HasStep(step) {
			return nil, notFound(op, "step %q on document %q", step, docID)
		}
		doc.StepAssignments[step] = names
		return []*model.Document{doc}, nil
	})
}

// ClearStepAssignment removes the explicit assignment for step so
// authorization falls back to global roles.
func (e *Engine) ClearStepAssignment(ctx context.Context, docID, step string) error {
	const op = "clear step assignment"
	step = model.NormalizeName(step)
	return e.mutate(ctx, func() ([]*model.Document, error) {
		if docID == "" {
			if !containsStep(e.steps, step) {
				return nil, notFound(op, "default step %q", step)
			}
			delete(e.assignments, step)
			return nil, nil
		}
		doc, err := e.docLocked(op, docID)
		if err != nil {
			return nil, err
		}
		if !doc.HasStep(step) {
			return nil, notFound(op, "step %q on document %q", step, docID)
		}
		delete(doc.StepAssignments, step)
		return []*model.Document{doc}, nil
	})
}

// AddStep inserts name at position in a document's sequence, or in the
// global defaults when docID is empty. A position outside the sequence
// appends.
func (e *Engine) AddStep(ctx context.Context, docID, name string, position int) error {
	const op = "add step"
	name = model.NormalizeName(name)
	if name == "" {
		return validation(op, "step name is required")
	}
	return e.mutate(ctx, func() ([]*model.Document, error) {
		if docID == "" {
			if containsStep(e.steps, name) {
				return nil, invalidTransition(op, "default step %q already exists", name)
			}
			e.steps = insertAt(e.steps, name, position)
			return nil, nil
		}
		doc, err := e.docLocked(op, docID)
		if err != nil {
			return nil, err
		}
		if doc.HasStep(name) {
			return nil, invalidTransition(op, "step %q already exists on document %q", name, docID)
		}
		doc.StepSequence = insertAt(doc.StepSequence, name, position)
		doc.StepStatus[name] = model.NewStepRecord()
		return []*model.Document{doc}, nil
	})
}

// RemoveStep deletes a step. On a document the current step and steps with
// recorded history cannot be removed.
func (e *Engine) RemoveStep(ctx context.Context, docID, name string) error {
	const op = "remove step"
	name = model.NormalizeName(name)
	return e.mutate(ctx, func() ([]*model.Document, error) {
		if docID == "" {
			if !containsStep(e.steps, name) {
				return nil, notFound(op, "default step %q", name)
			}
			e.steps = slices.DeleteFunc(e.steps, func(s string) bool { return s == name })
			delete(e.assignments, name)
			delete(e.budgets, name)
			return nil, nil
		}
		doc, err := e.docLocked(op, docID)
		if err != nil {
			return nil, err
		}
		if !doc.HasStep(name) {
			return nil, notFound(op, "step %q on document %q", name, docID)
		}
		if doc.CurrentStep == name {
			return nil, invalidTransition(op, "step %q is the current step", name)
		}
		if doc.HistoryFor(name) {
			return nil, invalidTransition(op, "step %q has recorded history", name)
		}
		doc.StepSequence = slices.DeleteFunc(doc.StepSequence, func(s string) bool { return s == name })
		delete(doc.StepStatus, name)
		delete(doc.StepAssignments, name)
		delete(doc.StepBudgets, name)
		return []*model.Document{doc}, nil
	})
}

// RenameStep renames a step and rewrites every reference to it. Renaming a
// global default also renames it in user roles and custom steps and in every
// existing document that still carries the old name, so users reaching the
// step through their roles keep access. Documents that already have a step
// with the new name are left unchanged.
func (e *Engine) RenameStep(ctx context.Context, docID, oldName, newName string) error {
	const op = "rename step"
	oldName = model.NormalizeName(oldName)
	newName = model.NormalizeName(newName)
	if newName == "" {
		return validation(op, "new step name is required")
	}
	return e.mutate(ctx, func() ([]*model.Document, error) {
		if docID == "" {
			if !containsStep(e.steps, oldName) {
				return nil, notFound(op, "default step %q", oldName)
			}
			if oldName == newName {
				return nil, nil
			}
			if containsStep(e.steps, newName) {
				return nil, invalidTransition(op, "default step %q already exists", newName)
			}
			replaceName(e.steps, oldName, newName)
			renameKey(e.assignments, oldName, newName)
			renameKey(e.budgets, oldName, newName)
			for _, user := range e.users {
				replaceName(user.GlobalRoles, oldName, newName)
				replaceName(user.CustomSteps, oldName, newName)
				user.GlobalRoles = model.SortedUnique(user.GlobalRoles)
				user.CustomSteps = model.SortedUnique(user.CustomSteps)
			}
			var touched []*model.Document
			for _, doc := range e.docs {
				if doc.HasStep(oldName) && !doc.HasStep(newName) {
					renameInDocument(doc, oldName, newName)
					touched = append(touched, doc)
				}
			}
			return touched, nil
		}
		doc, err := e.docLocked(op, docID)
		if err != nil {
			return nil, err
		}
		if !doc.HasStep(oldName) {
			return nil, notFound(op, "step %q on document %q", oldName, docID)
		}
		if oldName == newName {
			return nil, nil
		}
		if doc.HasStep(newName) {
			return nil, invalidTransition(op, "step %q already exists on document %q", newName, docID)
		}
		renameInDocument(doc, oldName, newName)
		return []*model.Document{doc}, nil
	})
}

func renameInDocument(doc *model.Document, oldName, newName string) {
	replaceName(doc.StepSequence, oldName, newName)
	for i := range doc.History {
		if doc.History[i].Step == oldName {
			doc.History[i].Step = newName
		}
	}
	renameKey(doc.StepStatus, oldName, newName)
	renameKey(doc.StepAssignments, oldName, newName)
	renameKey(doc.StepBudgets, oldName, newName)
	if doc.CurrentStep == oldName {
		doc.CurrentStep = newName
	}
}

// ReorderSteps replaces the sequence with order, which must be a permutation
// of the existing steps.
func (e *Engine) ReorderSteps(ctx context.Context, docID string, order []string) error {
	const op = "reorder steps"
	normalized := make([]string, len(order))
	for i, name := range order {
		normalized[i] = model.NormalizeName(name)
	}
	return e.mutate(ctx, func() ([]*model.Document, error) {
		if docID == "" {
			if !isPermutation(e.steps, normalized) {
				return nil, validation(op, "order %v is not a permutation of %v", normalized, e.steps)
			}
			e.steps = normalized
			return nil, nil
		}
		doc, err := e.docLocked(op, docID)
		if err != nil {
			return nil, err
		}
		if !isPermutation(doc.StepSequence, normalized) {
			return nil, validation(op, "order %v is not a permutation of %v", normalized, doc.StepSequence)
		}
		doc.StepSequence = normalized
		return []*model.Document{doc}, nil
	})
}

// DefaultSteps returns the global default sequence.
func (e *Engine) DefaultSteps() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.steps)
}

func containsStep(steps []string, name string) bool {
	return slices.Contains(steps, name)
}

func insertAt(steps []string, name string, position int) []string {
	if position < 0 || position >= len(steps) {
		return append(steps, name)
	}
	return slices.Insert(steps, position, name)
}

func replaceName(names []string, oldName, newName string) {
	for i, name := range names {
		if name == oldName {
			names[i] = newName
		}
	}
}

func renameKey[V any](m map[string]V, oldName, newName string) {
	value, ok := m[oldName]
	if !ok {
		return
	}
	delete(m, oldName)
	m[newName] = value
}

func isPermutation(current, order []string) bool {
	if len(current) != len(order) {
		return false
	}
	seen := make(map[string]struct{}, len(order))
	for _, name := range order {
		if _, dup := seen[name]; dup {
			return false
		}
		seen[name] = struct{}{}
	}
	for _, name := range current {
		if _, ok := seen[name]; !ok {
			return false
		}
	}
	return true
}
