// Package pipeline selects a document's current step from its computed step
// statuses.
package pipeline

import "docflow/internal/model"

// CurrentStep returns the first step whose status is not Completed, the last
// step when every step is Completed, or "" for an empty sequence.
func CurrentStep(doc *model.Document) string {
	if doc == nil || len(doc.StepSequence) == 0 {
		return ""
	}
	for _, step := range doc.StepSequence {
		if !doc.StepStatus[step].Status.IsCompleted() {
			return step
		}
	}
	return doc.StepSequence[len(doc.StepSequence)-1]
}

// Advance moves doc.CurrentStep to CurrentStep(doc) and reports whether it
// changed. Statuses must already be recomputed.
func Advance(doc *model.Document) bool {
	if doc == nil {
		return false
	}
	next := CurrentStep(doc)
	if next == doc.CurrentStep {
		return false
	}
	doc.CurrentStep = next
	return true
}
