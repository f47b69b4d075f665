// Package authz decides whether a user may record progress in a step.
package authz

import (
	"slices"

	"docflow/internal/model"
)

// IsAuthorized applies, in order: admins are always allowed; an explicit
// document assignment set for step is authoritative, even when empty;
// otherwise the user's global roles and custom steps decide. doc may be nil.
func IsAuthorized(user *model.User, step string, doc *model.Document) bool {
	if user == nil {
		return false
	}
	if user.IsAdmin {
		return true
	}
	if doc != nil {
		if assigned, explicit := doc.Assignment(step); explicit {
			return slices.Contains(assigned, user.Username)
		}
	}
	return HasRole(user, step)
}

// HasRole reports whether step is in the user's global roles or custom steps.
func HasRole(user *model.User, step string) bool {
	if user == nil {
		return false
	}
	return slices.Contains(user.GlobalRoles, step) || slices.Contains(user.CustomSteps, step)
}
