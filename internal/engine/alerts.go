package engine

import (
	"sort"

	"docflow/internal/model"
)

// Notifications returns owner's alerts, newest first.
func (e *Engine) Notifications(owner string) []model.Notification {
	owner = model.NormalizeName(owner)
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]model.Notification, 0)
	for _, n := range e.notifications {
		if n.Owner == owner {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// UnreadCount returns the number of unread alerts for owner.
func (e *Engine) UnreadCount(owner string) int {
	owner = model.NormalizeName(owner)
	e.mu.Lock()
	defer e.mu.Unlock()

	count := 0
	for _, n := range e.notifications {
		if n.Owner == owner && !n.Read {
			count++
		}
	}
	return count
}

// MarkRead flags one of owner's alerts as read.
func (e *Engine) MarkRead(owner, id string) error {
	owner = model.NormalizeName(owner)
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.notifications {
		n := &e.notifications[i]
		if n.ID != id || n.Owner != owner {
			continue
		}
		if !n.Read {
			n.Read = true
			e.persist.MarkDirty()
		}
		return nil
	}
	return notFound("mark read", "notification %q", id)
}

// MarkAllRead flags every alert of owner as read and returns how many changed.
func (e *Engine) MarkAllRead(owner string) int {
	owner = model.NormalizeName(owner)
	e.mu.Lock()
	defer e.mu.Unlock()

	changed := 0
	for i := range e.notifications {
		n := &e.notifications[i]
		if n.Owner == owner && !n.Read {
			n.Read = true
			changed++
		}
	}
	if changed > 0 {
		e.persist.MarkDirty()
	}
	return changed
}
