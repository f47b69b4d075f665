package model

import (
	"slices"
	"time"
)

// User is an account that may act on steps.
type User struct {
	Username     string   `json:"username"`
	IsAdmin      bool     `json:"is_admin"`
	GlobalRoles  []string `json:"roles"`
	CustomSteps  []string `json:"custom_steps"`
	PasswordHash string   `json:"-"`
}

// AuthorizedSteps returns GlobalRoles ∪ CustomSteps as a set.
func (u *User) AuthorizedSteps() map[string]struct{} {
	if u == nil {
		return nil
	}
	steps := make(map[string]struct{}, len(u.GlobalRoles)+len(u.CustomSteps))
	for _, step := range u.GlobalRoles {
		steps[step] = struct{}{}
	}
	for _, step := range u.CustomSteps {
		steps[step] = struct{}{}
	}
	return steps
}

// Clone returns a deep copy of the user.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	out := *u
	out.GlobalRoles = slices.Clone(u.GlobalRoles)
	out.CustomSteps = slices.Clone(u.CustomSteps)
	return &out
}

// NotificationType distinguishes the alerts reconciliation owns from others.
type NotificationType string

const (
	NotificationFileAssigned NotificationType = "file_assigned"
	NotificationOther        NotificationType = "other"
)

// Notification is a per-user alert.
type Notification struct {
	ID        string           `json:"id"`
	Owner     string           `json:"owner"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	FileID    string           `json:"file_id"`
	Step      string           `json:"step"`
	CreatedAt time.Time        `json:"created_at"`
	Read      bool             `json:"read"`
}

// Snapshot is the complete persisted state.
type Snapshot struct {
	Users         []User
	Documents     []Document
	StepDefaults  []string
	Assignments   map[string][]string
	Budgets       map[string]int
	Notifications []Notification
}

// DefaultAssignments assigns every step to a single user.
func DefaultAssignments(steps []string, username string) map[string][]string {
	out := make(map[string][]string, len(steps))
	for _, step := range steps {
		out[step] = []string{username}
	}
	return out
}
