package notifications

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"docflow/internal/model"
)

// Key identifies the file/step pair a file_assigned alert covers.
type Key struct {
	FileID string
	Step   string
}

// UserFailure records a user whose alerts could not be reconciled.
type UserFailure struct {
	Username string
	Err      error
}

// Result is the outcome of one reconciliation pass. Notifications is the full
// alert list after the pass, ready to replace the previous one.
type Result struct {
	Created       []model.Notification
	Removed       []model.Notification
	Failed        []UserFailure
	Notifications []model.Notification
}

// Changed reports whether the pass created or removed anything.
func (r Result) Changed() bool {
	return len(r.Created) > 0 || len(r.Removed) > 0
}

// Input bundles the state a pass reads.
type Input struct {
	Users     []*model.User
	Documents []*model.Document
	Existing  []model.Notification
	NewID     func() string
	Now       time.Time
}

var errInvalidUser = errors.New("user record has no username")

// Reconcile computes, for every user, the file/step pairs they should be
// alerted about and diffs them against their existing file_assigned alerts.
// Running it twice on unchanged input yields no creates or removes.
func Reconcile(in Input) Result {
	byOwner := make(map[string][]model.Notification)
	for _, n := range in.Existing {
		byOwner[n.Owner] = append(byOwner[n.Owner], n)
	}

	docs := slices.Clone(in.Documents)
	sort.SliceStable(docs, func(i, j int) bool {
		a, b := docs[i], docs[j]
		if a == nil || b == nil {
			return b == nil && a != nil
		}
		if !a.CreationTime.Equal(b.CreationTime) {
			return a.CreationTime.Before(b.CreationTime)
		}
		return a.ID < b.ID
	})

	var result Result
	known := make(map[string]struct{}, len(in.Users))
	owners := make([]string, 0, len(in.Users))
	users := make(map[string]*model.User, len(in.Users))
	for _, user := range in.Users {
		if user == nil || strings.TrimSpace(user.Username) == "" {
			result.Failed = append(result.Failed, UserFailure{Err: errInvalidUser})
			continue
		}
		if _, dup := users[user.Username]; dup {
			continue
		}
		users[user.Username] = user
		owners = append(owners, user.Username)
		known[user.Username] = struct{}{}
	}
	sort.Strings(owners)

	for _, owner := range owners {
		existing := byOwner[owner]
		kept, created, removed, err := reconcileUser(users[owner], docs, existing, in.NewID, in.Now)
		if err != nil {
			result.Failed = append(result.Failed, UserFailure{Username: owner, Err: err})
			result.Notifications = append(result.Notifications, existing...)
			continue
		}
		result.Created = append(result.Created, created...)
		result.Removed = append(result.Removed, removed...)
		result.Notifications = append(result.Notifications, kept...)
		result.Notifications = append(result.Notifications, created...)
	}

	// Alerts of deleted users: drop the ones this pass owns, keep the rest.
	orphans := make([]string, 0)
	for owner := range byOwner {
		if _, ok := known[owner]; !ok {
			orphans = append(orphans, owner)
		}
	}
	sort.Strings(orphans)
	for _, owner := range orphans {
		for _, n := range byOwner[owner] {
			if n.Type == model.NotificationFileAssigned {
				result.Removed = append(result.Removed, n)
				continue
			}
			result.Notifications = append(result.Notifications, n)
		}
	}
	return result
}

func reconcileUser(user *model.User, docs []*model.Document, existing []model.Notification, newID func() string, now time.Time) (kept, created, removed []model.Notification, err error) {
	defer func() {
		if r := recover(); r != nil {
			kept, created, removed = nil, nil, nil
			err = fmt.Errorf("reconcile %s: %v", user.Username, r)
		}
	}()

	targets := Targets(user, docs)

	seen := make(map[Key]struct{}, len(existing))
	for _, n := range existing {
		if n.Type != model.NotificationFileAssigned {
			kept = append(kept, n)
			continue
		}
		key := Key{FileID: n.FileID, Step: n.Step}
		if _, want := targets[key]; !want {
			removed = append(removed, n)
			continue
		}
		if _, dup := seen[key]; dup {
			removed = append(removed, n)
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, n)
	}

	for _, doc := range docs {
		if doc == nil {
			continue
		}
		key := Key{FileID: doc.ID, Step: doc.CurrentStep}
		if _, want := targets[key]; !want {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		created = append(created, newAssigned(user.Username, doc, newID, now))
	}
	return kept, created, removed, nil
}

// Targets returns the file/step pairs user should currently be alerted
// about: documents whose current step is in the user's roles or custom steps
// and, when the document assigns that step explicitly, lists the user.
func Targets(user *model.User, docs []*model.Document) map[Key]struct{} {
	authorized := user.AuthorizedSteps()
	targets := make(map[Key]struct{})
	for _, doc := range docs {
		if doc == nil || doc.CurrentStep == "" {
			continue
		}
		if _, ok := authorized[doc.CurrentStep]; !ok {
			continue
		}
		if assigned, explicit := doc.Assignment(doc.CurrentStep); explicit && !slices.Contains(assigned, user.Username) {
			continue
		}
		targets[Key{FileID: doc.ID, Step: doc.CurrentStep}] = struct{}{}
	}
	return targets
}

func newAssigned(owner string, doc *model.Document, newID func() string, now time.Time) model.Notification {
	name := doc.OriginalFilename
	if name == "" {
		name = doc.ID
	}
	id := ""
	if newID != nil {
		id = newID()
	}
	return model.Notification{
		ID:        id,
		Owner:     owner,
		Type:      model.NotificationFileAssigned,
		Title:     "File waiting in " + doc.CurrentStep,
		Message:   fmt.Sprintf("File %q is waiting for your action in step %q", name, doc.CurrentStep),
		FileID:    doc.ID,
		Step:      doc.CurrentStep,
		CreatedAt: now,
	}
}
