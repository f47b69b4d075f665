package engine

import (
	"context"
	"slices"

	"golang.org/x/crypto/bcrypt"

	"docflow/internal/model"
)

// HashPassword returns the bcrypt hash stored for a user password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// UpsertUser creates or replaces a user. A non-empty password is hashed; an
// empty one keeps the existing hash. The user's global roles are mirrored
// into the global assignment table so new documents pick them up.
func (e *Engine) UpsertUser(ctx context.Context, user model.User, password string) (*model.User, error) {
	const op = "upsert user"
	user.Username = model.NormalizeName(user.Username)
	if user.Username == "" {
		return nil, validation(op, "username is required")
	}
	user.GlobalRoles = model.SortedUnique(user.GlobalRoles)
	user.CustomSteps = model.SortedUnique(user.CustomSteps)
	user.PasswordHash = ""
	if password != "" {
		hash, err := HashPassword(password)
		if err != nil {
			return nil, validation(op, "hash password: %v", err)
		}
		user.PasswordHash = hash
	}

	err := e.mutate(ctx, func() ([]*model.Document, error) {
		existing, ok := e.users[user.Username]
		if ok && user.PasswordHash == "" {
			user.PasswordHash = existing.PasswordHash
		}
		if ok && existing.IsAdmin && !user.IsAdmin && e.adminCountLocked() == 1 {
			return nil, invalidTransition(op, "cannot demote the last admin %q", user.Username)
		}
		e.users[user.Username] = user.Clone()
		e.syncAssignmentsLocked(user.Username, user.GlobalRoles)
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return e.User(user.Username)
}

// SetUserRoles replaces a user's global roles and custom steps and updates
// the global assignment table to match.
func (e *Engine) SetUserRoles(ctx context.Context, username string, roles, customSteps []string) error {
	const op = "set user roles"
	return e.mutate(ctx, func() ([]*model.Document, error) {
		user, err := e.userLocked(op, username)
		if err != nil {
			return nil, err
		}
		user.GlobalRoles = model.SortedUnique(roles)
		user.CustomSteps = model.SortedUnique(customSteps)
		e.syncAssignmentsLocked(user.Username, user.GlobalRoles)
		return nil, nil
	})
}

// DeleteUser removes a user and drops it from every assignment set. The last
// admin cannot be deleted.
func (e *Engine) DeleteUser(ctx context.Context, username string) error {
	const op = "delete user"
	return e.mutate(ctx, func() ([]*model.Document, error) {
		user, err := e.userLocked(op, username)
		if err != nil {
			return nil, err
		}
		if user.IsAdmin && e.adminCountLocked() == 1 {
			return nil, invalidTransition(op, "cannot delete the last admin %q", user.Username)
		}
		delete(e.users, user.Username)
		e.syncAssignmentsLocked(user.Username, nil)
		touched := make([]*model.Document, 0, len(e.docs))
		for _, doc := range e.docs {
			if dropUser(doc.StepAssignments, user.Username) {
				touched = append(touched, doc)
			}
		}
		return touched, nil
	})
}

// User returns a copy of one user.
func (e *Engine) User(username string) (*model.User, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	user, err := e.userLocked("get user", username)
	if err != nil {
		return nil, err
	}
	return user.Clone(), nil
}

// Users returns copies of every user ordered by name.
func (e *Engine) Users() []model.User {
	e.mu.Lock()
	defer e.mu.Unlock()
	users := e.allUsersLocked()
	out := make([]model.User, len(users))
	for i, user := range users {
		out[i] = *user.Clone()
	}
	return out
}

// Authenticate checks a password against the stored hash.
func (e *Engine) Authenticate(username, password string) (*model.User, error) {
	const op = "authenticate"
	user, err := e.User(username)
	if err != nil || user.PasswordHash == "" {
		return nil, unauthorized(op, "invalid credentials")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, unauthorized(op, "invalid credentials")
	}
	return user, nil
}

// syncAssignmentsLocked adds username to the global assignment of every
// default step in roles and removes it from the others. Steps without a
// global entry keep deferring to roles and are left alone.
func (e *Engine) syncAssignmentsLocked(username string, roles []string) {
	for _, step := range e.steps {
		users, ok := e.assignments[step]
		if !ok {
			continue
		}
		has := slices.Contains(users, username)
		switch want := slices.Contains(roles, step); {
		case want && !has:
			e.assignments[step] = model.SortedUnique(append(slices.Clone(users), username))
		case !want && has:
			e.assignments[step] = slices.DeleteFunc(slices.Clone(users), func(name string) bool { return name == username })
		}
	}
}

func dropUser(assignments map[string][]string, username string) bool {
	dropped := false
	for step, users := range assignments {
		if slices.Contains(users, username) {
			assignments[step] = slices.DeleteFunc(slices.Clone(users), func(name string) bool { return name == username })
			dropped = true
		}
	}
	return dropped
}

func (e *Engine) adminCountLocked() int {
	count := 0
	for _, user := range e.users {
		if user.IsAdmin {
			count++
		}
	}
	return count
}
