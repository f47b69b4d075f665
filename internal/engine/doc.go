// Package engine owns the authoritative in-memory state: documents, users,
// global step defaults and notifications.
//
// Every mutation runs under a single mutex and follows the same path: apply
// the change, recompute step statuses, advance current steps, then reconcile
// notifications. Disk I/O never happens under the lock; the engine only
// flags its Persistence collaborator as dirty and leaves saving to the
// autosave loop. Push publishing for newly created alerts happens after the
// lock is released.
//
// Reads return deep copies so callers never share containers with the
// engine. Failures are *Error values classified by the ErrNotFound,
// ErrInvalidTransition, ErrUnauthorized and ErrValidation sentinels.
package engine
