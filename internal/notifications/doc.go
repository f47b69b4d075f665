// Package notifications keeps per-user "file needs your action" alerts in
// line with the live current step and assignment table of every document.
//
// Reconcile is a pure diff: given users, documents and the existing alerts it
// returns the alerts to keep, create and remove. It only ever touches alerts
// of type file_assigned and isolates failures to the user that caused them.
// The engine runs it under its lock, both on the background interval and
// eagerly after mutations.
//
// Publisher pushes newly created alerts to an ntfy topic when one is
// configured and is a no-op otherwise.
package notifications
