// Package api defines wire-format types and converters for the IPC and HTTP
// API layer. It translates internal documents, users and notifications into
// transport-friendly DTOs so the CLI and other consumers never couple to
// engine types.
//
// # Key Types
//
// Document: a file with its step sequence, per-step status rows and history.
//
// Notification: an alert with read state, plus NotificationList carrying the
// unread count.
//
// DaemonStatus: daemon runtime, workflow loop state and engine counters.
//
// # Converters
//
// FromDocument: model.Document -> Document, with steps emitted in sequence
// order so clients never sort map keys.
//
// FromStatusSummary: workflow.StatusSummary -> WorkflowStatus.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Timestamps use RFC3339 with milliseconds.
// Password hashes never leave the engine.
package api
