// Package logging assembles structured slog loggers and the field helpers
// used across docflow.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context helpers so HTTP and IPC handlers can tag log
// lines with a correlation ID. A no-op logger is provided for tests and for
// wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so every component
// emits records with the same keys.
package logging
