// Package workflow runs the daemon's background loops.
//
// The Manager owns two goroutines: the notification scanner, which refreshes
// derived step times and reconciles alerts on a fixed interval, and the
// autosave loop, which flushes the engine snapshot to the store when it is
// dirty and optionally takes a backup after each save. Both loops sleep in a
// select on the context so Stop returns promptly; Stop then performs a final
// flush.
//
// Status exposes the last reconcile outcome, save time and error for the
// daemon's status endpoints.
package workflow
