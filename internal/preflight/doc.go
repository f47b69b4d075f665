// Package preflight provides readiness checks for the filesystem paths and
// external services docflow depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunAll at startup and logs every failure with a hint.
//   - The CLI "docflow status" command renders the same results.
//
// Each check is gated by its config toggle; disabled features are skipped.
package preflight
