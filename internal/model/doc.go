// Package model defines the data contracts shared by every docflow package:
// documents and their append-only history, per-step status records, users,
// notifications, and the snapshot exchanged with persistence.
//
// Types here carry no behavior beyond normalization and copying. Status
// derivation lives in stepstatus, advancement in pipeline, and the
// authorization rule in authz. Legacy persisted shapes are converted to the
// structured form at this boundary so business logic never branches on them.
package model
