// Package persist stores docflow snapshots in SQLite.
//
// The engine never touches disk. It flags the Store dirty; the autosave loop
// calls Flush, which snapshots the engine and replaces every table inside one
// transaction. A fresh database yields the default pipeline and bootstrap
// admin so the daemon can start with no prior state.
//
// Backups are verified byte copies of the database taken after a WAL
// checkpoint, stored in timestamped folders with count based retention.
package persist
