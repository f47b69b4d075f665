// Package daemon coordinates the long-running docflow process.
//
// It wires configuration, the engine, SQLite persistence and the workflow
// manager into a single lifecycle with flock-based locking to prevent
// multiple instances, and serves the optional HTTP API. Business rules stay
// in the engine; the daemon focuses on startup, shutdown, identity and
// transport.
package daemon
