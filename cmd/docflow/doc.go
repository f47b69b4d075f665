// Package main hosts the docflow CLI.
//
// The Cobra command tree translates terminal invocations into IPC calls
// against the daemon: document uploads and status changes, step
// configuration, user administration, notifications and maintenance. Config
// resolution, socket discovery and output rendering live here so commands
// stay small. Add behavior to the internal packages first and surface it
// through a command afterwards.
package main
