// Package ipc exposes the daemon over JSON-RPC on a Unix domain socket and
// ships the matching client used by the CLI.
//
// It owns socket lifecycle management and the request/response DTOs. Most
// payloads reuse the api package types so the HTTP and socket surfaces stay
// identical. Requests that act on behalf of someone carry a User field; the
// socket is local and trusted, so the name is taken as given.
//
// Reuse these types when adding new RPC endpoints to keep the protocol
// stable for existing command implementations.
package ipc
