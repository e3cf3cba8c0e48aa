// Package ipc exposes the daemon over JSON-RPC Unix sockets and ships the
// matching client used by the CLI.
//
// It owns socket lifecycle management and the request/response DTOs. Times
// cross the wire as RFC 3339 strings so CLI output does not depend on the
// daemon's time zone.
package ipc
