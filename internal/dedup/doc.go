// Package dedup persists the names of dump artifacts that have already been
// notified.
//
// The store is a durable key set in SQLite. Writes run with synchronous=FULL
// so a successful Put survives a crash that happens immediately afterwards;
// the watch controller relies on this to archive a file without notifying
// twice. Only the controller goroutine writes while the daemon runs; the
// operator commands go through the daemon's IPC surface.
package dedup
