// Package main hosts the dumpwatch CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into IPC calls
// against the daemon, dedup maintenance, and configuration scaffolding. Dedup
// commands fall back to the SQLite store directly when no daemon answers, so
// an operator can prune the store without starting the watcher.
package main
