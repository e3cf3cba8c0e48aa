// Package daemon coordinates the long-running dumpwatch process.
//
// It wires configuration, the dedup store, the notification transport, and
// the watch controller into a single lifecycle guarded by a flock lock file so
// only one instance watches a state directory. The daemon drains controller
// events into the log, optionally nudges the controller from filesystem
// events, and exposes the operator actions (start, stop, check, reload, dedup
// maintenance, test notifications) that the IPC server forwards.
//
// Keep orchestration here: scanning, dispatch, and archiving belong to their
// own packages while the daemon focuses on startup, shutdown, and wiring.
package daemon
