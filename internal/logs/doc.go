// Package logs reads the daemon log for `dumpwatch logs`.
//
// Last returns the trailing lines of a log with bounded memory, and Follow
// streams lines appended afterwards. Follow is driven by fsnotify with a slow
// poll as a backstop, and only emits complete lines so a half-written record
// is never split across two callbacks.
package logs
