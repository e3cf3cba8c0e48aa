// Package watch runs the scan, dedup, notify, and archive cycle.
//
// A Controller owns the poll timer and a single dispatch worker. Each cycle
// scans the watched directory, drops dedup entries for files that are gone,
// notifies about files not yet recorded, and on success records and archives
// them. At most one notification is in flight at any time; a send that
// outlives its cycle is collected by the next one. Configuration edits are
// handed over with Update and take effect at the start of the next cycle.
//
// The controller reports progress as typed Events on a buffered channel. It
// never blocks on a slow consumer; events that do not fit are dropped and
// counted in Status.
package watch
