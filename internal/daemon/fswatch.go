package daemon

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"dumpwatch/internal/artifact"
	"dumpwatch/internal/logging"
)

// watchFilesystem nudges the controller when a matching file appears in dir.
// Polling stays authoritative; a watcher failure only loses the nudge.
func (d *Daemon) watchFilesystem(ctx context.Context, dir, suffix string) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.WarnWithContext(d.logger, "filesystem events unavailable; polling only", "fs_events_unavailable",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "raise the inotify watch limit or disable watch.fs_events"),
		)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		logging.WarnWithContext(d.logger, "cannot watch directory for events; polling only", "fs_events_unavailable",
			logging.String("watch_dir", dir),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check watch_dir exists, then restart the daemon"),
		)
		return
	}
	d.logger.Debug("filesystem events enabled",
		logging.String("watch_dir", dir),
		logging.Duration("debounce", d.debounce),
	)

	matcher := artifact.NewScanner(nil, suffix)
	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			// Renames report the old name; archiving moves files out that way.
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !matcher.Matches(filepath.Base(event.Name)) {
				continue
			}
			debounce.Reset(d.debounce)
		case <-debounce.C:
			if d.controller.Trigger() {
				d.logger.Debug("filesystem change triggered a check",
					logging.String(logging.FieldEventType, "fs_event_trigger"),
				)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			d.logger.Warn("filesystem watcher error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "fs_events_error"),
				logging.String(logging.FieldImpact, "new dumps are still found by polling"),
			)
		}
	}
}
