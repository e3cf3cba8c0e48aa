// Package archive moves notified dump files out of the watched directory and
// keeps the dedup store aligned with what is on disk.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dumpwatch/internal/artifact"
	"dumpwatch/internal/fileutil"
	"dumpwatch/internal/logging"
)

// KeyStore is the durable name set the archiver records into.
type KeyStore interface {
	Put(ctx context.Context, name string) error
	Remove(ctx context.Context, name string) error
	AllKeys(ctx context.Context) (map[string]struct{}, error)
}

// FileMover relocates src into destDir and returns the final path.
type FileMover interface {
	Move(src, destDir string) (string, error)
}

// OSMover moves files on the local filesystem. Existing names in the
// destination get a timestamp suffix instead of being overwritten.
type OSMover struct {
	Now func() time.Time
}

func (m OSMover) Move(src, destDir string) (string, error) {
	info, err := os.Stat(destDir)
	if err != nil {
		return "", fmt.Errorf("archive directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("archive directory %s is not a directory", destDir)
	}
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	dst, err := fileutil.AvailablePath(destDir, filepath.Base(src), now())
	if err != nil {
		return "", err
	}
	if err := fileutil.MoveFile(src, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// Op names the step that failed for an artifact.
type Op string

const (
	OpRecord Op = "record"
	OpMove   Op = "move"
)

// ArchiveError reports a single artifact that could not be archived. A move
// failure never rolls back the dedup entry.
type ArchiveError struct {
	Name string
	Op   Op
	Err  error
}

func (e ArchiveError) Error() string {
	return fmt.Sprintf("archive %s: %s: %v", e.Name, e.Op, e.Err)
}

func (e ArchiveError) Unwrap() error { return e.Err }

// Archiver records notified artifacts and moves them out of the watch
// directory.
type Archiver struct {
	store  KeyStore
	mover  FileMover
	logger *slog.Logger
}

// New builds an archiver. A nil mover uses OSMover.
func New(store KeyStore, mover FileMover, logger *slog.Logger) *Archiver {
	if mover == nil {
		mover = OSMover{}
	}
	return &Archiver{store: store, mover: mover, logger: logging.NewComponentLogger(logger, "archive")}
}

// Archive records each artifact in the dedup store and then moves it into
// archiveDir. A failed record skips the move so the file is offered again
// rather than silently dropped.
func (a *Archiver) Archive(ctx context.Context, artifacts []artifact.Artifact, archiveDir string) []ArchiveError {
	logger := logging.WithContext(ctx, a.logger)
	var failures []ArchiveError
	for _, item := range artifacts {
		if err := a.store.Put(ctx, item.Name); err != nil {
			failures = append(failures, ArchiveError{Name: item.Name, Op: OpRecord, Err: err})
			logging.ErrorWithContext(logger, "dedup record failed; dump left unarchived", "dedup_record_failed",
				logging.String(logging.FieldArtifact, item.Name),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the state directory is writable"),
			)
			continue
		}
		if failure := a.move(ctx, item, archiveDir); failure != nil {
			failures = append(failures, *failure)
		}
	}
	return failures
}

// Reconcile moves live artifacts that are already recorded as notified. This
// finishes archives interrupted by a crash and retries earlier move failures
// without notifying again.
func (a *Archiver) Reconcile(ctx context.Context, artifacts []artifact.Artifact, archiveDir string) ([]string, []ArchiveError) {
	var (
		moved    []string
		failures []ArchiveError
	)
	for _, item := range artifacts {
		if failure := a.move(ctx, item, archiveDir); failure != nil {
			failures = append(failures, *failure)
			continue
		}
		moved = append(moved, item.Name)
	}
	return moved, failures
}

func (a *Archiver) move(ctx context.Context, item artifact.Artifact, archiveDir string) *ArchiveError {
	logger := logging.WithContext(ctx, a.logger)
	dst, err := a.mover.Move(item.Path, archiveDir)
	if err != nil {
		logging.WarnWithContext(logger, "archive move failed; dump stays in watch directory", "archive_failed",
			logging.String(logging.FieldArtifact, item.Name),
			logging.String("archive_dir", archiveDir),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check archive_dir exists and is writable"),
			logging.String(logging.FieldImpact, "dump will not be notified again; move is retried next cycle"),
		)
		return &ArchiveError{Name: item.Name, Op: OpMove, Err: err}
	}
	logger.Info("dump archived",
		logging.String(logging.FieldArtifact, item.Name),
		logging.String("destination", dst),
		logging.String(logging.FieldEventType, "dump_archived"),
	)
	return nil
}

// Compact removes dedup entries whose names are absent from live and returns
// the removed names.
func (a *Archiver) Compact(ctx context.Context, live []artifact.Artifact) ([]string, error) {
	keys, err := a.store.AllKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("compact dedup store: %w", err)
	}
	present := make(map[string]struct{}, len(live))
	for _, item := range live {
		present[item.Name] = struct{}{}
	}
	var removed []string
	for name := range keys {
		if _, ok := present[name]; ok {
			continue
		}
		if err := a.store.Remove(ctx, name); err != nil {
			return removed, fmt.Errorf("compact dedup store: %w", err)
		}
		removed = append(removed, name)
	}
	if len(removed) > 0 {
		logging.WithContext(ctx, a.logger).Debug("dedup entries compacted",
			logging.Int("removed", len(removed)),
			logging.String(logging.FieldEventType, "dedup_compacted"),
		)
	}
	return removed, nil
}
