package watch

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// State is the controller lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCycleInFlight
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCycleInFlight:
		return "cycle_in_flight"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Active reports whether the poll timer is armed.
func (s State) Active() bool {
	return s == StateRunning || s == StateCycleInFlight
}

var (
	// ErrAlreadyRunning is returned by Start while the timer is armed.
	ErrAlreadyRunning = errors.New("watch controller already running")
	// ErrNoRecipients means the recipient list is empty.
	ErrNoRecipients = errors.New("recipient list is empty")
	// ErrWatchDirMissing means the watched directory does not exist.
	ErrWatchDirMissing = errors.New("watch directory does not exist")
	// ErrWatchDirNotDir means the watched path is not a directory.
	ErrWatchDirNotDir = errors.New("watch path is not a directory")
)

// PreconditionError names the start precondition that was not met.
type PreconditionError struct {
	Check string
	Path  string
	Err   error
}

func (e *PreconditionError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("cannot start: %s: %s: %v", e.Check, e.Path, e.Err)
	}
	return fmt.Sprintf("cannot start: %s: %v", e.Check, e.Err)
}

func (e *PreconditionError) Unwrap() error { return e.Err }

func checkPreconditions(cfg Config) error {
	if len(cfg.Recipients) == 0 {
		return &PreconditionError{Check: "recipients", Err: ErrNoRecipients}
	}
	if strings.TrimSpace(cfg.WatchDir) == "" {
		return &PreconditionError{Check: "watch_dir", Err: ErrWatchDirMissing}
	}
	info, err := os.Stat(cfg.WatchDir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return &PreconditionError{Check: "watch_dir", Path: cfg.WatchDir, Err: ErrWatchDirMissing}
	case err != nil:
		return &PreconditionError{Check: "watch_dir", Path: cfg.WatchDir, Err: err}
	case !info.IsDir():
		return &PreconditionError{Check: "watch_dir", Path: cfg.WatchDir, Err: ErrWatchDirNotDir}
	}
	if strings.TrimSpace(cfg.ArchiveDir) != "" {
		if err := os.MkdirAll(cfg.ArchiveDir, 0o755); err != nil {
			return &PreconditionError{Check: "archive_dir", Path: cfg.ArchiveDir, Err: err}
		}
	}
	return nil
}
