package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"dumpwatch/internal/artifact"
	"dumpwatch/internal/config"
	"dumpwatch/internal/dedup"
	"dumpwatch/internal/ipc"
)

// StatusLine is one labelled health check rendered by `dumpwatch status`.
type StatusLine struct {
	Label    string `json:"label"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
}

// Snapshot combines daemon status with checks that work without a daemon.
type Snapshot struct {
	Daemon       ipc.StatusResponse `json:"daemon"`
	Reachable    bool               `json:"reachable"`
	PendingDumps int                `json:"pending_dumps"`
	PendingBytes int64              `json:"pending_bytes"`
	Checks       []StatusLine       `json:"checks"`
}

// BuildStatusSnapshot collects daemon status and falls back to the
// configuration and dedup database when the daemon is offline.
func BuildStatusSnapshot(ctx context.Context, socketPath string, cfg *config.Config) (*Snapshot, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	snapshot := &Snapshot{}

	client, err := ipc.Dial(socketPath)
	if err == nil {
		defer client.Close()
		if resp, statusErr := client.Status(); statusErr == nil && resp != nil {
			snapshot.Daemon = *resp
			snapshot.Reachable = true
		}
	}

	if !snapshot.Reachable {
		snapshot.Daemon = offlineStatus(ctx, cfg)
	}

	queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	pending, scanErr := artifact.NewScanner(nil, cfg.Watch.Suffix).Scan(queryCtx, cfg.Paths.WatchDir)
	if scanErr == nil {
		snapshot.PendingDumps = len(pending)
		snapshot.PendingBytes = artifact.TotalSize(pending)
	}
	snapshot.Checks = BuildSystemChecks(cfg, snapshot, scanErr)
	return snapshot, nil
}

func offlineStatus(ctx context.Context, cfg *config.Config) ipc.StatusResponse {
	status := ipc.StatusResponse{
		State:               "offline",
		WatchDir:            cfg.Paths.WatchDir,
		ArchiveDir:          cfg.Paths.ArchiveDir,
		PollIntervalSeconds: int64(cfg.Watch.PollInterval),
		Recipients:          len(cfg.Notifications.Recipients),
		Transport:           cfg.Notifications.Transport,
		DedupDBPath:         cfg.DedupDBPath(),
		LockPath:            cfg.LockPath(),
	}
	if _, err := os.Stat(cfg.DedupDBPath()); err != nil {
		return status
	}
	queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	store, err := dedup.Open(cfg)
	if err != nil {
		return status
	}
	defer store.Close()
	if keys, err := store.AllKeys(queryCtx); err == nil {
		status.DedupEntries = len(keys)
	}
	return status
}

// BuildSystemChecks resolves status lines that combine runtime state and
// config checks.
func BuildSystemChecks(cfg *config.Config, snapshot *Snapshot, scanErr error) []StatusLine {
	lines := make([]StatusLine, 0, 6)
	status := snapshot.Daemon
	switch {
	case !snapshot.Reachable:
		lines = append(lines, StatusLine{Label: "Daemon", Severity: "warn", Detail: "Not running (run `dumpwatch start`)"})
	case status.State == "running" || status.State == "cycle_in_flight":
		lines = append(lines, StatusLine{Label: "Daemon", Severity: "ok", Detail: fmt.Sprintf("Watching (pid %d)", status.PID)})
	default:
		lines = append(lines, StatusLine{Label: "Daemon", Severity: "warn", Detail: fmt.Sprintf("Running, watch %s (run `dumpwatch start`)", status.State)})
	}

	if scanErr != nil {
		lines = append(lines, StatusLine{Label: "Watch directory", Severity: "error", Detail: scanErr.Error()})
	} else {
		lines = append(lines, StatusLine{Label: "Watch directory", Severity: "ok", Detail: cfg.Paths.WatchDir})
	}
	lines = append(lines, directoryLine("Archive directory", cfg.Paths.ArchiveDir))

	if len(cfg.Notifications.Recipients) == 0 {
		lines = append(lines, StatusLine{Label: "Recipients", Severity: "error", Detail: "None configured (set notifications.recipients)"})
	} else {
		lines = append(lines, StatusLine{Label: "Recipients", Severity: "ok", Detail: strings.Join(cfg.Notifications.Recipients, ", ")})
	}

	switch {
	case status.LastError != "":
		lines = append(lines, StatusLine{Label: "Last cycle", Severity: "warn", Detail: status.LastError})
	case status.LastCycleAt != "":
		lines = append(lines, StatusLine{Label: "Last cycle", Severity: "ok", Detail: fmt.Sprintf("%s at %s", status.LastCycleID, status.LastCycleAt)})
	default:
		lines = append(lines, StatusLine{Label: "Last cycle", Severity: "info", Detail: "No cycle yet"})
	}
	return lines
}

func directoryLine(label, path string) StatusLine {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return StatusLine{Label: label, Severity: "info", Detail: path + " (created on first archive)"}
	case err != nil:
		return StatusLine{Label: label, Severity: "error", Detail: err.Error()}
	case !info.IsDir():
		return StatusLine{Label: label, Severity: "error", Detail: path + " is not a directory"}
	}
	return StatusLine{Label: label, Severity: "ok", Detail: path}
}
