package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"

	"dumpwatch/internal/config"
	"dumpwatch/internal/daemon"
	"dumpwatch/internal/dedup"
	"dumpwatch/internal/ipc"
	"dumpwatch/internal/logging"
)

// Options configures daemon process runtime behavior.
type Options struct {
	// ConfigPath is the file Reload re-reads. Empty uses the default search.
	ConfigPath  string
	SocketPath  string
	LogLevel    string
	Development bool
}

// Run starts the dumpwatch daemon and blocks until SIGINT/SIGTERM or
// cmdCtx cancellation.
func Run(cmdCtx context.Context, opts Options) error {
	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	provider, err := config.NewProvider(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	current := provider.Current()
	cfg := &current
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.LogDir(), fmt.Sprintf("dumpwatch-%s.log", runID))
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger = logger.With(logging.String(logging.FieldSessionID, uuid.NewString()))

	if err := ensureCurrentLogPointer(cfg.LogDir(), logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update dumpwatch.log link: %v\n", err)
	}
	logging.PruneRunLogs(logger, cfg.LogDir(), cfg.Logging.RetentionDays, logPath)
	logStartup(logger, provider, cfg)

	socketPath := opts.SocketPath
	if socketPath == "" {
		socketPath = cfg.SocketPath()
	}
	if client, err := ipc.Dial(socketPath); err == nil {
		client.Close()
		return fmt.Errorf("%w (socket %s)", daemon.ErrAnotherInstance, socketPath)
	}

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := dedup.Open(cfg)
	if err != nil {
		logging.ErrorWithContext(logger, "open dedup store", "dedup_open_failed",
			logging.String("path", cfg.DedupDBPath()),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permissions on the state directory"),
		)
		return err
	}

	d, err := daemon.New(cfg, store, logger, daemon.WithProvider(provider), daemon.WithLogPath(logPath))
	if err != nil {
		store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(signalCtx, socketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Run(signalCtx); err != nil {
		if errors.Is(err, daemon.ErrAnotherInstance) {
			logging.ErrorWithContext(logger, "another daemon holds the state directory lock", "daemon_lock_held",
				logging.String("lock", cfg.LockPath()),
				logging.String(logging.FieldErrorHint, "stop the other daemon or point paths.state_dir elsewhere"),
			)
		}
		return err
	}
	logger.Info("dumpwatch daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

func logStartup(logger *slog.Logger, provider *config.Provider, cfg *config.Config) {
	if provider.Created() {
		logger.Info("wrote default configuration",
			logging.String("path", provider.Path()),
			logging.String(logging.FieldEventType, "config_created"),
		)
	}
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("config_path", provider.Path()),
		logging.String("watch_dir", cfg.Paths.WatchDir),
		logging.String("archive_dir", cfg.Paths.ArchiveDir),
		logging.String("state_dir", cfg.Paths.StateDir),
		logging.Duration("poll_interval", cfg.PollInterval()),
		logging.String("transport", cfg.Notifications.Transport),
		logging.Int("recipients", len(cfg.Notifications.Recipients)),
		logging.Bool("attachments", cfg.Notifications.IncludeAttachments),
		logging.Bool("fs_events", cfg.Watch.FSEvents),
		logging.Bool("autostart", cfg.Watch.Autostart),
	)
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "dumpwatch.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
