package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"dumpwatch/internal/config"
	"dumpwatch/internal/dedup"
	"dumpwatch/internal/logging"
	"dumpwatch/internal/notify"
	"dumpwatch/internal/watch"
)

const defaultDebounce = 500 * time.Millisecond

var (
	// ErrAnotherInstance means the state directory lock is held elsewhere.
	ErrAnotherInstance = errors.New("another dumpwatch daemon instance is already running")
	// ErrNotRunning is returned by operations that need Run to be active.
	ErrNotRunning = errors.New("daemon is not running")
	// ErrReloadUnavailable means the daemon was built without a config provider.
	ErrReloadUnavailable = errors.New("configuration reload unavailable")
)

// Option customizes a Daemon.
type Option func(*Daemon)

// WithProvider enables Reload from the provider's file.
func WithProvider(p *config.Provider) Option {
	return func(d *Daemon) { d.provider = p }
}

// WithTransport fixes the notification transport instead of building one
// from configuration. Reload keeps the fixed transport.
func WithTransport(t notify.Transport) Option {
	return func(d *Daemon) { d.fixedTransport = t }
}

// WithLogPath records the per-run log file reported by Status.
func WithLogPath(path string) Option {
	return func(d *Daemon) { d.logPath = path }
}

// WithDebounce sets the quiet period before a filesystem event triggers a
// check.
func WithDebounce(wait time.Duration) Option {
	return func(d *Daemon) {
		if wait > 0 {
			d.debounce = wait
		}
	}
}

// Daemon owns the watch controller and its collaborators for one process.
type Daemon struct {
	mu       sync.Mutex
	cfg      config.Config
	provider *config.Provider
	runCtx   context.Context

	logger         *slog.Logger
	store          *dedup.Store
	sender         *switchSender
	fixedTransport notify.Transport
	controller     *watch.Controller
	activity       *activityLog

	logPath  string
	lockPath string
	lock     *flock.Flock
	debounce time.Duration

	running atomic.Bool
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Watch        watch.Status
	Transport    string
	ConfigPath   string
	DedupDBPath  string
	DedupEntries int
	LockPath     string
	LogPath      string
	PID          int
	Recent       []watch.Event
}

// CheckResult reports what a manual check did.
type CheckResult struct {
	// Triggered is true when the running controller was asked for an early
	// cycle; the outcome arrives through the event stream.
	Triggered bool

	// Ran is true when a cycle was executed synchronously because the
	// controller was not running.
	Ran      bool
	CycleID  string
	Found    int
	Notified []string
	Archived int
	Error    string
}

// New constructs a daemon. The daemon takes ownership of store.
func New(cfg *config.Config, store *dedup.Store, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("daemon requires config and dedup store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	d := &Daemon{
		cfg:      cfg.Clone(),
		logger:   logger,
		store:    store,
		activity: newActivityLog(recentEventLimit),
		lockPath: cfg.LockPath(),
		debounce: defaultDebounce,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.lock = flock.New(d.lockPath)

	dispatcher, err := d.newDispatcher(cfg)
	if err != nil {
		return nil, err
	}
	d.sender = &switchSender{current: dispatcher}

	controller, err := watch.New(watch.FromConfig(cfg), watch.Deps{
		Store:  store,
		Sender: d.sender,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create watch controller: %w", err)
	}
	d.controller = controller
	return d, nil
}

func (d *Daemon) newDispatcher(cfg *config.Config) (*notify.Dispatcher, error) {
	transport := d.fixedTransport
	if transport == nil {
		var err error
		if transport, err = NewTransport(cfg); err != nil {
			return nil, err
		}
	}
	return notify.NewDispatcher(transport, d.logger), nil
}

// Run holds the single-instance lock and supervises the daemon goroutines
// until ctx is canceled. The controller is started immediately when
// watch.autostart is set.
func (d *Daemon) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("daemon already running")
	}
	defer d.running.Store(false)

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAnotherInstance
	}
	defer func() {
		if err := d.lock.Unlock(); err != nil {
			d.logger.Warn("failed to release daemon lock",
				logging.Error(err),
				logging.String(logging.FieldEventType, "daemon_unlock_failed"),
				logging.String(logging.FieldErrorHint, "remove the lock file if the next start refuses to run"),
			)
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	d.mu.Lock()
	d.runCtx = runCtx
	cfg := d.cfg.Clone()
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.runCtx = nil
		d.mu.Unlock()
	}()

	d.logger.Info("dumpwatch daemon started",
		logging.String("lock", d.lockPath),
		logging.String("transport", d.sender.dispatcher().TransportName()),
		logging.Bool("fs_events", cfg.Watch.FSEvents),
		logging.String(logging.FieldEventType, "daemon_started"),
	)

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error {
		d.drainEvents(groupCtx)
		return nil
	})
	if cfg.Watch.FSEvents {
		group.Go(func() error {
			d.watchFilesystem(groupCtx, cfg.Paths.WatchDir, cfg.Watch.Suffix)
			return nil
		})
	}

	if cfg.Watch.Autostart {
		if err := d.Start(); err != nil {
			logging.WarnWithContext(d.logger, "autostart failed; waiting for dumpwatch start", "autostart_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "fix the configuration, then run dumpwatch reload and dumpwatch start"),
				logging.String(logging.FieldImpact, "dumps are not watched until the controller starts"),
			)
		}
	}

	err = group.Wait()
	d.controller.Stop()
	d.flushEvents()
	d.logger.Info("dumpwatch daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
	return err
}

// Start starts the watch controller.
func (d *Daemon) Start() error {
	d.mu.Lock()
	ctx := d.runCtx
	d.mu.Unlock()
	if ctx == nil {
		return ErrNotRunning
	}
	return d.controller.Start(ctx)
}

// Stop stops the watch controller, letting an in-flight cycle finish. It
// reports whether the controller was running.
func (d *Daemon) Stop() bool {
	return d.controller.Stop()
}

// Close stops the controller and releases the dedup store.
func (d *Daemon) Close() error {
	d.controller.Close()
	return d.store.Close()
}

// Check runs a cycle now. A running controller is nudged and the cycle
// runs on its loop; otherwise the cycle runs synchronously on ctx.
func (d *Daemon) Check(ctx context.Context) CheckResult {
	if d.controller.Trigger() {
		return CheckResult{Triggered: true}
	}
	result := d.controller.RunCycle(ctx)
	check := CheckResult{
		Ran:      true,
		CycleID:  result.ID,
		Found:    result.Found,
		Notified: result.NotifiedNames,
		Archived: len(result.Archived) + len(result.Reconciled),
	}
	switch {
	case result.Err != nil:
		check.Error = result.Err.Error()
	case result.NotifyErr != nil:
		check.Error = result.NotifyErr.Error()
	case result.Skipped || result.Outstanding:
		check.Error = "notification still in flight"
	}
	return check
}

// Reload re-reads the configuration file and hands the result to the
// controller for its next cycle. On error the running configuration stays.
func (d *Daemon) Reload() (config.Config, error) {
	if d.provider == nil {
		return config.Config{}, ErrReloadUnavailable
	}
	cfg, err := d.provider.Reload()
	if err != nil {
		logging.WarnWithContext(d.logger, "configuration reload failed", "config_reload_failed",
			logging.String("path", d.provider.Path()),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "fix the configuration file and reload again"),
			logging.String(logging.FieldImpact, "the previous configuration stays active"),
		)
		return config.Config{}, err
	}
	dispatcher, err := d.newDispatcher(&cfg)
	if err != nil {
		return config.Config{}, err
	}

	d.mu.Lock()
	previous := d.cfg
	d.cfg = cfg.Clone()
	d.mu.Unlock()

	d.sender.swap(dispatcher)
	d.controller.Update(watch.FromConfig(&cfg))
	d.logger.Info("configuration reloaded",
		logging.String("path", d.provider.Path()),
		logging.String("transport", dispatcher.TransportName()),
		logging.Int("recipients", len(cfg.Notifications.Recipients)),
		logging.String(logging.FieldEventType, "config_reloaded"),
	)
	if previous.Watch.FSEvents != cfg.Watch.FSEvents || previous.Paths.WatchDir != cfg.Paths.WatchDir {
		d.logger.Info("filesystem event settings change on the next daemon restart",
			logging.String(logging.FieldEventType, "config_reload_deferred"),
		)
	}
	return cfg, nil
}

// TestNotification sends a test message through the configured transport.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	d.mu.Lock()
	cfg := d.cfg.Clone()
	d.mu.Unlock()
	if len(cfg.Notifications.Recipients) == 0 {
		return false, "no recipients configured", nil
	}
	policy := watch.FromConfig(&cfg).Policy()
	dispatcher := d.sender.dispatcher()
	if err := dispatcher.SendTest(ctx, policy); err != nil {
		return false, "failed to send notification", err
	}
	d.logger.Info("test notification sent",
		logging.String("transport", dispatcher.TransportName()),
		logging.Int("recipients", len(policy.Recipients)),
		logging.String(logging.FieldEventType, "test_notification_sent"),
	)
	return true, fmt.Sprintf("test notification sent to %s via %s", strings.Join(policy.Recipients, ", "), dispatcher.TransportName()), nil
}

// DedupList returns every recorded dump name.
func (d *Daemon) DedupList(ctx context.Context) ([]dedup.Entry, error) {
	return d.store.List(ctx)
}

// DedupForget removes name so the dump is notified again if it reappears.
func (d *Daemon) DedupForget(ctx context.Context, name string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, errors.New("dump name is required")
	}
	removed, err := d.store.Forget(ctx, name)
	if err != nil {
		return false, err
	}
	if removed {
		d.logger.Info("dedup entry forgotten",
			logging.String(logging.FieldArtifact, name),
			logging.String(logging.FieldEventType, "dedup_forget"),
		)
	}
	return removed, nil
}

// DedupClear removes every dedup entry.
func (d *Daemon) DedupClear(ctx context.Context) (int64, error) {
	removed, err := d.store.Clear(ctx)
	if err != nil {
		return 0, err
	}
	d.logger.Info("dedup store cleared",
		logging.Int64("removed_count", removed),
		logging.String(logging.FieldEventType, "dedup_clear"),
	)
	return removed, nil
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:     d.running.Load(),
		Watch:       d.controller.Status(),
		Transport:   d.sender.dispatcher().TransportName(),
		DedupDBPath: d.store.Path(),
		LockPath:    d.lockPath,
		LogPath:     d.logPath,
		PID:         os.Getpid(),
		Recent:      d.activity.snapshot(),
	}
	if d.provider != nil {
		status.ConfigPath = d.provider.Path()
	}
	if keys, err := d.store.AllKeys(ctx); err == nil {
		status.DedupEntries = len(keys)
	}
	return status
}
