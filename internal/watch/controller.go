package watch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"dumpwatch/internal/archive"
	"dumpwatch/internal/artifact"
	"dumpwatch/internal/logging"
)

const defaultDispatchGrace = 5 * time.Second

// Store is the dedup key set the controller diffs against. *dedup.Store
// implements it.
type Store interface {
	archive.KeyStore
}

// Deps are the collaborators a Controller needs. Store and Sender are
// required.
type Deps struct {
	Store  Store
	Sender Sender
	Lister artifact.DirectoryLister
	Mover  archive.FileMover
	Logger *slog.Logger

	// EventBuffer sizes the event channel. Zero uses a default.
	EventBuffer int
	// DispatchGrace is how long a cycle waits beyond the send timeout before
	// leaving the send to finish in the background.
	DispatchGrace time.Duration
	// Now overrides the clock.
	Now func() time.Time
}

// Controller coordinates the poll timer, cycles, and the dispatch worker.
type Controller struct {
	mu      sync.Mutex
	state   State
	cfg     Config
	pending *Config
	running bool
	stop    chan struct{}
	done    chan struct{}
	trigger chan struct{}
	stats   Status

	cycleMu  sync.Mutex
	scanner  *artifact.Scanner
	store    Store
	archiver *archive.Archiver
	worker   *dispatchWorker
	grace    time.Duration

	events  chan Event
	dropped atomic.Uint64
	logger  *slog.Logger
	now     func() time.Time
}

// New builds a controller in StateIdle.
func New(cfg Config, deps Deps) (*Controller, error) {
	if deps.Store == nil {
		return nil, errors.New("watch: dedup store is required")
	}
	if deps.Sender == nil {
		return nil, errors.New("watch: sender is required")
	}
	buffer := deps.EventBuffer
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	grace := deps.DispatchGrace
	if grace <= 0 {
		grace = defaultDispatchGrace
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := logging.NewComponentLogger(deps.Logger, "watch")

	return &Controller{
		state:    StateIdle,
		cfg:      cfg.clone(),
		trigger:  make(chan struct{}, 1),
		scanner:  artifact.NewScanner(deps.Lister, cfg.Suffix),
		store:    deps.Store,
		archiver: archive.New(deps.Store, deps.Mover, deps.Logger),
		worker:   newDispatchWorker(deps.Sender),
		grace:    grace,
		events:   make(chan Event, buffer),
		logger:   logger,
		now:      now,
	}, nil
}

// Events returns the controller's event stream.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Config returns the configuration the next cycle will use.
func (c *Controller) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		return c.pending.clone()
	}
	return c.cfg.clone()
}

// Update hands over a new configuration. It is applied at the start of the
// next cycle (or the next Start), never to a cycle already running.
func (c *Controller) Update(cfg Config) {
	next := cfg.clone()
	c.mu.Lock()
	c.pending = &next
	c.mu.Unlock()
	c.logger.Debug("configuration update queued", logging.String(logging.FieldEventType, "config_update_queued"))
}

// Start validates preconditions and arms the poll timer. The first cycle
// runs immediately. On failure the state is unchanged and the error is a
// *PreconditionError.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	if c.pending != nil {
		c.applyPendingLocked()
	}
	cfg := c.cfg.clone()
	if err := checkPreconditions(cfg); err != nil {
		c.mu.Unlock()
		logging.ErrorWithContext(c.logger, "watch start refused", "watch_start_refused",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "fix the configuration and start again"),
		)
		return err
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	c.stop = stop
	c.done = done
	c.running = true
	c.state = StateRunning
	c.mu.Unlock()

	c.logger.Info("watch started",
		logging.String("watch_dir", cfg.WatchDir),
		logging.String("archive_dir", cfg.ArchiveDir),
		logging.Duration("poll_interval", cfg.PollInterval),
		logging.Int("recipients", len(cfg.Recipients)),
		logging.String(logging.FieldEventType, "watch_started"),
	)
	go c.loop(ctx, stop, done, cfg.PollInterval)
	return nil
}

// Stop disarms the timer and waits for an in-flight cycle to finish. It
// reports whether the controller was running.
func (c *Controller) Stop() bool {
	c.mu.Lock()
	if !c.running || c.stop == nil {
		done := c.done
		c.mu.Unlock()
		if done != nil {
			<-done
		}
		return false
	}
	stop, done := c.stop, c.done
	c.stop = nil
	c.mu.Unlock()

	close(stop)
	<-done
	c.logger.Info("watch stopped", logging.String(logging.FieldEventType, "watch_stopped"))
	return true
}

// Close stops the controller, settles a send that outlived its cycle, and
// stops the dispatch worker. The controller cannot be restarted afterwards.
func (c *Controller) Close() {
	c.Stop()
	c.settleOutstanding()
	if !c.worker.close(c.grace) {
		logging.WarnWithContext(c.logger, "dispatch worker did not exit; abandoning send", "dispatch_abandoned",
			logging.Duration("waited", c.grace),
			logging.String(logging.FieldErrorHint, "the notification transport ignored cancellation"),
			logging.String(logging.FieldImpact, "the abandoned batch is notified again after restart"),
		)
	}
}

// settleOutstanding waits up to one send timeout for an outstanding send and
// records its batch when it was delivered.
func (c *Controller) settleOutstanding() {
	if !c.worker.busy() {
		return
	}
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()

	wait := c.Config().sendTimeout() + c.grace
	res, ok := c.worker.await(wait)
	if !ok {
		logging.WarnWithContext(c.logger, "outstanding notification did not finish before close", "dispatch_unsettled",
			logging.Duration("waited", wait),
			logging.String(logging.FieldErrorHint, "check transport connectivity"),
			logging.String(logging.FieldImpact, "the batch is notified again after restart"),
		)
		return
	}
	result := CycleResult{ID: uuid.NewString(), Started: c.now()}
	c.handleDispatchResult(context.Background(), res, &result)
}

// Trigger requests an early cycle. Requests coalesce and are ignored unless
// the controller is running.
func (c *Controller) Trigger() bool {
	c.mu.Lock()
	running := c.running
	c.mu.Unlock()
	if !running {
		return false
	}
	select {
	case c.trigger <- struct{}{}:
	default:
	}
	return true
}

func (c *Controller) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}, interval time.Duration) {
	defer func() {
		c.mu.Lock()
		c.running = false
		c.stop = nil
		c.state = StateStopped
		c.mu.Unlock()
		close(done)
	}()

	// Cycles outlive cancellation of ctx so a stop never abandons one midway.
	cycleCtx := context.WithoutCancel(ctx)
	select {
	case <-c.trigger:
	default:
	}
	if next := c.RunCycle(cycleCtx).PollInterval; next > 0 {
		interval = next
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-c.trigger:
		}
		select {
		case <-stop:
			return
		default:
		}

		result := c.RunCycle(cycleCtx)
		if result.PollInterval > 0 && result.PollInterval != interval {
			interval = result.PollInterval
			ticker.Reset(interval)
			c.logger.Info("poll interval changed",
				logging.Duration("poll_interval", interval),
				logging.String(logging.FieldEventType, "poll_interval_changed"),
			)
		}
	}
}

func (c *Controller) applyPendingLocked() {
	c.cfg = *c.pending
	c.pending = nil
	if c.cfg.Suffix != c.scanner.Suffix() {
		c.scanner = c.scanner.WithSuffix(c.cfg.Suffix)
	}
}
