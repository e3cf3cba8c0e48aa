package watch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"dumpwatch/internal/archive"
	"dumpwatch/internal/artifact"
	"dumpwatch/internal/logging"
	"dumpwatch/internal/notify"
)

// CycleResult describes what one cycle did.
type CycleResult struct {
	ID      string
	Started time.Time

	// Found is the number of artifacts pending notification.
	Found int
	// Notified is true when this cycle delivered a notification, including
	// a late result collected from an earlier cycle.
	Notified      bool
	NotifiedNames []string
	NotifyErr     *notify.Error
	// Outstanding is true when the send outlived the cycle's wait.
	Outstanding bool
	// Skipped is true when pending artifacts were left for a later cycle
	// because an earlier send was still in flight.
	Skipped bool

	Archived      []string
	Reconciled    []string
	Compacted     []string
	ArchiveErrors []archive.ArchiveError

	// Err is a scan, store, or unexpected failure that ended the cycle early.
	Err error

	PollInterval time.Duration
}

func (r CycleResult) failure() error {
	if r.Err != nil {
		return r.Err
	}
	if r.NotifyErr != nil {
		return r.NotifyErr
	}
	return nil
}

// RunCycle executes one scan, dedup, notify, archive pass synchronously.
// Cycles are serialized; no error ends the controller.
func (c *Controller) RunCycle(ctx context.Context) (result CycleResult) {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()

	cfg, scanner, prev := c.beginCycle()
	result = CycleResult{ID: uuid.NewString(), Started: c.now(), PollInterval: cfg.PollInterval}
	ctx = logging.WithCycleID(ctx, result.ID)
	logger := logging.WithContext(ctx, c.logger)
	c.emit(Event{Type: EventCycleStarted, CycleID: result.ID})

	defer func() {
		if r := recover(); r != nil {
			result.Err = fmt.Errorf("cycle panic: %v", r)
			logging.ErrorWithContext(logger, "cycle aborted by panic", "cycle_panic",
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())),
				logging.String(logging.FieldErrorHint, "report this as a bug"),
			)
		}
		c.endCycle(prev, result)
		c.emit(Event{Type: EventCycleCompleted, CycleID: result.ID, Found: result.Found})
		logger.Debug("cycle complete",
			logging.Int("found", result.Found),
			logging.Bool("notified", result.Notified),
			logging.Int("archived", len(result.Archived)+len(result.Reconciled)),
			logging.Duration("elapsed", c.now().Sub(result.Started)),
			logging.String(logging.FieldEventType, "cycle_complete"),
		)
	}()

	if res, ok := c.worker.poll(); ok {
		c.handleDispatchResult(ctx, res, &result)
	}

	live, err := scanner.Scan(ctx, cfg.WatchDir)
	if err != nil {
		result.Err = err
		c.emit(Event{Type: EventScanFailed, CycleID: result.ID, Detail: err.Error()})
		logging.WarnWithContext(logger, "scan failed; retrying next cycle", "scan_failed",
			logging.String("watch_dir", cfg.WatchDir),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check watch_dir exists and is readable"),
			logging.String(logging.FieldImpact, "new dumps are not detected until the directory is readable"),
		)
		return result
	}

	if result.Compacted, err = c.archiver.Compact(ctx, live); err != nil {
		result.Err = err
		logging.ErrorWithContext(logger, "dedup compaction failed", "dedup_compact_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the dedup database in state_dir"),
		)
		return result
	}
	keys, err := c.store.AllKeys(ctx)
	if err != nil {
		result.Err = fmt.Errorf("read dedup store: %w", err)
		logging.ErrorWithContext(logger, "dedup read failed", "dedup_read_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the dedup database in state_dir"),
		)
		return result
	}

	pending, known := diff(live, keys)
	result.Found = len(pending)

	if len(known) > 0 {
		moved, failures := c.archiver.Reconcile(ctx, known, cfg.ArchiveDir)
		result.Reconciled = moved
		c.reportArchiveFailures(&result, failures)
	}
	if len(pending) == 0 {
		return result
	}

	req := dispatchRequest{
		cycleID:    result.ID,
		batch:      notify.Batch(pending),
		policy:     cfg.Policy(),
		archiveDir: cfg.ArchiveDir,
	}
	if !c.worker.submit(req) {
		result.Skipped = true
		logger.Info("notification still in flight; new dumps wait for the next cycle",
			logging.Int("pending", len(pending)),
			logging.String(logging.FieldEventType, "dispatch_skipped"),
		)
		return result
	}

	res, ok := c.worker.await(req.policy.SendTimeout + c.grace)
	if !ok {
		result.Outstanding = true
		logging.WarnWithContext(logger, "notification send outlived its timeout; result collected next cycle", "dispatch_outstanding",
			logging.Duration("send_timeout", req.policy.SendTimeout),
			logging.String(logging.FieldErrorHint, "check transport connectivity"),
			logging.String(logging.FieldImpact, "dumps are archived only after the send completes"),
		)
		return result
	}
	c.handleDispatchResult(ctx, res, &result)
	return result
}

func (c *Controller) beginCycle() (Config, *artifact.Scanner, State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		c.applyPendingLocked()
		c.logger.Info("configuration update applied", logging.String(logging.FieldEventType, "config_update_applied"))
	}
	prev := c.state
	c.state = StateCycleInFlight
	return c.cfg.clone(), c.scanner, prev
}

func (c *Controller) endCycle(prev State, result CycleResult) {
	c.recordCycle(result)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateCycleInFlight {
		return
	}
	if c.running {
		c.state = StateRunning
		return
	}
	c.state = prev
	if prev.Active() {
		c.state = StateStopped
	}
}

// handleDispatchResult archives a delivered batch or reports the failure.
// Nothing is recorded or moved for a failed send.
func (c *Controller) handleDispatchResult(ctx context.Context, res dispatchResult, result *CycleResult) {
	logger := logging.WithContext(ctx, c.logger)
	names := res.req.batch.Names()
	if res.err != nil {
		classified := notify.Classify(res.err)
		result.NotifyErr = classified
		c.emit(Event{Type: EventNotificationFailed, CycleID: result.ID, Kind: classified.Kind, Detail: classified.Error()})
		c.logNotifyFailure(logger, classified, names)
		return
	}

	result.Notified = true
	result.NotifiedNames = names
	c.emit(Event{Type: EventNotificationSent, CycleID: result.ID, Names: names})
	logger.Info("notification sent",
		logging.Strings("dumps", names),
		logging.Int("recipients", len(res.req.policy.Recipients)),
		logging.String("dispatch_cycle_id", res.req.cycleID),
		logging.String(logging.FieldEventType, "notification_sent"),
	)

	// A delivered batch is recorded even when the caller has gone away.
	failures := c.archiver.Archive(context.WithoutCancel(ctx), res.req.batch, res.req.archiveDir)
	failed := make(map[string]struct{}, len(failures))
	for _, f := range failures {
		failed[f.Name] = struct{}{}
	}
	for _, name := range names {
		if _, ok := failed[name]; !ok {
			result.Archived = append(result.Archived, name)
		}
	}
	c.reportArchiveFailures(result, failures)
}

func (c *Controller) reportArchiveFailures(result *CycleResult, failures []archive.ArchiveError) {
	for _, f := range failures {
		result.ArchiveErrors = append(result.ArchiveErrors, f)
		c.emit(Event{Type: EventArchiveFailed, CycleID: result.ID, Name: f.Name, Detail: f.Error()})
	}
}

func (c *Controller) logNotifyFailure(logger *slog.Logger, err *notify.Error, names []string) {
	attrs := []logging.Attr{
		logging.String("kind", string(err.Kind)),
		logging.Strings("dumps", names),
		logging.Error(err),
	}
	switch err.Kind {
	case notify.KindTransportUnavailable:
		logger.Warn("notification failed; retrying next cycle", logging.Args(append(attrs,
			logging.String(logging.FieldEventType, "notification_failed"),
			logging.String(logging.FieldErrorHint, "check network access to the notification server"),
			logging.String(logging.FieldImpact, "dumps stay pending until a send succeeds"),
		)...)...)
	case notify.KindQuotaExceeded:
		logger.Warn("notification quota exceeded; retrying next cycle", logging.Args(append(attrs,
			logging.String(logging.FieldEventType, "notification_quota"),
			logging.String(logging.FieldErrorHint, "wait for the provider limit to reset or raise poll_interval"),
			logging.String(logging.FieldImpact, "dumps stay pending until a send succeeds"),
		)...)...)
	case notify.KindConfiguration:
		logger.Error("notification rejected; operator action required", logging.Args(append(attrs,
			logging.String(logging.FieldEventType, "notification_config_error"),
			logging.String(logging.FieldErrorHint, "check recipients and transport credentials, then run dumpwatch reload"),
		)...)...)
	default:
		logger.Error("notification failed", logging.Args(append(attrs,
			logging.String(logging.FieldEventType, "notification_failed"),
			logging.String(logging.FieldErrorHint, "check logs for details"),
		)...)...)
	}
}

// diff splits live artifacts into those not yet notified and those already
// recorded in keys.
func diff(live []artifact.Artifact, keys map[string]struct{}) (pending, known []artifact.Artifact) {
	for _, item := range live {
		if _, ok := keys[item.Name]; ok {
			known = append(known, item)
			continue
		}
		pending = append(pending, item)
	}
	return pending, known
}
