package watch

import "time"

// Status is a point-in-time summary of the controller.
type Status struct {
	State               State
	WatchDir            string
	ArchiveDir          string
	PollInterval        time.Duration
	Recipients          int
	LastCycleID         string
	LastCycleAt         time.Time
	LastFound           int
	LastError           string
	Cycles              uint64
	NotificationsSent   uint64
	NotificationsFailed uint64
	Archived            uint64
	ArchiveFailures     uint64
	DispatchInFlight    bool
	DroppedEvents       uint64
}

// Status returns counters and the outcome of the last cycle.
func (c *Controller) Status() Status {
	c.mu.Lock()
	status := c.stats
	status.State = c.state
	cfg := c.cfg
	if c.pending != nil {
		cfg = *c.pending
	}
	c.mu.Unlock()

	status.WatchDir = cfg.WatchDir
	status.ArchiveDir = cfg.ArchiveDir
	status.PollInterval = cfg.PollInterval
	status.Recipients = len(cfg.Recipients)
	status.DispatchInFlight = c.worker.busy()
	status.DroppedEvents = c.dropped.Load()
	return status
}

func (c *Controller) recordCycle(result CycleResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Cycles++
	c.stats.LastCycleID = result.ID
	c.stats.LastCycleAt = result.Started
	c.stats.LastFound = result.Found
	c.stats.Archived += uint64(len(result.Archived) + len(result.Reconciled))
	c.stats.ArchiveFailures += uint64(len(result.ArchiveErrors))
	if result.Notified {
		c.stats.NotificationsSent++
	}
	if result.NotifyErr != nil {
		c.stats.NotificationsFailed++
	}
	c.stats.LastError = ""
	if err := result.failure(); err != nil {
		c.stats.LastError = err.Error()
	}
}
