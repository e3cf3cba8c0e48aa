package daemon

import (
	"context"
	"sync"

	"dumpwatch/internal/logging"
	"dumpwatch/internal/watch"
)

const recentEventLimit = 20

// activityLog keeps the most recent controller events for status output.
type activityLog struct {
	mu     sync.Mutex
	limit  int
	events []watch.Event
}

func newActivityLog(limit int) *activityLog {
	return &activityLog{limit: limit}
}

func (a *activityLog) add(ev watch.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, ev)
	if over := len(a.events) - a.limit; over > 0 {
		a.events = append(a.events[:0:0], a.events[over:]...)
	}
}

func (a *activityLog) snapshot() []watch.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]watch.Event(nil), a.events...)
}

func (d *Daemon) drainEvents(ctx context.Context) {
	events := d.controller.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			d.record(ev)
		}
	}
}

// flushEvents records whatever the controller emitted after the drain loop
// stopped.
func (d *Daemon) flushEvents() {
	events := d.controller.Events()
	for {
		select {
		case ev := <-events:
			d.record(ev)
		default:
			return
		}
	}
}

func (d *Daemon) record(ev watch.Event) {
	switch ev.Type {
	case watch.EventCycleStarted, watch.EventCycleCompleted:
		// Cycle boundaries are too chatty for the activity list.
		d.logger.Debug("watch event",
			logging.String("type", string(ev.Type)),
			logging.String(logging.FieldCycleID, ev.CycleID),
			logging.Int("found", ev.Found),
		)
		return
	case watch.EventNotificationSent:
		d.logger.Debug("watch event",
			logging.String("type", string(ev.Type)),
			logging.String(logging.FieldCycleID, ev.CycleID),
			logging.Strings("dumps", ev.Names),
		)
	default:
		d.logger.Debug("watch event",
			logging.String("type", string(ev.Type)),
			logging.String(logging.FieldCycleID, ev.CycleID),
			logging.String(logging.FieldArtifact, ev.Name),
			logging.String("kind", string(ev.Kind)),
			logging.String("detail", ev.Detail),
		)
	}
	d.activity.add(ev)
}
