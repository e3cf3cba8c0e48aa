package watch

import (
	"time"

	"dumpwatch/internal/notify"
)

// EventType identifies an Event.
type EventType string

const (
	EventCycleStarted       EventType = "cycle_started"
	EventCycleCompleted     EventType = "cycle_completed"
	EventNotificationSent   EventType = "notification_sent"
	EventNotificationFailed EventType = "notification_failed"
	EventArchiveFailed      EventType = "archive_failed"
	EventScanFailed         EventType = "scan_failed"
)

// Event is a progress report from the controller. Fields beyond Type, Time,
// and CycleID are set according to Type:
//
//   - EventCycleCompleted: Found
//   - EventNotificationSent: Names
//   - EventNotificationFailed: Kind, Detail
//   - EventArchiveFailed: Name, Detail
//   - EventScanFailed: Detail
type Event struct {
	Type    EventType
	Time    time.Time
	CycleID string
	Found   int
	Names   []string
	Kind    notify.Kind
	Name    string
	Detail  string
}

const defaultEventBuffer = 64

func (c *Controller) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = c.now()
	}
	select {
	case c.events <- ev:
	default:
		c.dropped.Add(1)
	}
}
