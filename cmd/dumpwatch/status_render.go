package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"dumpwatch/internal/daemonctl"
	"dumpwatch/internal/ipc"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := statusKindLabel(kind)
	if message != "" {
		statusText = fmt.Sprintf("[%s] %s", statusText, message)
	} else {
		statusText = fmt.Sprintf("[%s]", statusText)
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindFromSeverity(severity string) statusKind {
	switch strings.ToLower(strings.TrimSpace(severity)) {
	case "ok":
		return statusOK
	case "warn":
		return statusWarn
	case "error":
		return statusError
	default:
		return statusInfo
	}
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func renderStatus(out io.Writer, snapshot *daemonctl.Snapshot, now time.Time) {
	colorize := shouldColorize(out)
	status := snapshot.Daemon

	for _, line := range renderSectionHeader("System Status", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, line := range snapshot.Checks {
		fmt.Fprintln(out, renderStatusLine(line.Label, statusKindFromSeverity(line.Severity), line.Detail, colorize))
	}
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Watch", colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderKeyValues(watchSummaryPairs(snapshot, now)))

	if len(status.Recent) == 0 {
		return
	}
	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("Recent Activity", colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprint(out, renderTable(
		[]string{"When", "Event", "Detail"},
		buildActivityRows(status.Recent, now),
		[]columnAlignment{alignLeft, alignLeft, alignLeft},
	))
}

func watchSummaryPairs(snapshot *daemonctl.Snapshot, now time.Time) [][2]string {
	status := snapshot.Daemon
	lastCycle := "never"
	if at := parseTimestamp(status.LastCycleAt); !at.IsZero() {
		lastCycle = fmt.Sprintf("%s (%s)", humanize.RelTime(at, now, "ago", "from now"), status.LastCycleID)
	}
	pairs := [][2]string{
		{"State", status.State},
		{"Poll interval", (time.Duration(status.PollIntervalSeconds) * time.Second).String()},
		{"Transport", fmt.Sprintf("%s (%d recipients)", status.Transport, status.Recipients)},
		{"Dumps in watch dir", fmt.Sprintf("%d (%s)", snapshot.PendingDumps, humanize.IBytes(uint64(snapshot.PendingBytes)))},
		{"Dedup entries", humanize.Comma(int64(status.DedupEntries))},
		{"Last cycle", lastCycle},
	}
	if snapshot.Reachable {
		pairs = append(pairs,
			[2]string{"Cycles", humanize.Comma(int64(status.Cycles))},
			[2]string{"Notifications", fmt.Sprintf("%d sent, %d failed", status.NotificationsSent, status.NotificationsFailed)},
			[2]string{"Archived", fmt.Sprintf("%d (%d failures)", status.Archived, status.ArchiveFailures)},
			[2]string{"Dispatch in flight", yesNo(status.DispatchInFlight)},
		)
		if status.DroppedEvents > 0 {
			pairs = append(pairs, [2]string{"Dropped events", humanize.Comma(int64(status.DroppedEvents))})
		}
		if status.LogPath != "" {
			pairs = append(pairs, [2]string{"Log", status.LogPath})
		}
	}
	return pairs
}

func buildActivityRows(events []ipc.ActivityEvent, now time.Time) [][]string {
	rows := make([][]string, 0, len(events))
	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		when := ev.Time
		if at := parseTimestamp(ev.Time); !at.IsZero() {
			when = humanize.RelTime(at, now, "ago", "from now")
		}
		rows = append(rows, []string{when, ev.Type, activityDetail(ev)})
	}
	return rows
}

func activityDetail(ev ipc.ActivityEvent) string {
	parts := make([]string, 0, 3)
	if len(ev.Names) > 0 {
		parts = append(parts, strings.Join(ev.Names, ", "))
	}
	if ev.Name != "" {
		parts = append(parts, ev.Name)
	}
	if ev.Kind != "" {
		parts = append(parts, "["+ev.Kind+"]")
	}
	if ev.Detail != "" {
		parts = append(parts, ev.Detail)
	}
	return strings.Join(parts, " ")
}

func buildDedupRows(entries []ipc.DedupEntry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		recorded := entry.RecordedAt
		if at := parseTimestamp(recorded); !at.IsZero() {
			recorded = at.Local().Format("2006-01-02 15:04:05")
		}
		rows = append(rows, []string{entry.Name, recorded})
	}
	return rows
}

func parseTimestamp(value string) time.Time {
	if strings.TrimSpace(value) == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return parsed
}
