package ipc

// StartRequest arms the watch controller.
type StartRequest struct{}

// StartResponse indicates whether the controller was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest disarms the watch controller.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped    bool `json:"stopped"`
	WasRunning bool `json:"was_running"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// ActivityEvent is one entry of the daemon's recent activity.
type ActivityEvent struct {
	Type    string   `json:"type"`
	Time    string   `json:"time"`
	CycleID string   `json:"cycle_id,omitempty"`
	Names   []string `json:"names,omitempty"`
	Name    string   `json:"name,omitempty"`
	Kind    string   `json:"kind,omitempty"`
	Detail  string   `json:"detail,omitempty"`
}

// StatusResponse represents combined daemon/controller status information.
type StatusResponse struct {
	Running             bool            `json:"running"`
	State               string          `json:"state"`
	WatchDir            string          `json:"watch_dir"`
	ArchiveDir          string          `json:"archive_dir"`
	PollIntervalSeconds int64           `json:"poll_interval_seconds"`
	Recipients          int             `json:"recipients"`
	Transport           string          `json:"transport"`
	LastCycleID         string          `json:"last_cycle_id"`
	LastCycleAt         string          `json:"last_cycle_at"`
	LastFound           int             `json:"last_found"`
	LastError           string          `json:"last_error"`
	Cycles              uint64          `json:"cycles"`
	NotificationsSent   uint64          `json:"notifications_sent"`
	NotificationsFailed uint64          `json:"notifications_failed"`
	Archived            uint64          `json:"archived"`
	ArchiveFailures     uint64          `json:"archive_failures"`
	DispatchInFlight    bool            `json:"dispatch_in_flight"`
	DroppedEvents       uint64          `json:"dropped_events"`
	DedupEntries        int             `json:"dedup_entries"`
	DedupDBPath         string          `json:"dedup_db_path"`
	ConfigPath          string          `json:"config_path"`
	LockPath            string          `json:"lock_path"`
	LogPath             string          `json:"log_path"`
	PID                 int             `json:"pid"`
	Recent              []ActivityEvent `json:"recent"`
}

// CheckRequest asks for an immediate cycle.
type CheckRequest struct{}

// CheckResponse reports what the check did.
type CheckResponse struct {
	Triggered bool     `json:"triggered"`
	Ran       bool     `json:"ran"`
	CycleID   string   `json:"cycle_id"`
	Found     int      `json:"found"`
	Notified  []string `json:"notified"`
	Archived  int      `json:"archived"`
	Error     string   `json:"error"`
}

// ReloadRequest re-reads the configuration file.
type ReloadRequest struct{}

// ReloadResponse summarizes the configuration now in effect.
type ReloadResponse struct {
	ConfigPath          string `json:"config_path"`
	Transport           string `json:"transport"`
	Recipients          int    `json:"recipients"`
	PollIntervalSeconds int    `json:"poll_interval_seconds"`
}

// DedupListRequest lists notified dump names.
type DedupListRequest struct{}

// DedupEntry is one notified dump name.
type DedupEntry struct {
	Name       string `json:"name"`
	RecordedAt string `json:"recorded_at"`
}

// DedupListResponse contains dedup entries.
type DedupListResponse struct {
	Entries []DedupEntry `json:"entries"`
}

// DedupForgetRequest removes a single dump name.
type DedupForgetRequest struct {
	Name string `json:"name"`
}

// DedupForgetResponse reports whether the name was present.
type DedupForgetResponse struct {
	Removed bool `json:"removed"`
}

// DedupClearRequest removes every dedup entry.
type DedupClearRequest struct{}

// DedupClearResponse reports number of entries removed.
type DedupClearResponse struct {
	Removed int64 `json:"removed"`
}

// TestNotificationRequest triggers a test notification.
type TestNotificationRequest struct{}

// TestNotificationResponse reports whether the notification was sent.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
