package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WatchDir   string `toml:"watch_dir"`
	ArchiveDir string `toml:"archive_dir"`
	StateDir   string `toml:"state_dir"`
}

// Watch contains the polling cadence and artifact matching rules.
type Watch struct {
	PollInterval int    `toml:"poll_interval"`
	Suffix       string `toml:"suffix"`
	FSEvents     bool   `toml:"fs_events"`
	Autostart    bool   `toml:"autostart"`
}

// Notifications contains the message template, recipients, and attachment policy.
type Notifications struct {
	Transport          string   `toml:"transport"`
	Recipients         []string `toml:"recipients"`
	Title              string   `toml:"title"`
	Subject            string   `toml:"subject"`
	IncludeAttachments bool     `toml:"include_attachments"`
	AttachMaxMB        int      `toml:"attach_max_mb"`
	SendTimeout        int      `toml:"send_timeout"`
}

// SMTP contains mail submission settings used when notifications.transport is "smtp".
type SMTP struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	From     string `toml:"from"`
	TLS      string `toml:"tls"`
}

// Ntfy contains push settings used when notifications.transport is "ntfy".
// Recipients are topic names published under Server.
type Ntfy struct {
	Server string `toml:"server"`
	Token  string `toml:"token"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for dumpwatch.
//
// Configuration sections by subsystem:
//   - Paths: watched, archive, and state directories
//   - Watch: poll cadence, dump suffix, filesystem event nudges, autostart
//   - Notifications: recipients, message text, attachment budget, timeout
//   - SMTP / Ntfy: transport credentials
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Watch         Watch         `toml:"watch"`
	Notifications Notifications `toml:"notifications"`
	SMTP          SMTP          `toml:"smtp"`
	Ntfy          Ntfy          `toml:"ntfy"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("dumpwatch.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state and archive directories. The watched
// directory belongs to the process producing dumps and is never created here.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.LogDir(), c.Paths.ArchiveDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// Clone returns a deep copy safe to hand to another goroutine.
func (c *Config) Clone() Config {
	out := *c
	out.Notifications.Recipients = append([]string(nil), c.Notifications.Recipients...)
	return out
}

// LogDir returns the directory holding per-run log files.
func (c *Config) LogDir() string {
	return filepath.Join(c.Paths.StateDir, "logs")
}

// DedupDBPath returns the SQLite file backing the dedup store.
func (c *Config) DedupDBPath() string {
	return filepath.Join(c.Paths.StateDir, "dedup.db")
}

// LockPath returns the single-instance lock file path.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "dumpwatch.lock")
}

// PIDPath returns the file recording the daemon process id.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "dumpwatch.pid")
}

// SocketPath returns the daemon IPC socket path.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.StateDir, "dumpwatch.sock")
}

// PollInterval returns the configured poll cadence.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Watch.PollInterval) * time.Second
}

// SendTimeout bounds a single notification send.
func (c *Config) SendTimeout() time.Duration {
	return time.Duration(c.Notifications.SendTimeout) * time.Second
}

// AttachmentBudget returns the attachment size budget in bytes.
func (c *Config) AttachmentBudget() int64 {
	return int64(c.Notifications.AttachMaxMB) * 1024 * 1024
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
