package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"dumpwatch/internal/config"
)

// ConfigOption customizes the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t            testing.TB
	baseDir      string
	cfg          *config.Config
	skipWatchDir bool
}

// NewConfig returns a config rooted in a fresh temp directory with the state
// and watch directories created and a single recipient set.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.WatchDir = filepath.Join(base, "watch")
	cfgVal.Paths.ArchiveDir = filepath.Join(base, "watch", "archived")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Notifications.Recipients = []string{"ops@example.com"}
	cfgVal.Watch.Autostart = false

	builder := &configBuilder{t: t, baseDir: base, cfg: &cfgVal}
	for _, opt := range opts {
		opt(builder)
	}

	dirs := []string{builder.cfg.Paths.StateDir}
	if !builder.skipWatchDir {
		dirs = append(dirs, builder.cfg.Paths.WatchDir)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	return builder.cfg
}

// WithRecipients replaces the recipient list.
func WithRecipients(recipients ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.Recipients = append([]string(nil), recipients...)
	}
}

// WithAttachments enables attachments with the given budget in MB.
func WithAttachments(maxMB int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.IncludeAttachments = true
		b.cfg.Notifications.AttachMaxMB = maxMB
	}
}

// WithoutWatchDir leaves the watch directory uncreated.
func WithoutWatchDir() ConfigOption {
	return func(b *configBuilder) {
		b.skipWatchDir = true
	}
}

// BaseDir returns the temp root backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}

// WriteConfigFile persists cfg as TOML at path so it can be loaded back
// through config.Load or a Provider.
func WriteConfigFile(t testing.TB, path string, cfg *config.Config) {
	t.Helper()

	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config %s: %v", path, err)
	}
}
