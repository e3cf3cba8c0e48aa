package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pelletier/go-toml/v2"

	"dumpwatch/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	if want := filepath.Join(tempHome, ".config", "dumpwatch", "config.toml"); resolved != want {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, want)
	}
	if want := filepath.Join(tempHome, "dumps"); cfg.Paths.WatchDir != want {
		t.Fatalf("unexpected watch dir: got %q want %q", cfg.Paths.WatchDir, want)
	}
	if want := filepath.Join(tempHome, "dumps", "archived"); cfg.Paths.ArchiveDir != want {
		t.Fatalf("unexpected archive dir: got %q want %q", cfg.Paths.ArchiveDir, want)
	}
	if cfg.Watch.Suffix != ".dmp" {
		t.Fatalf("unexpected suffix: %q", cfg.Watch.Suffix)
	}
	if cfg.PollInterval().Seconds() != 60 {
		t.Fatalf("unexpected poll interval: %s", cfg.PollInterval())
	}
	if cfg.AttachmentBudget() != 25*1024*1024 {
		t.Fatalf("unexpected attachment budget: %d", cfg.AttachmentBudget())
	}
	if !cfg.Watch.Autostart {
		t.Fatal("expected autostart enabled by default")
	}
	if cfg.Notifications.Title != "DMP in logs!" {
		t.Fatalf("unexpected title: %q", cfg.Notifications.Title)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.StateDir, cfg.LogDir(), cfg.Paths.ArchiveDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "dumpwatch.toml")

	type payload struct {
		Paths struct {
			WatchDir   string `toml:"watch_dir"`
			ArchiveDir string `toml:"archive_dir"`
		} `toml:"paths"`
		Watch struct {
			PollInterval int    `toml:"poll_interval"`
			Suffix       string `toml:"suffix"`
		} `toml:"watch"`
		Notifications struct {
			Recipients []string `toml:"recipients"`
		} `toml:"notifications"`
	}
	custom := payload{}
	custom.Paths.WatchDir = filepath.Join(tempDir, "crash")
	custom.Paths.ArchiveDir = filepath.Join(tempDir, "old")
	custom.Watch.PollInterval = 5
	custom.Watch.Suffix = "DMP"
	custom.Notifications.Recipients = []string{" ops@example.com ", "OPS@example.com", "dev@example.com"}
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Paths.ArchiveDir != custom.Paths.ArchiveDir {
		t.Fatalf("expected archive dir override, got %q", cfg.Paths.ArchiveDir)
	}
	if cfg.Watch.Suffix != ".dmp" {
		t.Fatalf("expected suffix normalized to .dmp, got %q", cfg.Watch.Suffix)
	}
	if cfg.Watch.PollInterval != 5 {
		t.Fatalf("expected poll interval 5, got %d", cfg.Watch.PollInterval)
	}
	if diff := cmp.Diff([]string{"ops@example.com", "dev@example.com"}, cfg.Notifications.Recipients); diff != "" {
		t.Fatalf("recipients mismatch (-want +got):\n%s", diff)
	}
}

func TestEnvFallbacks(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("DUMPWATCH_SMTP_PASSWORD", "env-secret")
	t.Setenv("DUMPWATCH_RECIPIENTS", "a@example.com, b@example.com")

	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.SMTP.Password != "env-secret" {
		t.Errorf("expected SMTP password from env, got %q", cfg.SMTP.Password)
	}
	if diff := cmp.Diff([]string{"a@example.com", "b@example.com"}, cfg.Notifications.Recipients); diff != "" {
		t.Errorf("recipients mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{
			name:   "poll interval",
			mutate: func(c *config.Config) { c.Watch.PollInterval = 0 },
			want:   "watch.poll_interval",
		},
		{
			name:   "transport",
			mutate: func(c *config.Config) { c.Notifications.Transport = "pigeon" },
			want:   "notifications.transport",
		},
		{
			name:   "send timeout",
			mutate: func(c *config.Config) { c.Notifications.SendTimeout = -1 },
			want:   "notifications.send_timeout",
		},
		{
			name:   "malformed recipient",
			mutate: func(c *config.Config) { c.Notifications.Recipients = []string{"not-an-address"} },
			want:   "notifications.recipients",
		},
		{
			name:   "unqualified recipient domain",
			mutate: func(c *config.Config) { c.Notifications.Recipients = []string{"root@localhost"} },
			want:   "notifications.recipients",
		},
		{
			name: "ntfy topic",
			mutate: func(c *config.Config) {
				c.Notifications.Transport = config.TransportNtfy
				c.Notifications.Recipients = []string{"bad topic"}
			},
			want: "ntfy topic",
		},
		{
			name:   "tls policy",
			mutate: func(c *config.Config) { c.SMTP.TLS = "sometimes" },
			want:   "smtp.tls",
		},
		{
			name:   "archive inside watch",
			mutate: func(c *config.Config) { c.Paths.ArchiveDir = c.Paths.WatchDir },
			want:   "paths.archive_dir",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Paths.WatchDir = "/var/crash"
			cfg.Paths.ArchiveDir = "/var/crash/archived"
			cfg.Paths.StateDir = "/tmp/dumpwatch"
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestSampleConfigMatchesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	fromSample, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample file to exist")
	}
	fromDefaults, _, _, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if diff := cmp.Diff(fromDefaults, fromSample); diff != "" {
		t.Fatalf("sample config drifted from defaults (-defaults +sample):\n%s", diff)
	}
}

func TestProviderPersistsDefaultsAndReloads(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	provider, err := config.NewProvider(path)
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	if !provider.Created() {
		t.Fatal("expected provider to report defaults were written")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected defaults persisted at %s: %v", path, err)
	}

	snapshot := provider.Current()
	snapshot.Notifications.Recipients = append(snapshot.Notifications.Recipients, "mutated@example.com")
	if len(provider.Current().Notifications.Recipients) != 0 {
		t.Fatal("expected Current to return an independent copy")
	}

	edited := strings.Replace(readFile(t, path), "recipients = []", `recipients = ["ops@example.com"]`, 1)
	if err := os.WriteFile(path, []byte(edited), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	reloaded, err := provider.Reload()
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if diff := cmp.Diff([]string{"ops@example.com"}, reloaded.Notifications.Recipients); diff != "" {
		t.Fatalf("reloaded recipients mismatch (-want +got):\n%s", diff)
	}

	if err := os.WriteFile(path, []byte("[watch]\npoll_interval = -4\n"), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	if _, err := provider.Reload(); err == nil {
		t.Fatal("expected invalid reload to fail")
	}
	if diff := cmp.Diff([]string{"ops@example.com"}, provider.Current().Notifications.Recipients); diff != "" {
		t.Fatalf("failed reload replaced config (-want +got):\n%s", diff)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}
