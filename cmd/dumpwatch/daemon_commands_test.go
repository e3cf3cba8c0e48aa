package main

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dumpwatch/internal/testsupport"
)

func TestStartStopStatus(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"start"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	requireContains(t, out, "Watch started")

	out, _, err = runCLI(t, []string{"start"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	requireContains(t, out, "Watch already running")

	testsupport.WriteFile(t, filepath.Join(env.cfg.Paths.WatchDir, "crash.dmp"), 4096)
	out, _, err = runCLI(t, []string{"check"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	requireContains(t, out, "Check requested")
	waitFor(t, 5*time.Second, func() bool { return len(env.transport.Sent()) == 1 })

	var status string
	waitFor(t, 2*time.Second, func() bool {
		status, _, err = runCLI(t, []string{"status"}, env.socketPath, env.configPath)
		return err == nil && containsAll(status, "Recent Activity", "notification_sent")
	})
	requireContains(t, status, "System Status")
	requireContains(t, status, "Watching (pid")
	requireContains(t, status, "crash.dmp")

	out, _, err = runCLI(t, []string{"stop"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	requireContains(t, out, "Watch stopped")

	out, _, err = runCLI(t, []string{"stop"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("second stop: %v", err)
	}
	requireContains(t, out, "Watch was not running")
}

func TestCheckRunsCycleWhileStopped(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.WriteFile(t, filepath.Join(env.cfg.Paths.WatchDir, "a.dmp"), 16)

	out, _, err := runCLI(t, []string{"check"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	requireContains(t, out, "found 1, notified 1, archived 1")
	requireContains(t, out, "a.dmp")
}

func TestStatusJSONWithoutDaemon(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg := testsupport.NewConfig(t)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	testsupport.WriteConfigFile(t, configPath, cfg)

	out, _, err := runCLI(t, []string{"status", "--json"}, cfg.SocketPath(), configPath)
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	requireContains(t, out, `"reachable": false`)
	requireContains(t, out, `"state": "offline"`)

	_, _, err = runCLI(t, []string{"check"}, cfg.SocketPath(), configPath)
	if err == nil {
		t.Fatal("expected check to fail without a daemon")
	}
	requireContains(t, err.Error(), "dumpwatch start")

	out, _, err = runCLI(t, []string{"stop"}, cfg.SocketPath(), configPath)
	if err != nil {
		t.Fatalf("stop without daemon: %v", err)
	}
	requireContains(t, out, "Daemon is not running")
}

func TestReloadAndTestNotify(t *testing.T) {
	env := setupCLITestEnv(t)

	cfg := *env.cfg
	cfg.Notifications.Recipients = []string{"ops@example.com", "dev@example.com"}
	testsupport.WriteConfigFile(t, env.configPath, &cfg)

	out, _, err := runCLI(t, []string{"reload"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	requireContains(t, out, "Configuration reloaded from "+env.configPath)
	requireContains(t, out, "2 recipients")

	out, _, err = runCLI(t, []string{"test-notify"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "ops@example.com, dev@example.com")
	if sent := env.transport.Sent(); len(sent) != 1 {
		t.Fatalf("expected one test notification, got %d", len(sent))
	}
}

func TestTestNotifyFailsWithoutRecipients(t *testing.T) {
	env := setupCLITestEnv(t)

	cfg := *env.cfg
	cfg.Notifications.Recipients = nil
	testsupport.WriteConfigFile(t, env.configPath, &cfg)
	if _, _, err := runCLI(t, []string{"reload"}, env.socketPath, env.configPath); err != nil {
		t.Fatalf("reload: %v", err)
	}

	_, _, err := runCLI(t, []string{"test-notify"}, env.socketPath, env.configPath)
	if err == nil {
		t.Fatal("expected test-notify to fail without recipients")
	}
	requireContains(t, err.Error(), "notification not sent: no recipients configured")

	out, _, err := runCLI(t, []string{"test-notify", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("test-notify --json: %v", err)
	}
	requireContains(t, out, `"sent": false`)
	if calls := env.transport.Calls(); calls != 0 {
		t.Fatalf("expected no send attempts, got %d", calls)
	}
}

func containsAll(s string, parts ...string) bool {
	for _, part := range parts {
		if !strings.Contains(s, part) {
			return false
		}
	}
	return true
}
