package daemon_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"dumpwatch/internal/config"
	"dumpwatch/internal/daemon"
	"dumpwatch/internal/testsupport"
	"dumpwatch/internal/watch"
)

type daemonEnv struct {
	cfg       *config.Config
	transport *testsupport.FakeTransport
	daemon    *daemon.Daemon
}

func newDaemon(t *testing.T, mutate func(*config.Config), opts ...daemon.Option) *daemonEnv {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	if mutate != nil {
		mutate(cfg)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := testsupport.MustOpenDedup(t, cfg)
	tr := testsupport.NewFakeTransport()
	opts = append([]daemon.Option{daemon.WithTransport(tr)}, opts...)
	d, err := daemon.New(cfg, store, nil, opts...)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return &daemonEnv{cfg: cfg, transport: tr, daemon: d}
}

// run starts Run in the background and stops it at cleanup.
func (e *daemonEnv) run(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.daemon.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run returned error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Run did not return after cancel")
		}
	})
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func TestDaemonAutostartAndStop(t *testing.T) {
	env := newDaemon(t, func(c *config.Config) { c.Watch.Autostart = true })
	env.run(t)

	ctx := context.Background()
	waitFor(t, 2*time.Second, func() bool { return env.daemon.Status(ctx).Watch.State.Active() })
	if !env.daemon.Status(ctx).Running {
		t.Fatal("expected daemon to report running")
	}
	if err := env.daemon.Start(); !errors.Is(err, watch.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if !env.daemon.Stop() {
		t.Fatal("expected Stop to report a running controller")
	}
	if state := env.daemon.Status(ctx).Watch.State; state != watch.StateStopped {
		t.Fatalf("expected stopped controller, got %s", state)
	}
	if err := env.daemon.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
}

func TestDaemonStartRequiresRun(t *testing.T) {
	env := newDaemon(t, nil)
	if err := env.daemon.Start(); !errors.Is(err, daemon.ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestAutostartFailureKeepsDaemonAlive(t *testing.T) {
	env := newDaemon(t, func(c *config.Config) {
		c.Watch.Autostart = true
		c.Notifications.Recipients = nil
	})
	env.run(t)

	ctx := context.Background()
	waitFor(t, 2*time.Second, func() bool { return env.daemon.Status(ctx).Running })
	if state := env.daemon.Status(ctx).Watch.State; state.Active() {
		t.Fatalf("controller must not start without recipients, got %s", state)
	}
	var pre *watch.PreconditionError
	if err := env.daemon.Start(); !errors.As(err, &pre) {
		t.Fatalf("expected precondition error, got %v", err)
	}
}

func TestSecondInstanceIsRefused(t *testing.T) {
	first := newDaemon(t, func(c *config.Config) { c.Watch.Autostart = true })
	first.run(t)
	ctx := context.Background()
	waitFor(t, 2*time.Second, func() bool { return first.daemon.Status(ctx).Watch.State.Active() })

	store := testsupport.MustOpenDedup(t, first.cfg)
	second, err := daemon.New(first.cfg, store, nil, daemon.WithTransport(testsupport.NewFakeTransport()))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	defer second.Close()
	if err := second.Run(ctx); !errors.Is(err, daemon.ErrAnotherInstance) {
		t.Fatalf("expected ErrAnotherInstance, got %v", err)
	}
}

func TestCheckRunsCycleWhenControllerStopped(t *testing.T) {
	env := newDaemon(t, nil)
	testsupport.WriteFile(t, filepath.Join(env.cfg.Paths.WatchDir, "a.dmp"), 64)

	result := env.daemon.Check(context.Background())
	if !result.Ran || result.Triggered {
		t.Fatalf("expected a synchronous cycle, got %+v", result)
	}
	if result.Found != 1 || len(result.Notified) != 1 || result.Notified[0] != "a.dmp" {
		t.Fatalf("unexpected check result %+v", result)
	}
	if result.Archived != 1 || result.Error != "" {
		t.Fatalf("expected a.dmp archived without error, got %+v", result)
	}
	if !testsupport.Exists(t, filepath.Join(env.cfg.Paths.ArchiveDir, "a.dmp")) {
		t.Fatal("expected a.dmp in the archive directory")
	}
}

func TestCheckTriggersRunningController(t *testing.T) {
	env := newDaemon(t, func(c *config.Config) {
		c.Watch.Autostart = true
		c.Watch.PollInterval = 3600
	})
	env.run(t)
	ctx := context.Background()
	waitFor(t, 2*time.Second, func() bool { return env.daemon.Status(ctx).Watch.Cycles >= 1 })

	testsupport.WriteFile(t, filepath.Join(env.cfg.Paths.WatchDir, "a.dmp"), 64)
	if result := env.daemon.Check(ctx); !result.Triggered {
		t.Fatalf("expected the running controller to be triggered, got %+v", result)
	}
	waitFor(t, 5*time.Second, func() bool { return len(env.transport.Sent()) == 1 })
	waitFor(t, 2*time.Second, func() bool {
		for _, ev := range env.daemon.Status(ctx).Recent {
			if ev.Type == watch.EventNotificationSent {
				return true
			}
		}
		return false
	})
}

func TestFilesystemEventTriggersCheck(t *testing.T) {
	env := newDaemon(t, func(c *config.Config) {
		c.Watch.Autostart = true
		c.Watch.FSEvents = true
		c.Watch.PollInterval = 3600
	}, daemon.WithDebounce(20*time.Millisecond))
	env.run(t)
	ctx := context.Background()
	waitFor(t, 2*time.Second, func() bool { return env.daemon.Status(ctx).Watch.Cycles >= 1 })

	// The watcher registers concurrently with the first cycle, so keep
	// producing dumps until one is noticed.
	deadline := time.Now().Add(5 * time.Second)
	for i := 0; len(env.transport.Sent()) == 0; i++ {
		if time.Now().After(deadline) {
			t.Fatal("filesystem event never triggered a notification")
		}
		testsupport.WriteFile(t, filepath.Join(env.cfg.Paths.WatchDir, "dump"+string(rune('a'+i%26))+".dmp"), 8)
		time.Sleep(100 * time.Millisecond)
	}
}

func TestReloadAppliesNewConfiguration(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	testsupport.WriteConfigFile(t, path, cfg)
	provider, err := config.NewProvider(path)
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	current := provider.Current()
	tr := testsupport.NewFakeTransport()
	d, err := daemon.New(&current, testsupport.MustOpenDedup(t, cfg), nil,
		daemon.WithProvider(provider), daemon.WithTransport(tr))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	defer d.Close()

	cfg.Notifications.Title = "Crash on build agent"
	testsupport.WriteConfigFile(t, path, cfg)
	reloaded, err := d.Reload()
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if reloaded.Notifications.Title != "Crash on build agent" {
		t.Fatalf("unexpected reloaded title %q", reloaded.Notifications.Title)
	}

	if err := os.WriteFile(path, []byte("[watch]\npoll_interval = -4\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Reload(); err == nil {
		t.Fatal("expected invalid configuration to be rejected")
	}

	testsupport.WriteFile(t, filepath.Join(cfg.Paths.WatchDir, "a.dmp"), 8)
	d.Check(context.Background())
	sent := tr.Sent()
	if len(sent) != 1 || sent[0].Title != "Crash on build agent" {
		t.Fatalf("expected reloaded title on the next cycle, got %+v", sent)
	}
	if status := d.Status(context.Background()); status.ConfigPath != path {
		t.Fatalf("unexpected config path %q", status.ConfigPath)
	}
}

func TestReloadWithoutProvider(t *testing.T) {
	env := newDaemon(t, nil)
	if _, err := env.daemon.Reload(); !errors.Is(err, daemon.ErrReloadUnavailable) {
		t.Fatalf("expected ErrReloadUnavailable, got %v", err)
	}
}

func TestDedupMaintenance(t *testing.T) {
	env := newDaemon(t, nil)
	ctx := context.Background()
	testsupport.WriteFile(t, filepath.Join(env.cfg.Paths.WatchDir, "a.dmp"), 8)
	testsupport.WriteFile(t, filepath.Join(env.cfg.Paths.WatchDir, "b.dmp"), 8)
	env.daemon.Check(ctx)

	entries, err := env.daemon.DedupList(ctx)
	if err != nil {
		t.Fatalf("DedupList: %v", err)
	}
	if len(entries) != 2 || entries[0].Name != "a.dmp" || entries[1].Name != "b.dmp" {
		t.Fatalf("unexpected entries %+v", entries)
	}

	removed, err := env.daemon.DedupForget(ctx, "a.dmp")
	if err != nil || !removed {
		t.Fatalf("DedupForget a.dmp = %v, %v", removed, err)
	}
	if removed, _ := env.daemon.DedupForget(ctx, "a.dmp"); removed {
		t.Fatal("forgetting twice should report false")
	}
	if _, err := env.daemon.DedupForget(ctx, "  "); err == nil {
		t.Fatal("expected an error for an empty name")
	}

	count, err := env.daemon.DedupClear(ctx)
	if err != nil || count != 1 {
		t.Fatalf("DedupClear = %d, %v", count, err)
	}
	if status := env.daemon.Status(ctx); status.DedupEntries != 0 {
		t.Fatalf("expected empty dedup store, got %d", status.DedupEntries)
	}
}

func TestTestNotification(t *testing.T) {
	env := newDaemon(t, nil)
	sent, message, err := env.daemon.TestNotification(context.Background())
	if err != nil || !sent {
		t.Fatalf("TestNotification = %v, %q, %v", sent, message, err)
	}
	msgs := env.transport.Sent()
	if len(msgs) != 1 || msgs[0].Title != "DMP in logs! (test)" {
		t.Fatalf("unexpected test notification %+v", msgs)
	}

	empty := newDaemon(t, func(c *config.Config) { c.Notifications.Recipients = nil })
	sent, message, err = empty.daemon.TestNotification(context.Background())
	if err != nil || sent || message != "no recipients configured" {
		t.Fatalf("expected a skipped test notification, got %v, %q, %v", sent, message, err)
	}
}

func TestNewTransportFromConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	for transport, want := range map[string]string{config.TransportSMTP: "smtp", config.TransportNtfy: "ntfy"} {
		cfg.Notifications.Transport = transport
		tr, err := daemon.NewTransport(cfg)
		if err != nil {
			t.Fatalf("NewTransport(%s): %v", transport, err)
		}
		if tr.Name() != want {
			t.Fatalf("NewTransport(%s) name = %q", transport, tr.Name())
		}
	}
	cfg.Notifications.Transport = "pigeon"
	if _, err := daemon.NewTransport(cfg); err == nil {
		t.Fatal("expected unsupported transport error")
	}
}
