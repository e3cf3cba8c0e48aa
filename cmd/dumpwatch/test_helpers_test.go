package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dumpwatch/internal/config"
	"dumpwatch/internal/daemon"
	"dumpwatch/internal/dedup"
	"dumpwatch/internal/ipc"
	"dumpwatch/internal/logging"
	"dumpwatch/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	store      *dedup.Store
	daemon     *daemon.Daemon
	server     *ipc.Server
	transport  *testsupport.FakeTransport
	socketPath string
	configPath string
	baseDir    string
	cancel     context.CancelFunc
}

// setupCLITestEnv runs an in-process daemon behind a real IPC socket.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	configPath := filepath.Join(homeDir, ".config", "dumpwatch", "config.toml")
	testsupport.WriteConfigFile(t, configPath, cfg)
	provider, err := config.NewProvider(configPath)
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}

	store := testsupport.MustOpenDedup(t, cfg)
	transport := testsupport.NewFakeTransport()
	logger := logging.NewNop()
	d, err := daemon.New(cfg, store, logger, daemon.WithTransport(transport), daemon.WithProvider(provider))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- d.Run(ctx) }()

	socketPath := cfg.SocketPath()
	srv, err := ipc.NewServer(ctx, socketPath, d, logger)
	if err != nil {
		cancel()
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	env := &cliTestEnv{
		cfg:        cfg,
		store:      store,
		daemon:     d,
		server:     srv,
		transport:  transport,
		socketPath: socketPath,
		configPath: configPath,
		baseDir:    base,
		cancel:     cancel,
	}

	t.Cleanup(func() {
		cancel()
		srv.Close()
		<-runDone
		d.Close()
	})

	waitFor(t, 2*time.Second, func() bool { return d.Status(context.Background()).Running })
	return env
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
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

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
