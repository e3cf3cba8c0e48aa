package ipc_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dumpwatch/internal/daemon"
	"dumpwatch/internal/ipc"
	"dumpwatch/internal/logging"
	"dumpwatch/internal/testsupport"
)

func TestIPCServerClient(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := testsupport.MustOpenDedup(t, cfg)
	logger := logging.NewNop()
	transport := testsupport.NewFakeTransport()
	d, err := daemon.New(cfg, store, logger, daemon.WithTransport(transport))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- d.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-runDone
	})

	srv, err := ipc.NewServer(ctx, cfg.SocketPath(), d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(func() {
		srv.Close()
	})

	client, err := ipc.Dial(cfg.SocketPath())
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})

	testsupport.WriteFile(t, filepath.Join(cfg.Paths.WatchDir, "a.dmp"), 32)
	check, err := client.Check()
	if err != nil {
		t.Fatalf("Check RPC failed: %v", err)
	}
	if !check.Ran || check.Found != 1 || check.Archived != 1 {
		t.Fatalf("unexpected check response %+v", check)
	}

	var startResp *ipc.StartResponse
	deadline := time.Now().Add(2 * time.Second)
	for {
		startResp, err = client.Start()
		if err != nil {
			t.Fatalf("Start RPC failed: %v", err)
		}
		if startResp.Started || time.Now().After(deadline) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if !startResp.Started {
		t.Fatalf("expected Started=true, message=%s", startResp.Message)
	}
	again, err := client.Start()
	if err != nil {
		t.Fatalf("second Start RPC failed: %v", err)
	}
	if again.Started || !strings.Contains(again.Message, "already running") {
		t.Fatalf("expected already running message, got %+v", again)
	}

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running || status.WatchDir != cfg.Paths.WatchDir || status.Transport != "fake" {
		t.Fatalf("unexpected status %+v", status)
	}
	if status.DedupEntries != 1 || status.PID == 0 {
		t.Fatalf("unexpected dedup entries or pid in %+v", status)
	}

	list, err := client.DedupList()
	if err != nil {
		t.Fatalf("DedupList RPC failed: %v", err)
	}
	if len(list.Entries) != 1 || list.Entries[0].Name != "a.dmp" || list.Entries[0].RecordedAt == "" {
		t.Fatalf("unexpected dedup entries %+v", list.Entries)
	}
	forget, err := client.DedupForget("a.dmp")
	if err != nil || !forget.Removed {
		t.Fatalf("DedupForget = %+v, %v", forget, err)
	}
	if _, err := client.DedupForget(""); err == nil {
		t.Fatal("expected DedupForget with empty name to fail")
	}
	cleared, err := client.DedupClear()
	if err != nil || cleared.Removed != 0 {
		t.Fatalf("DedupClear = %+v, %v", cleared, err)
	}

	notifyResp, err := client.TestNotification()
	if err != nil || !notifyResp.Sent {
		t.Fatalf("TestNotification = %+v, %v", notifyResp, err)
	}

	if _, err := client.Reload(); err == nil || !strings.Contains(err.Error(), "reload unavailable") {
		t.Fatalf("expected reload unavailable error, got %v", err)
	}

	stopResp, err := client.Stop()
	if err != nil {
		t.Fatalf("Stop RPC failed: %v", err)
	}
	if !stopResp.Stopped || !stopResp.WasRunning {
		t.Fatalf("unexpected stop response %+v", stopResp)
	}
	status, err = client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if status.State != "stopped" {
		t.Fatalf("expected stopped state, got %s", status.State)
	}
}
