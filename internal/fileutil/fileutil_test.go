package fileutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCopyFileVerified(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "crash.dmp")
	dst := filepath.Join(dir, "copy.dmp")

	content := []byte("minidump payload")
	if err := os.WriteFile(src, content, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := CopyFileVerified(src, dst); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(content) {
		t.Fatalf("content mismatch: got %q, want %q", got, content)
	}
	if err := CopyFileVerified(src, dst); err == nil {
		t.Fatal("expected refusal to overwrite existing destination")
	}
}

func TestCopyFileVerifiedMissingSource(t *testing.T) {
	dir := t.TempDir()
	if err := CopyFileVerified(filepath.Join(dir, "nope"), filepath.Join(dir, "dst")); err == nil {
		t.Fatal("expected error for missing source")
	}
}

func TestMoveFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.dmp")
	dstDir := filepath.Join(dir, "archived")
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(src, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	dst := filepath.Join(dstDir, "a.dmp")
	if err := MoveFile(src, dst); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatal("expected source to be gone")
	}
	if _, err := os.Stat(dst); err != nil {
		t.Fatalf("expected destination: %v", err)
	}
}

func TestAvailablePath(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

	free, err := AvailablePath(dir, "a.dmp", now)
	if err != nil {
		t.Fatal(err)
	}
	if free != filepath.Join(dir, "a.dmp") {
		t.Fatalf("unexpected path %q", free)
	}

	if err := os.WriteFile(free, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	second, err := AvailablePath(dir, "a.dmp", now)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "a.20240301T123000.dmp"); second != want {
		t.Fatalf("got %q want %q", second, want)
	}

	if err := os.WriteFile(second, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	third, err := AvailablePath(dir, "a.dmp", now)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(third, "a.20240301T123000-1.dmp") {
		t.Fatalf("unexpected third candidate %q", third)
	}
}
