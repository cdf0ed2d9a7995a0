package infra

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetWorkDirCreatesNestedDirs(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	dir, err := GetWorkDir(base, "a", "b")
	if err != nil {
		t.Fatalf("get work dir: %v", err)
	}
	if dir != filepath.Join(base, "a", "b") {
		t.Fatalf("unexpected dir %q", dir)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("dir not created: %v", err)
	}
}

func TestGoRecoverableRestartsAfterPanic(t *testing.T) {
	t.Parallel()

	var runs atomic.Int32
	done := make(chan struct{})
	GoRecoverable(1, "test", func() {
		if runs.Add(1) == 1 {
			panic("first run")
		}
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("job was not restarted")
	}
}

func TestMonitorFileSignalsOnChange(t *testing.T) {
	t.Parallel()

	filename := filepath.Join(t.TempDir(), "bin")
	if err := os.WriteFile(filename, []byte("v1"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := monitorFile(ctx, filename, 10*time.Millisecond)
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(filename, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	select {
	case _, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed without signal")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("change not detected")
	}
}

func TestMonitorFileMissingClosesChannel(t *testing.T) {
	t.Parallel()

	ch := monitorFile(context.Background(), filepath.Join(t.TempDir(), "missing"), time.Hour)
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("unexpected change signal")
		}
	default:
		t.Fatalf("channel must be closed before monitorFile returns")
	}
}
