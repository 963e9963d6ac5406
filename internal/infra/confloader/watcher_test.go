package confloader

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

const testDebounce = 50 * time.Millisecond

// startWatcher runs a watcher on path and returns a change counter.
func startWatcher(t *testing.T, path string) *atomic.Int32 {
	t.Helper()
	w, err := NewFileWatcher(path, WithWatcherDebounce(testDebounce))
	if err != nil {
		t.Fatalf("NewFileWatcher() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	var n atomic.Int32
	go func() { done <- w.Run(ctx, func() { n.Add(1) }) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run() = %v after cancel", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("Run did not return after cancel")
		}
	})
	return &n
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestNewFileWatcher_MissingDir(t *testing.T) {
	if _, err := NewFileWatcher(filepath.Join(t.TempDir(), "gone", "memkv.yaml")); err == nil {
		t.Error("expected error for a missing directory")
	}
}

func TestFileWatcher_CoalescesWrites(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	n := startWatcher(t, path)

	for _, level := range []string{"debug", "info", "warn"} {
		if err := os.WriteFile(path, []byte("log:\n  level: "+level+"\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	waitFor(t, func() bool { return n.Load() > 0 })
	time.Sleep(4 * testDebounce)
	if got := n.Load(); got != 1 {
		t.Errorf("changes reported = %d, want 1 for one burst", got)
	}
}

func TestFileWatcher_RenameOver(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	n := startWatcher(t, path)

	tmp := path + ".swp"
	if err := os.WriteFile(tmp, []byte("log:\n  level: error\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return n.Load() > 0 })
}

func TestFileWatcher_IgnoresSiblings(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	n := startWatcher(t, path)

	if err := os.WriteFile(filepath.Join(filepath.Dir(path), "other.yaml"), []byte("x: 1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * testDebounce)
	if got := n.Load(); got != 0 {
		t.Errorf("changes reported = %d for a sibling file", got)
	}
}
