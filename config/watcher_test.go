package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []FileEvent
}

func (r *eventRecorder) record(e FileEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) lastOp() (FileOp, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return 0, false
	}
	return r.events[len(r.events)-1].Op, true
}

func startWatcher(t *testing.T, path string) (*FileWatcher, *eventRecorder) {
	t.Helper()
	w, err := NewFileWatcher(
		[]string{path},
		WithPollInterval(10*time.Millisecond),
		WithDebounceDelay(20*time.Millisecond),
		WithWatcherLogger(zaptest.NewLogger(t)),
	)
	require.NoError(t, err)

	rec := &eventRecorder{}
	w.OnChange(rec.record)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, w.Start(ctx))
	t.Cleanup(func() { _ = w.Stop() })
	return w, rec
}

// touch bumps the file's mod time explicitly so the change is visible even on
// filesystems with coarse timestamp granularity.
func touch(t *testing.T, path string, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	future := time.Now().Add(time.Duration(len(content)) * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))
}

func TestFileWatcher_WriteEvent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	touch(t, path, "a")

	_, rec := startWatcher(t, path)

	touch(t, path, "ab")
	require.Eventually(t, func() bool {
		op, ok := rec.lastOp()
		return ok && op == FileOpWrite
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFileWatcher_CreateAndRemoveEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	// Watching a path that does not exist yet is allowed.
	_, rec := startWatcher(t, path)

	touch(t, path, "a")
	require.Eventually(t, func() bool {
		op, ok := rec.lastOp()
		return ok && op == FileOpCreate
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(path))
	require.Eventually(t, func() bool {
		op, ok := rec.lastOp()
		return ok && op == FileOpRemove
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFileWatcher_Lifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	touch(t, path, "a")

	w, err := NewFileWatcher([]string{path})
	require.NoError(t, err)
	assert.False(t, w.IsRunning())
	assert.Equal(t, []string{path}, w.Paths())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	assert.True(t, w.IsRunning())
	assert.Error(t, w.Start(ctx), "double start must fail")

	require.NoError(t, w.Stop())
	assert.False(t, w.IsRunning())
	require.NoError(t, w.Stop(), "stop is idempotent")
}
