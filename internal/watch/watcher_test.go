package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestWatcherFiresOnChange(t *testing.T) {
	dir := t.TempDir()
	rulesPath := filepath.Join(dir, "rules.mg")
	otherPath := filepath.Join(dir, "notes.txt")
	writeFile(t, rulesPath, "path(X, Y) :- edge(X, Y).")
	writeFile(t, otherPath, "ignored")

	changes := make(chan []string, 4)
	w, err := New([]string{rulesPath}, func(ctx context.Context, changed []string) error {
		changes <- changed
		return nil
	}, WithDebounce(30*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()
	assert.True(t, w.IsWatching())

	writeFile(t, otherPath, "still ignored")
	writeFile(t, rulesPath, "path(X, Y) :- edge(Y, X).")

	select {
	case got := <-changes:
		abs, _ := filepath.Abs(rulesPath)
		assert.Equal(t, []string{abs}, got)
	case <-time.After(5 * time.Second):
		t.Fatal("handler was not called")
	}

	stats := w.Stats()
	assert.GreaterOrEqual(t, stats.Events, 1)
	assert.GreaterOrEqual(t, stats.Runs, 1)
}

func TestWatcherDebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "facts.yaml")
	writeFile(t, path, "edge: []")

	changes := make(chan []string, 16)
	w, err := New([]string{path}, func(ctx context.Context, changed []string) error {
		changes <- changed
		return nil
	}, WithDebounce(200*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	for i := 0; i < 5; i++ {
		writeFile(t, path, "edge: [[1, 2]]")
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-changes:
	case <-time.After(5 * time.Second):
		t.Fatal("handler was not called")
	}
	select {
	case extra := <-changes:
		t.Fatalf("burst fired more than once: %v", extra)
	case <-time.After(400 * time.Millisecond):
	}
}

func TestWatcherRecordsHandlerErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.mg")
	writeFile(t, path, "")

	boom := errors.New("boom")
	w, err := New([]string{path}, func(context.Context, []string) error { return boom })
	require.NoError(t, err)

	w.Trigger(context.Background())
	stats := w.Stats()
	assert.Equal(t, 1, stats.Runs)
	assert.Equal(t, 1, stats.Errors)
	assert.ErrorIs(t, stats.LastErr, boom)
	assert.Len(t, stats.LastChanged, 1)

	// Never started: Stop is a no-op, the fsnotify handle still needs closing.
	w.Stop()
	require.NoError(t, w.watcher.Close())
}

func TestWatcherStopsOnContextCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.mg")
	writeFile(t, path, "")

	w, err := New([]string{path}, func(context.Context, []string) error { return nil })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	cancel()

	select {
	case <-w.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("event loop did not exit")
	}
	w.Stop()
}

func TestNewRequiresFiles(t *testing.T) {
	_, err := New(nil, nil)
	assert.Error(t, err)
}
