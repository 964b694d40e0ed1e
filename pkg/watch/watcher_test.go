package watch

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startWatcher runs a watcher over dir until the test ends.
func startWatcher(t *testing.T, dir string, debounce time.Duration) <-chan Batch {
	t.Helper()
	w, err := NewWatcher(dir, debounce, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan Batch, 10)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx, out)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = w.Close()
	})
	return out
}

func TestWatcher_CreateFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "init.go", "package p\n")
	out := startWatcher(t, dir, 50*time.Millisecond)

	writeFile(t, dir, "new.go", "package p\nfunc New() {}\n")

	b := waitForBatch(t, out, 2*time.Second)
	assert.Contains(t, b.Paths, filepath.Join(dir, "new.go"))
	assert.False(t, b.Module)
}

func TestWatcher_ModifyFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.go", "package p\n")
	out := startWatcher(t, dir, 50*time.Millisecond)

	writeFile(t, dir, "main.go", "package p\nfunc Hello() {}\n")

	b := waitForBatch(t, out, 2*time.Second)
	assert.Contains(t, b.Paths, filepath.Join(dir, "main.go"))
}

func TestWatcher_DeleteFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "del.go", "package p\n")
	out := startWatcher(t, dir, 50*time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(dir, "del.go")))

	b := waitForBatch(t, out, 2*time.Second)
	assert.Contains(t, b.Paths, filepath.Join(dir, "del.go"))
}

func TestWatcher_IgnoresFilesOutsideProgram(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "init.go", "package p\n")
	writeFile(t, dir, ".gitignore", "gen_*.go\n")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "testdata"), 0o755))
	out := startWatcher(t, dir, 50*time.Millisecond)

	writeFile(t, dir, "readme.md", "hello")
	writeFile(t, dir, "gen_api.go", "package p\n")
	writeFile(t, filepath.Join(dir, "testdata"), "fixture.go", "package fixture\n")

	select {
	case b := <-out:
		t.Fatalf("expected no batch, got %v", b.Paths)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestWatcher_GoModChange(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "go.mod", "module example.com/m\n")
	out := startWatcher(t, dir, 50*time.Millisecond)

	writeFile(t, dir, "go.mod", "module example.com/m\n\ngo 1.25\n")

	b := waitForBatch(t, out, 2*time.Second)
	assert.True(t, b.Module)
}

func TestWatcher_NewDirectory(t *testing.T) {
	dir := t.TempDir()
	out := startWatcher(t, dir, 100*time.Millisecond)

	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	writeFile(t, sub, "sub.go", "package sub\n")

	b := waitForBatch(t, out, 2*time.Second)
	assert.Contains(t, b.Paths, filepath.Join(sub, "sub.go"))
}

func TestWatcher_DebounceCoalescesEvents(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "init.go", "package p\n")
	out := startWatcher(t, dir, 200*time.Millisecond)

	for i := range 5 {
		writeFile(t, dir, "rapid.go", "package p\n// v"+string(rune('0'+i))+"\n")
		time.Sleep(20 * time.Millisecond)
	}

	b := waitForBatch(t, out, 2*time.Second)
	assert.Equal(t, []string{filepath.Join(dir, "rapid.go")}, b.Paths)
}

func TestWatcher_ContextCancellationStops(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir, 50*time.Millisecond, testLogger())
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, make(chan Batch)) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func waitForBatch(t *testing.T, ch <-chan Batch, timeout time.Duration) Batch {
	t.Helper()
	select {
	case b := <-ch:
		return b
	case <-time.After(timeout):
		t.Fatal("timed out waiting for batch")
		return Batch{}
	}
}
