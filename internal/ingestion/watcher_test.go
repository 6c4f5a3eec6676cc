package ingestion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startWatcher runs the watcher in the background and returns a channel
// receiving every rescan.
func startWatcher(t *testing.T, dir string, debounce time.Duration) (<-chan []FileEntry, context.CancelFunc, <-chan error) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	changes := make(chan []FileEntry, 16)
	done := make(chan error, 1)
	go func() {
		done <- watchDataDir(ctx, dir, debounce, discardLogger(), func(entries []FileEntry) {
			changes <- entries
		})
	}()
	t.Cleanup(cancel)

	// Give the watcher time to register the directories.
	time.Sleep(100 * time.Millisecond)
	return changes, cancel, done
}

func waitForChange(t *testing.T, changes <-chan []FileEntry) []FileEntry {
	t.Helper()
	select {
	case entries := <-changes:
		return entries
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for data directory change")
		return nil
	}
}

func TestWatchDataDir(t *testing.T) {
	t.Parallel()

	t.Run("NewLogFile", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		writeFiles(t, dir, map[string]string{"orders.json": orderLogJSON})
		changes, _, _ := startWatcher(t, dir, 50*time.Millisecond)

		writeFiles(t, dir, map[string]string{"trucks.xml": truckLogXML})

		entries := waitForChange(t, changes)
		assert.Equal(t, []string{"orders.json", "trucks.xml"}, AvailableNames(entries))
	})

	t.Run("RemovedLogFile", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		writeFiles(t, dir, map[string]string{"orders.json": orderLogJSON, "trucks.xml": truckLogXML})
		changes, _, _ := startWatcher(t, dir, 50*time.Millisecond)

		require.NoError(t, os.Remove(filepath.Join(dir, "trucks.xml")))

		entries := waitForChange(t, changes)
		assert.Equal(t, []string{"orders.json"}, AvailableNames(entries))
	})

	t.Run("BurstIsDebounced", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		changes, _, _ := startWatcher(t, dir, 300*time.Millisecond)

		writeFiles(t, dir, map[string]string{
			"a.json": "{}",
			"b.json": "{}",
			"c.json": "{}",
		})

		entries := waitForChange(t, changes)
		assert.Len(t, entries, 3)
		select {
		case extra := <-changes:
			t.Fatalf("unexpected second rescan: %v", AvailableNames(extra))
		case <-time.After(600 * time.Millisecond):
		}
	})

	t.Run("IgnoresUnsupportedFiles", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		changes, _, _ := startWatcher(t, dir, 50*time.Millisecond)

		writeFiles(t, dir, map[string]string{"notes.txt": "x"})

		select {
		case entries := <-changes:
			t.Fatalf("unexpected rescan: %v", AvailableNames(entries))
		case <-time.After(300 * time.Millisecond):
		}
	})

	t.Run("StopsOnCancel", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		_, cancel, done := startWatcher(t, dir, 50*time.Millisecond)

		cancel()
		select {
		case err := <-done:
			assert.True(t, errors.Is(err, context.Canceled))
		case <-time.After(5 * time.Second):
			t.Fatal("watcher did not stop")
		}
	})
}

func TestWatchDataDir_MissingDir(t *testing.T) {
	t.Parallel()

	err := WatchDataDir(context.Background(), filepath.Join(t.TempDir(), "nope"), func([]FileEntry) {})
	assert.Error(t, err)
}
