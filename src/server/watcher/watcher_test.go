package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, files ...string) <-chan []FileChangeEvent {
	t.Helper()
	batches := make(chan []FileChangeEvent, 10)
	fw, err := NewFileWatcher(func(events []FileChangeEvent) {
		batches <- events
	}, WithDebounceDelay(50*time.Millisecond))
	require.NoError(t, err)

	for _, f := range files {
		require.NoError(t, fw.AddFile(f))
	}
	fw.Start()
	t.Cleanup(func() {
		assert.NoError(t, fw.Stop())
	})
	return batches
}

func nextBatch(t *testing.T, batches <-chan []FileChangeEvent) []FileChangeEvent {
	t.Helper()
	select {
	case b := <-batches:
		return b
	case <-time.After(5 * time.Second):
		t.Fatal("no file change events")
		return nil
	}
}

func TestReportsWritesToWatchedFiles(t *testing.T) {
	dir := t.TempDir()
	watched := filepath.Join(dir, "main.py")
	other := filepath.Join(dir, "other.py")
	require.NoError(t, os.WriteFile(watched, []byte("a\n"), 0644))
	require.NoError(t, os.WriteFile(other, []byte("a\n"), 0644))

	batches := startWatcher(t, watched)

	require.NoError(t, os.WriteFile(other, []byte("b\n"), 0644))
	require.NoError(t, os.WriteFile(watched, []byte("b\n"), 0644))
	require.NoError(t, os.WriteFile(watched, []byte("c\n"), 0644))

	batch := nextBatch(t, batches)
	require.Len(t, batch, 1)
	assert.Equal(t, watched, batch[0].Path)
	assert.Equal(t, "write", batch[0].Operation)
	assert.False(t, batch[0].Timestamp.IsZero())
}

func TestReportsRemovals(t *testing.T) {
	dir := t.TempDir()
	watched := filepath.Join(dir, "gone.ts")
	require.NoError(t, os.WriteFile(watched, []byte("x\n"), 0644))

	batches := startWatcher(t, watched)
	require.NoError(t, os.Remove(watched))

	batch := nextBatch(t, batches)
	require.Len(t, batch, 1)
	assert.Equal(t, "remove", batch[0].Operation)
}

func TestBatchesAreSortedByPath(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.go")
	b := filepath.Join(dir, "b.go")
	require.NoError(t, os.WriteFile(a, []byte("1\n"), 0644))
	require.NoError(t, os.WriteFile(b, []byte("1\n"), 0644))

	batches := startWatcher(t, b, a)
	require.NoError(t, os.WriteFile(b, []byte("2\n"), 0644))
	require.NoError(t, os.WriteFile(a, []byte("2\n"), 0644))

	var seen []string
	deadline := time.After(5 * time.Second)
	for len(seen) < 2 {
		select {
		case batch := <-batches:
			for _, e := range batch {
				seen = append(seen, e.Path)
			}
			if len(batch) == 2 {
				assert.Equal(t, a, batch[0].Path)
				assert.Equal(t, b, batch[1].Path)
			}
		case <-deadline:
			t.Fatalf("saw only %v", seen)
		}
	}
}

func TestAddFileMissingDirectory(t *testing.T) {
	fw, err := NewFileWatcher(nil)
	require.NoError(t, err)
	defer fw.Stop()

	err = fw.AddFile(filepath.Join(t.TempDir(), "missing", "x.py"))
	assert.Error(t, err)
}
