package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nextItem(t *testing.T, items <-chan Item) Item {
	t.Helper()
	select {
	case it := <-items:
		return it
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watch event")
		return Item{}
	}
}

func TestWatch_EmitsNewFiles(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	items, _, err := Watch(ctx, root, WatchOptions{Debounce: 20 * time.Millisecond})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "ignored.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "inv.pdf"), []byte("%PDF-1.7"), 0o644))

	it := nextItem(t, items)
	assert.Equal(t, "inv.pdf", it.Name)
	assert.Equal(t, int64(8), it.Size)
}

func TestWatch_InitialScanAndSubdirectories(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "existing.pdf"), "%PDF")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	items, _, err := Watch(ctx, root, WatchOptions{InitialScan: true, Debounce: 20 * time.Millisecond})
	require.NoError(t, err)

	assert.Equal(t, "existing.pdf", nextItem(t, items).Name)

	sub := filepath.Join(root, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	// Give the watcher a moment to register the new directory.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "new.png"), []byte("png"), 0o644))

	assert.Equal(t, "new.png", nextItem(t, items).Name)
}

func TestWatch_ClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	items, errs, err := Watch(ctx, t.TempDir(), WatchOptions{})
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-items:
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("items channel not closed")
	}
	_, ok := <-errs
	assert.False(t, ok)
}

func TestWatch_MissingRoot(t *testing.T) {
	_, _, err := Watch(context.Background(), "/nonexistent/root", WatchOptions{})
	assert.Error(t, err)
}
