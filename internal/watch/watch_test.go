package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRebuildAfterChange(t *testing.T) {
	root := t.TempDir()
	idx := filepath.Join(root, ".codesearch")
	require.NoError(t, os.MkdirAll(idx, 0o755))

	var rebuilds atomic.Int32
	w, err := New(root, []string{".go"}, 50*time.Millisecond, func(context.Context) error {
		rebuilds.Add(1)
		return nil
	}, idx)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, os.WriteFile(filepath.Join(idx, "seg.go"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))
	time.Sleep(150 * time.Millisecond)
	require.Zero(t, rebuilds.Load(), "excluded and unrelated files must not trigger")

	for i := range 3 {
		require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte{byte('a' + i)}, 0o644))
	}
	require.Eventually(t, func() bool { return rebuilds.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestNewMissingRoot(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"), []string{".go"}, 0, func(context.Context) error { return nil })
	require.Error(t, err)
}
