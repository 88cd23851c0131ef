package searcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/codesearch/pkg/config"
)

func TestCloseWaitsForTimedOutQuery(t *testing.T) {
	src, idx := t.TempDir(), t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("needle"), 0o644))
	w, err := indexer.NewWriter(config.IndexerConfig{}, idx, src, []string{".txt"})
	require.NoError(t, err)
	_, err = w.CreateIndex(context.Background())
	require.NoError(t, err)
	require.NoError(t, w.Close())

	e, err := open(idx, []Option{WithTimeout(20 * time.Millisecond)})
	require.NoError(t, err)

	release := make(chan struct{})
	readErr := make(chan error, 1)
	// Ignores ctx and reads the segments only once released.
	slow := func(_ context.Context, pattern string) ([]index.PostingList, error) {
		<-release
		lists, err := e.termPostings(context.Background(), pattern)
		readErr <- err
		return lists, err
	}

	_, err = e.search(context.Background(), ModeExact, "needle", 1, slow)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	closed := make(chan error, 1)
	go func() { closed <- e.Close() }()
	select {
	case <-closed:
		t.Fatal("Close returned while a query was still reading segments")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-readErr)
	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return after the query finished")
	}
}
