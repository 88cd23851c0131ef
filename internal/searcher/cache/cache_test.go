package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/searcher/result"
)

type memStore struct {
	mu   sync.Mutex
	data map[string]string
	down bool
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]string)}
}

var errDown = errors.New("connection refused")

func (s *memStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return "", false, errDown
	}
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return errDown
	}
	s.data[key] = string(value)
	return nil
}

func (s *memStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var n int64
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

func sample() *result.Container {
	return result.FromResults([]result.Result{{FileName: "a.go", Score: 1.5}}, 4)
}

func TestGetOrComputeCaches(t *testing.T) {
	c := New(newMemStore(), time.Minute, nil)
	key := Key("idx1", "exact", "foo", 10)
	calls := 0
	compute := func() (*result.Container, error) {
		calls++
		return sample(), nil
	}

	res, hit, err := c.GetOrCompute(context.Background(), key, compute)
	require.NoError(t, err)
	require.False(t, hit)
	require.Equal(t, 1, res.NumberOfHits())

	res, hit, err = c.GetOrCompute(context.Background(), key, compute)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, 1, calls)
	require.Equal(t, 4, res.TotalMatches())
	require.Equal(t, sample().Results(), res.Results())

	hits, misses := c.Stats()
	require.Equal(t, int64(1), hits)
	require.Equal(t, int64(2), misses)
}

func TestKeyDependsOnEveryPart(t *testing.T) {
	base := Key("idx", "exact", "foo", 10)
	require.NotEqual(t, base, Key("idx2", "exact", "foo", 10))
	require.NotEqual(t, base, Key("idx", "wildcard", "foo", 10))
	require.NotEqual(t, base, Key("idx", "exact", "fo", 10))
	require.NotEqual(t, base, Key("idx", "exact", "foo", 11))
	require.True(t, strings.HasPrefix(base, keyPrefix+"idx:"))
}

func TestBackendFailureFallsThrough(t *testing.T) {
	store := newMemStore()
	store.down = true
	c := New(store, time.Minute, nil)

	for range 5 {
		res, hit, err := c.GetOrCompute(context.Background(), Key("i", "exact", "x", 1), func() (*result.Container, error) {
			return sample(), nil
		})
		require.NoError(t, err)
		require.False(t, hit)
		require.Equal(t, 1, res.NumberOfHits())
	}
}

func TestComputeErrorPropagates(t *testing.T) {
	c := New(newMemStore(), time.Minute, nil)
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), "k", func() (*result.Container, error) { return nil, boom })
	require.ErrorIs(t, err, boom)
}

func TestInvalidate(t *testing.T) {
	store := newMemStore()
	c := New(store, time.Minute, nil)
	compute := func() (*result.Container, error) { return sample(), nil }
	_, _, _ = c.GetOrCompute(context.Background(), Key("old", "exact", "a", 1), compute)
	_, _, _ = c.GetOrCompute(context.Background(), Key("new", "exact", "a", 1), compute)

	require.NoError(t, c.Invalidate(context.Background(), "old"))
	require.Len(t, store.data, 1)
}
