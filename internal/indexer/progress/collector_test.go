package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/codesearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/codesearch/pkg/resilience"
)

type fakeSink struct {
	mu       sync.Mutex
	events   []kafka.Event
	failures int
}

func (s *fakeSink) PublishBatch(_ context.Context, events []kafka.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("broker unavailable")
	}
	s.events = append(s.events, events...)
	return nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func fastConfig() CollectorConfig {
	return CollectorConfig{
		BatchSize:     2,
		FlushInterval: time.Hour,
		Retry:         resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond},
	}
}

func TestCollectorRoutesEvents(t *testing.T) {
	files, done := &fakeSink{}, &fakeSink{}
	c := NewCollector(files, done, fastConfig())
	c.Start(context.Background())

	c.Publish(Event{Type: TypeFileIndexed, BuildID: "b1", File: "a.go"})
	c.Publish(Event{Type: TypeFileIndexed, BuildID: "b1", File: "b.go"})
	c.Publish(Event{Type: TypeFileIndexed, BuildID: "b1", File: "c.go"})
	c.Publish(Event{Type: TypeCompleted, BuildID: "b1", FileCount: 3})
	c.Close()

	require.Equal(t, 3, files.count())
	require.Equal(t, 1, done.count())
	require.Zero(t, c.Pending())

	ev := done.events[0]
	require.Equal(t, "b1", ev.Key)
	require.Equal(t, int64(3), ev.Value.(Event).FileCount)
	require.False(t, ev.Value.(Event).Time.IsZero())
}

func TestCollectorRetriesFailedBatch(t *testing.T) {
	files := &fakeSink{failures: 2}
	c := NewCollector(files, nil, fastConfig())
	c.Start(context.Background())
	c.Publish(Event{Type: TypeFileIndexed, BuildID: "b2", File: "x"})
	c.Close()
	require.Equal(t, 1, files.count())
}

func TestCollectorCloseIsIdempotent(t *testing.T) {
	c := NewCollector(&fakeSink{}, &fakeSink{}, fastConfig())
	c.Start(context.Background())
	c.Close()
	c.Close()
}
