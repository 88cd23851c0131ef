// Package progress forwards index build events to an external topic. Events
// are buffered and flushed in batches so that a slow or absent broker never
// holds up the build.
package progress

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/codesearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/codesearch/pkg/resilience"
)

const (
	TypeFileIndexed = "file_indexed"
	TypeCompleted   = "index_completed"
)

// Event describes one step of a build. BuildID groups the events of a
// single CreateIndex run and is used as the partition key.
type Event struct {
	Type      string    `json:"type"`
	BuildID   string    `json:"build_id"`
	IndexPath string    `json:"index_path"`
	File      string    `json:"file,omitempty"`
	FileCount int64     `json:"file_count,omitempty"`
	ElapsedMS int64     `json:"elapsed_ms,omitempty"`
	Time      time.Time `json:"time"`
}

// Publisher receives build events. Publish must not block.
type Publisher interface {
	Publish(Event)
}

// Sink is the transport a Collector flushes to; *kafka.Producer satisfies it.
type Sink interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

type CollectorConfig struct {
	BatchSize     int
	FlushInterval time.Duration
	Retry         resilience.RetryConfig
}

// Collector batches events per sink. File events go to the progress sink,
// completion events to the completion sink.
type Collector struct {
	progress Sink
	complete Sink
	cfg      CollectorConfig
	logger   *slog.Logger

	mu       sync.Mutex
	files    []kafka.Event
	finished []kafka.Event

	flushMu sync.Mutex
	kick    chan struct{}
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func NewCollector(progress, complete Sink, cfg CollectorConfig) *Collector {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	return &Collector{
		progress: progress,
		complete: complete,
		cfg:      cfg,
		logger:   slog.Default().With("component", "progress-collector"),
		kick:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the background flush loop. It runs until Close is called or
// ctx is cancelled.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.cfg.FlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.flush(ctx)
			case <-c.kick:
				c.flush(ctx)
			case <-c.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	c.logger.Info("progress collector started",
		"batch_size", c.cfg.BatchSize,
		"flush_interval", c.cfg.FlushInterval,
	)
}

func (c *Collector) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	msg := kafka.Event{Key: e.BuildID, Value: e}

	c.mu.Lock()
	if e.Type == TypeCompleted {
		c.finished = append(c.finished, msg)
	} else {
		c.files = append(c.files, msg)
	}
	full := len(c.files) >= c.cfg.BatchSize || len(c.finished) > 0
	c.mu.Unlock()

	if full {
		select {
		case c.kick <- struct{}{}:
		default:
		}
	}
}

// Pending returns the number of buffered events.
func (c *Collector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.files) + len(c.finished)
}

// Close stops the loop and makes a final flush bounded by five seconds.
func (c *Collector) Close() {
	c.once.Do(func() {
		close(c.stop)
		<-c.done
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.flush(ctx)
	})
}

func (c *Collector) flush(ctx context.Context) {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	c.mu.Lock()
	files, finished := c.files, c.finished
	c.files, c.finished = nil, nil
	c.mu.Unlock()

	if len(files) > 0 {
		c.send(ctx, c.progress, files)
	}
	if len(finished) > 0 {
		c.send(ctx, c.complete, finished)
	}
}

// send delivers one batch with retry. A batch that still fails is dropped:
// progress events are advisory and must not grow without bound.
func (c *Collector) send(ctx context.Context, sink Sink, batch []kafka.Event) {
	if sink == nil {
		return
	}
	err := resilience.Retry(ctx, "publish-progress", c.cfg.Retry, func() error {
		return sink.PublishBatch(ctx, batch)
	})
	if err != nil {
		c.logger.Error("dropping progress events", "events", len(batch), "error", err)
		return
	}
	c.logger.Debug("progress events flushed", "events", len(batch))
}
