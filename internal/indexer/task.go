package indexer

import "context"

// Task is a build running in the background.
type Task struct {
	done  chan struct{}
	stats Stats
	err   error
}

// Start runs CreateIndex in a new goroutine. If closeWhenDone is true the
// writer is closed after the build, and a close error is reported by Wait
// when the build itself succeeded.
func (w *Writer) Start(ctx context.Context, closeWhenDone bool) *Task {
	t := &Task{done: make(chan struct{})}
	go func() {
		defer close(t.done)
		t.stats, t.err = w.CreateIndex(ctx)
		if closeWhenDone {
			if err := w.Close(); err != nil && t.err == nil {
				t.err = err
			}
		}
	}()
	return t
}

// Done is closed when the build has finished.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the build finishes and returns its outcome.
func (t *Task) Wait() (Stats, error) {
	<-t.done
	return t.stats, t.err
}

// Failed returns a task that has already finished with err. It lets callers
// report setup errors through the same Task interface.
func Failed(err error) *Task {
	t := &Task{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}
