package collection

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Task is one background indexing run.
type Task struct {
	Full      bool
	StartedAt time.Time

	cancel  context.CancelFunc
	done    chan struct{}
	running atomic.Bool

	mu  sync.Mutex
	err error
}

func newTask(full bool, cancel context.CancelFunc) *Task {
	t := &Task{
		Full:      full,
		StartedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	t.running.Store(true)
	return t
}

// Running reports whether the task has not finished yet.
func (t *Task) Running() bool { return t.running.Load() }

// Err returns the task's error once it has finished: nil on success, ErrStopped when it was
// stopped, or the failure.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Done is closed when the task finishes.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task finishes or ctx is done, and returns the task's error or ctx's.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitTimeout waits up to d and reports whether the task finished.
func (t *Task) WaitTimeout(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-t.done:
		return true
	case <-timer.C:
		return false
	}
}

func (t *Task) stop() { t.cancel() }

func (t *Task) finish(err error) {
	t.mu.Lock()
	t.err = err
	t.mu.Unlock()
	t.running.Store(false)
	t.cancel()
	close(t.done)
}
