// Package poller runs a function on a fixed interval until cancelled and
// exposes the goroutine as an awaitable handle.
package poller

import (
	"context"
	"sync"
	"time"
)

// Func is invoked once per tick. It must return promptly once ctx is done.
type Func func(ctx context.Context)

// Task is a handle to a running poll loop.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Start runs fn immediately and then every interval until ctx is cancelled
// or Cancel is called.
func Start(ctx context.Context, interval time.Duration, fn Func) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(t.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		// Poll immediately on start.
		fn(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if ctx.Err() != nil {
					return
				}
				fn(ctx)
			}
		}
	}()

	return t
}

// Cancel requests the loop to stop. It does not wait.
func (t *Task) Cancel() {
	t.once.Do(t.cancel)
}

// Done is closed once the loop goroutine has exited.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Stop cancels the loop and waits for it to exit or for ctx to expire.
func (t *Task) Stop(ctx context.Context) error {
	t.Cancel()
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
