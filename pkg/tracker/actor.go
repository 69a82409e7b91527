package tracker

import (
	"context"
	"sync"
)

// Actor serializes tracker writes from many goroutines. Workers call
// Progress; a single goroutine applies the notes in order.
type Actor struct {
	t       *Tracker
	ch      chan string
	done    chan struct{}
	closing sync.Once

	mu      sync.Mutex
	lastErr error
}

// NewActor starts the goroutine that owns t. ctx bounds the writes it makes.
func NewActor(ctx context.Context, t *Tracker, buffer int) *Actor {
	a := &Actor{
		t:    t,
		ch:   make(chan string, buffer),
		done: make(chan struct{}),
	}
	go a.run(ctx)
	return a
}

func (a *Actor) run(ctx context.Context) {
	defer close(a.done)
	for notes := range a.ch {
		if err := a.t.Progress(ctx, notes); err != nil {
			a.t.logger.Warn("Failed to record progress", "job", a.t.job.Name, "error", err)
			a.mu.Lock()
			a.lastErr = err
			a.mu.Unlock()
		}
	}
}

// Progress queues a notes update. It must not be called after Close.
func (a *Actor) Progress(notes string) {
	a.ch <- notes
}

// Close stops accepting updates, waits for queued ones to be written and
// returns the last write error, if any. The tracker may be used directly
// afterwards.
func (a *Actor) Close() error {
	a.closing.Do(func() { close(a.ch) })
	<-a.done
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}
