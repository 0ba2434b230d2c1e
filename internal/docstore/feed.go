package docstore

import (
	"context"
	"sync"
)

// Feed serializes deliveries to one listener on its own goroutine. Pushes
// coalesce: only the newest pending delivery runs, so a listener never sees
// an older snapshot after a newer one. Backends build subscriptions on it.
type Feed struct {
	mu      sync.Mutex
	pending func()
	signal  chan struct{}
	done    chan struct{}
	once    sync.Once
	onStop  func()
}

// NewFeed starts the delivery goroutine. onStop runs once when the feed is
// cancelled or ctx ends.
func NewFeed(ctx context.Context, onStop func()) *Feed {
	f := &Feed{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
		onStop: onStop,
	}
	go f.run(ctx)
	return f
}

// Push replaces the pending delivery.
func (f *Feed) Push(deliver func()) {
	f.mu.Lock()
	f.pending = deliver
	f.mu.Unlock()

	select {
	case f.signal <- struct{}{}:
	default:
	}
}

// Cancel stops the feed. It does not wait for an in-flight delivery, so it
// is safe to call from inside another listener.
func (f *Feed) Cancel() {
	f.once.Do(func() {
		close(f.done)
		if f.onStop != nil {
			f.onStop()
		}
	})
}

// Done is closed once the feed is cancelled.
func (f *Feed) Done() <-chan struct{} {
	return f.done
}

func (f *Feed) run(ctx context.Context) {
	defer f.Cancel()
	for {
		select {
		case <-f.done:
			return
		case <-ctx.Done():
			return
		case <-f.signal:
		}

		f.mu.Lock()
		deliver := f.pending
		f.pending = nil
		f.mu.Unlock()

		select {
		case <-f.done:
			return
		default:
		}
		if deliver != nil {
			deliver()
		}
	}
}
