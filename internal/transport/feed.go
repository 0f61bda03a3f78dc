package transport

import "sync"

// Feed is a buffered channel that can be closed while producers are still
// pushing. Push blocks until the value is buffered, done fires, or the feed
// is closed.
type Feed[T any] struct {
	ch       chan T
	done     <-chan struct{}
	stop     chan struct{}
	stopOnce sync.Once

	mu     sync.Mutex
	closed bool
}

func NewFeed[T any](done <-chan struct{}, size int) *Feed[T] {
	return &Feed[T]{
		ch:   make(chan T, size),
		done: done,
		stop: make(chan struct{}),
	}
}

func (f *Feed[T]) C() <-chan T {
	return f.ch
}

func (f *Feed[T]) Push(v T) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}

	select {
	case f.ch <- v:
		return true
	case <-f.done:
		return false
	case <-f.stop:
		return false
	}
}

func (f *Feed[T]) Close() {
	f.stopOnce.Do(func() { close(f.stop) })

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	close(f.ch)
}
