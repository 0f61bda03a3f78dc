package transport

import (
	"context"
	"sync"
)

const feedBufferSize = 256

// Bus is an in-process key space. Sessions created from the same Bus see
// each other's publications and queryables.
type Bus struct {
	router *Router
}

func NewBus() *Bus {
	return &Bus{router: NewRouter()}
}

func (b *Bus) Router() *Router {
	return b.router
}

func (b *Bus) Session() Session {
	return &memorySession{router: b.router, closed: make(chan struct{})}
}

type memorySession struct {
	router    *Router
	closed    chan struct{}
	closeOnce sync.Once
}

func (s *memorySession) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *memorySession) Put(ctx context.Context, key string, value Value) error {
	if s.isClosed() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.router.Publish(Change{Key: key, Value: value, Kind: ChangePut})
	return nil
}

func (s *memorySession) Delete(ctx context.Context, key string) error {
	if s.isClosed() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.router.Publish(Change{Key: key, Kind: ChangeDelete})
	return nil
}

func (s *memorySession) Subscribe(ctx context.Context, pattern string) (<-chan Change, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	feed := NewFeed[Change](ctx.Done(), feedBufferSize)
	id := s.router.Subscribe(pattern, func(change Change) {
		feed.Push(change)
	})

	go func() {
		select {
		case <-ctx.Done():
		case <-s.closed:
		}
		s.router.Unsubscribe(id)
		feed.Close()
	}()
	return feed.C(), nil
}

func (s *memorySession) Get(ctx context.Context, selector string) ([]Reply, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	return s.router.Get(ctx, selector)
}

func (s *memorySession) DeclareQueryable(ctx context.Context, pattern string) (<-chan *Query, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	feed := NewFeed[*Query](ctx.Done(), feedBufferSize)
	id := s.router.DeclareQueryable(pattern, func(q *Query) {
		if !feed.Push(q) {
			q.Finish()
		}
	})

	go func() {
		select {
		case <-ctx.Done():
		case <-s.closed:
		}
		s.router.UndeclareQueryable(id)
		feed.Close()
		// Release queriers waiting on queries nobody will read.
		for q := range feed.C() {
			q.Finish()
		}
	}()
	return feed.C(), nil
}

func (s *memorySession) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}
