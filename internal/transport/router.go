package transport

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type subscriber struct {
	pattern string
	deliver func(Change)
}

type queryable struct {
	pattern string
	handle  func(*Query)
}

// Router matches publications against subscriptions and queries against
// queryables. It is shared by the in-process Bus and the websocket broker.
type Router struct {
	subscribers map[string]*subscriber
	queryables  map[string]*queryable
	mu          sync.RWMutex
}

func NewRouter() *Router {
	return &Router{
		subscribers: make(map[string]*subscriber),
		queryables:  make(map[string]*queryable),
	}
}

// Subscribe registers deliver for changes under pattern and returns the
// subscription id. deliver is called outside the router lock.
func (r *Router) Subscribe(pattern string, deliver func(Change)) string {
	id := uuid.NewString()

	r.mu.Lock()
	r.subscribers[id] = &subscriber{pattern: pattern, deliver: deliver}
	count := len(r.subscribers)
	r.mu.Unlock()

	log.Debug().
		Str("pattern", pattern).
		Int("subscribers", count).
		Msg("[ROUTER] Subscription added")
	return id
}

func (r *Router) Unsubscribe(id string) {
	r.mu.Lock()
	delete(r.subscribers, id)
	r.mu.Unlock()
}

// DeclareQueryable registers handle for queries matching pattern. handle
// must eventually finish every query it receives.
func (r *Router) DeclareQueryable(pattern string, handle func(*Query)) string {
	id := uuid.NewString()

	r.mu.Lock()
	r.queryables[id] = &queryable{pattern: pattern, handle: handle}
	count := len(r.queryables)
	r.mu.Unlock()

	log.Debug().
		Str("pattern", pattern).
		Int("queryables", count).
		Msg("[ROUTER] Queryable declared")
	return id
}

func (r *Router) UndeclareQueryable(id string) {
	r.mu.Lock()
	delete(r.queryables, id)
	r.mu.Unlock()
}

// Publish hands change to every matching subscriber in registration-independent
// order and returns how many received it.
func (r *Router) Publish(change Change) int {
	r.mu.RLock()
	targets := make([]*subscriber, 0, len(r.subscribers))
	for _, s := range r.subscribers {
		if Match(s.pattern, change.Key) {
			targets = append(targets, s)
		}
	}
	r.mu.RUnlock()

	for _, s := range targets {
		s.deliver(change)
	}

	log.Trace().
		Str("key", change.Key).
		Str("kind", change.Kind.String()).
		Int("recipients", len(targets)).
		Msg("[ROUTER] Change published")
	return len(targets)
}

// Get fans the query out and collects replies until every matching
// queryable has finished or ctx ends.
func (r *Router) Get(ctx context.Context, selector string) ([]Reply, error) {
	r.mu.RLock()
	targets := make([]*queryable, 0, len(r.queryables))
	for _, q := range r.queryables {
		if Match(q.pattern, selector) {
			targets = append(targets, q)
		}
	}
	r.mu.RUnlock()

	var (
		mu      sync.Mutex
		replies []Reply
	)
	done := make(chan struct{}, len(targets))
	for _, target := range targets {
		query := NewQuery(selector,
			func(reply Reply) error {
				mu.Lock()
				replies = append(replies, reply)
				mu.Unlock()
				return nil
			},
			func() { done <- struct{}{} },
		)
		target.handle(query)
	}

	for range targets {
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	mu.Lock()
	defer mu.Unlock()
	return replies, nil
}

func (r *Router) Stats() (subscriptions, queryables int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscribers), len(r.queryables)
}
