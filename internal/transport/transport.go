// Package transport defines the key/value space the CDN runs on: publish,
// subscribe to changes, query with request/reply, and answer queries.
//
// Keys are '/'-separated strings. Patterns may use '*' for exactly one
// segment and '**' for any number of segments. Query selectors are concrete
// keys matched against queryable patterns.
//
// The in-process Bus implements Session for tests and single-binary setups;
// the websocket package implements it over the network.
package transport

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrQueryFinished = errors.New("query already finished")
	ErrClosed        = errors.New("session closed")
)

// Encoding tags a payload so receivers can tell chunk bytes from metadata.
type Encoding uint8

const (
	EncodingUnknown Encoding = iota
	EncodingBinary
	EncodingJSON
	EncodingText
)

func (e Encoding) String() string {
	switch e {
	case EncodingBinary:
		return "application/octet-stream"
	case EncodingJSON:
		return "application/json"
	case EncodingText:
		return "text/plain"
	default:
		return "unknown"
	}
}

type Value struct {
	Payload  []byte
	Encoding Encoding
}

func Binary(payload []byte) Value {
	return Value{Payload: payload, Encoding: EncodingBinary}
}

func JSON(payload []byte) Value {
	return Value{Payload: payload, Encoding: EncodingJSON}
}

type ChangeKind uint8

const (
	ChangePut ChangeKind = iota
	ChangeDelete
)

func (k ChangeKind) String() string {
	if k == ChangeDelete {
		return "delete"
	}
	return "put"
}

// Change is one publication observed by a subscriber. Value is empty for
// deletions.
type Change struct {
	Key   string
	Value Value
	Kind  ChangeKind
}

type Reply struct {
	Key   string
	Value Value
}

// Session is a connection to the key space.
type Session interface {
	// Put publishes value at key to every matching subscriber.
	Put(ctx context.Context, key string, value Value) error

	// Delete publishes a retraction of key.
	Delete(ctx context.Context, key string) error

	// Subscribe streams changes under pattern until ctx ends, then closes
	// the channel.
	Subscribe(ctx context.Context, pattern string) (<-chan Change, error)

	// Get sends a query to every queryable matching selector and returns
	// all replies once each of them has finished.
	Get(ctx context.Context, selector string) ([]Reply, error)

	// DeclareQueryable streams queries whose selector matches pattern
	// until ctx ends. Every received query must be finished.
	DeclareQueryable(ctx context.Context, pattern string) (<-chan *Query, error)

	Close() error
}

// Query is one inbound request. Reply may be called any number of times
// before Finish; Finish is idempotent.
type Query struct {
	selector string
	reply    func(Reply) error
	finish   func()

	mu       sync.Mutex
	finished bool
}

func NewQuery(selector string, reply func(Reply) error, finish func()) *Query {
	return &Query{selector: selector, reply: reply, finish: finish}
}

func (q *Query) Selector() string {
	return q.selector
}

func (q *Query) Reply(key string, value Value) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.finished {
		return ErrQueryFinished
	}
	return q.reply(Reply{Key: key, Value: value})
}

func (q *Query) Finish() {
	q.mu.Lock()
	if q.finished {
		q.mu.Unlock()
		return
	}
	q.finished = true
	q.mu.Unlock()
	q.finish()
}
