package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/prappser/prappser_cdn/internal/transport"
	"github.com/rs/zerolog/log"
)

// Compile-time interface check.
var _ transport.Session = (*Session)(nil)

const feedBufferSize = 256

type pendingGet struct {
	replies []transport.Reply
	done    chan error
}

// Session is a transport.Session connected to a broker over a websocket.
type Session struct {
	conn     *websocket.Conn
	compress bool
	writeMu  sync.Mutex

	subscriptions map[string]*transport.Feed[transport.Change]
	queryables    map[string]*transport.Feed[*transport.Query]
	gets          map[string]*pendingGet
	mu            sync.Mutex

	closed    chan struct{}
	closeOnce sync.Once
}

// Dial connects to the broker at url (ws:// or wss://).
func Dial(ctx context.Context, url string, compress bool) (*Session, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   64 << 10,
		WriteBufferSize:  64 << 10,
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing broker %s: %w", url, err)
	}
	conn.SetReadLimit(maxMessageSize)

	s := &Session{
		conn:          conn,
		compress:      compress,
		subscriptions: make(map[string]*transport.Feed[transport.Change]),
		queryables:    make(map[string]*transport.Feed[*transport.Query]),
		gets:          make(map[string]*pendingGet),
		closed:        make(chan struct{}),
	}
	go s.readLoop()

	log.Debug().Str("url", url).Msg("[WS] Session connected")
	return s, nil
}

// Compressing reports whether large outgoing payloads are zstd compressed.
func (s *Session) Compressing() bool {
	return s.compress
}

func (s *Session) write(f *Frame) error {
	select {
	case <-s.closed:
		return transport.ErrClosed
	default:
	}

	data, err := encodeFrame(f, s.compress)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("writing %s frame: %w", f.Type, err)
	}
	return nil
}

func (s *Session) Put(ctx context.Context, key string, value transport.Value) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.write(valueFrame(FrameTypePut, "", key, value))
}

func (s *Session) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.write(&Frame{Type: FrameTypeDelete, Key: key, Kind: uint8(transport.ChangeDelete)})
}

func (s *Session) Subscribe(ctx context.Context, pattern string) (<-chan transport.Change, error) {
	id := uuid.NewString()
	feed := transport.NewFeed[transport.Change](ctx.Done(), feedBufferSize)

	s.mu.Lock()
	s.subscriptions[id] = feed
	s.mu.Unlock()

	if err := s.write(&Frame{Type: FrameTypeSubscribe, ID: id, Key: pattern}); err != nil {
		s.mu.Lock()
		delete(s.subscriptions, id)
		s.mu.Unlock()
		return nil, err
	}

	go func() {
		select {
		case <-ctx.Done():
			_ = s.write(&Frame{Type: FrameTypeUnsubscribe, ID: id})
		case <-s.closed:
		}
		s.mu.Lock()
		delete(s.subscriptions, id)
		s.mu.Unlock()
		feed.Close()
	}()
	return feed.C(), nil
}

func (s *Session) DeclareQueryable(ctx context.Context, pattern string) (<-chan *transport.Query, error) {
	id := uuid.NewString()
	feed := transport.NewFeed[*transport.Query](ctx.Done(), feedBufferSize)

	s.mu.Lock()
	s.queryables[id] = feed
	s.mu.Unlock()

	if err := s.write(&Frame{Type: FrameTypeDeclareQueryable, ID: id, Key: pattern}); err != nil {
		s.mu.Lock()
		delete(s.queryables, id)
		s.mu.Unlock()
		return nil, err
	}

	go func() {
		select {
		case <-ctx.Done():
			_ = s.write(&Frame{Type: FrameTypeUndeclareQueryable, ID: id})
		case <-s.closed:
		}
		s.mu.Lock()
		delete(s.queryables, id)
		s.mu.Unlock()
		feed.Close()
		for q := range feed.C() {
			q.Finish()
		}
	}()
	return feed.C(), nil
}

func (s *Session) Get(ctx context.Context, selector string) ([]transport.Reply, error) {
	id := uuid.NewString()
	pending := &pendingGet{done: make(chan error, 1)}

	s.mu.Lock()
	s.gets[id] = pending
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.gets, id)
		s.mu.Unlock()
	}()

	if err := s.write(&Frame{Type: FrameTypeGet, ID: id, Key: selector}); err != nil {
		return nil, err
	}

	select {
	case err := <-pending.done:
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		return pending.replies, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.closed:
		return nil, transport.ErrClosed
	}
}

func (s *Session) readLoop() {
	defer s.shutdown()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("[WS] Session read error")
			}
			return
		}

		frame, err := decodeFrame(data)
		if err != nil {
			log.Warn().Err(err).Msg("[WS] Session dropping undecodable frame")
			continue
		}
		s.handleFrame(frame)
	}
}

func (s *Session) handleFrame(f *Frame) {
	switch f.Type {
	case FrameTypeSample:
		s.mu.Lock()
		feed := s.subscriptions[f.ID]
		s.mu.Unlock()
		if feed != nil {
			feed.Push(f.change())
		}

	case FrameTypeQuery:
		s.mu.Lock()
		feed := s.queryables[f.Target]
		s.mu.Unlock()

		queryID := f.ID
		q := transport.NewQuery(f.Key,
			func(reply transport.Reply) error {
				return s.write(valueFrame(FrameTypeReply, queryID, reply.Key, reply.Value))
			},
			func() {
				if err := s.write(&Frame{Type: FrameTypeQueryDone, ID: queryID}); err != nil && !errors.Is(err, transport.ErrClosed) {
					log.Debug().Err(err).Str("queryId", queryID).Msg("[WS] Failed to finish query")
				}
			},
		)
		if feed == nil || !feed.Push(q) {
			q.Finish()
		}

	case FrameTypeReply:
		s.mu.Lock()
		if pending := s.gets[f.ID]; pending != nil {
			pending.replies = append(pending.replies, transport.Reply{Key: f.Key, Value: f.value()})
		}
		s.mu.Unlock()

	case FrameTypeGetDone, FrameTypeError:
		s.mu.Lock()
		pending := s.gets[f.ID]
		s.mu.Unlock()
		if pending == nil {
			return
		}
		var err error
		if f.Type == FrameTypeError {
			err = fmt.Errorf("broker: %s", f.Error)
		}
		pending.done <- err

	default:
		log.Debug().
			Str("type", string(f.Type)).
			Msg("[WS] Session received unknown frame type")
	}
}

func (s *Session) shutdown() {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
}

// Close disconnects from the broker. Open subscriptions and queryables end.
func (s *Session) Close() error {
	s.writeMu.Lock()
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()

	s.shutdown()
	return s.conn.Close()
}
