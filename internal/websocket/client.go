package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/prappser/prappser_cdn/internal/transport"
	"github.com/rs/zerolog/log"
)

const (
	writeTimeout   = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 32 << 20
	sendBufferSize = 256
)

// Client is one session connected to the broker.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	remote string
	send   chan []byte

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once

	subscriptions map[string]string // session subscription id -> router id
	queryables    map[string]string // session queryable id -> router id
	pending       map[string]*transport.Query
	mu            sync.Mutex
}

func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		hub:           hub,
		conn:          conn,
		remote:        conn.RemoteAddr().String(),
		send:          make(chan []byte, sendBufferSize),
		ctx:           ctx,
		cancel:        cancel,
		subscriptions: make(map[string]string),
		queryables:    make(map[string]string),
		pending:       make(map[string]*transport.Query),
	}
}

// shutdown drops the client's routes and releases queriers waiting on its
// queryables.
func (c *Client) shutdown() {
	c.stopOnce.Do(func() {
		c.cancel()

		c.mu.Lock()
		for _, id := range c.subscriptions {
			c.hub.router.Unsubscribe(id)
		}
		for _, id := range c.queryables {
			c.hub.router.UndeclareQueryable(id)
		}
		pending := c.pending
		c.pending = make(map[string]*transport.Query)
		c.mu.Unlock()

		for _, q := range pending {
			q.Finish()
		}
	})
}

// enqueue blocks until the frame is buffered or the client goes away.
func (c *Client) enqueue(f *Frame) bool {
	data, err := encodeFrame(f, c.hub.compress)
	if err != nil {
		log.Error().Err(err).Str("remote", c.remote).Msg("[WS] Failed to encode frame")
		return false
	}

	select {
	case c.send <- data:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.shutdown()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Debug().
					Str("remote", c.remote).
					Err(err).
					Msg("[WS] Read error")
			} else {
				log.Debug().
					Str("remote", c.remote).
					Msg("[WS] Client disconnected")
			}
			return
		}

		frame, err := decodeFrame(data)
		if err != nil {
			log.Warn().Err(err).Str("remote", c.remote).Msg("[WS] Dropping undecodable frame")
			continue
		}
		c.handleFrame(frame)
	}
}

func (c *Client) handleFrame(f *Frame) {
	switch f.Type {
	case FrameTypePut, FrameTypeDelete:
		c.hub.router.Publish(f.change())

	case FrameTypeSubscribe:
		subID := f.ID
		routerID := c.hub.router.Subscribe(f.Key, func(change transport.Change) {
			frame := valueFrame(FrameTypeSample, subID, change.Key, change.Value)
			frame.Kind = uint8(change.Kind)
			c.enqueue(frame)
		})
		c.mu.Lock()
		c.subscriptions[subID] = routerID
		c.mu.Unlock()

	case FrameTypeUnsubscribe:
		c.mu.Lock()
		routerID, ok := c.subscriptions[f.ID]
		delete(c.subscriptions, f.ID)
		c.mu.Unlock()
		if ok {
			c.hub.router.Unsubscribe(routerID)
		}

	case FrameTypeDeclareQueryable:
		target := f.ID
		routerID := c.hub.router.DeclareQueryable(f.Key, func(q *transport.Query) {
			c.forwardQuery(target, q)
		})
		c.mu.Lock()
		c.queryables[target] = routerID
		c.mu.Unlock()

	case FrameTypeUndeclareQueryable:
		c.mu.Lock()
		routerID, ok := c.queryables[f.ID]
		delete(c.queryables, f.ID)
		c.mu.Unlock()
		if ok {
			c.hub.router.UndeclareQueryable(routerID)
		}

	case FrameTypeReply:
		c.mu.Lock()
		q := c.pending[f.ID]
		c.mu.Unlock()
		if q == nil {
			log.Debug().Str("queryId", f.ID).Msg("[WS] Reply for unknown query")
			return
		}
		if err := q.Reply(f.Key, f.value()); err != nil {
			log.Debug().Err(err).Str("queryId", f.ID).Msg("[WS] Late reply dropped")
		}

	case FrameTypeQueryDone:
		c.mu.Lock()
		q := c.pending[f.ID]
		delete(c.pending, f.ID)
		c.mu.Unlock()
		if q != nil {
			q.Finish()
		}

	case FrameTypeGet:
		// Replies may come back over this same connection, so the read pump
		// must keep running while the get is in flight.
		go c.serveGet(f.ID, f.Key)

	default:
		log.Debug().
			Str("type", string(f.Type)).
			Msg("[WS] Unknown frame type")
	}
}

func (c *Client) forwardQuery(target string, q *transport.Query) {
	queryID := uuid.NewString()

	c.mu.Lock()
	c.pending[queryID] = q
	c.mu.Unlock()

	if !c.enqueue(&Frame{Type: FrameTypeQuery, ID: queryID, Target: target, Key: q.Selector()}) {
		c.mu.Lock()
		delete(c.pending, queryID)
		c.mu.Unlock()
		q.Finish()
	}
}

func (c *Client) serveGet(getID, selector string) {
	replies, err := c.hub.router.Get(c.ctx, selector)
	if err != nil {
		c.enqueue(&Frame{Type: FrameTypeError, ID: getID, Error: err.Error()})
		return
	}
	for _, reply := range replies {
		if !c.enqueue(valueFrame(FrameTypeReply, getID, reply.Key, reply.Value)) {
			return
		}
	}
	c.enqueue(&Frame{Type: FrameTypeGetDone, ID: getID})

	log.Trace().
		Str("selector", selector).
		Int("replies", len(replies)).
		Msg("[WS] Get served")
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				log.Debug().
					Str("remote", c.remote).
					Err(err).
					Msg("[WS] Write error")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().
					Str("remote", c.remote).
					Err(err).
					Msg("[WS] Ping error")
				return
			}

		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
