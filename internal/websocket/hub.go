package websocket

import (
	"context"
	"sync"

	"github.com/prappser/prappser_cdn/internal/transport"
	"github.com/rs/zerolog/log"
)

// Hub is the broker side of the key space. It tracks connected clients and
// routes their publications and queries through a shared router.
type Hub struct {
	router     *transport.Router
	compress   bool
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
}

func NewHub(router *transport.Router, compress bool) *Hub {
	if router == nil {
		router = transport.NewRouter()
	}
	return &Hub{
		router:     router,
		compress:   compress,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				client.shutdown()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true

	log.Info().
		Str("remote", client.remote).
		Int("totalClients", len(h.clients)).
		Msg("[WS] Client registered")
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}

	delete(h.clients, client)
	client.shutdown()

	log.Info().
		Str("remote", client.remote).
		Int("totalClients", len(h.clients)).
		Msg("[WS] Client unregistered")
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.shutdown()
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) Router() *transport.Router {
	return h.router
}

func (h *Hub) GetStats() (totalClients, totalSubscriptions, totalQueryables int) {
	h.mu.RLock()
	totalClients = len(h.clients)
	h.mu.RUnlock()

	totalSubscriptions, totalQueryables = h.router.Stats()
	return
}
