// README: Websocket hub: fans out frames, menu events and notices; new clients get the latest frame and menu replayed.
package ws

import (
	"context"
	"sort"
	"sync"

	"github.com/goccy/go-json"

	"parkmark/internal/logging"
	"parkmark/internal/metrics"
)

const (
	MessageTypeFrame  = "frame"
	MessageTypeMenu   = "menu"
	MessageTypeNotice = "notice"
	MessageTypePing   = "ping"
	MessageTypePong   = "pong"
)

// replayed message types are cached and sent to clients as they connect.
var replayed = map[string]bool{MessageTypeFrame: true, MessageTypeMenu: true}

type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	latestMu sync.Mutex
	latest   map[string]Message
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		latest:     make(map[string]Message),
	}
}

// Serve runs the hub until ctx is cancelled, then closes every client.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		// lifecycle events first so a broadcast never races a registration
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		case c := <-h.register:
			h.add(c)
			continue
		case c := <-h.unregister:
			h.remove(c)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		case c := <-h.register:
			h.add(c)
		case c := <-h.unregister:
			h.remove(c)
		case m := <-h.broadcast:
			h.fanOut(m)
		}
	}
}

func (h *Hub) String() string { return "websocket-hub" }

func (h *Hub) add(c *Client) {
	h.latestMu.Lock()
	replay := make([]Message, 0, len(h.latest))
	for _, m := range h.latest {
		replay = append(replay, m)
	}
	h.latestMu.Unlock()
	sort.Slice(replay, func(i, j int) bool { return replay[i].Type < replay[j].Type })
	for _, m := range replay {
		c.send <- m
	}

	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WebsocketClients.Set(float64(n))
	logging.Info().Int("total_clients", n).Msg("websocket client connected")
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WebsocketClients.Set(float64(n))
	logging.Info().Int("total_clients", n).Msg("websocket client disconnected")
}

// fanOut delivers m in client id order; slow clients are dropped.
func (h *Hub) fanOut(m Message) {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	for _, c := range clients {
		select {
		case c.send <- m:
		default:
			close(c.send)
			delete(h.clients, c)
			logging.Warn().Uint64("client_id", c.id).Msg("websocket client too slow, dropped")
		}
	}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WebsocketClients.Set(float64(n))
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	n := len(h.clients)
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	h.mu.Unlock()
	metrics.WebsocketClients.Set(0)
	logging.Info().Int("clients_closed", n).Msg("websocket hub stopped")
}

// Broadcast queues data for every client. It never blocks; when the queue is
// full the message is dropped and logged.
func (h *Hub) Broadcast(msgType string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		logging.Error().Err(err).Str("message_type", msgType).Msg("encode websocket message")
		return
	}
	m := Message{Type: msgType, Data: raw}
	if replayed[msgType] {
		h.latestMu.Lock()
		h.latest[msgType] = m
		h.latestMu.Unlock()
	}
	select {
	case h.broadcast <- m:
	default:
		logging.Warn().Str("message_type", msgType).Msg("broadcast channel full, dropping message")
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
