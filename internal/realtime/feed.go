// README: In-process change-event fan-out keyed by table; PGFeed fills it from Postgres NOTIFY.
package realtime

import (
	"sync"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
	// EventResync is emitted after the channel (re)connects; events may have been
	// missed and subscribers should reload.
	EventResync EventType = "resync"
)

type Event struct {
	Type  EventType       `json:"type"`
	Table string          `json:"table"`
	New   json.RawMessage `json:"new,omitempty"`
	Old   json.RawMessage `json:"old,omitempty"`
}

type Handler func(Event)

// Feed is the subscription surface consumers depend on.
type Feed interface {
	Subscribe(table string, fn Handler) *Subscription
}

type Subscription struct {
	id    string
	table string
	hub   *Hub
	once  sync.Once
}

func (s *Subscription) ID() string { return s.id }

// Unsubscribe is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() { s.hub.remove(s) })
}

type entry struct {
	sub *Subscription
	fn  Handler
}

// Hub delivers each published event to the table's handlers in subscription order.
type Hub struct {
	mu   sync.RWMutex
	subs map[string][]entry
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string][]entry)}
}

func (h *Hub) Subscribe(table string, fn Handler) *Subscription {
	sub := &Subscription{id: uuid.NewString(), table: table, hub: h}
	h.mu.Lock()
	h.subs[table] = append(h.subs[table], entry{sub: sub, fn: fn})
	h.mu.Unlock()
	return sub
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := h.subs[sub.table]
	for i, e := range list {
		if e.sub == sub {
			h.subs[sub.table] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(h.subs[sub.table]) == 0 {
		delete(h.subs, sub.table)
	}
}

// Publish calls handlers synchronously on the caller's goroutine.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	list := append([]entry(nil), h.subs[ev.Table]...)
	h.mu.RUnlock()
	for _, e := range list {
		e.fn(ev)
	}
}

// PublishResync sends a resync event to every subscribed table.
func (h *Hub) PublishResync() {
	h.mu.RLock()
	tables := make([]string, 0, len(h.subs))
	for t := range h.subs {
		tables = append(tables, t)
	}
	h.mu.RUnlock()
	for _, t := range tables {
		h.Publish(Event{Type: EventResync, Table: t})
	}
}

// Subscribers reports how many handlers are registered for table.
func (h *Hub) Subscribers(table string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[table])
}
