// README: Popup menu controller: a single active menu, replaced on every Show, closed on Pick.
package popup

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"parkmark/internal/logging"
)

var (
	ErrNoActiveMenu = errors.New("no active menu")
	ErrStaleMenu    = errors.New("menu was replaced")
	ErrBadEntry     = errors.New("menu entry out of range")
)

type Entry struct {
	Label    string
	OnPicked func(ctx context.Context) error
}

type Menu struct {
	ID      string   `json:"id"`
	X       float64  `json:"x"`
	Y       float64  `json:"y"`
	Labels  []string `json:"labels"`
	entries []Entry
}

type MenuEvent struct {
	Visible bool     `json:"visible"`
	ID      string   `json:"id,omitempty"`
	X       float64  `json:"x"`
	Y       float64  `json:"y"`
	Labels  []string `json:"labels,omitempty"`
}

type Controller struct {
	mu      sync.Mutex
	current *Menu

	subMu  sync.Mutex
	subs   map[int]func(MenuEvent)
	nextID int
}

func NewController() *Controller {
	return &Controller{subs: make(map[int]func(MenuEvent))}
}

// Show opens a menu at (x, y), replacing whatever was open. Entries are not
// validated; an empty list yields an empty menu.
func (c *Controller) Show(x, y float64, entries []Entry) *Menu {
	labels := make([]string, len(entries))
	for i, e := range entries {
		labels[i] = e.Label
	}
	m := &Menu{ID: uuid.NewString(), X: x, Y: y, Labels: labels, entries: append([]Entry(nil), entries...)}

	c.mu.Lock()
	c.current = m
	c.mu.Unlock()

	c.broadcast(MenuEvent{Visible: true, ID: m.ID, X: x, Y: y, Labels: labels})
	return m
}

// Pick runs entry index of menu id. The menu is closed before the entry runs.
func (c *Controller) Pick(ctx context.Context, id string, index int) error {
	c.mu.Lock()
	m := c.current
	switch {
	case m == nil:
		c.mu.Unlock()
		return ErrNoActiveMenu
	case m.ID != id:
		c.mu.Unlock()
		return ErrStaleMenu
	case index < 0 || index >= len(m.entries):
		c.mu.Unlock()
		return ErrBadEntry
	}
	entry := m.entries[index]
	c.current = nil
	c.mu.Unlock()

	c.broadcast(MenuEvent{Visible: false, ID: m.ID})
	logging.Debug().Str("menu_id", id).Str("entry", entry.Label).Msg("menu entry picked")
	if entry.OnPicked == nil {
		return nil
	}
	return entry.OnPicked(ctx)
}

// Close hides the active menu, reporting whether one was open.
func (c *Controller) Close() bool {
	c.mu.Lock()
	m := c.current
	c.current = nil
	c.mu.Unlock()
	if m == nil {
		return false
	}
	c.broadcast(MenuEvent{Visible: false, ID: m.ID})
	return true
}

func (c *Controller) Current() (*Menu, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current, c.current != nil
}

func (c *Controller) Subscribe(fn func(MenuEvent)) (cancel func()) {
	c.subMu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.subMu.Unlock()
	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

func (c *Controller) broadcast(ev MenuEvent) {
	c.subMu.Lock()
	fns := make([]func(MenuEvent), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}
