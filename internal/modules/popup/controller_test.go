package popup

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShowReplacesActiveMenu(t *testing.T) {
	c := NewController()
	var events []MenuEvent
	c.Subscribe(func(ev MenuEvent) { events = append(events, ev) })

	first := c.Show(10, 20, []Entry{{Label: "a"}})
	second := c.Show(30, 40, []Entry{{Label: "b"}, {Label: "c"}})

	cur, ok := c.Current()
	require.True(t, ok)
	assert.Equal(t, second.ID, cur.ID)
	assert.Equal(t, []string{"b", "c"}, cur.Labels)

	assert.ErrorIs(t, c.Pick(context.Background(), first.ID, 0), ErrStaleMenu)
	require.Len(t, events, 2)
	assert.True(t, events[1].Visible)
	assert.Equal(t, 30.0, events[1].X)
}

func TestPickRunsEntryOnceAndCloses(t *testing.T) {
	c := NewController()
	ran := 0
	var openDuringRun bool
	m := c.Show(0, 0, []Entry{
		{Label: "noop"},
		{Label: "count", OnPicked: func(ctx context.Context) error {
			ran++
			_, openDuringRun = c.Current()
			return nil
		}},
	})

	require.NoError(t, c.Pick(context.Background(), m.ID, 1))
	assert.Equal(t, 1, ran)
	assert.False(t, openDuringRun, "menu must be closed before the entry runs")

	assert.ErrorIs(t, c.Pick(context.Background(), m.ID, 1), ErrNoActiveMenu)
	assert.Equal(t, 1, ran)
}

func TestPickBadIndexKeepsMenuOpen(t *testing.T) {
	c := NewController()
	m := c.Show(0, 0, []Entry{{Label: "only"}})
	assert.ErrorIs(t, c.Pick(context.Background(), m.ID, 5), ErrBadEntry)
	assert.ErrorIs(t, c.Pick(context.Background(), m.ID, -1), ErrBadEntry)
	_, ok := c.Current()
	assert.True(t, ok)
}

func TestPickPropagatesEntryError(t *testing.T) {
	c := NewController()
	boom := errors.New("boom")
	m := c.Show(0, 0, []Entry{{Label: "fail", OnPicked: func(context.Context) error { return boom }}})
	assert.ErrorIs(t, c.Pick(context.Background(), m.ID, 0), boom)
}

func TestEmptyMenuAndClose(t *testing.T) {
	c := NewController()
	var last MenuEvent
	cancel := c.Subscribe(func(ev MenuEvent) { last = ev })

	m := c.Show(5, 5, nil)
	assert.Empty(t, m.Labels)
	assert.ErrorIs(t, c.Pick(context.Background(), m.ID, 0), ErrBadEntry)

	assert.True(t, c.Close())
	assert.False(t, last.Visible)
	assert.False(t, c.Close())

	cancel()
	c.Show(1, 1, nil)
	assert.False(t, last.Visible, "cancelled subscriber must not receive events")
}
