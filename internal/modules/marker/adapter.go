// README: Marker data adapter: initial fetch plus change events folded into one label-ordered collection.
package marker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"parkmark/internal/logging"
	"parkmark/internal/metrics"
	"parkmark/internal/modules/lot"
	"parkmark/internal/realtime"
	"parkmark/internal/types"
)

type LotLister interface {
	List(ctx context.Context) ([]lot.Row, error)
}

// Projector places geographic coordinates in the active viewport's model space.
type Projector interface {
	GeoToModel(ctx context.Context, lon, lat, height float64) (types.Point3D, error)
}

const reloadTimeout = 10 * time.Second

type Adapter struct {
	lots LotLister
	proj Projector

	// applyMu serialises Load and event application so observers see changes
	// in the order they were applied.
	applyMu sync.Mutex

	mu      sync.RWMutex
	records []Record
	closed  bool
	sub     *realtime.Subscription

	obsMu     sync.Mutex
	observers map[int]func([]Record)
	nextObs   int
}

func NewAdapter(lots LotLister, proj Projector) *Adapter {
	return &Adapter{lots: lots, proj: proj, observers: make(map[int]func([]Record))}
}

// FetchAll queries every lot and projects it. Rows missing required fields are
// skipped; a missing viewport fails the whole fetch.
func (a *Adapter) FetchAll(ctx context.Context) ([]Record, error) {
	rows, err := a.lots.List(ctx)
	if err != nil {
		logging.Error().Err(err).Str("op", "fetch_all").Msg("list parking lots")
		return nil, fmt.Errorf("%w: %v", ErrStoreQueryFailed, err)
	}
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		l, err := row.Validate()
		if err != nil {
			logging.Warn().Err(err).Str("lot_id", row.ID).Msg("skipping invalid lot row")
			continue
		}
		point, err := a.proj.GeoToModel(ctx, l.Longitude, l.Latitude, 0)
		if err != nil {
			return nil, err
		}
		out = append(out, FromLot(l, point))
	}
	sortRecords(out)
	return out, nil
}

// Load replaces the collection with a fresh fetch. Results that arrive after
// Close are dropped.
func (a *Adapter) Load(ctx context.Context) error {
	a.applyMu.Lock()
	defer a.applyMu.Unlock()

	records, err := a.FetchAll(ctx)
	if err != nil {
		return err
	}
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrAdapterClosed
	}
	a.records = records
	a.mu.Unlock()
	a.notify()
	return nil
}

// Subscribe routes lot change events into the reducer. A second call replaces
// the previous subscription.
func (a *Adapter) Subscribe(feed realtime.Feed) {
	sub := feed.Subscribe(lot.Table, a.apply)
	a.mu.Lock()
	prev := a.sub
	a.sub = sub
	a.mu.Unlock()
	prev.Unsubscribe()
}

func (a *Adapter) Unsubscribe() {
	a.mu.Lock()
	sub := a.sub
	a.sub = nil
	a.mu.Unlock()
	sub.Unsubscribe()
}

// Close unsubscribes and stops accepting results.
func (a *Adapter) Close() {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	a.Unsubscribe()
}

func (a *Adapter) Snapshot() []Record {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]Record(nil), a.records...)
}

func (a *Adapter) Get(id types.ID) (Record, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, r := range a.records {
		if r.ID == id {
			return r, true
		}
	}
	return Record{}, false
}

// OnChange registers fn to receive the full collection after every change.
func (a *Adapter) OnChange(fn func([]Record)) (cancel func()) {
	a.obsMu.Lock()
	id := a.nextObs
	a.nextObs++
	a.observers[id] = fn
	a.obsMu.Unlock()
	return func() {
		a.obsMu.Lock()
		delete(a.observers, id)
		a.obsMu.Unlock()
	}
}

func (a *Adapter) notify() {
	snapshot := a.Snapshot()
	a.obsMu.Lock()
	fns := make([]func([]Record), 0, len(a.observers))
	for _, fn := range a.observers {
		fns = append(fns, fn)
	}
	a.obsMu.Unlock()
	for _, fn := range fns {
		fn(snapshot)
	}
}

// apply is the single reducer for change events; it always works on the
// current collection.
func (a *Adapter) apply(ev realtime.Event) {
	if ev.Type == realtime.EventResync {
		ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
		defer cancel()
		if err := a.Load(ctx); err != nil && !errors.Is(err, ErrAdapterClosed) {
			logging.Error().Err(err).Msg("marker resync failed")
		}
		metrics.ChangeEventsApplied.WithLabelValues(string(ev.Type)).Inc()
		return
	}

	a.applyMu.Lock()
	defer a.applyMu.Unlock()

	changed, err := a.reduce(ev)
	if err != nil {
		logging.Warn().Err(err).Str("type", string(ev.Type)).Msg("ignoring lot change event")
		return
	}
	metrics.ChangeEventsApplied.WithLabelValues(string(ev.Type)).Inc()
	if changed {
		a.notify()
	}
}

func (a *Adapter) reduce(ev realtime.Event) (bool, error) {
	switch ev.Type {
	case realtime.EventInsert, realtime.EventUpdate:
		var row lot.Row
		if err := json.Unmarshal(ev.New, &row); err != nil {
			return false, err
		}
		l, err := row.Validate()
		if err != nil {
			return false, err
		}
		return a.upsert(l)

	case realtime.EventDelete:
		var row lot.Row
		if err := json.Unmarshal(ev.Old, &row); err != nil {
			return false, err
		}
		if row.ID == "" {
			return false, lot.ErrInvalidRow
		}
		return a.remove(types.ID(row.ID)), nil
	}
	return false, fmt.Errorf("unknown event type %q", ev.Type)
}

func (a *Adapter) upsert(l lot.Lot) (bool, error) {
	a.mu.RLock()
	closed := a.closed
	var prev *Record
	for i := range a.records {
		if a.records[i].ID == l.ID {
			r := a.records[i]
			prev = &r
			break
		}
	}
	a.mu.RUnlock()
	if closed {
		return false, nil
	}

	var point types.Point3D
	if prev != nil && prev.Longitude == l.Longitude && prev.Latitude == l.Latitude {
		point = prev.Point
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
		p, err := a.proj.GeoToModel(ctx, l.Longitude, l.Latitude, 0)
		cancel()
		if err != nil {
			return false, err
		}
		point = p
	}
	rec := FromLot(l, point)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return false, nil
	}
	for i := range a.records {
		if a.records[i].ID == rec.ID {
			a.records[i] = rec
			sortRecords(a.records)
			return true, nil
		}
	}
	a.records = append(a.records, rec)
	sortRecords(a.records)
	return true, nil
}

func (a *Adapter) remove(id types.ID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return false
	}
	for i := range a.records {
		if a.records[i].ID == id {
			a.records = append(a.records[:i], a.records[i+1:]...)
			return true
		}
	}
	return false
}

func sortRecords(rs []Record) {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].Label != rs[j].Label {
			return rs[i].Label < rs[j].Label
		}
		return rs[i].ID < rs[j].ID
	})
}
