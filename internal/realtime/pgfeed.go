// README: Postgres LISTEN/NOTIFY change feed, run as a supervised service.
package realtime

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgxpool"

	"parkmark/internal/logging"
)

const Channel = "parkmark_changes"

type PGFeed struct {
	*Hub
	db *pgxpool.Pool
}

func NewPGFeed(db *pgxpool.Pool) *PGFeed {
	return &PGFeed{Hub: NewHub(), db: db}
}

// Serve holds one pooled connection in LISTEN until ctx ends or the connection
// fails. The supervisor restarts it on error; each start publishes a resync.
func (f *PGFeed) Serve(ctx context.Context) error {
	conn, err := f.db.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen conn: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
		return fmt.Errorf("listen %s: %w", Channel, err)
	}
	logging.Info().Str("channel", Channel).Msg("change feed listening")
	f.PublishResync()

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("wait for notification: %w", err)
		}
		f.dispatch(n.Payload)
	}
}

func (f *PGFeed) dispatch(payload string) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		logging.Warn().Err(err).Str("channel", Channel).Msg("dropping malformed change payload")
		return
	}
	switch ev.Type {
	case EventInsert, EventUpdate, EventDelete:
	default:
		logging.Warn().Str("type", string(ev.Type)).Msg("dropping change payload with unknown type")
		return
	}
	f.Publish(ev)
}

func (f *PGFeed) String() string { return "change-feed" }
