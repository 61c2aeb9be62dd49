// README: Lot store backed by PostgreSQL.
package lot

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"parkmark/internal/metrics"
	"parkmark/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// List returns every row ordered by label. Rows are returned unvalidated so the
// caller decides what to do with incomplete ones.
func (s *Store) List(ctx context.Context) ([]Row, error) {
	defer metrics.ObserveQuery("lot_list", time.Now())

	rows, err := s.db.Query(ctx, `
		SELECT id, label, capacity, available, longitude, latitude, updated_at
		FROM parkinglot
		ORDER BY label ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.Label, &r.Capacity, &r.Available, &r.Longitude, &r.Latitude, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Get(ctx context.Context, id types.ID) (Lot, error) {
	defer metrics.ObserveQuery("lot_get", time.Now())

	var r Row
	err := s.db.QueryRow(ctx, `
		SELECT id, label, capacity, available, longitude, latitude, updated_at
		FROM parkinglot
		WHERE id = $1`, string(id),
	).Scan(&r.ID, &r.Label, &r.Capacity, &r.Available, &r.Longitude, &r.Latitude, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Lot{}, ErrNotFound
	}
	if err != nil {
		return Lot{}, err
	}
	return r.Validate()
}

// Upsert writes label, capacity and position. available is recomputed from the
// occupied spots so it never drifts from the spot table.
func (s *Store) Upsert(ctx context.Context, l Lot) error {
	defer metrics.ObserveQuery("lot_upsert", time.Now())

	_, err := s.db.Exec(ctx, `
		INSERT INTO parkinglot (id, label, capacity, available, longitude, latitude, updated_at)
		VALUES ($1, $2, $3::int,
		        GREATEST($3::int - (SELECT count(*) FROM parkingspot WHERE parkinglot_id = $1 AND status = 'occupied'), 0),
		        $4, $5, now())
		ON CONFLICT (id) DO UPDATE
		SET label = EXCLUDED.label,
		    capacity = EXCLUDED.capacity,
		    available = EXCLUDED.available,
		    longitude = EXCLUDED.longitude,
		    latitude = EXCLUDED.latitude,
		    updated_at = now()`,
		string(l.ID), l.Label, l.Capacity, l.Longitude, l.Latitude,
	)
	return err
}

func (s *Store) Delete(ctx context.Context, id types.ID) error {
	defer metrics.ObserveQuery("lot_delete", time.Now())

	tag, err := s.db.Exec(ctx, `DELETE FROM parkinglot WHERE id = $1`, string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
