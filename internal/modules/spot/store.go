// README: Spot store backed by PostgreSQL; inserts are conflict-safe on (parkinglot_id, id).
package spot

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

func (s *Store) ListLabels(ctx context.Context, lotID types.ID) ([]string, error) {
	defer metrics.ObserveQuery("spot_list_labels", time.Now())

	rows, err := s.db.Query(ctx, `SELECT label FROM parkingspot WHERE parkinglot_id = $1`, string(lotID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, err
		}
		out = append(out, label)
	}
	return out, rows.Err()
}

// Insert returns false when a spot with the same id already exists for the lot.
func (s *Store) Insert(ctx context.Context, sp *Spot) (bool, error) {
	defer metrics.ObserveQuery("spot_insert", time.Now())

	err := s.db.QueryRow(ctx, `
		INSERT INTO parkingspot (parkinglot_id, id, label, status, longitude, latitude)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (parkinglot_id, id) DO NOTHING
		RETURNING created_at`,
		string(sp.LotID), sp.ID, sp.Label, string(sp.Status), sp.Longitude, sp.Latitude,
	).Scan(&sp.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// LatestOccupied returns the newest occupied spot by insertion time, id as tie-break.
func (s *Store) LatestOccupied(ctx context.Context, lotID types.ID) (Spot, bool, error) {
	defer metrics.ObserveQuery("spot_latest", time.Now())

	var sp Spot
	var lot, status string
	err := s.db.QueryRow(ctx, `
		SELECT parkinglot_id, id, label, status, longitude, latitude, created_at
		FROM parkingspot
		WHERE parkinglot_id = $1 AND status = 'occupied'
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, string(lotID),
	).Scan(&lot, &sp.ID, &sp.Label, &status, &sp.Longitude, &sp.Latitude, &sp.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Spot{}, false, nil
	}
	if err != nil {
		return Spot{}, false, err
	}
	sp.LotID = types.ID(lot)
	sp.Status = Status(status)
	return sp, true, nil
}

func (s *Store) Delete(ctx context.Context, lotID types.ID, id string) (bool, error) {
	defer metrics.ObserveQuery("spot_delete", time.Now())

	tag, err := s.db.Exec(ctx, `DELETE FROM parkingspot WHERE parkinglot_id = $1 AND id = $2`, string(lotID), id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
