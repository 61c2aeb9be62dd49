// README: Lot service: validated reads and writes over the lot store.
package lot

import (
	"context"
	"fmt"

	"parkmark/internal/logging"
	"parkmark/internal/types"
)

// Repository is the subset of Store the service needs.
type Repository interface {
	List(ctx context.Context) ([]Row, error)
	Get(ctx context.Context, id types.ID) (Lot, error)
	Upsert(ctx context.Context, l Lot) error
	Delete(ctx context.Context, id types.ID) error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns the raw rows in label order.
func (s *Service) List(ctx context.Context) ([]Row, error) {
	return s.repo.List(ctx)
}

// ListValid drops rows that fail validation and logs each one.
func (s *Service) ListValid(ctx context.Context) ([]Lot, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Lot, 0, len(rows))
	for _, r := range rows {
		l, err := r.Validate()
		if err != nil {
			logging.Warn().Err(err).Str("lot_id", r.ID).Msg("skipping invalid lot row")
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (Lot, error) {
	if id == "" {
		return Lot{}, ErrBadRequest
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Upsert(ctx context.Context, l Lot) error {
	if l.ID == "" || l.Label == "" {
		return fmt.Errorf("%w: id and label are required", ErrBadRequest)
	}
	if l.Capacity < 0 {
		return fmt.Errorf("%w: capacity must be >= 0", ErrBadRequest)
	}
	if l.Latitude < -90 || l.Latitude > 90 || l.Longitude < -180 || l.Longitude > 180 {
		return fmt.Errorf("%w: coordinates out of range", ErrBadRequest)
	}
	return s.repo.Upsert(ctx, l)
}

func (s *Service) Delete(ctx context.Context, id types.ID) error {
	if id == "" {
		return ErrBadRequest
	}
	return s.repo.Delete(ctx, id)
}
