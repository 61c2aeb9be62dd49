// README: Spot service: occupy/release against the store with per-lot locking and label-conflict retry.
package spot

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"parkmark/internal/logging"
	"parkmark/internal/metrics"
	"parkmark/internal/modules/lot"
	"parkmark/internal/types"
)

type Repository interface {
	ListLabels(ctx context.Context, lotID types.ID) ([]string, error)
	Insert(ctx context.Context, sp *Spot) (bool, error)
	LatestOccupied(ctx context.Context, lotID types.ID) (Spot, bool, error)
	Delete(ctx context.Context, lotID types.ID, id string) (bool, error)
}

type Options struct {
	JitterDeg   float64
	MaxAttempts int
}

type Service struct {
	repo   Repository
	locker Locker
	opts   Options
	rand   func() float64
}

func NewService(repo Repository, locker Locker, opts Options) *Service {
	if locker == nil {
		locker = NewLocalLocker()
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &Service{repo: repo, locker: locker, opts: opts, rand: rand.Float64}
}

// allocation walks one Occupy call through AllowedTransitions.
type allocation struct {
	lotID types.ID
	state AllocationState
}

func (a *allocation) advance(to AllocationState) error {
	if !CanTransition(a.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, a.state, to)
	}
	logging.Debug().Str("lot_id", string(a.lotID)).Str("from", string(a.state)).Str("to", string(to)).Msg("allocation state")
	a.state = to
	return nil
}

// Occupy inserts the lowest free label for l. It never writes when every
// label 01..capacity is taken.
func (s *Service) Occupy(ctx context.Context, l lot.Lot) (Spot, error) {
	unlock, err := s.locker.Lock(ctx, l.ID)
	if err != nil {
		metrics.RecordSpotOperation("occupy", "error")
		return Spot{}, err
	}
	defer unlock()

	a := &allocation{lotID: l.ID, state: StateIdle}
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		if err := a.advance(StateAllocating); err != nil {
			return Spot{}, err
		}

		labels, err := s.repo.ListLabels(ctx, l.ID)
		if err != nil {
			_ = a.advance(StateFailed)
			logging.Error().Err(err).Str("lot_id", string(l.ID)).Str("op", "occupy").Msg("list spot labels")
			metrics.RecordSpotOperation("occupy", "error")
			return Spot{}, fmt.Errorf("%w: %v", ErrStoreQueryFailed, err)
		}
		existing := make(map[string]struct{}, len(labels))
		for _, lb := range labels {
			existing[lb] = struct{}{}
		}

		label, err := NextLabel(l.Label, l.Capacity, existing)
		if err != nil {
			_ = a.advance(StateFailed)
			metrics.RecordSpotOperation("occupy", "full")
			return Spot{}, err
		}

		sp := Spot{
			ID:        label,
			Label:     label,
			LotID:     l.ID,
			Status:    StatusOccupied,
			Longitude: l.Longitude + s.jitter(),
			Latitude:  l.Latitude + s.jitter(),
		}
		inserted, err := s.repo.Insert(ctx, &sp)
		if err != nil {
			_ = a.advance(StateFailed)
			logging.Error().Err(err).Str("lot_id", string(l.ID)).Str("label", label).Str("op", "occupy").Msg("insert spot")
			metrics.RecordSpotOperation("occupy", "error")
			return Spot{}, fmt.Errorf("%w: %v", ErrStoreWriteFailed, err)
		}
		if inserted {
			_ = a.advance(StateCommitted)
			metrics.RecordSpotOperation("occupy", "ok")
			logging.Info().Str("lot_id", string(l.ID)).Str("label", label).Msg("spot occupied")
			return sp, nil
		}

		logging.Warn().Str("lot_id", string(l.ID)).Str("label", label).Int("attempt", attempt).Msg("spot label taken concurrently; rescanning")
		if err := a.advance(StateIdle); err != nil {
			return Spot{}, err
		}
	}

	metrics.RecordSpotOperation("occupy", "conflict")
	return Spot{}, ErrConflict
}

// Release deletes the most recently occupied spot of l. A lot with no occupied
// spot yields Released=false and no error.
func (s *Service) Release(ctx context.Context, l lot.Lot) (ReleaseResult, error) {
	unlock, err := s.locker.Lock(ctx, l.ID)
	if err != nil {
		metrics.RecordSpotOperation("release", "error")
		return ReleaseResult{}, err
	}
	defer unlock()

	sp, found, err := s.repo.LatestOccupied(ctx, l.ID)
	if err != nil {
		logging.Error().Err(err).Str("lot_id", string(l.ID)).Str("op", "release").Msg("find latest spot")
		metrics.RecordSpotOperation("release", "error")
		return ReleaseResult{}, fmt.Errorf("%w: %v", ErrStoreQueryFailed, err)
	}
	if !found {
		logging.Info().Str("lot_id", string(l.ID)).Msg("release: no occupied spot found")
		metrics.RecordSpotOperation("release", "noop")
		return ReleaseResult{Released: false}, nil
	}

	deleted, err := s.repo.Delete(ctx, l.ID, sp.ID)
	if err != nil {
		logging.Error().Err(err).Str("lot_id", string(l.ID)).Str("label", sp.Label).Str("op", "release").Msg("delete spot")
		metrics.RecordSpotOperation("release", "error")
		return ReleaseResult{}, fmt.Errorf("%w: %v", ErrStoreWriteFailed, err)
	}
	if !deleted {
		metrics.RecordSpotOperation("release", "noop")
		return ReleaseResult{Released: false}, nil
	}
	metrics.RecordSpotOperation("release", "ok")
	logging.Info().Str("lot_id", string(l.ID)).Str("label", sp.Label).Msg("spot released")
	return ReleaseResult{Released: true, Spot: &sp}, nil
}

// IsStoreError reports whether err came from the store rather than allocation.
func IsStoreError(err error) bool {
	return errors.Is(err, ErrStoreQueryFailed) || errors.Is(err, ErrStoreWriteFailed)
}

func (s *Service) jitter() float64 {
	return (s.rand() - 0.5) * 2 * s.opts.JitterDeg
}
