// README: Parking spot rows, allocation states and label generation.
package spot

import (
	"errors"
	"fmt"
	"time"

	"parkmark/internal/types"
)

const Table = "parkingspot"

type Status string

const StatusOccupied Status = "occupied"

var (
	ErrNoAvailableSpot  = errors.New("no available spot")
	ErrConflict         = errors.New("spot label conflict")
	ErrStoreQueryFailed = errors.New("spot store query failed")
	ErrStoreWriteFailed = errors.New("spot store write failed")
	ErrLockUnavailable  = errors.New("lot allocation lock unavailable")
	ErrInvalidState     = errors.New("invalid allocation state transition")
)

type Spot struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	LotID     types.ID  `json:"parkinglot_id"`
	Status    Status    `json:"status"`
	Longitude float64   `json:"longitude"`
	Latitude  float64   `json:"latitude"`
	CreatedAt time.Time `json:"created_at"`
}

// ReleaseResult reports what Release removed. Released is false when the lot
// had no occupied spot.
type ReleaseResult struct {
	Released bool  `json:"released"`
	Spot     *Spot `json:"spot,omitempty"`
}

// AllocationState tracks one Occupy call against a lot.
type AllocationState string

const (
	StateIdle       AllocationState = "idle"
	StateAllocating AllocationState = "allocating"
	StateCommitted  AllocationState = "committed"
	StateFailed     AllocationState = "failed"
)

// AllowedTransitions: Allocating returns to Idle only when an insert lost a
// label race and the scan is retried.
var AllowedTransitions = map[AllocationState][]AllocationState{
	StateIdle:       {StateAllocating, StateFailed},
	StateAllocating: {StateCommitted, StateFailed, StateIdle},
}

func CanTransition(from, to AllocationState) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// NextLabel returns the first prefix+NN (NN = 01..capacity) not in existing.
func NextLabel(prefix string, capacity int, existing map[string]struct{}) (string, error) {
	for i := 1; i <= capacity; i++ {
		candidate := fmt.Sprintf("%s%02d", prefix, i)
		if _, taken := existing[candidate]; !taken {
			return candidate, nil
		}
	}
	return "", ErrNoAvailableSpot
}
