package cashflow

import (
	"context"
	"time"
)

// ReadingRepository persists the append-only reading ledger.
type ReadingRepository interface {
	Get(ctx context.Context, id string) (*Reading, error)
	// LatestSale returns the newest sale of the nozzle that has not been reversed, or nil.
	LatestSale(ctx context.Context, nozzleID string) (*Reading, error)
	ListByShift(ctx context.Context, shiftID string) ([]Reading, error)
	// Append inserts the reading and applies its delta to the active shift in
	// one unit. basedOn is the id of the latest sale the reading was derived
	// from ("" for the nozzle opening value); a mismatch returns ErrConcurrentUpdate.
	Append(ctx context.Context, reading *Reading, basedOn string) (*Shift, error)
}

// ShiftMutation changes a locked shift and optionally returns a handover to
// insert atomically with it.
type ShiftMutation func(shift *Shift) (*CashHandover, error)

// ShiftRepository persists shifts.
type ShiftRepository interface {
	// Create inserts an active shift; a second active shift for the same
	// employee and station returns ErrDuplicateActiveShift.
	Create(ctx context.Context, shift *Shift) error
	Get(ctx context.Context, id string) (*Shift, error)
	// ListByStation returns shifts started in [from, to).
	ListByStation(ctx context.Context, stationID string, from, to time.Time) ([]Shift, error)
	// Update locks the shift, applies mutate and persists the result together
	// with the returned handover. Any error leaves both untouched.
	Update(ctx context.Context, id string, mutate ShiftMutation) (*Shift, *CashHandover, error)
}

// HandoverRepository persists the custody chain.
type HandoverRepository interface {
	Get(ctx context.Context, id string) (*CashHandover, error)
	// Child returns the step created from parentID, or nil.
	Child(ctx context.Context, parentID string) (*CashHandover, error)
	// ListByShift returns the chain of a shift in chain order.
	ListByShift(ctx context.Context, shiftID string) ([]CashHandover, error)
	// Transition stores h if the stored row still has fromStatus and
	// fromVersion, and inserts next in the same unit. A lost race returns
	// ErrConcurrentUpdate.
	Transition(ctx context.Context, h *CashHandover, fromStatus HandoverStatus, fromVersion int, next *CashHandover) error
}
