package settlement

import (
	"context"
	"time"
)

// Repository persists closed settlements. Settlements are insert-only.
type Repository interface {
	Get(ctx context.Context, id string) (*Settlement, error)
	// FindByStationDate returns the settlement of a station-day, or nil.
	FindByStationDate(ctx context.Context, stationID string, date time.Time) (*Settlement, error)
	// Create inserts s; an existing station-day returns ErrPeriodAlreadyClosed.
	Create(ctx context.Context, s *Settlement) error
	ListByStation(ctx context.Context, stationID string, from, to time.Time) ([]Settlement, error)
}
