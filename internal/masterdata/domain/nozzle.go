package masterdata

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Nozzle is a metered dispensing point bound to a station and tank.
type Nozzle struct {
	ID            string
	StationID     string
	PumpID        string
	TankID        string
	FuelType      string
	OpeningVolume decimal.Decimal
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Validate checks nozzle invariants.
func (n Nozzle) Validate() error {
	if n.ID == "" {
		return errors.New("nozzle: empty id")
	}
	if n.StationID == "" {
		return errors.New("nozzle: empty station id")
	}
	if n.FuelType == "" {
		return errors.New("nozzle: empty fuel type")
	}
	if n.OpeningVolume.IsNegative() {
		return errors.New("nozzle: negative opening volume")
	}
	return nil
}

// NozzleRepository manages nozzle persistence.
type NozzleRepository interface {
	Get(ctx context.Context, id string) (*Nozzle, error)
	ListByStation(ctx context.Context, stationID string) ([]Nozzle, error)
	Save(ctx context.Context, nozzle *Nozzle) error
}

// Tank stores one fuel type for a station.
type Tank struct {
	ID           string
	StationID    string
	FuelType     string
	Capacity     decimal.Decimal
	CurrentLevel decimal.Decimal
	LowLevel     decimal.Decimal
	UpdatedAt    time.Time
}

// Validate checks tank invariants.
func (t Tank) Validate() error {
	if t.ID == "" {
		return errors.New("tank: empty id")
	}
	if t.StationID == "" {
		return errors.New("tank: empty station id")
	}
	if !t.Capacity.IsPositive() {
		return errors.New("tank: capacity must be positive")
	}
	if t.CurrentLevel.IsNegative() || t.LowLevel.IsNegative() {
		return errors.New("tank: negative level")
	}
	return nil
}

// IsLow reports whether the current level is at or below the low mark.
func (t Tank) IsLow() bool {
	return t.CurrentLevel.LessThanOrEqual(t.LowLevel)
}

// TankRepository manages tank persistence.
type TankRepository interface {
	Get(ctx context.Context, id string) (*Tank, error)
	Save(ctx context.Context, tank *Tank) error
}
