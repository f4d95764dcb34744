package auth

import (
	"context"

	masterdata "fuelstation-cloud/internal/masterdata/domain"
)

// StationTenantChecker validates that the caller may act on a station.
type StationTenantChecker interface {
	EnsureStationTenant(ctx context.Context, tenantID, stationID string) error
}

// StationReader loads stations from masterdata.
type StationReader interface {
	Get(ctx context.Context, id string) (*masterdata.Station, error)
}

// StationChecker checks station ownership and the caller's roster.
type StationChecker struct {
	stations StationReader
}

// NewStationChecker constructs a StationChecker.
func NewStationChecker(stations StationReader) *StationChecker {
	return &StationChecker{stations: stations}
}

// EnsureStationTenant verifies the station belongs to tenantID and that the
// identity in ctx is assigned to it.
func (c *StationChecker) EnsureStationTenant(ctx context.Context, tenantID, stationID string) error {
	if c == nil || c.stations == nil || stationID == "" {
		return nil
	}
	if !StationAllowed(ctx, stationID) {
		return ErrStationNotAssigned
	}
	if tenantID == "" {
		return nil
	}
	station, err := c.stations.Get(ctx, stationID)
	if err != nil {
		return err
	}
	if station == nil {
		return ErrNotFound
	}
	if station.TenantID != tenantID {
		return ErrTenantMismatch
	}
	return nil
}
