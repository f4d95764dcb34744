package masterdata

import (
	"context"
	"errors"
	"time"
)

// ErrStationTenantChange is returned when an upsert would move a station to
// another tenant.
var ErrStationTenantChange = errors.New("station: tenant cannot change")

// Station represents a fuel station in masterdata.
type Station struct {
	ID        string
	TenantID  string
	Name      string
	Timezone  string
	Region    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks station invariants.
func (s Station) Validate() error {
	if s.ID == "" {
		return errors.New("station: empty id")
	}
	if s.TenantID == "" {
		return errors.New("station: empty tenant id")
	}
	if s.Name == "" {
		return errors.New("station: empty name")
	}
	if s.Timezone == "" {
		return errors.New("station: empty timezone")
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return errors.New("station: invalid timezone")
	}
	return nil
}

// Location resolves the station timezone, falling back to UTC.
func (s Station) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// StationRepository manages station persistence.
type StationRepository interface {
	Get(ctx context.Context, id string) (*Station, error)
	List(ctx context.Context, tenantID string) ([]Station, error)
	Save(ctx context.Context, station *Station) error
}
