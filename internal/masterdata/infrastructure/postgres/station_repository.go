package postgres

import (
	"context"
	"database/sql"
	"errors"

	masterdata "fuelstation-cloud/internal/masterdata/domain"
)

const stationColumns = `id, tenant_id, name, timezone, region, created_at, updated_at`

var errNilStationDB = errors.New("station repo: nil db")

// StationRepository stores forecourts in the stations table.
type StationRepository struct {
	db DBTX
}

func NewStationRepository(db DBTX) *StationRepository {
	return &StationRepository{db: db}
}

// Get loads a station by id. A missing station returns nil, nil.
func (r *StationRepository) Get(ctx context.Context, id string) (*masterdata.Station, error) {
	if r == nil || r.db == nil {
		return nil, errNilStationDB
	}
	if id == "" {
		return nil, errors.New("station repo: empty id")
	}
	station, err := scanStation(r.db.QueryRowContext(ctx, `SELECT `+stationColumns+` FROM stations WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return station, err
}

// List loads the stations of a tenant; an empty tenant lists every station.
func (r *StationRepository) List(ctx context.Context, tenantID string) ([]masterdata.Station, error) {
	if r == nil || r.db == nil {
		return nil, errNilStationDB
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+stationColumns+`
FROM stations
WHERE $1 = '' OR tenant_id = $1
ORDER BY id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stations []masterdata.Station
	for rows.Next() {
		station, err := scanStation(rows)
		if err != nil {
			return nil, err
		}
		stations = append(stations, *station)
	}
	return stations, rows.Err()
}

// Save upserts station and refreshes its timestamps from the database.
// A station cannot move to another tenant once its shifts reference it.
func (r *StationRepository) Save(ctx context.Context, station *masterdata.Station) error {
	if r == nil || r.db == nil {
		return errNilStationDB
	}
	if station == nil {
		return errors.New("station repo: nil station")
	}
	if err := station.Validate(); err != nil {
		return err
	}
	err := r.db.QueryRowContext(ctx, `
INSERT INTO stations (id, tenant_id, name, timezone, region)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	timezone = EXCLUDED.timezone,
	region = EXCLUDED.region,
	updated_at = NOW()
WHERE stations.tenant_id = EXCLUDED.tenant_id
RETURNING created_at, updated_at`,
		station.ID, station.TenantID, station.Name, station.Timezone, station.Region,
	).Scan(&station.CreatedAt, &station.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return masterdata.ErrStationTenantChange
	}
	if err != nil {
		return err
	}
	station.CreatedAt = station.CreatedAt.UTC()
	station.UpdatedAt = station.UpdatedAt.UTC()
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStation(row rowScanner) (*masterdata.Station, error) {
	var s masterdata.Station
	if err := row.Scan(&s.ID, &s.TenantID, &s.Name, &s.Timezone, &s.Region, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return &s, nil
}
