package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	masterdata "fuelstation-cloud/internal/masterdata/domain"
)

const defaultNozzlesTable = "nozzles"

// NozzleRepository is a Postgres implementation for nozzles.
type NozzleRepository struct {
	db    DBTX
	table string
}

// NewNozzleRepository constructs a repository.
func NewNozzleRepository(db DBTX, opts ...NozzleOption) *NozzleRepository {
	repo := &NozzleRepository{db: db, table: defaultNozzlesTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// NozzleOption configures the repository.
type NozzleOption func(*NozzleRepository)

// WithNozzleTable overrides the default table name.
func WithNozzleTable(table string) NozzleOption {
	return func(repo *NozzleRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Get loads a nozzle by id. A missing nozzle returns nil, nil.
func (r *NozzleRepository) Get(ctx context.Context, id string) (*masterdata.Nozzle, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("nozzle repo: nil db")
	}
	if id == "" {
		return nil, errors.New("nozzle repo: empty id")
	}

	query := fmt.Sprintf(`
SELECT id, station_id, pump_id, tank_id, fuel_type, opening_volume, active, created_at, updated_at
FROM %s
WHERE id = $1
LIMIT 1`, r.table)

	nozzle, err := scanNozzle(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return nozzle, nil
}

// ListByStation loads nozzles for a station.
func (r *NozzleRepository) ListByStation(ctx context.Context, stationID string) ([]masterdata.Nozzle, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("nozzle repo: nil db")
	}
	if stationID == "" {
		return nil, errors.New("nozzle repo: empty station id")
	}

	query := fmt.Sprintf(`
SELECT id, station_id, pump_id, tank_id, fuel_type, opening_volume, active, created_at, updated_at
FROM %s
WHERE station_id = $1
ORDER BY id ASC`, r.table)

	rows, err := r.db.QueryContext(ctx, query, stationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []masterdata.Nozzle
	for rows.Next() {
		nozzle, err := scanNozzle(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *nozzle)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Save upserts a nozzle.
func (r *NozzleRepository) Save(ctx context.Context, nozzle *masterdata.Nozzle) error {
	if r == nil || r.db == nil {
		return errors.New("nozzle repo: nil db")
	}
	if nozzle == nil {
		return errors.New("nozzle repo: nil nozzle")
	}
	if err := nozzle.Validate(); err != nil {
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	station_id,
	pump_id,
	tank_id,
	fuel_type,
	opening_volume,
	active
) VALUES (
	$1, $2, $3, $4, $5, $6, $7
)
ON CONFLICT (id)
DO UPDATE SET
	station_id = EXCLUDED.station_id,
	pump_id = EXCLUDED.pump_id,
	tank_id = EXCLUDED.tank_id,
	fuel_type = EXCLUDED.fuel_type,
	opening_volume = EXCLUDED.opening_volume,
	active = EXCLUDED.active,
	updated_at = NOW()`, r.table)

	_, err := r.db.ExecContext(
		ctx,
		query,
		nozzle.ID,
		nozzle.StationID,
		nozzle.PumpID,
		nullString(nozzle.TankID),
		nozzle.FuelType,
		nozzle.OpeningVolume,
		nozzle.Active,
	)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if nozzle.CreatedAt.IsZero() {
		nozzle.CreatedAt = now
	}
	nozzle.UpdatedAt = now
	return nil
}

func scanNozzle(row rowScanner) (*masterdata.Nozzle, error) {
	var (
		nozzle masterdata.Nozzle
		tankID sql.NullString
	)
	if err := row.Scan(
		&nozzle.ID,
		&nozzle.StationID,
		&nozzle.PumpID,
		&tankID,
		&nozzle.FuelType,
		&nozzle.OpeningVolume,
		&nozzle.Active,
		&nozzle.CreatedAt,
		&nozzle.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if tankID.Valid {
		nozzle.TankID = tankID.String
	}
	nozzle.CreatedAt = nozzle.CreatedAt.UTC()
	nozzle.UpdatedAt = nozzle.UpdatedAt.UTC()
	return &nozzle, nil
}

func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
