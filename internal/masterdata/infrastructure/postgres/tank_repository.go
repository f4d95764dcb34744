package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	masterdata "fuelstation-cloud/internal/masterdata/domain"
)

const defaultTanksTable = "tanks"

// TankRepository is a Postgres implementation for tanks.
type TankRepository struct {
	db    DBTX
	table string
}

// NewTankRepository constructs a repository.
func NewTankRepository(db DBTX) *TankRepository {
	return &TankRepository{db: db, table: defaultTanksTable}
}

// Get loads a tank by id. A missing tank returns nil, nil.
func (r *TankRepository) Get(ctx context.Context, id string) (*masterdata.Tank, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("tank repo: nil db")
	}
	if id == "" {
		return nil, errors.New("tank repo: empty id")
	}

	query := fmt.Sprintf(`
SELECT id, station_id, fuel_type, capacity, current_level, low_level, updated_at
FROM %s
WHERE id = $1
LIMIT 1`, r.table)

	var tank masterdata.Tank
	if err := r.db.QueryRowContext(ctx, query, id).Scan(
		&tank.ID,
		&tank.StationID,
		&tank.FuelType,
		&tank.Capacity,
		&tank.CurrentLevel,
		&tank.LowLevel,
		&tank.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	tank.UpdatedAt = tank.UpdatedAt.UTC()
	return &tank, nil
}

// Save upserts a tank.
func (r *TankRepository) Save(ctx context.Context, tank *masterdata.Tank) error {
	if r == nil || r.db == nil {
		return errors.New("tank repo: nil db")
	}
	if tank == nil {
		return errors.New("tank repo: nil tank")
	}
	if err := tank.Validate(); err != nil {
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (id, station_id, fuel_type, capacity, current_level, low_level)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id)
DO UPDATE SET
	station_id = EXCLUDED.station_id,
	fuel_type = EXCLUDED.fuel_type,
	capacity = EXCLUDED.capacity,
	current_level = EXCLUDED.current_level,
	low_level = EXCLUDED.low_level,
	updated_at = NOW()`, r.table)

	if _, err := r.db.ExecContext(ctx, query,
		tank.ID,
		tank.StationID,
		tank.FuelType,
		tank.Capacity,
		tank.CurrentLevel,
		tank.LowLevel,
	); err != nil {
		return err
	}
	tank.UpdatedAt = time.Now().UTC()
	return nil
}
