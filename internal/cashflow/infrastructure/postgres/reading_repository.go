package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	cashflow "fuelstation-cloud/internal/cashflow/domain"
)

const readingColumns = `id, tenant_id, station_id, nozzle_id, shift_id, kind,
	previous_volume, current_volume, litres, unit_price, total_amount, payment,
	recorded_by, recorded_at, advisory, reverses_reading_id, reason`

// ReadingRepository is a Postgres implementation of the append-only ledger.
type ReadingRepository struct {
	store *Store
}

// Get loads a reading.
func (r *ReadingRepository) Get(ctx context.Context, id string) (*cashflow.Reading, error) {
	if r == nil || r.store == nil || r.store.db == nil {
		return nil, errors.New("reading repo: nil db")
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, readingColumns, r.store.readings)
	reading, err := scanReading(r.store.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cashflow.ErrReadingNotFound
	}
	return reading, err
}

// LatestSale returns the newest unreversed sale of a nozzle.
func (r *ReadingRepository) LatestSale(ctx context.Context, nozzleID string) (*cashflow.Reading, error) {
	if r == nil || r.store == nil || r.store.db == nil {
		return nil, errors.New("reading repo: nil db")
	}
	return r.store.latestSale(ctx, r.store.db, nozzleID)
}

// ListByShift returns a shift's readings in record order.
func (r *ReadingRepository) ListByShift(ctx context.Context, shiftID string) ([]cashflow.Reading, error) {
	if r == nil || r.store == nil || r.store.db == nil {
		return nil, errors.New("reading repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE shift_id = $1
ORDER BY seq ASC`, readingColumns, r.store.readings)

	rows, err := r.store.db.QueryContext(ctx, query, shiftID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []cashflow.Reading
	for rows.Next() {
		reading, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *reading)
	}
	return result, rows.Err()
}

// Append inserts the reading and applies its delta to the locked shift.
// Writers on the same nozzle are serialized with a transaction-scoped
// advisory lock so the basedOn check sees every committed sale.
func (r *ReadingRepository) Append(ctx context.Context, reading *cashflow.Reading, basedOn string) (*cashflow.Shift, error) {
	if r == nil || r.store == nil {
		return nil, errors.New("reading repo: nil store")
	}
	if reading == nil || reading.ID == "" {
		return nil, cashflow.ErrMissingField
	}
	payment, err := json.Marshal(reading.Payment)
	if err != nil {
		return nil, err
	}

	var updated *cashflow.Shift
	err = r.store.inTx(ctx, func(tx *sql.Tx) error {
		shift, err := r.store.lockShift(ctx, tx, reading.ShiftID)
		if err != nil {
			return err
		}
		if shift.Status != cashflow.ShiftActive {
			return cashflow.ErrShiftNotActive
		}
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, reading.NozzleID); err != nil {
			return err
		}
		if reading.Kind == cashflow.ReadingKindReversal {
			reversed, err := r.store.isReversed(ctx, tx, reading.ReversesReadingID)
			if err != nil {
				return err
			}
			if reversed {
				return cashflow.ErrReadingAlreadyReversed
			}
		}
		latestID := ""
		latest, err := r.store.latestSale(ctx, tx, reading.NozzleID)
		if err != nil {
			return err
		}
		if latest != nil {
			latestID = latest.ID
		}
		if latestID != basedOn {
			if reading.Kind == cashflow.ReadingKindReversal {
				return cashflow.ErrReadingNotReversible
			}
			return cashflow.ErrConcurrentUpdate
		}

		fromVersion := shift.Version
		if err := shift.Apply(reading.Delta()); err != nil {
			return err
		}
		if err := r.store.saveShift(ctx, tx, shift, fromVersion); err != nil {
			return err
		}
		if err := r.store.insertReading(ctx, tx, reading, payment); err != nil {
			return err
		}
		updated = shift
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) insertReading(ctx context.Context, tx *sql.Tx, reading *cashflow.Reading, payment []byte) error {
	query := fmt.Sprintf(`
INSERT INTO %s (
	id, tenant_id, station_id, nozzle_id, shift_id, kind,
	previous_volume, current_volume, litres, unit_price, total_amount, payment,
	recorded_by, recorded_at, advisory, reverses_reading_id, reason
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
)`, s.readings)

	_, err := tx.ExecContext(ctx, query,
		reading.ID,
		reading.TenantID,
		reading.StationID,
		reading.NozzleID,
		reading.ShiftID,
		string(reading.Kind),
		reading.PreviousVolume,
		reading.CurrentVolume,
		reading.Litres,
		reading.UnitPrice,
		reading.TotalAmount,
		payment,
		reading.RecordedBy,
		reading.RecordedAt.UTC(),
		reading.Advisory,
		nullString(reading.ReversesReadingID),
		reading.Reason,
	)
	if constraint, ok := uniqueConstraint(err); ok {
		if constraint == reversedOnceConstraint {
			return cashflow.ErrReadingAlreadyReversed
		}
		return cashflow.ErrConcurrentUpdate
	}
	return err
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) latestSale(ctx context.Context, db queryRower, nozzleID string) (*cashflow.Reading, error) {
	query := fmt.Sprintf(`
SELECT %s
FROM %s r
WHERE r.nozzle_id = $1
	AND r.kind = 'sale'
	AND NOT EXISTS (SELECT 1 FROM %s x WHERE x.reverses_reading_id = r.id)
ORDER BY r.seq DESC
LIMIT 1`, readingColumns, s.readings, s.readings)

	reading, err := scanReading(db.QueryRowContext(ctx, query, nozzleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return reading, err
}

func (s *Store) isReversed(ctx context.Context, tx *sql.Tx, readingID string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE reverses_reading_id = $1)`, s.readings)
	var exists bool
	if err := tx.QueryRowContext(ctx, query, readingID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func scanReading(row rowScanner) (*cashflow.Reading, error) {
	var (
		reading  cashflow.Reading
		kind     string
		payment  []byte
		reverses sql.NullString
	)
	if err := row.Scan(
		&reading.ID,
		&reading.TenantID,
		&reading.StationID,
		&reading.NozzleID,
		&reading.ShiftID,
		&kind,
		&reading.PreviousVolume,
		&reading.CurrentVolume,
		&reading.Litres,
		&reading.UnitPrice,
		&reading.TotalAmount,
		&payment,
		&reading.RecordedBy,
		&reading.RecordedAt,
		&reading.Advisory,
		&reverses,
		&reading.Reason,
	); err != nil {
		return nil, err
	}
	if len(payment) > 0 {
		if err := json.Unmarshal(payment, &reading.Payment); err != nil {
			return nil, fmt.Errorf("reading repo: decode payment: %w", err)
		}
	}
	reading.Kind = cashflow.ReadingKind(kind)
	reading.RecordedAt = reading.RecordedAt.UTC()
	reading.ReversesReadingID = reverses.String
	return &reading, nil
}
