package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	cashflow "fuelstation-cloud/internal/cashflow/domain"
	"fuelstation-cloud/internal/discrepancy"
)

const shiftColumns = `id, tenant_id, station_id, employee_id, status, started_at, ended_at,
	expected_cash, expected_online, expected_credit, litres, sales, reading_count,
	actual_cash, actual_online, variance, online_variance, variance_severity, closed_by, version`

// ShiftRepository is a Postgres implementation for shifts.
type ShiftRepository struct {
	store *Store
}

// Create inserts an active shift.
func (r *ShiftRepository) Create(ctx context.Context, shift *cashflow.Shift) error {
	if r == nil || r.store == nil || r.store.db == nil {
		return errors.New("shift repo: nil db")
	}
	if shift == nil || shift.ID == "" {
		return cashflow.ErrMissingField
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	id, tenant_id, station_id, employee_id, status, started_at,
	expected_cash, expected_online, expected_credit, litres, sales, reading_count,
	variance, online_variance, variance_severity, closed_by, version, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, NOW()
)`, r.store.shifts)

	_, err := r.store.db.ExecContext(ctx, query,
		shift.ID,
		shift.TenantID,
		shift.StationID,
		shift.EmployeeID,
		string(shift.Status),
		shift.StartedAt.UTC(),
		shift.ExpectedCash,
		shift.ExpectedOnline,
		shift.ExpectedCredit,
		shift.Litres,
		shift.Sales,
		shift.ReadingCount,
		shift.Variance,
		shift.OnlineVariance,
		string(shift.VarianceSeverity),
		shift.ClosedBy,
		shift.Version,
	)
	if constraint, ok := uniqueConstraint(err); ok {
		if constraint == activeShiftConstraint {
			return cashflow.ErrDuplicateActiveShift
		}
		return cashflow.ErrConcurrentUpdate
	}
	return err
}

// Get loads a shift.
func (r *ShiftRepository) Get(ctx context.Context, id string) (*cashflow.Shift, error) {
	if r == nil || r.store == nil || r.store.db == nil {
		return nil, errors.New("shift repo: nil db")
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, shiftColumns, r.store.shifts)
	shift, err := scanShift(r.store.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cashflow.ErrShiftNotFound
	}
	return shift, err
}

// ListByStation returns shifts started in [from, to).
func (r *ShiftRepository) ListByStation(ctx context.Context, stationID string, from, to time.Time) ([]cashflow.Shift, error) {
	if r == nil || r.store == nil || r.store.db == nil {
		return nil, errors.New("shift repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE station_id = $1 AND started_at >= $2 AND started_at < $3
ORDER BY started_at ASC, id ASC`, shiftColumns, r.store.shifts)

	rows, err := r.store.db.QueryContext(ctx, query, stationID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []cashflow.Shift
	for rows.Next() {
		shift, err := scanShift(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *shift)
	}
	return result, rows.Err()
}

// Update locks the shift row, applies mutate and stores it with the returned handover.
func (r *ShiftRepository) Update(ctx context.Context, id string, mutate cashflow.ShiftMutation) (*cashflow.Shift, *cashflow.CashHandover, error) {
	if r == nil || r.store == nil {
		return nil, nil, errors.New("shift repo: nil store")
	}
	if mutate == nil {
		return nil, nil, errors.New("shift repo: nil mutation")
	}
	var (
		shift    *cashflow.Shift
		handover *cashflow.CashHandover
	)
	err := r.store.inTx(ctx, func(tx *sql.Tx) error {
		locked, err := r.store.lockShift(ctx, tx, id)
		if err != nil {
			return err
		}
		fromVersion := locked.Version
		handover, err = mutate(locked)
		if err != nil {
			return err
		}
		if locked.Version == fromVersion {
			locked.Version++
		}
		if err := r.store.saveShift(ctx, tx, locked, fromVersion); err != nil {
			return err
		}
		if handover != nil {
			if err := r.store.insertHandover(ctx, tx, handover); err != nil {
				return err
			}
		}
		shift = locked
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return shift, handover, nil
}

func (s *Store) lockShift(ctx context.Context, tx *sql.Tx, id string) (*cashflow.Shift, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1 FOR UPDATE`, shiftColumns, s.shifts)
	shift, err := scanShift(tx.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cashflow.ErrShiftNotFound
	}
	return shift, err
}

func (s *Store) saveShift(ctx context.Context, tx *sql.Tx, shift *cashflow.Shift, fromVersion int) error {
	query := fmt.Sprintf(`
UPDATE %s SET
	status = $2,
	ended_at = $3,
	expected_cash = $4,
	expected_online = $5,
	expected_credit = $6,
	litres = $7,
	sales = $8,
	reading_count = $9,
	actual_cash = $10,
	actual_online = $11,
	variance = $12,
	online_variance = $13,
	variance_severity = $14,
	closed_by = $15,
	version = $16,
	updated_at = NOW()
WHERE id = $1 AND version = $17`, s.shifts)

	res, err := tx.ExecContext(ctx, query,
		shift.ID,
		string(shift.Status),
		nullTime(shift.EndedAt),
		shift.ExpectedCash,
		shift.ExpectedOnline,
		shift.ExpectedCredit,
		shift.Litres,
		shift.Sales,
		shift.ReadingCount,
		shift.ActualCash,
		shift.ActualOnline,
		shift.Variance,
		shift.OnlineVariance,
		string(shift.VarianceSeverity),
		shift.ClosedBy,
		shift.Version,
		fromVersion,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return cashflow.ErrConcurrentUpdate
	}
	return nil
}

func scanShift(row rowScanner) (*cashflow.Shift, error) {
	var (
		shift    cashflow.Shift
		status   string
		severity string
		ended    sql.NullTime
	)
	if err := row.Scan(
		&shift.ID,
		&shift.TenantID,
		&shift.StationID,
		&shift.EmployeeID,
		&status,
		&shift.StartedAt,
		&ended,
		&shift.ExpectedCash,
		&shift.ExpectedOnline,
		&shift.ExpectedCredit,
		&shift.Litres,
		&shift.Sales,
		&shift.ReadingCount,
		&shift.ActualCash,
		&shift.ActualOnline,
		&shift.Variance,
		&shift.OnlineVariance,
		&severity,
		&shift.ClosedBy,
		&shift.Version,
	); err != nil {
		return nil, err
	}
	shift.Status = cashflow.ShiftStatus(status)
	shift.VarianceSeverity = discrepancy.Severity(severity)
	shift.StartedAt = shift.StartedAt.UTC()
	shift.EndedAt = timePtr(ended)
	return &shift, nil
}
