package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	cashflow "fuelstation-cloud/internal/cashflow/domain"
	"fuelstation-cloud/internal/discrepancy"
)

const handoverColumns = `id, tenant_id, station_id, shift_id, parent_id, handover_type, status,
	expected, actual, discrepancy, severity, confirmed_by, confirmed_at,
	resolution_notes, resolved_by, resolved_at, version, created_at`

// HandoverRepository is a Postgres implementation of the custody chain.
type HandoverRepository struct {
	store *Store
}

// Get loads a handover.
func (r *HandoverRepository) Get(ctx context.Context, id string) (*cashflow.CashHandover, error) {
	if r == nil || r.store == nil || r.store.db == nil {
		return nil, errors.New("handover repo: nil db")
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, handoverColumns, r.store.handovers)
	h, err := scanHandover(r.store.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cashflow.ErrHandoverNotFound
	}
	return h, err
}

// Child returns the step created from parentID, or nil.
func (r *HandoverRepository) Child(ctx context.Context, parentID string) (*cashflow.CashHandover, error) {
	if r == nil || r.store == nil || r.store.db == nil {
		return nil, errors.New("handover repo: nil db")
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE parent_id = $1 LIMIT 1`, handoverColumns, r.store.handovers)
	h, err := scanHandover(r.store.db.QueryRowContext(ctx, query, parentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return h, err
}

// ListByShift returns the chain of a shift in chain order.
func (r *HandoverRepository) ListByShift(ctx context.Context, shiftID string) ([]cashflow.CashHandover, error) {
	if r == nil || r.store == nil || r.store.db == nil {
		return nil, errors.New("handover repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE shift_id = $1
ORDER BY position ASC`, handoverColumns, r.store.handovers)

	rows, err := r.store.db.QueryContext(ctx, query, shiftID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []cashflow.CashHandover
	for rows.Next() {
		h, err := scanHandover(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *h)
	}
	return result, rows.Err()
}

// Transition stores h conditionally on its previous status and version and
// inserts next in the same transaction.
func (r *HandoverRepository) Transition(ctx context.Context, h *cashflow.CashHandover, fromStatus cashflow.HandoverStatus, fromVersion int, next *cashflow.CashHandover) error {
	if r == nil || r.store == nil {
		return errors.New("handover repo: nil store")
	}
	if h == nil || h.ID == "" {
		return cashflow.ErrMissingField
	}

	query := fmt.Sprintf(`
UPDATE %s SET
	status = $2,
	actual = $3,
	discrepancy = $4,
	severity = $5,
	confirmed_by = $6,
	confirmed_at = $7,
	resolution_notes = $8,
	resolved_by = $9,
	resolved_at = $10,
	version = $11,
	updated_at = NOW()
WHERE id = $1 AND status = $12 AND version = $13`, r.store.handovers)

	return r.store.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query,
			h.ID,
			string(h.Status),
			h.Actual,
			h.Discrepancy,
			string(h.Severity),
			h.ConfirmedBy,
			nullTime(h.ConfirmedAt),
			h.ResolutionNotes,
			h.ResolvedBy,
			nullTime(h.ResolvedAt),
			h.Version,
			string(fromStatus),
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
		if next != nil {
			return r.store.insertHandover(ctx, tx, next)
		}
		return nil
	})
}

// insertHandover relies on the unique indexes on parent_id and on the
// collection step per shift; a clash means another writer got there first.
func (s *Store) insertHandover(ctx context.Context, tx *sql.Tx, h *cashflow.CashHandover) error {
	query := fmt.Sprintf(`
INSERT INTO %s (
	id, tenant_id, station_id, shift_id, parent_id, handover_type, position, status,
	expected, actual, discrepancy, severity, confirmed_by, confirmed_at,
	resolution_notes, resolved_by, resolved_at, version, created_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, NOW()
)`, s.handovers)

	_, err := tx.ExecContext(ctx, query,
		h.ID,
		h.TenantID,
		h.StationID,
		h.ShiftID,
		nullString(h.ParentID),
		string(h.Type),
		h.Type.Position(),
		string(h.Status),
		h.Expected,
		h.Actual,
		h.Discrepancy,
		string(h.Severity),
		h.ConfirmedBy,
		nullTime(h.ConfirmedAt),
		h.ResolutionNotes,
		h.ResolvedBy,
		nullTime(h.ResolvedAt),
		h.Version,
		h.CreatedAt.UTC(),
	)
	if _, ok := uniqueConstraint(err); ok {
		return cashflow.ErrConcurrentUpdate
	}
	return err
}

func scanHandover(row rowScanner) (*cashflow.CashHandover, error) {
	var (
		h         cashflow.CashHandover
		parentID  sql.NullString
		kind      string
		status    string
		severity  string
		confirmed sql.NullTime
		resolved  sql.NullTime
	)
	if err := row.Scan(
		&h.ID,
		&h.TenantID,
		&h.StationID,
		&h.ShiftID,
		&parentID,
		&kind,
		&status,
		&h.Expected,
		&h.Actual,
		&h.Discrepancy,
		&severity,
		&h.ConfirmedBy,
		&confirmed,
		&h.ResolutionNotes,
		&h.ResolvedBy,
		&resolved,
		&h.Version,
		&h.CreatedAt,
	); err != nil {
		return nil, err
	}
	h.ParentID = parentID.String
	h.Type = cashflow.HandoverType(kind)
	h.Status = cashflow.HandoverStatus(status)
	h.Severity = discrepancy.Severity(severity)
	h.ConfirmedAt = timePtr(confirmed)
	h.ResolvedAt = timePtr(resolved)
	h.CreatedAt = h.CreatedAt.UTC()
	return &h, nil
}
