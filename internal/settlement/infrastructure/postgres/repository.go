package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	settlement "fuelstation-cloud/internal/settlement/domain"
)

const defaultSettlementTable = "settlements"

const settlementColumns = `id, tenant_id, station_id, business_date, timezone, period_start, period_end,
	shift_count, cancelled_shifts, reading_count, litres, total_sales, cash_total, online_total,
	credit_total, counted_cash, shift_variance, deposited_cash, final_variance,
	resolved_discrepancy, resolved_count, prepared_by, approved_by, snapshot_hash, closed_at`

// SettlementRepository is a Postgres implementation for settlements.
type SettlementRepository struct {
	db    *sql.DB
	table string
}

// NewSettlementRepository constructs a repository with defaults.
func NewSettlementRepository(db *sql.DB, opts ...RepositoryOption) *SettlementRepository {
	repo := &SettlementRepository{
		db:    db,
		table: defaultSettlementTable,
	}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// RepositoryOption configures the repository.
type RepositoryOption func(*SettlementRepository)

// WithTable overrides the default table.
func WithTable(table string) RepositoryOption {
	return func(repo *SettlementRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Get loads a settlement by id. A missing settlement returns nil, nil.
func (r *SettlementRepository) Get(ctx context.Context, id string) (*settlement.Settlement, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("settlement repo: nil db")
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, settlementColumns, r.table)
	s, err := scanSettlement(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// FindByStationDate loads the settlement of a station-day.
func (r *SettlementRepository) FindByStationDate(ctx context.Context, stationID string, date time.Time) (*settlement.Settlement, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("settlement repo: nil db")
	}
	if stationID == "" {
		return nil, settlement.ErrEmptyStationID
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE station_id = $1 AND business_date = $2
LIMIT 1`, settlementColumns, r.table)

	s, err := scanSettlement(r.db.QueryRowContext(ctx, query, stationID, settlement.FormatDate(date)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// Create inserts the settlement. Rows are never updated afterwards.
func (r *SettlementRepository) Create(ctx context.Context, s *settlement.Settlement) error {
	if r == nil || r.db == nil {
		return errors.New("settlement repo: nil db")
	}
	if s == nil {
		return settlement.ErrNilSettlement
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	%s
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
	$21, $22, $23, $24, $25
)`, r.table, settlementColumns)

	_, err := r.db.ExecContext(ctx, query,
		s.ID,
		s.TenantID,
		s.StationID,
		settlement.FormatDate(s.BusinessDate),
		s.Timezone,
		s.PeriodStart.UTC(),
		s.PeriodEnd.UTC(),
		s.ShiftCount,
		s.CancelledShifts,
		s.ReadingCount,
		s.Litres,
		s.TotalSales,
		s.CashTotal,
		s.OnlineTotal,
		s.CreditTotal,
		s.CountedCash,
		s.ShiftVariance,
		s.DepositedCash,
		s.FinalVariance,
		s.ResolvedDiscrepancy,
		s.ResolvedCount,
		s.PreparedBy,
		s.ApprovedBy,
		s.SnapshotHash,
		s.ClosedAt.UTC(),
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return settlement.ErrPeriodAlreadyClosed
	}
	return err
}

// ListByStation returns settlements with business dates in [from, to).
func (r *SettlementRepository) ListByStation(ctx context.Context, stationID string, from, to time.Time) ([]settlement.Settlement, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("settlement repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE station_id = $1 AND business_date >= $2 AND business_date < $3
ORDER BY business_date ASC`, settlementColumns, r.table)

	rows, err := r.db.QueryContext(ctx, query, stationID, settlement.FormatDate(from), settlement.FormatDate(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []settlement.Settlement
	for rows.Next() {
		s, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSettlement(row rowScanner) (*settlement.Settlement, error) {
	var s settlement.Settlement
	if err := row.Scan(
		&s.ID,
		&s.TenantID,
		&s.StationID,
		&s.BusinessDate,
		&s.Timezone,
		&s.PeriodStart,
		&s.PeriodEnd,
		&s.ShiftCount,
		&s.CancelledShifts,
		&s.ReadingCount,
		&s.Litres,
		&s.TotalSales,
		&s.CashTotal,
		&s.OnlineTotal,
		&s.CreditTotal,
		&s.CountedCash,
		&s.ShiftVariance,
		&s.DepositedCash,
		&s.FinalVariance,
		&s.ResolvedDiscrepancy,
		&s.ResolvedCount,
		&s.PreparedBy,
		&s.ApprovedBy,
		&s.SnapshotHash,
		&s.ClosedAt,
	); err != nil {
		return nil, err
	}
	s.BusinessDate = s.BusinessDate.UTC()
	s.PeriodStart = s.PeriodStart.UTC()
	s.PeriodEnd = s.PeriodEnd.UTC()
	s.ClosedAt = s.ClosedAt.UTC()
	return &s, nil
}
