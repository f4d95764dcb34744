package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	defaultReadingsTable  = "readings"
	defaultShiftsTable    = "shifts"
	defaultHandoversTable = "cash_handovers"

	uniqueViolation = "23505"

	activeShiftConstraint  = "shifts_one_active_idx"
	reversedOnceConstraint = "readings_reverses_once_idx"
)

// Store is the Postgres home of readings, shifts and handovers. Multi-row
// units run in one transaction with the shift row locked.
type Store struct {
	db        *sql.DB
	readings  string
	shifts    string
	handovers string
}

// Option configures the store.
type Option func(*Store)

// WithTables overrides the default table names.
func WithTables(readings, shifts, handovers string) Option {
	return func(s *Store) {
		if readings != "" {
			s.readings = readings
		}
		if shifts != "" {
			s.shifts = shifts
		}
		if handovers != "" {
			s.handovers = handovers
		}
	}
}

// NewStore constructs a store.
func NewStore(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:        db,
		readings:  defaultReadingsTable,
		shifts:    defaultShiftsTable,
		handovers: defaultHandoversTable,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Readings returns the reading repository view.
func (s *Store) Readings() *ReadingRepository { return &ReadingRepository{store: s} }

// Shifts returns the shift repository view.
func (s *Store) Shifts() *ShiftRepository { return &ShiftRepository{store: s} }

// Handovers returns the handover repository view.
func (s *Store) Handovers() *HandoverRepository { return &HandoverRepository{store: s} }

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if s == nil || s.db == nil {
		return errors.New("cashflow store: nil db")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func uniqueConstraint(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}

type rowScanner interface {
	Scan(dest ...any) error
}

func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func nullTime(value *time.Time) sql.NullTime {
	if value == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: value.UTC(), Valid: true}
}

func timePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time.UTC()
	return &t
}
