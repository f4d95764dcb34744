package cashflow

import (
	"time"

	"github.com/shopspring/decimal"

	"fuelstation-cloud/internal/discrepancy"
)

// ShiftStatus is the lifecycle state of a shift.
type ShiftStatus string

const (
	ShiftActive    ShiftStatus = "active"
	ShiftEnded     ShiftStatus = "ended"
	ShiftCancelled ShiftStatus = "cancelled"
)

// Terminal reports whether no transition leaves the status.
func (s ShiftStatus) Terminal() bool {
	return s == ShiftEnded || s == ShiftCancelled
}

// Shift is a bounded work period for one employee at one station.
type Shift struct {
	ID               string               `json:"id"`
	TenantID         string               `json:"tenant_id"`
	StationID        string               `json:"station_id"`
	EmployeeID       string               `json:"employee_id"`
	Status           ShiftStatus          `json:"status"`
	StartedAt        time.Time            `json:"started_at"`
	EndedAt          *time.Time           `json:"ended_at,omitempty"`
	ExpectedCash     decimal.Decimal      `json:"expected_cash"`
	ExpectedOnline   decimal.Decimal      `json:"expected_online"`
	ExpectedCredit   decimal.Decimal      `json:"expected_credit"`
	Litres           decimal.Decimal      `json:"litres"`
	Sales            decimal.Decimal      `json:"sales"`
	ReadingCount     int                  `json:"reading_count"`
	ActualCash       decimal.NullDecimal  `json:"actual_cash"`
	ActualOnline     decimal.NullDecimal  `json:"actual_online"`
	Variance         decimal.Decimal      `json:"variance"`
	OnlineVariance   decimal.Decimal      `json:"online_variance"`
	VarianceSeverity discrepancy.Severity `json:"variance_severity,omitempty"`
	ClosedBy         string               `json:"closed_by,omitempty"`
	Version          int                  `json:"version"`
}

// NewShift opens an active shift with zero counters.
func NewShift(id, tenantID, stationID, employeeID string, at time.Time) (*Shift, error) {
	if id == "" || stationID == "" || employeeID == "" {
		return nil, ErrMissingField
	}
	return &Shift{
		ID:             id,
		TenantID:       tenantID,
		StationID:      stationID,
		EmployeeID:     employeeID,
		Status:         ShiftActive,
		StartedAt:      at.UTC(),
		ExpectedCash:   decimal.Zero,
		ExpectedOnline: decimal.Zero,
		ExpectedCredit: decimal.Zero,
		Litres:         decimal.Zero,
		Sales:          decimal.Zero,
		Variance:       decimal.Zero,
		OnlineVariance: decimal.Zero,
		Version:        1,
	}, nil
}

// Apply adds a reading's delta to the running counters.
func (s *Shift) Apply(delta Totals) error {
	if s.Status != ShiftActive {
		return ErrShiftNotActive
	}
	s.ExpectedCash = s.ExpectedCash.Add(delta.Cash)
	s.ExpectedOnline = s.ExpectedOnline.Add(delta.Online)
	s.ExpectedCredit = s.ExpectedCredit.Add(delta.Credit)
	s.Litres = s.Litres.Add(delta.Litres)
	s.Sales = s.Sales.Add(delta.Sales)
	s.ReadingCount += delta.Readings
	s.Version++
	return nil
}

// End freezes the counters and records the counted amounts.
func (s *Shift) End(actualCash, actualOnline decimal.Decimal, by string, at time.Time) error {
	if s.Status != ShiftActive {
		return ErrShiftNotActive
	}
	if actualCash.IsNegative() || actualOnline.IsNegative() {
		return ErrInvalidAmount
	}
	ended := at.UTC()
	s.Status = ShiftEnded
	s.EndedAt = &ended
	s.ActualCash = decimal.NewNullDecimal(actualCash)
	s.ActualOnline = decimal.NewNullDecimal(actualOnline)
	s.Variance = s.ExpectedCash.Sub(actualCash)
	s.OnlineVariance = s.ExpectedOnline.Sub(actualOnline)
	s.ClosedBy = by
	s.Version++
	return nil
}

// Cancel discards the accumulated totals.
func (s *Shift) Cancel(by string, at time.Time) error {
	if s.Status != ShiftActive {
		return ErrShiftNotActive
	}
	ended := at.UTC()
	s.Status = ShiftCancelled
	s.EndedAt = &ended
	s.ExpectedCash = decimal.Zero
	s.ExpectedOnline = decimal.Zero
	s.ExpectedCredit = decimal.Zero
	s.Litres = decimal.Zero
	s.Sales = decimal.Zero
	s.Variance = decimal.Zero
	s.OnlineVariance = decimal.Zero
	s.ClosedBy = by
	s.Version++
	return nil
}

// FirstHandover builds the collection step for an ended shift.
func (s *Shift) FirstHandover(id string, at time.Time) (*CashHandover, error) {
	if s.Status != ShiftEnded || !s.ActualCash.Valid {
		return nil, ErrShiftNotActive
	}
	if id == "" {
		return nil, ErrMissingField
	}
	return &CashHandover{
		ID:          id,
		TenantID:    s.TenantID,
		StationID:   s.StationID,
		ShiftID:     s.ID,
		Type:        HandoverCollection,
		Status:      HandoverPending,
		Expected:    s.ActualCash.Decimal,
		Discrepancy: decimal.Zero,
		Version:     1,
		CreatedAt:   at.UTC(),
	}, nil
}

// Clone returns a detached copy.
func (s *Shift) Clone() *Shift {
	if s == nil {
		return nil
	}
	copy := *s
	if s.EndedAt != nil {
		ended := *s.EndedAt
		copy.EndedAt = &ended
	}
	return &copy
}
