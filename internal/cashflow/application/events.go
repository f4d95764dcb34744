package application

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReadingRecorded is emitted after a sale or reversal is appended.
type ReadingRecorded struct {
	ReadingID   string          `json:"reading_id"`
	ShiftID     string          `json:"shift_id"`
	StationID   string          `json:"station_id"`
	NozzleID    string          `json:"nozzle_id"`
	Kind        string          `json:"kind"`
	Litres      decimal.Decimal `json:"litres"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// ShiftEnded is emitted when a shift ends and its collection step opens.
type ShiftEnded struct {
	ShiftID      string          `json:"shift_id"`
	StationID    string          `json:"station_id"`
	EmployeeID   string          `json:"employee_id"`
	ExpectedCash decimal.Decimal `json:"expected_cash"`
	ActualCash   decimal.Decimal `json:"actual_cash"`
	Variance     decimal.Decimal `json:"variance"`
	Severity     string          `json:"severity"`
	HandoverID   string          `json:"handover_id"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

// HandoverTransitioned is emitted when a step is confirmed, disputed or resolved.
type HandoverTransitioned struct {
	HandoverID     string          `json:"handover_id"`
	ShiftID        string          `json:"shift_id"`
	StationID      string          `json:"station_id"`
	Type           string          `json:"type"`
	Status         string          `json:"status"`
	Expected       decimal.Decimal `json:"expected"`
	Actual         decimal.Decimal `json:"actual"`
	Discrepancy    decimal.Decimal `json:"discrepancy"`
	Severity       string          `json:"severity"`
	NextHandoverID string          `json:"next_handover_id,omitempty"`
	Actor          string          `json:"actor"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

// DiscrepancyFlagged is emitted for warning and critical classifications.
type DiscrepancyFlagged struct {
	StationID   string          `json:"station_id"`
	Stage       string          `json:"stage"`
	ReferenceID string          `json:"reference_id"`
	Expected    decimal.Decimal `json:"expected"`
	Actual      decimal.Decimal `json:"actual"`
	Discrepancy decimal.Decimal `json:"discrepancy"`
	Severity    string          `json:"severity"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

func (ReadingRecorded) EventName() string      { return "cashflow.reading_recorded.v1" }
func (ShiftEnded) EventName() string           { return "cashflow.shift_ended.v1" }
func (HandoverTransitioned) EventName() string { return "cashflow.handover_transitioned.v1" }
func (DiscrepancyFlagged) EventName() string   { return "cashflow.discrepancy_flagged.v1" }

// AggregateKey groups events of one shift so consumers can order them.
func (e ReadingRecorded) AggregateKey() string      { return e.ShiftID }
func (e ShiftEnded) AggregateKey() string           { return e.ShiftID }
func (e HandoverTransitioned) AggregateKey() string { return e.ShiftID }
func (e DiscrepancyFlagged) AggregateKey() string   { return e.ReferenceID }
