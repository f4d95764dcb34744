package cashflow

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReadingKind distinguishes sales from compensating records.
type ReadingKind string

const (
	ReadingKindSale     ReadingKind = "sale"
	ReadingKindReversal ReadingKind = "reversal"
)

// Reading is one immutable meter observation.
type Reading struct {
	ID                string          `json:"id"`
	TenantID          string          `json:"tenant_id"`
	StationID         string          `json:"station_id"`
	NozzleID          string          `json:"nozzle_id"`
	ShiftID           string          `json:"shift_id"`
	Kind              ReadingKind     `json:"kind"`
	PreviousVolume    decimal.Decimal `json:"previous_volume"`
	CurrentVolume     decimal.Decimal `json:"current_volume"`
	Litres            decimal.Decimal `json:"litres"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	Payment           PaymentSplit    `json:"payment"`
	RecordedBy        string          `json:"recorded_by"`
	RecordedAt        time.Time       `json:"recorded_at"`
	Advisory          string          `json:"advisory,omitempty"`
	ReversesReadingID string          `json:"reverses_reading_id,omitempty"`
	Reason            string          `json:"reason,omitempty"`
}

// SaleInput carries everything needed to derive a sale reading.
type SaleInput struct {
	ID             string
	TenantID       string
	StationID      string
	NozzleID       string
	ShiftID        string
	PreviousVolume decimal.Decimal
	CurrentVolume  decimal.Decimal
	UnitPrice      decimal.Decimal
	Payment        PaymentSplit
	RecordedBy     string
	RecordedAt     time.Time
}

// NewSaleReading derives litres and total and enforces the payment split.
func NewSaleReading(in SaleInput) (*Reading, error) {
	if in.ID == "" || in.NozzleID == "" || in.ShiftID == "" || in.StationID == "" {
		return nil, ErrMissingField
	}
	if in.CurrentVolume.LessThan(in.PreviousVolume) {
		return nil, ErrInvalidVolume
	}
	if !in.UnitPrice.IsPositive() {
		return nil, ErrInvalidPrice
	}
	litres := in.CurrentVolume.Sub(in.PreviousVolume)
	total := RoundMoney(litres.Mul(in.UnitPrice))
	payment := in.Payment.Normalize()
	if err := payment.Validate(total); err != nil {
		return nil, err
	}
	return &Reading{
		ID:             in.ID,
		TenantID:       in.TenantID,
		StationID:      in.StationID,
		NozzleID:       in.NozzleID,
		ShiftID:        in.ShiftID,
		Kind:           ReadingKindSale,
		PreviousVolume: in.PreviousVolume,
		CurrentVolume:  in.CurrentVolume,
		Litres:         litres,
		UnitPrice:      in.UnitPrice,
		TotalAmount:    total,
		Payment:        payment,
		RecordedBy:     in.RecordedBy,
		RecordedAt:     in.RecordedAt.UTC(),
	}, nil
}

// Reverse builds the compensating record for a sale. Volumes are kept so the
// nozzle meter falls back to the reversed reading's previous volume.
func (r *Reading) Reverse(id, actor, reason string, at time.Time) (*Reading, error) {
	if r == nil || r.Kind != ReadingKindSale {
		return nil, ErrReadingNotReversible
	}
	if id == "" {
		return nil, ErrMissingField
	}
	return &Reading{
		ID:                id,
		TenantID:          r.TenantID,
		StationID:         r.StationID,
		NozzleID:          r.NozzleID,
		ShiftID:           r.ShiftID,
		Kind:              ReadingKindReversal,
		PreviousVolume:    r.PreviousVolume,
		CurrentVolume:     r.CurrentVolume,
		Litres:            r.Litres.Neg(),
		UnitPrice:         r.UnitPrice,
		TotalAmount:       r.TotalAmount.Neg(),
		Payment:           r.Payment.Negate(),
		RecordedBy:        actor,
		RecordedAt:        at.UTC(),
		ReversesReadingID: r.ID,
		Reason:            reason,
	}, nil
}

// Delta is what the reading adds to its shift counters.
func (r Reading) Delta() Totals {
	return Totals{
		Cash:     r.Payment.Cash,
		Online:   r.Payment.Online,
		Credit:   r.Payment.Credit,
		Litres:   r.Litres,
		Sales:    r.TotalAmount,
		Readings: 1,
	}
}
