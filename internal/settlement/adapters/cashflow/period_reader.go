package cashflow

import (
	"context"
	"errors"
	"time"

	cashflow "fuelstation-cloud/internal/cashflow/domain"
	settlement "fuelstation-cloud/internal/settlement/domain"
)

// PeriodReader builds settlement summaries from the shift and handover stores.
type PeriodReader struct {
	shifts    cashflow.ShiftRepository
	handovers cashflow.HandoverRepository
}

// NewPeriodReader constructs a reader.
func NewPeriodReader(shifts cashflow.ShiftRepository, handovers cashflow.HandoverRepository) (*PeriodReader, error) {
	if shifts == nil || handovers == nil {
		return nil, errors.New("period reader: nil repository")
	}
	return &PeriodReader{shifts: shifts, handovers: handovers}, nil
}

// ShiftsForPeriod returns shifts started in [from, to) with their chains in order.
func (r *PeriodReader) ShiftsForPeriod(ctx context.Context, stationID string, from, to time.Time) ([]settlement.ShiftSummary, error) {
	if stationID == "" {
		return nil, settlement.ErrEmptyStationID
	}
	shifts, err := r.shifts.ListByStation(ctx, stationID, from, to)
	if err != nil {
		return nil, err
	}
	summaries := make([]settlement.ShiftSummary, 0, len(shifts))
	for _, shift := range shifts {
		summary := settlement.ShiftSummary{
			ID:             shift.ID,
			Status:         string(shift.Status),
			ReadingCount:   shift.ReadingCount,
			Litres:         shift.Litres,
			Sales:          shift.Sales,
			ExpectedCash:   shift.ExpectedCash,
			ExpectedOnline: shift.ExpectedOnline,
			ExpectedCredit: shift.ExpectedCredit,
			ActualCash:     shift.ActualCash.Decimal,
			Variance:       shift.Variance,
		}
		if shift.Status == cashflow.ShiftEnded {
			chain, err := r.handovers.ListByShift(ctx, shift.ID)
			if err != nil {
				return nil, err
			}
			for _, h := range chain {
				summary.Steps = append(summary.Steps, settlement.HandoverStep{
					ID:          h.ID,
					Type:        string(h.Type),
					Status:      string(h.Status),
					Expected:    h.Expected,
					Actual:      h.Actual.Decimal,
					Discrepancy: h.Discrepancy,
					Final:       h.Type.Final(),
				})
			}
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}
