package application

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	cashflow "fuelstation-cloud/internal/cashflow/domain"
	masterdata "fuelstation-cloud/internal/masterdata/domain"
	"fuelstation-cloud/internal/observability/metrics"
)

// RecordReadingCommand is the input of a meter reading submission.
type RecordReadingCommand struct {
	ShiftID       string
	NozzleID      string
	CurrentVolume decimal.Decimal
	Payment       cashflow.PaymentSplit
	RecordedBy    string
}

// ReadingOutcome is a persisted reading and the shift counters after it.
type ReadingOutcome struct {
	Reading *cashflow.Reading `json:"reading"`
	Shift   *cashflow.Shift   `json:"shift"`
}

// ReadingLedger records meter readings against active shifts.
type ReadingLedger struct {
	readings cashflow.ReadingRepository
	shifts   cashflow.ShiftRepository
	nozzles  NozzleReader
	prices   PriceLookup
	options
}

// NewReadingLedger constructs the ledger service.
func NewReadingLedger(
	readings cashflow.ReadingRepository,
	shifts cashflow.ShiftRepository,
	nozzles NozzleReader,
	prices PriceLookup,
	opts ...Option,
) (*ReadingLedger, error) {
	if readings == nil {
		return nil, errors.New("reading ledger: nil reading repository")
	}
	if shifts == nil {
		return nil, errors.New("reading ledger: nil shift repository")
	}
	if nozzles == nil {
		return nil, errors.New("reading ledger: nil nozzle reader")
	}
	if prices == nil {
		return nil, errors.New("reading ledger: nil price lookup")
	}
	return &ReadingLedger{
		readings: readings,
		shifts:   shifts,
		nozzles:  nozzles,
		prices:   prices,
		options:  buildOptions(opts),
	}, nil
}

// Record validates and appends a sale reading.
func (l *ReadingLedger) Record(ctx context.Context, cmd RecordReadingCommand) (*ReadingOutcome, error) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveReading(string(cashflow.ReadingKindSale), result, time.Since(start))
	}()

	if cmd.ShiftID == "" || cmd.NozzleID == "" {
		result = metrics.ResultRejected
		return nil, cashflow.ErrMissingField
	}
	shift, err := l.shifts.Get(ctx, cmd.ShiftID)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	if !tenantVisible(ctx, shift.TenantID) {
		result = metrics.ResultRejected
		return nil, cashflow.ErrShiftNotFound
	}
	if err := stationAssigned(ctx, shift.StationID); err != nil {
		result = metrics.ResultRejected
		return nil, err
	}
	if shift.Status != cashflow.ShiftActive {
		result = metrics.ResultRejected
		return nil, cashflow.ErrShiftNotActive
	}
	nozzle, err := l.nozzles.Get(ctx, cmd.NozzleID)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	if nozzle == nil {
		result = metrics.ResultRejected
		return nil, cashflow.ErrNozzleNotFound
	}
	if nozzle.StationID != shift.StationID {
		result = metrics.ResultRejected
		return nil, cashflow.ErrNozzleStationMismatch
	}

	previous := nozzle.OpeningVolume
	basedOn := ""
	latest, err := l.readings.LatestSale(ctx, nozzle.ID)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	if latest != nil {
		previous = latest.CurrentVolume
		basedOn = latest.ID
	}

	now := l.now()
	price, err := l.prices.PriceAt(ctx, nozzle.ID, now)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}

	reading, err := cashflow.NewSaleReading(cashflow.SaleInput{
		ID:             l.ids(),
		TenantID:       shift.TenantID,
		StationID:      shift.StationID,
		NozzleID:       nozzle.ID,
		ShiftID:        shift.ID,
		PreviousVolume: previous,
		CurrentVolume:  cmd.CurrentVolume,
		UnitPrice:      price,
		Payment:        cmd.Payment,
		RecordedBy:     cmd.RecordedBy,
		RecordedAt:     now,
	})
	if err != nil {
		result = metrics.ResultRejected
		return nil, err
	}
	reading.Advisory = l.advisory(ctx, *nozzle)

	updated, err := l.readings.Append(ctx, reading, basedOn)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}

	l.record(ctx, "reading.recorded", cmd.RecordedBy, nil, reading)
	l.publish(ctx, ReadingRecorded{
		ReadingID:   reading.ID,
		ShiftID:     reading.ShiftID,
		StationID:   reading.StationID,
		NozzleID:    reading.NozzleID,
		Kind:        string(reading.Kind),
		Litres:      reading.Litres,
		TotalAmount: reading.TotalAmount,
		OccurredAt:  reading.RecordedAt,
	})
	return &ReadingOutcome{Reading: reading, Shift: updated}, nil
}

// Reverse appends a compensating record for the latest sale of a nozzle.
func (l *ReadingLedger) Reverse(ctx context.Context, readingID, reason, actorID string) (*ReadingOutcome, error) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveReading(string(cashflow.ReadingKindReversal), result, time.Since(start))
	}()

	if readingID == "" || reason == "" {
		result = metrics.ResultRejected
		return nil, cashflow.ErrMissingField
	}
	original, err := l.readings.Get(ctx, readingID)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	if !tenantVisible(ctx, original.TenantID) {
		result = metrics.ResultRejected
		return nil, cashflow.ErrReadingNotFound
	}
	if err := stationAssigned(ctx, original.StationID); err != nil {
		result = metrics.ResultRejected
		return nil, err
	}
	reversal, err := original.Reverse(l.ids(), actorID, reason, l.now())
	if err != nil {
		result = metrics.ResultRejected
		return nil, err
	}
	updated, err := l.readings.Append(ctx, reversal, original.ID)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}

	l.record(ctx, "reading.reversed", actorID, original, reversal)
	l.publish(ctx, ReadingRecorded{
		ReadingID:   reversal.ID,
		ShiftID:     reversal.ShiftID,
		StationID:   reversal.StationID,
		NozzleID:    reversal.NozzleID,
		Kind:        string(reversal.Kind),
		Litres:      reversal.Litres,
		TotalAmount: reversal.TotalAmount,
		OccurredAt:  reversal.RecordedAt,
	})
	return &ReadingOutcome{Reading: reversal, Shift: updated}, nil
}

// ListByShift returns the ledger entries of a shift.
func (l *ReadingLedger) ListByShift(ctx context.Context, shiftID string) ([]cashflow.Reading, error) {
	shift, err := l.shifts.Get(ctx, shiftID)
	if err != nil {
		return nil, err
	}
	if !tenantVisible(ctx, shift.TenantID) {
		return nil, cashflow.ErrShiftNotFound
	}
	if err := stationAssigned(ctx, shift.StationID); err != nil {
		return nil, err
	}
	return l.readings.ListByShift(ctx, shiftID)
}

func (l *ReadingLedger) advisory(ctx context.Context, nozzle masterdata.Nozzle) string {
	if l.tank == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, l.tankTimeout)
	defer cancel()
	advisory, err := l.tank.LowFuelAdvisory(ctx, nozzle)
	if err != nil {
		l.logger.Printf("tank status unavailable: nozzle=%s err=%v", nozzle.ID, err)
		return ""
	}
	return advisory
}
