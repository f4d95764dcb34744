package application

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"fuelstation-cloud/internal/auth"
	cashflow "fuelstation-cloud/internal/cashflow/domain"
	"fuelstation-cloud/internal/discrepancy"
	"fuelstation-cloud/internal/observability/metrics"
)

// EndShiftCommand is the input of a shift end.
type EndShiftCommand struct {
	ShiftID      string
	ActualCash   decimal.Decimal
	ActualOnline decimal.Decimal
	ActorID      string
}

// ShiftOutcome is an ended shift with its opened collection step.
type ShiftOutcome struct {
	Shift          *cashflow.Shift             `json:"shift"`
	Handover       *cashflow.CashHandover      `json:"handover"`
	Classification *discrepancy.Classification `json:"classification"`
}

// ShiftService owns the shift lifecycle.
type ShiftService struct {
	shifts cashflow.ShiftRepository
	options
}

// NewShiftService constructs the shift service.
func NewShiftService(shifts cashflow.ShiftRepository, opts ...Option) (*ShiftService, error) {
	if shifts == nil {
		return nil, errors.New("shift service: nil shift repository")
	}
	return &ShiftService{shifts: shifts, options: buildOptions(opts)}, nil
}

// Start opens a shift for an employee at a station.
func (s *ShiftService) Start(ctx context.Context, employeeID, stationID, actorID string) (*cashflow.Shift, error) {
	result := metrics.ResultSuccess
	defer func() { metrics.IncShiftTransition("start", result) }()

	if err := stationAssigned(ctx, stationID); err != nil {
		result = metrics.ResultRejected
		return nil, err
	}
	shift, err := cashflow.NewShift(s.ids(), auth.TenantIDFromContext(ctx), stationID, employeeID, s.now())
	if err != nil {
		result = metrics.ResultRejected
		return nil, err
	}
	if err := s.shifts.Create(ctx, shift); err != nil {
		result = metrics.ResultError
		if errors.Is(err, cashflow.ErrDuplicateActiveShift) {
			result = metrics.ResultRejected
		}
		return nil, err
	}
	s.record(ctx, "shift.started", actorOr(actorID, employeeID), nil, shift)
	return shift, nil
}

// End freezes the shift counters, classifies the cash variance and opens the
// collection step in the same unit.
func (s *ShiftService) End(ctx context.Context, cmd EndShiftCommand) (*ShiftOutcome, error) {
	result := metrics.ResultSuccess
	defer func() { metrics.IncShiftTransition("end", result) }()

	if cmd.ShiftID == "" {
		result = metrics.ResultRejected
		return nil, cashflow.ErrMissingField
	}
	now := s.now()
	var (
		before         *cashflow.Shift
		classification discrepancy.Classification
	)
	shift, handover, err := s.shifts.Update(ctx, cmd.ShiftID, func(shift *cashflow.Shift) (*cashflow.CashHandover, error) {
		if !tenantVisible(ctx, shift.TenantID) {
			return nil, cashflow.ErrShiftNotFound
		}
		if err := stationAssigned(ctx, shift.StationID); err != nil {
			return nil, err
		}
		before = shift.Clone()
		if err := shift.End(cmd.ActualCash, cmd.ActualOnline, cmd.ActorID, now); err != nil {
			return nil, err
		}
		classification = s.detector.Classify(shift.StationID, shift.ExpectedCash, cmd.ActualCash)
		shift.VarianceSeverity = classification.Severity
		return shift.FirstHandover(s.ids(), now)
	})
	if err != nil {
		result = metrics.ResultRejected
		if !isStateError(err) {
			result = metrics.ResultError
		}
		return nil, err
	}

	actor := actorOr(cmd.ActorID, shift.EmployeeID)
	s.record(ctx, "shift.ended", actor, before, shift)
	s.record(ctx, "handover.created", actor, nil, handover)
	s.detector.Report(ctx, discrepancy.Alert{
		TenantID:       shift.TenantID,
		StationID:      shift.StationID,
		Stage:          discrepancy.StageShiftEnd,
		ReferenceID:    shift.ID,
		ReferenceType:  "shift",
		Actor:          actor,
		Classification: classification,
		OccurredAt:     now,
	})
	metrics.IncHandoverTransition(string(handover.Type), string(handover.Status))
	s.publish(ctx, ShiftEnded{
		ShiftID:      shift.ID,
		StationID:    shift.StationID,
		EmployeeID:   shift.EmployeeID,
		ExpectedCash: shift.ExpectedCash,
		ActualCash:   cmd.ActualCash,
		Variance:     shift.Variance,
		Severity:     string(classification.Severity),
		HandoverID:   handover.ID,
		OccurredAt:   now,
	})
	s.flag(ctx, discrepancy.StageShiftEnd, shift.StationID, shift.ID, classification, now)
	return &ShiftOutcome{Shift: shift, Handover: handover, Classification: &classification}, nil
}

// Cancel closes an active shift without a handover.
func (s *ShiftService) Cancel(ctx context.Context, shiftID, actorID string) (*cashflow.Shift, error) {
	result := metrics.ResultSuccess
	defer func() { metrics.IncShiftTransition("cancel", result) }()

	if shiftID == "" {
		result = metrics.ResultRejected
		return nil, cashflow.ErrMissingField
	}
	var before *cashflow.Shift
	shift, _, err := s.shifts.Update(ctx, shiftID, func(shift *cashflow.Shift) (*cashflow.CashHandover, error) {
		if !tenantVisible(ctx, shift.TenantID) {
			return nil, cashflow.ErrShiftNotFound
		}
		if err := stationAssigned(ctx, shift.StationID); err != nil {
			return nil, err
		}
		before = shift.Clone()
		return nil, shift.Cancel(actorID, s.now())
	})
	if err != nil {
		result = metrics.ResultRejected
		if !isStateError(err) {
			result = metrics.ResultError
		}
		return nil, err
	}
	s.record(ctx, "shift.cancelled", actorOr(actorID, shift.EmployeeID), before, shift)
	return shift, nil
}

// Get loads a shift visible to the caller.
func (s *ShiftService) Get(ctx context.Context, shiftID string) (*cashflow.Shift, error) {
	shift, err := s.shifts.Get(ctx, shiftID)
	if err != nil {
		return nil, err
	}
	if !tenantVisible(ctx, shift.TenantID) {
		return nil, cashflow.ErrShiftNotFound
	}
	if err := stationAssigned(ctx, shift.StationID); err != nil {
		return nil, err
	}
	return shift, nil
}

func (o options) flag(ctx context.Context, stage discrepancy.Stage, stationID, referenceID string, c discrepancy.Classification, at time.Time) {
	if !c.Severity.Flagged() {
		return
	}
	o.publish(ctx, DiscrepancyFlagged{
		StationID:   stationID,
		Stage:       string(stage),
		ReferenceID: referenceID,
		Expected:    c.Expected,
		Actual:      c.Actual,
		Discrepancy: c.Discrepancy,
		Severity:    string(c.Severity),
		OccurredAt:  at,
	})
}

func actorOr(actorID, fallback string) string {
	if actorID != "" {
		return actorID
	}
	return fallback
}

func isStateError(err error) bool {
	return errors.Is(err, cashflow.ErrShiftNotActive) ||
		errors.Is(err, cashflow.ErrShiftNotFound) ||
		errors.Is(err, cashflow.ErrInvalidAmount) ||
		errors.Is(err, cashflow.ErrStationNotAssigned)
}
