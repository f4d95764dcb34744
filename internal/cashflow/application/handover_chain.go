package application

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	cashflow "fuelstation-cloud/internal/cashflow/domain"
	"fuelstation-cloud/internal/discrepancy"
	"fuelstation-cloud/internal/observability/metrics"
)

// ConfirmCommand is the input of a handover confirmation.
type ConfirmCommand struct {
	HandoverID string
	Actual     decimal.Decimal
	ActorID    string
}

// ResolveCommand is the input of a dispute resolution.
type ResolveCommand struct {
	HandoverID string
	Notes      string
	ActorID    string
}

// HandoverOutcome is a decided step and the step it opened, if any.
// Replayed is set when the call repeated an earlier identical decision.
type HandoverOutcome struct {
	Handover       *cashflow.CashHandover      `json:"handover"`
	Next           *cashflow.CashHandover      `json:"next,omitempty"`
	Classification *discrepancy.Classification `json:"classification,omitempty"`
	Replayed       bool                        `json:"replayed"`
}

// HandoverChain moves collected cash through the custody chain.
type HandoverChain struct {
	handovers cashflow.HandoverRepository
	options
}

// NewHandoverChain constructs the chain service.
func NewHandoverChain(handovers cashflow.HandoverRepository, opts ...Option) (*HandoverChain, error) {
	if handovers == nil {
		return nil, errors.New("handover chain: nil handover repository")
	}
	return &HandoverChain{handovers: handovers, options: buildOptions(opts)}, nil
}

// Get loads a handover visible to the caller.
func (c *HandoverChain) Get(ctx context.Context, id string) (*cashflow.CashHandover, error) {
	h, err := c.handovers.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !tenantVisible(ctx, h.TenantID) {
		return nil, cashflow.ErrHandoverNotFound
	}
	if err := stationAssigned(ctx, h.StationID); err != nil {
		return nil, err
	}
	return h, nil
}

// ListByShift returns the custody chain of a shift.
func (c *HandoverChain) ListByShift(ctx context.Context, shiftID string) ([]cashflow.CashHandover, error) {
	chain, err := c.handovers.ListByShift(ctx, shiftID)
	if err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return chain, nil
	}
	if !tenantVisible(ctx, chain[0].TenantID) {
		return nil, cashflow.ErrShiftNotFound
	}
	if err := stationAssigned(ctx, chain[0].StationID); err != nil {
		return nil, err
	}
	return chain, nil
}

// Confirm records the counted amount of a pending step. Within policy the step
// is confirmed and its successor opened; otherwise it is disputed.
func (c *HandoverChain) Confirm(ctx context.Context, cmd ConfirmCommand) (*HandoverOutcome, error) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveHandoverOperation("confirm", result, time.Since(start))
	}()

	h, err := c.Get(ctx, cmd.HandoverID)
	if err != nil {
		result = metrics.ResultRejected
		return nil, err
	}
	if h.Status != cashflow.HandoverPending {
		outcome, err := c.replayConfirm(ctx, h, cmd.Actual)
		if err != nil {
			result = metrics.ResultRejected
		}
		return outcome, err
	}

	now := c.now()
	before := h.Clone()
	fromVersion := h.Version
	classification := c.detector.Classify(h.StationID, h.Expected, cmd.Actual)
	blocks := c.detector.Blocks(h.StationID, classification)
	if err := h.Confirm(cmd.Actual, cmd.ActorID, now, classification, blocks); err != nil {
		result = metrics.ResultRejected
		return nil, err
	}
	var next *cashflow.CashHandover
	if h.Status == cashflow.HandoverConfirmed {
		next, err = h.Successor(c.ids(), now)
		if err != nil {
			result = metrics.ResultError
			return nil, err
		}
	}

	if err := c.handovers.Transition(ctx, h, cashflow.HandoverPending, fromVersion, next); err != nil {
		if !errors.Is(err, cashflow.ErrConcurrentUpdate) {
			result = metrics.ResultError
			return nil, err
		}
		current, getErr := c.handovers.Get(ctx, h.ID)
		if getErr != nil {
			result = metrics.ResultError
			return nil, getErr
		}
		if current.Status != cashflow.HandoverPending {
			if outcome, replayErr := c.replayConfirm(ctx, current, cmd.Actual); replayErr == nil {
				return outcome, nil
			}
		}
		result = metrics.ResultRejected
		return nil, err
	}

	c.afterTransition(ctx, "handover."+string(h.Status), cmd.ActorID, before, h, next, &classification, now)
	return &HandoverOutcome{Handover: h, Next: next, Classification: &classification}, nil
}

// Resolve closes a dispute and opens the successor with the disputed step's
// counted amount as its expectation.
func (c *HandoverChain) Resolve(ctx context.Context, cmd ResolveCommand) (*HandoverOutcome, error) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveHandoverOperation("resolve", result, time.Since(start))
	}()

	h, err := c.Get(ctx, cmd.HandoverID)
	if err != nil {
		result = metrics.ResultRejected
		return nil, err
	}
	if h.Status == cashflow.HandoverResolved {
		outcome, err := c.replayResolve(ctx, h, cmd.Notes)
		if err != nil {
			result = metrics.ResultRejected
		}
		return outcome, err
	}

	now := c.now()
	before := h.Clone()
	fromVersion := h.Version
	if err := h.Resolve(cmd.Notes, cmd.ActorID, now); err != nil {
		result = metrics.ResultRejected
		return nil, err
	}
	next, err := h.Successor(c.ids(), now)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}

	if err := c.handovers.Transition(ctx, h, cashflow.HandoverDisputed, fromVersion, next); err != nil {
		if !errors.Is(err, cashflow.ErrConcurrentUpdate) {
			result = metrics.ResultError
			return nil, err
		}
		current, getErr := c.handovers.Get(ctx, h.ID)
		if getErr != nil {
			result = metrics.ResultError
			return nil, getErr
		}
		if current.Status == cashflow.HandoverResolved {
			if outcome, replayErr := c.replayResolve(ctx, current, cmd.Notes); replayErr == nil {
				return outcome, nil
			}
		}
		result = metrics.ResultRejected
		return nil, err
	}

	c.afterTransition(ctx, "handover.resolved", cmd.ActorID, before, h, next, nil, now)
	return &HandoverOutcome{Handover: h, Next: next}, nil
}

func (c *HandoverChain) replayConfirm(ctx context.Context, h *cashflow.CashHandover, actual decimal.Decimal) (*HandoverOutcome, error) {
	if !h.SameConfirmation(actual) {
		return nil, cashflow.ErrHandoverAlreadyFinalized
	}
	return c.replay(ctx, h)
}

func (c *HandoverChain) replayResolve(ctx context.Context, h *cashflow.CashHandover, notes string) (*HandoverOutcome, error) {
	if h.ResolutionNotes != notes {
		return nil, cashflow.ErrHandoverAlreadyFinalized
	}
	return c.replay(ctx, h)
}

func (c *HandoverChain) replay(ctx context.Context, h *cashflow.CashHandover) (*HandoverOutcome, error) {
	next, err := c.handovers.Child(ctx, h.ID)
	if err != nil {
		return nil, err
	}
	return &HandoverOutcome{Handover: h, Next: next, Replayed: true}, nil
}

func (c *HandoverChain) afterTransition(ctx context.Context, eventType, actorID string, before, h, next *cashflow.CashHandover, classification *discrepancy.Classification, at time.Time) {
	c.record(ctx, eventType, actorID, before, h)
	metrics.IncHandoverTransition(string(h.Type), string(h.Status))
	nextID := ""
	if next != nil {
		nextID = next.ID
		c.record(ctx, "handover.created", actorID, nil, next)
		metrics.IncHandoverTransition(string(next.Type), string(next.Status))
	}
	if classification != nil {
		c.detector.Report(ctx, discrepancy.Alert{
			TenantID:       h.TenantID,
			StationID:      h.StationID,
			Stage:          discrepancy.StageHandover,
			ReferenceID:    h.ID,
			ReferenceType:  string(h.Type),
			Actor:          actorID,
			Classification: *classification,
			OccurredAt:     at,
		})
		c.flag(ctx, discrepancy.StageHandover, h.StationID, h.ID, *classification, at)
	}
	c.publish(ctx, HandoverTransitioned{
		HandoverID:     h.ID,
		ShiftID:        h.ShiftID,
		StationID:      h.StationID,
		Type:           string(h.Type),
		Status:         string(h.Status),
		Expected:       h.Expected,
		Actual:         h.Actual.Decimal,
		Discrepancy:    h.Discrepancy,
		Severity:       string(h.Severity),
		NextHandoverID: nextID,
		Actor:          actorID,
		OccurredAt:     at,
	})
}
