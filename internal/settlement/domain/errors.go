package settlement

import (
	"fmt"
	"strings"

	"fuelstation-cloud/internal/apperror"
)

var (
	// ErrEmptyStationID is returned when no station is given.
	ErrEmptyStationID = apperror.New(apperror.KindValidation, "MissingField", "settlement: empty station id")
	// ErrInvalidDate is returned for a business date that is not YYYY-MM-DD.
	ErrInvalidDate = apperror.New(apperror.KindValidation, "InvalidDate", "settlement: invalid business date")
	// ErrPeriodNotReady is returned while shifts or handovers of the period are still open.
	ErrPeriodNotReady = apperror.New(apperror.KindState, "PeriodNotReady", "settlement: period has open shifts or handovers")
	// ErrPeriodNotEnded is returned when the business day has not ended in the station's zone.
	ErrPeriodNotEnded = apperror.New(apperror.KindState, "PeriodNotEnded", "settlement: business day has not ended yet")
	// ErrPeriodAlreadyClosed is returned when the period already has a settlement.
	ErrPeriodAlreadyClosed = apperror.New(apperror.KindState, "PeriodAlreadyClosed", "settlement: period already closed")
	// ErrSettlementNotFound is returned when a settlement is not found.
	ErrSettlementNotFound = apperror.New(apperror.KindNotFound, "SettlementNotFound", "settlement: not found")
	// ErrNilSettlement is returned when saving a nil settlement.
	ErrNilSettlement = apperror.New(apperror.KindValidation, "MissingField", "settlement: nil settlement")
)

// Blocker names one record that keeps a period open.
type Blocker struct {
	Kind        string `json:"kind"`
	ReferenceID string `json:"reference_id"`
	Status      string `json:"status,omitempty"`
	Detail      string `json:"detail"`
}

// NotReadyError lists the blockers of a period. It matches ErrPeriodNotReady.
type NotReadyError struct {
	Blockers []Blocker
}

func (e *NotReadyError) Error() string {
	parts := make([]string, 0, len(e.Blockers))
	for _, b := range e.Blockers {
		parts = append(parts, fmt.Sprintf("%s %s: %s", b.Kind, b.ReferenceID, b.Detail))
	}
	return fmt.Sprintf("%s (%s)", ErrPeriodNotReady.Error(), strings.Join(parts, "; "))
}

func (e *NotReadyError) Unwrap() error { return ErrPeriodNotReady }
