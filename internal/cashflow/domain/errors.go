package cashflow

import "fuelstation-cloud/internal/apperror"

var (
	// ErrPaymentSplitMismatch is returned when cash, online and credit do not sum to the total.
	ErrPaymentSplitMismatch = apperror.New(apperror.KindValidation, "PaymentSplitMismatch", "cashflow: payment split does not match total amount")
	// ErrNegativePayment is returned when a payment component is negative.
	ErrNegativePayment = apperror.New(apperror.KindValidation, "InvalidPaymentSplit", "cashflow: payment split has a negative component")
	// ErrUnsupportedSplitVersion is returned for an unknown payment split schema.
	ErrUnsupportedSplitVersion = apperror.New(apperror.KindValidation, "InvalidPaymentSplit", "cashflow: unsupported payment split version")
	// ErrInvalidVolume is returned when a meter reading runs backwards.
	ErrInvalidVolume = apperror.New(apperror.KindValidation, "InvalidVolume", "cashflow: current volume is below previous volume")
	// ErrInvalidPrice is returned for a non-positive unit price.
	ErrInvalidPrice = apperror.New(apperror.KindValidation, "InvalidPrice", "cashflow: unit price must be positive")
	// ErrPriceUnavailable is returned when no price is in force and none is cached.
	ErrPriceUnavailable = apperror.New(apperror.KindState, "PriceUnavailable", "cashflow: no fuel price in force")
	// ErrInvalidAmount is returned for a negative counted amount.
	ErrInvalidAmount = apperror.New(apperror.KindValidation, "InvalidAmount", "cashflow: amount must not be negative")
	// ErrMissingField is returned when a required identifier is empty.
	ErrMissingField = apperror.New(apperror.KindValidation, "MissingField", "cashflow: required field is empty")
	// ErrNozzleStationMismatch is returned when a nozzle does not belong to the shift's station.
	ErrNozzleStationMismatch = apperror.New(apperror.KindValidation, "NozzleStationMismatch", "cashflow: nozzle does not belong to the shift station")
	// ErrEmptyResolutionNotes is returned when a dispute is resolved without notes.
	ErrEmptyResolutionNotes = apperror.New(apperror.KindValidation, "MissingResolutionNotes", "cashflow: resolution notes are required")

	// ErrShiftNotActive is returned when a shift is ended or cancelled.
	ErrShiftNotActive = apperror.New(apperror.KindState, "ShiftNotActive", "cashflow: shift is not active")
	// ErrDuplicateActiveShift is returned when the employee already has an active shift at the station.
	ErrDuplicateActiveShift = apperror.New(apperror.KindState, "DuplicateActiveShift", "cashflow: employee already has an active shift at this station")
	// ErrHandoverAlreadyFinalized is returned when a decided handover is confirmed again with different input.
	ErrHandoverAlreadyFinalized = apperror.New(apperror.KindState, "HandoverAlreadyFinalized", "cashflow: handover already finalized")
	// ErrHandoverNotDisputed is returned when resolving a handover that is not disputed.
	ErrHandoverNotDisputed = apperror.New(apperror.KindState, "HandoverNotDisputed", "cashflow: handover is not disputed")
	// ErrHandoverNotFinalized is returned when a successor is requested for an undecided step.
	ErrHandoverNotFinalized = apperror.New(apperror.KindState, "HandoverNotFinalized", "cashflow: handover is not confirmed or resolved")
	// ErrReadingAlreadyReversed is returned when a reading was already compensated.
	ErrReadingAlreadyReversed = apperror.New(apperror.KindState, "ReadingAlreadyReversed", "cashflow: reading already reversed")
	// ErrReadingNotReversible is returned when a reading is not the latest sale of its nozzle.
	ErrReadingNotReversible = apperror.New(apperror.KindState, "ReadingNotReversible", "cashflow: only the latest sale reading of a nozzle can be reversed")

	// ErrConcurrentUpdate is returned when an optimistic check loses a race.
	ErrConcurrentUpdate = apperror.New(apperror.KindConflict, "ConcurrentUpdate", "cashflow: concurrent update, re-fetch and retry")

	// ErrShiftNotFound is returned when a shift does not exist.
	ErrShiftNotFound = apperror.New(apperror.KindNotFound, "ShiftNotFound", "cashflow: shift not found")
	// ErrHandoverNotFound is returned when a handover does not exist.
	ErrHandoverNotFound = apperror.New(apperror.KindNotFound, "HandoverNotFound", "cashflow: handover not found")
	// ErrReadingNotFound is returned when a reading does not exist.
	ErrReadingNotFound = apperror.New(apperror.KindNotFound, "ReadingNotFound", "cashflow: reading not found")
	// ErrNozzleNotFound is returned when a nozzle does not exist.
	ErrNozzleNotFound = apperror.New(apperror.KindNotFound, "NozzleNotFound", "cashflow: nozzle not found")

	// ErrStationNotAssigned is returned when the caller is not rostered on the record's station.
	ErrStationNotAssigned = apperror.New(apperror.KindForbidden, "StationNotAssigned", "cashflow: caller is not assigned to this station")
	// ErrForbiddenRole is returned when the caller's role may not act on a handover step.
	ErrForbiddenRole = apperror.New(apperror.KindForbidden, "ForbiddenRole", "cashflow: role may not confirm this handover step")
)
