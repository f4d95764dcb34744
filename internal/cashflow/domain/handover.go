package cashflow

import (
	"time"

	"github.com/shopspring/decimal"

	"fuelstation-cloud/internal/discrepancy"
)

// HandoverType is one step of the custody chain.
type HandoverType string

const (
	HandoverCollection     HandoverType = "collection_from_shift"
	HandoverStaffToManager HandoverType = "staff_to_manager"
	HandoverManagerToOwner HandoverType = "manager_to_owner"
	HandoverDepositToBank  HandoverType = "deposit_to_bank"
)

var chain = []HandoverType{
	HandoverCollection,
	HandoverStaffToManager,
	HandoverManagerToOwner,
	HandoverDepositToBank,
}

// ChainTypes returns the custody chain in order.
func ChainTypes() []HandoverType {
	out := make([]HandoverType, len(chain))
	copy(out, chain)
	return out
}

// Position returns the zero-based chain index, or -1.
func (t HandoverType) Position() int {
	for i, step := range chain {
		if step == t {
			return i
		}
	}
	return -1
}

// Valid reports whether t is a chain step.
func (t HandoverType) Valid() bool {
	return t.Position() >= 0
}

// Final reports whether t ends the chain.
func (t HandoverType) Final() bool {
	return t == HandoverDepositToBank
}

// Next returns the immediate successor.
func (t HandoverType) Next() (HandoverType, bool) {
	pos := t.Position()
	if pos < 0 || pos+1 >= len(chain) {
		return "", false
	}
	return chain[pos+1], true
}

// ConfirmerRole is the least privileged role that may confirm the step.
func (t HandoverType) ConfirmerRole() string {
	switch t {
	case HandoverCollection:
		return "attendant"
	case HandoverStaffToManager:
		return "manager"
	default:
		return "owner"
	}
}

// HandoverStatus is the state of a custody step.
type HandoverStatus string

const (
	HandoverPending   HandoverStatus = "pending"
	HandoverConfirmed HandoverStatus = "confirmed"
	HandoverDisputed  HandoverStatus = "disputed"
	HandoverResolved  HandoverStatus = "resolved"
)

// Finalized reports whether the step is immutable.
func (s HandoverStatus) Finalized() bool {
	return s == HandoverConfirmed || s == HandoverResolved
}

// CashHandover is one custody-transfer step.
type CashHandover struct {
	ID              string               `json:"id"`
	TenantID        string               `json:"tenant_id"`
	StationID       string               `json:"station_id"`
	ShiftID         string               `json:"shift_id"`
	ParentID        string               `json:"parent_id,omitempty"`
	Type            HandoverType         `json:"type"`
	Status          HandoverStatus       `json:"status"`
	Expected        decimal.Decimal      `json:"expected"`
	Actual          decimal.NullDecimal  `json:"actual"`
	Discrepancy     decimal.Decimal      `json:"discrepancy"`
	Severity        discrepancy.Severity `json:"severity,omitempty"`
	ConfirmedBy     string               `json:"confirmed_by,omitempty"`
	ConfirmedAt     *time.Time           `json:"confirmed_at,omitempty"`
	ResolutionNotes string               `json:"resolution_notes,omitempty"`
	ResolvedBy      string               `json:"resolved_by,omitempty"`
	ResolvedAt      *time.Time           `json:"resolved_at,omitempty"`
	Version         int                  `json:"version"`
	CreatedAt       time.Time            `json:"created_at"`
}

// SameConfirmation reports whether the step was already confirmed with amount.
func (h *CashHandover) SameConfirmation(amount decimal.Decimal) bool {
	return h.Actual.Valid && h.Actual.Decimal.Equal(amount)
}

// Confirm records the counted amount. A blocking classification disputes the
// step instead of confirming it.
func (h *CashHandover) Confirm(amount decimal.Decimal, by string, at time.Time, c discrepancy.Classification, blocks bool) error {
	if h.Status != HandoverPending {
		return ErrHandoverAlreadyFinalized
	}
	if amount.IsNegative() {
		return ErrInvalidAmount
	}
	confirmed := at.UTC()
	h.Actual = decimal.NewNullDecimal(amount)
	h.Discrepancy = h.Expected.Sub(amount)
	h.Severity = c.Severity
	h.ConfirmedBy = by
	h.ConfirmedAt = &confirmed
	if blocks {
		h.Status = HandoverDisputed
	} else {
		h.Status = HandoverConfirmed
	}
	h.Version++
	return nil
}

// Resolve closes a dispute. The discrepancy is retained.
func (h *CashHandover) Resolve(notes, by string, at time.Time) error {
	if h.Status != HandoverDisputed {
		if h.Status == HandoverResolved {
			return ErrHandoverAlreadyFinalized
		}
		return ErrHandoverNotDisputed
	}
	if notes == "" {
		return ErrEmptyResolutionNotes
	}
	resolved := at.UTC()
	h.Status = HandoverResolved
	h.ResolutionNotes = notes
	h.ResolvedBy = by
	h.ResolvedAt = &resolved
	h.Version++
	return nil
}

// Successor builds the next pending step. It returns nil for the final step.
func (h *CashHandover) Successor(id string, at time.Time) (*CashHandover, error) {
	if !h.Status.Finalized() || !h.Actual.Valid {
		return nil, ErrHandoverNotFinalized
	}
	next, ok := h.Type.Next()
	if !ok {
		return nil, nil
	}
	if id == "" {
		return nil, ErrMissingField
	}
	return &CashHandover{
		ID:          id,
		TenantID:    h.TenantID,
		StationID:   h.StationID,
		ShiftID:     h.ShiftID,
		ParentID:    h.ID,
		Type:        next,
		Status:      HandoverPending,
		Expected:    h.Actual.Decimal,
		Discrepancy: decimal.Zero,
		Version:     1,
		CreatedAt:   at.UTC(),
	}, nil
}

// Clone returns a detached copy.
func (h *CashHandover) Clone() *CashHandover {
	if h == nil {
		return nil
	}
	copy := *h
	if h.ConfirmedAt != nil {
		t := *h.ConfirmedAt
		copy.ConfirmedAt = &t
	}
	if h.ResolvedAt != nil {
		t := *h.ResolvedAt
		copy.ResolvedAt = &t
	}
	return &copy
}
