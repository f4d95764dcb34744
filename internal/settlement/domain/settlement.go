package settlement

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	shiftStatusEnded     = "ended"
	shiftStatusCancelled = "cancelled"

	stepStatusConfirmed = "confirmed"
	stepStatusResolved  = "resolved"
)

// HandoverStep is the settlement view of one custody step.
type HandoverStep struct {
	ID          string
	Type        string
	Status      string
	Expected    decimal.Decimal
	Actual      decimal.Decimal
	Discrepancy decimal.Decimal
	// Final marks the last step type of the chain.
	Final bool
}

// ShiftSummary is the settlement view of one shift with its chain in order.
type ShiftSummary struct {
	ID             string
	Status         string
	ReadingCount   int
	Litres         decimal.Decimal
	Sales          decimal.Decimal
	ExpectedCash   decimal.Decimal
	ExpectedOnline decimal.Decimal
	ExpectedCredit decimal.Decimal
	ActualCash     decimal.Decimal
	Variance       decimal.Decimal
	Steps          []HandoverStep
}

// Settlement is the immutable closing record of a station-day.
type Settlement struct {
	ID                  string          `json:"id"`
	TenantID            string          `json:"tenant_id"`
	StationID           string          `json:"station_id"`
	BusinessDate        time.Time       `json:"business_date"`
	Timezone            string          `json:"timezone"`
	PeriodStart         time.Time       `json:"period_start"`
	PeriodEnd           time.Time       `json:"period_end"`
	ShiftCount          int             `json:"shift_count"`
	CancelledShifts     int             `json:"cancelled_shifts"`
	ReadingCount        int             `json:"reading_count"`
	Litres              decimal.Decimal `json:"litres"`
	TotalSales          decimal.Decimal `json:"total_sales"`
	CashTotal           decimal.Decimal `json:"cash_total"`
	OnlineTotal         decimal.Decimal `json:"online_total"`
	CreditTotal         decimal.Decimal `json:"credit_total"`
	CountedCash         decimal.Decimal `json:"counted_cash"`
	ShiftVariance       decimal.Decimal `json:"shift_variance"`
	DepositedCash       decimal.Decimal `json:"deposited_cash"`
	FinalVariance       decimal.Decimal `json:"final_variance"`
	ResolvedDiscrepancy decimal.Decimal `json:"resolved_discrepancy"`
	ResolvedCount       int             `json:"resolved_count"`
	PreparedBy          string          `json:"prepared_by"`
	ApprovedBy          string          `json:"approved_by,omitempty"`
	SnapshotHash        string          `json:"snapshot_hash"`
	ClosedAt            time.Time       `json:"closed_at"`
}

// BuildSettlementID derives the settlement identity from station and business date.
func BuildSettlementID(stationID string, date time.Time) (string, error) {
	if stationID == "" {
		return "", ErrEmptyStationID
	}
	key, err := NewDayTimeKey(date)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(stationID + "|" + key.String()))
	return "stl-" + hex.EncodeToString(sum[:8]), nil
}

// Blockers lists everything that keeps the shifts' period open: active
// shifts, and ended shifts whose chain is missing, unfinished or not yet
// deposited.
func Blockers(shifts []ShiftSummary) []Blocker {
	var blockers []Blocker
	for _, shift := range shifts {
		switch shift.Status {
		case shiftStatusCancelled:
			continue
		case shiftStatusEnded:
		default:
			blockers = append(blockers, Blocker{
				Kind:        "shift",
				ReferenceID: shift.ID,
				Status:      shift.Status,
				Detail:      "shift is not ended",
			})
			continue
		}
		if len(shift.Steps) == 0 {
			blockers = append(blockers, Blocker{
				Kind:        "shift",
				ReferenceID: shift.ID,
				Status:      shift.Status,
				Detail:      "collection handover missing",
			})
			continue
		}
		for _, step := range shift.Steps {
			if step.Status != stepStatusConfirmed && step.Status != stepStatusResolved {
				blockers = append(blockers, Blocker{
					Kind:        "handover",
					ReferenceID: step.ID,
					Status:      step.Status,
					Detail:      step.Type + " handover is not finalized",
				})
			}
		}
		last := shift.Steps[len(shift.Steps)-1]
		if !last.Final {
			blockers = append(blockers, Blocker{
				Kind:        "chain",
				ReferenceID: shift.ID,
				Status:      last.Type,
				Detail:      "cash has not been deposited",
			})
		}
	}
	return blockers
}

// Summarize aggregates ready shifts into s. Confirmed discrepancies make up
// the final variance; resolved ones are reported separately.
func (s *Settlement) Summarize(shifts []ShiftSummary) {
	s.Litres = decimal.Zero
	s.TotalSales = decimal.Zero
	s.CashTotal = decimal.Zero
	s.OnlineTotal = decimal.Zero
	s.CreditTotal = decimal.Zero
	s.CountedCash = decimal.Zero
	s.ShiftVariance = decimal.Zero
	s.DepositedCash = decimal.Zero
	s.FinalVariance = decimal.Zero
	s.ResolvedDiscrepancy = decimal.Zero
	s.ShiftCount = 0
	s.CancelledShifts = 0
	s.ReadingCount = 0
	s.ResolvedCount = 0

	for _, shift := range shifts {
		s.ShiftCount++
		if shift.Status == shiftStatusCancelled {
			s.CancelledShifts++
			continue
		}
		s.ReadingCount += shift.ReadingCount
		s.Litres = s.Litres.Add(shift.Litres)
		s.TotalSales = s.TotalSales.Add(shift.Sales)
		s.CashTotal = s.CashTotal.Add(shift.ExpectedCash)
		s.OnlineTotal = s.OnlineTotal.Add(shift.ExpectedOnline)
		s.CreditTotal = s.CreditTotal.Add(shift.ExpectedCredit)
		s.CountedCash = s.CountedCash.Add(shift.ActualCash)
		s.ShiftVariance = s.ShiftVariance.Add(shift.Variance)
		for _, step := range shift.Steps {
			switch step.Status {
			case stepStatusConfirmed:
				s.FinalVariance = s.FinalVariance.Add(step.Discrepancy)
			case stepStatusResolved:
				s.ResolvedDiscrepancy = s.ResolvedDiscrepancy.Add(step.Discrepancy)
				s.ResolvedCount++
			}
			if step.Final {
				s.DepositedCash = s.DepositedCash.Add(step.Actual)
			}
		}
	}
}

// ComputeSnapshotHash fingerprints the settlement figures and the shift ids
// they were built from.
func ComputeSnapshotHash(s *Settlement, shifts []ShiftSummary) (string, error) {
	ids := make([]string, 0, len(shifts))
	for _, shift := range shifts {
		ids = append(ids, shift.ID)
	}
	payload := struct {
		ID            string   `json:"id"`
		StationID     string   `json:"station_id"`
		BusinessDate  string   `json:"business_date"`
		Litres        string   `json:"litres"`
		TotalSales    string   `json:"total_sales"`
		CashTotal     string   `json:"cash_total"`
		OnlineTotal   string   `json:"online_total"`
		CreditTotal   string   `json:"credit_total"`
		CountedCash   string   `json:"counted_cash"`
		DepositedCash string   `json:"deposited_cash"`
		FinalVariance string   `json:"final_variance"`
		Resolved      string   `json:"resolved_discrepancy"`
		Shifts        []string `json:"shifts"`
	}{
		ID:            s.ID,
		StationID:     s.StationID,
		BusinessDate:  FormatDate(s.BusinessDate),
		Litres:        s.Litres.StringFixed(3),
		TotalSales:    s.TotalSales.StringFixed(2),
		CashTotal:     s.CashTotal.StringFixed(2),
		OnlineTotal:   s.OnlineTotal.StringFixed(2),
		CreditTotal:   s.CreditTotal.StringFixed(2),
		CountedCash:   s.CountedCash.StringFixed(2),
		DepositedCash: s.DepositedCash.StringFixed(2),
		FinalVariance: s.FinalVariance.StringFixed(2),
		Resolved:      s.ResolvedDiscrepancy.StringFixed(2),
		Shifts:        ids,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
