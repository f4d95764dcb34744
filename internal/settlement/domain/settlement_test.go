package settlement

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func depositedShift(id string) ShiftSummary {
	return ShiftSummary{
		ID:             id,
		Status:         "ended",
		ReadingCount:   2,
		Litres:         dec("10"),
		Sales:          dec("1000"),
		ExpectedCash:   dec("900"),
		ExpectedOnline: dec("100"),
		ActualCash:     dec("850"),
		Variance:       dec("-50"),
		Steps: []HandoverStep{
			{ID: id + "-h1", Type: "collection_from_shift", Status: "confirmed", Expected: dec("900"), Actual: dec("850"), Discrepancy: dec("-50")},
			{ID: id + "-h2", Type: "staff_to_manager", Status: "confirmed", Expected: dec("850"), Actual: dec("850")},
			{ID: id + "-h3", Type: "manager_to_owner", Status: "resolved", Expected: dec("850"), Actual: dec("840"), Discrepancy: dec("-10")},
			{ID: id + "-h4", Type: "deposit", Status: "confirmed", Expected: dec("840"), Actual: dec("840"), Final: true},
		},
	}
}

func TestBlockers(t *testing.T) {
	pending := depositedShift("s-2")
	pending.Steps = pending.Steps[:2]
	pending.Steps[1].Status = "pending"

	cases := []struct {
		name   string
		shifts []ShiftSummary
		kinds  []string
	}{
		{name: "empty day", shifts: nil},
		{name: "deposited", shifts: []ShiftSummary{depositedShift("s-1")}},
		{name: "cancelled is ignored", shifts: []ShiftSummary{{ID: "s-3", Status: "cancelled"}}},
		{name: "active shift", shifts: []ShiftSummary{{ID: "s-4", Status: "active"}}, kinds: []string{"shift"}},
		{name: "no collection", shifts: []ShiftSummary{{ID: "s-5", Status: "ended"}}, kinds: []string{"shift"}},
		{name: "chain in flight", shifts: []ShiftSummary{pending}, kinds: []string{"handover", "chain"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			blockers := Blockers(tc.shifts)
			if len(blockers) != len(tc.kinds) {
				t.Fatalf("expected %d blockers, got %+v", len(tc.kinds), blockers)
			}
			for i, kind := range tc.kinds {
				if blockers[i].Kind != kind {
					t.Fatalf("blocker %d: expected %s, got %s", i, kind, blockers[i].Kind)
				}
			}
		})
	}
}

func TestNotReadyErrorMatchesSentinel(t *testing.T) {
	err := error(&NotReadyError{Blockers: []Blocker{{Kind: "shift", ReferenceID: "s-1", Detail: "shift is not ended"}}})
	if !errors.Is(err, ErrPeriodNotReady) {
		t.Fatalf("expected ErrPeriodNotReady, got %v", err)
	}
}

func TestSummarize(t *testing.T) {
	s := &Settlement{}
	s.Summarize([]ShiftSummary{depositedShift("s-1"), {ID: "s-2", Status: "cancelled"}})

	if s.ShiftCount != 2 || s.CancelledShifts != 1 || s.ReadingCount != 2 {
		t.Fatalf("unexpected counts: %+v", s)
	}
	checks := []struct {
		name string
		got  decimal.Decimal
		want string
	}{
		{"sales", s.TotalSales, "1000"},
		{"cash", s.CashTotal, "900"},
		{"online", s.OnlineTotal, "100"},
		{"counted", s.CountedCash, "850"},
		{"shift variance", s.ShiftVariance, "-50"},
		{"deposited", s.DepositedCash, "840"},
		{"final variance", s.FinalVariance, "-50"},
		{"resolved", s.ResolvedDiscrepancy, "-10"},
	}
	for _, c := range checks {
		if !c.got.Equal(dec(c.want)) {
			t.Fatalf("%s: expected %s, got %s", c.name, c.want, c.got)
		}
	}
	if s.ResolvedCount != 1 {
		t.Fatalf("expected one resolved step, got %d", s.ResolvedCount)
	}
}

func TestDayBounds(t *testing.T) {
	date, err := ParseDate("2024-03-10")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	loc := time.FixedZone("IST", 5*3600+1800)
	start, end := DayBounds(date, loc)
	if !start.Equal(time.Date(2024, 3, 9, 18, 30, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start: %s", start)
	}
	if end.Sub(start) != 24*time.Hour {
		t.Fatalf("unexpected span: %s", end.Sub(start))
	}
	if _, err := ParseDate("10/03/2024"); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}

func TestSettlementIdentityAndHash(t *testing.T) {
	date, _ := ParseDate("2024-03-10")
	first, err := BuildSettlementID("st-1", date)
	if err != nil {
		t.Fatalf("id: %v", err)
	}
	second, _ := BuildSettlementID("st-1", date)
	other, _ := BuildSettlementID("st-2", date)
	if first != second || first == other {
		t.Fatalf("ids must be stable per station-day: %s %s %s", first, second, other)
	}
	if _, err := BuildSettlementID("", date); !errors.Is(err, ErrEmptyStationID) {
		t.Fatalf("expected ErrEmptyStationID, got %v", err)
	}

	shifts := []ShiftSummary{depositedShift("s-1")}
	s := &Settlement{ID: first, StationID: "st-1", BusinessDate: date}
	s.Summarize(shifts)
	h1, err := ComputeSnapshotHash(s, shifts)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	s.DepositedCash = s.DepositedCash.Add(decimal.NewFromInt(1))
	h2, _ := ComputeSnapshotHash(s, shifts)
	if h1 == h2 {
		t.Fatalf("hash must change with figures")
	}
}
