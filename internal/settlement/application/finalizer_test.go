package application

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"

	"fuelstation-cloud/internal/auth"
	masterdata "fuelstation-cloud/internal/masterdata/domain"
	settlement "fuelstation-cloud/internal/settlement/domain"
	"fuelstation-cloud/internal/settlement/infrastructure/memory"
)

type stubReader struct {
	mu     sync.Mutex
	shifts []settlement.ShiftSummary
	from   time.Time
	to     time.Time
}

func (r *stubReader) ShiftsForPeriod(_ context.Context, _ string, from, to time.Time) ([]settlement.ShiftSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.from, r.to = from, to
	return r.shifts, nil
}

type stationMap map[string]masterdata.Station

func (m stationMap) Get(_ context.Context, id string) (*masterdata.Station, error) {
	station, ok := m[id]
	if !ok {
		return nil, nil
	}
	return &station, nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type recordingPublisher struct {
	mu     sync.Mutex
	events []any
}

func (p *recordingPublisher) Publish(_ context.Context, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

type failingAudit struct{}

func (failingAudit) Record(context.Context, string, string, any, any) error {
	return errors.New("audit down")
}

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func shiftWithChain(id string, depositStatus string) settlement.ShiftSummary {
	return settlement.ShiftSummary{
		ID:           id,
		Status:       "ended",
		ReadingCount: 1,
		Litres:       dec("10"),
		Sales:        dec("1000"),
		ExpectedCash: dec("1000"),
		ActualCash:   dec("1000"),
		Steps: []settlement.HandoverStep{
			{ID: id + "-h1", Type: "collection_from_shift", Status: "confirmed", Expected: dec("1000"), Actual: dec("1000")},
			{ID: id + "-h2", Type: "staff_to_manager", Status: "confirmed", Expected: dec("1000"), Actual: dec("1000")},
			{ID: id + "-h3", Type: "manager_to_owner", Status: "confirmed", Expected: dec("1000"), Actual: dec("1000")},
			{ID: id + "-h4", Type: "deposit", Status: depositStatus, Expected: dec("1000"), Actual: dec("1000"), Final: true},
		},
	}
}

func newFinalizer(t *testing.T, reader *stubReader, opts ...Option) (*Finalizer, *memory.SettlementRepository) {
	t.Helper()
	repo := memory.NewSettlementRepository()
	stations := stationMap{
		"st-1": {ID: "st-1", TenantID: "tenant-1", Timezone: "Asia/Kolkata"},
		"st-2": {ID: "st-2", TenantID: "tenant-2"},
	}
	base := []Option{
		WithClock(fixedClock{now: time.Date(2024, 3, 11, 2, 0, 0, 0, time.UTC)}),
		WithLogger(log.New(io.Discard, "", 0)),
	}
	finalizer, err := NewFinalizer(repo, reader, stations, append(base, opts...)...)
	if err != nil {
		t.Fatalf("finalizer: %v", err)
	}
	return finalizer, repo
}

func TestClosePeriodWaitsForDeposit(t *testing.T) {
	reader := &stubReader{shifts: []settlement.ShiftSummary{shiftWithChain("s-1", "pending")}}
	publisher := &recordingPublisher{}
	finalizer, _ := newFinalizer(t, reader, WithPublisher(publisher))
	cmd := ClosePeriodCommand{StationID: "st-1", Date: "2024-03-10", PreparedBy: "mgr-1"}

	_, err := finalizer.ClosePeriod(context.Background(), cmd)
	if !errors.Is(err, settlement.ErrPeriodNotReady) {
		t.Fatalf("expected ErrPeriodNotReady, got %v", err)
	}
	var notReady *settlement.NotReadyError
	if !errors.As(err, &notReady) || len(notReady.Blockers) != 1 || notReady.Blockers[0].ReferenceID != "s-1-h4" {
		t.Fatalf("expected the deposit step as blocker, got %v", err)
	}

	reader.shifts = []settlement.ShiftSummary{shiftWithChain("s-1", "confirmed")}
	s, err := finalizer.ClosePeriod(context.Background(), cmd)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if !s.TotalSales.Equal(dec("1000")) || !s.DepositedCash.Equal(dec("1000")) || !s.FinalVariance.IsZero() {
		t.Fatalf("unexpected settlement: %+v", s)
	}
	if s.TenantID != "tenant-1" || s.Timezone != "Asia/Kolkata" || s.SnapshotHash == "" {
		t.Fatalf("unexpected metadata: %+v", s)
	}
	if want := time.Date(2024, 3, 9, 18, 30, 0, 0, time.UTC); !reader.from.Equal(want) {
		t.Fatalf("period must start at local midnight, got %s", reader.from)
	}
	if len(publisher.events) != 1 {
		t.Fatalf("expected one PeriodClosed event, got %d", len(publisher.events))
	}
	if event, ok := publisher.events[0].(PeriodClosed); !ok || event.SettlementID != s.ID {
		t.Fatalf("unexpected event: %+v", publisher.events[0])
	}

	if _, err := finalizer.ClosePeriod(context.Background(), cmd); !errors.Is(err, settlement.ErrPeriodAlreadyClosed) {
		t.Fatalf("expected ErrPeriodAlreadyClosed, got %v", err)
	}
}

func TestClosePeriodEmptyDay(t *testing.T) {
	finalizer, _ := newFinalizer(t, &stubReader{})
	s, err := finalizer.ClosePeriod(context.Background(), ClosePeriodCommand{StationID: "st-2", Date: "2024-03-10"})
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if s.ShiftCount != 0 || !s.TotalSales.IsZero() || !s.DepositedCash.IsZero() {
		t.Fatalf("empty day must settle to zero: %+v", s)
	}
	if s.Timezone != "UTC" {
		t.Fatalf("station without timezone falls back to UTC, got %s", s.Timezone)
	}
}

func TestClosePeriodValidation(t *testing.T) {
	finalizer, _ := newFinalizer(t, &stubReader{})
	cases := []struct {
		name string
		ctx  context.Context
		cmd  ClosePeriodCommand
		want error
	}{
		{name: "missing station", ctx: context.Background(), cmd: ClosePeriodCommand{Date: "2024-03-10"}, want: settlement.ErrEmptyStationID},
		{name: "bad date", ctx: context.Background(), cmd: ClosePeriodCommand{StationID: "st-1", Date: "2024/03/10"}, want: settlement.ErrInvalidDate},
		{
			name: "foreign tenant",
			ctx:  auth.WithIdentity(context.Background(), "tenant-2", auth.RoleOwner, "own-2"),
			cmd:  ClosePeriodCommand{StationID: "st-1", Date: "2024-03-10"},
			want: auth.ErrTenantMismatch,
		},
		{
			name: "station not rostered",
			ctx:  auth.WithStations(auth.WithIdentity(context.Background(), "tenant-1", auth.RoleManager, "mgr-2"), "st-9"),
			cmd:  ClosePeriodCommand{StationID: "st-1", Date: "2024-03-10"},
			want: auth.ErrStationNotAssigned,
		},
		{name: "day still open", ctx: context.Background(), cmd: ClosePeriodCommand{StationID: "st-2", Date: "2024-03-11"}, want: settlement.ErrPeriodNotEnded},
		{name: "local day still open", ctx: context.Background(), cmd: ClosePeriodCommand{StationID: "st-1", Date: "2024-03-11"}, want: settlement.ErrPeriodNotEnded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := finalizer.ClosePeriod(tc.ctx, tc.cmd); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestAuditFailureDoesNotBlockClose(t *testing.T) {
	finalizer, repo := newFinalizer(t, &stubReader{}, WithAuditSink(failingAudit{}))
	s, err := finalizer.ClosePeriod(context.Background(), ClosePeriodCommand{StationID: "st-1", Date: "2024-03-10"})
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	stored, _ := repo.Get(context.Background(), s.ID)
	if stored == nil {
		t.Fatalf("settlement must be stored")
	}
}

func TestGetAndListHideForeignTenants(t *testing.T) {
	finalizer, _ := newFinalizer(t, &stubReader{})
	s, err := finalizer.ClosePeriod(context.Background(), ClosePeriodCommand{StationID: "st-1", Date: "2024-03-10"})
	if err != nil {
		t.Fatalf("close: %v", err)
	}

	owner := auth.WithIdentity(context.Background(), "tenant-1", auth.RoleOwner, "own-1")
	if _, err := finalizer.Get(owner, s.ID); err != nil {
		t.Fatalf("owner get: %v", err)
	}
	list, err := finalizer.List(owner, "st-1", "", "")
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one settlement, got %v %v", list, err)
	}

	other := auth.WithIdentity(context.Background(), "tenant-2", auth.RoleOwner, "own-2")
	if _, err := finalizer.Get(other, s.ID); !errors.Is(err, settlement.ErrSettlementNotFound) {
		t.Fatalf("expected ErrSettlementNotFound, got %v", err)
	}
	list, _ = finalizer.List(other, "st-1", "2024-03-01", "2024-03-31")
	if len(list) != 0 {
		t.Fatalf("foreign tenant must not list settlements: %v", list)
	}
}

func TestSchedulerClosesPreviousDay(t *testing.T) {
	reader := &stubReader{}
	finalizer, _ := newFinalizer(t, reader)
	scheduler := NewScheduler(finalizer, []string{"st-2", ""}, "00:30", log.New(io.Discard, "", 0))

	now := time.Date(2024, 3, 11, 0, 30, 0, 0, time.UTC)
	closed := scheduler.RunOnce(context.Background(), now)
	if len(closed) != 1 || settlement.FormatDate(closed[0].BusinessDate) != "2024-03-10" {
		t.Fatalf("expected 2024-03-10 closed, got %+v", closed)
	}
	if closed[0].PreparedBy != "system:auto-close" {
		t.Fatalf("unexpected preparer: %s", closed[0].PreparedBy)
	}
	if again := scheduler.RunOnce(context.Background(), now); len(again) != 0 {
		t.Fatalf("second run must be a no-op, got %d", len(again))
	}
	if !scheduler.shouldRun(now) || scheduler.shouldRun(now.Add(time.Minute)) {
		t.Fatalf("schedule mismatch")
	}
}

func TestClosePeriodWaitsForLocalMidnight(t *testing.T) {
	reader := &stubReader{}
	// 18:00 UTC on 2024-03-10 is 23:30 in Kolkata
	finalizer, _ := newFinalizer(t, reader, WithClock(fixedClock{now: time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)}))
	cmd := ClosePeriodCommand{StationID: "st-1", Date: "2024-03-10"}

	if _, err := finalizer.ClosePeriod(context.Background(), cmd); !errors.Is(err, settlement.ErrPeriodNotEnded) {
		t.Fatalf("expected ErrPeriodNotEnded, got %v", err)
	}
	if !reader.from.IsZero() {
		t.Fatalf("an open day must not be read")
	}

	finalizer, _ = newFinalizer(t, reader, WithClock(fixedClock{now: time.Date(2024, 3, 10, 18, 30, 0, 0, time.UTC)}))
	if _, err := finalizer.ClosePeriod(context.Background(), cmd); err != nil {
		t.Fatalf("close at local midnight: %v", err)
	}
}
