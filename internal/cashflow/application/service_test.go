package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	cashflow "fuelstation-cloud/internal/cashflow/domain"
	"fuelstation-cloud/internal/cashflow/infrastructure/memory"
	"fuelstation-cloud/internal/discrepancy"
	masterdata "fuelstation-cloud/internal/masterdata/domain"
)

func d(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

type fixedPrice struct {
	price decimal.Decimal
}

func (p fixedPrice) PriceAt(context.Context, string, time.Time) (decimal.Decimal, error) {
	return p.price, nil
}

type nozzleMap map[string]masterdata.Nozzle

func (m nozzleMap) Get(_ context.Context, id string) (*masterdata.Nozzle, error) {
	nozzle, ok := m[id]
	if !ok {
		return nil, nil
	}
	return &nozzle, nil
}

type auditRecord struct {
	eventType string
	actorID   string
}

type recordingAudit struct {
	mu      sync.Mutex
	records []auditRecord
	err     error
}

func (a *recordingAudit) Record(_ context.Context, eventType, actorID string, _, _ any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, auditRecord{eventType: eventType, actorID: actorID})
	return a.err
}

func (a *recordingAudit) count(eventType string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, record := range a.records {
		if record.eventType == eventType {
			n++
		}
	}
	return n
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []discrepancy.Alert
}

func (n *recordingNotifier) Notify(_ context.Context, alert discrepancy.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
	return nil
}

func (n *recordingNotifier) snapshot() []discrepancy.Alert {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]discrepancy.Alert, len(n.alerts))
	copy(out, n.alerts)
	return out
}

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

type harness struct {
	store     *memory.Store
	ledger    *ReadingLedger
	shifts    *ShiftService
	chain     *HandoverChain
	audit     *recordingAudit
	notifier  *recordingNotifier
	publisher *recordingPublisher
}

func newHarness(t *testing.T, nozzles nozzleMap) *harness {
	t.Helper()
	store := memory.NewStore()
	audit := &recordingAudit{}
	notifier := &recordingNotifier{}
	publisher := &recordingPublisher{}
	detector := discrepancy.NewDetector(discrepancy.Config{},
		discrepancy.WithNotifier(notifier),
		discrepancy.WithSynchronousDelivery(),
	)
	var seq int
	var mu sync.Mutex
	ids := func() string {
		mu.Lock()
		defer mu.Unlock()
		seq++
		return fmt.Sprintf("id-%03d", seq)
	}
	opts := []Option{
		WithAuditSink(audit),
		WithPublisher(publisher),
		WithDetector(detector),
		WithClock(fixedClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}),
		WithIDGenerator(ids),
		WithLogger(log.New(io.Discard, "", 0)),
	}
	ledger, err := NewReadingLedger(store.Readings(), store.Shifts(), nozzles, fixedPrice{price: d("100")}, opts...)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	shifts, err := NewShiftService(store.Shifts(), opts...)
	if err != nil {
		t.Fatalf("new shift service: %v", err)
	}
	chain, err := NewHandoverChain(store.Handovers(), opts...)
	if err != nil {
		t.Fatalf("new chain: %v", err)
	}
	return &harness{
		store:     store,
		ledger:    ledger,
		shifts:    shifts,
		chain:     chain,
		audit:     audit,
		notifier:  notifier,
		publisher: publisher,
	}
}

func singleNozzle() nozzleMap {
	return nozzleMap{"n-1": {ID: "n-1", StationID: "st-1", FuelType: "diesel", OpeningVolume: d("0")}}
}

func TestRecordReadingPaymentSplit(t *testing.T) {
	h := newHarness(t, singleNozzle())
	ctx := context.Background()
	shift, err := h.shifts.Start(ctx, "emp-1", "st-1", "emp-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	_, err = h.ledger.Record(ctx, RecordReadingCommand{
		ShiftID: shift.ID, NozzleID: "n-1", CurrentVolume: d("10"),
		Payment: cashflow.PaymentSplit{Cash: d("800"), Online: d("100"), Credit: d("0")},
	})
	if !errors.Is(err, cashflow.ErrPaymentSplitMismatch) {
		t.Fatalf("expected PaymentSplitMismatch, got %v", err)
	}
	stored, _ := h.store.Shifts().Get(ctx, shift.ID)
	if stored.ReadingCount != 0 || !stored.ExpectedCash.IsZero() {
		t.Fatalf("rejected reading must not touch the shift: %+v", stored)
	}

	outcome, err := h.ledger.Record(ctx, RecordReadingCommand{
		ShiftID: shift.ID, NozzleID: "n-1", CurrentVolume: d("10"),
		Payment: cashflow.PaymentSplit{Cash: d("900"), Online: d("100"), Credit: d("0")},
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !outcome.Reading.TotalAmount.Equal(d("1000")) || !outcome.Reading.Litres.Equal(d("10")) {
		t.Fatalf("unexpected reading: %+v", outcome.Reading)
	}
	if !outcome.Shift.ExpectedCash.Equal(d("900")) || !outcome.Shift.ExpectedOnline.Equal(d("100")) {
		t.Fatalf("unexpected counters: %+v", outcome.Shift)
	}

	_, err = h.ledger.Record(ctx, RecordReadingCommand{
		ShiftID: shift.ID, NozzleID: "n-1", CurrentVolume: d("9"),
		Payment: cashflow.PaymentSplit{Cash: d("0")},
	})
	if !errors.Is(err, cashflow.ErrInvalidVolume) {
		t.Fatalf("expected InvalidVolume for a backwards meter, got %v", err)
	}
}

func TestRecordReadingRejectsForeignNozzle(t *testing.T) {
	nozzles := singleNozzle()
	nozzles["n-9"] = masterdata.Nozzle{ID: "n-9", StationID: "st-2", FuelType: "diesel"}
	h := newHarness(t, nozzles)
	ctx := context.Background()
	shift, _ := h.shifts.Start(ctx, "emp-1", "st-1", "emp-1")
	_, err := h.ledger.Record(ctx, RecordReadingCommand{
		ShiftID: shift.ID, NozzleID: "n-9", CurrentVolume: d("1"),
		Payment: cashflow.PaymentSplit{Cash: d("100")},
	})
	if !errors.Is(err, cashflow.ErrNozzleStationMismatch) {
		t.Fatalf("expected NozzleStationMismatch, got %v", err)
	}
}

func TestShiftAndHandoverChainScenario(t *testing.T) {
	h := newHarness(t, singleNozzle())
	ctx := context.Background()
	shift, err := h.shifts.Start(ctx, "emp-1", "st-1", "emp-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	for _, step := range []struct{ volume, cash string }{{"5", "500"}, {"8", "300"}, {"10", "200"}} {
		if _, err := h.ledger.Record(ctx, RecordReadingCommand{
			ShiftID: shift.ID, NozzleID: "n-1", CurrentVolume: d(step.volume),
			Payment: cashflow.PaymentSplit{Cash: d(step.cash)},
		}); err != nil {
			t.Fatalf("record %s: %v", step.volume, err)
		}
	}

	ended, err := h.shifts.End(ctx, EndShiftCommand{ShiftID: shift.ID, ActualCash: d("950"), ActualOnline: d("0"), ActorID: "emp-1"})
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if !ended.Shift.ExpectedCash.Equal(d("1000")) || !ended.Shift.Variance.Equal(d("50")) {
		t.Fatalf("unexpected shift totals: %+v", ended.Shift)
	}
	if ended.Classification.Severity != discrepancy.SeverityCritical {
		t.Fatalf("5%% under a 1%% band must be critical, got %s", ended.Classification.Severity)
	}
	first := ended.Handover
	if first.Type != cashflow.HandoverCollection || !first.Expected.Equal(d("950")) || first.Status != cashflow.HandoverPending {
		t.Fatalf("unexpected first handover: %+v", first)
	}
	if len(h.notifier.snapshot()) != 1 {
		t.Fatalf("shift variance must be notified")
	}

	confirmed, err := h.chain.Confirm(ctx, ConfirmCommand{HandoverID: first.ID, Actual: d("950"), ActorID: "emp-1"})
	if err != nil {
		t.Fatalf("confirm first: %v", err)
	}
	if confirmed.Handover.Status != cashflow.HandoverConfirmed || confirmed.Classification.Severity != discrepancy.SeverityNone {
		t.Fatalf("exact match must confirm: %+v", confirmed.Handover)
	}
	second := confirmed.Next
	if second == nil || second.Type != cashflow.HandoverStaffToManager || !second.Expected.Equal(d("950")) {
		t.Fatalf("unexpected second step: %+v", second)
	}

	disputed, err := h.chain.Confirm(ctx, ConfirmCommand{HandoverID: second.ID, Actual: d("900"), ActorID: "mgr-1"})
	if err != nil {
		t.Fatalf("confirm second: %v", err)
	}
	if disputed.Handover.Status != cashflow.HandoverDisputed || disputed.Next != nil {
		t.Fatalf("shortage must dispute without successor: %+v", disputed)
	}
	if !disputed.Handover.Discrepancy.Equal(d("50")) {
		t.Fatalf("discrepancy: got %s", disputed.Handover.Discrepancy)
	}
	alerts := h.notifier.snapshot()
	if len(alerts) != 2 || alerts[1].ReferenceID != second.ID {
		t.Fatalf("dispute must be notified, got %+v", alerts)
	}
	if child, _ := h.store.Handovers().Child(ctx, second.ID); child != nil {
		t.Fatalf("disputed step must not have a child")
	}

	resolved, err := h.chain.Resolve(ctx, ResolveCommand{HandoverID: second.ID, Notes: "shortage investigated", ActorID: "own-1"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Handover.Status != cashflow.HandoverResolved || !resolved.Handover.Discrepancy.Equal(d("50")) {
		t.Fatalf("unexpected resolved step: %+v", resolved.Handover)
	}
	third := resolved.Next
	if third == nil || third.Type != cashflow.HandoverManagerToOwner || !third.Expected.Equal(d("900")) {
		t.Fatalf("unexpected third step: %+v", third)
	}

	final, err := h.chain.Confirm(ctx, ConfirmCommand{HandoverID: third.ID, Actual: d("900"), ActorID: "own-1"})
	if err != nil {
		t.Fatalf("confirm third: %v", err)
	}
	deposit := final.Next
	bank, err := h.chain.Confirm(ctx, ConfirmCommand{HandoverID: deposit.ID, Actual: d("900"), ActorID: "own-1"})
	if err != nil {
		t.Fatalf("confirm deposit: %v", err)
	}
	if bank.Next != nil {
		t.Fatalf("deposit_to_bank must end the chain")
	}

	chain, err := h.chain.ListByShift(ctx, shift.ID)
	if err != nil {
		t.Fatalf("list chain: %v", err)
	}
	if len(chain) != 4 {
		t.Fatalf("expected 4 steps, got %d", len(chain))
	}
	for i := 1; i < len(chain); i++ {
		next, _ := chain[i-1].Type.Next()
		if chain[i].Type != next || chain[i].ParentID != chain[i-1].ID {
			t.Fatalf("chain order broken at %d: %+v", i, chain[i])
		}
	}
	if h.audit.count("handover.created") != 4 || h.audit.count("handover.disputed") != 1 {
		t.Fatalf("unexpected audit trail: %+v", h.audit.records)
	}
}

func TestConfirmIsIdempotent(t *testing.T) {
	h := newHarness(t, singleNozzle())
	ctx := context.Background()
	shift, _ := h.shifts.Start(ctx, "emp-1", "st-1", "emp-1")
	ended, err := h.shifts.End(ctx, EndShiftCommand{ShiftID: shift.ID, ActualCash: d("0"), ActualOnline: d("0")})
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	first, err := h.chain.Confirm(ctx, ConfirmCommand{HandoverID: ended.Handover.ID, Actual: d("0")})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	again, err := h.chain.Confirm(ctx, ConfirmCommand{HandoverID: ended.Handover.ID, Actual: d("0.00")})
	if err != nil {
		t.Fatalf("repeat confirm: %v", err)
	}
	if !again.Replayed || again.Next == nil || again.Next.ID != first.Next.ID {
		t.Fatalf("repeat must return the existing record and child: %+v", again)
	}
	if again.Handover.Version != first.Handover.Version {
		t.Fatalf("repeat must not change the record")
	}
	if _, err := h.chain.Confirm(ctx, ConfirmCommand{HandoverID: ended.Handover.ID, Actual: d("1")}); !errors.Is(err, cashflow.ErrHandoverAlreadyFinalized) {
		t.Fatalf("different amount: got %v", err)
	}
	if _, err := h.chain.Resolve(ctx, ResolveCommand{HandoverID: ended.Handover.ID, Notes: "x"}); !errors.Is(err, cashflow.ErrHandoverNotDisputed) {
		t.Fatalf("resolve confirmed: got %v", err)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	h := newHarness(t, singleNozzle())
	ctx := context.Background()
	shift, _ := h.shifts.Start(ctx, "emp-1", "st-1", "emp-1")
	ended, _ := h.shifts.End(ctx, EndShiftCommand{ShiftID: shift.ID, ActualCash: d("100"), ActualOnline: d("0")})
	if _, err := h.chain.Confirm(ctx, ConfirmCommand{HandoverID: ended.Handover.ID, Actual: d("90")}); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	first, err := h.chain.Resolve(ctx, ResolveCommand{HandoverID: ended.Handover.ID, Notes: "counted twice"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	again, err := h.chain.Resolve(ctx, ResolveCommand{HandoverID: ended.Handover.ID, Notes: "counted twice"})
	if err != nil {
		t.Fatalf("repeat resolve: %v", err)
	}
	if !again.Replayed || again.Next.ID != first.Next.ID {
		t.Fatalf("repeat resolve must replay: %+v", again)
	}
	if _, err := h.chain.Resolve(ctx, ResolveCommand{HandoverID: ended.Handover.ID, Notes: "other"}); !errors.Is(err, cashflow.ErrHandoverAlreadyFinalized) {
		t.Fatalf("different notes: got %v", err)
	}
}

func TestConcurrentConfirmCreatesOneSuccessor(t *testing.T) {
	h := newHarness(t, singleNozzle())
	ctx := context.Background()
	shift, _ := h.shifts.Start(ctx, "emp-1", "st-1", "emp-1")
	ended, _ := h.shifts.End(ctx, EndShiftCommand{ShiftID: shift.ID, ActualCash: d("500"), ActualOnline: d("0")})

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.chain.Confirm(ctx, ConfirmCommand{HandoverID: ended.Handover.ID, Actual: d("500")})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("same-amount confirmations must all succeed, got %v", err)
		}
	}
	chain, _ := h.store.Handovers().ListByShift(ctx, shift.ID)
	if len(chain) != 2 {
		t.Fatalf("expected exactly one successor, chain has %d steps", len(chain))
	}
}

func TestSingleActiveShift(t *testing.T) {
	h := newHarness(t, singleNozzle())
	ctx := context.Background()

	const workers = 12
	var wg sync.WaitGroup
	var mu sync.Mutex
	started, duplicates := 0, 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.shifts.Start(ctx, "emp-1", "st-1", "emp-1")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				started++
			case errors.Is(err, cashflow.ErrDuplicateActiveShift):
				duplicates++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if started != 1 || duplicates != workers-1 {
		t.Fatalf("started=%d duplicates=%d", started, duplicates)
	}
	if _, err := h.shifts.Start(ctx, "emp-1", "st-2", "emp-1"); err != nil {
		t.Fatalf("other station must be allowed: %v", err)
	}
}

func TestConcurrentReadingsKeepEveryUpdate(t *testing.T) {
	nozzles := nozzleMap{}
	const workers = 20
	for i := 0; i < workers; i++ {
		id := fmt.Sprintf("n-%d", i)
		nozzles[id] = masterdata.Nozzle{ID: id, StationID: "st-1", FuelType: "diesel"}
	}
	h := newHarness(t, nozzles)
	ctx := context.Background()
	shift, _ := h.shifts.Start(ctx, "emp-1", "st-1", "emp-1")

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.ledger.Record(ctx, RecordReadingCommand{
				ShiftID: shift.ID, NozzleID: fmt.Sprintf("n-%d", i), CurrentVolume: d("1"),
				Payment: cashflow.PaymentSplit{Cash: d("60"), Online: d("40")},
			})
			if err != nil {
				t.Errorf("record: %v", err)
			}
		}(i)
	}
	wg.Wait()
	stored, _ := h.shifts.Get(ctx, shift.ID)
	if !stored.ExpectedCash.Equal(d("1200")) || !stored.ExpectedOnline.Equal(d("800")) || stored.ReadingCount != workers {
		t.Fatalf("lost updates: %+v", stored)
	}
}

func TestReverseReading(t *testing.T) {
	h := newHarness(t, singleNozzle())
	ctx := context.Background()
	shift, _ := h.shifts.Start(ctx, "emp-1", "st-1", "emp-1")
	first, _ := h.ledger.Record(ctx, RecordReadingCommand{
		ShiftID: shift.ID, NozzleID: "n-1", CurrentVolume: d("2"), Payment: cashflow.PaymentSplit{Cash: d("200")},
	})
	second, _ := h.ledger.Record(ctx, RecordReadingCommand{
		ShiftID: shift.ID, NozzleID: "n-1", CurrentVolume: d("5"), Payment: cashflow.PaymentSplit{Cash: d("300")},
	})

	if _, err := h.ledger.Reverse(ctx, first.Reading.ID, "typo", "mgr-1"); !errors.Is(err, cashflow.ErrReadingNotReversible) {
		t.Fatalf("superseded reading: got %v", err)
	}
	reversed, err := h.ledger.Reverse(ctx, second.Reading.ID, "typo", "mgr-1")
	if err != nil {
		t.Fatalf("reverse: %v", err)
	}
	if !reversed.Shift.ExpectedCash.Equal(d("200")) {
		t.Fatalf("reversal must remove the sale from the counters, got %s", reversed.Shift.ExpectedCash)
	}
	if _, err := h.ledger.Reverse(ctx, second.Reading.ID, "typo", "mgr-1"); !errors.Is(err, cashflow.ErrReadingAlreadyReversed) {
		t.Fatalf("second reversal: got %v", err)
	}

	corrected, err := h.ledger.Record(ctx, RecordReadingCommand{
		ShiftID: shift.ID, NozzleID: "n-1", CurrentVolume: d("4"), Payment: cashflow.PaymentSplit{Cash: d("200")},
	})
	if err != nil {
		t.Fatalf("corrected reading: %v", err)
	}
	if !corrected.Reading.PreviousVolume.Equal(d("2")) {
		t.Fatalf("meter must continue from the last unreversed sale, got %s", corrected.Reading.PreviousVolume)
	}
	readings, _ := h.ledger.ListByShift(ctx, shift.ID)
	if len(readings) != 4 {
		t.Fatalf("ledger is append-only, expected 4 entries, got %d", len(readings))
	}
}

func TestClosedShiftRejectsWork(t *testing.T) {
	h := newHarness(t, singleNozzle())
	ctx := context.Background()
	shift, _ := h.shifts.Start(ctx, "emp-1", "st-1", "emp-1")
	if _, err := h.shifts.Cancel(ctx, shift.ID, "mgr-1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := h.shifts.End(ctx, EndShiftCommand{ShiftID: shift.ID, ActualCash: d("1")}); !errors.Is(err, cashflow.ErrShiftNotActive) {
		t.Fatalf("end after cancel: got %v", err)
	}
	if _, err := h.ledger.Record(ctx, RecordReadingCommand{
		ShiftID: shift.ID, NozzleID: "n-1", CurrentVolume: d("1"), Payment: cashflow.PaymentSplit{Cash: d("100")},
	}); !errors.Is(err, cashflow.ErrShiftNotActive) {
		t.Fatalf("reading after cancel: got %v", err)
	}
	chain, _ := h.store.Handovers().ListByShift(ctx, shift.ID)
	if len(chain) != 0 {
		t.Fatalf("cancelled shift must not create handovers")
	}
}

func TestAuditFailureDoesNotRollBack(t *testing.T) {
	h := newHarness(t, singleNozzle())
	h.audit.err = errors.New("audit store down")
	ctx := context.Background()
	shift, err := h.shifts.Start(ctx, "emp-1", "st-1", "emp-1")
	if err != nil {
		t.Fatalf("start must succeed despite audit failure: %v", err)
	}
	ended, err := h.shifts.End(ctx, EndShiftCommand{ShiftID: shift.ID, ActualCash: d("0")})
	if err != nil {
		t.Fatalf("end must succeed despite audit failure: %v", err)
	}
	if ended.Shift.Status != cashflow.ShiftEnded {
		t.Fatalf("unexpected status %s", ended.Shift.Status)
	}
}

func TestEndRollsBackWhenCollectionInsertFails(t *testing.T) {
	nozzles := nozzleMap{
		"n-1": {ID: "n-1", StationID: "st-1", FuelType: "diesel", OpeningVolume: d("0")},
		"n-2": {ID: "n-2", StationID: "st-2", FuelType: "diesel", OpeningVolume: d("0")},
	}
	h := newHarness(t, nozzles)
	ctx := context.Background()

	// every handover this service creates reuses one id, so the second insert collides
	colliding, err := NewShiftService(h.store.Shifts(),
		WithDetector(discrepancy.NewDetector(discrepancy.Config{})),
		WithIDGenerator(func() string { return "h-fixed" }),
		WithLogger(log.New(io.Discard, "", 0)),
	)
	if err != nil {
		t.Fatalf("new shift service: %v", err)
	}

	first, _ := h.shifts.Start(ctx, "emp-1", "st-1", "emp-1")
	if _, err := colliding.End(ctx, EndShiftCommand{ShiftID: first.ID, ActualCash: d("0")}); err != nil {
		t.Fatalf("end first shift: %v", err)
	}

	second, _ := h.shifts.Start(ctx, "emp-2", "st-2", "emp-2")
	if _, err := h.ledger.Record(ctx, RecordReadingCommand{
		ShiftID: second.ID, NozzleID: "n-2", CurrentVolume: d("5"), Payment: cashflow.PaymentSplit{Cash: d("500")},
	}); err != nil {
		t.Fatalf("record: %v", err)
	}
	before, _ := h.store.Shifts().Get(ctx, second.ID)

	if _, err := colliding.End(ctx, EndShiftCommand{ShiftID: second.ID, ActualCash: d("500")}); !errors.Is(err, cashflow.ErrConcurrentUpdate) {
		t.Fatalf("end with failing handover insert: got %v", err)
	}

	after, _ := h.store.Shifts().Get(ctx, second.ID)
	if after.Status != cashflow.ShiftActive {
		t.Fatalf("shift must stay active, got %s", after.Status)
	}
	if !after.ExpectedCash.Equal(before.ExpectedCash) || !after.Sales.Equal(before.Sales) || after.ReadingCount != before.ReadingCount {
		t.Fatalf("counters changed: before %+v after %+v", before, after)
	}
	if after.EndedAt != nil || after.ActualCash.Valid || after.Version != before.Version {
		t.Fatalf("end fields must not persist: %+v", after)
	}
	chain, _ := h.store.Handovers().ListByShift(ctx, second.ID)
	if len(chain) != 0 {
		t.Fatalf("no handover may exist for the rolled back shift, got %d", len(chain))
	}

	// the shift can still be ended once the collision is gone
	if _, err := h.shifts.End(ctx, EndShiftCommand{ShiftID: second.ID, ActualCash: d("500")}); err != nil {
		t.Fatalf("retry end: %v", err)
	}
}
