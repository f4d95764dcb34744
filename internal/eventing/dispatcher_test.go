package eventing

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"fuelstation-cloud/internal/auth"
	"fuelstation-cloud/internal/eventbus"
)

type periodClosed struct {
	SettlementID string    `json:"settlement_id"`
	StationID    string    `json:"station_id"`
	OccurredAt   time.Time `json:"occurred_at"`
}

type memoryOutbox struct {
	mu      sync.Mutex
	records []*outboxRow
}

type outboxRow struct {
	record OutboxRecord
	status string
}

func (o *memoryOutbox) Insert(_ context.Context, env Envelope) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, row := range o.records {
		if row.record.Envelope.EventID == env.EventID {
			return row.record.ID, nil
		}
	}
	id := NewEventID()
	o.records = append(o.records, &outboxRow{record: OutboxRecord{ID: id, Envelope: env}, status: "pending"})
	return id, nil
}

func (o *memoryOutbox) ListPending(_ context.Context, limit, maxAttempts int) ([]OutboxRecord, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var result []OutboxRecord
	for _, row := range o.records {
		if row.status == "pending" || (row.status == "failed" && row.record.Attempts < maxAttempts) {
			result = append(result, row.record)
		}
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

func (o *memoryOutbox) mark(id, status string, attempt bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, row := range o.records {
		if row.record.ID == id {
			row.status = status
			if attempt {
				row.record.Attempts++
			}
			return nil
		}
	}
	return errors.New("outbox: unknown record")
}

func (o *memoryOutbox) MarkSent(_ context.Context, id string) error   { return o.mark(id, "sent", false) }
func (o *memoryOutbox) MarkFailed(_ context.Context, id string) error { return o.mark(id, "failed", true) }
func (o *memoryOutbox) MarkDead(_ context.Context, id string) error   { return o.mark(id, "dead", true) }

type memoryDLQ struct {
	envelopes []Envelope
}

func (d *memoryDLQ) RecordFailure(_ context.Context, env Envelope, _ error) error {
	d.envelopes = append(d.envelopes, env)
	return nil
}

type memoryProcessed struct {
	seen map[string]bool
}

func (p *memoryProcessed) HasProcessed(_ context.Context, eventID, consumer string) (bool, error) {
	return p.seen[eventID+"|"+consumer], nil
}

func (p *memoryProcessed) MarkProcessed(_ context.Context, eventID, consumer string) error {
	p.seen[eventID+"|"+consumer] = true
	return nil
}

func TestOutboxRoundTrip(t *testing.T) {
	bus := eventbus.NewInMemoryBus()
	outbox := &memoryOutbox{}
	registry := NewRegistry()
	registry.Register(periodClosed{})
	dispatcher := NewDispatcher(bus, outbox, registry, &memoryDLQ{}, WithDispatchLogger(log.New(io.Discard, "", 0)))
	publisher := NewPublisher(outbox, "tenant-default", bus)

	var received []periodClosed
	var tenants []string
	Subscribe(bus, "settlement.log", func(ctx context.Context, e periodClosed) error {
		env, _ := EnvelopeFromContext(ctx)
		received = append(received, e)
		tenants = append(tenants, env.TenantID)
		return nil
	}, &memoryProcessed{seen: map[string]bool{}})

	ctx := auth.WithIdentity(context.Background(), "tenant-1", auth.RoleManager, "mgr-1")
	ctx = WithEventID(ctx, "evt-1")
	event := periodClosed{SettlementID: "stl-1", StationID: "st-1", OccurredAt: time.Now().UTC()}
	if err := publisher.Publish(ctx, event); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := publisher.Publish(ctx, event); err != nil {
		t.Fatalf("publish duplicate: %v", err)
	}
	if len(outbox.records) != 1 {
		t.Fatalf("duplicate event id must be stored once, got %d", len(outbox.records))
	}
	if env := outbox.records[0].record.Envelope; env.StationID != "st-1" || env.TenantID != "tenant-1" {
		t.Fatalf("unexpected envelope metadata: %+v", env)
	}

	result, err := dispatcher.Dispatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if result.Sent != 1 || len(received) != 1 || received[0].SettlementID != "stl-1" || tenants[0] != "tenant-1" {
		t.Fatalf("unexpected delivery: result=%+v received=%+v", result, received)
	}
	if again, _ := dispatcher.Dispatch(context.Background(), 10); again.Claimed != 0 {
		t.Fatalf("sent records must not be claimed again: %+v", again)
	}
}

func TestDispatchRetriesThenDeadLetters(t *testing.T) {
	bus := eventbus.NewInMemoryBus()
	outbox := &memoryOutbox{}
	dlq := &memoryDLQ{}
	registry := NewRegistry()
	registry.Register(periodClosed{})
	dispatcher := NewDispatcher(bus, outbox, registry, dlq, WithMaxAttempts(2), WithDispatchLogger(log.New(io.Discard, "", 0)))

	calls := 0
	bus.Subscribe(eventbus.EventTypeOf[periodClosed](), func(context.Context, any) error {
		calls++
		return errors.New("consumer down")
	})
	if err := NewPublisher(outbox, "tenant-1", nil).Publish(context.Background(), periodClosed{SettlementID: "stl-1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	first, _ := dispatcher.Dispatch(context.Background(), 10)
	if first.Failed != 1 || first.DLQ != 0 {
		t.Fatalf("first failure must be retried: %+v", first)
	}
	second, _ := dispatcher.Dispatch(context.Background(), 10)
	if second.DLQ != 1 || len(dlq.envelopes) != 1 {
		t.Fatalf("exhausted record must reach the dlq: %+v", second)
	}
	third, _ := dispatcher.Dispatch(context.Background(), 10)
	if third.Claimed != 0 || calls != 2 {
		t.Fatalf("dead record must not be retried: %+v calls=%d", third, calls)
	}
}

func TestDispatchDeadLettersUnknownTypes(t *testing.T) {
	outbox := &memoryOutbox{}
	dlq := &memoryDLQ{}
	dispatcher := NewDispatcher(eventbus.NewInMemoryBus(), outbox, NewRegistry(), dlq, WithDispatchLogger(log.New(io.Discard, "", 0)))
	if err := NewPublisher(outbox, "tenant-1", nil).Publish(context.Background(), periodClosed{SettlementID: "stl-1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	result, _ := dispatcher.Dispatch(context.Background(), 10)
	if result.DLQ != 1 || outbox.records[0].status != "dead" {
		t.Fatalf("unknown event type must be parked: %+v", result)
	}
}
