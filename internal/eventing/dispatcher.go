package eventing

import (
	"context"
	"log"
	"time"

	"fuelstation-cloud/internal/observability/metrics"
)

const defaultMaxAttempts = 5

// Dispatcher sends outbox events to the in-process bus.
type Dispatcher struct {
	bus         EventBus
	outbox      OutboxStore
	registry    *Registry
	dlq         DLQStore
	maxAttempts int
	logger      *log.Logger
}

// EventBus is the minimal publish interface.
type EventBus interface {
	Publish(ctx context.Context, event any) error
}

// OutboxStore provides access to outbox records. ListPending returns pending
// records and failed ones below maxAttempts, oldest first.
type OutboxStore interface {
	ListPending(ctx context.Context, limit, maxAttempts int) ([]OutboxRecord, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
	MarkDead(ctx context.Context, id string) error
}

// DLQStore records failures.
type DLQStore interface {
	RecordFailure(ctx context.Context, env Envelope, err error) error
}

// OutboxRecord represents a pending outbox entry.
type OutboxRecord struct {
	ID       string
	Envelope Envelope
	Attempts int
}

// DispatchResult captures the outcome of a dispatch run.
type DispatchResult struct {
	Requested int
	Claimed   int
	Sent      int
	Failed    int
	DLQ       int
}

// DispatcherOption configures the dispatcher.
type DispatcherOption func(*Dispatcher)

// WithMaxAttempts sets how many deliveries are tried before an event is
// moved to the dead letter queue.
func WithMaxAttempts(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxAttempts = n
		}
	}
}

// WithDispatchLogger sets the dispatcher logger.
func WithDispatchLogger(logger *log.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher constructs a dispatcher.
func NewDispatcher(bus EventBus, outbox OutboxStore, registry *Registry, dlq DLQStore, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		bus:         bus,
		outbox:      outbox,
		registry:    registry,
		dlq:         dlq,
		maxAttempts: defaultMaxAttempts,
		logger:      log.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch pulls pending outbox messages and delivers them.
func (d *Dispatcher) Dispatch(ctx context.Context, limit int) (DispatchResult, error) {
	start := time.Now()
	result := DispatchResult{Requested: limit}
	if d == nil || d.outbox == nil || d.bus == nil || d.registry == nil {
		metrics.ObserveOutboxDispatch(metrics.ResultError, time.Since(start), 0, 0, 0)
		return result, nil
	}
	if limit <= 0 {
		limit = 50
		result.Requested = limit
	}
	records, err := d.outbox.ListPending(ctx, limit, d.maxAttempts)
	if err != nil {
		metrics.ObserveOutboxDispatch(metrics.ResultError, time.Since(start), 0, 0, 0)
		return result, err
	}
	result.Claimed = len(records)
	if result.Claimed == 0 {
		metrics.ObserveOutboxDispatch(metrics.ResultSuccess, time.Since(start), 0, 0, 0)
		return result, nil
	}
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	for _, record := range records {
		env := record.Envelope
		payload, err := d.registry.DecodePayload(env)
		if err != nil {
			// undecodable payloads never succeed on retry
			keep(d.outbox.MarkDead(ctx, record.ID))
			if d.deadLetter(ctx, env, err) {
				result.DLQ++
			}
			result.Failed++
			continue
		}

		if err := d.bus.Publish(WithEnvelope(ctx, env), payload); err != nil {
			result.Failed++
			if record.Attempts+1 >= d.maxAttempts {
				keep(d.outbox.MarkDead(ctx, record.ID))
				if d.deadLetter(ctx, env, err) {
					result.DLQ++
				}
				continue
			}
			keep(d.outbox.MarkFailed(ctx, record.ID))
			continue
		}

		if err := d.outbox.MarkSent(ctx, record.ID); err != nil {
			keep(err)
			result.Failed++
			continue
		}
		result.Sent++
	}
	dispatchResult := metrics.ResultSuccess
	if firstErr != nil || result.Failed > 0 {
		dispatchResult = metrics.ResultError
	}
	metrics.ObserveOutboxDispatch(dispatchResult, time.Since(start), result.Sent, result.Failed, result.DLQ)
	return result, firstErr
}

func (d *Dispatcher) deadLetter(ctx context.Context, env Envelope, cause error) bool {
	if d.dlq == nil {
		return false
	}
	if err := d.dlq.RecordFailure(ctx, env, cause); err != nil {
		d.logger.Printf("dlq record failed: event_id=%s type=%s err=%v", env.EventID, env.EventType, err)
		return false
	}
	return true
}

// Run dispatches every interval until ctx is done.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration, limit int) {
	if d == nil {
		return
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := d.Dispatch(ctx, limit)
			if err != nil {
				d.logger.Printf("outbox dispatch error: %v", err)
			}
			if result.Failed > 0 {
				d.logger.Printf("outbox dispatch: sent=%d failed=%d dlq=%d", result.Sent, result.Failed, result.DLQ)
			}
		}
	}
}
