package eventing

import (
	"context"
	"time"

	"fuelstation-cloud/internal/eventbus"
	"fuelstation-cloud/internal/observability/metrics"
)

// ProcessedStore provides idempotency checks.
type ProcessedStore interface {
	HasProcessed(ctx context.Context, eventID, consumerName string) (bool, error)
	MarkProcessed(ctx context.Context, eventID, consumerName string) error
}

// Subscribe registers fn for events of type T under consumerName. With a
// store, each envelope is handled at most once per consumer.
func Subscribe[T any](bus Subscriber, consumerName string, fn func(ctx context.Context, event T) error, store ProcessedStore) {
	handler := eventbus.Handle(fn)
	if store != nil {
		handler = WrapHandler(consumerName, handler, store)
	}
	bus.Subscribe(eventbus.EventTypeOf[T](), handler)
}

// WrapHandler enforces idempotency per consumer.
func WrapHandler(consumerName string, handler eventbus.EventHandler, store ProcessedStore) eventbus.EventHandler {
	return func(ctx context.Context, event any) error {
		env, ok := EnvelopeFromContext(ctx)
		if !ok || env.EventID == "" {
			return handler(ctx, event)
		}
		processed, err := store.HasProcessed(ctx, env.EventID, consumerName)
		if err != nil {
			return err
		}
		if processed {
			return nil
		}
		observeConsumerLag(ctx, event, consumerName)
		if err := handler(ctx, event); err != nil {
			return err
		}
		return store.MarkProcessed(ctx, env.EventID, consumerName)
	}
}

func observeConsumerLag(ctx context.Context, event any, consumerName string) {
	var occurredAt time.Time
	if env, ok := EnvelopeFromContext(ctx); ok {
		occurredAt = env.OccurredAt
	}
	if occurredAt.IsZero() {
		if f := field(structOf(event), "OccurredAt"); f.IsValid() {
			occurredAt, _ = f.Interface().(time.Time)
		}
	}
	if occurredAt.IsZero() {
		return
	}
	metrics.ObserveConsumerLag(consumerName, time.Since(occurredAt))
}
