package eventbus

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// EventHandler handles a published event.
type EventHandler func(ctx context.Context, event any) error

// EventBus delivers events to subscribed handlers.
type EventBus interface {
	Publish(ctx context.Context, event any) error
	Subscribe(eventType string, handler EventHandler)
}

// ErrNilEvent is returned when a nil event is published.
var ErrNilEvent = errors.New("eventbus: nil event")

// ErrInvalidEventType is returned when the event type cannot be determined
// or a handler receives an event it does not understand.
var ErrInvalidEventType = errors.New("eventbus: invalid event type")

// InMemoryBus is an in-process bus. Handlers of one type run in subscription
// order; every handler runs even when an earlier one fails.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]EventHandler
}

// NewInMemoryBus constructs a new in-memory bus.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{
		handlers: make(map[string][]EventHandler),
	}
}

// Publish dispatches an event to all handlers of its type and joins their errors.
func (b *InMemoryBus) Publish(ctx context.Context, event any) error {
	if event == nil {
		return ErrNilEvent
	}

	eventType := EventType(event)
	if eventType == "" {
		return ErrInvalidEventType
	}

	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.handlers[eventType]...)
	b.mu.RUnlock()

	var errs []error
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", eventType, err))
		}
	}
	return errors.Join(errs...)
}

// Subscribe registers a handler for an event type.
func (b *InMemoryBus) Subscribe(eventType string, handler EventHandler) {
	if eventType == "" || handler == nil {
		return
	}

	b.mu.Lock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	b.mu.Unlock()
}

// Subscribers returns the number of handlers registered for eventType.
func (b *InMemoryBus) Subscribers(eventType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType])
}

// Named is implemented by events that carry a stable wire name. Stored
// outbox rows reference events by this name, so it must not change once
// released.
type Named interface {
	EventName() string
}

// EventType returns the event's wire name, falling back to the Go type name.
func EventType(event any) string {
	if event == nil {
		return ""
	}
	if named, ok := event.(Named); ok {
		return named.EventName()
	}
	t := reflect.TypeOf(event)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.String()
}

// EventTypeOf returns the wire name for a type parameter.
func EventTypeOf[T any]() string {
	var zero T
	if named, ok := any(zero).(Named); ok {
		return named.EventName()
	}
	return reflect.TypeOf((*T)(nil)).Elem().String()
}

// Handle adapts a typed handler to EventHandler. Events of another type are
// rejected with ErrInvalidEventType.
func Handle[T any](fn func(ctx context.Context, event T) error) EventHandler {
	return func(ctx context.Context, event any) error {
		switch e := event.(type) {
		case T:
			return fn(ctx, e)
		case *T:
			if e == nil {
				return ErrNilEvent
			}
			return fn(ctx, *e)
		default:
			return ErrInvalidEventType
		}
	}
}
