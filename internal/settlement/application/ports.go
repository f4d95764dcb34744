package application

import (
	"context"
	"log"
	"time"

	masterdata "fuelstation-cloud/internal/masterdata/domain"
	settlement "fuelstation-cloud/internal/settlement/domain"
)

// PeriodReader loads the shifts started in [from, to) with their chains.
type PeriodReader interface {
	ShiftsForPeriod(ctx context.Context, stationID string, from, to time.Time) ([]settlement.ShiftSummary, error)
}

// StationDirectory resolves station master data. A missing station returns nil, nil.
type StationDirectory interface {
	Get(ctx context.Context, id string) (*masterdata.Station, error)
}

// AuditSink records state transitions.
type AuditSink interface {
	Record(ctx context.Context, eventType, actorID string, before, after any) error
}

// EventPublisher emits integration events.
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Option configures the finalizer.
type Option func(*Finalizer)

// WithAuditSink sets the audit sink.
func WithAuditSink(sink AuditSink) Option {
	return func(f *Finalizer) { f.audit = sink }
}

// WithPublisher sets the event publisher.
func WithPublisher(publisher EventPublisher) Option {
	return func(f *Finalizer) { f.publisher = publisher }
}

// WithClock overrides the clock.
func WithClock(clock Clock) Option {
	return func(f *Finalizer) {
		if clock != nil {
			f.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(f *Finalizer) {
		if logger != nil {
			f.logger = logger
		}
	}
}
