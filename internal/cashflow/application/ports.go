package application

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fuelstation-cloud/internal/auth"
	cashflow "fuelstation-cloud/internal/cashflow/domain"
	"fuelstation-cloud/internal/discrepancy"
	masterdata "fuelstation-cloud/internal/masterdata/domain"
)

// PriceLookup resolves the fuel price in force for a nozzle.
type PriceLookup interface {
	PriceAt(ctx context.Context, nozzleID string, at time.Time) (decimal.Decimal, error)
}

// NozzleReader loads nozzle masterdata.
type NozzleReader interface {
	Get(ctx context.Context, id string) (*masterdata.Nozzle, error)
}

// TankStatus annotates a reading with a low-fuel advisory. An empty string
// means no advisory.
type TankStatus interface {
	LowFuelAdvisory(ctx context.Context, nozzle masterdata.Nozzle) (string, error)
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

// IDGenerator returns a new unique identifier.
type IDGenerator func() string

type options struct {
	audit       AuditSink
	publisher   EventPublisher
	detector    *discrepancy.Detector
	tank        TankStatus
	clock       Clock
	ids         IDGenerator
	logger      *log.Logger
	tankTimeout time.Duration
}

// Option configures the cashflow services.
type Option func(*options)

// WithAuditSink sets the audit sink.
func WithAuditSink(sink AuditSink) Option {
	return func(o *options) { o.audit = sink }
}

// WithPublisher sets the event publisher.
func WithPublisher(publisher EventPublisher) Option {
	return func(o *options) { o.publisher = publisher }
}

// WithDetector sets the discrepancy detector.
func WithDetector(detector *discrepancy.Detector) Option {
	return func(o *options) { o.detector = detector }
}

// WithTankStatus sets the optional tank collaborator.
func WithTankStatus(tank TankStatus, timeout time.Duration) Option {
	return func(o *options) {
		o.tank = tank
		if timeout > 0 {
			o.tankTimeout = timeout
		}
	}
}

// WithClock overrides the clock.
func WithClock(clock Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithIDGenerator overrides id generation.
func WithIDGenerator(ids IDGenerator) Option {
	return func(o *options) {
		if ids != nil {
			o.ids = ids
		}
	}
}

// WithLogger sets the logger for side-channel failures.
func WithLogger(logger *log.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		clock:       SystemClock{},
		ids:         uuid.NewString,
		logger:      log.Default(),
		tankTimeout: 300 * time.Millisecond,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

func (o options) now() time.Time {
	return o.clock.Now().UTC()
}

// record writes an audit entry after commit. Failures are logged only.
func (o options) record(ctx context.Context, eventType, actorID string, before, after any) {
	if o.audit == nil {
		return
	}
	if err := o.audit.Record(ctx, eventType, actorID, before, after); err != nil {
		o.logger.Printf("audit record failed: event=%s actor=%s err=%v", eventType, actorID, err)
	}
}

// publish emits an event after commit. Failures are logged only.
func (o options) publish(ctx context.Context, event any) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.Publish(ctx, event); err != nil {
		o.logger.Printf("event publish failed: event=%T err=%v", event, err)
	}
}

// stationAssigned rejects callers whose station roster excludes stationID.
func stationAssigned(ctx context.Context, stationID string) error {
	if auth.StationAllowed(ctx, stationID) {
		return nil
	}
	return fmt.Errorf("%w: %s", cashflow.ErrStationNotAssigned, stationID)
}

// tenantVisible reports whether a record of tenantID may be served to the caller.
func tenantVisible(ctx context.Context, tenantID string) bool {
	caller := auth.TenantIDFromContext(ctx)
	return caller == "" || tenantID == "" || caller == tenantID
}
