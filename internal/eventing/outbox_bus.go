package eventing

import (
	"context"
	"log"
	"time"

	"fuelstation-cloud/internal/eventbus"
	"fuelstation-cloud/internal/observability/metrics"
)

// Publisher writes domain events to the outbox. Delivery to subscribers
// happens later through the Dispatcher.
type Publisher struct {
	outbox   OutboxWriter
	tenantID string
	sub      Subscriber
	logger   *log.Logger
}

// OutboxWriter inserts outbox records.
type OutboxWriter interface {
	Insert(ctx context.Context, env Envelope) (string, error)
}

// Subscriber registers handlers.
type Subscriber interface {
	Subscribe(eventType string, handler eventbus.EventHandler)
}

// NewPublisher constructs a publisher. tenantID is used when neither the
// context nor the caller identity carries one.
func NewPublisher(outbox OutboxWriter, tenantID string, sub Subscriber) *Publisher {
	return &Publisher{outbox: outbox, tenantID: tenantID, sub: sub, logger: log.Default()}
}

// WithLogger sets the logger used for slow-publish reports.
func (p *Publisher) WithLogger(logger *log.Logger) *Publisher {
	if p != nil && logger != nil {
		p.logger = logger
	}
	return p
}

// Publish writes the event to outbox.
func (p *Publisher) Publish(ctx context.Context, event any) error {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveOutboxPublish(result, time.Since(start))
	}()
	if p == nil || p.outbox == nil {
		return nil
	}
	env, err := BuildEnvelope(event, MetaFromContext(ctx, p.tenantID))
	if err != nil {
		result = metrics.ResultError
		return err
	}
	if _, err := p.outbox.Insert(ctx, env); err != nil {
		result = metrics.ResultError
		return err
	}
	if duration := time.Since(start); duration > 50*time.Millisecond {
		p.logger.Printf("outbox_publish duration_ms=%d event_type=%s station=%s",
			duration.Milliseconds(),
			env.EventType,
			env.StationID,
		)
	}
	return nil
}

// Subscribe delegates to the underlying subscriber when available.
func (p *Publisher) Subscribe(eventType string, handler eventbus.EventHandler) {
	if p == nil || p.sub == nil {
		return
	}
	p.sub.Subscribe(eventType, handler)
}
