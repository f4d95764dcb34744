package interfaces

import (
	"context"
	"log"

	"fuelstation-cloud/internal/eventbus"
	settlementapp "fuelstation-cloud/internal/settlement/application"
)

// LoggingPublisher writes settlement events to the log. It stands in for the
// outbox when eventing is disabled and doubles as the audit-trail consumer.
type LoggingPublisher struct {
	logger *log.Logger
}

// NewLoggingPublisher constructs a logging publisher.
func NewLoggingPublisher(logger *log.Logger) *LoggingPublisher {
	if logger == nil {
		logger = log.Default()
	}
	return &LoggingPublisher{logger: logger}
}

// Publish logs the event. It never fails so a closed period is not reported
// as an error when only the log line is lost.
func (p *LoggingPublisher) Publish(_ context.Context, event any) error {
	if p == nil || event == nil {
		return nil
	}
	closed, ok := event.(settlementapp.PeriodClosed)
	if !ok {
		p.logger.Printf("settlement event %s ignored", eventbus.EventType(event))
		return nil
	}
	p.logger.Printf("%s settlement=%s station=%s date=%s sales=%s cash=%s variance=%s hash=%.12s",
		closed.EventName(),
		closed.SettlementID,
		closed.StationID,
		closed.BusinessDate,
		closed.TotalSales.StringFixed(2),
		closed.CashTotal.StringFixed(2),
		closed.FinalVariance.StringFixed(2),
		closed.SnapshotHash,
	)
	return nil
}
