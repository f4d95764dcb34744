package cli

import (
	"context"
	"log"

	cashflowapp "fuelstation-cloud/internal/cashflow/application"
	"fuelstation-cloud/internal/eventing"
	settlementapp "fuelstation-cloud/internal/settlement/application"
	settlementinterfaces "fuelstation-cloud/internal/settlement/interfaces"
)

func registerLogConsumers(bus eventing.Subscriber, processed eventing.ProcessedStore, logger *log.Logger) {
	eventing.Subscribe(bus, "shift.log", func(_ context.Context, e cashflowapp.ShiftEnded) error {
		logger.Printf("shift ended: station=%s shift=%s employee=%s expected=%s actual=%s variance=%s severity=%s",
			e.StationID, e.ShiftID, e.EmployeeID, e.ExpectedCash.StringFixed(2), e.ActualCash.StringFixed(2), e.Variance.StringFixed(2), e.Severity)
		return nil
	}, processed)

	eventing.Subscribe(bus, "handover.log", func(_ context.Context, e cashflowapp.HandoverTransitioned) error {
		logger.Printf("handover %s: station=%s shift=%s step=%s type=%s discrepancy=%s actor=%s",
			e.Status, e.StationID, e.ShiftID, e.HandoverID, e.Type, e.Discrepancy.StringFixed(2), e.Actor)
		return nil
	}, processed)

	eventing.Subscribe(bus, "discrepancy.log", func(_ context.Context, e cashflowapp.DiscrepancyFlagged) error {
		logger.Printf("discrepancy flagged: station=%s stage=%s ref=%s severity=%s discrepancy=%s",
			e.StationID, e.Stage, e.ReferenceID, e.Severity, e.Discrepancy.StringFixed(2))
		return nil
	}, processed)

	periodLog := settlementinterfaces.NewLoggingPublisher(logger)
	eventing.Subscribe(bus, "settlement.log", func(ctx context.Context, e settlementapp.PeriodClosed) error {
		return periodLog.Publish(ctx, e)
	}, processed)
}
