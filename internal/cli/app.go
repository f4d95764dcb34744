package cli

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	"fuelstation-cloud/internal/audit"
	"fuelstation-cloud/internal/auth"
	"fuelstation-cloud/internal/cashflow/adapters/tank"
	cashflowapp "fuelstation-cloud/internal/cashflow/application"
	cashflowrepo "fuelstation-cloud/internal/cashflow/infrastructure/postgres"
	"fuelstation-cloud/internal/cashflow/infrastructure/pricing"
	"fuelstation-cloud/internal/discrepancy"
	"fuelstation-cloud/internal/eventbus"
	"fuelstation-cloud/internal/eventing"
	eventingrepo "fuelstation-cloud/internal/eventing/infrastructure/postgres"
	masterdatarepo "fuelstation-cloud/internal/masterdata/infrastructure/postgres"
	"fuelstation-cloud/internal/notify"
	settlementcashflow "fuelstation-cloud/internal/settlement/adapters/cashflow"
	settlementapp "fuelstation-cloud/internal/settlement/application"
	settlementrepo "fuelstation-cloud/internal/settlement/infrastructure/postgres"
	settlementinterfaces "fuelstation-cloud/internal/settlement/interfaces"
)

// app holds the wired services shared by the commands.
type app struct {
	logger         *log.Logger
	bus            *eventbus.InMemoryBus
	dispatcher     *eventing.Dispatcher
	events         *eventingrepo.Store
	detector       *discrepancy.Detector
	ledger         *cashflowapp.ReadingLedger
	shifts         *cashflowapp.ShiftService
	chain          *cashflowapp.HandoverChain
	finalizer      *settlementapp.Finalizer
	stationChecker *auth.StationChecker
	auditRepo      *audit.Repository
}

func buildApp(cfg config, db *sql.DB, logger *log.Logger) (*app, error) {
	auditRepo := audit.NewRepository(db)
	auditSink, err := audit.NewSink(auditRepo)
	if err != nil {
		return nil, err
	}
	stationRepo := masterdatarepo.NewStationRepository(db)
	nozzleRepo := masterdatarepo.NewNozzleRepository(db)
	tankRepo := masterdatarepo.NewTankRepository(db)

	policy, err := discrepancy.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("discrepancy policy: %w", err)
	}
	notifier, err := buildNotifier(policy.Notify, stationRepo, logger)
	if err != nil {
		return nil, err
	}
	detector := discrepancy.NewDetector(policy, discrepancy.WithNotifier(notifier), discrepancy.WithLogger(logger))

	bus := eventbus.NewInMemoryBus()
	registry := eventing.NewRegistry(
		cashflowapp.ReadingRecorded{},
		cashflowapp.ShiftEnded{},
		cashflowapp.HandoverTransitioned{},
		cashflowapp.DiscrepancyFlagged{},
		settlementapp.PeriodClosed{},
	)

	events := eventingrepo.NewStore(db)
	registerLogConsumers(bus, events.Processed(), logger)

	var (
		cashflowPublisher   cashflowapp.EventPublisher = bus
		settlementPublisher settlementapp.EventPublisher
		dispatcher          *eventing.Dispatcher
	)
	if cfg.OutboxEnabled {
		outboxStore := events.Outbox()
		dispatcher = eventing.NewDispatcher(bus, outboxStore, registry, events.DeadLetters(),
			eventing.WithMaxAttempts(cfg.OutboxMaxAttempts),
			eventing.WithDispatchLogger(logger),
		)
		publisher := eventing.NewPublisher(outboxStore, cfg.TenantID, bus).WithLogger(logger)
		cashflowPublisher = publisher
		settlementPublisher = publisher
	} else {
		settlementPublisher = settlementinterfaces.NewLoggingPublisher(logger)
	}

	prices, err := buildPriceLookup(cfg, db, logger)
	if err != nil {
		return nil, err
	}
	advisor, err := tank.NewLevelAdvisor(tankRepo)
	if err != nil {
		return nil, err
	}

	store := cashflowrepo.NewStore(db)
	opts := []cashflowapp.Option{
		cashflowapp.WithAuditSink(auditSink),
		cashflowapp.WithPublisher(cashflowPublisher),
		cashflowapp.WithDetector(detector),
		cashflowapp.WithTankStatus(advisor, cfg.TankTimeout),
		cashflowapp.WithLogger(logger),
	}
	ledger, err := cashflowapp.NewReadingLedger(store.Readings(), store.Shifts(), nozzleRepo, prices, opts...)
	if err != nil {
		return nil, err
	}
	shifts, err := cashflowapp.NewShiftService(store.Shifts(), opts...)
	if err != nil {
		return nil, err
	}
	chain, err := cashflowapp.NewHandoverChain(store.Handovers(), opts...)
	if err != nil {
		return nil, err
	}

	reader, err := settlementcashflow.NewPeriodReader(store.Shifts(), store.Handovers())
	if err != nil {
		return nil, err
	}
	finalizer, err := settlementapp.NewFinalizer(
		settlementrepo.NewSettlementRepository(db),
		reader,
		stationRepo,
		settlementapp.WithAuditSink(auditSink),
		settlementapp.WithPublisher(settlementPublisher),
		settlementapp.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	return &app{
		logger:         logger,
		bus:            bus,
		dispatcher:     dispatcher,
		events:         events,
		detector:       detector,
		ledger:         ledger,
		shifts:         shifts,
		chain:          chain,
		finalizer:      finalizer,
		stationChecker: auth.NewStationChecker(stationRepo),
		auditRepo:      auditRepo,
	}, nil
}

func buildNotifier(cfg discrepancy.NotifyConfig, stations notify.StationReader, logger *log.Logger) (discrepancy.Notifier, error) {
	var channel notify.Channel = notify.NewLogChannel(logger)
	if cfg.WebhookURL != "" {
		webhook, err := notify.NewWebhookChannel(cfg.WebhookURL, notify.WithSigningSecret(cfg.WebhookSecret))
		if err != nil {
			return nil, fmt.Errorf("discrepancy webhook: %w", err)
		}
		channel = webhook
	}
	tpl, err := notify.NewTemplate(cfg.Template)
	if err != nil {
		return nil, fmt.Errorf("discrepancy template: %w", err)
	}
	return notify.NewNotifier(channel, tpl,
		notify.WithStations(stations),
		notify.WithCooldown(cfg.Cooldown),
		notify.WithDedupeWindow(cfg.DedupeWindow),
	)
}

func buildPriceLookup(cfg config, db *sql.DB, logger *log.Logger) (cashflowapp.PriceLookup, error) {
	var source pricing.Source = pricing.NewFuelPriceProvider(db)
	if cfg.FixedFuelPrice != "" {
		price, err := decimal.NewFromString(cfg.FixedFuelPrice)
		if err != nil {
			return nil, fmt.Errorf("FIXED_FUEL_PRICE: %w", err)
		}
		fixed, err := pricing.NewFixedPriceProvider(price)
		if err != nil {
			return nil, err
		}
		source = fixed
	}
	return pricing.NewLastKnownProvider(source,
		pricing.WithTimeout(cfg.PriceLookupTimeout),
		pricing.WithLogger(logger),
	)
}

// shutdown drains in-flight notifications.
func (a *app) shutdown() {
	if a == nil {
		return
	}
	a.detector.Wait()
}
