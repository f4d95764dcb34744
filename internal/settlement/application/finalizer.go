package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"fuelstation-cloud/internal/auth"
	"fuelstation-cloud/internal/observability/metrics"
	settlement "fuelstation-cloud/internal/settlement/domain"
)

// ClosePeriodCommand is the input of a period close.
type ClosePeriodCommand struct {
	StationID  string
	Date       string
	PreparedBy string
	ApprovedBy string
}

// Finalizer closes station-days into immutable settlements.
type Finalizer struct {
	repo      settlement.Repository
	reader    PeriodReader
	stations  StationDirectory
	audit     AuditSink
	publisher EventPublisher
	clock     Clock
	logger    *log.Logger
}

// NewFinalizer constructs the finalizer.
func NewFinalizer(repo settlement.Repository, reader PeriodReader, stations StationDirectory, opts ...Option) (*Finalizer, error) {
	if repo == nil {
		return nil, errors.New("settlement finalizer: nil repo")
	}
	if reader == nil {
		return nil, errors.New("settlement finalizer: nil period reader")
	}
	f := &Finalizer{
		repo:     repo,
		reader:   reader,
		stations: stations,
		clock:    SystemClock{},
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// ClosePeriod freezes the station-day once every shift and chain of the day
// is terminal. Blocked periods return a *settlement.NotReadyError.
func (f *Finalizer) ClosePeriod(ctx context.Context, cmd ClosePeriodCommand) (*settlement.Settlement, error) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveSettlementClose(result, time.Since(start))
	}()

	if cmd.StationID == "" {
		result = metrics.ResultRejected
		return nil, settlement.ErrEmptyStationID
	}
	if !auth.StationAllowed(ctx, cmd.StationID) {
		result = metrics.ResultRejected
		return nil, auth.ErrStationNotAssigned
	}
	date, err := settlement.ParseDate(cmd.Date)
	if err != nil {
		result = metrics.ResultRejected
		return nil, err
	}

	tenantID := auth.TenantIDFromContext(ctx)
	loc := time.UTC
	if f.stations != nil {
		station, err := f.stations.Get(ctx, cmd.StationID)
		if err != nil {
			result = metrics.ResultError
			return nil, err
		}
		if station != nil {
			if tenantID != "" && station.TenantID != "" && station.TenantID != tenantID {
				result = metrics.ResultRejected
				return nil, auth.ErrTenantMismatch
			}
			if tenantID == "" {
				tenantID = station.TenantID
			}
			loc = station.Location()
		}
	}

	existing, err := f.repo.FindByStationDate(ctx, cmd.StationID, date)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	if existing != nil {
		result = metrics.ResultRejected
		return nil, settlement.ErrPeriodAlreadyClosed
	}

	from, to := settlement.DayBounds(date, loc)
	// A shift may still start on an open day after the readiness read.
	if f.clock.Now().Before(to) {
		result = metrics.ResultRejected
		return nil, fmt.Errorf("%w: %s ends at %s", settlement.ErrPeriodNotEnded, cmd.Date, to.UTC().Format(time.RFC3339))
	}
	shifts, err := f.reader.ShiftsForPeriod(ctx, cmd.StationID, from, to)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	if blockers := settlement.Blockers(shifts); len(blockers) > 0 {
		result = metrics.ResultRejected
		return nil, &settlement.NotReadyError{Blockers: blockers}
	}

	id, err := settlement.BuildSettlementID(cmd.StationID, date)
	if err != nil {
		result = metrics.ResultRejected
		return nil, err
	}
	s := &settlement.Settlement{
		ID:           id,
		TenantID:     tenantID,
		StationID:    cmd.StationID,
		BusinessDate: date,
		Timezone:     loc.String(),
		PeriodStart:  from,
		PeriodEnd:    to,
		PreparedBy:   cmd.PreparedBy,
		ApprovedBy:   cmd.ApprovedBy,
		ClosedAt:     f.clock.Now().UTC(),
	}
	s.Summarize(shifts)
	hash, err := settlement.ComputeSnapshotHash(s, shifts)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	s.SnapshotHash = hash

	if err := f.repo.Create(ctx, s); err != nil {
		result = metrics.ResultError
		if errors.Is(err, settlement.ErrPeriodAlreadyClosed) {
			result = metrics.ResultRejected
		}
		return nil, err
	}

	if f.audit != nil {
		if err := f.audit.Record(ctx, "settlement.closed", cmd.PreparedBy, nil, s); err != nil {
			f.logger.Printf("audit record failed: event=settlement.closed ref=%s err=%v", s.ID, err)
		}
	}
	if f.publisher != nil {
		event := PeriodClosed{
			SettlementID:  s.ID,
			StationID:     s.StationID,
			BusinessDate:  settlement.FormatDate(s.BusinessDate),
			TotalSales:    s.TotalSales,
			CashTotal:     s.CashTotal,
			FinalVariance: s.FinalVariance,
			SnapshotHash:  s.SnapshotHash,
			OccurredAt:    s.ClosedAt,
		}
		if err := f.publisher.Publish(ctx, event); err != nil {
			f.logger.Printf("publish failed: event=PeriodClosed ref=%s err=%v", s.ID, err)
		}
	}
	return s, nil
}

// Get loads a settlement visible to the caller.
func (f *Finalizer) Get(ctx context.Context, id string) (*settlement.Settlement, error) {
	s, err := f.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, settlement.ErrSettlementNotFound
	}
	if tenantID := auth.TenantIDFromContext(ctx); tenantID != "" && s.TenantID != "" && s.TenantID != tenantID {
		return nil, settlement.ErrSettlementNotFound
	}
	if !auth.StationAllowed(ctx, s.StationID) {
		return nil, auth.ErrStationNotAssigned
	}
	return s, nil
}

// List returns the caller's settlements of a station with business dates in
// [from, to]. Empty bounds default to the last 31 days.
func (f *Finalizer) List(ctx context.Context, stationID, from, to string) ([]settlement.Settlement, error) {
	if stationID == "" {
		return nil, settlement.ErrEmptyStationID
	}
	end := f.clock.Now().UTC().Truncate(24 * time.Hour)
	if to != "" {
		parsed, err := settlement.ParseDate(to)
		if err != nil {
			return nil, err
		}
		end = parsed
	}
	begin := end.AddDate(0, 0, -31)
	if from != "" {
		parsed, err := settlement.ParseDate(from)
		if err != nil {
			return nil, err
		}
		begin = parsed
	}
	list, err := f.repo.ListByStation(ctx, stationID, begin, end.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	tenantID := auth.TenantIDFromContext(ctx)
	result := make([]settlement.Settlement, 0, len(list))
	for _, s := range list {
		if tenantID != "" && s.TenantID != "" && s.TenantID != tenantID {
			continue
		}
		result = append(result, s)
	}
	return result, nil
}
