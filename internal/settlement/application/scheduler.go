package application

import (
	"context"
	"errors"
	"log"
	"time"

	settlement "fuelstation-cloud/internal/settlement/domain"
)

// Scheduler tries to close the previous business day for configured stations.
type Scheduler struct {
	finalizer *Finalizer
	stations  []string
	dailyAt   string
	preparer  string
	logger    *log.Logger
}

// NewScheduler constructs a Scheduler. dailyAt is HH:MM in UTC.
func NewScheduler(finalizer *Finalizer, stations []string, dailyAt string, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{
		finalizer: finalizer,
		stations:  stations,
		dailyAt:   dailyAt,
		preparer:  "system:auto-close",
		logger:    logger,
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil || s.finalizer == nil {
		return
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !s.shouldRun(now.UTC()) {
				continue
			}
			s.RunOnce(ctx, now.UTC())
		}
	}
}

func (s *Scheduler) shouldRun(now time.Time) bool {
	hour, minute, err := parseDailyAt(s.dailyAt)
	if err != nil {
		return false
	}
	return now.Hour() == hour && now.Minute() == minute
}

// RunOnce attempts to close the day before now for every station and returns
// the settlements it produced.
func (s *Scheduler) RunOnce(ctx context.Context, now time.Time) []*settlement.Settlement {
	previous := now.AddDate(0, 0, -1)
	date := settlement.FormatDate(previous)
	var closed []*settlement.Settlement
	for _, stationID := range s.stations {
		if stationID == "" {
			continue
		}
		result, err := s.finalizer.ClosePeriod(ctx, ClosePeriodCommand{
			StationID:  stationID,
			Date:       date,
			PreparedBy: s.preparer,
		})
		switch {
		case err == nil:
			closed = append(closed, result)
		case errors.Is(err, settlement.ErrPeriodAlreadyClosed):
		case errors.Is(err, settlement.ErrPeriodNotEnded):
			s.logger.Printf("auto-close deferred: station=%s date=%s err=%v", stationID, date, err)
		case errors.Is(err, settlement.ErrPeriodNotReady):
			s.logger.Printf("auto-close skipped: station=%s date=%s err=%v", stationID, date, err)
		default:
			s.logger.Printf("auto-close error: station=%s date=%s err=%v", stationID, date, err)
		}
	}
	return closed
}

func parseDailyAt(value string) (int, int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}
