package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	settlement "fuelstation-cloud/internal/settlement/domain"
)

// SettlementRepository is an in-memory repository for settlements.
type SettlementRepository struct {
	mu   sync.RWMutex
	data map[string]settlement.Settlement
}

// NewSettlementRepository constructs a repository.
func NewSettlementRepository() *SettlementRepository {
	return &SettlementRepository{data: make(map[string]settlement.Settlement)}
}

// Get loads a settlement by id. A missing settlement returns nil, nil.
func (r *SettlementRepository) Get(ctx context.Context, id string) (*settlement.Settlement, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.data[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

// FindByStationDate loads the settlement of a station-day.
func (r *SettlementRepository) FindByStationDate(ctx context.Context, stationID string, date time.Time) (*settlement.Settlement, error) {
	id, err := settlement.BuildSettlementID(stationID, date)
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// Create inserts a settlement once per station-day.
func (r *SettlementRepository) Create(ctx context.Context, s *settlement.Settlement) error {
	_ = ctx
	if s == nil {
		return settlement.ErrNilSettlement
	}
	if s.ID == "" {
		return settlement.ErrEmptyStationID
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.data[s.ID]; exists {
		return settlement.ErrPeriodAlreadyClosed
	}
	r.data[s.ID] = *s
	return nil
}

// ListByStation returns settlements with business dates in [from, to).
func (r *SettlementRepository) ListByStation(ctx context.Context, stationID string, from, to time.Time) ([]settlement.Settlement, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []settlement.Settlement
	for _, s := range r.data {
		if s.StationID != stationID || s.BusinessDate.Before(from) || !s.BusinessDate.Before(to) {
			continue
		}
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].BusinessDate.Before(result[j].BusinessDate)
	})
	return result, nil
}
