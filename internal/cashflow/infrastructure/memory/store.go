package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	cashflow "fuelstation-cloud/internal/cashflow/domain"
)

// Store keeps readings, shifts and handovers behind one lock so that the
// multi-record units of the repositories stay atomic.
type Store struct {
	mu        sync.RWMutex
	readings  map[string]cashflow.Reading
	sequence  []string
	reversed  map[string]string
	shifts    map[string]*cashflow.Shift
	handovers map[string]*cashflow.CashHandover
	children  map[string]string
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		readings:  make(map[string]cashflow.Reading),
		reversed:  make(map[string]string),
		shifts:    make(map[string]*cashflow.Shift),
		handovers: make(map[string]*cashflow.CashHandover),
		children:  make(map[string]string),
	}
}

// Readings returns the reading repository view.
func (s *Store) Readings() *ReadingRepository { return &ReadingRepository{store: s} }

// Shifts returns the shift repository view.
func (s *Store) Shifts() *ShiftRepository { return &ShiftRepository{store: s} }

// Handovers returns the handover repository view.
func (s *Store) Handovers() *HandoverRepository { return &HandoverRepository{store: s} }

// ReadingRepository is an in-memory reading ledger.
type ReadingRepository struct {
	store *Store
}

// Get loads a reading.
func (r *ReadingRepository) Get(ctx context.Context, id string) (*cashflow.Reading, error) {
	_ = ctx
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	reading, ok := r.store.readings[id]
	if !ok {
		return nil, cashflow.ErrReadingNotFound
	}
	return &reading, nil
}

// LatestSale returns the newest unreversed sale of a nozzle.
func (r *ReadingRepository) LatestSale(ctx context.Context, nozzleID string) (*cashflow.Reading, error) {
	_ = ctx
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	reading := r.store.latestSaleLocked(nozzleID)
	if reading == nil {
		return nil, nil
	}
	copy := *reading
	return &copy, nil
}

// ListByShift returns a shift's readings in record order.
func (r *ReadingRepository) ListByShift(ctx context.Context, shiftID string) ([]cashflow.Reading, error) {
	_ = ctx
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var result []cashflow.Reading
	for _, id := range r.store.sequence {
		reading := r.store.readings[id]
		if reading.ShiftID == shiftID {
			result = append(result, reading)
		}
	}
	return result, nil
}

// Append inserts the reading and applies it to the active shift.
func (r *ReadingRepository) Append(ctx context.Context, reading *cashflow.Reading, basedOn string) (*cashflow.Shift, error) {
	_ = ctx
	if reading == nil || reading.ID == "" {
		return nil, cashflow.ErrMissingField
	}
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.readings[reading.ID]; exists {
		return nil, cashflow.ErrConcurrentUpdate
	}
	shift, ok := s.shifts[reading.ShiftID]
	if !ok {
		return nil, cashflow.ErrShiftNotFound
	}
	if shift.Status != cashflow.ShiftActive {
		return nil, cashflow.ErrShiftNotActive
	}
	if reading.Kind == cashflow.ReadingKindReversal {
		if _, done := s.reversed[reading.ReversesReadingID]; done {
			return nil, cashflow.ErrReadingAlreadyReversed
		}
	}
	latestID := ""
	if latest := s.latestSaleLocked(reading.NozzleID); latest != nil {
		latestID = latest.ID
	}
	if latestID != basedOn {
		if reading.Kind == cashflow.ReadingKindReversal {
			return nil, cashflow.ErrReadingNotReversible
		}
		return nil, cashflow.ErrConcurrentUpdate
	}

	updated := shift.Clone()
	if err := updated.Apply(reading.Delta()); err != nil {
		return nil, err
	}
	s.shifts[updated.ID] = updated
	s.readings[reading.ID] = *reading
	s.sequence = append(s.sequence, reading.ID)
	if reading.Kind == cashflow.ReadingKindReversal {
		s.reversed[reading.ReversesReadingID] = reading.ID
	}
	return updated.Clone(), nil
}

func (s *Store) latestSaleLocked(nozzleID string) *cashflow.Reading {
	for i := len(s.sequence) - 1; i >= 0; i-- {
		reading := s.readings[s.sequence[i]]
		if reading.NozzleID != nozzleID || reading.Kind != cashflow.ReadingKindSale {
			continue
		}
		if _, done := s.reversed[reading.ID]; done {
			continue
		}
		return &reading
	}
	return nil
}

// ShiftRepository is an in-memory shift store.
type ShiftRepository struct {
	store *Store
}

// Create inserts an active shift.
func (r *ShiftRepository) Create(ctx context.Context, shift *cashflow.Shift) error {
	_ = ctx
	if shift == nil || shift.ID == "" {
		return cashflow.ErrMissingField
	}
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.shifts {
		if existing.Status == cashflow.ShiftActive &&
			existing.EmployeeID == shift.EmployeeID &&
			existing.StationID == shift.StationID {
			return cashflow.ErrDuplicateActiveShift
		}
	}
	if _, exists := s.shifts[shift.ID]; exists {
		return cashflow.ErrConcurrentUpdate
	}
	s.shifts[shift.ID] = shift.Clone()
	return nil
}

// Get loads a shift.
func (r *ShiftRepository) Get(ctx context.Context, id string) (*cashflow.Shift, error) {
	_ = ctx
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	shift, ok := r.store.shifts[id]
	if !ok {
		return nil, cashflow.ErrShiftNotFound
	}
	return shift.Clone(), nil
}

// ListByStation returns shifts started in [from, to).
func (r *ShiftRepository) ListByStation(ctx context.Context, stationID string, from, to time.Time) ([]cashflow.Shift, error) {
	_ = ctx
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var result []cashflow.Shift
	for _, shift := range r.store.shifts {
		if shift.StationID != stationID {
			continue
		}
		if shift.StartedAt.Before(from) || !shift.StartedAt.Before(to) {
			continue
		}
		result = append(result, *shift.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].StartedAt.Equal(result[j].StartedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].StartedAt.Before(result[j].StartedAt)
	})
	return result, nil
}

// Update applies mutate and stores the shift with its handover.
func (r *ShiftRepository) Update(ctx context.Context, id string, mutate cashflow.ShiftMutation) (*cashflow.Shift, *cashflow.CashHandover, error) {
	_ = ctx
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.shifts[id]
	if !ok {
		return nil, nil, cashflow.ErrShiftNotFound
	}
	shift := stored.Clone()
	handover, err := mutate(shift)
	if err != nil {
		return nil, nil, err
	}
	if handover != nil {
		if err := s.insertHandoverLocked(handover); err != nil {
			return nil, nil, err
		}
	}
	s.shifts[id] = shift
	return shift.Clone(), handover.Clone(), nil
}

// HandoverRepository is an in-memory custody chain.
type HandoverRepository struct {
	store *Store
}

// Get loads a handover.
func (r *HandoverRepository) Get(ctx context.Context, id string) (*cashflow.CashHandover, error) {
	_ = ctx
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	h, ok := r.store.handovers[id]
	if !ok {
		return nil, cashflow.ErrHandoverNotFound
	}
	return h.Clone(), nil
}

// Child returns the step created from parentID.
func (r *HandoverRepository) Child(ctx context.Context, parentID string) (*cashflow.CashHandover, error) {
	_ = ctx
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	childID, ok := r.store.children[parentID]
	if !ok {
		return nil, nil
	}
	return r.store.handovers[childID].Clone(), nil
}

// ListByShift returns the chain of a shift in chain order.
func (r *HandoverRepository) ListByShift(ctx context.Context, shiftID string) ([]cashflow.CashHandover, error) {
	_ = ctx
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var result []cashflow.CashHandover
	for _, h := range r.store.handovers {
		if h.ShiftID == shiftID {
			result = append(result, *h.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Type.Position() < result[j].Type.Position()
	})
	return result, nil
}

// Transition stores h when the stored version still matches.
func (r *HandoverRepository) Transition(ctx context.Context, h *cashflow.CashHandover, fromStatus cashflow.HandoverStatus, fromVersion int, next *cashflow.CashHandover) error {
	_ = ctx
	if h == nil {
		return cashflow.ErrMissingField
	}
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.handovers[h.ID]
	if !ok {
		return cashflow.ErrHandoverNotFound
	}
	if stored.Status != fromStatus || stored.Version != fromVersion {
		return cashflow.ErrConcurrentUpdate
	}
	if next != nil {
		if err := s.insertHandoverLocked(next); err != nil {
			return err
		}
	}
	s.handovers[h.ID] = h.Clone()
	return nil
}

func (s *Store) insertHandoverLocked(h *cashflow.CashHandover) error {
	if h.ID == "" {
		return cashflow.ErrMissingField
	}
	if _, exists := s.handovers[h.ID]; exists {
		return cashflow.ErrConcurrentUpdate
	}
	if h.ParentID == "" {
		for _, existing := range s.handovers {
			if existing.ShiftID == h.ShiftID && existing.ParentID == "" {
				return cashflow.ErrConcurrentUpdate
			}
		}
	} else {
		if _, taken := s.children[h.ParentID]; taken {
			return cashflow.ErrConcurrentUpdate
		}
		s.children[h.ParentID] = h.ID
	}
	s.handovers[h.ID] = h.Clone()
	return nil
}
