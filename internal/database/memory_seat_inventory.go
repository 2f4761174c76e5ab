package database

import (
	"sort"
	"sync"
	"time"

	"github.com/busmate/booking-backend/internal/models"
	"github.com/google/uuid"
)

// MemorySeatInventory is an in-memory SeatInventory used by tests and local
// development. A single mutex serializes all mutations, which gives the same
// all-or-nothing guarantee the conditional UPDATE gives in Postgres.
type MemorySeatInventory struct {
	mu    sync.Mutex
	seats map[uuid.UUID]map[string]*models.Seat // scheduleID -> seatNumber -> seat
	holds map[uuid.UUID]*models.SeatHold
}

// NewMemorySeatInventory creates an empty in-memory seat inventory
func NewMemorySeatInventory() *MemorySeatInventory {
	return &MemorySeatInventory{
		seats: make(map[uuid.UUID]map[string]*models.Seat),
		holds: make(map[uuid.UUID]*models.SeatHold),
	}
}

// SeedSchedule registers a schedule with the given available seats
func (m *MemorySeatInventory) SeedSchedule(scheduleID uuid.UUID, seatNumbers []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seats := make(map[string]*models.Seat, len(seatNumbers))
	now := time.Now()
	for _, num := range seatNumbers {
		seats[num] = &models.Seat{
			ID:         uuid.New(),
			ScheduleID: scheduleID,
			SeatNumber: num,
			Status:     models.SeatStatusAvailable,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
	}
	m.seats[scheduleID] = seats
}

// GetSeatMap returns all seats for a schedule with lazy hold expiry applied
func (m *MemorySeatInventory) GetSeatMap(scheduleID uuid.UUID) ([]models.Seat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	schedule, ok := m.seats[scheduleID]
	if !ok {
		return nil, models.ErrScheduleNotFound
	}

	now := time.Now()
	out := make([]models.Seat, 0, len(schedule))
	for _, seat := range schedule {
		view := *seat
		if view.Status == models.SeatStatusHeld && view.HeldUntil != nil && view.HeldUntil.Before(now) {
			view.Status = models.SeatStatusAvailable
			view.HoldID = nil
			view.HeldUntil = nil
		}
		out = append(out, view)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SeatNumber < out[j].SeatNumber })
	return out, nil
}

// PlaceHold holds all requested seats or none of them
func (m *MemorySeatInventory) PlaceHold(scheduleID, holderID uuid.UUID, seatNumbers []string, ttl time.Duration) (*models.SeatHold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	schedule, ok := m.seats[scheduleID]
	if !ok {
		return nil, models.ErrScheduleNotFound
	}

	now := time.Now()
	var conflicting []string
	for _, num := range seatNumbers {
		seat, ok := schedule[num]
		if !ok || !seat.IsAvailableAt(now) {
			conflicting = append(conflicting, num)
		}
	}
	if len(conflicting) > 0 {
		sort.Strings(conflicting)
		return nil, &models.HoldConflictError{
			ScheduleID:       scheduleID.String(),
			ConflictingSeats: conflicting,
		}
	}

	hold := &models.SeatHold{
		ID:          uuid.New(),
		ScheduleID:  scheduleID,
		HolderID:    holderID,
		SeatNumbers: models.StringArray(seatNumbers),
		Status:      models.HoldStatusHeld,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
	}
	for _, num := range seatNumbers {
		seat := schedule[num]
		seat.Status = models.SeatStatusHeld
		seat.HoldID = &hold.ID
		expiresAt := hold.ExpiresAt
		seat.HeldUntil = &expiresAt
		seat.UpdatedAt = now
	}
	m.holds[hold.ID] = hold
	return hold, nil
}

// GetHold returns a hold by ID
func (m *MemorySeatInventory) GetHold(holdID uuid.UUID) (*models.SeatHold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hold, ok := m.holds[holdID]
	if !ok {
		return nil, models.ErrHoldNotFound
	}
	snapshot := *hold
	return &snapshot, nil
}

// CommitHold converts a live hold into sold seats
func (m *MemorySeatInventory) CommitHold(holdID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	hold, ok := m.holds[holdID]
	if !ok || hold.Status != models.HoldStatusHeld || hold.IsExpired() {
		return models.ErrHoldExpired
	}

	hold.Status = models.HoldStatusCommitted
	now := time.Now()
	for _, num := range hold.SeatNumbers {
		if seat, ok := m.seats[hold.ScheduleID][num]; ok && seat.HoldID != nil && *seat.HoldID == holdID {
			seat.Status = models.SeatStatusSold
			seat.HoldID = nil
			seat.HeldUntil = nil
			seat.UpdatedAt = now
		}
	}
	return nil
}

// ReleaseHold frees a hold's seats; safe to call more than once
func (m *MemorySeatInventory) ReleaseHold(holdID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	hold, ok := m.holds[holdID]
	if !ok || hold.Status != models.HoldStatusHeld {
		return nil
	}

	hold.Status = models.HoldStatusReleased
	m.releaseSeatsLocked(hold)
	return nil
}

// ReleaseExpiredHolds sweeps every hold past its TTL
func (m *MemorySeatInventory) ReleaseExpiredHolds() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	released := 0
	for _, hold := range m.holds {
		if hold.Status == models.HoldStatusHeld && hold.IsExpired() {
			hold.Status = models.HoldStatusReleased
			released += m.releaseSeatsLocked(hold)
		}
	}
	return released, nil
}

func (m *MemorySeatInventory) releaseSeatsLocked(hold *models.SeatHold) int {
	now := time.Now()
	released := 0
	for _, num := range hold.SeatNumbers {
		seat, ok := m.seats[hold.ScheduleID][num]
		if !ok || seat.HoldID == nil || *seat.HoldID != hold.ID {
			continue
		}
		seat.Status = models.SeatStatusAvailable
		seat.HoldID = nil
		seat.HeldUntil = nil
		seat.UpdatedAt = now
		released++
	}
	return released
}
