package database

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/busmate/booking-backend/internal/models"
	"github.com/google/uuid"
)

// ScheduleRepository is the orchestrator's read-only view of schedules.
// Schedule management belongs to a separate admin surface.
type ScheduleRepository interface {
	// GetScheduleByID returns models.ErrScheduleNotFound when missing.
	GetScheduleByID(id uuid.UUID) (*models.Schedule, error)

	// ListUpcoming returns bookable schedules departing on or after from.
	ListUpcoming(from time.Time, limit int) ([]models.Schedule, error)
}

const scheduleColumns = `
	id, origin, destination, bus_number, travel_date, departure_time,
	arrival_time, price_per_seat, capacity, status, created_at`

// PostgresScheduleRepository implements ScheduleRepository over the schedules table
type PostgresScheduleRepository struct {
	db DB
}

// NewPostgresScheduleRepository creates a new Postgres-backed schedule repository
func NewPostgresScheduleRepository(db DB) *PostgresScheduleRepository {
	return &PostgresScheduleRepository{db: db}
}

// GetScheduleByID returns a schedule by ID
func (r *PostgresScheduleRepository) GetScheduleByID(id uuid.UUID) (*models.Schedule, error) {
	query := `SELECT` + scheduleColumns + ` FROM schedules WHERE id = $1`

	var schedule models.Schedule
	if err := r.db.Get(&schedule, query, id); err != nil {
		if isNoRows(err) {
			return nil, models.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return &schedule, nil
}

// ListUpcoming returns bookable schedules departing on or after from
func (r *PostgresScheduleRepository) ListUpcoming(from time.Time, limit int) ([]models.Schedule, error) {
	query := `SELECT` + scheduleColumns + `
		FROM schedules
		WHERE status = 'scheduled' AND travel_date >= $1
		ORDER BY travel_date, departure_time
		LIMIT $2`

	var schedules []models.Schedule
	if err := r.db.Select(&schedules, query, from, limit); err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	return schedules, nil
}

// MemoryScheduleRepository is an in-memory ScheduleRepository for tests
type MemoryScheduleRepository struct {
	mu        sync.RWMutex
	schedules map[uuid.UUID]models.Schedule
}

// NewMemoryScheduleRepository creates an empty in-memory schedule repository
func NewMemoryScheduleRepository() *MemoryScheduleRepository {
	return &MemoryScheduleRepository{schedules: make(map[uuid.UUID]models.Schedule)}
}

// SeedSchedule registers a schedule
func (m *MemoryScheduleRepository) SeedSchedule(schedule models.Schedule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[schedule.ID] = schedule
}

// GetScheduleByID returns a schedule by ID
func (m *MemoryScheduleRepository) GetScheduleByID(id uuid.UUID) (*models.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	schedule, ok := m.schedules[id]
	if !ok {
		return nil, models.ErrScheduleNotFound
	}
	return &schedule, nil
}

// ListUpcoming returns bookable schedules departing on or after from
func (m *MemoryScheduleRepository) ListUpcoming(from time.Time, limit int) ([]models.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Schedule
	for _, s := range m.schedules {
		if s.Status == models.ScheduleStatusScheduled && !s.TravelDate.Before(from) {
			out = append(out, s)
		}
	}
	// Same order as the SQL query, so pages are stable across calls
	sort.Slice(out, func(i, j int) bool {
		if !out[i].TravelDate.Equal(out[j].TravelDate) {
			return out[i].TravelDate.Before(out[j].TravelDate)
		}
		return out[i].DepartureTime.Before(out[j].DepartureTime)
	})
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}
