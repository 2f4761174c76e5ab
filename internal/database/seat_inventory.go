package database

import (
	"time"

	"github.com/busmate/booking-backend/internal/models"
	"github.com/google/uuid"
)

// SeatInventory owns the truth about seat availability for a schedule.
// Holds are all-or-nothing: either every requested seat transitions to held
// or none do. A hold past its TTL counts as available for new holds even
// before the reaper has swept it.
type SeatInventory interface {
	// GetSeatMap returns every seat of the schedule with its effective
	// status as of now (expired holds reported as available).
	GetSeatMap(scheduleID uuid.UUID) ([]models.Seat, error)

	// PlaceHold atomically holds the requested seats for ttl. On any
	// conflict nothing is held and a *models.HoldConflictError names the
	// unavailable seats.
	PlaceHold(scheduleID, holderID uuid.UUID, seatNumbers []string, ttl time.Duration) (*models.SeatHold, error)

	// GetHold returns a hold by ID, or models.ErrHoldNotFound.
	GetHold(holdID uuid.UUID) (*models.SeatHold, error)

	// CommitHold converts a live hold into sold seats. Fails with
	// models.ErrHoldExpired if the TTL already elapsed.
	CommitHold(holdID uuid.UUID) error

	// ReleaseHold frees the hold's seats. Idempotent: releasing a hold
	// that is already released, committed or unknown is a no-op.
	ReleaseHold(holdID uuid.UUID) error

	// ReleaseExpiredHolds frees every hold past its TTL and returns how
	// many seats were released.
	ReleaseExpiredHolds() (int, error)
}
