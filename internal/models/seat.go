package models

import (
	"time"

	"github.com/google/uuid"
)

// SeatStatus represents the lifecycle state of a seat on one schedule.
// Matches PostgreSQL ENUM: seat_status
type SeatStatus string

const (
	SeatStatusAvailable SeatStatus = "available"
	SeatStatusHeld      SeatStatus = "held"
	SeatStatusSold      SeatStatus = "sold"
)

// Seat belongs to exactly one schedule and carries the TTL hold columns.
// A seat whose held_until is in the past counts as available for every
// evaluation even before the reaper has cleared the columns.
type Seat struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	ScheduleID uuid.UUID  `json:"schedule_id" db:"schedule_id"`
	SeatNumber string     `json:"seat_number" db:"seat_number"`
	Status     SeatStatus `json:"status" db:"status"`
	HoldID     *uuid.UUID `json:"hold_id,omitempty" db:"hold_id"`
	HeldUntil  *time.Time `json:"held_until,omitempty" db:"held_until"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// IsAvailableAt reports whether the seat can be claimed at the given instant,
// applying lazy hold expiry.
func (s *Seat) IsAvailableAt(now time.Time) bool {
	switch s.Status {
	case SeatStatusAvailable:
		return true
	case SeatStatusHeld:
		return s.HeldUntil != nil && s.HeldUntil.Before(now)
	default:
		return false
	}
}

// SeatHoldStatus represents the lifecycle state of a hold
type SeatHoldStatus string

const (
	HoldStatusHeld      SeatHoldStatus = "held"
	HoldStatusCommitted SeatHoldStatus = "committed"
	HoldStatusReleased  SeatHoldStatus = "released"
)

// SeatHold is an ephemeral, exclusively-owned claim on a set of seats for one
// schedule. Exactly one in-flight booking owns a hold; holds are never shared.
type SeatHold struct {
	ID          uuid.UUID      `json:"id" db:"id"`
	ScheduleID  uuid.UUID      `json:"schedule_id" db:"schedule_id"`
	HolderID    uuid.UUID      `json:"holder_id" db:"holder_id"`
	SeatNumbers StringArray    `json:"seat_numbers" db:"seat_numbers"`
	Status      SeatHoldStatus `json:"status" db:"status"`
	ExpiresAt   time.Time      `json:"expires_at" db:"expires_at"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
}

// IsExpired reports whether the hold has passed its TTL
func (h *SeatHold) IsExpired() bool {
	return time.Now().After(h.ExpiresAt)
}
