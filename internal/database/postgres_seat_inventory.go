package database

import (
	"fmt"
	"time"

	"github.com/busmate/booking-backend/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// PostgresSeatInventory implements SeatInventory on top of the seats and
// seat_holds tables. Concurrency safety comes from a single conditional
// UPDATE per hold attempt: the WHERE clause only matches seats that are
// effectively available, so two racing holds can never both win.
type PostgresSeatInventory struct {
	db DB
}

// NewPostgresSeatInventory creates a new Postgres-backed seat inventory
func NewPostgresSeatInventory(db DB) *PostgresSeatInventory {
	return &PostgresSeatInventory{db: db}
}

// GetSeatMap returns all seats for a schedule with lazy hold expiry applied
func (r *PostgresSeatInventory) GetSeatMap(scheduleID uuid.UUID) ([]models.Seat, error) {
	query := `
		SELECT id, schedule_id, seat_number,
		       CASE WHEN status = 'held' AND held_until < NOW() THEN 'available' ELSE status END AS status,
		       hold_id, held_until, created_at, updated_at
		FROM seats
		WHERE schedule_id = $1
		ORDER BY seat_number`

	var seats []models.Seat
	if err := r.db.Select(&seats, query, scheduleID); err != nil {
		return nil, fmt.Errorf("failed to load seat map: %w", err)
	}
	return seats, nil
}

// PlaceHold holds all requested seats or none of them
func (r *PostgresSeatInventory) PlaceHold(scheduleID, holderID uuid.UUID, seatNumbers []string, ttl time.Duration) (*models.SeatHold, error) {
	if len(seatNumbers) == 0 {
		return nil, fmt.Errorf("no seats requested")
	}

	holdID := uuid.New()
	expiresAt := time.Now().Add(ttl)

	tx, err := r.db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query, args, err := sqlx.In(`
		UPDATE seats
		SET status = 'held', hold_id = ?, held_until = ?, updated_at = NOW()
		WHERE schedule_id = ?
		  AND seat_number IN (?)
		  AND (status = 'available' OR (status = 'held' AND held_until < NOW()))
	`, holdID, expiresAt, scheduleID, seatNumbers)
	if err != nil {
		return nil, fmt.Errorf("failed to build hold query: %w", err)
	}

	result, err := tx.Exec(r.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to hold seats: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if int(rowsAffected) != len(seatNumbers) {
		// Roll back the partial update, then report which seats lost
		tx.Rollback()
		conflicting, cErr := r.findUnavailable(scheduleID, seatNumbers)
		if cErr != nil {
			return nil, cErr
		}
		if len(conflicting) == 0 {
			// The blocking hold was released between rollback and re-query;
			// report the whole set so the caller refreshes the seat map
			conflicting = seatNumbers
		}
		return nil, &models.HoldConflictError{
			ScheduleID:       scheduleID.String(),
			ConflictingSeats: conflicting,
		}
	}

	_, err = tx.Exec(`
		INSERT INTO seat_holds (id, schedule_id, holder_id, seat_numbers, status, expires_at, created_at)
		VALUES ($1, $2, $3, $4, 'held', $5, NOW())
	`, holdID, scheduleID, holderID, models.StringArray(seatNumbers), expiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record hold: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit hold: %w", err)
	}

	return &models.SeatHold{
		ID:          holdID,
		ScheduleID:  scheduleID,
		HolderID:    holderID,
		SeatNumbers: models.StringArray(seatNumbers),
		Status:      models.HoldStatusHeld,
		ExpiresAt:   expiresAt,
		CreatedAt:   time.Now(),
	}, nil
}

// findUnavailable lists which of the requested seats are not holdable now
func (r *PostgresSeatInventory) findUnavailable(scheduleID uuid.UUID, seatNumbers []string) ([]string, error) {
	query, args, err := sqlx.In(`
		SELECT seat_number
		FROM seats
		WHERE schedule_id = ?
		  AND seat_number IN (?)
		  AND NOT (status = 'available' OR (status = 'held' AND held_until < NOW()))
		ORDER BY seat_number
	`, scheduleID, seatNumbers)
	if err != nil {
		return nil, err
	}

	var conflicting []string
	if err := r.db.Select(&conflicting, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to inspect seat conflicts: %w", err)
	}
	return conflicting, nil
}

// GetHold returns a hold by ID
func (r *PostgresSeatInventory) GetHold(holdID uuid.UUID) (*models.SeatHold, error) {
	query := `
		SELECT id, schedule_id, holder_id, seat_numbers, status, expires_at, created_at
		FROM seat_holds
		WHERE id = $1`

	var hold models.SeatHold
	if err := r.db.Get(&hold, query, holdID); err != nil {
		if isNoRows(err) {
			return nil, models.ErrHoldNotFound
		}
		return nil, fmt.Errorf("failed to get hold: %w", err)
	}
	return &hold, nil
}

// CommitHold converts a live hold into sold seats
func (r *PostgresSeatInventory) CommitHold(holdID uuid.UUID) error {
	tx, err := r.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		UPDATE seat_holds
		SET status = 'committed'
		WHERE id = $1 AND status = 'held' AND expires_at > NOW()
	`, holdID)
	if err != nil {
		return fmt.Errorf("failed to commit hold: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return models.ErrHoldExpired
	}

	_, err = tx.Exec(`
		UPDATE seats
		SET status = 'sold', hold_id = NULL, held_until = NULL, updated_at = NOW()
		WHERE hold_id = $1
	`, holdID)
	if err != nil {
		return fmt.Errorf("failed to mark seats sold: %w", err)
	}

	return tx.Commit()
}

// ReleaseHold frees a hold's seats; safe to call more than once
func (r *PostgresSeatInventory) ReleaseHold(holdID uuid.UUID) error {
	tx, err := r.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		UPDATE seat_holds
		SET status = 'released'
		WHERE id = $1 AND status = 'held'
	`, holdID)
	if err != nil {
		return fmt.Errorf("failed to release hold: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		// Already released, committed or never existed
		return nil
	}

	_, err = tx.Exec(`
		UPDATE seats
		SET status = 'available', hold_id = NULL, held_until = NULL, updated_at = NOW()
		WHERE hold_id = $1 AND status = 'held'
	`, holdID)
	if err != nil {
		return fmt.Errorf("failed to release seats: %w", err)
	}

	return tx.Commit()
}

// ReleaseExpiredHolds sweeps every hold past its TTL
func (r *PostgresSeatInventory) ReleaseExpiredHolds() (int, error) {
	tx, err := r.db.Beginx()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		UPDATE seat_holds
		SET status = 'released'
		WHERE status = 'held' AND expires_at < NOW()
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to expire holds: %w", err)
	}

	result, err := tx.Exec(`
		UPDATE seats
		SET status = 'available', hold_id = NULL, held_until = NULL, updated_at = NOW()
		WHERE status = 'held' AND held_until < NOW()
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to release expired seats: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	rowsAffected, _ := result.RowsAffected()
	return int(rowsAffected), nil
}
