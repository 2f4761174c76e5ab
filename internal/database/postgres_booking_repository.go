package database

import (
	"fmt"
	"time"

	"github.com/busmate/booking-backend/internal/models"
	"github.com/google/uuid"
)

const bookingColumns = `
	id, user_id, schedule_id, hold_id, seat_numbers,
	passenger_name, passenger_email, amount, currency, status, failure_reason,
	payment_intent_id, client_key, payment_status, redirect_url, payment_ref,
	qr_payload, hold_expires_at, idempotency_key, created_at, confirmed_at, updated_at`

// PostgresBookingRepository implements BookingRepository over the bookings table
type PostgresBookingRepository struct {
	db DB
}

// NewPostgresBookingRepository creates a new Postgres-backed booking repository
func NewPostgresBookingRepository(db DB) *PostgresBookingRepository {
	return &PostgresBookingRepository{db: db}
}

// CreateBooking inserts a new pending booking
func (r *PostgresBookingRepository) CreateBooking(booking *models.Booking) error {
	query := `
		INSERT INTO bookings (
			id, user_id, schedule_id, hold_id, seat_numbers,
			passenger_name, passenger_email, amount, currency, status,
			hold_expires_at, idempotency_key, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())`

	_, err := r.db.Exec(query,
		booking.ID, booking.UserID, booking.ScheduleID, booking.HoldID, booking.SeatNumbers,
		booking.PassengerName, booking.PassengerEmail, booking.Amount, booking.Currency,
		booking.Status, booking.HoldExpiresAt, booking.IdempotencyKey)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

// GetBookingByID returns a booking by ID
func (r *PostgresBookingRepository) GetBookingByID(id uuid.UUID) (*models.Booking, error) {
	query := `SELECT` + bookingColumns + ` FROM bookings WHERE id = $1`

	var booking models.Booking
	if err := r.db.Get(&booking, query, id); err != nil {
		if isNoRows(err) {
			return nil, models.ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &booking, nil
}

// GetBookingByIdempotencyKey returns a user's earlier booking with this key
func (r *PostgresBookingRepository) GetBookingByIdempotencyKey(userID uuid.UUID, key string) (*models.Booking, error) {
	query := `SELECT` + bookingColumns + `
		FROM bookings
		WHERE user_id = $1 AND idempotency_key = $2
		ORDER BY created_at DESC
		LIMIT 1`

	var booking models.Booking
	if err := r.db.Get(&booking, query, userID, key); err != nil {
		if isNoRows(err) {
			return nil, models.ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to get booking by idempotency key: %w", err)
	}
	return &booking, nil
}

// GetBookingByIntentID resolves a gateway intent ID to its booking
func (r *PostgresBookingRepository) GetBookingByIntentID(intentID string) (*models.Booking, error) {
	query := `SELECT` + bookingColumns + ` FROM bookings WHERE payment_intent_id = $1`

	var booking models.Booking
	if err := r.db.Get(&booking, query, intentID); err != nil {
		if isNoRows(err) {
			return nil, models.ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to get booking by intent: %w", err)
	}
	return &booking, nil
}

// GetBookingsByUser returns a page of the user's bookings, newest first
func (r *PostgresBookingRepository) GetBookingsByUser(userID uuid.UUID, limit, offset int) ([]models.Booking, error) {
	query := `SELECT` + bookingColumns + `
		FROM bookings
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	var bookings []models.Booking
	if err := r.db.Select(&bookings, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

// AttachPaymentIntent records the gateway intent and opens payment
func (r *PostgresBookingRepository) AttachPaymentIntent(bookingID uuid.UUID, intentID, clientKey string, status models.PaymentIntentStatus) error {
	query := `
		UPDATE bookings
		SET payment_intent_id = $2, client_key = $3, payment_status = $4,
		    status = 'awaiting_payment', updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'awaiting_payment')`

	result, err := r.db.Exec(query, bookingID, intentID, clientKey, status)
	if err != nil {
		return fmt.Errorf("failed to attach payment intent: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("booking %s not in a payable status", bookingID)
	}
	return nil
}

// UpdatePaymentStatus records the latest gateway status
func (r *PostgresBookingRepository) UpdatePaymentStatus(bookingID uuid.UUID, status models.PaymentIntentStatus) error {
	query := `
		UPDATE bookings
		SET payment_status = $2, updated_at = NOW()
		WHERE id = $1`

	_, err := r.db.Exec(query, bookingID, status)
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	return nil
}

// SetRedirectURL parks the booking at the gateway's external step
func (r *PostgresBookingRepository) SetRedirectURL(bookingID uuid.UUID, url string) error {
	query := `
		UPDATE bookings
		SET redirect_url = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'awaiting_payment'`

	result, err := r.db.Exec(query, bookingID, url)
	if err != nil {
		return fmt.Errorf("failed to set redirect url: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("booking %s not awaiting payment", bookingID)
	}
	return nil
}

// ConfirmBooking finalizes a non-terminal booking
func (r *PostgresBookingRepository) ConfirmBooking(bookingID uuid.UUID, paymentRef, qrPayload string) error {
	query := `
		UPDATE bookings
		SET status = 'confirmed', payment_status = 'succeeded', payment_ref = $2,
		    qr_payload = $3, redirect_url = NULL, confirmed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'awaiting_payment')`

	result, err := r.db.Exec(query, bookingID, paymentRef, qrPayload)
	if err != nil {
		return fmt.Errorf("failed to confirm booking: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("booking %s not in a confirmable status", bookingID)
	}
	return nil
}

// MarkFailed ends a non-terminal booking with a reason
func (r *PostgresBookingRepository) MarkFailed(bookingID uuid.UUID, reason string) error {
	query := `
		UPDATE bookings
		SET status = 'failed', failure_reason = $2, redirect_url = NULL, updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'awaiting_payment')`

	result, err := r.db.Exec(query, bookingID, reason)
	if err != nil {
		return fmt.Errorf("failed to mark booking failed: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("booking %s not in a failable status", bookingID)
	}
	return nil
}

// MarkExpired ends a non-terminal booking whose hold lapsed
func (r *PostgresBookingRepository) MarkExpired(bookingID uuid.UUID) error {
	query := `
		UPDATE bookings
		SET status = 'expired', failure_reason = 'hold_expired', redirect_url = NULL, updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'awaiting_payment')`

	result, err := r.db.Exec(query, bookingID)
	if err != nil {
		return fmt.Errorf("failed to mark booking expired: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("booking %s not in an expirable status", bookingID)
	}
	return nil
}

// ExpireStaleBookings expires every non-terminal booking past its hold TTL
func (r *PostgresBookingRepository) ExpireStaleBookings() (int, error) {
	query := `
		UPDATE bookings
		SET status = 'expired', failure_reason = 'hold_expired', redirect_url = NULL, updated_at = NOW()
		WHERE status IN ('pending', 'awaiting_payment') AND hold_expires_at < NOW()`

	result, err := r.db.Exec(query)
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale bookings: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	return int(rowsAffected), nil
}

// PurgeTerminalBefore deletes terminal bookings older than cutoff
func (r *PostgresBookingRepository) PurgeTerminalBefore(cutoff time.Time) (int, error) {
	query := `
		DELETE FROM bookings
		WHERE status IN ('confirmed', 'failed', 'expired') AND created_at < $1`

	result, err := r.db.Exec(query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge bookings: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	return int(rowsAffected), nil
}
