package database

import (
	"time"

	"github.com/busmate/booking-backend/internal/models"
	"github.com/google/uuid"
)

// BookingRepository persists bookings. Status transitions are guarded at the
// storage layer: an update that names the allowed prior statuses and checks
// rows affected cannot race another writer into an invalid transition.
type BookingRepository interface {
	CreateBooking(booking *models.Booking) error

	// GetBookingByID returns models.ErrBookingNotFound when missing.
	GetBookingByID(id uuid.UUID) (*models.Booking, error)

	// GetBookingByIdempotencyKey returns the prior booking created by this
	// user with the same key, or models.ErrBookingNotFound.
	GetBookingByIdempotencyKey(userID uuid.UUID, key string) (*models.Booking, error)

	// GetBookingByIntentID resolves the booking a gateway intent belongs to.
	GetBookingByIntentID(intentID string) (*models.Booking, error)

	GetBookingsByUser(userID uuid.UUID, limit, offset int) ([]models.Booking, error)

	// AttachPaymentIntent records the lazily created gateway intent and
	// moves the booking pending -> awaiting_payment.
	AttachPaymentIntent(bookingID uuid.UUID, intentID, clientKey string, status models.PaymentIntentStatus) error

	// UpdatePaymentStatus records the latest status observed at the gateway.
	UpdatePaymentStatus(bookingID uuid.UUID, status models.PaymentIntentStatus) error

	// SetRedirectURL marks the booking as parked at the gateway's external
	// authentication step.
	SetRedirectURL(bookingID uuid.UUID, url string) error

	// ConfirmBooking finalizes a non-terminal booking. Zero rows affected
	// means the booking already left the confirmable statuses.
	ConfirmBooking(bookingID uuid.UUID, paymentRef, qrPayload string) error

	// MarkFailed ends a non-terminal booking with a failure reason.
	MarkFailed(bookingID uuid.UUID, reason string) error

	// MarkExpired ends a non-terminal booking whose hold lapsed.
	MarkExpired(bookingID uuid.UUID) error

	// ExpireStaleBookings expires every non-terminal booking past its hold
	// TTL and returns how many were expired.
	ExpireStaleBookings() (int, error)

	// PurgeTerminalBefore deletes terminal bookings older than cutoff.
	PurgeTerminalBefore(cutoff time.Time) (int, error)
}
