package database

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/busmate/booking-backend/internal/models"
	"github.com/google/uuid"
)

// MemoryBookingRepository is an in-memory BookingRepository for tests and
// local development. It enforces the same status transition guards the
// Postgres implementation expresses in SQL.
type MemoryBookingRepository struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]*models.Booking
}

// NewMemoryBookingRepository creates an empty in-memory booking repository
func NewMemoryBookingRepository() *MemoryBookingRepository {
	return &MemoryBookingRepository{bookings: make(map[uuid.UUID]*models.Booking)}
}

// CreateBooking inserts a new pending booking
func (m *MemoryBookingRepository) CreateBooking(booking *models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.bookings[booking.ID]; exists {
		return fmt.Errorf("booking %s already exists", booking.ID)
	}
	now := time.Now()
	stored := *booking
	stored.CreatedAt = now
	stored.UpdatedAt = now
	m.bookings[booking.ID] = &stored
	booking.CreatedAt = now
	booking.UpdatedAt = now
	return nil
}

// GetBookingByID returns a booking by ID
func (m *MemoryBookingRepository) GetBookingByID(id uuid.UUID) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	booking, ok := m.bookings[id]
	if !ok {
		return nil, models.ErrBookingNotFound
	}
	snapshot := *booking
	return &snapshot, nil
}

// GetBookingByIdempotencyKey returns a user's earlier booking with this key
func (m *MemoryBookingRepository) GetBookingByIdempotencyKey(userID uuid.UUID, key string) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *models.Booking
	for _, b := range m.bookings {
		if b.UserID != userID || b.IdempotencyKey == nil || *b.IdempotencyKey != key {
			continue
		}
		if latest == nil || b.CreatedAt.After(latest.CreatedAt) {
			latest = b
		}
	}
	if latest == nil {
		return nil, models.ErrBookingNotFound
	}
	snapshot := *latest
	return &snapshot, nil
}

// GetBookingByIntentID resolves a gateway intent ID to its booking
func (m *MemoryBookingRepository) GetBookingByIntentID(intentID string) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, b := range m.bookings {
		if b.PaymentIntentID != nil && *b.PaymentIntentID == intentID {
			snapshot := *b
			return &snapshot, nil
		}
	}
	return nil, models.ErrBookingNotFound
}

// GetBookingsByUser returns a page of the user's bookings, newest first
func (m *MemoryBookingRepository) GetBookingsByUser(userID uuid.UUID, limit, offset int) ([]models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Booking
	for _, b := range m.bookings {
		if b.UserID == userID {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if offset >= len(out) {
		return []models.Booking{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// AttachPaymentIntent records the gateway intent and opens payment
func (m *MemoryBookingRepository) AttachPaymentIntent(bookingID uuid.UUID, intentID, clientKey string, status models.PaymentIntentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[bookingID]
	if !ok || b.Status.IsTerminal() {
		return fmt.Errorf("booking %s not in a payable status", bookingID)
	}
	b.PaymentIntentID = &intentID
	b.ClientKey = &clientKey
	b.PaymentStatus = &status
	b.Status = models.BookingStatusAwaitingPayment
	b.UpdatedAt = time.Now()
	return nil
}

// UpdatePaymentStatus records the latest gateway status
func (m *MemoryBookingRepository) UpdatePaymentStatus(bookingID uuid.UUID, status models.PaymentIntentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[bookingID]
	if !ok {
		return models.ErrBookingNotFound
	}
	b.PaymentStatus = &status
	b.UpdatedAt = time.Now()
	return nil
}

// SetRedirectURL parks the booking at the gateway's external step
func (m *MemoryBookingRepository) SetRedirectURL(bookingID uuid.UUID, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[bookingID]
	if !ok || b.Status != models.BookingStatusAwaitingPayment {
		return fmt.Errorf("booking %s not awaiting payment", bookingID)
	}
	b.RedirectURL = &url
	b.UpdatedAt = time.Now()
	return nil
}

// ConfirmBooking finalizes a non-terminal booking
func (m *MemoryBookingRepository) ConfirmBooking(bookingID uuid.UUID, paymentRef, qrPayload string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[bookingID]
	if !ok || b.Status.IsTerminal() {
		return fmt.Errorf("booking %s not in a confirmable status", bookingID)
	}
	now := time.Now()
	succeeded := models.IntentSucceeded
	b.Status = models.BookingStatusConfirmed
	b.PaymentStatus = &succeeded
	b.PaymentRef = &paymentRef
	b.QRPayload = &qrPayload
	b.RedirectURL = nil
	b.ConfirmedAt = &now
	b.UpdatedAt = now
	return nil
}

// MarkFailed ends a non-terminal booking with a reason
func (m *MemoryBookingRepository) MarkFailed(bookingID uuid.UUID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[bookingID]
	if !ok || b.Status.IsTerminal() {
		return fmt.Errorf("booking %s not in a failable status", bookingID)
	}
	b.Status = models.BookingStatusFailed
	b.FailureReason = &reason
	b.RedirectURL = nil
	b.UpdatedAt = time.Now()
	return nil
}

// MarkExpired ends a non-terminal booking whose hold lapsed
func (m *MemoryBookingRepository) MarkExpired(bookingID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[bookingID]
	if !ok || b.Status.IsTerminal() {
		return fmt.Errorf("booking %s not in an expirable status", bookingID)
	}
	reason := "hold_expired"
	b.Status = models.BookingStatusExpired
	b.FailureReason = &reason
	b.RedirectURL = nil
	b.UpdatedAt = time.Now()
	return nil
}

// ExpireStaleBookings expires every non-terminal booking past its hold TTL
func (m *MemoryBookingRepository) ExpireStaleBookings() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	expired := 0
	now := time.Now()
	reason := "hold_expired"
	for _, b := range m.bookings {
		if !b.Status.IsTerminal() && b.HoldExpiresAt.Before(now) {
			b.Status = models.BookingStatusExpired
			b.FailureReason = &reason
			b.RedirectURL = nil
			b.UpdatedAt = now
			expired++
		}
	}
	return expired, nil
}

// PurgeTerminalBefore deletes terminal bookings older than cutoff
func (m *MemoryBookingRepository) PurgeTerminalBefore(cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	purged := 0
	for id, b := range m.bookings {
		if b.Status.IsTerminal() && b.CreatedAt.Before(cutoff) {
			delete(m.bookings, id)
			purged++
		}
	}
	return purged, nil
}
