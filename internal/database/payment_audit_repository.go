package database

import (
	"fmt"
	"time"

	"github.com/busmate/booking-backend/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// PaymentAuditRepository appends gateway interaction records. Audit rows are
// written on a best-effort basis from the orchestrator but never updated or
// deleted inside the retention window.
type PaymentAuditRepository struct {
	db     DB
	logger *logrus.Logger
}

// NewPaymentAuditRepository creates a new payment audit repository
func NewPaymentAuditRepository(db DB, logger *logrus.Logger) *PaymentAuditRepository {
	return &PaymentAuditRepository{
		db:     db,
		logger: logger,
	}
}

// Record appends one audit entry
func (r *PaymentAuditRepository) Record(audit *models.PaymentAudit) error {
	if audit == nil {
		return fmt.Errorf("audit entry cannot be nil")
	}
	if audit.ID == uuid.Nil {
		audit.ID = uuid.New()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO payment_audits (
			id, booking_id, event, payment_intent_id, gateway_status, detail, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.Exec(query,
		audit.ID, audit.BookingID, audit.Event,
		audit.PaymentIntentID, audit.GatewayStatus, audit.Detail, audit.CreatedAt)
	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"booking_id": audit.BookingID,
			"event":      audit.Event,
		}).Error("Failed to record payment audit")
		return fmt.Errorf("failed to record payment audit: %w", err)
	}
	return nil
}

// ListByBooking returns a booking's audit trail, oldest first
func (r *PaymentAuditRepository) ListByBooking(bookingID uuid.UUID) ([]models.PaymentAudit, error) {
	query := `
		SELECT id, booking_id, event, payment_intent_id, gateway_status, detail, created_at
		FROM payment_audits
		WHERE booking_id = $1
		ORDER BY created_at`

	var audits []models.PaymentAudit
	if err := r.db.Select(&audits, query, bookingID); err != nil {
		return nil, fmt.Errorf("failed to list payment audits: %w", err)
	}
	return audits, nil
}

// PurgeBefore deletes audit rows older than cutoff
func (r *PaymentAuditRepository) PurgeBefore(cutoff time.Time) (int, error) {
	query := `DELETE FROM payment_audits WHERE created_at < $1`

	result, err := r.db.Exec(query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge payment audits: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	return int(rowsAffected), nil
}
