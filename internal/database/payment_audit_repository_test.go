package database

import (
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/busmate/booking-backend/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuditRepo(t *testing.T) (*PaymentAuditRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewPaymentAuditRepository(db, logger), mock
}

func TestRecordAudit(t *testing.T) {
	repo, mock := newAuditRepo(t)

	t.Run("Fills ID And Timestamp", func(t *testing.T) {
		entry := &models.PaymentAudit{
			BookingID: uuid.New(),
			Event:     models.AuditIntentCreated,
		}

		mock.ExpectExec(`INSERT INTO payment_audits`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Record(entry))
		assert.NotEqual(t, uuid.Nil, entry.ID)
		assert.False(t, entry.CreatedAt.IsZero())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Nil Entry", func(t *testing.T) {
		assert.Error(t, repo.Record(nil))
	})
}

func TestListAuditsByBooking(t *testing.T) {
	repo, mock := newAuditRepo(t)
	bookingID := uuid.New()
	intentID := "pi_test"

	mock.ExpectQuery(`SELECT (.+) FROM payment_audits`).
		WithArgs(bookingID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "booking_id", "event", "payment_intent_id", "gateway_status", "detail", "created_at",
		}).
			AddRow(uuid.New(), bookingID, string(models.AuditIntentCreated), &intentID, nil, nil, time.Now()).
			AddRow(uuid.New(), bookingID, string(models.AuditPaymentSucceeded), &intentID, "succeeded", nil, time.Now()))

	audits, err := repo.ListByBooking(bookingID)
	require.NoError(t, err)
	require.Len(t, audits, 2)
	assert.Equal(t, models.AuditIntentCreated, audits[0].Event)
	assert.Equal(t, models.AuditPaymentSucceeded, audits[1].Event)
}

func TestPurgeAuditsBefore(t *testing.T) {
	repo, mock := newAuditRepo(t)
	cutoff := time.Now().AddDate(0, 0, -90)

	mock.ExpectExec(`DELETE FROM payment_audits`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 12))

	purged, err := repo.PurgeBefore(cutoff)
	require.NoError(t, err)
	assert.Equal(t, 12, purged)
}
