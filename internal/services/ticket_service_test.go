package services

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/busmate/booking-backend/internal/database"
	"github.com/busmate/booking-backend/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ticketFixture(t *testing.T) (*TicketService, *models.Booking) {
	t.Helper()

	schedules := database.NewMemoryScheduleRepository()
	scheduleID := uuid.New()
	schedule := testSchedule(scheduleID, 450.00)
	schedules.SeedSchedule(schedule)

	paymentRef := "pay_777"
	now := time.Now()
	booking := &models.Booking{
		ID:             uuid.New(),
		UserID:         uuid.New(),
		ScheduleID:     scheduleID,
		SeatNumbers:    models.StringArray{"A1", "A2"},
		PassengerName:  "Juan Dela Cruz",
		PassengerEmail: "juan@example.com",
		Amount:         900.00,
		Currency:       "PHP",
		Status:         models.BookingStatusConfirmed,
		PaymentRef:     &paymentRef,
		ConfirmedAt:    &now,
	}
	return NewTicketService(schedules, quietLogger()), booking
}

func TestBuildQRPayload(t *testing.T) {
	svc, booking := ticketFixture(t)

	payload, err := svc.BuildQRPayload(booking)
	require.NoError(t, err)

	var decoded models.TicketPayload
	require.NoError(t, json.Unmarshal([]byte(payload), &decoded))

	assert.Equal(t, booking.ID.String(), decoded.BookingID)
	assert.Equal(t, booking.Reference(), decoded.Reference)
	assert.Equal(t, "Manila - Baguio", decoded.Route)
	assert.Equal(t, []string{"A1", "A2"}, []string(decoded.Seats))
	assert.Equal(t, 2, decoded.SeatCount)
	assert.Equal(t, "900.00 PHP", decoded.Amount)
	assert.Equal(t, "pay_777", decoded.PaymentRef)
	assert.Len(t, decoded.VerificationCode, 8)
}

func TestVerificationCodeStable(t *testing.T) {
	svc, booking := ticketFixture(t)

	first, err := svc.BuildQRPayload(booking)
	require.NoError(t, err)
	second, err := svc.BuildQRPayload(booking)
	require.NoError(t, err)

	var a, b models.TicketPayload
	require.NoError(t, json.Unmarshal([]byte(first), &a))
	require.NoError(t, json.Unmarshal([]byte(second), &b))
	assert.Equal(t, a.VerificationCode, b.VerificationCode, "reprints must match")

	other := *booking
	other.ID = uuid.New()
	third, err := svc.BuildQRPayload(&other)
	require.NoError(t, err)
	var c models.TicketPayload
	require.NoError(t, json.Unmarshal([]byte(third), &c))
	assert.NotEqual(t, a.VerificationCode, c.VerificationCode)
}

func TestGeneratePDF(t *testing.T) {
	t.Run("Renders For Confirmed Booking", func(t *testing.T) {
		svc, booking := ticketFixture(t)

		pdf, err := svc.GeneratePDF(booking)
		require.NoError(t, err)
		require.NotEmpty(t, pdf)
		assert.Equal(t, "%PDF", string(pdf[:4]))
	})

	t.Run("Refuses Unconfirmed Booking", func(t *testing.T) {
		svc, booking := ticketFixture(t)
		booking.Status = models.BookingStatusPending

		_, err := svc.GeneratePDF(booking)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "confirmed")
	})

	t.Run("Fails When Schedule Is Gone", func(t *testing.T) {
		svc, booking := ticketFixture(t)
		booking.ScheduleID = uuid.New()

		_, err := svc.GeneratePDF(booking)
		assert.Error(t, err)
	})
}
