package services

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/busmate/booking-backend/internal/database"
	"github.com/busmate/booking-backend/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubGateway is a scripted PaymentGateway. Tests set the attach outcome and
// the intent status the gateway reports; every call is counted so tests can
// assert the orchestrator made exactly the calls it should have.
type stubGateway struct {
	mu sync.Mutex

	createCalls int
	attachCalls int
	getCalls    int
	verifyCalls int

	lastCreateAmount int64
	lastReturnURL    string

	createErr    error
	attachResult *models.AttachResult
	attachErr    error
	intentStatus models.PaymentIntentStatus
	verifyResult *models.VerificationResult
	verifyErr    error
}

func (g *stubGateway) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*models.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createCalls++
	g.lastCreateAmount = amount
	if g.createErr != nil {
		return nil, g.createErr
	}
	return &models.PaymentIntent{
		ID:        "pi_test",
		ClientKey: "pi_test_client_abc",
		Amount:    amount,
		Currency:  currency,
		Status:    models.IntentAwaitingPaymentMethod,
	}, nil
}

func (g *stubGateway) AttachMethod(ctx context.Context, intentID, clientKey string, method models.MethodDetails, returnURL string) (*models.AttachResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.attachCalls++
	g.lastReturnURL = returnURL
	if g.attachErr != nil {
		return nil, g.attachErr
	}
	return g.attachResult, nil
}

func (g *stubGateway) GetIntent(ctx context.Context, intentID, clientKey string) (*models.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.getCalls++
	return &models.PaymentIntent{ID: intentID, Status: g.intentStatus}, nil
}

func (g *stubGateway) VerifyIntent(ctx context.Context, intentID string) (*models.VerificationResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifyCalls++
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	return g.verifyResult, nil
}

func (g *stubGateway) totalCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.createCalls + g.attachCalls + g.getCalls + g.verifyCalls
}

type orchestratorFixture struct {
	orchestrator *BookingOrchestratorService
	bookingRepo  *database.MemoryBookingRepository
	inventory    *database.MemorySeatInventory
	schedules    *database.MemoryScheduleRepository
	gateway      *stubGateway
	scheduleID   uuid.UUID
	userID       uuid.UUID
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testSchedule(id uuid.UUID, pricePerSeat float64) models.Schedule {
	departure := time.Now().Add(48 * time.Hour)
	return models.Schedule{
		ID:            id,
		Origin:        "Manila",
		Destination:   "Baguio",
		BusNumber:     "BUS-101",
		TravelDate:    departure,
		DepartureTime: departure,
		ArrivalTime:   departure.Add(6 * time.Hour),
		PricePerSeat:  pricePerSeat,
		Capacity:      40,
		Status:        models.ScheduleStatusScheduled,
		CreatedAt:     time.Now(),
	}
}

func newFixture(t *testing.T, cfg OrchestratorConfig) *orchestratorFixture {
	t.Helper()

	bookingRepo := database.NewMemoryBookingRepository()
	inventory := database.NewMemorySeatInventory()
	schedules := database.NewMemoryScheduleRepository()
	gateway := &stubGateway{}
	logger := quietLogger()

	scheduleID := uuid.New()
	schedules.SeedSchedule(testSchedule(scheduleID, 450.00))
	inventory.SeedSchedule(scheduleID, []string{"A1", "A2", "A3", "A4"})

	orchestrator := NewBookingOrchestratorService(
		bookingRepo, inventory, schedules, nil, gateway,
		NewTicketService(schedules, logger), cfg, logger,
	)

	return &orchestratorFixture{
		orchestrator: orchestrator,
		bookingRepo:  bookingRepo,
		inventory:    inventory,
		schedules:    schedules,
		gateway:      gateway,
		scheduleID:   scheduleID,
		userID:       uuid.New(),
	}
}

func defaultTestConfig() OrchestratorConfig {
	cfg := DefaultOrchestratorConfig()
	cfg.PollInterval = time.Millisecond
	cfg.PollMaxAttempts = 3
	cfg.ReturnURL = "http://localhost:5173/payment/return"
	cfg.PublicKey = "pk_test_abc"
	return cfg
}

func (f *orchestratorFixture) startHold(t *testing.T, seats ...string) *models.BookingStateResponse {
	t.Helper()
	state, err := f.orchestrator.StartHold(context.Background(), f.userID, "Juan Dela Cruz", "juan@example.com", &models.StartHoldRequest{
		ScheduleID:  f.scheduleID.String(),
		SeatNumbers: seats,
		Passengers:  len(seats),
	})
	require.NoError(t, err)
	return state
}

func (f *orchestratorFixture) seatStatus(t *testing.T, seatNumber string) models.SeatStatus {
	t.Helper()
	seats, err := f.inventory.GetSeatMap(f.scheduleID)
	require.NoError(t, err)
	for _, seat := range seats {
		if seat.SeatNumber == seatNumber {
			return seat.Status
		}
	}
	t.Fatalf("seat %s not found", seatNumber)
	return ""
}

// ============================================================================
// START HOLD
// ============================================================================

func TestStartHold(t *testing.T) {
	t.Run("Creates Pending Booking With Price Snapshot", func(t *testing.T) {
		f := newFixture(t, defaultTestConfig())

		state := f.startHold(t, "A1", "A2")

		assert.Equal(t, models.FlowPaymentSelecting, state.State)
		assert.Equal(t, models.BookingStatusPending, state.Status)
		assert.Equal(t, 900.00, state.Amount)
		assert.Equal(t, "PHP", state.Currency)
		assert.Greater(t, state.TTLSeconds, 0)
		assert.Equal(t, models.SeatStatusHeld, f.seatStatus(t, "A1"))
	})

	t.Run("Conflict Names The Taken Seats", func(t *testing.T) {
		f := newFixture(t, defaultTestConfig())
		f.startHold(t, "A1", "A2")

		_, err := f.orchestrator.StartHold(context.Background(), uuid.New(), "Maria Santos", "maria@example.com", &models.StartHoldRequest{
			ScheduleID:  f.scheduleID.String(),
			SeatNumbers: []string{"A2", "A3"},
			Passengers:  2,
		})
		require.Error(t, err)

		conflict, ok := err.(*models.HoldConflictError)
		require.True(t, ok, "expected HoldConflictError, got %T", err)
		assert.Equal(t, []string{"A2"}, conflict.ConflictingSeats)
		assert.Equal(t, models.SeatStatusAvailable, f.seatStatus(t, "A3"), "losing request must hold nothing")
	})

	t.Run("Seat Count Must Match Passenger Count", func(t *testing.T) {
		f := newFixture(t, defaultTestConfig())

		_, err := f.orchestrator.StartHold(context.Background(), f.userID, "Juan Dela Cruz", "", &models.StartHoldRequest{
			ScheduleID:  f.scheduleID.String(),
			SeatNumbers: []string{"A1"},
			Passengers:  2,
		})
		var mismatch *models.SeatCountMismatchError
		assert.ErrorAs(t, err, &mismatch)
	})

	t.Run("Rejects Duplicate Seats", func(t *testing.T) {
		f := newFixture(t, defaultTestConfig())

		_, err := f.orchestrator.StartHold(context.Background(), f.userID, "Juan Dela Cruz", "", &models.StartHoldRequest{
			ScheduleID:  f.scheduleID.String(),
			SeatNumbers: []string{"A1", "A1"},
			Passengers:  2,
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate seat")
	})

	t.Run("Idempotency Key Returns The Earlier Booking", func(t *testing.T) {
		f := newFixture(t, defaultTestConfig())
		key := "order-42"
		req := &models.StartHoldRequest{
			ScheduleID:     f.scheduleID.String(),
			SeatNumbers:    []string{"A1"},
			Passengers:     1,
			IdempotencyKey: &key,
		}

		first, err := f.orchestrator.StartHold(context.Background(), f.userID, "Juan Dela Cruz", "", req)
		require.NoError(t, err)
		second, err := f.orchestrator.StartHold(context.Background(), f.userID, "Juan Dela Cruz", "", req)
		require.NoError(t, err)

		assert.Equal(t, first.BookingID, second.BookingID)
	})

	t.Run("Departed Schedule Is Closed", func(t *testing.T) {
		f := newFixture(t, defaultTestConfig())
		departed := testSchedule(uuid.New(), 450.00)
		departed.DepartureTime = time.Now().Add(-time.Hour)
		f.schedules.SeedSchedule(departed)
		f.inventory.SeedSchedule(departed.ID, []string{"A1"})

		_, err := f.orchestrator.StartHold(context.Background(), f.userID, "Juan Dela Cruz", "", &models.StartHoldRequest{
			ScheduleID:  departed.ID.String(),
			SeatNumbers: []string{"A1"},
			Passengers:  1,
		})
		assert.ErrorIs(t, err, models.ErrScheduleClosed)
	})
}

func TestAmountSnapshotSurvivesPriceChange(t *testing.T) {
	f := newFixture(t, defaultTestConfig())
	state := f.startHold(t, "A1", "A2")
	require.Equal(t, 900.00, state.Amount)

	// Fare goes up after the hold; the in-flight booking must not move
	f.schedules.SeedSchedule(testSchedule(f.scheduleID, 999.00))

	f.gateway.attachResult = &models.AttachResult{Status: models.IntentSucceeded}
	_, err := f.orchestrator.ChooseMethod(context.Background(), f.userID, state.BookingID, &models.ChooseMethodRequest{Method: models.MethodGCash})
	require.NoError(t, err)

	assert.Equal(t, int64(90000), f.gateway.lastCreateAmount, "intent must carry the snapshot amount in centavos")
}

// ============================================================================
// CHOOSE METHOD
// ============================================================================

func TestChooseMethodImmediateSuccess(t *testing.T) {
	f := newFixture(t, defaultTestConfig())
	state := f.startHold(t, "A1", "A2")

	f.gateway.attachResult = &models.AttachResult{Status: models.IntentSucceeded}
	final, err := f.orchestrator.ChooseMethod(context.Background(), f.userID, state.BookingID, &models.ChooseMethodRequest{Method: models.MethodGCash})
	require.NoError(t, err)

	assert.Equal(t, models.FlowConfirmed, final.State)
	assert.NotEmpty(t, final.Reference)
	require.NotNil(t, final.QRPayload)
	assert.NotEmpty(t, *final.QRPayload)
	assert.Equal(t, models.SeatStatusSold, f.seatStatus(t, "A1"))
	assert.Equal(t, models.SeatStatusSold, f.seatStatus(t, "A2"))

	stored, err := f.bookingRepo.GetBookingByID(state.BookingID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusConfirmed, stored.Status)
	assert.NotNil(t, stored.ConfirmedAt)
}

func TestChooseMethodRejectedFailsBooking(t *testing.T) {
	f := newFixture(t, defaultTestConfig())
	state := f.startHold(t, "A1")

	f.gateway.attachErr = &models.MethodRejectedError{Reason: "card_declined"}
	got, err := f.orchestrator.ChooseMethod(context.Background(), f.userID, state.BookingID, &models.ChooseMethodRequest{Method: models.MethodGCash})

	var rejected *models.MethodRejectedError
	require.ErrorAs(t, err, &rejected)
	require.NotNil(t, got)
	assert.Equal(t, models.FlowFailed, got.State)

	stored, err := f.bookingRepo.GetBookingByID(state.BookingID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusFailed, stored.Status)
	require.NotNil(t, stored.FailureReason)
	assert.Equal(t, "method_rejected: card_declined", *stored.FailureReason)
	assert.Equal(t, models.SeatStatusAvailable, f.seatStatus(t, "A1"), "failed attempt never pins the seat map")
}

func TestChooseMethodGatewayOutageKeepsHoldAlive(t *testing.T) {
	f := newFixture(t, defaultTestConfig())
	state := f.startHold(t, "A1")

	f.gateway.attachErr = &models.GatewayUnavailableError{Err: context.DeadlineExceeded}
	_, err := f.orchestrator.ChooseMethod(context.Background(), f.userID, state.BookingID, &models.ChooseMethodRequest{Method: models.MethodGCash})

	var unavailable *models.GatewayUnavailableError
	require.ErrorAs(t, err, &unavailable)

	stored, err := f.bookingRepo.GetBookingByID(state.BookingID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusAwaitingPayment, stored.Status, "outage is retryable")
	assert.Equal(t, models.SeatStatusHeld, f.seatStatus(t, "A1"))

	// The retry reuses the intent created on the first attempt
	f.gateway.attachErr = nil
	f.gateway.attachResult = &models.AttachResult{Status: models.IntentSucceeded}
	final, err := f.orchestrator.ChooseMethod(context.Background(), f.userID, state.BookingID, &models.ChooseMethodRequest{Method: models.MethodGCash})
	require.NoError(t, err)
	assert.Equal(t, models.FlowConfirmed, final.State)
	assert.Equal(t, 1, f.gateway.createCalls)
}

func TestChooseMethodBlockedDuringRedirectWait(t *testing.T) {
	f := newFixture(t, defaultTestConfig())
	state := redirectedBooking(t, f, "A1")
	attachesBefore := f.gateway.attachCalls

	// A stray retry while the buyer is authorizing off-site must not touch the
	// gateway or the booking
	f.gateway.attachErr = &models.MethodRejectedError{Reason: "intent awaiting next action"}
	got, err := f.orchestrator.ChooseMethod(context.Background(), f.userID, state.BookingID, &models.ChooseMethodRequest{Method: models.MethodGCash})

	require.ErrorIs(t, err, models.ErrPaymentInProgress)
	require.NotNil(t, got)
	assert.Equal(t, models.FlowRedirectWait, got.State)
	assert.Equal(t, attachesBefore, f.gateway.attachCalls)

	stored, err := f.bookingRepo.GetBookingByID(state.BookingID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusAwaitingPayment, stored.Status)
	assert.Equal(t, models.SeatStatusHeld, f.seatStatus(t, "A1"))

	// Verification still settles the parked booking normally
	f.gateway.verifyResult = &models.VerificationResult{
		IntentID:  *stored.PaymentIntentID,
		Status:    models.IntentSucceeded,
		Success:   true,
		PaymentID: "pay_1",
	}
	final, err := f.orchestrator.ResumeAfterRedirect(context.Background(), *stored.PaymentIntentID)
	require.NoError(t, err)
	assert.Equal(t, models.FlowConfirmed, final.State)
}

func TestChooseMethodInvalidMethod(t *testing.T) {
	f := newFixture(t, defaultTestConfig())
	state := f.startHold(t, "A1")

	_, err := f.orchestrator.ChooseMethod(context.Background(), f.userID, state.BookingID, &models.ChooseMethodRequest{Method: "bitcoin"})

	var rejected *models.MethodRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, 0, f.gateway.totalCalls(), "invalid method is rejected before the gateway")
}

func TestChooseMethodExpiredHold(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.HoldTTL = 10 * time.Millisecond
	f := newFixture(t, cfg)
	state := f.startHold(t, "A1")

	time.Sleep(20 * time.Millisecond)

	got, err := f.orchestrator.ChooseMethod(context.Background(), f.userID, state.BookingID, &models.ChooseMethodRequest{Method: models.MethodGCash})
	assert.ErrorIs(t, err, models.ErrHoldExpired)
	require.NotNil(t, got)
	assert.Equal(t, models.FlowExpired, got.State)
	assert.Equal(t, 0, f.gateway.totalCalls())

	stored, err := f.bookingRepo.GetBookingByID(state.BookingID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusExpired, stored.Status)
	assert.Equal(t, models.SeatStatusAvailable, f.seatStatus(t, "A1"))
}

func TestProcessingPolledToOutcome(t *testing.T) {
	t.Run("Settles When Gateway Succeeds", func(t *testing.T) {
		f := newFixture(t, defaultTestConfig())
		state := f.startHold(t, "A1")

		f.gateway.attachResult = &models.AttachResult{Status: models.IntentProcessing}
		f.gateway.intentStatus = models.IntentSucceeded

		final, err := f.orchestrator.ChooseMethod(context.Background(), f.userID, state.BookingID, &models.ChooseMethodRequest{Method: models.MethodGrabPay})
		require.NoError(t, err)
		assert.Equal(t, models.FlowConfirmed, final.State)
		assert.Equal(t, models.SeatStatusSold, f.seatStatus(t, "A1"))
	})

	t.Run("Bounded Polling Times Out And Frees Seats", func(t *testing.T) {
		f := newFixture(t, defaultTestConfig())
		state := f.startHold(t, "A1")

		f.gateway.attachResult = &models.AttachResult{Status: models.IntentProcessing}
		f.gateway.intentStatus = models.IntentProcessing // never settles

		final, err := f.orchestrator.ChooseMethod(context.Background(), f.userID, state.BookingID, &models.ChooseMethodRequest{Method: models.MethodGrabPay})
		require.NoError(t, err)
		assert.Equal(t, models.FlowFailed, final.State)
		require.NotNil(t, final.FailureReason)
		assert.Equal(t, "payment_timeout", *final.FailureReason)
		assert.Equal(t, 3, f.gateway.getCalls, "poll budget is bounded")
		assert.Equal(t, models.SeatStatusAvailable, f.seatStatus(t, "A1"), "timeout releases the hold")
	})
}

// ============================================================================
// REDIRECT / RESUME / WEBHOOK
// ============================================================================

func redirectedBooking(t *testing.T, f *orchestratorFixture, seats ...string) *models.BookingStateResponse {
	t.Helper()
	state := f.startHold(t, seats...)
	f.gateway.attachResult = &models.AttachResult{
		Status:      models.IntentAwaitingNextAction,
		RedirectURL: "https://gateway.example/authorize/pi_test",
	}
	state, err := f.orchestrator.ChooseMethod(context.Background(), f.userID, state.BookingID, &models.ChooseMethodRequest{Method: models.MethodGCash})
	require.NoError(t, err)
	require.Equal(t, models.FlowRedirectWait, state.State)
	require.NotNil(t, state.RedirectURL)
	return state
}

func TestResumeAfterRedirect(t *testing.T) {
	t.Run("Verified Success Confirms Once", func(t *testing.T) {
		f := newFixture(t, defaultTestConfig())
		state := redirectedBooking(t, f, "A1", "A2")

		f.gateway.verifyResult = &models.VerificationResult{
			IntentID:  "pi_test",
			Status:    models.IntentSucceeded,
			Success:   true,
			BookingID: state.BookingID.String(),
			PaymentID: "pay_789",
		}

		final, err := f.orchestrator.ResumeAfterRedirect(context.Background(), "pi_test")
		require.NoError(t, err)
		assert.Equal(t, models.FlowConfirmed, final.State)
		assert.Equal(t, models.SeatStatusSold, f.seatStatus(t, "A1"))

		stored, err := f.bookingRepo.GetBookingByID(state.BookingID)
		require.NoError(t, err)
		require.NotNil(t, stored.PaymentRef)
		assert.Equal(t, "pay_789", *stored.PaymentRef)

		// Replaying the redirect return is a read-only no-op
		verifiesBefore := f.gateway.verifyCalls
		again, err := f.orchestrator.ResumeAfterRedirect(context.Background(), "pi_test")
		require.NoError(t, err)
		assert.Equal(t, models.FlowConfirmed, again.State)
		assert.Equal(t, verifiesBefore, f.gateway.verifyCalls, "settled booking skips the gateway")
	})

	t.Run("Verified Failure Releases Seats", func(t *testing.T) {
		f := newFixture(t, defaultTestConfig())
		state := redirectedBooking(t, f, "A1")

		f.gateway.verifyResult = &models.VerificationResult{
			IntentID: "pi_test",
			Status:   models.IntentFailed,
		}

		final, err := f.orchestrator.ResumeAfterRedirect(context.Background(), "pi_test")
		require.NoError(t, err)
		assert.Equal(t, models.FlowFailed, final.State)
		assert.Equal(t, models.SeatStatusAvailable, f.seatStatus(t, "A1"))

		stored, err := f.bookingRepo.GetBookingByID(state.BookingID)
		require.NoError(t, err)
		require.NotNil(t, stored.FailureReason)
		assert.Equal(t, "payment_failed", *stored.FailureReason)
	})

	t.Run("Ambiguous Outcome Rechecks Then Reports Pending", func(t *testing.T) {
		f := newFixture(t, defaultTestConfig())
		redirectedBooking(t, f, "A1")

		f.gateway.verifyResult = &models.VerificationResult{
			IntentID:  "pi_test",
			Status:    models.IntentProcessing,
			Ambiguous: true,
		}

		final, err := f.orchestrator.ResumeAfterRedirect(context.Background(), "pi_test")

		var ambiguous *models.VerificationAmbiguousError
		require.ErrorAs(t, err, &ambiguous)
		require.NotNil(t, final)

		// Neither success nor failure: the booking stays parked, seats stay held
		assert.Equal(t, models.BookingStatusAwaitingPayment, final.Status)
		assert.Equal(t, models.SeatStatusHeld, f.seatStatus(t, "A1"))
		assert.Equal(t, 4, f.gateway.verifyCalls, "one verify plus the bounded rechecks")
	})

	t.Run("Unknown Intent", func(t *testing.T) {
		f := newFixture(t, defaultTestConfig())
		_, err := f.orchestrator.ResumeAfterRedirect(context.Background(), "pi_unknown")
		assert.ErrorIs(t, err, models.ErrBookingNotFound)
	})
}

func TestRefundRequiredWhenHoldExpiresMidPayment(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.HoldTTL = 30 * time.Millisecond
	f := newFixture(t, cfg)
	state := redirectedBooking(t, f, "A1")

	// Hold lapses while the buyer is on the gateway's page
	time.Sleep(50 * time.Millisecond)

	f.gateway.verifyResult = &models.VerificationResult{
		IntentID:  "pi_test",
		Status:    models.IntentSucceeded,
		Success:   true,
		PaymentID: "pay_late",
	}

	final, err := f.orchestrator.ResumeAfterRedirect(context.Background(), "pi_test")
	require.NoError(t, err)
	assert.Equal(t, models.FlowFailed, final.State)
	require.NotNil(t, final.FailureReason)
	assert.Contains(t, *final.FailureReason, "refund_required")

	stored, err := f.bookingRepo.GetBookingByID(state.BookingID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusFailed, stored.Status)
	assert.Equal(t, models.SeatStatusAvailable, f.seatStatus(t, "A1"), "expired seats are never sold")
}

func TestWebhookConvergesWithResume(t *testing.T) {
	f := newFixture(t, defaultTestConfig())
	state := redirectedBooking(t, f, "A1")

	f.gateway.verifyResult = &models.VerificationResult{
		IntentID:  "pi_test",
		Status:    models.IntentSucceeded,
		Success:   true,
		PaymentID: "pay_hook",
	}

	require.NoError(t, f.orchestrator.HandleWebhookEvent(context.Background(), "pi_test"))

	stored, err := f.bookingRepo.GetBookingByID(state.BookingID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusConfirmed, stored.Status)

	// Late duplicate webhook changes nothing
	require.NoError(t, f.orchestrator.HandleWebhookEvent(context.Background(), "pi_test"))
}

// ============================================================================
// STATUS / CANCEL
// ============================================================================

func TestGetStatus(t *testing.T) {
	t.Run("Applies Lazy Expiry", func(t *testing.T) {
		cfg := defaultTestConfig()
		cfg.HoldTTL = 10 * time.Millisecond
		f := newFixture(t, cfg)
		state := f.startHold(t, "A1")

		time.Sleep(20 * time.Millisecond)

		got, err := f.orchestrator.GetStatus(context.Background(), f.userID, state.BookingID)
		require.NoError(t, err)
		assert.Equal(t, models.FlowExpired, got.State)
		assert.Equal(t, models.SeatStatusAvailable, f.seatStatus(t, "A1"))
	})

	t.Run("Rejects Other Users", func(t *testing.T) {
		f := newFixture(t, defaultTestConfig())
		state := f.startHold(t, "A1")

		_, err := f.orchestrator.GetStatus(context.Background(), uuid.New(), state.BookingID)
		assert.ErrorIs(t, err, models.ErrNotBookingOwner)
	})
}

func TestCancel(t *testing.T) {
	t.Run("Before Payment Touches No Gateway", func(t *testing.T) {
		f := newFixture(t, defaultTestConfig())
		state := f.startHold(t, "A1", "A2")

		final, err := f.orchestrator.Cancel(context.Background(), f.userID, state.BookingID)
		require.NoError(t, err)
		assert.Equal(t, models.FlowFailed, final.State)
		require.NotNil(t, final.FailureReason)
		assert.Equal(t, "cancelled", *final.FailureReason)
		assert.Equal(t, 0, f.gateway.totalCalls(), "local cancel never calls the gateway")
		assert.Equal(t, models.SeatStatusAvailable, f.seatStatus(t, "A1"))
		assert.Equal(t, models.SeatStatusAvailable, f.seatStatus(t, "A2"))
	})

	t.Run("Blocked During Redirect Wait", func(t *testing.T) {
		f := newFixture(t, defaultTestConfig())
		state := redirectedBooking(t, f, "A1")

		_, err := f.orchestrator.Cancel(context.Background(), f.userID, state.BookingID)
		assert.ErrorIs(t, err, models.ErrCancelNotAllowed)
	})

	t.Run("Blocked Once Terminal", func(t *testing.T) {
		f := newFixture(t, defaultTestConfig())
		state := f.startHold(t, "A1")

		f.gateway.attachResult = &models.AttachResult{Status: models.IntentSucceeded}
		_, err := f.orchestrator.ChooseMethod(context.Background(), f.userID, state.BookingID, &models.ChooseMethodRequest{Method: models.MethodGCash})
		require.NoError(t, err)

		_, err = f.orchestrator.Cancel(context.Background(), f.userID, state.BookingID)
		assert.ErrorIs(t, err, models.ErrCancelNotAllowed)
	})
}
