package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/busmate/booking-backend/internal/database"
	"github.com/busmate/booking-backend/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// OrchestratorConfig holds configuration for the booking orchestrator
type OrchestratorConfig struct {
	HoldTTL          time.Duration // How long seat holds are valid (default 10 min)
	PollMaxAttempts  int           // How many times to poll a processing intent
	PollInterval     time.Duration // Delay between polls
	MaxSeatsPerOrder int           // Upper bound on seats per booking
	DefaultCurrency  string        // Default currency (default PHP)
	ReturnURL        string        // Where the gateway sends the user back after a redirect
	PublicKey        string        // Gateway public key handed to the client
}

// DefaultOrchestratorConfig returns default configuration
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		HoldTTL:          10 * time.Minute,
		PollMaxAttempts:  10,
		PollInterval:     3 * time.Second,
		MaxSeatsPerOrder: 10,
		DefaultCurrency:  "PHP",
	}
}

// BookingOrchestratorService drives the hold -> pay -> confirm flow. It is
// the only writer of booking status transitions; handlers and background
// jobs always go through it.
type BookingOrchestratorService struct {
	bookingRepo   database.BookingRepository
	seatInventory database.SeatInventory
	scheduleRepo  database.ScheduleRepository
	auditRepo     *database.PaymentAuditRepository
	gateway       PaymentGateway
	ticketService *TicketService
	config        OrchestratorConfig
	logger        *logrus.Logger
}

// NewBookingOrchestratorService creates a new orchestrator service
func NewBookingOrchestratorService(
	bookingRepo database.BookingRepository,
	seatInventory database.SeatInventory,
	scheduleRepo database.ScheduleRepository,
	auditRepo *database.PaymentAuditRepository,
	gateway PaymentGateway,
	ticketService *TicketService,
	config OrchestratorConfig,
	logger *logrus.Logger,
) *BookingOrchestratorService {
	return &BookingOrchestratorService{
		bookingRepo:   bookingRepo,
		seatInventory: seatInventory,
		scheduleRepo:  scheduleRepo,
		auditRepo:     auditRepo,
		gateway:       gateway,
		ticketService: ticketService,
		config:        config,
		logger:        logger,
	}
}

// ============================================================================
// START HOLD (Phase 1)
// ============================================================================

// StartHold places an all-or-nothing seat hold and creates a pending booking.
// The amount is computed here, once, from the schedule's current price.
func (s *BookingOrchestratorService) StartHold(
	ctx context.Context,
	userID uuid.UUID,
	passengerName, passengerEmail string,
	req *models.StartHoldRequest,
) (*models.BookingStateResponse, error) {
	// 1. Idempotency: same user, same key returns the earlier booking
	if req.IdempotencyKey != nil && *req.IdempotencyKey != "" {
		existing, err := s.bookingRepo.GetBookingByIdempotencyKey(userID, *req.IdempotencyKey)
		if err == nil {
			return s.buildState(existing), nil
		}
		if !errors.Is(err, models.ErrBookingNotFound) {
			return nil, fmt.Errorf("failed to check idempotency: %w", err)
		}
	}

	// 2. Validate the selection
	if len(req.SeatNumbers) != req.Passengers {
		return nil, &models.SeatCountMismatchError{Passengers: req.Passengers, Seats: len(req.SeatNumbers)}
	}
	if len(req.SeatNumbers) > s.config.MaxSeatsPerOrder {
		return nil, fmt.Errorf("at most %d seats per booking", s.config.MaxSeatsPerOrder)
	}
	seen := make(map[string]bool, len(req.SeatNumbers))
	for _, num := range req.SeatNumbers {
		if seen[num] {
			return nil, fmt.Errorf("duplicate seat %s in selection", num)
		}
		seen[num] = true
	}

	scheduleID, err := uuid.Parse(req.ScheduleID)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule id: %w", err)
	}
	schedule, err := s.scheduleRepo.GetScheduleByID(scheduleID)
	if err != nil {
		return nil, err
	}
	if !schedule.IsBookable() {
		return nil, models.ErrScheduleClosed
	}

	// 3. Hold the seats
	hold, err := s.seatInventory.PlaceHold(scheduleID, userID, req.SeatNumbers, s.config.HoldTTL)
	if err != nil {
		return nil, err
	}

	// 4. Snapshot the price and create the booking
	booking := &models.Booking{
		ID:             uuid.New(),
		UserID:         userID,
		ScheduleID:     scheduleID,
		HoldID:         hold.ID,
		SeatNumbers:    models.StringArray(req.SeatNumbers),
		PassengerName:  passengerName,
		PassengerEmail: passengerEmail,
		Amount:         schedule.PricePerSeat * float64(len(req.SeatNumbers)),
		Currency:       s.config.DefaultCurrency,
		Status:         models.BookingStatusPending,
		HoldExpiresAt:  hold.ExpiresAt,
		IdempotencyKey: req.IdempotencyKey,
	}
	if err := s.bookingRepo.CreateBooking(booking); err != nil {
		s.seatInventory.ReleaseHold(hold.ID)
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":  booking.ID,
		"schedule_id": scheduleID,
		"seats":       len(req.SeatNumbers),
		"amount":      booking.Amount,
	}).Info("Seat hold placed, booking created")

	return s.buildState(booking), nil
}

// ============================================================================
// CHOOSE PAYMENT METHOD (Phase 2)
// ============================================================================

// ChooseMethod submits the buyer's payment method. The gateway intent is
// created lazily on the first attempt. A rejected method fails the booking
// and frees the seats; the buyer restarts from seat selection. A transport
// level gateway outage keeps the hold alive so the same attempt can be
// retried while the TTL lasts.
func (s *BookingOrchestratorService) ChooseMethod(
	ctx context.Context,
	userID, bookingID uuid.UUID,
	req *models.ChooseMethodRequest,
) (*models.BookingStateResponse, error) {
	booking, err := s.ownedBooking(userID, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status.IsTerminal() {
		return s.buildState(booking), nil
	}
	// Once the buyer is off at the gateway's external step, only verification
	// or hold expiry may settle the booking
	if booking.InRedirectWait() {
		return s.buildState(booking), models.ErrPaymentInProgress
	}
	if expired, state := s.expireIfHoldLapsed(booking); expired {
		return state, models.ErrHoldExpired
	}
	if !req.Method.Valid() {
		return nil, &models.MethodRejectedError{Reason: fmt.Sprintf("unsupported payment method %q", req.Method)}
	}

	// Lazily open the gateway intent
	if booking.PaymentIntentID == nil {
		if err := s.openIntent(ctx, booking); err != nil {
			return nil, err
		}
	}

	returnURL := fmt.Sprintf("%s?booking_id=%s", s.config.ReturnURL, booking.ID)
	details := models.MethodDetails{Type: req.Method, Card: req.Card, Billing: req.Billing}
	result, err := s.gateway.AttachMethod(ctx, *booking.PaymentIntentID, s.clientKey(booking), details, returnURL)
	if err != nil {
		var rejected *models.MethodRejectedError
		if errors.As(err, &rejected) {
			state, fErr := s.fail(booking, "method_rejected: "+rejected.Reason, models.AuditPaymentFailed)
			if fErr != nil {
				return nil, fErr
			}
			return state, err
		}
		// Transport errors keep the hold alive for a retry
		return nil, err
	}

	s.audit(booking.ID, models.AuditMethodAttached, booking.PaymentIntentID, strPtr(string(result.Status)), string(req.Method))

	switch result.Status {
	case models.IntentAwaitingNextAction:
		if err := s.bookingRepo.SetRedirectURL(booking.ID, result.RedirectURL); err != nil {
			return nil, err
		}
		s.audit(booking.ID, models.AuditRedirectIssued, booking.PaymentIntentID, nil, "")
		booking.RedirectURL = &result.RedirectURL
		booking.PaymentStatus = statusPtr(result.Status)
		return s.buildState(booking), nil

	case models.IntentSucceeded:
		return s.confirm(booking)

	case models.IntentProcessing:
		if err := s.bookingRepo.UpdatePaymentStatus(booking.ID, models.IntentProcessing); err != nil {
			s.logger.WithError(err).Warn("Failed to record processing payment status")
		}
		return s.pollUntilSettled(ctx, booking)

	default:
		// Attach came back without taking the method
		reason := fmt.Sprintf("gateway left intent in %s", result.Status)
		state, fErr := s.fail(booking, "method_rejected: "+reason, models.AuditPaymentFailed)
		if fErr != nil {
			return nil, fErr
		}
		return state, &models.MethodRejectedError{Reason: reason}
	}
}

// openIntent creates the gateway payment intent and records it
func (s *BookingOrchestratorService) openIntent(ctx context.Context, booking *models.Booking) error {
	amount := toCentavos(booking.Amount)
	metadata := map[string]string{
		"booking_id": booking.ID.String(),
		"user_id":    booking.UserID.String(),
	}

	intent, err := s.gateway.CreateIntent(ctx, amount, booking.Currency, metadata)
	if err != nil {
		// The hold stays alive; the buyer can retry while the TTL lasts
		s.logger.WithError(err).WithField("booking_id", booking.ID).Warn("Failed to create payment intent")
		return err
	}

	if err := s.bookingRepo.AttachPaymentIntent(booking.ID, intent.ID, intent.ClientKey, intent.Status); err != nil {
		return err
	}
	s.audit(booking.ID, models.AuditIntentCreated, &intent.ID, strPtr(string(intent.Status)), "")

	booking.PaymentIntentID = &intent.ID
	booking.ClientKey = &intent.ClientKey
	booking.PaymentStatus = &intent.Status
	booking.Status = models.BookingStatusAwaitingPayment
	return nil
}

// pollUntilSettled polls a processing intent a bounded number of times.
// Exhausting the budget fails the booking and frees the seats.
func (s *BookingOrchestratorService) pollUntilSettled(ctx context.Context, booking *models.Booking) (*models.BookingStateResponse, error) {
	for attempt := 1; attempt <= s.config.PollMaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.config.PollInterval):
		}

		intent, err := s.gateway.GetIntent(ctx, *booking.PaymentIntentID, s.clientKey(booking))
		if err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"booking_id": booking.ID,
				"attempt":    attempt,
			}).Warn("Payment status poll failed")
			continue
		}

		switch intent.Status {
		case models.IntentSucceeded:
			return s.confirm(booking)
		case models.IntentFailed:
			return s.fail(booking, "payment_failed", models.AuditPaymentFailed)
		}
	}

	return s.fail(booking, "payment_timeout", models.AuditPaymentTimeout)
}

// ============================================================================
// STATUS / CANCEL
// ============================================================================

// GetStatus returns the booking's current flow state, applying lazy hold
// expiry: a stale pending booking flips to expired right here.
func (s *BookingOrchestratorService) GetStatus(ctx context.Context, userID, bookingID uuid.UUID) (*models.BookingStateResponse, error) {
	booking, err := s.ownedBooking(userID, bookingID)
	if err != nil {
		return nil, err
	}
	if expired, state := s.expireIfHoldLapsed(booking); expired {
		return state, nil
	}
	return s.buildState(booking), nil
}

// ListBookings returns a page of the user's bookings as flow states
func (s *BookingOrchestratorService) ListBookings(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.BookingStateResponse, error) {
	bookings, err := s.bookingRepo.GetBookingsByUser(userID, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]models.BookingStateResponse, 0, len(bookings))
	for i := range bookings {
		out = append(out, *s.buildState(&bookings[i]))
	}
	return out, nil
}

// Cancel abandons a booking before the external redirect step. It touches
// only local state: the gateway is never called, any open intent simply
// ages out on the gateway's side.
func (s *BookingOrchestratorService) Cancel(ctx context.Context, userID, bookingID uuid.UUID) (*models.BookingStateResponse, error) {
	booking, err := s.ownedBooking(userID, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status.IsTerminal() || booking.InRedirectWait() {
		return nil, models.ErrCancelNotAllowed
	}

	if err := s.bookingRepo.MarkFailed(booking.ID, "cancelled"); err != nil {
		return nil, err
	}
	if err := s.seatInventory.ReleaseHold(booking.HoldID); err != nil {
		s.logger.WithError(err).WithField("booking_id", booking.ID).Error("Failed to release hold on cancel")
	}

	s.logger.WithField("booking_id", booking.ID).Info("Booking cancelled")

	booking.Status = models.BookingStatusFailed
	booking.FailureReason = strPtr("cancelled")
	return s.buildState(booking), nil
}

// ============================================================================
// RESUME AFTER REDIRECT (Phase 3)
// ============================================================================

// ResumeAfterRedirect is the single source of truth once the user comes back
// from the gateway's external step. It is idempotent: replaying it against a
// settled booking returns the settled state and performs no writes.
func (s *BookingOrchestratorService) ResumeAfterRedirect(ctx context.Context, intentID string) (*models.BookingStateResponse, error) {
	booking, err := s.bookingRepo.GetBookingByIntentID(intentID)
	if err != nil {
		return nil, err
	}
	if booking.Status.IsTerminal() {
		return s.buildState(booking), nil
	}

	result, err := s.gateway.VerifyIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}

	if result.Ambiguous {
		// Bounded re-checks before we give up and tell the user "pending"
		for attempt := 1; attempt <= s.config.PollMaxAttempts && result.Ambiguous; attempt++ {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.config.PollInterval):
			}
			result, err = s.gateway.VerifyIntent(ctx, intentID)
			if err != nil {
				return nil, err
			}
		}
	}

	if err := s.bookingRepo.UpdatePaymentStatus(booking.ID, result.Status); err != nil {
		s.logger.WithError(err).Warn("Failed to record verified payment status")
	}
	booking.PaymentStatus = statusPtr(result.Status)

	switch {
	case result.Success:
		if result.PaymentID != "" {
			booking.PaymentRef = &result.PaymentID
		}
		return s.confirm(booking)
	case result.Status == models.IntentFailed:
		return s.fail(booking, "payment_failed", models.AuditPaymentFailed)
	default:
		// Still unsettled at the gateway: report pending, never guess
		state := s.buildState(booking)
		if result.Ambiguous {
			return state, &models.VerificationAmbiguousError{IntentID: intentID}
		}
		return state, nil
	}
}

// HandleWebhookEvent resolves a booking from an asynchronous gateway event.
// Webhooks and redirect resumes converge on the same idempotent path.
func (s *BookingOrchestratorService) HandleWebhookEvent(ctx context.Context, intentID string) error {
	booking, err := s.bookingRepo.GetBookingByIntentID(intentID)
	if err != nil {
		return err
	}
	s.audit(booking.ID, models.AuditWebhookReceived, &intentID, nil, "")

	_, err = s.ResumeAfterRedirect(ctx, intentID)
	var ambiguous *models.VerificationAmbiguousError
	if errors.As(err, &ambiguous) {
		// Event arrived before the gateway settled; a later event or the
		// user's own return will finish the job
		return nil
	}
	return err
}

// ============================================================================
// TERMINAL TRANSITIONS
// ============================================================================

// confirm finalizes a paid booking. If the hold lapsed while payment was in
// flight, money was taken for seats we no longer have: the booking is failed
// with a refund marker instead of selling seats we cannot honor.
func (s *BookingOrchestratorService) confirm(booking *models.Booking) (*models.BookingStateResponse, error) {
	if err := s.seatInventory.CommitHold(booking.HoldID); err != nil {
		if errors.Is(err, models.ErrHoldExpired) {
			s.audit(booking.ID, models.AuditConfirmationFailed, booking.PaymentIntentID, nil, "hold expired before confirmation")
			s.audit(booking.ID, models.AuditRefundRequired, booking.PaymentIntentID, nil, "payment succeeded after hold expiry")
			s.logger.WithField("booking_id", booking.ID).Error("Payment succeeded but hold expired, refund required")

			if mErr := s.bookingRepo.MarkFailed(booking.ID, "refund_required: hold expired before confirmation"); mErr != nil {
				return nil, mErr
			}
			booking.Status = models.BookingStatusFailed
			booking.FailureReason = strPtr("refund_required: hold expired before confirmation")
			return s.buildState(booking), nil
		}
		return nil, err
	}

	paymentRef := ""
	if booking.PaymentRef != nil {
		paymentRef = *booking.PaymentRef
	}

	qrPayload, err := s.ticketService.BuildQRPayload(booking)
	if err != nil {
		s.logger.WithError(err).WithField("booking_id", booking.ID).Error("Failed to build ticket payload")
		qrPayload = ""
	}

	if err := s.bookingRepo.ConfirmBooking(booking.ID, paymentRef, qrPayload); err != nil {
		return nil, err
	}
	s.audit(booking.ID, models.AuditPaymentSucceeded, booking.PaymentIntentID, strPtr(string(models.IntentSucceeded)), "")

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"reference":  booking.Reference(),
	}).Info("Booking confirmed")

	now := time.Now()
	succeeded := models.IntentSucceeded
	booking.Status = models.BookingStatusConfirmed
	booking.PaymentStatus = &succeeded
	booking.QRPayload = &qrPayload
	booking.RedirectURL = nil
	booking.ConfirmedAt = &now
	return s.buildState(booking), nil
}

// fail ends a booking and frees its seats
func (s *BookingOrchestratorService) fail(booking *models.Booking, reason string, event models.PaymentAuditEvent) (*models.BookingStateResponse, error) {
	if err := s.bookingRepo.MarkFailed(booking.ID, reason); err != nil {
		return nil, err
	}
	if err := s.seatInventory.ReleaseHold(booking.HoldID); err != nil {
		s.logger.WithError(err).WithField("booking_id", booking.ID).Error("Failed to release hold")
	}
	s.audit(booking.ID, event, booking.PaymentIntentID, nil, reason)

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"reason":     reason,
	}).Info("Booking failed")

	booking.Status = models.BookingStatusFailed
	booking.FailureReason = &reason
	booking.RedirectURL = nil
	return s.buildState(booking), nil
}

// expireIfHoldLapsed lazily expires a non-terminal booking past its TTL
func (s *BookingOrchestratorService) expireIfHoldLapsed(booking *models.Booking) (bool, *models.BookingStateResponse) {
	if booking.Status.IsTerminal() || !booking.HoldElapsed() {
		return false, nil
	}

	if err := s.bookingRepo.MarkExpired(booking.ID); err != nil {
		s.logger.WithError(err).WithField("booking_id", booking.ID).Warn("Failed to expire stale booking")
	}
	if err := s.seatInventory.ReleaseHold(booking.HoldID); err != nil {
		s.logger.WithError(err).WithField("booking_id", booking.ID).Error("Failed to release expired hold")
	}

	booking.Status = models.BookingStatusExpired
	booking.FailureReason = strPtr("hold_expired")
	booking.RedirectURL = nil
	return true, s.buildState(booking)
}

// ============================================================================
// HELPERS
// ============================================================================

func (s *BookingOrchestratorService) ownedBooking(userID, bookingID uuid.UUID) (*models.Booking, error) {
	booking, err := s.bookingRepo.GetBookingByID(bookingID)
	if err != nil {
		return nil, err
	}
	if booking.UserID != userID {
		return nil, models.ErrNotBookingOwner
	}
	return booking, nil
}

func (s *BookingOrchestratorService) buildState(booking *models.Booking) *models.BookingStateResponse {
	resp := &models.BookingStateResponse{
		BookingID:       booking.ID,
		State:           booking.FlowState(),
		Status:          booking.Status,
		ScheduleID:      booking.ScheduleID,
		SeatNumbers:     booking.SeatNumbers,
		Amount:          booking.Amount,
		Currency:        booking.Currency,
		HoldExpiresAt:   booking.HoldExpiresAt,
		PaymentIntentID: booking.PaymentIntentID,
		RedirectURL:     booking.RedirectURL,
		FailureReason:   booking.FailureReason,
		QRPayload:       booking.QRPayload,
	}
	if !booking.Status.IsTerminal() {
		if ttl := time.Until(booking.HoldExpiresAt); ttl > 0 {
			resp.TTLSeconds = int(ttl.Seconds())
		}
		resp.PublicKey = s.config.PublicKey
	}
	if booking.Status == models.BookingStatusConfirmed {
		resp.Reference = booking.Reference()
	}
	return resp
}

// audit records a gateway interaction on a best-effort basis
func (s *BookingOrchestratorService) audit(bookingID uuid.UUID, event models.PaymentAuditEvent, intentID *string, gatewayStatus *string, detail string) {
	if s.auditRepo == nil {
		return
	}
	entry := &models.PaymentAudit{
		BookingID:       bookingID,
		Event:           event,
		PaymentIntentID: intentID,
		GatewayStatus:   gatewayStatus,
	}
	if detail != "" {
		entry.Detail = &detail
	}
	if err := s.auditRepo.Record(entry); err != nil {
		s.logger.WithError(err).WithField("booking_id", bookingID).Warn("Audit write failed")
	}
}

func (s *BookingOrchestratorService) clientKey(booking *models.Booking) string {
	if booking.ClientKey != nil {
		return *booking.ClientKey
	}
	return ""
}

func toCentavos(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func strPtr(s string) *string { return &s }

func statusPtr(s models.PaymentIntentStatus) *models.PaymentIntentStatus { return &s }
