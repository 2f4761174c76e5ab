package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/busmate/booking-backend/internal/database"
	"github.com/busmate/booking-backend/internal/middleware"
	"github.com/busmate/booking-backend/internal/models"
	"github.com/busmate/booking-backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// BookingOrchestratorHandler exposes the booking flow endpoints
type BookingOrchestratorHandler struct {
	orchestrator  *services.BookingOrchestratorService
	ticketService *services.TicketService
	bookingRepo   database.BookingRepository
	seatInventory database.SeatInventory
	scheduleRepo  database.ScheduleRepository
	logger        *logrus.Logger
}

// NewBookingOrchestratorHandler creates a new BookingOrchestratorHandler
func NewBookingOrchestratorHandler(
	orchestrator *services.BookingOrchestratorService,
	ticketService *services.TicketService,
	bookingRepo database.BookingRepository,
	seatInventory database.SeatInventory,
	scheduleRepo database.ScheduleRepository,
	logger *logrus.Logger,
) *BookingOrchestratorHandler {
	return &BookingOrchestratorHandler{
		orchestrator:  orchestrator,
		ticketService: ticketService,
		bookingRepo:   bookingRepo,
		seatInventory: seatInventory,
		scheduleRepo:  scheduleRepo,
		logger:        logger,
	}
}

// ============================================================================
// START HOLD - POST /api/v1/bookings/hold
// ============================================================================

// StartHold holds seats and creates a pending booking
func (h *BookingOrchestratorHandler) StartHold(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req models.StartHoldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	response, err := h.orchestrator.StartHold(c.Request.Context(), userCtx.UserID, userCtx.Name, userCtx.Email, &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response)
}

// ============================================================================
// CHOOSE PAYMENT METHOD - POST /api/v1/bookings/:booking_id/payment-method
// ============================================================================

// ChooseMethod submits the buyer's payment method for a held booking
func (h *BookingOrchestratorHandler) ChooseMethod(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	bookingID, err := uuid.Parse(c.Param("booking_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking_id"})
		return
	}

	var req models.ChooseMethodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	response, err := h.orchestrator.ChooseMethod(c.Request.Context(), userCtx.UserID, bookingID, &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// ============================================================================
// BOOKING STATUS - GET /api/v1/bookings/:booking_id
// ============================================================================

// GetStatus returns the booking's current flow state
func (h *BookingOrchestratorHandler) GetStatus(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	bookingID, err := uuid.Parse(c.Param("booking_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking_id"})
		return
	}

	response, err := h.orchestrator.GetStatus(c.Request.Context(), userCtx.UserID, bookingID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// ListBookings returns a page of the user's bookings
func (h *BookingOrchestratorHandler) ListBookings(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	bookings, err := h.orchestrator.ListBookings(c.Request.Context(), userCtx.UserID, limit, offset)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings, "count": len(bookings)})
}

// ============================================================================
// CANCEL - POST /api/v1/bookings/:booking_id/cancel
// ============================================================================

// Cancel abandons a booking before the redirect step
func (h *BookingOrchestratorHandler) Cancel(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	bookingID, err := uuid.Parse(c.Param("booking_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking_id"})
		return
	}

	response, err := h.orchestrator.Cancel(c.Request.Context(), userCtx.UserID, bookingID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// ============================================================================
// VERIFY AFTER REDIRECT - POST /api/v1/payments/verify/:intent_id
// ============================================================================

// VerifyAfterRedirect settles a booking once the user returns from the
// gateway's external step. Safe to replay.
func (h *BookingOrchestratorHandler) VerifyAfterRedirect(c *gin.Context) {
	intentID := c.Param("intent_id")
	if intentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "intent_id is required"})
		return
	}

	response, err := h.orchestrator.ResumeAfterRedirect(c.Request.Context(), intentID)
	if err != nil {
		var ambiguous *models.VerificationAmbiguousError
		if errors.As(err, &ambiguous) && response != nil {
			// Neither success nor failure yet; the user checks back later
			c.JSON(http.StatusOK, gin.H{
				"state":   response,
				"message": "payment pending, check your bookings",
			})
			return
		}
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// ============================================================================
// WEBHOOK - POST /api/v1/payments/webhook
// ============================================================================

type webhookRequest struct {
	Data struct {
		Attributes struct {
			Data struct {
				Attributes struct {
					PaymentIntentID string `json:"payment_intent_id"`
				} `json:"attributes"`
			} `json:"data"`
		} `json:"attributes"`
	} `json:"data"`
}

// Webhook receives asynchronous gateway events. Resolution goes through the
// same idempotent verification path as the redirect return.
func (h *BookingOrchestratorHandler) Webhook(c *gin.Context) {
	var req webhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid webhook payload"})
		return
	}

	intentID := req.Data.Attributes.Data.Attributes.PaymentIntentID
	if intentID == "" {
		// Event for a resource we do not track; acknowledge and move on
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	if err := h.orchestrator.HandleWebhookEvent(c.Request.Context(), intentID); err != nil {
		if errors.Is(err, models.ErrBookingNotFound) {
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}
		h.logger.WithError(err).WithField("intent_id", intentID).Error("Webhook processing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook processing failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

// ============================================================================
// TICKET - GET /api/v1/bookings/:booking_id/ticket[.pdf]
// ============================================================================

// ticketBooking loads the booking behind a ticket request and checks ownership
func (h *BookingOrchestratorHandler) ticketBooking(c *gin.Context) (*models.Booking, bool) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return nil, false
	}

	bookingID, err := uuid.Parse(c.Param("booking_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking_id"})
		return nil, false
	}

	booking, err := h.bookingRepo.GetBookingByID(bookingID)
	if err != nil {
		h.writeError(c, err)
		return nil, false
	}
	if booking.UserID != userCtx.UserID {
		c.JSON(http.StatusForbidden, gin.H{"error": "booking belongs to a different user"})
		return nil, false
	}
	return booking, true
}

// Ticket returns the confirmed booking's structured ticket payload
func (h *BookingOrchestratorHandler) Ticket(c *gin.Context) {
	booking, ok := h.ticketBooking(c)
	if !ok {
		return
	}
	if booking.Status != models.BookingStatusConfirmed {
		c.JSON(http.StatusConflict, gin.H{"error": "ticket available only for confirmed bookings"})
		return
	}

	payload, err := h.ticketService.BuildTicket(booking)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, payload)
}

// TicketPDF streams the confirmed booking's e-ticket PDF
func (h *BookingOrchestratorHandler) TicketPDF(c *gin.Context) {
	booking, ok := h.ticketBooking(c)
	if !ok {
		return
	}

	pdf, err := h.ticketService.GeneratePDF(booking)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	filename := fmt.Sprintf("ticket-%s.pdf", booking.Reference())
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

// ============================================================================
// SEAT MAP - GET /api/v1/schedules/:schedule_id/seats
// ============================================================================

// SeatMap returns the schedule's current availability view
func (h *BookingOrchestratorHandler) SeatMap(c *gin.Context) {
	scheduleID, err := uuid.Parse(c.Param("schedule_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid schedule_id"})
		return
	}

	schedule, err := h.scheduleRepo.GetScheduleByID(scheduleID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	seats, err := h.seatInventory.GetSeatMap(scheduleID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	response := models.SeatMapResponse{
		ScheduleID:   scheduleID,
		PricePerSeat: schedule.PricePerSeat,
		Seats:        make([]models.SeatMapEntry, 0, len(seats)),
	}
	for _, seat := range seats {
		response.Seats = append(response.Seats, models.SeatMapEntry{
			SeatNumber: seat.SeatNumber,
			Available:  seat.Status == models.SeatStatusAvailable,
		})
	}
	c.JSON(http.StatusOK, response)
}

// Schedules lists upcoming bookable schedules
func (h *BookingOrchestratorHandler) Schedules(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	schedules, err := h.scheduleRepo.ListUpcoming(time.Now().Truncate(24*time.Hour), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedules": schedules, "count": len(schedules)})
}

// PaymentMethods lists the methods the checkout screen may offer
func (h *BookingOrchestratorHandler) PaymentMethods(c *gin.Context) {
	c.JSON(http.StatusOK, models.PaymentMethodsResponse{Methods: models.AllPaymentMethods()})
}

// ============================================================================
// ERROR MAPPING
// ============================================================================

// writeError maps service errors onto HTTP responses
func (h *BookingOrchestratorHandler) writeError(c *gin.Context, err error) {
	var conflict *models.HoldConflictError
	var mismatch *models.SeatCountMismatchError
	var rejected *models.MethodRejectedError
	var unavailable *models.GatewayUnavailableError

	switch {
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{
			"error":             "seats_unavailable",
			"conflicting_seats": conflict.ConflictingSeats,
			"message":           conflict.Error(),
		})
	case errors.As(err, &mismatch):
		c.JSON(http.StatusBadRequest, gin.H{"error": "seat_count_mismatch", "message": mismatch.Error()})
	case errors.As(err, &rejected):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "method_rejected", "message": rejected.Reason})
	case errors.As(err, &unavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": "gateway_unavailable", "message": "payment gateway unavailable, please retry"})
	case errors.Is(err, models.ErrBookingNotFound), errors.Is(err, models.ErrScheduleNotFound), errors.Is(err, models.ErrHoldNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
	case errors.Is(err, models.ErrNotBookingOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": err.Error()})
	case errors.Is(err, models.ErrHoldExpired):
		c.JSON(http.StatusGone, gin.H{"error": "hold_expired", "message": "seat hold has expired, start over"})
	case errors.Is(err, models.ErrCancelNotAllowed):
		c.JSON(http.StatusConflict, gin.H{"error": "cancel_not_allowed", "message": err.Error()})
	case errors.Is(err, models.ErrPaymentInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "payment_in_progress", "message": err.Error()})
	case errors.Is(err, models.ErrScheduleClosed):
		c.JSON(http.StatusConflict, gin.H{"error": "schedule_closed", "message": err.Error()})
	case errors.Is(err, models.ErrInvalidAmount):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid_amount", "message": err.Error()})
	default:
		h.logger.WithError(err).Error("Unhandled booking flow error")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}
