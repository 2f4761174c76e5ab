package models

import (
	"time"

	"github.com/google/uuid"
)

// BookingStatus represents the lifecycle state of a booking.
// Matches PostgreSQL ENUM: booking_status
type BookingStatus string

const (
	BookingStatusPending         BookingStatus = "pending"          // seats held, no payment attempt yet
	BookingStatusAwaitingPayment BookingStatus = "awaiting_payment" // payment intent opened
	BookingStatusConfirmed       BookingStatus = "confirmed"        // paid, seats sold
	BookingStatusFailed          BookingStatus = "failed"           // payment failed, rejected or cancelled
	BookingStatusExpired         BookingStatus = "expired"          // hold TTL elapsed before confirmation
)

// IsTerminal reports whether the booking can no longer change state.
// Administrative cancellation of confirmed bookings is out of scope here.
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusConfirmed || s == BookingStatusFailed || s == BookingStatusExpired
}

// FlowState is the orchestrator-level view returned to the UI so it knows
// which screen to render next. Derived from booking + payment status, never
// stored.
type FlowState string

const (
	FlowSelectingSeats    FlowState = "selecting_seats"
	FlowPaymentSelecting  FlowState = "payment_selecting"
	FlowPaymentProcessing FlowState = "payment_processing"
	FlowRedirectWait      FlowState = "redirect_wait"
	FlowConfirmed         FlowState = "confirmed"
	FlowFailed            FlowState = "failed"
	FlowExpired           FlowState = "expired"
)

// Booking represents one purchase attempt. Amount is computed once, when the
// booking is created from a successful hold, and never recomputed: a later
// schedule price change must not alter an in-flight booking's amount.
type Booking struct {
	ID          uuid.UUID   `json:"id" db:"id"`
	UserID      uuid.UUID   `json:"user_id" db:"user_id"`
	ScheduleID  uuid.UUID   `json:"schedule_id" db:"schedule_id"`
	HoldID      uuid.UUID   `json:"hold_id" db:"hold_id"`
	SeatNumbers StringArray `json:"seat_numbers" db:"seat_numbers"`

	// Passenger snapshot taken from the verified identity at creation
	PassengerName  string `json:"passenger_name" db:"passenger_name"`
	PassengerEmail string `json:"passenger_email,omitempty" db:"passenger_email"`

	Amount   float64       `json:"amount" db:"amount"`
	Currency string        `json:"currency" db:"currency"`
	Status   BookingStatus `json:"status" db:"status"`

	// Why a terminal failure happened: "cancelled", "method_rejected: ...",
	// "payment_failed", "payment_timeout", ...
	FailureReason *string `json:"failure_reason,omitempty" db:"failure_reason"`

	// Gateway tracking. PaymentIntentID/ClientKey are set once when the
	// intent is lazily created; PaymentStatus is the last status observed.
	PaymentIntentID *string              `json:"payment_intent_id,omitempty" db:"payment_intent_id"`
	ClientKey       *string              `json:"-" db:"client_key"`
	PaymentStatus   *PaymentIntentStatus `json:"payment_status,omitempty" db:"payment_status"`
	RedirectURL     *string              `json:"redirect_url,omitempty" db:"redirect_url"`
	PaymentRef      *string              `json:"payment_ref,omitempty" db:"payment_ref"`

	// Set only on CONFIRMED
	QRPayload *string `json:"qr_payload,omitempty" db:"qr_payload"`

	HoldExpiresAt time.Time `json:"hold_expires_at" db:"hold_expires_at"`

	IdempotencyKey *string    `json:"idempotency_key,omitempty" db:"idempotency_key"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	ConfirmedAt    *time.Time `json:"confirmed_at,omitempty" db:"confirmed_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// HoldElapsed reports whether the seat hold backing this booking has passed
// its TTL. Meaningful only before confirmation.
func (b *Booking) HoldElapsed() bool {
	return time.Now().After(b.HoldExpiresAt)
}

// InRedirectWait reports whether the user has been sent to the gateway's
// external step. Cancellation is not possible from here; only verification
// or hold expiry resolves the flow.
func (b *Booking) InRedirectWait() bool {
	return b.Status == BookingStatusAwaitingPayment && b.RedirectURL != nil
}

// Reference is the human-facing booking reference ("BM-" + short id)
func (b *Booking) Reference() string {
	return "BM-" + b.ID.String()[:8]
}

// FlowState derives the orchestrator state the UI should render
func (b *Booking) FlowState() FlowState {
	switch b.Status {
	case BookingStatusConfirmed:
		return FlowConfirmed
	case BookingStatusFailed:
		return FlowFailed
	case BookingStatusExpired:
		return FlowExpired
	case BookingStatusPending:
		return FlowPaymentSelecting
	case BookingStatusAwaitingPayment:
		if b.RedirectURL != nil {
			return FlowRedirectWait
		}
		return FlowPaymentProcessing
	}
	return FlowSelectingSeats
}

// ============================================================================
// REQUEST/RESPONSE STRUCTS
// ============================================================================

// StartHoldRequest opens the flow: hold seats and create a pending booking
type StartHoldRequest struct {
	ScheduleID     string   `json:"schedule_id" binding:"required"`
	SeatNumbers    []string `json:"seat_numbers" binding:"required,min=1"`
	Passengers     int      `json:"passengers" binding:"required,min=1"`
	IdempotencyKey *string  `json:"idempotency_key,omitempty"`
}

// ChooseMethodRequest submits the buyer's chosen payment method
type ChooseMethodRequest struct {
	Method  PaymentMethodType `json:"method" binding:"required"`
	Card    *CardDetails      `json:"card,omitempty"`
	Billing *BillingDetails   `json:"billing,omitempty"`
}

// BookingStateResponse is returned by every orchestrator operation: the
// current state plus enough data to render the next screen.
type BookingStateResponse struct {
	BookingID   uuid.UUID     `json:"booking_id"`
	State       FlowState     `json:"state"`
	Status      BookingStatus `json:"status"`
	ScheduleID  uuid.UUID     `json:"schedule_id"`
	SeatNumbers []string      `json:"seat_numbers"`
	Amount      float64       `json:"amount"`
	Currency    string        `json:"currency"`

	// Countdown for the seat-hold banner; zero once expired or terminal
	HoldExpiresAt time.Time `json:"hold_expires_at"`
	TTLSeconds    int       `json:"ttl_seconds"`

	// Present while payment is in flight
	PaymentIntentID *string `json:"payment_intent_id,omitempty"`
	PublicKey       string  `json:"public_key,omitempty"`
	RedirectURL     *string `json:"redirect_url,omitempty"`

	FailureReason *string `json:"failure_reason,omitempty"`

	// Present once confirmed
	Reference string  `json:"reference,omitempty"`
	QRPayload *string `json:"qr_payload,omitempty"`
}

// PaymentMethodsResponse lists the methods the buyer may choose from
type PaymentMethodsResponse struct {
	Methods []PaymentMethodType `json:"methods"`
}

// TicketPayload is the structured payload handed to the ticketing
// collaborator on confirmation; the QR artifact is produced from it.
type TicketPayload struct {
	BookingID        string   `json:"bookingId"`
	Reference        string   `json:"reference"`
	Status           string   `json:"status"`
	PassengerName    string   `json:"passenger"`
	PassengerEmail   string   `json:"email,omitempty"`
	Origin           string   `json:"origin"`
	Destination      string   `json:"destination"`
	Route            string   `json:"route"`
	TravelDate       string   `json:"travelDate"`
	DepartureTime    string   `json:"departureTime"`
	ArrivalTime      string   `json:"arrivalTime"`
	BusNumber        string   `json:"busNumber,omitempty"`
	Seats            []string `json:"seats"`
	SeatCount        int      `json:"seatCount"`
	Amount           string   `json:"amount"`
	PaymentRef       string   `json:"paymentRef,omitempty"`
	VerificationCode string   `json:"verificationCode"`
}
