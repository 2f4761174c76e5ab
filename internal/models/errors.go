package models

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared across repository and service layers
var (
	ErrBookingNotFound   = errors.New("booking not found")
	ErrScheduleNotFound  = errors.New("schedule not found")
	ErrHoldNotFound      = errors.New("hold not found")
	ErrNotBookingOwner   = errors.New("booking belongs to a different user")
	ErrHoldExpired       = errors.New("seat hold has expired")
	ErrInvalidAmount     = errors.New("amount below gateway minimum")
	ErrCancelNotAllowed  = errors.New("booking can no longer be cancelled")
	ErrPaymentInProgress = errors.New("payment already awaiting the gateway's external step")
	ErrScheduleClosed    = errors.New("schedule is not open for booking")
)

// SeatCountMismatchError is returned when the declared passenger count does
// not match the number of selected seats.
type SeatCountMismatchError struct {
	Passengers int
	Seats      int
}

func (e *SeatCountMismatchError) Error() string {
	return fmt.Sprintf("passenger count %d does not match %d selected seats", e.Passengers, e.Seats)
}

// HoldConflictError reports exactly which requested seats were already taken
// when an all-or-nothing hold attempt failed.
type HoldConflictError struct {
	ScheduleID       string
	ConflictingSeats []string
}

func (e *HoldConflictError) Error() string {
	return fmt.Sprintf("seats no longer available: %s", strings.Join(e.ConflictingSeats, ", "))
}

// GatewayUnavailableError wraps transport-level failures talking to the
// payment gateway. The hold stays alive so the buyer can retry.
type GatewayUnavailableError struct {
	Err error
}

func (e *GatewayUnavailableError) Error() string {
	return fmt.Sprintf("payment gateway unavailable: %v", e.Err)
}

func (e *GatewayUnavailableError) Unwrap() error {
	return e.Err
}

// MethodRejectedError is returned when the gateway refuses the submitted
// payment method (bad card details, unsupported type).
type MethodRejectedError struct {
	Reason string
}

func (e *MethodRejectedError) Error() string {
	return fmt.Sprintf("payment method rejected: %s", e.Reason)
}

// VerificationAmbiguousError is returned when post-redirect verification
// could not reach a terminal answer and the caller should retry later.
type VerificationAmbiguousError struct {
	IntentID string
}

func (e *VerificationAmbiguousError) Error() string {
	return fmt.Sprintf("payment intent %s still processing, verification inconclusive", e.IntentID)
}

// GatewayAPIError carries a non-2xx response body from the gateway
type GatewayAPIError struct {
	StatusCode int
	Code       string
	Detail     string
}

func (e *GatewayAPIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway error %d [%s]: %s", e.StatusCode, e.Code, e.Detail)
	}
	return fmt.Sprintf("gateway error %d: %s", e.StatusCode, e.Detail)
}
