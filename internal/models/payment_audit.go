package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentAuditEvent classifies an audit row
type PaymentAuditEvent string

const (
	AuditIntentCreated      PaymentAuditEvent = "intent_created"
	AuditMethodAttached     PaymentAuditEvent = "method_attached"
	AuditRedirectIssued     PaymentAuditEvent = "redirect_issued"
	AuditPaymentSucceeded   PaymentAuditEvent = "payment_succeeded"
	AuditPaymentFailed      PaymentAuditEvent = "payment_failed"
	AuditPaymentTimeout     PaymentAuditEvent = "payment_timeout"
	AuditConfirmationFailed PaymentAuditEvent = "confirmation_failed"
	AuditRefundRequired     PaymentAuditEvent = "refund_required"
	AuditWebhookReceived    PaymentAuditEvent = "webhook_received"
)

// PaymentAudit is an append-only record of every gateway interaction tied to
// a booking. Rows are never updated or deleted inside the retention window.
type PaymentAudit struct {
	ID              uuid.UUID         `json:"id" db:"id"`
	BookingID       uuid.UUID         `json:"booking_id" db:"booking_id"`
	Event           PaymentAuditEvent `json:"event" db:"event"`
	PaymentIntentID *string           `json:"payment_intent_id,omitempty" db:"payment_intent_id"`
	GatewayStatus   *string           `json:"gateway_status,omitempty" db:"gateway_status"`
	Detail          *string           `json:"detail,omitempty" db:"detail"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`
}
