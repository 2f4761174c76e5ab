package models

// PaymentIntentStatus mirrors the gateway-side intent status enum. The
// gateway owns the intent; we only store the identifiers and the last
// status we observed.
type PaymentIntentStatus string

const (
	IntentAwaitingPaymentMethod PaymentIntentStatus = "awaiting_payment_method"
	IntentAwaitingNextAction    PaymentIntentStatus = "awaiting_next_action"
	IntentProcessing            PaymentIntentStatus = "processing"
	IntentSucceeded             PaymentIntentStatus = "succeeded"
	IntentFailed                PaymentIntentStatus = "failed"
)

// IsTerminal reports whether the status can no longer change
func (s PaymentIntentStatus) IsTerminal() bool {
	return s == IntentSucceeded || s == IntentFailed
}

// PaymentIntent is the adapter's view of a gateway payment intent. ClientKey
// and PublicKey exist so the client can talk to the gateway directly for
// method collection; the secret key never leaves the server.
type PaymentIntent struct {
	ID        string              `json:"id"`
	ClientKey string              `json:"client_key"`
	PublicKey string              `json:"public_key"`
	Amount    int64               `json:"amount"` // smallest currency unit (centavos)
	Currency  string              `json:"currency"`
	Status    PaymentIntentStatus `json:"status"`
}

// PaymentMethodType enumerates the buyer-facing payment options
type PaymentMethodType string

const (
	MethodCard    PaymentMethodType = "card"
	MethodGCash   PaymentMethodType = "gcash"
	MethodGrabPay PaymentMethodType = "grab_pay"
	MethodPayMaya PaymentMethodType = "paymaya"
)

// Valid reports whether the method type is one the gateway accepts
func (m PaymentMethodType) Valid() bool {
	switch m {
	case MethodCard, MethodGCash, MethodGrabPay, MethodPayMaya:
		return true
	}
	return false
}

// AllPaymentMethods lists every method the checkout screen may offer
func AllPaymentMethods() []PaymentMethodType {
	return []PaymentMethodType{MethodCard, MethodGCash, MethodGrabPay, MethodPayMaya}
}

// CardDetails carries raw card input for method creation. Only ever sent
// straight to the gateway, never persisted.
type CardDetails struct {
	CardNumber string `json:"card_number" binding:"required"`
	ExpMonth   int    `json:"exp_month" binding:"required"`
	ExpYear    int    `json:"exp_year" binding:"required"`
	CVC        string `json:"cvc" binding:"required"`
}

// BillingDetails is the optional billing block attached to a payment method
type BillingDetails struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// MethodDetails is the buyer-provided payment input for AttachMethod
type MethodDetails struct {
	Type    PaymentMethodType `json:"type"`
	Card    *CardDetails      `json:"card,omitempty"` // required for card
	Billing *BillingDetails   `json:"billing,omitempty"`
}

// AttachResult is the outcome of attaching a payment method to an intent
type AttachResult struct {
	Status      PaymentIntentStatus `json:"status"`
	RedirectURL string              `json:"redirect_url,omitempty"` // set when Status is awaiting_next_action
}

// VerificationResult is the outcome of re-reading an intent after the user
// returns from an external redirect. Ambiguous means the gateway still
// reports a non-terminal status: the caller must surface "pending", never
// guess an outcome.
type VerificationResult struct {
	IntentID  string              `json:"intent_id"`
	Status    PaymentIntentStatus `json:"status"`
	Success   bool                `json:"success"`
	Ambiguous bool                `json:"ambiguous"`
	BookingID string              `json:"booking_id,omitempty"` // from intent metadata
	PaymentID string              `json:"payment_id,omitempty"` // provider payment reference
}
