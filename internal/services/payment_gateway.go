package services

import (
	"context"

	"github.com/busmate/booking-backend/internal/models"
)

// PaymentGateway abstracts the external payment provider. The orchestrator
// never talks HTTP itself; everything it knows about payments goes through
// this interface, which also gives tests a seam for failure injection.
type PaymentGateway interface {
	// CreateIntent opens a payment intent for the amount in the smallest
	// currency unit. Returns *models.GatewayUnavailableError on transport
	// failures and models.ErrInvalidAmount below the gateway minimum.
	CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*models.PaymentIntent, error)

	// AttachMethod creates a payment method from the buyer's input and
	// attaches it to the intent. A *models.MethodRejectedError means the
	// gateway refused the method; the intent stays reusable.
	AttachMethod(ctx context.Context, intentID, clientKey string, method models.MethodDetails, returnURL string) (*models.AttachResult, error)

	// GetIntent re-reads the intent's current status.
	GetIntent(ctx context.Context, intentID, clientKey string) (*models.PaymentIntent, error)

	// VerifyIntent re-reads the intent with server credentials and maps it
	// to a terminal or ambiguous verification outcome.
	VerifyIntent(ctx context.Context, intentID string) (*models.VerificationResult, error)
}
