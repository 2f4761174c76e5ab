package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/busmate/booking-backend/internal/config"
	"github.com/busmate/booking-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// minIntentAmount is the smallest amount PayMongo accepts, in centavos
const minIntentAmount = 2000

// PayMongoService implements PaymentGateway against the PayMongo REST API.
// Server-side calls authenticate with Basic auth on the secret key; the
// public key and client_key are only ever handed to the browser.
type PayMongoService struct {
	config *config.PayMongoConfig
	logger *logrus.Logger
	client *http.Client
}

// NewPayMongoService creates a new PayMongo payment service
func NewPayMongoService(cfg *config.PayMongoConfig, logger *logrus.Logger) *PayMongoService {
	return &PayMongoService{
		config: cfg,
		logger: logger,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ============================================================================
// WIRE TYPES
// ============================================================================

type paymongoEnvelope struct {
	Data paymongoResource `json:"data"`
}

type paymongoResource struct {
	ID         string             `json:"id"`
	Attributes paymongoAttributes `json:"attributes"`
}

type paymongoAttributes struct {
	Status     string               `json:"status"`
	ClientKey  string               `json:"client_key"`
	Amount     int64                `json:"amount"`
	Currency   string               `json:"currency"`
	NextAction *paymongoNextAction  `json:"next_action"`
	Payments   []paymongoResource   `json:"payments"`
	Metadata   map[string]string    `json:"metadata"`
	LastError  *paymongoErrorDetail `json:"last_payment_error"`
}

type paymongoNextAction struct {
	Type     string `json:"type"`
	Redirect struct {
		URL string `json:"url"`
	} `json:"redirect"`
}

type paymongoErrorDetail struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

type paymongoErrorResponse struct {
	Errors []paymongoErrorDetail `json:"errors"`
}

// ============================================================================
// PAYMENT GATEWAY IMPLEMENTATION
// ============================================================================

// CreateIntent opens a payment intent for the given amount in centavos
func (s *PayMongoService) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*models.PaymentIntent, error) {
	if s.config.SecretKey == "" {
		return nil, fmt.Errorf("payment gateway not configured: missing secret key")
	}
	if amount < minIntentAmount {
		return nil, models.ErrInvalidAmount
	}

	methods := make([]string, 0, 4)
	for _, m := range models.AllPaymentMethods() {
		methods = append(methods, string(m))
	}

	body := map[string]interface{}{
		"data": map[string]interface{}{
			"attributes": map[string]interface{}{
				"amount":                 amount,
				"currency":               currency,
				"capture_type":           "automatic",
				"payment_method_allowed": methods,
				"payment_method_options": map[string]interface{}{
					"card": map[string]interface{}{
						"request_three_d_secure": "any",
					},
				},
				"description":          "BusMate seat booking",
				"statement_descriptor": "BusMate",
				"metadata":             metadata,
			},
		},
	}

	var envelope paymongoEnvelope
	if err := s.doRequest(ctx, http.MethodPost, "/payment_intents", body, &envelope); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"intent_id": envelope.Data.ID,
		"amount":    amount,
		"currency":  currency,
	}).Info("Created payment intent")

	return s.toIntent(&envelope), nil
}

// AttachMethod creates a payment method from buyer input and attaches it
func (s *PayMongoService) AttachMethod(ctx context.Context, intentID, clientKey string, method models.MethodDetails, returnURL string) (*models.AttachResult, error) {
	methodID, err := s.createMethod(ctx, method)
	if err != nil {
		return nil, err
	}

	body := map[string]interface{}{
		"data": map[string]interface{}{
			"attributes": map[string]interface{}{
				"payment_method": methodID,
				"client_key":     clientKey,
				"return_url":     returnURL,
			},
		},
	}

	var envelope paymongoEnvelope
	path := fmt.Sprintf("/payment_intents/%s/attach", intentID)
	if err := s.doRequest(ctx, http.MethodPost, path, body, &envelope); err != nil {
		return nil, err
	}

	result := &models.AttachResult{
		Status: models.PaymentIntentStatus(envelope.Data.Attributes.Status),
	}
	if result.Status == models.IntentAwaitingNextAction && envelope.Data.Attributes.NextAction != nil {
		result.RedirectURL = envelope.Data.Attributes.NextAction.Redirect.URL
	}

	s.logger.WithFields(logrus.Fields{
		"intent_id":    intentID,
		"status":       result.Status,
		"has_redirect": result.RedirectURL != "",
	}).Info("Attached payment method")

	return result, nil
}

// createMethod creates a gateway payment method resource
func (s *PayMongoService) createMethod(ctx context.Context, method models.MethodDetails) (string, error) {
	attributes := map[string]interface{}{
		"type": string(method.Type),
	}
	if method.Type == models.MethodCard {
		if method.Card == nil {
			return "", &models.MethodRejectedError{Reason: "card details required"}
		}
		attributes["details"] = map[string]interface{}{
			"card_number": method.Card.CardNumber,
			"exp_month":   method.Card.ExpMonth,
			"exp_year":    method.Card.ExpYear,
			"cvc":         method.Card.CVC,
		}
	}
	if method.Billing != nil {
		attributes["billing"] = map[string]interface{}{
			"name":  method.Billing.Name,
			"email": method.Billing.Email,
			"phone": method.Billing.Phone,
		}
	}

	body := map[string]interface{}{
		"data": map[string]interface{}{
			"attributes": attributes,
		},
	}

	var envelope paymongoEnvelope
	if err := s.doRequest(ctx, http.MethodPost, "/payment_methods", body, &envelope); err != nil {
		return "", err
	}
	return envelope.Data.ID, nil
}

// GetIntent re-reads the intent's current status
func (s *PayMongoService) GetIntent(ctx context.Context, intentID, clientKey string) (*models.PaymentIntent, error) {
	path := fmt.Sprintf("/payment_intents/%s", intentID)
	if clientKey != "" {
		path = fmt.Sprintf("%s?client_key=%s", path, clientKey)
	}

	var envelope paymongoEnvelope
	if err := s.doRequest(ctx, http.MethodGet, path, nil, &envelope); err != nil {
		return nil, err
	}
	return s.toIntent(&envelope), nil
}

// VerifyIntent re-reads the intent with server credentials and classifies
// the outcome. Non-terminal gateway statuses come back Ambiguous.
func (s *PayMongoService) VerifyIntent(ctx context.Context, intentID string) (*models.VerificationResult, error) {
	path := fmt.Sprintf("/payment_intents/%s", intentID)

	var envelope paymongoEnvelope
	if err := s.doRequest(ctx, http.MethodGet, path, nil, &envelope); err != nil {
		return nil, err
	}

	status := models.PaymentIntentStatus(envelope.Data.Attributes.Status)
	result := &models.VerificationResult{
		IntentID:  envelope.Data.ID,
		Status:    status,
		Success:   status == models.IntentSucceeded,
		Ambiguous: !status.IsTerminal(),
		BookingID: envelope.Data.Attributes.Metadata["booking_id"],
	}
	if len(envelope.Data.Attributes.Payments) > 0 {
		result.PaymentID = envelope.Data.Attributes.Payments[0].ID
	}
	return result, nil
}

// ============================================================================
// HTTP PLUMBING
// ============================================================================

// doRequest executes one authenticated gateway call and decodes the response
func (s *PayMongoService) doRequest(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", s.authHeader())
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.WithError(err).WithField("path", path).Error("Payment gateway call failed")
		return &models.GatewayUnavailableError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &models.GatewayUnavailableError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return s.mapError(resp.StatusCode, respBody)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode gateway response: %w", err)
		}
	}
	return nil
}

// mapError converts a non-2xx gateway response into a typed error
func (s *PayMongoService) mapError(statusCode int, body []byte) error {
	var errResp paymongoErrorResponse
	code, detail := "", ""
	if err := json.Unmarshal(body, &errResp); err == nil && len(errResp.Errors) > 0 {
		code = errResp.Errors[0].Code
		detail = errResp.Errors[0].Detail
	}

	s.logger.WithFields(logrus.Fields{
		"status_code": statusCode,
		"code":        code,
		"detail":      detail,
	}).Warn("Payment gateway returned an error")

	switch {
	case statusCode >= 500:
		return &models.GatewayUnavailableError{
			Err: &models.GatewayAPIError{StatusCode: statusCode, Code: code, Detail: detail},
		}
	case statusCode == http.StatusBadRequest || statusCode == http.StatusPaymentRequired:
		reason := detail
		if reason == "" {
			reason = "payment method declined"
		}
		return &models.MethodRejectedError{Reason: reason}
	default:
		return &models.GatewayAPIError{StatusCode: statusCode, Code: code, Detail: detail}
	}
}

func (s *PayMongoService) authHeader() string {
	token := base64.StdEncoding.EncodeToString([]byte(s.config.SecretKey + ":"))
	return "Basic " + token
}

func (s *PayMongoService) toIntent(envelope *paymongoEnvelope) *models.PaymentIntent {
	return &models.PaymentIntent{
		ID:        envelope.Data.ID,
		ClientKey: envelope.Data.Attributes.ClientKey,
		PublicKey: s.config.PublicKey,
		Amount:    envelope.Data.Attributes.Amount,
		Currency:  envelope.Data.Attributes.Currency,
		Status:    models.PaymentIntentStatus(envelope.Data.Attributes.Status),
	}
}
