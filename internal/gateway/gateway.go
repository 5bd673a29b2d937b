// Package gateway defines the external payment gateway contract and its
// channels. The orchestrator never assumes a call succeeds synchronously;
// every outcome carries an explicit status and typed errors carry a
// retryable flag.
package gateway

import "context"

// CreateIntentRequest describes a new payment intent.
type CreateIntentRequest struct {
	AmountCents      int64
	Currency         string
	BusinessID       string
	CustomerID       string
	PaymentMethodID  string
	AutomaticCapture bool
	Description      string
}

// Outcome is the structured result of a gateway call.
type Outcome struct {
	IntentID     string
	Status       string
	ClientSecret string
	AmountCents  int64
}

// Gateway is the abstract payment gateway. All calls pass through the
// circuit breaker and retry executor; errors are *domain.ProcessingError
// values whose Retryable flag drives retry decisions.
type Gateway interface {
	Name() string
	CreateIntent(ctx context.Context, req CreateIntentRequest) (*Outcome, error)
	ConfirmIntent(ctx context.Context, intentID, paymentMethodID string) (*Outcome, error)
	CaptureIntent(ctx context.Context, intentID string, amountCents int64) (*Outcome, error)
	CancelIntent(ctx context.Context, intentID, reason string) (*Outcome, error)
	CreateRefund(ctx context.Context, intentID string, amountCents int64, reason string) (*Outcome, error)
}
