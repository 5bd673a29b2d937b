package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/plutov/paypal/v4"

	"github.com/eabugauch/zenithpay-escrow/internal/domain"
)

// PayPal is a gateway channel backed by the PayPal Orders API. Manual
// capture maps to AUTHORIZE orders; automatic capture to CAPTURE orders.
type PayPal struct {
	client *paypal.Client
	logger *slog.Logger

	mu     sync.Mutex
	orders map[string]*paypalOrder
}

// paypalOrder tracks the authorization and capture references PayPal
// returns per order, needed for capture, void and refund calls.
type paypalOrder struct {
	currency        string
	authorizationID string
	captureID       string
}

// NewPayPal creates and authenticates a PayPal channel. Sandbox unless
// live is set.
func NewPayPal(ctx context.Context, clientID, clientSecret string, live bool, logger *slog.Logger) (*PayPal, error) {
	base := paypal.APIBaseSandBox
	if live {
		base = paypal.APIBaseLive
	}
	client, err := paypal.NewClient(clientID, clientSecret, base)
	if err != nil {
		return nil, fmt.Errorf("creating paypal client: %w", err)
	}
	if _, err := client.GetAccessToken(ctx); err != nil {
		return nil, fmt.Errorf("authenticating with paypal: %w", err)
	}
	logger.Info("paypal channel initialized", "live", live)
	return &PayPal{
		client: client,
		logger: logger,
		orders: make(map[string]*paypalOrder),
	}, nil
}

func (p *PayPal) Name() string { return "paypal" }

func (p *PayPal) CreateIntent(ctx context.Context, req CreateIntentRequest) (*Outcome, error) {
	intent := "AUTHORIZE"
	if req.AutomaticCapture {
		intent = "CAPTURE"
	}

	units := []paypal.PurchaseUnitRequest{
		{
			ReferenceID: req.BusinessID,
			Amount: &paypal.PurchaseUnitAmount{
				Currency: strings.ToUpper(req.Currency),
				Value:    centsToValue(req.AmountCents),
			},
			Description: req.Description,
		},
	}

	order, err := p.client.CreateOrder(ctx, intent, units, nil, nil)
	if err != nil {
		return nil, mapPayPalError("create_order", err)
	}

	p.mu.Lock()
	p.orders[order.ID] = &paypalOrder{currency: strings.ToUpper(req.Currency)}
	p.mu.Unlock()

	return &Outcome{
		IntentID:    order.ID,
		Status:      domain.IntentRequiresConfirmation,
		AmountCents: req.AmountCents,
	}, nil
}

func (p *PayPal) ConfirmIntent(ctx context.Context, intentID, paymentMethodID string) (*Outcome, error) {
	auth, err := p.client.AuthorizeOrder(ctx, intentID, paypal.AuthorizeOrderRequest{})
	if err != nil {
		return nil, mapPayPalError("authorize_order", err)
	}

	p.mu.Lock()
	if order, ok := p.orders[intentID]; ok && auth.ID != "" {
		order.authorizationID = auth.ID
	}
	p.mu.Unlock()

	return &Outcome{IntentID: intentID, Status: domain.IntentRequiresCapture}, nil
}

func (p *PayPal) CaptureIntent(ctx context.Context, intentID string, amountCents int64) (*Outcome, error) {
	order := p.order(intentID)
	if order == nil || order.authorizationID == "" {
		return nil, &domain.ProcessingError{
			Code:    "intent_not_found",
			Message: fmt.Sprintf("no authorized paypal order %s", intentID),
		}
	}

	capture, err := p.client.CaptureAuthorization(ctx, order.authorizationID, &paypal.PaymentCaptureRequest{
		Amount: &paypal.Money{
			Currency: order.currency,
			Value:    centsToValue(amountCents),
		},
		FinalCapture: true,
	})
	if err != nil {
		return nil, mapPayPalError("capture_authorization", err)
	}

	p.mu.Lock()
	order.captureID = capture.ID
	p.mu.Unlock()

	return &Outcome{IntentID: intentID, Status: domain.IntentSucceeded, AmountCents: amountCents}, nil
}

func (p *PayPal) CancelIntent(ctx context.Context, intentID, reason string) (*Outcome, error) {
	order := p.order(intentID)
	if order == nil || order.authorizationID == "" {
		return nil, &domain.ProcessingError{
			Code:    "intent_not_found",
			Message: fmt.Sprintf("no authorized paypal order %s", intentID),
		}
	}

	if _, err := p.client.VoidAuthorization(ctx, order.authorizationID); err != nil {
		return nil, mapPayPalError("void_authorization", err)
	}
	return &Outcome{IntentID: intentID, Status: domain.IntentCanceled}, nil
}

func (p *PayPal) CreateRefund(ctx context.Context, intentID string, amountCents int64, reason string) (*Outcome, error) {
	order := p.order(intentID)
	if order == nil || order.captureID == "" {
		return nil, &domain.ProcessingError{
			Code:    "intent_not_found",
			Message: fmt.Sprintf("no captured paypal order %s", intentID),
		}
	}

	_, err := p.client.RefundCapture(ctx, order.captureID, paypal.RefundCaptureRequest{
		Amount: &paypal.Money{
			Currency: order.currency,
			Value:    centsToValue(amountCents),
		},
		NoteToPayer: reason,
	})
	if err != nil {
		return nil, mapPayPalError("refund_capture", err)
	}
	return &Outcome{IntentID: intentID, Status: domain.IntentRefunded, AmountCents: amountCents}, nil
}

func (p *PayPal) order(intentID string) *paypalOrder {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.orders[intentID]
}

func centsToValue(cents int64) string {
	return fmt.Sprintf("%.2f", float64(cents)/100)
}

// mapPayPalError converts SDK errors to the processing taxonomy. Rate
// limits and server-side failures are transient; everything else is not.
func mapPayPalError(operation string, err error) error {
	retryable := false
	var apiErr *paypal.ErrorResponse
	if errors.As(err, &apiErr) && apiErr.Response != nil {
		code := apiErr.Response.StatusCode
		retryable = code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
	}
	return &domain.ProcessingError{
		Code:      "paypal_" + operation + "_failed",
		Message:   "paypal call failed",
		Retryable: retryable,
		Err:       err,
	}
}
