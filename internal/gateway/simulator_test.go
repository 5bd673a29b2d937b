package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/eabugauch/zenithpay-escrow/internal/domain"
)

func TestSimulator_ManualCaptureLifecycle(t *testing.T) {
	s := NewSimulator(42)
	ctx := context.Background()

	created, err := s.CreateIntent(ctx, CreateIntentRequest{
		AmountCents: 5000,
		Currency:    "USD",
		BusinessID:  "biz_001",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.Status != domain.IntentRequiresConfirmation {
		t.Errorf("expected requires_confirmation, got %s", created.Status)
	}
	if created.ClientSecret == "" {
		t.Error("expected a client secret")
	}

	confirmed, err := s.ConfirmIntent(ctx, created.IntentID, "pm_001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if confirmed.Status != domain.IntentRequiresCapture {
		t.Errorf("expected requires_capture for manual capture, got %s", confirmed.Status)
	}

	captured, err := s.CaptureIntent(ctx, created.IntentID, 5000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured.Status != domain.IntentSucceeded {
		t.Errorf("expected succeeded, got %s", captured.Status)
	}

	refunded, err := s.CreateRefund(ctx, created.IntentID, 2000, "requested_by_customer")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if refunded.AmountCents != 2000 {
		t.Errorf("expected 2000 cent refund, got %d", refunded.AmountCents)
	}
}

func TestSimulator_AutomaticCaptureSucceedsOnConfirm(t *testing.T) {
	s := NewSimulator(42)
	ctx := context.Background()

	created, _ := s.CreateIntent(ctx, CreateIntentRequest{
		AmountCents:      5000,
		Currency:         "USD",
		BusinessID:       "biz_001",
		AutomaticCapture: true,
	})
	confirmed, err := s.ConfirmIntent(ctx, created.IntentID, "pm_001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if confirmed.Status != domain.IntentSucceeded {
		t.Errorf("expected succeeded on automatic capture, got %s", confirmed.Status)
	}
}

func TestSimulator_CaptureExceedingAmountRejected(t *testing.T) {
	s := NewSimulator(42)
	ctx := context.Background()

	created, _ := s.CreateIntent(ctx, CreateIntentRequest{AmountCents: 5000, Currency: "USD", BusinessID: "biz_001"})
	_, _ = s.ConfirmIntent(ctx, created.IntentID, "pm_001")

	_, err := s.CaptureIntent(ctx, created.IntentID, 6000)
	var pe *domain.ProcessingError
	if !errors.As(err, &pe) || pe.Code != "invalid_capture_amount" {
		t.Fatalf("expected invalid_capture_amount, got %v", err)
	}
	if domain.IsRetryable(err) {
		t.Error("capture amount errors are permanent")
	}
}

func TestSimulator_UnknownIntent(t *testing.T) {
	s := NewSimulator(42)
	_, err := s.ConfirmIntent(context.Background(), "pi_missing", "pm_001")
	var pe *domain.ProcessingError
	if !errors.As(err, &pe) || pe.Code != "intent_not_found" {
		t.Fatalf("expected intent_not_found, got %v", err)
	}
}

func TestSimulator_DeclineInjectionIsPermanent(t *testing.T) {
	s := NewSimulator(42)
	s.SetDeclineRate(1.0)

	_, err := s.CreateIntent(context.Background(), CreateIntentRequest{AmountCents: 5000, Currency: "USD", BusinessID: "biz_001"})
	var pe *domain.ProcessingError
	if !errors.As(err, &pe) || pe.Code != "card_declined" {
		t.Fatalf("expected card_declined, got %v", err)
	}
	if domain.IsRetryable(err) {
		t.Error("declines must not be retryable")
	}
}

func TestSimulator_FailureInjectionIsTransient(t *testing.T) {
	s := NewSimulator(42)
	s.SetFailureRate(1.0)

	_, err := s.CreateIntent(context.Background(), CreateIntentRequest{AmountCents: 5000, Currency: "USD", BusinessID: "biz_001"})
	if err == nil {
		t.Fatal("expected injected failure")
	}
	if !domain.IsRetryable(err) {
		t.Error("injected failures must be retryable")
	}
}
