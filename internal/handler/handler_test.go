package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/eabugauch/zenithpay-escrow/internal/audit"
	"github.com/eabugauch/zenithpay-escrow/internal/breaker"
	"github.com/eabugauch/zenithpay-escrow/internal/domain"
	"github.com/eabugauch/zenithpay-escrow/internal/gateway"
	"github.com/eabugauch/zenithpay-escrow/internal/idempotency"
	"github.com/eabugauch/zenithpay-escrow/internal/ledger"
	"github.com/eabugauch/zenithpay-escrow/internal/orchestrator"
	"github.com/eabugauch/zenithpay-escrow/internal/retryexec"
)

func setupTestServer() (*http.ServeMux, *ledger.MemoryRepository) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := ledger.NewMemoryRepository()
	sink := audit.NewMemorySink()
	reg := breaker.NewRegistry(breaker.DefaultFailureThreshold, breaker.DefaultFailureRate, breaker.DefaultCooldown, logger)

	orch := orchestrator.New(orchestrator.Deps{
		Gateway: gateway.NewSimulator(42),
		Breaker: reg,
		Retrier: retryexec.NewWithPolicy(3, time.Millisecond, 4*time.Millisecond, 2.0, logger),
		Cache:   idempotency.NewMemoryStore(logger),
		Ledger:  repo,
		Audit:   audit.NewRecorder(logger, sink),
		Logger:  logger,
		Rules: domain.ValidationRules{
			MinAmountCents:    50,
			MaxAmountCents:    10_000_000,
			Currencies:        []string{"USD", "EUR", "BRL"},
			DefaultFeePercent: 2.9,
		},
	})

	paymentHandler := NewPaymentHandler(orch, logger)
	escrowHandler := NewEscrowHandler(repo, sink, reg)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/payments", paymentHandler.Create)
	mux.HandleFunc("POST /api/payments/{id}/confirm", paymentHandler.Confirm)
	mux.HandleFunc("POST /api/payments/{id}/capture", paymentHandler.Capture)
	mux.HandleFunc("POST /api/payments/{id}/cancel", paymentHandler.Cancel)
	mux.HandleFunc("POST /api/payments/{id}/refund", paymentHandler.Refund)
	mux.HandleFunc("POST /api/payments/{id}/escrow/schedule", paymentHandler.ScheduleRelease)
	mux.HandleFunc("POST /api/payments/{id}/escrow/release", paymentHandler.Release)
	mux.HandleFunc("POST /api/payments/{id}/escrow/dispute", paymentHandler.Dispute)
	mux.HandleFunc("GET /api/escrows/overview", escrowHandler.Overview)
	mux.HandleFunc("GET /api/escrows/{id}", escrowHandler.Get)
	mux.HandleFunc("GET /api/escrows", escrowHandler.List)
	mux.HandleFunc("GET /api/audit/events", escrowHandler.AuditEvents)
	mux.HandleFunc("GET /api/breakers", escrowHandler.Breakers)

	return mux, repo
}

func postJSON(mux http.Handler, path string, body any) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "user_test")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func get(mux http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func createIntent(t *testing.T, mux http.Handler) domain.PaymentResult {
	t.Helper()
	w := postJSON(mux, "/api/payments", domain.PaymentIntentParams{
		AmountCents: 5000,
		Currency:    "USD",
		BusinessID:  "biz_001",
		CustomerID:  "cus_001",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var result domain.PaymentResult
	json.NewDecoder(w.Body).Decode(&result)
	return result
}

func confirmIntent(t *testing.T, mux http.Handler, id string) {
	t.Helper()
	w := postJSON(mux, "/api/payments/"+id+"/confirm", map[string]string{"payment_method_id": "pm_001"})
	if w.Code != http.StatusOK {
		t.Fatalf("confirm: expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCreateHandler(t *testing.T) {
	mux, _ := setupTestServer()

	result := createIntent(t, mux)
	if result.IntentID == "" || result.ClientSecret == "" {
		t.Errorf("missing intent id or client secret: %+v", result)
	}
	if !result.EscrowEnabled {
		t.Error("expected escrow enabled for manual capture")
	}
	if result.PlatformFeeCents != 145 {
		t.Errorf("expected 145 fee cents, got %d", result.PlatformFeeCents)
	}
}

func TestCreateHandler_InvalidBody(t *testing.T) {
	mux, _ := setupTestServer()

	req := httptest.NewRequest(http.MethodPost, "/api/payments", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestCreateHandler_ValidationErrors(t *testing.T) {
	mux, _ := setupTestServer()

	tests := []struct {
		name string
		body domain.PaymentIntentParams
	}{
		{"missing business_id", domain.PaymentIntentParams{AmountCents: 5000, Currency: "USD"}},
		{"amount too small", domain.PaymentIntentParams{AmountCents: 10, Currency: "USD", BusinessID: "biz_001"}},
		{"unsupported currency", domain.PaymentIntentParams{AmountCents: 5000, Currency: "XXX", BusinessID: "biz_001"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(mux, "/api/payments", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
			var resp map[string]string
			json.NewDecoder(w.Body).Decode(&resp)
			if resp["code"] != "validation_error" {
				t.Errorf("expected validation_error code, got %q", resp["code"])
			}
		})
	}
}

func TestConfirmAndCaptureHandlers(t *testing.T) {
	mux, repo := setupTestServer()

	result := createIntent(t, mux)
	confirmIntent(t, mux, result.IntentID)

	w := postJSON(mux, "/api/payments/"+result.IntentID+"/capture", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("capture: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var captured domain.PaymentResult
	json.NewDecoder(w.Body).Decode(&captured)
	if captured.BusinessAmountCents != 4855 {
		t.Errorf("expected 4855 payout cents, got %d", captured.BusinessAmountCents)
	}

	tx, err := repo.Get(context.Background(), result.IntentID)
	if err != nil {
		t.Fatalf("ledger.Get: %v", err)
	}
	if tx.Status != domain.EscrowReleased {
		t.Errorf("expected released, got %s", tx.Status)
	}
}

func TestCaptureHandler_Conflict(t *testing.T) {
	mux, _ := setupTestServer()

	result := createIntent(t, mux)
	// Not confirmed yet: escrow is still pending_capture.
	w := postJSON(mux, "/api/payments/"+result.IntentID+"/capture", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	json.NewDecoder(w.Body).Decode(&resp)
	if resp["code"] != "escrow_error" {
		t.Errorf("expected escrow_error code, got %q", resp["code"])
	}
}

func TestCaptureHandler_UnknownIntent(t *testing.T) {
	mux, _ := setupTestServer()
	w := postJSON(mux, "/api/payments/pi_ghost/capture", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCancelHandler(t *testing.T) {
	mux, repo := setupTestServer()

	result := createIntent(t, mux)
	confirmIntent(t, mux, result.IntentID)

	w := postJSON(mux, "/api/payments/"+result.IntentID+"/cancel", map[string]string{"reason": "customer changed plans"})
	if w.Code != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	tx, _ := repo.Get(context.Background(), result.IntentID)
	if tx.Status != domain.EscrowCancelled {
		t.Errorf("expected cancelled, got %s", tx.Status)
	}
}

func TestRefundHandler(t *testing.T) {
	mux, _ := setupTestServer()

	result := createIntent(t, mux)
	confirmIntent(t, mux, result.IntentID)
	postJSON(mux, "/api/payments/"+result.IntentID+"/capture", nil)

	w := postJSON(mux, "/api/payments/"+result.IntentID+"/refund", map[string]any{
		"amount_cents": 2000,
		"reason":       "partial cancellation",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("refund: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var refunded domain.PaymentResult
	json.NewDecoder(w.Body).Decode(&refunded)
	if refunded.PlatformFeeCents != 58 || refunded.BusinessAmountCents != 1942 {
		t.Errorf("refund split = %d/%d, want 58/1942", refunded.PlatformFeeCents, refunded.BusinessAmountCents)
	}
}

func TestScheduleAndReleaseHandlers(t *testing.T) {
	mux, repo := setupTestServer()

	result := createIntent(t, mux)
	confirmIntent(t, mux, result.IntentID)

	w := postJSON(mux, "/api/payments/"+result.IntentID+"/escrow/schedule", map[string]any{
		"release_at": time.Now().Add(48 * time.Hour).Format(time.RFC3339),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("schedule: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = postJSON(mux, "/api/payments/"+result.IntentID+"/escrow/release", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("release: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	tx, _ := repo.Get(context.Background(), result.IntentID)
	if tx.Status != domain.EscrowReleased {
		t.Errorf("expected released, got %s", tx.Status)
	}
}

func TestScheduleHandler_PastDate(t *testing.T) {
	mux, _ := setupTestServer()

	result := createIntent(t, mux)
	confirmIntent(t, mux, result.IntentID)

	w := postJSON(mux, "/api/payments/"+result.IntentID+"/escrow/schedule", map[string]any{
		"release_at": time.Now().Add(-time.Hour).Format(time.RFC3339),
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestDisputeHandler(t *testing.T) {
	mux, repo := setupTestServer()

	result := createIntent(t, mux)
	confirmIntent(t, mux, result.IntentID)

	w := postJSON(mux, "/api/payments/"+result.IntentID+"/escrow/dispute", map[string]string{"reason": "service not provided"})
	if w.Code != http.StatusOK {
		t.Fatalf("dispute: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	tx, _ := repo.Get(context.Background(), result.IntentID)
	if tx.Status != domain.EscrowDisputed {
		t.Errorf("expected disputed, got %s", tx.Status)
	}
}

func TestEscrowGetHandler(t *testing.T) {
	mux, _ := setupTestServer()

	result := createIntent(t, mux)

	w := get(mux, "/api/escrows/"+result.IntentID)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Transaction domain.EscrowTransaction `json:"transaction"`
		AuditTrail  []audit.Record           `json:"audit_trail"`
	}
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Transaction.AmountCents != 5000 {
		t.Errorf("expected 5000 cents, got %d", resp.Transaction.AmountCents)
	}
	if len(resp.AuditTrail) == 0 {
		t.Error("expected at least one audit record")
	}
}

func TestEscrowGetHandler_NotFound(t *testing.T) {
	mux, _ := setupTestServer()
	w := get(mux, "/api/escrows/pi_missing")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestEscrowListHandler_FilterByStatus(t *testing.T) {
	mux, _ := setupTestServer()

	first := createIntent(t, mux)
	confirmIntent(t, mux, first.IntentID)
	createIntent(t, mux)

	w := get(mux, "/api/escrows?status=held")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp map[string]any
	json.NewDecoder(w.Body).Decode(&resp)
	if total := int(resp["total"].(float64)); total != 1 {
		t.Errorf("expected 1 held transaction, got %d", total)
	}
}

func TestEscrowOverviewHandler(t *testing.T) {
	mux, _ := setupTestServer()

	first := createIntent(t, mux)
	confirmIntent(t, mux, first.IntentID)
	postJSON(mux, "/api/payments/"+first.IntentID+"/capture", nil)

	w := get(mux, "/api/escrows/overview")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var overview escrowOverview
	json.NewDecoder(w.Body).Decode(&overview)
	if overview.TotalTransactions != 1 {
		t.Errorf("expected 1 transaction, got %d", overview.TotalTransactions)
	}
	if overview.ReleasedCents != 4855 || overview.PlatformFeeCents != 145 {
		t.Errorf("released/fee = %d/%d, want 4855/145", overview.ReleasedCents, overview.PlatformFeeCents)
	}
}

func TestAuditEventsHandler(t *testing.T) {
	mux, _ := setupTestServer()

	createIntent(t, mux)

	w := get(mux, "/api/audit/events")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp map[string]any
	json.NewDecoder(w.Body).Decode(&resp)
	if total := int(resp["total"].(float64)); total != 1 {
		t.Errorf("expected 1 audit event, got %d", total)
	}
}

func TestBreakersHandler(t *testing.T) {
	mux, _ := setupTestServer()
	w := get(mux, "/api/breakers")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}
