package seed

import (
	"context"
	"io"
	"log/slog"
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

func TestGenerateParams(t *testing.T) {
	params := GenerateParams(100, 42)
	if len(params) != 100 {
		t.Fatalf("generated %d params, want 100", len(params))
	}

	rules := domain.ValidationRules{
		MinAmountCents:    50,
		MaxAmountCents:    100_000_000,
		Currencies:        []string{"USD", "EUR", "MXN", "BRL"},
		DefaultFeePercent: 2.9,
	}
	auto := 0
	for i, p := range params {
		if err := p.Validate(rules); err != nil {
			t.Errorf("param %d invalid: %v", i, err)
		}
		if p.ReservationID == "" || p.ServiceID == "" {
			t.Errorf("param %d missing booking references: %+v", i, p)
		}
		if p.AutomaticCapture {
			auto++
		}
	}
	if auto == 0 || auto > 40 {
		t.Errorf("automatic capture count = %d, want a small fraction", auto)
	}
}

func TestGenerateParamsDeterministic(t *testing.T) {
	a := GenerateParams(20, 7)
	b := GenerateParams(20, 7)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("param %d differs between runs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestRunDrivesLifecycles(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := ledger.NewMemoryRepository()
	orch := orchestrator.New(orchestrator.Deps{
		Gateway: gateway.NewSimulator(42),
		Breaker: breaker.NewRegistry(breaker.DefaultFailureThreshold, breaker.DefaultFailureRate, breaker.DefaultCooldown, logger),
		Retrier: retryexec.NewWithPolicy(3, time.Millisecond, 4*time.Millisecond, 2.0, logger),
		Cache:   idempotency.NewMemoryStore(logger),
		Ledger:  repo,
		Audit:   audit.NewRecorder(logger, audit.NewMemorySink()),
		Logger:  logger,
		Rules: domain.ValidationRules{
			MinAmountCents:    50,
			MaxAmountCents:    100_000_000,
			Currencies:        []string{"USD", "EUR", "MXN", "BRL"},
			DefaultFeePercent: 2.9,
		},
	})

	out := Run(context.Background(), orch, GenerateParams(50, 42), 42, logger)

	if out.Created != 50 {
		t.Errorf("created = %d, want 50", out.Created)
	}
	if out.Confirmed == 0 || out.Captured == 0 {
		t.Errorf("expected confirmed and captured payments, got %+v", out)
	}

	all, err := repo.List(context.Background(), "")
	if err != nil {
		t.Fatalf("listing ledger: %v", err)
	}
	if len(all) == 0 {
		t.Fatal("expected escrow transactions in the ledger")
	}
	released, err := repo.List(context.Background(), domain.EscrowReleased)
	if err != nil {
		t.Fatalf("listing released: %v", err)
	}
	if len(released) != out.Captured-out.Refunded {
		t.Errorf("released transactions = %d, want %d", len(released), out.Captured-out.Refunded)
	}
}
