package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/eabugauch/zenithpay-escrow/internal/audit"
	"github.com/eabugauch/zenithpay-escrow/internal/breaker"
	"github.com/eabugauch/zenithpay-escrow/internal/config"
	"github.com/eabugauch/zenithpay-escrow/internal/domain"
	"github.com/eabugauch/zenithpay-escrow/internal/gateway"
	"github.com/eabugauch/zenithpay-escrow/internal/handler"
	"github.com/eabugauch/zenithpay-escrow/internal/idempotency"
	"github.com/eabugauch/zenithpay-escrow/internal/ledger"
	"github.com/eabugauch/zenithpay-escrow/internal/orchestrator"
	"github.com/eabugauch/zenithpay-escrow/internal/retryexec"
	"github.com/eabugauch/zenithpay-escrow/internal/seed"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Gateway channel
	var gw gateway.Gateway
	switch cfg.GatewayChannel {
	case config.ChannelPayPal:
		pp, err := gateway.NewPayPal(ctx, cfg.PayPalClientID, cfg.PayPalSecret, cfg.PayPalLive, logger)
		if err != nil {
			logger.Error("paypal setup failed", "error", err)
			os.Exit(1)
		}
		gw = pp
	default:
		gw = gateway.NewSimulator(time.Now().UnixNano())
	}

	// Idempotency store: shared via Redis when configured, in-process otherwise.
	var cache idempotency.Store
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Error("redis unreachable", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		cache = idempotency.NewRedisStore(client)
	} else {
		memCache := idempotency.NewMemoryStore(logger)
		go memCache.Sweep(ctx, cfg.SweepInterval)
		cache = memCache
	}

	// Ledger and audit: durable via Postgres when configured.
	repo := ledger.Repository(ledger.NewMemoryRepository())
	auditMem := audit.NewMemorySink()
	sinks := []audit.Sink{auditMem, audit.NewSlogSink(logger)}
	if cfg.PostgresDSN != "" {
		db, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{})
		if err != nil {
			logger.Error("postgres connection failed", "error", err)
			os.Exit(1)
		}
		pgRepo, err := ledger.NewPostgresRepository(db)
		if err != nil {
			logger.Error("ledger migration failed", "error", err)
			os.Exit(1)
		}
		repo = pgRepo
		pgSink, err := audit.NewPostgresSink(db)
		if err != nil {
			logger.Error("audit migration failed", "error", err)
			os.Exit(1)
		}
		sinks = append(sinks, pgSink)
	}

	reg := breaker.NewRegistry(cfg.BreakerFailureThreshold, cfg.BreakerFailureRate, cfg.BreakerCooldown, logger)
	retrier := retryexec.NewWithPolicy(cfg.RetryMaxAttempts, cfg.RetryInitialDelay, cfg.RetryMaxDelay, cfg.RetryMultiplier, logger)

	orch := orchestrator.New(orchestrator.Deps{
		Gateway:  gw,
		Breaker:  reg,
		Retrier:  retrier,
		Cache:    cache,
		Ledger:   repo,
		Audit:    audit.NewRecorder(logger, sinks...),
		Logger:   logger,
		CacheTTL: cfg.IdempotencyTTL,
		Rules: domain.ValidationRules{
			MinAmountCents:    cfg.MinAmountCents,
			MaxAmountCents:    cfg.MaxAmountCents,
			Currencies:        cfg.Currencies,
			DefaultFeePercent: cfg.PlatformFeePercent,
		},
	})

	// Initialize handlers
	paymentHandler := handler.NewPaymentHandler(orch, logger)
	escrowHandler := handler.NewEscrowHandler(repo, auditMem, reg)

	// Setup routes
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"status":  "ok",
			"service": "zenithpay-escrow-core",
			"gateway": gw.Name(),
		})
	})

	// Payment operations
	mux.HandleFunc("POST /api/payments", paymentHandler.Create)
	mux.HandleFunc("POST /api/payments/{id}/confirm", paymentHandler.Confirm)
	mux.HandleFunc("POST /api/payments/{id}/capture", paymentHandler.Capture)
	mux.HandleFunc("POST /api/payments/{id}/cancel", paymentHandler.Cancel)
	mux.HandleFunc("POST /api/payments/{id}/refund", paymentHandler.Refund)

	// Escrow control
	mux.HandleFunc("POST /api/payments/{id}/escrow/schedule", paymentHandler.ScheduleRelease)
	mux.HandleFunc("POST /api/payments/{id}/escrow/release", paymentHandler.Release)
	mux.HandleFunc("POST /api/payments/{id}/escrow/dispute", paymentHandler.Dispute)

	// Reporting
	mux.HandleFunc("GET /api/escrows/overview", escrowHandler.Overview)
	mux.HandleFunc("GET /api/escrows/{id}", escrowHandler.Get)
	mux.HandleFunc("GET /api/escrows", escrowHandler.List)
	mux.HandleFunc("GET /api/audit/events", escrowHandler.AuditEvents)
	mux.HandleFunc("GET /api/breakers", escrowHandler.Breakers)

	// Seed endpoint
	mux.HandleFunc("POST /api/seed", func(w http.ResponseWriter, r *http.Request) {
		params := seed.GenerateParams(50, time.Now().UnixNano())
		outcome := seed.Run(r.Context(), orch, params, time.Now().UnixNano(), logger)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"message": fmt.Sprintf("Seeded %d payments through their lifecycles", outcome.Created),
			"outcome": outcome,
		})
	})

	// Wrap with CORS and logging middleware
	wrappedMux := corsMiddleware(loggingMiddleware(logger, mux))

	// Start background escrow releaser
	releaser := orchestrator.NewReleaser(orch, repo, cfg.ReleaseInterval, logger)
	go releaser.Start(ctx)

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      wrappedMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down server...")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	logger.Info("ZenithPay Escrow Core starting",
		"addr", cfg.Addr,
		"gateway", gw.Name(),
		"redis", cfg.RedisAddr != "",
		"postgres", cfg.PostgresDSN != "",
	)
	fmt.Printf("\n  ZenithPay Escrow Core\n")
	fmt.Printf("  ─────────────────────\n")
	fmt.Printf("  Server:     http://localhost%s\n", cfg.Addr)
	fmt.Printf("  Health:     http://localhost%s/health\n", cfg.Addr)
	fmt.Printf("  API Docs:   See README.md\n\n")
	fmt.Printf("  Quick Start:\n")
	fmt.Printf("    1. POST /api/seed            → Run 50 demo payments through their lifecycles\n")
	fmt.Printf("    2. GET  /api/escrows/overview → View held-funds totals\n")
	fmt.Printf("    3. GET  /api/escrows          → Browse escrow transactions\n\n")

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code for logging.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.statusCode,
			"duration", time.Since(start).String(),
		)
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// NOTE: Wildcard CORS is acceptable for this demo deployment.
		// Production restricts to the marketplace frontend origins.
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-ID, X-Correlation-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
