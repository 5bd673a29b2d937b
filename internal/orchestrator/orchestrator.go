// Package orchestrator coordinates the gateway, escrow ledger, idempotency
// cache, circuit breaker and audit trail behind the payment operations.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/eabugauch/zenithpay-escrow/internal/audit"
	"github.com/eabugauch/zenithpay-escrow/internal/breaker"
	"github.com/eabugauch/zenithpay-escrow/internal/domain"
	"github.com/eabugauch/zenithpay-escrow/internal/gateway"
	"github.com/eabugauch/zenithpay-escrow/internal/idempotency"
	"github.com/eabugauch/zenithpay-escrow/internal/ledger"
	"github.com/eabugauch/zenithpay-escrow/internal/retryexec"
)

// dependencyGateway names the external gateway in the circuit breaker.
const dependencyGateway = "gateway_api"

// Operation names used for idempotency keys and audit records.
const (
	opCreateIntent = "create_payment_intent"
	opConfirm      = "confirm_payment"
	opCapture      = "capture_payment"
	opCancel       = "cancel_payment"
	opRefund       = "process_refund"
	opSchedule     = "schedule_escrow_release"
	opRelease      = "process_escrow_release"
	opDispute      = "handle_escrow_dispute"
)

const (
	entityPaymentIntent = "payment_intent"
	entityEscrow        = "escrow_transaction"
)

// Caller identifies the already-authenticated principal on whose behalf an
// operation runs.
type Caller struct {
	UserID        string
	CorrelationID string
}

func (c Caller) withCorrelation() Caller {
	if c.CorrelationID == "" {
		c.CorrelationID = uuid.NewString()
	}
	return c
}

// Deps are the orchestrator's collaborators.
type Deps struct {
	Gateway  gateway.Gateway
	Breaker  *breaker.Registry
	Retrier  *retryexec.Executor
	Cache    idempotency.Store
	Ledger   ledger.Repository
	Audit    *audit.Recorder
	Logger   *slog.Logger
	Rules    domain.ValidationRules
	CacheTTL time.Duration
}

// Orchestrator implements the payment operations. Shared state lives in the
// injected collaborators; the orchestrator itself only holds the
// singleflight group collapsing concurrent duplicate requests.
type Orchestrator struct {
	gateway  gateway.Gateway
	breaker  *breaker.Registry
	retrier  *retryexec.Executor
	cache    idempotency.Store
	ledger   ledger.Repository
	audit    *audit.Recorder
	logger   *slog.Logger
	rules    domain.ValidationRules
	cacheTTL time.Duration
	group    singleflight.Group
	now      func() time.Time
}

// New creates an orchestrator from its dependencies.
func New(d Deps) *Orchestrator {
	ttl := d.CacheTTL
	if ttl == 0 {
		ttl = idempotency.DefaultTTL
	}
	return &Orchestrator{
		gateway:  d.Gateway,
		breaker:  d.Breaker,
		retrier:  d.Retrier,
		cache:    d.Cache,
		ledger:   d.Ledger,
		audit:    d.Audit,
		logger:   d.Logger,
		rules:    d.Rules,
		cacheTTL: ttl,
		now:      time.Now,
	}
}

// CreatePaymentIntent validates the params, deduplicates the request, and
// creates a payment intent with the gateway. Manual-capture intents open an
// escrow transaction in pending_capture.
func (o *Orchestrator) CreatePaymentIntent(ctx context.Context, caller Caller, params domain.PaymentIntentParams) (result *domain.PaymentResult, err error) {
	caller = caller.withCorrelation()
	defer func() {
		o.auditOp(ctx, caller, opCreateIntent, entityPaymentIntent, intentIDOf(result), params.BusinessID, err)
	}()

	if err = params.Validate(o.rules); err != nil {
		return nil, err
	}

	key := idempotency.Key(opCreateIntent, params, o.now())
	v, err, _ := o.group.Do(key, func() (any, error) {
		return o.createIntent(ctx, key, params)
	})
	if err != nil {
		return nil, err
	}
	res := *(v.(*domain.PaymentResult))
	return &res, nil
}

func (o *Orchestrator) createIntent(ctx context.Context, key string, params domain.PaymentIntentParams) (*domain.PaymentResult, error) {
	if rec, ok, cacheErr := o.cache.Get(ctx, key); cacheErr != nil {
		o.logger.Warn("idempotency lookup failed, proceeding without cache", "error", cacheErr)
	} else if ok {
		o.logger.Info("duplicate request served from idempotency cache",
			"intent_id", rec.Result.IntentID,
		)
		res := rec.Result
		return &res, nil
	}

	feePercent := params.FeePercent(o.rules.DefaultFeePercent)
	platformFee, businessAmount := domain.SplitFee(params.AmountCents, feePercent)

	out, err := o.callGateway(ctx, opCreateIntent, func(ctx context.Context) (*gateway.Outcome, error) {
		return o.gateway.CreateIntent(ctx, gateway.CreateIntentRequest{
			AmountCents:      params.AmountCents,
			Currency:         params.Currency,
			BusinessID:       params.BusinessID,
			CustomerID:       params.CustomerID,
			PaymentMethodID:  params.PaymentMethodID,
			AutomaticCapture: params.AutomaticCapture,
			Description:      fmt.Sprintf("marketplace payment for %s", params.BusinessID),
		})
	})
	if err != nil {
		return nil, err
	}

	escrowEnabled := !params.AutomaticCapture
	if escrowEnabled {
		now := o.now().UTC()
		tx := &domain.EscrowTransaction{
			IntentID:            out.IntentID,
			BusinessID:          params.BusinessID,
			CustomerID:          params.CustomerID,
			AmountCents:         params.AmountCents,
			PlatformFeeCents:    platformFee,
			BusinessPayoutCents: businessAmount,
			PlatformFeePercent:  feePercent,
			Status:              domain.EscrowPendingCapture,
			CreatedAt:           now,
			UpdatedAt:           now,
			ScheduledReleaseAt:  params.EscrowReleaseAt,
			History: []domain.StatusChange{
				{Status: domain.EscrowPendingCapture, At: now, Note: "intent created"},
			},
		}
		if params.ServiceID != "" || params.ReservationID != "" {
			tx.Metadata = map[string]string{}
			if params.ServiceID != "" {
				tx.Metadata["service_id"] = params.ServiceID
			}
			if params.ReservationID != "" {
				tx.Metadata["reservation_id"] = params.ReservationID
			}
		}
		if err := o.ledger.Create(ctx, tx); err != nil {
			return nil, repositoryError("creating escrow transaction", err)
		}
	}

	result := &domain.PaymentResult{
		Success:             true,
		IntentID:            out.IntentID,
		Status:              out.Status,
		ClientSecret:        out.ClientSecret,
		PlatformFeeCents:    platformFee,
		BusinessAmountCents: businessAmount,
		EscrowEnabled:       escrowEnabled,
	}

	rec := &idempotency.Record{
		Key:       key,
		Operation: opCreateIntent,
		Result:    *result,
		CreatedAt: o.now().UTC(),
		ExpiresAt: o.now().UTC().Add(o.cacheTTL),
	}
	if err := o.cache.Put(ctx, rec); err != nil {
		o.logger.Warn("idempotency write failed", "intent_id", out.IntentID, "error", err)
	}
	return result, nil
}

// ConfirmPayment confirms an intent with the gateway; a present escrow
// transaction moves to held once funds are reserved.
func (o *Orchestrator) ConfirmPayment(ctx context.Context, caller Caller, intentID, paymentMethodID string) (result *domain.PaymentResult, err error) {
	caller = caller.withCorrelation()
	var businessID string
	defer func() {
		o.auditOp(ctx, caller, opConfirm, entityPaymentIntent, intentID, businessID, err)
	}()

	if intentID == "" {
		return nil, &domain.ValidationError{Field: "intent_id", Message: "intent id is required"}
	}

	out, err := o.callGateway(ctx, opConfirm, func(ctx context.Context) (*gateway.Outcome, error) {
		return o.gateway.ConfirmIntent(ctx, intentID, paymentMethodID)
	})
	if err != nil {
		return nil, err
	}

	escrowEnabled := false
	tx, lerr := o.ledger.Get(ctx, intentID)
	switch {
	case lerr == nil:
		escrowEnabled = true
		businessID = tx.BusinessID
		if err = o.transition(tx, domain.EscrowHeld, "gateway confirmed funds reserved"); err != nil {
			return nil, err
		}
		if uerr := o.ledger.Update(ctx, tx); uerr != nil {
			return nil, repositoryError("updating escrow transaction", uerr)
		}
	case errors.Is(lerr, ledger.ErrNotFound):
		// Automatic-capture payments have no escrow record.
	default:
		return nil, repositoryError("loading escrow transaction", lerr)
	}

	return &domain.PaymentResult{
		Success:       true,
		IntentID:      intentID,
		Status:        out.Status,
		EscrowEnabled: escrowEnabled,
	}, nil
}

// CapturePayment finalizes a held escrow, moving funds to the business.
// amountCents of zero captures the full escrow amount; partial captures
// recompute the fee split on the captured amount.
func (o *Orchestrator) CapturePayment(ctx context.Context, caller Caller, intentID string, amountCents int64) (result *domain.PaymentResult, err error) {
	caller = caller.withCorrelation()
	var businessID string
	defer func() {
		o.auditOp(ctx, caller, opCapture, entityEscrow, intentID, businessID, err)
	}()

	tx, err := o.loadEscrow(ctx, intentID)
	if err != nil {
		return nil, err
	}
	businessID = tx.BusinessID
	if tx.Status != domain.EscrowHeld && tx.Status != domain.EscrowScheduledRelease {
		return nil, &domain.EscrowError{
			IntentID: intentID,
			Status:   tx.Status,
			Message:  "capture requires a held escrow",
		}
	}

	if amountCents == 0 {
		amountCents = tx.AmountCents
	}
	if amountCents < 0 {
		return nil, &domain.ValidationError{Field: "amount_cents", Message: "capture amount must be positive"}
	}
	if amountCents > tx.AmountCents {
		return nil, &domain.ValidationError{Field: "amount_cents", Message: "capture amount exceeds the escrow amount"}
	}

	platformFee, businessPayout := domain.SplitFee(amountCents, tx.PlatformFeePercent)

	out, err := o.callGateway(ctx, opCapture, func(ctx context.Context) (*gateway.Outcome, error) {
		return o.gateway.CaptureIntent(ctx, intentID, amountCents)
	})
	if err != nil {
		return nil, err
	}

	note := "captured in full"
	if amountCents < tx.AmountCents {
		note = fmt.Sprintf("partial capture of %d", amountCents)
	}
	if err = o.transition(tx, domain.EscrowReleased, note); err != nil {
		return nil, err
	}
	now := o.now().UTC()
	tx.CapturedCents = amountCents
	tx.PlatformFeeCents = platformFee
	tx.BusinessPayoutCents = businessPayout
	tx.ReleasedAt = &now
	if uerr := o.ledger.Update(ctx, tx); uerr != nil {
		return nil, repositoryError("updating escrow transaction", uerr)
	}

	return &domain.PaymentResult{
		Success:             true,
		IntentID:            intentID,
		Status:              out.Status,
		PlatformFeeCents:    platformFee,
		BusinessAmountCents: businessPayout,
		EscrowEnabled:       true,
	}, nil
}

// CancelPayment voids the gateway intent and closes the escrow.
func (o *Orchestrator) CancelPayment(ctx context.Context, caller Caller, intentID, reason string) (result *domain.PaymentResult, err error) {
	caller = caller.withCorrelation()
	var businessID string
	defer func() {
		o.auditOp(ctx, caller, opCancel, entityPaymentIntent, intentID, businessID, err)
	}()

	var tx *domain.EscrowTransaction
	loaded, lerr := o.ledger.Get(ctx, intentID)
	switch {
	case lerr == nil:
		tx = loaded
		businessID = tx.BusinessID
		if !domain.CanTransition(tx.Status, domain.EscrowCancelled) {
			return nil, &domain.EscrowError{
				IntentID: intentID,
				Status:   tx.Status,
				Message:  "escrow can no longer be cancelled",
			}
		}
	case errors.Is(lerr, ledger.ErrNotFound):
		// Automatic-capture payments have no escrow record.
	default:
		return nil, repositoryError("loading escrow transaction", lerr)
	}

	out, err := o.callGateway(ctx, opCancel, func(ctx context.Context) (*gateway.Outcome, error) {
		return o.gateway.CancelIntent(ctx, intentID, reason)
	})
	if err != nil {
		return nil, err
	}

	if tx != nil {
		if err = o.transition(tx, domain.EscrowCancelled, reason); err != nil {
			return nil, err
		}
		if uerr := o.ledger.Update(ctx, tx); uerr != nil {
			return nil, repositoryError("updating escrow transaction", uerr)
		}
	}

	return &domain.PaymentResult{
		Success:       true,
		IntentID:      intentID,
		Status:        out.Status,
		EscrowEnabled: tx != nil,
	}, nil
}

// ProcessRefund returns funds to the customer, splitting the refund between
// the platform fee and the business payout proportionally. amountCents of
// zero refunds the full remaining captured amount.
func (o *Orchestrator) ProcessRefund(ctx context.Context, caller Caller, intentID string, amountCents int64, reason string) (result *domain.PaymentResult, err error) {
	caller = caller.withCorrelation()
	var businessID string
	defer func() {
		o.auditOp(ctx, caller, opRefund, entityEscrow, intentID, businessID, err)
	}()

	tx, err := o.loadEscrow(ctx, intentID)
	if err != nil {
		return nil, err
	}
	businessID = tx.BusinessID
	if !domain.CanTransition(tx.Status, domain.EscrowRefunded) {
		return nil, &domain.EscrowError{
			IntentID: intentID,
			Status:   tx.Status,
			Message:  "refund requires a held or released escrow",
		}
	}

	refundable := tx.RefundableCents()
	if amountCents == 0 {
		amountCents = refundable
	}
	if amountCents <= 0 {
		return nil, &domain.ValidationError{Field: "amount_cents", Message: "refund amount must be positive"}
	}
	if amountCents > refundable {
		return nil, &domain.ValidationError{Field: "amount_cents", Message: "refund amount exceeds the remaining refundable amount"}
	}

	platformFeeRefund, businessAdjustment := domain.SplitRefund(amountCents, tx.PlatformFeePercent)

	out, err := o.callGateway(ctx, opRefund, func(ctx context.Context) (*gateway.Outcome, error) {
		return o.gateway.CreateRefund(ctx, intentID, amountCents, reason)
	})
	if err != nil {
		return nil, err
	}

	if err = o.transition(tx, domain.EscrowRefunded, fmt.Sprintf("refunded %d", amountCents)); err != nil {
		return nil, err
	}
	tx.RefundedCents += amountCents
	if reason != "" {
		if tx.Metadata == nil {
			tx.Metadata = map[string]string{}
		}
		tx.Metadata["refund_reason"] = reason
	}
	if uerr := o.ledger.Update(ctx, tx); uerr != nil {
		return nil, repositoryError("updating escrow transaction", uerr)
	}

	return &domain.PaymentResult{
		Success:             true,
		IntentID:            intentID,
		Status:              out.Status,
		PlatformFeeCents:    platformFeeRefund,
		BusinessAmountCents: businessAdjustment,
		EscrowEnabled:       true,
	}, nil
}

// ScheduleEscrowRelease marks a held escrow for automatic capture at
// releaseAt. No gateway call is made until the release is processed.
func (o *Orchestrator) ScheduleEscrowRelease(ctx context.Context, caller Caller, intentID string, releaseAt time.Time) (result *domain.PaymentResult, err error) {
	caller = caller.withCorrelation()
	var businessID string
	defer func() {
		o.auditOp(ctx, caller, opSchedule, entityEscrow, intentID, businessID, err)
	}()

	tx, err := o.loadEscrow(ctx, intentID)
	if err != nil {
		return nil, err
	}
	businessID = tx.BusinessID
	if tx.Status != domain.EscrowHeld {
		return nil, &domain.EscrowError{
			IntentID: intentID,
			Status:   tx.Status,
			Message:  "only held escrows can be scheduled for release",
		}
	}
	if !releaseAt.After(o.now()) {
		return nil, &domain.ValidationError{Field: "release_at", Message: "release date must be in the future"}
	}

	if err = o.transition(tx, domain.EscrowScheduledRelease, "release scheduled"); err != nil {
		return nil, err
	}
	releaseAt = releaseAt.UTC()
	tx.ScheduledReleaseAt = &releaseAt
	if uerr := o.ledger.Update(ctx, tx); uerr != nil {
		return nil, repositoryError("updating escrow transaction", uerr)
	}

	return &domain.PaymentResult{
		Success:       true,
		IntentID:      intentID,
		Status:        string(domain.EscrowScheduledRelease),
		EscrowEnabled: true,
	}, nil
}

// ProcessEscrowRelease captures a held or scheduled escrow in full.
func (o *Orchestrator) ProcessEscrowRelease(ctx context.Context, caller Caller, intentID string) (result *domain.PaymentResult, err error) {
	caller = caller.withCorrelation()
	var businessID string
	defer func() {
		o.auditOp(ctx, caller, opRelease, entityEscrow, intentID, businessID, err)
	}()

	tx, err := o.loadEscrow(ctx, intentID)
	if err != nil {
		return nil, err
	}
	businessID = tx.BusinessID
	if tx.Status != domain.EscrowHeld && tx.Status != domain.EscrowScheduledRelease {
		return nil, &domain.EscrowError{
			IntentID: intentID,
			Status:   tx.Status,
			Message:  "release requires a held escrow",
		}
	}
	return o.CapturePayment(ctx, caller, intentID, 0)
}

// HandleEscrowDispute freezes a non-terminal escrow pending external
// dispute resolution.
func (o *Orchestrator) HandleEscrowDispute(ctx context.Context, caller Caller, intentID, reason string) (result *domain.PaymentResult, err error) {
	caller = caller.withCorrelation()
	var businessID string
	defer func() {
		o.auditOp(ctx, caller, opDispute, entityEscrow, intentID, businessID, err)
	}()

	tx, err := o.loadEscrow(ctx, intentID)
	if err != nil {
		return nil, err
	}
	businessID = tx.BusinessID
	if !domain.CanTransition(tx.Status, domain.EscrowDisputed) {
		return nil, &domain.EscrowError{
			IntentID: intentID,
			Status:   tx.Status,
			Message:  "escrow can no longer be disputed",
		}
	}

	if err = o.transition(tx, domain.EscrowDisputed, reason); err != nil {
		return nil, err
	}
	now := o.now().UTC()
	tx.DisputedAt = &now
	if reason != "" {
		if tx.Metadata == nil {
			tx.Metadata = map[string]string{}
		}
		tx.Metadata["dispute_reason"] = reason
	}
	if uerr := o.ledger.Update(ctx, tx); uerr != nil {
		return nil, repositoryError("updating escrow transaction", uerr)
	}

	return &domain.PaymentResult{
		Success:       true,
		IntentID:      intentID,
		Status:        string(domain.EscrowDisputed),
		EscrowEnabled: true,
	}, nil
}

// callGateway routes a gateway call through the retry executor and circuit
// breaker.
func (o *Orchestrator) callGateway(ctx context.Context, operation string, fn func(ctx context.Context) (*gateway.Outcome, error)) (*gateway.Outcome, error) {
	var out *gateway.Outcome
	err := o.retrier.Do(ctx, operation, func(ctx context.Context) error {
		return o.breaker.Call(dependencyGateway, func() error {
			res, err := fn(ctx)
			if err != nil {
				return err
			}
			out = res
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// loadEscrow fails closed: a repository error surfaces as a retryable
// processing error, never as a fabricated record.
func (o *Orchestrator) loadEscrow(ctx context.Context, intentID string) (*domain.EscrowTransaction, error) {
	if intentID == "" {
		return nil, &domain.ValidationError{Field: "intent_id", Message: "intent id is required"}
	}
	tx, err := o.ledger.Get(ctx, intentID)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, &domain.EscrowError{IntentID: intentID, Message: "no escrow transaction"}
	}
	if err != nil {
		return nil, repositoryError("loading escrow transaction", err)
	}
	return tx, nil
}

func (o *Orchestrator) transition(tx *domain.EscrowTransaction, to domain.EscrowStatus, note string) error {
	if !domain.CanTransition(tx.Status, to) {
		return &domain.EscrowError{
			IntentID: tx.IntentID,
			Status:   tx.Status,
			Message:  fmt.Sprintf("cannot transition to %s", to),
		}
	}
	now := o.now().UTC()
	tx.Status = to
	tx.UpdatedAt = now
	tx.History = append(tx.History, domain.StatusChange{Status: to, At: now, Note: note})
	return nil
}

func (o *Orchestrator) auditOp(ctx context.Context, caller Caller, operation, entityType, entityID, businessID string, opErr error) {
	rec := audit.Record{
		Operation:     operation,
		EntityType:    entityType,
		EntityID:      entityID,
		BusinessID:    businessID,
		UserID:        caller.UserID,
		CorrelationID: caller.CorrelationID,
		Success:       opErr == nil,
	}
	if opErr != nil {
		rec.ErrorCode = domain.ErrorCode(opErr)
		rec.ErrorMessage = opErr.Error()
	}
	o.audit.Record(ctx, rec)
}

func repositoryError(message string, err error) error {
	return &domain.ProcessingError{
		Code:      "repository_error",
		Message:   message,
		Retryable: true,
		Err:       err,
	}
}

func intentIDOf(result *domain.PaymentResult) string {
	if result == nil {
		return ""
	}
	return result.IntentID
}
