package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/eabugauch/zenithpay-escrow/internal/domain"
	"github.com/eabugauch/zenithpay-escrow/internal/ledger"
	"github.com/eabugauch/zenithpay-escrow/internal/orchestrator"
)

// PaymentHandler handles HTTP requests for payment operations.
type PaymentHandler struct {
	orch   *orchestrator.Orchestrator
	logger *slog.Logger
}

// NewPaymentHandler creates a new payment handler.
func NewPaymentHandler(orch *orchestrator.Orchestrator, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{orch: orch, logger: logger}
}

// callerFrom builds the operation caller from request headers. The demo
// surface trusts X-User-ID; production fronts this with the API gateway's
// authentication.
func callerFrom(r *http.Request) orchestrator.Caller {
	return orchestrator.Caller{
		UserID:        r.Header.Get("X-User-ID"),
		CorrelationID: r.Header.Get("X-Correlation-ID"),
	}
}

// Create handles POST /api/payments - create a payment intent.
func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var params domain.PaymentIntentParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := h.orch.CreatePaymentIntent(r.Context(), callerFrom(r), params)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// Confirm handles POST /api/payments/{id}/confirm - confirm an intent.
func (h *PaymentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		PaymentMethodID string `json:"payment_method_id"`
	}
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.orch.ConfirmPayment(r.Context(), callerFrom(r), id, req.PaymentMethodID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Capture handles POST /api/payments/{id}/capture - capture a held escrow.
// An omitted or zero amount captures the full escrow.
func (h *PaymentHandler) Capture(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		AmountCents int64 `json:"amount_cents"`
	}
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.orch.CapturePayment(r.Context(), callerFrom(r), id, req.AmountCents)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Cancel handles POST /api/payments/{id}/cancel - void an intent.
func (h *PaymentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		Reason string `json:"reason"`
	}
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.orch.CancelPayment(r.Context(), callerFrom(r), id, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Refund handles POST /api/payments/{id}/refund - refund a payment. An
// omitted or zero amount refunds the full remaining amount.
func (h *PaymentHandler) Refund(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		AmountCents int64  `json:"amount_cents"`
		Reason      string `json:"reason"`
	}
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.orch.ProcessRefund(r.Context(), callerFrom(r), id, req.AmountCents, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ScheduleRelease handles POST /api/payments/{id}/escrow/schedule - schedule
// an automatic escrow release.
func (h *PaymentHandler) ScheduleRelease(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		ReleaseAt time.Time `json:"release_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := h.orch.ScheduleEscrowRelease(r.Context(), callerFrom(r), id, req.ReleaseAt)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Release handles POST /api/payments/{id}/escrow/release - release a held
// escrow immediately.
func (h *PaymentHandler) Release(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	result, err := h.orch.ProcessEscrowRelease(r.Context(), callerFrom(r), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Dispute handles POST /api/payments/{id}/escrow/dispute - freeze an escrow
// pending dispute resolution.
func (h *PaymentHandler) Dispute(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		Reason string `json:"reason"`
	}
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.orch.HandleEscrowDispute(r.Context(), callerFrom(r), id, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// decodeOptional decodes a JSON body, treating an empty body as zero values.
func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return errors.New("invalid request body: " + err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError maps the error taxonomy onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var (
		ve *domain.ValidationError
		ee *domain.EscrowError
		ce *domain.CircuitOpenError
		pe *domain.ProcessingError
	)
	switch {
	case errors.As(err, &ve):
		status = http.StatusBadRequest
	case errors.As(err, &ee):
		status = http.StatusConflict
	case errors.As(err, &ce):
		status = http.StatusServiceUnavailable
	case errors.As(err, &pe):
		status = http.StatusBadGateway
	case errors.Is(err, ledger.ErrNotFound):
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  domain.ErrorCode(err),
	})
}
