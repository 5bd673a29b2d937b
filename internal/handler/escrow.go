package handler

import (
	"errors"
	"net/http"

	"github.com/eabugauch/zenithpay-escrow/internal/audit"
	"github.com/eabugauch/zenithpay-escrow/internal/breaker"
	"github.com/eabugauch/zenithpay-escrow/internal/domain"
	"github.com/eabugauch/zenithpay-escrow/internal/ledger"
)

// EscrowHandler handles HTTP requests for escrow and audit reporting.
type EscrowHandler struct {
	ledger ledger.Repository
	sink   *audit.MemorySink
	reg    *breaker.Registry
}

// NewEscrowHandler creates a new escrow reporting handler.
func NewEscrowHandler(repo ledger.Repository, sink *audit.MemorySink, reg *breaker.Registry) *EscrowHandler {
	return &EscrowHandler{ledger: repo, sink: sink, reg: reg}
}

// Get handles GET /api/escrows/{id} - escrow transaction with its audit trail.
func (h *EscrowHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "intent id is required")
		return
	}

	tx, err := h.ledger.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no escrow transaction for "+id)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response := map[string]any{
		"transaction": tx,
		"audit_trail": h.sink.ByEntity(id),
	}
	writeJSON(w, http.StatusOK, response)
}

// List handles GET /api/escrows - list escrow transactions with an optional
// status filter.
func (h *EscrowHandler) List(w http.ResponseWriter, r *http.Request) {
	status := domain.EscrowStatus(r.URL.Query().Get("status"))
	transactions, err := h.ledger.List(r.Context(), status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response := map[string]any{
		"total":        len(transactions),
		"transactions": transactions,
	}
	writeJSON(w, http.StatusOK, response)
}

// escrowOverview aggregates held-funds totals across the ledger.
type escrowOverview struct {
	TotalTransactions int            `json:"total_transactions"`
	ByStatus          map[string]int `json:"by_status"`
	HeldCents         int64          `json:"held_cents"`
	ReleasedCents     int64          `json:"released_cents"`
	RefundedCents     int64          `json:"refunded_cents"`
	PlatformFeeCents  int64          `json:"platform_fee_cents"`
	DisputedCents     int64          `json:"disputed_cents"`
}

// Overview handles GET /api/escrows/overview - ledger totals by status.
func (h *EscrowHandler) Overview(w http.ResponseWriter, r *http.Request) {
	all, err := h.ledger.List(r.Context(), "")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	overview := escrowOverview{ByStatus: map[string]int{}}
	overview.TotalTransactions = len(all)
	for _, tx := range all {
		overview.ByStatus[string(tx.Status)]++
		overview.RefundedCents += tx.RefundedCents

		switch tx.Status {
		case domain.EscrowHeld, domain.EscrowScheduledRelease:
			overview.HeldCents += tx.AmountCents
		case domain.EscrowReleased:
			overview.ReleasedCents += tx.BusinessPayoutCents
			overview.PlatformFeeCents += tx.PlatformFeeCents
		case domain.EscrowRefunded:
			overview.PlatformFeeCents += tx.PlatformFeeCents
		case domain.EscrowDisputed:
			overview.DisputedCents += tx.AmountCents
		}
	}

	writeJSON(w, http.StatusOK, overview)
}

// AuditEvents handles GET /api/audit/events - list recorded audit entries.
func (h *EscrowHandler) AuditEvents(w http.ResponseWriter, r *http.Request) {
	records := h.sink.Records()
	response := map[string]any{
		"total":  len(records),
		"events": records,
	}
	writeJSON(w, http.StatusOK, response)
}

// Breakers handles GET /api/breakers - circuit breaker states per dependency.
func (h *EscrowHandler) Breakers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"breakers": h.reg.Snapshots(),
	})
}
