package domain

import "time"

// EscrowStatus represents the current state of held funds for a payment.
type EscrowStatus string

const (
	EscrowPendingCapture   EscrowStatus = "pending_capture"   // Intent created, funds not yet reserved
	EscrowHeld             EscrowStatus = "held"              // Gateway confirmed funds reserved
	EscrowScheduledRelease EscrowStatus = "scheduled_release" // Release scheduled, capture pending
	EscrowReleased         EscrowStatus = "released"          // Capture succeeded, funds moved
	EscrowDisputed         EscrowStatus = "disputed"          // Under external dispute resolution
	EscrowCancelled        EscrowStatus = "cancelled"         // Reservation voided
	EscrowRefunded         EscrowStatus = "refunded"          // Funds returned to the customer
)

// Gateway-side payment intent statuses.
const (
	IntentRequiresConfirmation = "requires_confirmation"
	IntentRequiresCapture      = "requires_capture"
	IntentProcessing           = "processing"
	IntentSucceeded            = "succeeded"
	IntentCanceled             = "canceled"
	IntentRefunded             = "refunded"
)

// PaymentIntentParams is the validated input for creating a payment intent.
// Amounts are in minor currency units (cents).
type PaymentIntentParams struct {
	AmountCents        int64      `json:"amount_cents"`
	Currency           string     `json:"currency"`
	BusinessID         string     `json:"business_id"`
	CustomerID         string     `json:"customer_id,omitempty"`
	PaymentMethodID    string     `json:"payment_method_id,omitempty"`
	ServiceID          string     `json:"service_id,omitempty"`
	ReservationID      string     `json:"reservation_id,omitempty"`
	AutomaticCapture   bool       `json:"automatic_capture"`
	EscrowReleaseAt    *time.Time `json:"escrow_release_at,omitempty"`
	PlatformFeePercent *float64   `json:"platform_fee_percent,omitempty"`
}

// ValidationRules are the business bounds a payment intent must satisfy.
type ValidationRules struct {
	MinAmountCents     int64
	MaxAmountCents     int64
	Currencies         []string
	DefaultFeePercent  float64
}

// Validate checks the params against the configured business rules.
func (p PaymentIntentParams) Validate(rules ValidationRules) error {
	if p.BusinessID == "" {
		return &ValidationError{Field: "business_id", Message: "business id is required"}
	}
	if p.AmountCents < rules.MinAmountCents || p.AmountCents > rules.MaxAmountCents {
		return &ValidationError{Field: "amount_cents", Message: "amount is outside the allowed range"}
	}
	supported := false
	for _, c := range rules.Currencies {
		if c == p.Currency {
			supported = true
			break
		}
	}
	if !supported {
		return &ValidationError{Field: "currency", Message: "currency is not supported"}
	}
	if p.PlatformFeePercent != nil && (*p.PlatformFeePercent < 0 || *p.PlatformFeePercent > 100) {
		return &ValidationError{Field: "platform_fee_percent", Message: "fee percent must be between 0 and 100"}
	}
	return nil
}

// FeePercent returns the effective platform fee percentage for these params.
func (p PaymentIntentParams) FeePercent(defaultPercent float64) float64 {
	if p.PlatformFeePercent != nil {
		return *p.PlatformFeePercent
	}
	return defaultPercent
}

// PaymentResult is the outcome of an orchestrated payment operation.
type PaymentResult struct {
	Success             bool   `json:"success"`
	IntentID            string `json:"intent_id"`
	Status              string `json:"status"`
	ClientSecret        string `json:"client_secret,omitempty"`
	PlatformFeeCents    int64  `json:"platform_fee_cents"`
	BusinessAmountCents int64  `json:"business_amount_cents"`
	EscrowEnabled       bool   `json:"escrow_enabled"`
}

// StatusChange is one entry in an escrow transaction's append-only history.
type StatusChange struct {
	Status EscrowStatus `json:"status"`
	At     time.Time    `json:"at"`
	Note   string       `json:"note,omitempty"`
}

// EscrowTransaction records the held-funds lifecycle for a payment intent.
// It is keyed by the gateway's intent reference and is never deleted, only
// status-transitioned.
type EscrowTransaction struct {
	IntentID            string            `json:"intent_id"`
	BusinessID          string            `json:"business_id"`
	CustomerID          string            `json:"customer_id,omitempty"`
	AmountCents         int64             `json:"amount_cents"`
	PlatformFeeCents    int64             `json:"platform_fee_cents"`
	BusinessPayoutCents int64             `json:"business_payout_cents"`
	PlatformFeePercent  float64           `json:"platform_fee_percent"`
	CapturedCents       int64             `json:"captured_cents"`
	RefundedCents       int64             `json:"refunded_cents"`
	Status              EscrowStatus      `json:"status"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
	ScheduledReleaseAt  *time.Time        `json:"scheduled_release_at,omitempty"`
	ReleasedAt          *time.Time        `json:"released_at,omitempty"`
	DisputedAt          *time.Time        `json:"disputed_at,omitempty"`
	History             []StatusChange    `json:"history"`
	Metadata            map[string]string `json:"metadata,omitempty"`
}

// RefundableCents returns how much of this escrow can still be refunded.
// Before capture the reserved amount is the base; after capture the captured
// amount is.
func (t *EscrowTransaction) RefundableCents() int64 {
	base := t.CapturedCents
	if base == 0 {
		base = t.AmountCents
	}
	remaining := base - t.RefundedCents
	if remaining < 0 {
		return 0
	}
	return remaining
}
