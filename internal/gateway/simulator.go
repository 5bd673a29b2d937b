package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/eabugauch/zenithpay-escrow/internal/domain"
)

// Simulator is an in-memory gateway with configurable failure injection,
// used in tests and demo deployments.
type Simulator struct {
	mu          sync.Mutex
	rng         *rand.Rand
	intents     map[string]*simIntent
	seq         int
	failureRate float64
	declineRate float64
}

type simIntent struct {
	status           string
	amountCents      int64
	currency         string
	capturedCents    int64
	refundedCents    int64
	automaticCapture bool
}

// NewSimulator creates a simulator with a deterministic seed and no
// injected failures.
func NewSimulator(seed int64) *Simulator {
	return &Simulator{
		rng:     rand.New(rand.NewSource(seed)),
		intents: make(map[string]*simIntent),
	}
}

// SetFailureRate injects transient failures on the given fraction of calls.
func (s *Simulator) SetFailureRate(rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failureRate = rate
}

// SetDeclineRate injects hard declines on the given fraction of calls.
// Declines are permanent; the retry executor must not retry them.
func (s *Simulator) SetDeclineRate(rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.declineRate = rate
}

func (s *Simulator) Name() string { return "simulator" }

func (s *Simulator) CreateIntent(ctx context.Context, req CreateIntentRequest) (*Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.maybeFail(); err != nil {
		return nil, err
	}

	s.seq++
	id := fmt.Sprintf("pi_sim_%06d", s.seq)
	intent := &simIntent{
		status:           domain.IntentRequiresConfirmation,
		amountCents:      req.AmountCents,
		currency:         req.Currency,
		automaticCapture: req.AutomaticCapture,
	}
	s.intents[id] = intent

	return &Outcome{
		IntentID:     id,
		Status:       intent.status,
		ClientSecret: fmt.Sprintf("%s_secret_%08x", id, s.rng.Uint32()),
		AmountCents:  req.AmountCents,
	}, nil
}

func (s *Simulator) ConfirmIntent(ctx context.Context, intentID, paymentMethodID string) (*Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.maybeFail(); err != nil {
		return nil, err
	}
	intent, err := s.intent(intentID)
	if err != nil {
		return nil, err
	}
	if intent.status != domain.IntentRequiresConfirmation {
		return nil, invalidState(intentID, intent.status)
	}

	if intent.automaticCapture {
		intent.status = domain.IntentSucceeded
		intent.capturedCents = intent.amountCents
	} else {
		intent.status = domain.IntentRequiresCapture
	}
	return &Outcome{IntentID: intentID, Status: intent.status, AmountCents: intent.amountCents}, nil
}

func (s *Simulator) CaptureIntent(ctx context.Context, intentID string, amountCents int64) (*Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.maybeFail(); err != nil {
		return nil, err
	}
	intent, err := s.intent(intentID)
	if err != nil {
		return nil, err
	}
	if intent.status != domain.IntentRequiresCapture {
		return nil, invalidState(intentID, intent.status)
	}
	if amountCents <= 0 || amountCents > intent.amountCents {
		return nil, &domain.ProcessingError{
			Code:    "invalid_capture_amount",
			Message: fmt.Sprintf("cannot capture %d of %d", amountCents, intent.amountCents),
		}
	}

	intent.status = domain.IntentSucceeded
	intent.capturedCents = amountCents
	return &Outcome{IntentID: intentID, Status: intent.status, AmountCents: amountCents}, nil
}

func (s *Simulator) CancelIntent(ctx context.Context, intentID, reason string) (*Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.maybeFail(); err != nil {
		return nil, err
	}
	intent, err := s.intent(intentID)
	if err != nil {
		return nil, err
	}
	if intent.status == domain.IntentSucceeded || intent.status == domain.IntentRefunded {
		return nil, invalidState(intentID, intent.status)
	}

	intent.status = domain.IntentCanceled
	return &Outcome{IntentID: intentID, Status: intent.status}, nil
}

func (s *Simulator) CreateRefund(ctx context.Context, intentID string, amountCents int64, reason string) (*Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.maybeFail(); err != nil {
		return nil, err
	}
	intent, err := s.intent(intentID)
	if err != nil {
		return nil, err
	}

	refundable := intent.capturedCents
	if refundable == 0 {
		refundable = intent.amountCents
	}
	if amountCents <= 0 || amountCents > refundable-intent.refundedCents {
		return nil, &domain.ProcessingError{
			Code:    "invalid_refund_amount",
			Message: fmt.Sprintf("cannot refund %d, %d remaining", amountCents, refundable-intent.refundedCents),
		}
	}

	intent.refundedCents += amountCents
	intent.status = domain.IntentRefunded
	return &Outcome{IntentID: intentID, Status: intent.status, AmountCents: amountCents}, nil
}

// maybeFail rolls the injected failure rates. Callers must hold s.mu.
func (s *Simulator) maybeFail() error {
	if s.declineRate > 0 && s.rng.Float64() < s.declineRate {
		return &domain.ProcessingError{Code: "card_declined", Message: "card was declined"}
	}
	if s.failureRate <= 0 {
		return nil
	}
	if s.rng.Float64() >= s.failureRate {
		return nil
	}
	// Alternate between the two transient failure modes real gateways show.
	if s.rng.Intn(2) == 0 {
		return &domain.ProcessingError{Code: "rate_limited", Message: "too many requests", Retryable: true}
	}
	return &domain.ProcessingError{Code: "gateway_timeout", Message: "upstream timed out", Retryable: true}
}

func (s *Simulator) intent(intentID string) (*simIntent, error) {
	intent, ok := s.intents[intentID]
	if !ok {
		return nil, &domain.ProcessingError{
			Code:    "intent_not_found",
			Message: fmt.Sprintf("no payment intent %s", intentID),
		}
	}
	return intent, nil
}

func invalidState(intentID, status string) error {
	return &domain.ProcessingError{
		Code:    "invalid_intent_state",
		Message: fmt.Sprintf("intent %s is %s", intentID, status),
	}
}
