package seed

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/eabugauch/zenithpay-escrow/internal/domain"
	"github.com/eabugauch/zenithpay-escrow/internal/orchestrator"
)

var (
	currencies = []string{"USD", "EUR", "MXN", "BRL"}
	// Currency weights roughly matching marketplace traffic.
	currencyWeights = []float64{0.45, 0.20, 0.20, 0.15}

	businesses = []string{"biz_walktours", "biz_cityspa", "biz_surfschool", "biz_petcare", "biz_homechef"}
	services   = []string{"svc_standard", "svc_premium", "svc_lastminute"}
)

// Outcome tallies what a seed run produced.
type Outcome struct {
	Created   int `json:"created"`
	Confirmed int `json:"confirmed"`
	Captured  int `json:"captured"`
	Scheduled int `json:"scheduled"`
	Refunded  int `json:"refunded"`
	Disputed  int `json:"disputed"`
	Cancelled int `json:"cancelled"`
	Failed    int `json:"failed"`
}

// GenerateParams creates a realistic batch of payment intent params.
func GenerateParams(count int, seed int64) []domain.PaymentIntentParams {
	rng := rand.New(rand.NewSource(seed))
	params := make([]domain.PaymentIntentParams, 0, count)

	for i := 0; i < count; i++ {
		amount := int64(1000 + rng.Intn(99000)) // $10 - $1000
		p := domain.PaymentIntentParams{
			AmountCents:   amount,
			Currency:      weightedChoice(rng, currencies, currencyWeights),
			BusinessID:    businesses[rng.Intn(len(businesses))],
			CustomerID:    fmt.Sprintf("cus_%06d", rng.Intn(5000)+1),
			ServiceID:     services[rng.Intn(len(services))],
			ReservationID: fmt.Sprintf("res_%06d", i+1),
		}
		// A slice of direct payments bypasses escrow entirely.
		if rng.Float64() < 0.15 {
			p.AutomaticCapture = true
		}
		params = append(params, p)
	}
	return params
}

// Run drives a batch of seeded payments through realistic lifecycles:
// most get confirmed, and confirmed escrows are captured, scheduled,
// refunded, disputed or cancelled in marketplace-like proportions.
func Run(ctx context.Context, orch *orchestrator.Orchestrator, params []domain.PaymentIntentParams, seed int64, logger *slog.Logger) Outcome {
	rng := rand.New(rand.NewSource(seed))
	caller := orchestrator.Caller{UserID: "seed"}
	var out Outcome

	for _, p := range params {
		res, err := orch.CreatePaymentIntent(ctx, caller, p)
		if err != nil {
			logger.Warn("seed create failed", "business_id", p.BusinessID, "error", err)
			out.Failed++
			continue
		}
		out.Created++

		if rng.Float64() < 0.10 {
			continue // abandoned before confirmation
		}
		if _, err := orch.ConfirmPayment(ctx, caller, res.IntentID, "pm_seed"); err != nil {
			out.Failed++
			continue
		}
		out.Confirmed++
		if p.AutomaticCapture {
			continue
		}

		switch roll := rng.Float64(); {
		case roll < 0.45:
			if _, err := orch.CapturePayment(ctx, caller, res.IntentID, 0); err != nil {
				out.Failed++
				continue
			}
			out.Captured++
			if rng.Float64() < 0.20 {
				refund := p.AmountCents / int64(2+rng.Intn(3))
				if _, err := orch.ProcessRefund(ctx, caller, res.IntentID, refund, "customer request"); err == nil {
					out.Refunded++
				}
			}
		case roll < 0.60:
			releaseAt := time.Now().Add(time.Duration(1+rng.Intn(72)) * time.Hour)
			if _, err := orch.ScheduleEscrowRelease(ctx, caller, res.IntentID, releaseAt); err == nil {
				out.Scheduled++
			}
		case roll < 0.70:
			if _, err := orch.HandleEscrowDispute(ctx, caller, res.IntentID, "service quality dispute"); err == nil {
				out.Disputed++
			}
		case roll < 0.80:
			if _, err := orch.CancelPayment(ctx, caller, res.IntentID, "reservation cancelled"); err == nil {
				out.Cancelled++
			}
		default:
			// Remaining escrows stay held.
		}
	}
	return out
}

func weightedChoice(rng *rand.Rand, items []string, weights []float64) string {
	total := 0.0
	for _, w := range weights {
		total += w
	}

	r := rng.Float64() * total
	cumulative := 0.0
	for i, w := range weights {
		cumulative += w
		if r <= cumulative {
			return items[i]
		}
	}
	return items[len(items)-1]
}
