package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/eabugauch/zenithpay-escrow/internal/ledger"
)

// Releaser runs a background loop that captures escrows whose scheduled
// release time has arrived.
type Releaser struct {
	orchestrator *Orchestrator
	ledger       ledger.Repository
	interval     time.Duration
	logger       *slog.Logger
}

// NewReleaser creates a background escrow releaser.
func NewReleaser(o *Orchestrator, repo ledger.Repository, interval time.Duration, logger *slog.Logger) *Releaser {
	return &Releaser{
		orchestrator: o,
		ledger:       repo,
		interval:     interval,
		logger:       logger,
	}
}

// Start begins the release loop. It checks for due releases at the
// configured interval until ctx is cancelled.
func (r *Releaser) Start(ctx context.Context) {
	r.logger.Info("escrow releaser started", "interval", r.interval)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("escrow releaser stopped")
			return
		case <-ticker.C:
			r.processDue(ctx)
		}
	}
}

func (r *Releaser) processDue(ctx context.Context) {
	due, err := r.ledger.ListDueReleases(ctx, time.Now().UTC())
	if err != nil {
		r.logger.Error("listing due releases failed", "error", err)
		return
	}

	for _, tx := range due {
		r.logger.Info("processing scheduled release",
			"intent_id", tx.IntentID,
			"scheduled_for", tx.ScheduledReleaseAt,
		)
		if _, err := r.orchestrator.ProcessEscrowRelease(ctx, Caller{UserID: "system"}, tx.IntentID); err != nil {
			r.logger.Error("scheduled release failed",
				"intent_id", tx.IntentID,
				"error", err,
			)
		}
	}
}
