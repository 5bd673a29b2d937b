// Package ledger records each payment's held-funds lifecycle.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/eabugauch/zenithpay-escrow/internal/domain"
)

// ErrNotFound is returned when no escrow transaction exists for an intent.
var ErrNotFound = errors.New("escrow transaction not found")

// Repository stores escrow transactions keyed by gateway intent reference.
// Transactions are never deleted, only status-transitioned.
type Repository interface {
	Get(ctx context.Context, intentID string) (*domain.EscrowTransaction, error)
	Create(ctx context.Context, tx *domain.EscrowTransaction) error
	Update(ctx context.Context, tx *domain.EscrowTransaction) error

	// List returns all transactions, optionally filtered by status, newest
	// first.
	List(ctx context.Context, status domain.EscrowStatus) ([]*domain.EscrowTransaction, error)

	// ListDueReleases returns scheduled-release transactions whose release
	// time is at or before now.
	ListDueReleases(ctx context.Context, now time.Time) ([]*domain.EscrowTransaction, error)
}
