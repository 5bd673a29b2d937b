package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/eabugauch/zenithpay-escrow/internal/domain"
)

// MemoryRepository provides thread-safe in-memory storage for escrow
// transactions. Suited to tests and single-instance demo deployments.
type MemoryRepository struct {
	mu           sync.RWMutex
	transactions map[string]*domain.EscrowTransaction
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		transactions: make(map[string]*domain.EscrowTransaction),
	}
}

func (r *MemoryRepository) Get(ctx context.Context, intentID string) (*domain.EscrowTransaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tx, ok := r.transactions[intentID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyTransaction(tx), nil
}

func (r *MemoryRepository) Create(ctx context.Context, tx *domain.EscrowTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.transactions[tx.IntentID]; ok {
		return fmt.Errorf("escrow transaction %s already exists", tx.IntentID)
	}
	r.transactions[tx.IntentID] = copyTransaction(tx)
	return nil
}

func (r *MemoryRepository) Update(ctx context.Context, tx *domain.EscrowTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.transactions[tx.IntentID]; !ok {
		return ErrNotFound
	}
	r.transactions[tx.IntentID] = copyTransaction(tx)
	return nil
}

func (r *MemoryRepository) List(ctx context.Context, status domain.EscrowStatus) ([]*domain.EscrowTransaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*domain.EscrowTransaction
	for _, tx := range r.transactions {
		if status == "" || tx.Status == status {
			result = append(result, copyTransaction(tx))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (r *MemoryRepository) ListDueReleases(ctx context.Context, now time.Time) ([]*domain.EscrowTransaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*domain.EscrowTransaction
	for _, tx := range r.transactions {
		if tx.Status == domain.EscrowScheduledRelease &&
			tx.ScheduledReleaseAt != nil &&
			!tx.ScheduledReleaseAt.After(now) {
			result = append(result, copyTransaction(tx))
		}
	}
	return result, nil
}

// copyTransaction returns a deep copy so callers cannot mutate stored state
// without going through Update.
func copyTransaction(tx *domain.EscrowTransaction) *domain.EscrowTransaction {
	copied := *tx
	if tx.History != nil {
		copied.History = make([]domain.StatusChange, len(tx.History))
		copy(copied.History, tx.History)
	}
	if tx.Metadata != nil {
		copied.Metadata = make(map[string]string, len(tx.Metadata))
		for k, v := range tx.Metadata {
			copied.Metadata[k] = v
		}
	}
	return &copied
}
