package idempotency

import (
	"context"
	"time"

	"github.com/eabugauch/zenithpay-escrow/internal/domain"
)

// Record is a cached operation result with its expiry.
type Record struct {
	Key       string               `json:"key"`
	Operation string               `json:"operation"`
	Result    domain.PaymentResult `json:"result"`
	CreatedAt time.Time            `json:"created_at"`
	ExpiresAt time.Time            `json:"expires_at"`
}

// Store maps deterministic keys to cached results. A single-instance
// deployment can use the in-memory store; multi-instance deployments back
// it with redis.
type Store interface {
	// Get returns the record for key, or ok=false on a miss. Expired
	// records are misses.
	Get(ctx context.Context, key string) (*Record, bool, error)

	// Put stores a record. An existing record for the same key is kept if
	// the backend supports first-writer-wins semantics.
	Put(ctx context.Context, rec *Record) error
}
