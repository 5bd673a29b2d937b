// Package idempotency deduplicates operations with identical semantic
// intent within a time window.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/eabugauch/zenithpay-escrow/internal/domain"
)

const (
	// DefaultTTL is how long a cached result answers duplicate requests.
	DefaultTTL = 24 * time.Hour

	// keyBucket coarsens the timestamp so client retries within the window
	// derive the same key.
	keyBucket = 5 * time.Minute
)

// Key derives a deterministic idempotency key for a payment-intent
// operation. Identical semantic inputs within the same five-minute bucket
// produce the same key; any change to amount, currency, business, customer
// or payment method changes it.
func Key(operation string, p domain.PaymentIntentParams, at time.Time) string {
	bucket := at.UTC().Truncate(keyBucket).Unix()
	payload := fmt.Sprintf("%s|%d|%s|%s|%s|%s|%t|%d",
		operation,
		p.AmountCents,
		p.Currency,
		p.BusinessID,
		p.CustomerID,
		p.PaymentMethodID,
		p.AutomaticCapture,
		bucket,
	)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
