package port

import "context"

// CacheRepository is the read-side stock cache plus idempotency keys. The
// database stays authoritative; every cache operation is advisory and callers
// degrade to database-only behaviour when the cache is down.
type CacheRepository interface {
	// DecrementStock atomically decreases cached stock, returns false if
	// insufficient. Unknown products decrement nothing and return true so a
	// cold cache never rejects a sale the database would accept.
	DecrementStock(ctx context.Context, productID int64, quantity int) (bool, error)

	// IncrementStock restores cached stock (rollback on failure, cancellation).
	IncrementStock(ctx context.Context, productID int64, quantity int) error

	// SetStock overwrites the cached counter with the authoritative value.
	SetStock(ctx context.Context, productID int64, quantity int) error

	// GetStock returns the cached counter; ok is false on a miss.
	GetStock(ctx context.Context, productID int64) (int, bool, error)

	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency removes a key so a failed request may be retried.
	ReleaseIdempotency(ctx context.Context, key string) error
}
