package port

import "context"

// Locker serializes work on one key (a loan id or a borrower) across callers.
type Locker interface {
	// Lock blocks until the key is held or ctx is done; unlock must be called exactly once
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type IdempotencyStore interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)
}
