package domain

import "errors"

// Terminal outcomes surfaced to callers as typed errors. They are
// results, not failures: handlers map each to a distinct response so
// a client can decide whether retrying makes sense.
var (
	// ErrNotFound means the entity does not exist, including lookups
	// absorbed by a cached null marker.
	ErrNotFound = errors.New("record not found")

	// ErrNotStarted means the sale window has not opened yet.
	ErrNotStarted = errors.New("seckill has not started")

	// ErrEnded means the sale window is over.
	ErrEnded = errors.New("seckill has ended")

	// ErrOutOfStock means the stock pre-check or the conditional
	// decrement found no units left.
	ErrOutOfStock = errors.New("voucher out of stock")

	// ErrAlreadyPurchased means an order for (user, voucher) already
	// exists.
	ErrAlreadyPurchased = errors.New("user already purchased this voucher")

	// ErrLockTimeout means a mutual-exclusion key stayed contended past
	// the bounded retry budget. Retryable by the caller.
	ErrLockTimeout = errors.New("timed out waiting for lock")
)
