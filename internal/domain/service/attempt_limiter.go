package service

import (
	"context"
	"time"
)

// AttemptLimiter bounds how often a keyed action may run.
type AttemptLimiter interface {
	// Allow counts one attempt in a fixed window and reports whether it is
	// within limit.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)

	// Reset forgets the attempts recorded for key.
	Reset(ctx context.Context, key string) error

	// Acquire claims key for the cooldown period. It returns false while a
	// previous claim is still active.
	Acquire(ctx context.Context, key string, cooldown time.Duration) (bool, error)
}
