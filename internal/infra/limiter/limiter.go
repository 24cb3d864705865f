// Package limiter implements service.AttemptLimiter over Redis, with an
// in-process fallback for single-instance deployments and tests.
package limiter

import (
	"log/slog"

	"marketplace/internal/domain/service"

	"github.com/redis/go-redis/v9"
)

// NewAttemptLimiter picks the Redis limiter when a client is available.
func NewAttemptLimiter(client *redis.Client, logger *slog.Logger) service.AttemptLimiter {
	if client == nil {
		return NewMemoryLimiter()
	}

	return NewRedisLimiter(client, logger)
}
