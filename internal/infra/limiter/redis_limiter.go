package limiter

import (
	"context"
	"log/slog"
	"time"

	"marketplace/internal/domain/service"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "marketplace:limit:"

type redisLimiter struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisLimiter counts attempts in fixed windows. Redis failures fail open:
// the attempt is allowed and the error is logged.
func NewRedisLimiter(client *redis.Client, logger *slog.Logger) service.AttemptLimiter {
	return &redisLimiter{client: client, logger: logger}
}

func (l *redisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	k := keyPrefix + key

	// The window key is created with its TTL in the same MULTI as the
	// increment, so a counter can never outlive its window.
	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, k, 0, window)
		incr = pipe.Incr(ctx, k)

		return nil
	})
	if err != nil {
		l.logger.WarnContext(ctx, "Attempt limiter unavailable", slog.String("key", key), slog.Any("error", err))

		return true, nil
	}

	return incr.Val() <= int64(limit), nil
}

func (l *redisLimiter) Reset(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		l.logger.WarnContext(ctx, "Attempt limiter reset failed", slog.String("key", key), slog.Any("error", err))
	}

	return nil
}

func (l *redisLimiter) Acquire(ctx context.Context, key string, cooldown time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, keyPrefix+"cooldown:"+key, 1, cooldown).Result()
	if err != nil {
		l.logger.WarnContext(ctx, "Cooldown check unavailable", slog.String("key", key), slog.Any("error", err))

		return true, nil
	}

	return ok, nil
}
