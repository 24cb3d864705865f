package middleware

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"time"

	"marketplace/config"
	domainerrors "marketplace/internal/domain/errors"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.uber.org/fx"
	"golang.org/x/time/rate"
)

const (
	defaultRequestsPerSecond = 10
	defaultBurst             = 20
	visitorIdleTTL           = 10 * time.Minute
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimitMiddlewareParams holds dependencies for RateLimitMiddleware, injected by Fx.
type RateLimitMiddlewareParams struct {
	fx.In

	Lc     fx.Lifecycle
	Config *config.Config
	Logger *slog.Logger
}

// RateLimitMiddleware throttles requests per client IP with a token bucket.
type RateLimitMiddleware struct {
	enabled bool
	limit   rate.Limit
	burst   int
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	visitors map[string]*visitor
	stop     chan struct{}
}

// NewRateLimitMiddleware builds the limiter and runs an idle-visitor janitor
// for the lifetime of the app.
func NewRateLimitMiddleware(params RateLimitMiddlewareParams) *RateLimitMiddleware {
	m := newRateLimitMiddleware(params.Config.RateLimit, params.Logger)
	if !m.enabled {
		return m
	}

	params.Lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go m.janitor(visitorIdleTTL)

			return nil
		},
		OnStop: func(context.Context) error {
			close(m.stop)

			return nil
		},
	})

	return m
}

func newRateLimitMiddleware(cfg *config.RateLimitConfig, logger *slog.Logger) *RateLimitMiddleware {
	m := &RateLimitMiddleware{
		limit:    defaultRequestsPerSecond,
		burst:    defaultBurst,
		logger:   logger,
		now:      time.Now,
		visitors: make(map[string]*visitor),
		stop:     make(chan struct{}),
	}
	if cfg == nil {
		return m
	}

	m.enabled = cfg.Enabled
	if cfg.RequestsPerSecond > 0 {
		m.limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if cfg.Burst > 0 {
		m.burst = cfg.Burst
	}

	return m
}

// Handle rejects a request with 429 once its IP has exhausted its bucket.
func (m *RateLimitMiddleware) Handle(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !m.enabled {
			return next(c)
		}

		lim := m.limiterFor(c.RealIP())
		if !lim.AllowN(m.now(), 1) {
			retryAfter := max(1, int(math.Ceil(1/float64(m.limit))))
			c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))

			return errors.WithStack(domainerrors.ErrRateLimited)
		}

		return next(c)
	}
}

func (m *RateLimitMiddleware) limiterFor(ip string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(m.limit, m.burst)}
		m.visitors[ip] = v
	}
	v.lastSeen = m.now()

	return v.limiter
}

func (m *RateLimitMiddleware) janitor(idle time.Duration) {
	ticker := time.NewTicker(idle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			if removed := m.evictIdle(idle); removed > 0 {
				m.logger.Debug("Evicted idle rate limit buckets", slog.Int("count", removed))
			}
		}
	}
}

func (m *RateLimitMiddleware) evictIdle(idle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-idle)
	removed := 0
	for ip, v := range m.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(m.visitors, ip)
			removed++
		}
	}

	return removed
}
