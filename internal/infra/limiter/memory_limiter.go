package limiter

import (
	"context"
	"maps"
	"sync"
	"time"

	"marketplace/internal/domain/service"
)

type window struct {
	count   int
	resetAt time.Time
}

// pruneInterval bounds how often elapsed windows and cooldowns are dropped.
const pruneInterval = time.Minute

type memoryLimiter struct {
	mu        sync.Mutex
	windows   map[string]*window
	cooldowns map[string]time.Time
	now       func() time.Time
	nextPrune time.Time
}

// NewMemoryLimiter keeps counters in process memory.
func NewMemoryLimiter() service.AttemptLimiter {
	return newMemoryLimiter(time.Now)
}

func newMemoryLimiter(now func() time.Time) *memoryLimiter {
	return &memoryLimiter{
		windows:   make(map[string]*window),
		cooldowns: make(map[string]time.Time),
		now:       now,
	}
}

func (l *memoryLimiter) Allow(_ context.Context, key string, limit int, d time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)

	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(d)}
		l.windows[key] = w
	}
	w.count++

	return w.count <= limit, nil
}

func (l *memoryLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	delete(l.windows, key)
	l.mu.Unlock()

	return nil
}

func (l *memoryLimiter) Acquire(_ context.Context, key string, cooldown time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)

	if until, ok := l.cooldowns[key]; ok && now.Before(until) {
		return false, nil
	}
	l.cooldowns[key] = now.Add(cooldown)

	return true, nil
}

// pruneLocked drops entries whose window or cooldown has elapsed. Callers
// hold l.mu.
func (l *memoryLimiter) pruneLocked(now time.Time) {
	if now.Before(l.nextPrune) {
		return
	}
	l.nextPrune = now.Add(pruneInterval)

	maps.DeleteFunc(l.windows, func(_ string, w *window) bool {
		return !now.Before(w.resetAt)
	})
	maps.DeleteFunc(l.cooldowns, func(_ string, until time.Time) bool {
		return !now.Before(until)
	})
}
