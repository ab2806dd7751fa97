package rate

import (
	"context"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryLimiter: mismo fixed window que RedisLimiter pero en proceso.
// Sirve para una sola réplica o cuando no hay Redis configurado.
type MemoryLimiter struct {
	c      *gocache.Cache
	max    int64
	window time.Duration
	now    func() time.Time
}

func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &MemoryLimiter{
		c:      gocache.New(window, 2*window),
		max:    int64(max),
		window: window,
		now:    time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	now := l.now().UTC()
	winStart := now.Truncate(l.window)
	k := fmt.Sprintf("%s:%d", strings.ReplaceAll(key, " ", "_"), winStart.Unix())
	ttl := winStart.Add(l.window).Sub(now)

	// Add falla si ya existe: en ese caso incrementamos de forma atómica.
	hits := int64(1)
	if err := l.c.Add(k, int64(1), l.window); err != nil {
		n, err := l.c.IncrementInt64(k, 1)
		if err != nil {
			return Result{}, fmt.Errorf("rate: memory: %w", err)
		}
		hits = n
	}
	return newResult(hits, l.max, ttl), nil
}
