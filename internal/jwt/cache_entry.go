package jwt

import "time"

// DefaultTTL se usa cuando el caller no pasa TTL.
const DefaultTTL = 600 * time.Second

// CacheEntry es un valor con su momento de carga y vigencia.
type CacheEntry[T any] struct {
	Value     T
	FetchedAt time.Time
	TTL       time.Duration
}

// Fresh: now < FetchedAt+TTL.
func (e CacheEntry[T]) Fresh(now time.Time) bool {
	return now.Before(e.FetchedAt.Add(e.TTL))
}

// Age tiempo desde la carga.
func (e CacheEntry[T]) Age(now time.Time) time.Duration {
	return now.Sub(e.FetchedAt)
}
