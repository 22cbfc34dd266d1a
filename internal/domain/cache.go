package domain

import (
	"context"
	"time"
)

// PriceCache mirrors the latest observation per (symbol, source) for external
// readers. The in-process aggregator stays authoritative; the cache is a
// best-effort live view.
type PriceCache interface {
	SetPrice(ctx context.Context, symbol string, source Source, value float64, ts time.Time) error
	GetPrice(ctx context.Context, symbol string, source Source) (float64, time.Time, error)
	GetSymbol(ctx context.Context, symbol string) (map[Source]float64, error)
}

// EventRelay publishes serialized core events to out-of-process subscribers.
type EventRelay interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// LockManager hands out distributed locks so daily jobs run once across
// instances. Acquire returns ErrLockHeld when another holder has the key.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter answers whether one more hit on key fits inside limit per
// window. Implementations should fail open on backend errors.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
