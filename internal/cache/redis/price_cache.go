package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/lagbot/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each feed's
// latest value is stored as a hash at key "price:{symbol}:{source}" with
// fields "value" and "ts" (Unix nanosecond timestamp).
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func priceKey(symbol string, source domain.Source) string {
	return "price:" + symbol + ":" + string(source)
}

// SetPrice stores the latest value and timestamp for one feed.
func (pc *PriceCache) SetPrice(ctx context.Context, symbol string, source domain.Source, value float64, ts time.Time) error {
	key := priceKey(symbol, source)
	fields := map[string]interface{}{
		"value": strconv.FormatFloat(value, 'f', -1, 64),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := pc.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("redis: set price %s/%s: %w", symbol, source, err)
	}
	return nil
}

// GetPrice retrieves the latest value and timestamp for one feed. It returns
// domain.ErrNotFound when the key does not exist.
func (pc *PriceCache) GetPrice(ctx context.Context, symbol string, source domain.Source) (float64, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(symbol, source)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s/%s: %w", symbol, source, err)
	}
	if len(vals) == 0 {
		return 0, time.Time{}, domain.ErrNotFound
	}

	valueStr, ok := vals["value"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse value %s/%s: %w", symbol, source, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse ts %s/%s: %w", symbol, source, err)
	}

	return value, time.Unix(0, tsNano), nil
}

// GetSymbol retrieves both feed values for a symbol using a pipeline.
// Sources whose keys do not exist are omitted from the result map.
func (pc *PriceCache) GetSymbol(ctx context.Context, symbol string) (map[domain.Source]float64, error) {
	sources := []domain.Source{domain.SourceOracle, domain.SourceImplied}

	pipe := pc.rdb.Pipeline()
	cmds := make(map[domain.Source]*redis.MapStringStringCmd, len(sources))
	for _, src := range sources {
		cmds[src] = pipe.HGetAll(ctx, priceKey(symbol, src))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get symbol %s pipeline: %w", symbol, err)
	}

	result := make(map[domain.Source]float64, len(sources))
	for src, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		valueStr, ok := vals["value"]
		if !ok {
			continue
		}
		value, err := strconv.ParseFloat(valueStr, 64)
		if err != nil {
			continue
		}
		result[src] = value
	}

	return result, nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
