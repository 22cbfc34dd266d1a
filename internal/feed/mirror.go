package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/lagbot/internal/domain"
)

// mirrorQueueSize bounds the pending mirror writes.
const mirrorQueueSize = 256

// Mirror forwards observations to the aggregator and mirrors them to the
// external price cache. The aggregator update is synchronous; the cache
// write is queued so a slow or unavailable cache never blocks the feed path.
type Mirror struct {
	log   *slog.Logger
	agg   *Aggregator
	cache domain.PriceCache
	queue chan domain.PriceObservation
}

// NewMirror wraps the aggregator with a cache mirror.
func NewMirror(logger *slog.Logger, agg *Aggregator, cache domain.PriceCache) *Mirror {
	return &Mirror{
		log:   logger.With(slog.String("component", "price_mirror")),
		agg:   agg,
		cache: cache,
		queue: make(chan domain.PriceObservation, mirrorQueueSize),
	}
}

// Update records the observation and queues the cache write.
func (m *Mirror) Update(obs domain.PriceObservation) {
	m.agg.Update(obs)

	select {
	case m.queue <- obs:
	default:
		m.log.Warn("dropping cache mirror write",
			slog.String("symbol", obs.Symbol),
			slog.String("source", string(obs.Source)))
	}
}

// Run drains queued observations into the cache until the context is
// cancelled. Write failures are logged and skipped.
func (m *Mirror) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case obs := <-m.queue:
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := m.cache.SetPrice(writeCtx, obs.Symbol, obs.Source, obs.Value, obs.Timestamp)
			cancel()
			if err != nil {
				m.log.WarnContext(ctx, "cache mirror write failed",
					slog.String("symbol", obs.Symbol),
					slog.String("source", string(obs.Source)),
					slog.String("error", err.Error()))
			}
		}
	}
}
