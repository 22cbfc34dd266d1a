// Package feed ingests price observations from the oracle and market
// collaborators and exposes the latest comparable state per symbol.
package feed

import (
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/lagbot/internal/domain"
)

// seriesKey identifies one bounded observation buffer.
type seriesKey struct {
	symbol string
	source domain.Source
}

// series is a bounded FIFO of observations for one (symbol, source) pair. It
// carries its own lock so writers on different keys never contend.
type series struct {
	mu  sync.RWMutex
	obs []domain.PriceObservation
}

// Aggregator maintains a bounded time series per (symbol, source) pair and
// answers latest-value and staleness queries. Each key has a single writer by
// construction of the feed topology; readers are unrestricted.
type Aggregator struct {
	log      *slog.Logger
	capacity int
	now      func() time.Time

	mu     sync.RWMutex // guards the series map only, never series contents
	series map[seriesKey]*series
}

// NewAggregator creates an Aggregator whose per-key buffers hold at most
// capacity observations, oldest evicted first.
func NewAggregator(logger *slog.Logger, capacity int) *Aggregator {
	if capacity < 1 {
		capacity = 1
	}
	return &Aggregator{
		log:      logger.With(slog.String("component", "feed_aggregator")),
		capacity: capacity,
		now:      time.Now,
		series:   make(map[seriesKey]*series),
	}
}

// Update appends an observation to its (symbol, source) series. Arrival order
// is authoritative: an observation whose timestamp precedes the newest stored
// one is dropped and logged, never inserted mid-series. Invalid values (NaN,
// Inf, <= 0) are likewise dropped. Update never returns an error.
func (a *Aggregator) Update(obs domain.PriceObservation) {
	if math.IsNaN(obs.Value) || math.IsInf(obs.Value, 0) || obs.Value <= 0 {
		a.log.Warn("dropping invalid observation",
			slog.String("symbol", obs.Symbol),
			slog.String("source", string(obs.Source)),
			slog.Float64("value", obs.Value))
		return
	}

	s := a.getOrCreate(seriesKey{symbol: obs.Symbol, source: obs.Source})

	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.obs); n > 0 && obs.Timestamp.Before(s.obs[n-1].Timestamp) {
		a.log.Warn("dropping out-of-order observation",
			slog.String("symbol", obs.Symbol),
			slog.String("source", string(obs.Source)),
			slog.Time("ts", obs.Timestamp),
			slog.Time("newest", s.obs[n-1].Timestamp))
		return
	}

	s.obs = append(s.obs, obs)
	if overflow := len(s.obs) - a.capacity; overflow > 0 {
		s.obs = append([]domain.PriceObservation(nil), s.obs[overflow:]...)
	}
}

// Latest returns the most recent observation for the pair, or false when the
// series is empty.
func (a *Aggregator) Latest(symbol string, source domain.Source) (domain.PriceObservation, bool) {
	s := a.get(seriesKey{symbol: symbol, source: source})
	if s == nil {
		return domain.PriceObservation{}, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.obs) == 0 {
		return domain.PriceObservation{}, false
	}
	return s.obs[len(s.obs)-1], true
}

// IsStale reports whether the pair has no observation at all or its newest one
// is older than maxAge.
func (a *Aggregator) IsStale(symbol string, source domain.Source, maxAge time.Duration) bool {
	obs, ok := a.Latest(symbol, source)
	if !ok {
		return true
	}
	return obs.IsStale(a.now(), maxAge)
}

// History returns a copy of the retained observations for the pair, oldest
// first. The returned slice is safe to mutate.
func (a *Aggregator) History(symbol string, source domain.Source) []domain.PriceObservation {
	s := a.get(seriesKey{symbol: symbol, source: source})
	if s == nil {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.obs) == 0 {
		return nil
	}
	out := make([]domain.PriceObservation, len(s.obs))
	copy(out, s.obs)
	return out
}

// Stats summarizes the retained window for the pair: count, mean, and
// population standard deviation of the values.
func (a *Aggregator) Stats(symbol string, source domain.Source) domain.SeriesStats {
	s := a.get(seriesKey{symbol: symbol, source: source})
	if s == nil {
		return domain.SeriesStats{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.obs)
	if n == 0 {
		return domain.SeriesStats{}
	}

	var sum float64
	for _, o := range s.obs {
		sum += o.Value
	}
	mean := sum / float64(n)

	var variance float64
	if n > 1 {
		for _, o := range s.obs {
			d := o.Value - mean
			variance += d * d
		}
		variance /= float64(n)
	}

	return domain.SeriesStats{
		Count:  n,
		Mean:   mean,
		StdDev: math.Sqrt(variance),
		Newest: s.obs[n-1].Timestamp,
		Oldest: s.obs[0].Timestamp,
	}
}

// Status returns a point-in-time view of every tracked series, sorted by
// symbol then source, for the query surface.
func (a *Aggregator) Status(maxAge time.Duration) []domain.FeedStatus {
	a.mu.RLock()
	keys := make([]seriesKey, 0, len(a.series))
	for k := range a.series {
		keys = append(keys, k)
	}
	a.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].symbol != keys[j].symbol {
			return keys[i].symbol < keys[j].symbol
		}
		return keys[i].source < keys[j].source
	})

	now := a.now()
	out := make([]domain.FeedStatus, 0, len(keys))
	for _, k := range keys {
		st := domain.FeedStatus{Symbol: k.symbol, Source: k.source, Stale: true}
		if obs, ok := a.Latest(k.symbol, k.source); ok {
			stats := a.Stats(k.symbol, k.source)
			st.Count = stats.Count
			st.LastValue = obs.Value
			st.LastUpdate = obs.Timestamp
			st.AgeSeconds = now.Sub(obs.Timestamp).Seconds()
			st.Stale = obs.IsStale(now, maxAge)
		}
		out = append(out, st)
	}
	return out
}

// get returns the series for key or nil.
func (a *Aggregator) get(k seriesKey) *series {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.series[k]
}

// getOrCreate returns the series for key, creating it on first use.
func (a *Aggregator) getOrCreate(k seriesKey) *series {
	a.mu.RLock()
	s := a.series[k]
	a.mu.RUnlock()
	if s != nil {
		return s
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if s = a.series[k]; s == nil {
		s = &series{}
		a.series[k] = s
	}
	return s
}
