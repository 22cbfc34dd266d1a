// Package lag computes the divergence between the oracle and market-implied
// feeds for one symbol.
package lag

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/alanyoungcy/lagbot/internal/domain"
)

// epsilon guards the percentage-difference division against a zero or
// near-zero implied value.
const epsilon = 1e-6

// FeedView is the read side of the aggregator the detector needs.
type FeedView interface {
	Latest(symbol string, source domain.Source) (domain.PriceObservation, bool)
}

// Detector derives DivergenceReadings from the latest pair of observations.
// It holds no state of its own; every Evaluate reads the aggregator fresh.
type Detector struct {
	log    *slog.Logger
	feeds  FeedView
	maxAge time.Duration
	now    func() time.Time
}

// NewDetector creates a Detector. maxAge is the staleness bound beyond which a
// single silent feed makes the pair unusable.
func NewDetector(logger *slog.Logger, feeds FeedView, maxAge time.Duration) *Detector {
	return &Detector{
		log:    logger.With(slog.String("component", "lag_detector")),
		feeds:  feeds,
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Evaluate compares the latest oracle and implied observations for symbol.
//
// It fails with domain.ErrInsufficientData when either feed has no
// observation, when exactly one of the two is stale beyond the configured
// bound, or when the implied value is too close to zero to divide by. When
// BOTH feeds are stale the reading is still produced, with each observation's
// confidence attenuated by its staleness, so downstream scoring discounts a
// quiet market instead of going blind.
func (d *Detector) Evaluate(symbol string) (domain.DivergenceReading, error) {
	oracle, ok := d.feeds.Latest(symbol, domain.SourceOracle)
	if !ok {
		return domain.DivergenceReading{}, fmt.Errorf("lag: no oracle observation for %s: %w", symbol, domain.ErrInsufficientData)
	}
	implied, ok := d.feeds.Latest(symbol, domain.SourceImplied)
	if !ok {
		return domain.DivergenceReading{}, fmt.Errorf("lag: no implied observation for %s: %w", symbol, domain.ErrInsufficientData)
	}

	now := d.now()
	oracleStale := oracle.IsStale(now, d.maxAge)
	impliedStale := implied.IsStale(now, d.maxAge)

	switch {
	case oracleStale && !impliedStale:
		return domain.DivergenceReading{}, fmt.Errorf("lag: oracle feed stale for %s (age %.1fs, bound %.1fs): %w",
			symbol, oracle.Age(now).Seconds(), d.maxAge.Seconds(), domain.ErrInsufficientData)
	case impliedStale && !oracleStale:
		return domain.DivergenceReading{}, fmt.Errorf("lag: implied feed stale for %s (age %.1fs, bound %.1fs): %w",
			symbol, implied.Age(now).Seconds(), d.maxAge.Seconds(), domain.ErrInsufficientData)
	}

	if implied.Value < epsilon {
		return domain.DivergenceReading{}, fmt.Errorf("lag: implied value %g for %s below epsilon: %w",
			symbol, implied.Value, domain.ErrInsufficientData)
	}

	oracleConf := oracle.Confidence
	impliedConf := implied.Confidence
	if oracleStale && impliedStale {
		oracleConf = attenuate(oracleConf, d.maxAge, oracle.Age(now))
		impliedConf = attenuate(impliedConf, d.maxAge, implied.Age(now))
		d.log.Debug("both feeds stale, discounting confidence",
			slog.String("symbol", symbol),
			slog.Float64("oracle_conf", oracleConf),
			slog.Float64("implied_conf", impliedConf))
	}

	return domain.DivergenceReading{
		Symbol:            symbol,
		OracleValue:       oracle.Value,
		ImpliedValue:      implied.Value,
		OracleTime:        oracle.Timestamp,
		ImpliedTime:       implied.Timestamp,
		OracleConfidence:  oracleConf,
		ImpliedConfidence: impliedConf,
		LagSeconds:        math.Abs(oracle.Timestamp.Sub(implied.Timestamp).Seconds()),
		PctDiff:           (oracle.Value - implied.Value) / implied.Value * 100,
	}, nil
}

// attenuate scales a confidence by how far past the staleness bound the
// observation is: exactly at the bound keeps full confidence, twice the bound
// halves it.
func attenuate(conf float64, maxAge, age time.Duration) float64 {
	if age <= maxAge {
		return conf
	}
	scaled := conf * maxAge.Seconds() / age.Seconds()
	if scaled < 0 {
		return 0
	}
	if scaled > 1 {
		return 1
	}
	return scaled
}
