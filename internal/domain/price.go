// Package domain holds the core types shared across the lagbot: price
// observations, divergence readings, signals, proposals, positions, and the
// interfaces its collaborators implement.
package domain

import "time"

// Source names a price feed origin.
type Source string

const (
	// SourceOracle is the reference feed (Chainlink or equivalent).
	SourceOracle Source = "oracle"
	// SourceImplied is the feed derived from prediction-market odds.
	SourceImplied Source = "implied"
)

// PriceObservation is a single timestamped price from one source. Immutable
// once created.
type PriceObservation struct {
	Symbol     string
	Source     Source
	Value      float64
	Confidence float64 // [0,1], the source's own trust in this value
	Timestamp  time.Time
}

// Age returns how old the observation is relative to now.
func (o PriceObservation) Age(now time.Time) time.Duration {
	return now.Sub(o.Timestamp)
}

// IsStale reports whether the observation is older than maxAge relative to now.
func (o PriceObservation) IsStale(now time.Time, maxAge time.Duration) bool {
	return o.Age(now) > maxAge
}

// DivergenceReading compares the latest oracle and implied observations for one
// symbol. Derived on demand, never stored.
type DivergenceReading struct {
	Symbol            string
	OracleValue       float64
	ImpliedValue      float64
	OracleTime        time.Time
	ImpliedTime       time.Time
	OracleConfidence  float64 // attenuated when the observation was stale
	ImpliedConfidence float64
	LagSeconds        float64 // |oracle_time - implied_time|
	PctDiff           float64 // (oracle - implied) / implied * 100
}

// SeriesStats summarizes a feed series over its retained window.
type SeriesStats struct {
	Count  int
	Mean   float64
	StdDev float64
	// Newest and Oldest are zero when Count is 0.
	Newest time.Time
	Oldest time.Time
}

// FeedStatus is a point-in-time view of one (symbol, source) series for the
// query surface.
type FeedStatus struct {
	Symbol     string
	Source     Source
	Count      int
	LastValue  float64
	LastUpdate time.Time
	AgeSeconds float64
	Stale      bool
}
