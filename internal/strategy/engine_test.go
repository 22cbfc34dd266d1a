package strategy

import (
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/alanyoungcy/lagbot/internal/config"
	"github.com/alanyoungcy/lagbot/internal/domain"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine() *Engine {
	cfg := config.Defaults()
	return NewEngine(slog.New(slog.NewTextHandler(io.Discard, nil)), &cfg)
}

// reading builds a divergence with full oracle confidence.
func reading(pctDiff, lagSeconds float64) domain.DivergenceReading {
	implied := 100000.0
	return domain.DivergenceReading{
		Symbol:            "BTC",
		OracleValue:       implied * (1 + pctDiff/100),
		ImpliedValue:      implied,
		OracleTime:        base,
		ImpliedTime:       base.Add(-time.Duration(lagSeconds * float64(time.Second))),
		OracleConfidence:  1.0,
		ImpliedConfidence: 0.9,
		LagSeconds:        lagSeconds,
		PctDiff:           pctDiff,
	}
}

func TestScoreOracleLeadsImplied(t *testing.T) {
	// Oracle moved 100,000 -> 100,800 while the implied feed is 12s behind.
	e := newTestEngine()

	sig := e.Score(reading(0.8, 12), 10000)

	if sig.Direction != domain.DirectionBuyUp {
		t.Fatalf("direction = %v, want buy_up", sig.Direction)
	}
	if sig.Strength < domain.StrengthModerate {
		t.Fatalf("strength = %v, want at least moderate", sig.Strength)
	}
	if math.Abs(sig.ProbGap-0.08) > 1e-9 {
		t.Fatalf("prob gap = %v, want 0.08", sig.ProbGap)
	}
	// lag 12/30*0.30 + gap 0.08/0.2*0.35 + oracle 1.0*0.20 + liq 1.0*0.15
	if math.Abs(sig.Confidence-0.61) > 1e-9 {
		t.Fatalf("confidence = %v, want 0.61", sig.Confidence)
	}
	if !sig.Actionable {
		t.Fatal("signal must be actionable at default thresholds")
	}
	// 100 * 0.61 * 0.5 (moderate multiplier)
	if math.Abs(sig.RecommendedUSD-30.5) > 1e-9 {
		t.Fatalf("size = %v, want 30.5", sig.RecommendedUSD)
	}
	if math.Abs(sig.ExpectedEdgePct-6.0) > 1e-9 {
		t.Fatalf("edge = %v, want 6.0", sig.ExpectedEdgePct)
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	e := newTestEngine()
	r := reading(1.3, 17)

	a := e.Score(r, 7500)
	b := e.Score(r, 7500)
	if a != b {
		t.Fatalf("identical inputs must yield identical signals:\n%+v\n%+v", a, b)
	}
}

func TestScoreRejectsShortLag(t *testing.T) {
	e := newTestEngine()

	sig := e.Score(reading(0.8, 5), 10000) // below the 10s threshold
	if sig.Direction != domain.DirectionNone {
		t.Fatalf("direction = %v, want none below lag threshold", sig.Direction)
	}
	if sig.Actionable {
		t.Fatal("short-lag signal must not be actionable")
	}
	if sig.RecommendedUSD != 0 {
		t.Fatalf("size = %v, want 0 for a rejected signal", sig.RecommendedUSD)
	}
}

func TestScoreRejectsSmallGap(t *testing.T) {
	e := newTestEngine()

	// 0.3% divergence maps to a 3pp gap, under the 5pp minimum.
	sig := e.Score(reading(0.3, 20), 10000)
	if sig.Direction != domain.DirectionNone || sig.Actionable {
		t.Fatalf("small-gap signal must be directionless, got %v actionable=%v", sig.Direction, sig.Actionable)
	}
}

func TestScoreBuyDownOnNegativeDivergence(t *testing.T) {
	e := newTestEngine()

	sig := e.Score(reading(-1.2, 15), 10000)
	if sig.Direction != domain.DirectionBuyDown {
		t.Fatalf("direction = %v, want buy_down when oracle is below implied", sig.Direction)
	}
	if sig.Strength != domain.StrengthStrong {
		t.Fatalf("strength = %v, want strong for a 12pp gap", sig.Strength)
	}
}

func TestScoreClampsExtremeDivergence(t *testing.T) {
	e := newTestEngine()

	sig := e.Score(reading(100, 300), 1e12)
	if math.Abs(sig.ProbGap-0.4) > 1e-9 {
		t.Fatalf("prob gap = %v, want clamp at 0.4", sig.ProbGap)
	}
	if sig.Strength != domain.StrengthVeryStrong {
		t.Fatalf("strength = %v, want very_strong", sig.Strength)
	}
	if sig.Confidence > 1 {
		t.Fatalf("confidence = %v, must never exceed 1", sig.Confidence)
	}
	if sig.RecommendedUSD > 100 {
		t.Fatalf("size = %v, must never exceed the absolute max", sig.RecommendedUSD)
	}
}

func TestScoreBoundsHoldAcrossInputs(t *testing.T) {
	e := newTestEngine()

	cases := []struct {
		pctDiff, lag, liquidity float64
	}{
		{0.01, 0, 1},
		{0.8, 12, 10000},
		{-50, 1e6, 1e9},
		{3, 11, 49},       // liquidity cap forces a sub-minimum size
		{0.5, 10, 500000}, // liquidity far above the ceiling
		{25, 30, 10000},
	}
	for _, tc := range cases {
		sig := e.Score(reading(tc.pctDiff, tc.lag), tc.liquidity)
		if sig.Confidence < 0 || sig.Confidence > 1 {
			t.Fatalf("confidence %v out of [0,1] for %+v", sig.Confidence, tc)
		}
		if sig.RecommendedUSD < 0 || sig.RecommendedUSD > 100 {
			t.Fatalf("size %v out of [0,100] for %+v", sig.RecommendedUSD, tc)
		}
		if sig.ExpectedEdgePct < 0 {
			t.Fatalf("edge %v negative for %+v", sig.ExpectedEdgePct, tc)
		}
	}
}

func TestScoreInvalidInputs(t *testing.T) {
	e := newTestEngine()

	bad := reading(0.8, 12)
	bad.OracleValue = math.NaN()

	cases := []struct {
		name      string
		r         domain.DivergenceReading
		liquidity float64
	}{
		{"nan oracle", bad, 10000},
		{"zero liquidity", reading(0.8, 12), 0},
		{"negative liquidity", reading(0.8, 12), -100},
		{"inf liquidity", reading(0.8, 12), math.Inf(1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sig := e.Score(tc.r, tc.liquidity)
			if sig.Direction != domain.DirectionNone || sig.Actionable || sig.RecommendedUSD != 0 {
				t.Fatalf("invalid input must yield an inert signal, got %+v", sig)
			}
		})
	}
}

func TestScoreSizeFloorCollapsesDirection(t *testing.T) {
	e := newTestEngine()

	// 10% of $40 liquidity caps the size at $4, under the $5 floor.
	sig := e.Score(reading(0.8, 12), 40)
	if sig.RecommendedUSD != 0 {
		t.Fatalf("size = %v, want 0 under the floor", sig.RecommendedUSD)
	}
	if sig.Direction != domain.DirectionNone {
		t.Fatalf("direction = %v, want none so the actionable flag stays recomputable", sig.Direction)
	}
	if sig.Actionable {
		t.Fatal("floored signal must not be actionable")
	}
}

func TestRecentHistoryIsBounded(t *testing.T) {
	cfg := config.Defaults()
	cfg.Strategy.HistoryLimit = 5
	e := NewEngine(slog.New(slog.NewTextHandler(io.Discard, nil)), &cfg)

	for i := 0; i < 8; i++ {
		e.Score(reading(0.1*float64(i+1), 12), 10000)
	}

	recent := e.Recent(10)
	if len(recent) != 5 {
		t.Fatalf("history length = %d, want bound 5", len(recent))
	}
	// Newest first: the last scored reading had pct_diff 0.8.
	if math.Abs(recent[0].PctDiff-0.8) > 1e-9 {
		t.Fatalf("recent[0].PctDiff = %v, want 0.8 (newest first)", recent[0].PctDiff)
	}
}

func TestProposeLongAndShort(t *testing.T) {
	e := newTestEngine()
	market := domain.Market{
		ID:          "mkt-1",
		Symbol:      "BTC",
		Threshold:   100000,
		UpTokenID:   "tok-up",
		DownTokenID: "tok-down",
	}
	quote := domain.Quote{Symbol: "BTC", TokenID: "tok-up", Prob: 0.5, LiquidityUSD: 10000, Timestamp: base}

	long := e.Score(reading(0.8, 12), 10000)
	p, ok := e.Propose(long, market, quote)
	if !ok {
		t.Fatal("actionable long signal must produce a proposal")
	}
	if p.Side != domain.SideLong || p.TokenID != "tok-up" {
		t.Fatalf("long proposal side/token = %v/%v", p.Side, p.TokenID)
	}
	if math.Abs(p.StopLossPrice-0.475) > 1e-9 || math.Abs(p.TakeProfitPrice-0.55) > 1e-9 {
		t.Fatalf("long stops = %v/%v, want 0.475/0.55", p.StopLossPrice, p.TakeProfitPrice)
	}

	short := e.Score(reading(-1.2, 15), 10000)
	p, ok = e.Propose(short, market, quote)
	if !ok {
		t.Fatal("actionable short signal must produce a proposal")
	}
	if p.Side != domain.SideShort || p.TokenID != "tok-down" {
		t.Fatalf("short proposal side/token = %v/%v", p.Side, p.TokenID)
	}
	if math.Abs(p.StopLossPrice-0.525) > 1e-9 || math.Abs(p.TakeProfitPrice-0.45) > 1e-9 {
		t.Fatalf("short stops = %v/%v, want 0.525/0.45", p.StopLossPrice, p.TakeProfitPrice)
	}
}

func TestProposeRefusesNonActionable(t *testing.T) {
	e := newTestEngine()
	market := domain.Market{Symbol: "BTC", UpTokenID: "u", DownTokenID: "d"}

	sig := e.Score(reading(0.8, 5), 10000) // rejected for lag
	if _, ok := e.Propose(sig, market, domain.Quote{Prob: 0.5}); ok {
		t.Fatal("non-actionable signal must not produce a proposal")
	}

	good := e.Score(reading(0.8, 12), 10000)
	if _, ok := e.Propose(good, market, domain.Quote{Prob: 0}); ok {
		t.Fatal("degenerate quote must not produce a proposal")
	}
}
