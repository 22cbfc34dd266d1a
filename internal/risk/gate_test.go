package risk

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/lagbot/internal/config"
	"github.com/alanyoungcy/lagbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestGate returns a gate on a controllable clock. Advance time through the
// returned function; negative or zero deltas are not supported.
func newTestGate(t *testing.T, start time.Time) (*Gate, func(d time.Duration)) {
	t.Helper()
	cfg := config.Defaults()
	g := NewGate(testLogger(), cfg)
	now := start
	g.now = func() time.Time { return now }
	g.day = now.UTC().Truncate(24 * time.Hour)
	return g, func(d time.Duration) { now = now.Add(d) }
}

func proposal(sizeUSD, confidence float64) domain.TradeProposal {
	return domain.TradeProposal{
		ID:             "t-1",
		Symbol:         "BTC",
		TokenID:        "tok-up",
		Side:           domain.SideLong,
		SizeUSD:        sizeUSD,
		LimitPrice:     0.55,
		MaxSlippagePct: 0.5,
		Signal:         domain.Signal{Symbol: "BTC", Confidence: confidence},
	}
}

func wantLimitError(t *testing.T, err error, check string) *domain.LimitError {
	t.Helper()
	if err == nil {
		t.Fatalf("expected a %s rejection, got approval", check)
	}
	var le *domain.LimitError
	if !errors.As(err, &le) {
		t.Fatalf("expected *domain.LimitError, got %T: %v", err, err)
	}
	if le.Check != check {
		t.Fatalf("expected check %q, got %q (%s)", check, le.Check, le.Reason)
	}
	return le
}

func TestApproveWithinLimits(t *testing.T) {
	g, _ := newTestGate(t, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	if err := g.Approve(proposal(30, 0.7)); err != nil {
		t.Fatalf("expected approval, got %v", err)
	}
}

func TestRejectsOversizedProposal(t *testing.T) {
	g, _ := newTestGate(t, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	le := wantLimitError(t, g.Approve(proposal(150, 0.9)), "position_size")
	if le.Reason == "" {
		t.Fatal("expected a reason naming the failed check")
	}
}

func TestRejectsAtMaxConcurrent(t *testing.T) {
	g, _ := newTestGate(t, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	for i := 0; i < 3; i++ {
		g.OnOpened(25)
	}
	wantLimitError(t, g.Approve(proposal(30, 0.9)), "concurrency")

	g.OnClosed(1.5, 25)
	if err := g.Approve(proposal(30, 0.9)); err != nil {
		t.Fatalf("expected approval after a close freed a slot, got %v", err)
	}
}

func TestLossCooldownExpiresWithoutHalting(t *testing.T) {
	g, advance := newTestGate(t, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	g.OnOpened(30)
	g.OnClosed(-6, 30)
	wantLimitError(t, g.Approve(proposal(30, 0.9)), "cooldown")

	advance(61 * time.Second)
	if err := g.Approve(proposal(30, 0.9)); err != nil {
		t.Fatalf("expected approval after cooldown expiry, got %v", err)
	}

	g.OnOpened(30)
	g.OnClosed(-6, 30)
	wantLimitError(t, g.Approve(proposal(30, 0.9)), "cooldown")

	advance(61 * time.Second)
	if err := g.Approve(proposal(30, 0.9)); err != nil {
		t.Fatalf("expected approval, got %v", err)
	}

	// Two $6 losses total $12, well short of the $50 daily cap.
	snap := g.Status()
	if snap.Phase != domain.RiskPhaseNormal {
		t.Fatalf("expected normal phase at -$12, got %s", snap.Phase)
	}
	if snap.PnLToday != -12 {
		t.Fatalf("expected pnl_today -12, got %.2f", snap.PnLToday)
	}
	if snap.LossesToday != 2 {
		t.Fatalf("expected 2 losses, got %d", snap.LossesToday)
	}
}

func TestDailyHaltLiftsAtMidnight(t *testing.T) {
	g, advance := newTestGate(t, time.Date(2024, 6, 1, 23, 0, 0, 0, time.UTC))

	g.OnOpened(60)
	g.OnClosed(-60, 60)

	// Halt outranks the cooldown that the same loss started.
	wantLimitError(t, g.Approve(proposal(30, 0.9)), "daily_loss")
	if got := g.Status().Phase; got != domain.RiskPhaseDailyHalted {
		t.Fatalf("expected daily_halted, got %s", got)
	}

	// Still halted later the same day, long after the cooldown expired.
	advance(30 * time.Minute)
	wantLimitError(t, g.Approve(proposal(30, 0.9)), "daily_loss")

	// Past UTC midnight the counters reset lazily on the next call.
	advance(2 * time.Hour)
	if err := g.Approve(proposal(30, 0.9)); err != nil {
		t.Fatalf("expected approval after midnight reset, got %v", err)
	}
	snap := g.Status()
	if snap.PnLToday != 0 || snap.TradesToday != 0 || snap.LossesToday != 0 {
		t.Fatalf("expected daily counters reset, got %+v", snap)
	}
	if snap.Phase != domain.RiskPhaseNormal {
		t.Fatalf("expected normal phase after reset, got %s", snap.Phase)
	}
}

func TestMidnightResetKeepsOpenPositions(t *testing.T) {
	g, advance := newTestGate(t, time.Date(2024, 6, 1, 23, 50, 0, 0, time.UTC))

	g.OnOpened(40)
	g.OnOpened(25)
	advance(20 * time.Minute)

	snap := g.Status()
	if snap.OpenCount != 2 {
		t.Fatalf("expected open count to survive the rollover, got %d", snap.OpenCount)
	}
	if snap.ExposureUSD != 65 {
		t.Fatalf("expected exposure to survive the rollover, got %.2f", snap.ExposureUSD)
	}
	if snap.TradesToday != 0 {
		t.Fatalf("expected trades_today reset, got %d", snap.TradesToday)
	}
}

func TestCheckOrderHaltFirst(t *testing.T) {
	g, _ := newTestGate(t, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	for i := 0; i < 3; i++ {
		g.OnOpened(30)
	}
	g.OnClosed(-60, 30)

	// Gate is simultaneously halted, at the concurrency cap, and cooling
	// down; the halt must be the reported check.
	wantLimitError(t, g.Approve(proposal(150, 0.1)), "daily_loss")
}

func TestRejectsExcessSlippage(t *testing.T) {
	g, _ := newTestGate(t, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	p := proposal(30, 0.9)
	p.MaxSlippagePct = 1.0
	wantLimitError(t, g.Approve(p), "slippage")
}

func TestRejectsLowConfidence(t *testing.T) {
	g, _ := newTestGate(t, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	wantLimitError(t, g.Approve(proposal(30, 0.4)), "confidence")
}

func TestAdjustSize(t *testing.T) {
	g, _ := newTestGate(t, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	// 40 * 0.8 = 32, under both caps.
	if got := g.AdjustSize(40, 0.8, 10000); got != 32 {
		t.Fatalf("expected 32, got %.2f", got)
	}
	// Liquidity cap: 10% of 200 is 20.
	if got := g.AdjustSize(40, 0.9, 200); got != 20 {
		t.Fatalf("expected liquidity cap of 20, got %.2f", got)
	}
	// Below the $5 minimum collapses to zero.
	if got := g.AdjustSize(6, 0.5, 10000); got != 0 {
		t.Fatalf("expected 0 under the minimum, got %.2f", got)
	}
}

func TestAdjustSizeShrinksAfterLosses(t *testing.T) {
	g, advance := newTestGate(t, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	g.OnOpened(30)
	g.OnClosed(-2, 30)
	advance(61 * time.Second)

	// One loss: reduction factor 0.9, so 40 * 1.0 * 0.9 = 36.
	if got := g.AdjustSize(40, 1.0, 10000); got != 36 {
		t.Fatalf("expected 36 after one loss, got %.2f", got)
	}

	for i := 0; i < 7; i++ {
		g.OnOpened(10)
		g.OnClosed(-1, 10)
		advance(61 * time.Second)
	}

	// Reduction floors at 0.5 no matter how many losses accumulate.
	if got := g.AdjustSize(40, 1.0, 10000); got != 20 {
		t.Fatalf("expected reduction floor of 0.5 (size 20), got %.2f", got)
	}
}

func TestExposureNeverNegative(t *testing.T) {
	g, _ := newTestGate(t, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	g.OnOpened(20)
	g.OnClosed(3, 25)
	if snap := g.Status(); snap.ExposureUSD != 0 {
		t.Fatalf("expected exposure floored at 0, got %.2f", snap.ExposureUSD)
	}
	if snap := g.Status(); snap.OpenCount != 0 {
		t.Fatalf("expected open count floored at 0, got %d", snap.OpenCount)
	}
}

func TestCooldownStatusExposesDeadline(t *testing.T) {
	g, _ := newTestGate(t, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	g.OnOpened(30)
	g.OnClosed(-4, 30)

	snap := g.Status()
	if snap.Phase != domain.RiskPhaseLossCooldown {
		t.Fatalf("expected loss_cooldown, got %s", snap.Phase)
	}
	if snap.CooldownUntil == nil {
		t.Fatal("expected cooldown deadline in snapshot")
	}
	want := time.Date(2024, 6, 1, 12, 1, 0, 0, time.UTC)
	if !snap.CooldownUntil.Equal(want) {
		t.Fatalf("expected deadline %v, got %v", want, snap.CooldownUntil)
	}
}
