// Package trader runs the decision loops: one per watched symbol for entries,
// plus a monitor that marks open positions and executes stop/take exits.
package trader

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/lagbot/internal/config"
	"github.com/alanyoungcy/lagbot/internal/domain"
)

// Divergences yields the current oracle-vs-implied reading for a symbol.
type Divergences interface {
	Evaluate(symbol string) (domain.DivergenceReading, error)
}

// Scorer turns readings into signals and signals into executable proposals.
type Scorer interface {
	Score(r domain.DivergenceReading, liquidityUSD float64) domain.Signal
	Propose(sig domain.Signal, market domain.Market, quote domain.Quote) (domain.TradeProposal, bool)
}

// Approver is the risk gate surface the trader consults around execution.
type Approver interface {
	Approve(p domain.TradeProposal) error
	AdjustSize(sizeUSD, confidence, liquidityUSD float64) float64
	OnOpened(sizeUSD float64)
	OnClosed(pnl, sizeUSD float64)
}

// Book is the position ledger surface the trader drives.
type Book interface {
	Open(p domain.TradeProposal, fill domain.Fill) (domain.Position, error)
	Get(id string) (domain.Position, error)
	Close(id string, exitPrice float64, reason domain.CloseReason) (domain.Position, error)
	Mark(ref string, price float64) int
	CheckStopLoss() []string
	CheckTakeProfit() []string
	OpenPositions() []domain.Position
}

// MarketBook resolves the tradable market and its latest token quote per
// symbol. Implemented by the Polymarket collaborator.
type MarketBook interface {
	Market(symbol string) (domain.Market, bool)
	LatestQuote(symbol string) (domain.Quote, bool)
}

// Publisher is the event fan-out.
type Publisher interface {
	Publish(evt domain.Event)
}

// Trader wires detector, engine, gate, ledger, and executor into the
// evaluate -> score -> approve -> execute -> open cycle. A nil executor puts
// the trader in observe mode: signals are scored and published but nothing
// past the score step runs.
type Trader struct {
	log     *slog.Logger
	symbols []string
	tick    time.Duration

	lags    Divergences
	engine  Scorer
	gate    Approver
	book    Book
	markets MarketBook
	exec    domain.TradeExecutor
	bus     Publisher

	now func() time.Time
}

// New creates a Trader. exec may be nil for observe mode.
func New(
	logger *slog.Logger,
	cfg *config.Config,
	lags Divergences,
	engine Scorer,
	gate Approver,
	book Book,
	markets MarketBook,
	exec domain.TradeExecutor,
	bus Publisher,
) *Trader {
	return &Trader{
		log:     logger.With(slog.String("component", "trader")),
		symbols: cfg.Watch.Symbols,
		tick:    cfg.Strategy.TickInterval.Duration,
		lags:    lags,
		engine:  engine,
		gate:    gate,
		book:    book,
		markets: markets,
		exec:    exec,
		bus:     bus,
		now:     time.Now,
	}
}

// Run starts one entry loop per symbol and the exit monitor, and blocks until
// the context is cancelled.
func (t *Trader) Run(ctx context.Context) error {
	if t.exec == nil {
		t.log.InfoContext(ctx, "no executor configured, observing only")
	}
	t.log.InfoContext(ctx, "trader started",
		slog.Any("symbols", t.symbols),
		slog.Duration("tick", t.tick))

	g, ctx := errgroup.WithContext(ctx)
	for _, symbol := range t.symbols {
		symbol := symbol
		g.Go(func() error {
			return t.runSymbol(ctx, symbol)
		})
	}
	g.Go(func() error {
		return t.runExitMonitor(ctx)
	})
	return g.Wait()
}

// runSymbol drives the entry cycle for one symbol on every tick.
func (t *Trader) runSymbol(ctx context.Context, symbol string) error {
	ticker := time.NewTicker(t.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t.step(ctx, symbol)
		}
	}
}

// step runs a single evaluate -> score -> approve -> execute -> open pass.
// Every failure short of a programming error is downgraded and the next tick
// tries again.
func (t *Trader) step(ctx context.Context, symbol string) {
	reading, err := t.lags.Evaluate(symbol)
	if err != nil {
		if !errors.Is(err, domain.ErrInsufficientData) {
			t.log.WarnContext(ctx, "evaluate failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()))
		}
		return
	}

	market, ok := t.markets.Market(symbol)
	if !ok {
		t.log.DebugContext(ctx, "no market resolved", slog.String("symbol", symbol))
		return
	}

	// Scoring is deterministic; the signal takes its identity here, at publish.
	sig := t.engine.Score(reading, market.LiquidityUSD)
	sig.ID = uuid.NewString()
	t.bus.Publish(domain.SignalGenerated{Signal: sig})

	if !sig.Actionable || t.exec == nil {
		return
	}

	quote, ok := t.markets.LatestQuote(symbol)
	if !ok {
		t.log.DebugContext(ctx, "no quote for actionable signal", slog.String("symbol", symbol))
		return
	}

	proposal, ok := t.engine.Propose(sig, market, quote)
	if !ok {
		return
	}

	if err := t.gate.Approve(proposal); err != nil {
		t.bus.Publish(domain.TradeRejected{
			Proposal: proposal,
			Reason:   err.Error(),
			Time:     t.now().UTC(),
		})
		return
	}

	adjusted := t.gate.AdjustSize(proposal.SizeUSD, sig.Confidence, market.LiquidityUSD)
	if adjusted <= 0 {
		t.bus.Publish(domain.TradeRejected{
			Proposal: proposal,
			Reason:   "adjusted size below minimum",
			Time:     t.now().UTC(),
		})
		return
	}
	proposal.SizeUSD = adjusted

	t.bus.Publish(domain.TradeApproved{Proposal: proposal, Time: t.now().UTC()})

	fill, err := t.exec.Execute(ctx, proposal)
	if err != nil {
		t.log.ErrorContext(ctx, "execution failed, proposal discarded",
			slog.String("symbol", symbol),
			slog.String("proposal_id", proposal.ID),
			slog.String("error", err.Error()))
		t.bus.Publish(domain.TradeRejected{
			Proposal: proposal,
			Reason:   "execution failed: " + err.Error(),
			Time:     t.now().UTC(),
		})
		return
	}

	pos, err := t.book.Open(proposal, fill)
	if err != nil {
		t.log.ErrorContext(ctx, "ledger open failed after fill",
			slog.String("symbol", symbol),
			slog.String("order_id", fill.OrderID),
			slog.String("error", err.Error()))
		return
	}
	t.gate.OnOpened(pos.SizeUSD)
	t.bus.Publish(domain.TradeExecuted{Record: t.executionRecord(proposal.ID, pos, fill, domain.TradeActionOpen)})
	t.bus.Publish(domain.PositionOpened{Position: pos})
}

// executionRecord converts a filled executor call into its accounting form.
func (t *Trader) executionRecord(proposalID string, pos domain.Position, fill domain.Fill, action string) domain.TradeRecord {
	return domain.TradeRecord{
		ProposalID: proposalID,
		PositionID: pos.ID,
		Symbol:     pos.Symbol,
		TokenID:    pos.TokenID,
		Side:       pos.Side,
		Action:     action,
		Price:      fill.FilledPrice,
		SizeUSD:    pos.SizeUSD,
		FeeUSD:     fill.FeeUSD,
		Venue:      t.exec.Name(),
		ExecutedAt: fill.FilledAt,
	}
}

// runExitMonitor marks open positions from the latest quotes and closes any
// that crossed their stop-loss or take-profit flags. Exits are handled by a
// single goroutine so a flagged position is never unwound twice.
func (t *Trader) runExitMonitor(ctx context.Context) error {
	ticker := time.NewTicker(t.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t.monitorCycle(ctx)
		}
	}
}

// monitorCycle is one mark-and-exit pass.
func (t *Trader) monitorCycle(ctx context.Context) {
	t.markOpenPositions()
	if t.exec == nil {
		return
	}
	for _, id := range t.book.CheckStopLoss() {
		t.closePosition(ctx, id, domain.CloseReasonStopLoss)
	}
	for _, id := range t.book.CheckTakeProfit() {
		t.closePosition(ctx, id, domain.CloseReasonTakeProfit)
	}
}

func (t *Trader) markOpenPositions() {
	for _, symbol := range t.symbols {
		quote, ok := t.markets.LatestQuote(symbol)
		if !ok {
			continue
		}
		t.book.Mark(symbol, quote.Prob)
	}
}

// closePosition unwinds one position through the executor and settles the
// ledger and gate. An execution failure leaves the position open; the next
// monitor cycle retries.
func (t *Trader) closePosition(ctx context.Context, id string, reason domain.CloseReason) {
	pos, err := t.book.Get(id)
	if err != nil {
		return
	}

	fill, err := t.exec.Unwind(ctx, pos, pos.CurrentPrice)
	if err != nil {
		t.log.ErrorContext(ctx, "unwind failed, position stays open",
			slog.String("position_id", id),
			slog.String("reason", string(reason)),
			slog.String("error", err.Error()))
		return
	}

	closed, err := t.book.Close(id, fill.FilledPrice, reason)
	if err != nil {
		t.log.ErrorContext(ctx, "ledger close failed after unwind",
			slog.String("position_id", id),
			slog.String("error", err.Error()))
		return
	}

	pnl := 0.0
	if closed.RealizedPnL != nil {
		pnl = *closed.RealizedPnL
	}
	t.gate.OnClosed(pnl, closed.SizeUSD)
	t.bus.Publish(domain.TradeExecuted{Record: t.executionRecord("", closed, fill, domain.TradeActionClose)})
	t.bus.Publish(domain.PositionClosed{
		Position: closed,
		PnL:      pnl,
		Time:     t.now().UTC(),
	})
}

// CloseAll unwinds every open position at its current mark. Used on shutdown
// in paper mode so the session ends flat.
func (t *Trader) CloseAll(ctx context.Context) {
	if t.exec == nil {
		return
	}
	for _, pos := range t.book.OpenPositions() {
		t.closePosition(ctx, pos.ID, domain.CloseReasonShutdown)
	}
}
