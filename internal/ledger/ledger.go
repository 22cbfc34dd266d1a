// Package ledger is the authoritative in-memory book of positions: opens,
// mark-to-market updates, closes with realized PnL, and advisory stop/take
// flags. It never closes a position on its own; the trader decides exits.
package ledger

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/lagbot/internal/config"
	"github.com/alanyoungcy/lagbot/internal/domain"
)

// Ledger tracks open positions in a map keyed by position ID and keeps a
// bounded history of closed ones. All reads hand out copies.
type Ledger struct {
	log *slog.Logger
	cfg config.LedgerConfig
	now func() time.Time

	mu     sync.RWMutex
	open   map[string]*domain.Position
	closed []domain.Position
}

// NewLedger creates an empty ledger.
func NewLedger(logger *slog.Logger, cfg config.LedgerConfig) *Ledger {
	return &Ledger{
		log:  logger.With(slog.String("component", "ledger")),
		cfg:  cfg,
		now:  time.Now,
		open: make(map[string]*domain.Position),
	}
}

// Open books a position from an approved proposal and its fill. The position
// ID is the fill's order ID when the venue supplied one. Entry and current
// price both start at the fill price.
func (l *Ledger) Open(p domain.TradeProposal, fill domain.Fill) (domain.Position, error) {
	if p.SizeUSD <= 0 || math.IsNaN(p.SizeUSD) || math.IsInf(p.SizeUSD, 0) {
		return domain.Position{}, fmt.Errorf("ledger: open %s: size %.2f: %w", p.Symbol, p.SizeUSD, domain.ErrInvalidInput)
	}
	if fill.FilledPrice <= 0 || math.IsNaN(fill.FilledPrice) || math.IsInf(fill.FilledPrice, 0) {
		return domain.Position{}, fmt.Errorf("ledger: open %s: fill price %.4f: %w", p.Symbol, fill.FilledPrice, domain.ErrInvalidInput)
	}

	id := fill.OrderID
	if id == "" {
		id = uuid.NewString()
	}

	pos := domain.Position{
		ID:           id,
		Symbol:       p.Symbol,
		TokenID:      p.TokenID,
		Side:         p.Side,
		EntryPrice:   fill.FilledPrice,
		CurrentPrice: fill.FilledPrice,
		SizeUSD:      p.SizeUSD,
		Status:       domain.PositionStatusOpen,
		OpenedAt:     l.now().UTC(),
	}

	l.mu.Lock()
	if _, exists := l.open[id]; exists {
		l.mu.Unlock()
		return domain.Position{}, fmt.Errorf("ledger: open %s: duplicate position id %q: %w", p.Symbol, id, domain.ErrInvalidInput)
	}
	l.open[id] = &pos
	l.mu.Unlock()

	l.log.Info("position opened",
		slog.String("position_id", pos.ID),
		slog.String("symbol", pos.Symbol),
		slog.String("side", string(pos.Side)),
		slog.Float64("entry_price", pos.EntryPrice),
		slog.Float64("size_usd", pos.SizeUSD))

	return pos, nil
}

// Mark updates the current price of every open position whose symbol or token
// ID matches ref, and returns how many were touched. Non-finite or
// non-positive prices are ignored.
func (l *Ledger) Mark(ref string, price float64) int {
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		l.log.Warn("mark ignored, invalid price",
			slog.String("ref", ref),
			slog.Float64("price", price))
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, pos := range l.open {
		if pos.Symbol == ref || pos.TokenID == ref {
			pos.CurrentPrice = price
			n++
		}
	}
	return n
}

// Close finalizes a position at the exit price: long PnL is
// (exit-entry)*size, short is (entry-exit)*size. The position leaves the open
// map and joins the bounded closed history. An unknown or already-closed ID
// fails with ErrNotFound and leaves state untouched.
func (l *Ledger) Close(id string, exitPrice float64, reason domain.CloseReason) (domain.Position, error) {
	if exitPrice <= 0 || math.IsNaN(exitPrice) || math.IsInf(exitPrice, 0) {
		return domain.Position{}, fmt.Errorf("ledger: close %q: exit price %.4f: %w", id, exitPrice, domain.ErrInvalidInput)
	}

	l.mu.Lock()
	pos, ok := l.open[id]
	if !ok {
		l.mu.Unlock()
		return domain.Position{}, fmt.Errorf("ledger: close %q: %w", id, domain.ErrNotFound)
	}

	var pnl float64
	if pos.Side == domain.SideShort {
		pnl = (pos.EntryPrice - exitPrice) * pos.SizeUSD
	} else {
		pnl = (exitPrice - pos.EntryPrice) * pos.SizeUSD
	}

	closedAt := l.now().UTC()
	pos.Status = domain.PositionStatusClosed
	pos.CurrentPrice = exitPrice
	pos.ClosedAt = &closedAt
	pos.ExitPrice = &exitPrice
	pos.RealizedPnL = &pnl
	pos.CloseReason = reason

	delete(l.open, id)
	l.closed = append(l.closed, *pos)
	if overflow := len(l.closed) - l.cfg.ClosedHistoryLimit; overflow > 0 && l.cfg.ClosedHistoryLimit > 0 {
		l.closed = append([]domain.Position(nil), l.closed[overflow:]...)
	}
	out := *pos
	l.mu.Unlock()

	l.log.Info("position closed",
		slog.String("position_id", out.ID),
		slog.String("symbol", out.Symbol),
		slog.String("reason", string(reason)),
		slog.Float64("exit_price", exitPrice),
		slog.Float64("realized_pnl", pnl))

	return out, nil
}

// Get returns a copy of an open position.
func (l *Ledger) Get(id string) (domain.Position, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	pos, ok := l.open[id]
	if !ok {
		return domain.Position{}, fmt.Errorf("ledger: get %q: %w", id, domain.ErrNotFound)
	}
	return *pos, nil
}

// CheckStopLoss returns the IDs of open positions whose unrealized PnL has
// fallen to or below the stop-loss percentage. Advisory only.
func (l *Ledger) CheckStopLoss() []string {
	return l.flagged(func(p *domain.Position) bool {
		return p.UnrealizedPnLPct() <= -l.cfg.StopLossPct
	})
}

// CheckTakeProfit returns the IDs of open positions whose unrealized PnL has
// risen to or above the take-profit percentage. Advisory only.
func (l *Ledger) CheckTakeProfit() []string {
	return l.flagged(func(p *domain.Position) bool {
		return p.UnrealizedPnLPct() >= l.cfg.TakeProfitPct
	})
}

func (l *Ledger) flagged(hit func(*domain.Position) bool) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var ids []string
	for id, pos := range l.open {
		if hit(pos) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// OpenPositions returns copies of all open positions, oldest first.
func (l *Ledger) OpenPositions() []domain.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.Position, 0, len(l.open))
	for _, pos := range l.open {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].OpenedAt.Before(out[j].OpenedAt)
	})
	return out
}

// ClosedPositions returns up to limit closed positions, newest first. A
// non-positive limit returns the full retained history.
func (l *Ledger) ClosedPositions(limit int) []domain.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := len(l.closed)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]domain.Position, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, l.closed[i])
	}
	return out
}

// Stats aggregates realized results and live exposure.
func (l *Ledger) Stats() domain.LedgerStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	st := domain.LedgerStats{
		OpenCount:   len(l.open),
		ClosedCount: len(l.closed),
	}
	for _, pos := range l.closed {
		if pos.RealizedPnL == nil {
			continue
		}
		pnl := *pos.RealizedPnL
		st.TotalRealizedPnL += pnl
		if pnl > 0 {
			st.WinningTrades++
		} else if pnl < 0 {
			st.LosingTrades++
		}
	}
	if decided := st.WinningTrades + st.LosingTrades; decided > 0 {
		st.WinRatePct = float64(st.WinningTrades) / float64(decided) * 100
	}
	for _, pos := range l.open {
		st.UnrealizedPnL += pos.UnrealizedPnL()
		st.OpenExposureUSD += pos.SizeUSD
	}
	return st
}
