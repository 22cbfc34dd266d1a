package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/lagbot/internal/config"
	"github.com/alanyoungcy/lagbot/internal/domain"
	"github.com/alanyoungcy/lagbot/internal/metrics"
)

// PriceSink receives implied-price observations. *feed.Aggregator satisfies it.
type PriceSink interface {
	Update(obs domain.PriceObservation)
}

// Watcher keeps the monitored market set current and turns live token
// quotes into implied asset prices. Each symbol tracks its most liquid
// market; that market's up token drives the quote and the implied feed.
// Observations are stamped at receive time so lag is measured on one clock.
type Watcher struct {
	log        *slog.Logger
	gamma      *GammaClient
	stream     *MarketStream
	watch      config.WatchConfig
	band       float64
	confidence float64
	sink       PriceSink

	mu      sync.RWMutex
	markets map[string][]domain.Market // liquidity descending per symbol
	byToken map[string]string          // best-market up token -> symbol
	quotes  map[string]domain.Quote

	now func() time.Time
}

// NewWatcher builds a watcher from the venue and watch-list configuration.
func NewWatcher(logger *slog.Logger, cfg *config.Config, sink PriceSink) *Watcher {
	w := &Watcher{
		log:        logger.With(slog.String("component", "market_watcher")),
		gamma:      NewGammaClient(cfg.Polymarket.GammaHost),
		watch:      cfg.Watch,
		band:       cfg.Polymarket.BandFraction,
		confidence: cfg.Feeds.ImpliedConfidence,
		sink:       sink,
		markets:    make(map[string][]domain.Market),
		byToken:    make(map[string]string),
		quotes:     make(map[string]domain.Quote),
		now:        time.Now,
	}
	w.stream = NewMarketStream(
		strings.TrimRight(cfg.Polymarket.WsHost, "/")+"/ws/market",
		w.handleBook,
		w.handleTrade,
	)
	return w
}

// Run resolves the initial market set, opens the stream, and refreshes
// markets on the configured interval until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.refresh(ctx); err != nil {
		return fmt.Errorf("polymarket: initial market resolve: %w", err)
	}

	if err := w.stream.Connect(ctx); err != nil {
		return err
	}
	defer w.stream.Close()

	if err := w.stream.SetAssets(ctx, w.trackedTokens()); err != nil {
		return err
	}

	ticker := time.NewTicker(w.watch.RefreshInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.refresh(ctx); err != nil {
				w.log.WarnContext(ctx, "market refresh failed", slog.String("error", err.Error()))
				continue
			}
			if err := w.stream.SetAssets(ctx, w.trackedTokens()); err != nil {
				w.log.WarnContext(ctx, "resubscribe failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Market returns the most liquid monitored market for the symbol.
func (w *Watcher) Market(symbol string) (domain.Market, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	ms := w.markets[symbol]
	if len(ms) == 0 {
		return domain.Market{}, false
	}
	return ms[0], true
}

// LatestQuote returns the most recent up-token quote for the symbol.
func (w *Watcher) LatestQuote(symbol string) (domain.Quote, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	q, ok := w.quotes[symbol]
	return q, ok
}

// Markets returns every monitored market, most liquid first per symbol.
func (w *Watcher) Markets() []domain.Market {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var out []domain.Market
	for _, sym := range w.watch.Symbols {
		out = append(out, w.markets[sym]...)
	}
	return out
}

func (w *Watcher) refresh(ctx context.Context) error {
	resolved, err := w.gamma.ResolveMarkets(ctx, w.watch)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.markets = resolved
	w.byToken = make(map[string]string, len(resolved))
	for sym, ms := range resolved {
		if len(ms) > 0 {
			w.byToken[ms[0].UpTokenID] = sym
		}
	}
	w.mu.Unlock()

	for _, sym := range w.watch.Symbols {
		w.log.InfoContext(ctx, "monitoring markets",
			slog.String("symbol", sym),
			slog.Int("count", len(resolved[sym])))
	}
	return nil
}

// trackedTokens returns the up token of each symbol's best market.
func (w *Watcher) trackedTokens() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	tokens := make([]string, 0, len(w.byToken))
	for tok := range w.byToken {
		tokens = append(tokens, tok)
	}
	return tokens
}

// handleBook turns a book snapshot into a mid-price quote. One-sided books
// are ignored.
func (w *Watcher) handleBook(b BookMessage) {
	bid, ask := b.BestBidAsk()
	if bid <= 0 || ask <= 0 {
		return
	}
	w.applyQuote(b.AssetID, (bid+ask)/2)
}

// handleTrade falls back to the last trade price between book snapshots.
func (w *Watcher) handleTrade(t TradeMessage) {
	price, err := strconv.ParseFloat(t.Price, 64)
	if err != nil {
		return
	}
	w.applyQuote(t.AssetID, price)
}

func (w *Watcher) applyQuote(tokenID string, prob float64) {
	if prob <= 0 || prob >= 1 {
		return
	}

	w.mu.Lock()
	symbol, ok := w.byToken[tokenID]
	if !ok {
		w.mu.Unlock()
		return
	}
	best := w.markets[symbol][0]
	ts := w.now().UTC()
	w.quotes[symbol] = domain.Quote{
		Symbol:       symbol,
		TokenID:      tokenID,
		Prob:         prob,
		LiquidityUSD: best.LiquidityUSD,
		Timestamp:    ts,
	}
	implied := best.ImpliedPrice(prob, w.band)
	w.mu.Unlock()

	w.sink.Update(domain.PriceObservation{
		Symbol:     symbol,
		Source:     domain.SourceImplied,
		Value:      implied,
		Confidence: w.confidence,
		Timestamp:  ts,
	})
	metrics.ObservationsTotal.WithLabelValues(symbol, string(domain.SourceImplied)).Inc()
}
