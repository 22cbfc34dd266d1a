package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/lagbot/internal/domain"
	"github.com/alanyoungcy/lagbot/internal/events"
	"github.com/alanyoungcy/lagbot/internal/executor"
	"github.com/alanyoungcy/lagbot/internal/feed"
	"github.com/alanyoungcy/lagbot/internal/lag"
	"github.com/alanyoungcy/lagbot/internal/ledger"
	"github.com/alanyoungcy/lagbot/internal/metrics"
	"github.com/alanyoungcy/lagbot/internal/notify"
	"github.com/alanyoungcy/lagbot/internal/platform/chainlink"
	"github.com/alanyoungcy/lagbot/internal/platform/polymarket"
	"github.com/alanyoungcy/lagbot/internal/risk"
	"github.com/alanyoungcy/lagbot/internal/server"
	"github.com/alanyoungcy/lagbot/internal/server/handler"
	"github.com/alanyoungcy/lagbot/internal/server/ws"
	"github.com/alanyoungcy/lagbot/internal/strategy"
	"github.com/alanyoungcy/lagbot/internal/trader"
)

// shutdownTimeout bounds the graceful HTTP drain after the context ends.
const shutdownTimeout = 10 * time.Second

// priceSink is the write surface of the feed layer. Both the plain
// aggregator and the cache-mirroring wrapper satisfy it.
type priceSink interface {
	Update(obs domain.PriceObservation)
}

// TradeMode runs the full decision pipeline with a live executor on the
// configured venue.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")

	exec, err := a.buildExecutor()
	if err != nil {
		return err
	}
	return a.runPipeline(ctx, deps, exec)
}

// ObserveMode runs the same pipeline without an executor. Signals are
// scored, published, and recorded, but no orders leave the process.
func (a *App) ObserveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting observe mode")

	return a.runPipeline(ctx, deps, nil)
}

// ServerMode serves the query API over live feeds without running the
// decision loop. Prices, lag readings, and feed health are live; signal and
// position endpoints reflect only what a recording instance has shared
// through the stores.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	started := time.Now().UTC()

	bus := events.NewBus(a.logger, 0)
	defer bus.Close()

	agg := feed.NewAggregator(a.logger, a.cfg.Feeds.Capacity)
	if _, err := a.startFeeds(ctx, g, deps, agg); err != nil {
		return err
	}

	detector := lag.NewDetector(a.logger, agg, a.cfg.Feeds.MaxAge.Duration)
	engine := strategy.NewEngine(a.logger, a.cfg)
	gate := risk.NewGate(a.logger, a.cfg)
	book := ledger.NewLedger(a.logger, a.cfg.Ledger)

	a.startServer(ctx, g, bus, deps, a.apiHandlers(started, agg, detector, engine, book, gate, deps), started)

	return g.Wait()
}

// runPipeline assembles the shared trade/observe pipeline: feeds in, trader
// loop in the middle, event consumers and the optional HTTP surface out.
func (a *App) runPipeline(ctx context.Context, deps *Dependencies, exec domain.TradeExecutor) error {
	g, ctx := errgroup.WithContext(ctx)
	started := time.Now().UTC()

	bus := events.NewBus(a.logger, 0)
	defer bus.Close()

	agg := feed.NewAggregator(a.logger, a.cfg.Feeds.Capacity)
	watcher, err := a.startFeeds(ctx, g, deps, agg)
	if err != nil {
		return err
	}

	detector := lag.NewDetector(a.logger, agg, a.cfg.Feeds.MaxAge.Duration)
	engine := strategy.NewEngine(a.logger, a.cfg)
	gate := risk.NewGate(a.logger, a.cfg)
	book := ledger.NewLedger(a.logger, a.cfg.Ledger)

	tr := trader.New(a.logger, a.cfg, detector, engine, gate, book, watcher, exec, bus)
	g.Go(func() error {
		return tr.Run(ctx)
	})

	a.startSinks(ctx, g, bus, deps)

	if a.cfg.Server.Enabled {
		a.startServer(ctx, g, bus, deps, a.apiHandlers(started, agg, detector, engine, book, gate, deps), started)
	}

	venue := "none"
	if exec != nil {
		venue = exec.Name()
	}
	a.logger.InfoContext(ctx, "pipeline running",
		slog.Any("symbols", a.cfg.Watch.Symbols),
		slog.String("executor", venue),
	)

	return g.Wait()
}

// buildExecutor picks the execution venue for trade mode. It returns nil
// when execution is disabled; the trader then scores without trading.
func (a *App) buildExecutor() (domain.TradeExecutor, error) {
	if !a.cfg.Execution.Enabled {
		a.logger.Warn("execution disabled, trade mode will only observe")
		return nil, nil
	}

	switch strings.ToLower(a.cfg.Execution.Venue) {
	case "", "paper":
		return executor.NewPaper(a.logger), nil
	case "clob":
		return executor.NewCLOB(a.logger, a.cfg.Polymarket.ClobHost, a.cfg.Execution)
	default:
		return nil, fmt.Errorf("app: unsupported execution venue %q", a.cfg.Execution.Venue)
	}
}

// startFeeds launches the oracle reader, the market watcher, and the cache
// mirror when a price cache is wired. It returns the watcher, which doubles
// as the market book for sizing.
func (a *App) startFeeds(ctx context.Context, g *errgroup.Group, deps *Dependencies, agg *feed.Aggregator) (*polymarket.Watcher, error) {
	var sink priceSink = agg
	if deps.PriceCache != nil {
		mirror := feed.NewMirror(a.logger, agg, deps.PriceCache)
		g.Go(func() error {
			return mirror.Run(ctx)
		})
		sink = mirror
	}

	reader, err := chainlink.NewReader(a.logger, a.cfg.Chainlink, a.cfg.Feeds.OracleConfidence, sink)
	if err != nil {
		return nil, fmt.Errorf("app: chainlink reader: %w", err)
	}
	a.closers = append(a.closers, reader.Close)

	watcher := polymarket.NewWatcher(a.logger, a.cfg, sink)

	g.Go(func() error {
		return reader.Run(ctx)
	})
	g.Go(func() error {
		return watcher.Run(ctx)
	})
	return watcher, nil
}

// startSinks attaches the bus consumers: the audit log and metrics
// unconditionally, the relay, recorder, alerter, and archiver only when
// their dependencies are wired.
func (a *App) startSinks(ctx context.Context, g *errgroup.Group, bus *events.Bus, deps *Dependencies) {
	auditor := events.NewAuditor(a.logger, bus)
	g.Go(func() error {
		return auditor.Run(ctx)
	})

	collector := metrics.NewCollector(a.logger, bus)
	g.Go(func() error {
		return collector.Run(ctx)
	})

	if deps.EventRelay != nil {
		relay := events.NewRelay(a.logger, bus, deps.EventRelay)
		g.Go(func() error {
			return relay.Run(ctx)
		})
	}

	if deps.SignalStore != nil {
		rec := events.NewRecorder(a.logger, bus, deps.SignalStore, deps.TradeStore, deps.PositionStore, deps.StatsStore)
		g.Go(func() error {
			return rec.Run(ctx)
		})
	}

	if len(deps.Senders) > 0 {
		alerter := notify.NewAlerter(a.logger, bus, deps.Senders, a.cfg.Notify.Events)
		g.Go(func() error {
			return alerter.Run(ctx)
		})
	}

	if deps.Archiver != nil {
		g.Go(func() error {
			return deps.Archiver.Run(ctx)
		})
	}
}

// apiHandlers builds the HTTP handler set over the live pipeline components.
// The trades handler is only wired when a trade store exists; the daily
// stats source may be a nil interface, which the stats handler tolerates.
func (a *App) apiHandlers(
	started time.Time,
	agg *feed.Aggregator,
	detector *lag.Detector,
	engine *strategy.Engine,
	book *ledger.Ledger,
	gate *risk.Gate,
	deps *Dependencies,
) server.Handlers {
	h := server.Handlers{
		Health:    handler.NewHealthHandler(a.cfg.Mode, started),
		Prices:    handler.NewPriceHandler(agg, a.cfg.Feeds.MaxAge.Duration, a.logger),
		Lag:       handler.NewLagHandler(detector, a.logger),
		Signals:   handler.NewSignalHandler(engine, a.logger),
		Positions: handler.NewPositionHandler(book, a.logger),
		Risk:      handler.NewRiskHandler(gate, a.logger),
		Stats:     handler.NewStatsHandler(book, deps.StatsStore, a.logger),
	}
	if deps.TradeStore != nil {
		h.Trades = handler.NewTradeHandler(deps.TradeStore, a.logger)
	}
	return h
}

// startServer launches the WebSocket hub and the HTTP server, and drains the
// server when the group context ends.
func (a *App) startServer(
	ctx context.Context,
	g *errgroup.Group,
	bus *events.Bus,
	deps *Dependencies,
	handlers server.Handlers,
	started time.Time,
) {
	hub := ws.NewHub(a.logger, bus, a.cfg.Mode, started)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
