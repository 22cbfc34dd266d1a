package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/lagbot/internal/domain"
)

// recorderWriteTimeout bounds each store write so a stalled database cannot
// wedge the drain loop.
const recorderWriteTimeout = 5 * time.Second

// Recorder persists pipeline outcomes off the bus: actionable signals,
// executed fills, position lifecycles, and the daily rollup. Only actionable
// signals are stored; the full scored stream stays in the engine's in-memory
// history.
type Recorder struct {
	log       *slog.Logger
	bus       *Bus
	signals   domain.SignalStore
	trades    domain.TradeStore
	positions domain.PositionStore
	stats     domain.StatsStore
}

// NewRecorder wires the bus to the persistence stores. Run must be called to
// start recording.
func NewRecorder(
	logger *slog.Logger,
	bus *Bus,
	signals domain.SignalStore,
	trades domain.TradeStore,
	positions domain.PositionStore,
	stats domain.StatsStore,
) *Recorder {
	return &Recorder{
		log:       logger.With(slog.String("component", "recorder")),
		bus:       bus,
		signals:   signals,
		trades:    trades,
		positions: positions,
		stats:     stats,
	}
}

// Run records events until the context is cancelled or the bus closes. A
// failed write drops that one record; the loop keeps going.
func (r *Recorder) Run(ctx context.Context) error {
	ch, cancel := r.bus.Subscribe(
		domain.EventSignalGenerated,
		domain.EventTradeExecuted,
		domain.EventPositionOpened,
		domain.EventPositionClosed,
	)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-ch:
			if !ok {
				return nil
			}
			r.record(ctx, evt)
		}
	}
}

func (r *Recorder) record(ctx context.Context, evt domain.Event) {
	wctx, cancel := context.WithTimeout(ctx, recorderWriteTimeout)
	defer cancel()

	var err error
	switch e := evt.(type) {
	case domain.SignalGenerated:
		if !e.Signal.Actionable {
			return
		}
		err = r.signals.Insert(wctx, e.Signal)
	case domain.TradeExecuted:
		err = r.trades.Insert(wctx, e.Record)
	case domain.PositionOpened:
		err = r.positions.Create(wctx, e.Position)
	case domain.PositionClosed:
		err = r.positions.MarkClosed(wctx, e.Position)
		if err == nil {
			err = r.stats.Accumulate(wctx, closeDelta(e))
		}
	default:
		return
	}
	if err != nil {
		r.log.WarnContext(ctx, "record event failed",
			slog.String("kind", string(evt.Kind())),
			slog.String("error", err.Error()))
	}
}

// closeDelta converts one close into its daily rollup contribution.
func closeDelta(e domain.PositionClosed) domain.DailyStats {
	d := domain.DailyStats{
		Day:         e.Time.UTC().Truncate(24 * time.Hour),
		Trades:      1,
		RealizedPnL: e.PnL,
	}
	switch {
	case e.PnL > 0:
		d.Wins = 1
	case e.PnL < 0:
		d.Losses = 1
	}
	return d
}
