package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// SignalStore persists scored signals. ListBefore/DeleteBefore support the
// archive-then-prune cycle.
type SignalStore interface {
	Insert(ctx context.Context, sig Signal) error
	ListRecent(ctx context.Context, limit int) ([]Signal, error)
	ListBySymbol(ctx context.Context, symbol string, opts ListOpts) ([]Signal, error)
	ListBefore(ctx context.Context, before time.Time) ([]Signal, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// PositionStore persists position lifecycles.
type PositionStore interface {
	Create(ctx context.Context, pos Position) error
	MarkClosed(ctx context.Context, pos Position) error
	GetByID(ctx context.Context, id string) (Position, error)
	ListOpen(ctx context.Context) ([]Position, error)
	ListClosed(ctx context.Context, opts ListOpts) ([]Position, error)
	ListClosedBefore(ctx context.Context, before time.Time) ([]Position, error)
	DeleteClosedBefore(ctx context.Context, before time.Time) (int64, error)
}

// TradeStore persists executed fills.
type TradeStore interface {
	Insert(ctx context.Context, rec TradeRecord) error
	ListRecent(ctx context.Context, limit int) ([]TradeRecord, error)
	ListByPosition(ctx context.Context, positionID string) ([]TradeRecord, error)
}

// StatsStore persists per-day trading outcomes. Accumulate adds the delta to
// the day's row, creating it when absent.
type StatsStore interface {
	Accumulate(ctx context.Context, delta DailyStats) error
	GetDay(ctx context.Context, day time.Time) (DailyStats, error)
	ListDays(ctx context.Context, since time.Time) ([]DailyStats, error)
}
