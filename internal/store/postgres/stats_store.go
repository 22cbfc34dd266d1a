package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/lagbot/internal/domain"
)

// StatsStore implements domain.StatsStore using PostgreSQL.
type StatsStore struct {
	pool *pgxpool.Pool
}

// NewStatsStore creates a StatsStore backed by the given connection pool.
func NewStatsStore(pool *pgxpool.Pool) *StatsStore {
	return &StatsStore{pool: pool}
}

var _ domain.StatsStore = (*StatsStore)(nil)

// Accumulate adds the delta onto the day's row, creating it when absent.
func (s *StatsStore) Accumulate(ctx context.Context, delta domain.DailyStats) error {
	const query = `
		INSERT INTO daily_stats (day, trades, wins, losses, realized_pnl)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (day) DO UPDATE SET
			trades       = daily_stats.trades + EXCLUDED.trades,
			wins         = daily_stats.wins + EXCLUDED.wins,
			losses       = daily_stats.losses + EXCLUDED.losses,
			realized_pnl = daily_stats.realized_pnl + EXCLUDED.realized_pnl`

	day := delta.Day.UTC().Truncate(24 * time.Hour)
	_, err := s.pool.Exec(ctx, query,
		day, delta.Trades, delta.Wins, delta.Losses, delta.RealizedPnL)
	if err != nil {
		return fmt.Errorf("postgres: accumulate daily stats for %s: %w",
			day.Format("2006-01-02"), err)
	}
	return nil
}

// GetDay returns the rollup for one UTC day.
func (s *StatsStore) GetDay(ctx context.Context, day time.Time) (domain.DailyStats, error) {
	var st domain.DailyStats
	err := s.pool.QueryRow(ctx,
		`SELECT day, trades, wins, losses, realized_pnl
		 FROM daily_stats WHERE day = $1`,
		day.UTC().Truncate(24*time.Hour),
	).Scan(&st.Day, &st.Trades, &st.Wins, &st.Losses, &st.RealizedPnL)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.DailyStats{}, domain.ErrNotFound
		}
		return domain.DailyStats{}, fmt.Errorf("postgres: get daily stats: %w", err)
	}
	return st, nil
}

// ListDays returns rollups from the given day forward, newest first.
func (s *StatsStore) ListDays(ctx context.Context, since time.Time) ([]domain.DailyStats, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT day, trades, wins, losses, realized_pnl
		 FROM daily_stats WHERE day >= $1 ORDER BY day DESC`,
		since.UTC().Truncate(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("postgres: list daily stats: %w", err)
	}
	defer rows.Close()

	var out []domain.DailyStats
	for rows.Next() {
		var st domain.DailyStats
		if err := rows.Scan(&st.Day, &st.Trades, &st.Wins, &st.Losses, &st.RealizedPnL); err != nil {
			return nil, fmt.Errorf("postgres: scan daily stats: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
