package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/lagbot/internal/domain"
)

// SignalStore implements domain.SignalStore using PostgreSQL.
type SignalStore struct {
	pool *pgxpool.Pool
}

// NewSignalStore creates a SignalStore backed by the given connection pool.
func NewSignalStore(pool *pgxpool.Pool) *SignalStore {
	return &SignalStore{pool: pool}
}

var _ domain.SignalStore = (*SignalStore)(nil)

const signalSelectCols = `id, symbol, direction, strength, confidence, prob_gap,
	pct_diff, lag_seconds, recommended_usd, expected_edge_pct, actionable, created_at`

func scanSignalRows(rows pgx.Rows) ([]domain.Signal, error) {
	var signals []domain.Signal
	for rows.Next() {
		var s domain.Signal
		var direction, strength string

		if err := rows.Scan(
			&s.ID, &s.Symbol, &direction, &strength,
			&s.Confidence, &s.ProbGap, &s.PctDiff, &s.LagSeconds,
			&s.RecommendedUSD, &s.ExpectedEdgePct, &s.Actionable, &s.CreatedAt,
		); err != nil {
			return nil, err
		}
		s.Direction = domain.Direction(direction)
		s.Strength = domain.ParseStrength(strength)
		signals = append(signals, s)
	}
	return signals, rows.Err()
}

// Insert persists one scored signal.
func (s *SignalStore) Insert(ctx context.Context, sig domain.Signal) error {
	const query = `
		INSERT INTO signals (
			id, symbol, direction, strength, confidence, prob_gap,
			pct_diff, lag_seconds, recommended_usd, expected_edge_pct,
			actionable, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12
		)`

	_, err := s.pool.Exec(ctx, query,
		sig.ID, sig.Symbol, string(sig.Direction), sig.Strength.String(),
		sig.Confidence, sig.ProbGap, sig.PctDiff, sig.LagSeconds,
		sig.RecommendedUSD, sig.ExpectedEdgePct,
		sig.Actionable, sig.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert signal %s: %w", sig.ID, err)
	}
	return nil
}

// ListRecent returns the newest signals across all symbols.
func (s *SignalStore) ListRecent(ctx context.Context, limit int) ([]domain.Signal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+signalSelectCols+` FROM signals
		 ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent signals: %w", err)
	}
	defer rows.Close()

	signals, err := scanSignalRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan recent signals: %w", err)
	}
	return signals, nil
}

// ListBySymbol returns signals for one symbol with pagination and optional
// time filtering.
func (s *SignalStore) ListBySymbol(ctx context.Context, symbol string, opts domain.ListOpts) ([]domain.Signal, error) {
	query := `SELECT ` + signalSelectCols + ` FROM signals WHERE symbol = $1`
	args := []any{symbol}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list signals by symbol: %w", err)
	}
	defer rows.Close()

	signals, err := scanSignalRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan signals by symbol: %w", err)
	}
	return signals, nil
}

// ListBefore returns all signals created strictly before the given time, in
// chronological order for archiving.
func (s *SignalStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Signal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+signalSelectCols+` FROM signals
		 WHERE created_at < $1 ORDER BY created_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list signals before: %w", err)
	}
	defer rows.Close()
	return scanSignalRows(rows)
}

// DeleteBefore deletes signals created before the given time. Returns the
// number deleted.
func (s *SignalStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM signals WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete signals before: %w", err)
	}
	return tag.RowsAffected(), nil
}
