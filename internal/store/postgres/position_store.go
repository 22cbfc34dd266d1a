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

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

var _ domain.PositionStore = (*PositionStore)(nil)

const positionSelectCols = `id, symbol, token_id, side, entry_price, current_price,
	size_usd, status, opened_at, closed_at, exit_price, realized_pnl, close_reason`

func scanPositionRow(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var side, status, closeReason string

	err := row.Scan(
		&p.ID, &p.Symbol, &p.TokenID, &side,
		&p.EntryPrice, &p.CurrentPrice, &p.SizeUSD, &status,
		&p.OpenedAt, &p.ClosedAt, &p.ExitPrice, &p.RealizedPnL, &closeReason,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Side = domain.PositionSide(side)
	p.Status = domain.PositionStatus(status)
	p.CloseReason = domain.CloseReason(closeReason)
	return p, nil
}

func scanPositionRows(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		var p domain.Position
		var side, status, closeReason string

		if err := rows.Scan(
			&p.ID, &p.Symbol, &p.TokenID, &side,
			&p.EntryPrice, &p.CurrentPrice, &p.SizeUSD, &status,
			&p.OpenedAt, &p.ClosedAt, &p.ExitPrice, &p.RealizedPnL, &closeReason,
		); err != nil {
			return nil, err
		}
		p.Side = domain.PositionSide(side)
		p.Status = domain.PositionStatus(status)
		p.CloseReason = domain.CloseReason(closeReason)
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Create inserts a newly opened position.
func (s *PositionStore) Create(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, symbol, token_id, side, entry_price, current_price,
			size_usd, status, opened_at, closed_at, exit_price,
			realized_pnl, close_reason, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.Symbol, p.TokenID, string(p.Side),
		p.EntryPrice, p.CurrentPrice, p.SizeUSD, string(p.Status),
		p.OpenedAt, p.ClosedAt, p.ExitPrice,
		p.RealizedPnL, string(p.CloseReason),
	)
	if err != nil {
		return fmt.Errorf("postgres: create position %s: %w", p.ID, err)
	}
	return nil
}

// MarkClosed records the close of an open position. The position carries the
// exit fields already settled by the ledger.
func (s *PositionStore) MarkClosed(ctx context.Context, p domain.Position) error {
	const query = `
		UPDATE positions SET
			status        = $2,
			current_price = $3,
			closed_at     = $4,
			exit_price    = $5,
			realized_pnl  = $6,
			close_reason  = $7,
			updated_at    = NOW()
		WHERE id = $1 AND status = 'open'`

	tag, err := s.pool.Exec(ctx, query,
		p.ID, string(p.Status), p.CurrentPrice,
		p.ClosedAt, p.ExitPrice, p.RealizedPnL, string(p.CloseReason),
	)
	if err != nil {
		return fmt.Errorf("postgres: close position %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID retrieves a single position.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE id = $1`, id)

	p, err := scanPositionRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// ListOpen returns all open positions, newest first.
func (s *PositionStore) ListOpen(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE status = 'open' ORDER BY opened_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open positions: %w", err)
	}
	return positions, nil
}

// ListClosed returns closed positions with pagination and optional time
// filtering on the close timestamp.
func (s *PositionStore) ListClosed(ctx context.Context, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE status = 'closed'`
	var args []any
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND closed_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND closed_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY closed_at DESC"

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
		return nil, fmt.Errorf("postgres: list closed positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan closed positions: %w", err)
	}
	return positions, nil
}

// ListClosedBefore returns positions closed strictly before the given time,
// in chronological order for archiving.
func (s *PositionStore) ListClosedBefore(ctx context.Context, before time.Time) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE status = 'closed' AND closed_at < $1
		 ORDER BY closed_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed positions before: %w", err)
	}
	defer rows.Close()
	return scanPositionRows(rows)
}

// DeleteClosedBefore deletes positions closed before the given time. Returns
// the number deleted. Open positions are never touched.
func (s *PositionStore) DeleteClosedBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM positions WHERE status = 'closed' AND closed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete closed positions before: %w", err)
	}
	return tag.RowsAffected(), nil
}
