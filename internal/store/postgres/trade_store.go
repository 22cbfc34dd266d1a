package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/lagbot/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

var _ domain.TradeStore = (*TradeStore)(nil)

const tradeSelectCols = `id, proposal_id, position_id, symbol, token_id, side,
	action, price, size_usd, fee_usd, venue, executed_at`

func scanTradeRows(rows pgx.Rows) ([]domain.TradeRecord, error) {
	var trades []domain.TradeRecord
	for rows.Next() {
		var t domain.TradeRecord
		var side string

		if err := rows.Scan(
			&t.ID, &t.ProposalID, &t.PositionID, &t.Symbol, &t.TokenID, &side,
			&t.Action, &t.Price, &t.SizeUSD, &t.FeeUSD, &t.Venue, &t.ExecutedAt,
		); err != nil {
			return nil, err
		}
		t.Side = domain.PositionSide(side)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Insert persists one executed fill. The row id is database-assigned.
func (s *TradeStore) Insert(ctx context.Context, rec domain.TradeRecord) error {
	const query = `
		INSERT INTO trades (
			proposal_id, position_id, symbol, token_id, side,
			action, price, size_usd, fee_usd, venue, executed_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11
		)`

	_, err := s.pool.Exec(ctx, query,
		rec.ProposalID, rec.PositionID, rec.Symbol, rec.TokenID, string(rec.Side),
		rec.Action, rec.Price, rec.SizeUSD, rec.FeeUSD, rec.Venue, rec.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade for position %s: %w", rec.PositionID, err)
	}
	return nil
}

// ListRecent returns the newest fills across all symbols.
func (s *TradeStore) ListRecent(ctx context.Context, limit int) ([]domain.TradeRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeSelectCols+` FROM trades
		 ORDER BY executed_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent trades: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan recent trades: %w", err)
	}
	return trades, nil
}

// ListByPosition returns the fills that opened and closed one position, in
// execution order.
func (s *TradeStore) ListByPosition(ctx context.Context, positionID string) ([]domain.TradeRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeSelectCols+` FROM trades
		 WHERE position_id = $1 ORDER BY executed_at ASC`, positionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades for position %s: %w", positionID, err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades for position %s: %w", positionID, err)
	}
	return trades, nil
}
