package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/matchmarket/internal/domain"
)

// TradeStore implements domain.TradeStore over the trades table.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, user_id, market_id, outcome_id, side, shares, price, amount, created_at`

func scanTradeRows(rows pgx.Rows) ([]domain.Trade, error) {
	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var id int64
		var side string
		if err := rows.Scan(
			&id, &t.UserID, &t.MarketID, &t.OutcomeID,
			&side, &t.Shares, &t.Price, &t.Amount, &t.Time,
		); err != nil {
			return nil, err
		}
		t.ID = strconv.FormatInt(id, 10)
		t.Side = domain.TradeSide(side)
		t.Time = t.Time.UTC()
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// ListRecent returns the newest trades first.
func (s *TradeStore) ListRecent(ctx context.Context, marketID, outcomeID string, limit int) ([]domain.Trade, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE market_id = $1`
	args := []any{marketID}
	if outcomeID != "" {
		args = append(args, outcomeID)
		query += ` AND outcome_id = $2`
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent trades %s: %w", marketID, err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades %s: %w", marketID, err)
	}
	return trades, nil
}

// ListByMarket pages through a market's trades in ascending time order.
func (s *TradeStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Trade, error) {
	query, args := tradePageQuery(marketID, opts)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades %s: %w", marketID, err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades %s: %w", marketID, err)
	}
	return trades, nil
}

func tradePageQuery(marketID string, opts domain.ListOpts) (string, []any) {
	var b strings.Builder
	b.WriteString(`SELECT ` + tradeSelectCols + ` FROM trades WHERE market_id = $1`)
	args := []any{marketID}
	if opts.Since != nil {
		args = append(args, *opts.Since)
		fmt.Fprintf(&b, ` AND created_at >= $%d`, len(args))
	}
	if opts.Until != nil {
		args = append(args, *opts.Until)
		fmt.Fprintf(&b, ` AND created_at < $%d`, len(args))
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 1000
	}
	args = append(args, limit, opts.Offset)
	fmt.Fprintf(&b, ` ORDER BY created_at, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	return b.String(), args
}

var _ domain.TradeStore = (*TradeStore)(nil)
