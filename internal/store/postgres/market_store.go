package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/matchmarket/internal/domain"
)

// MarketStore implements domain.MarketStore over the matches, markets and
// outcomes tables.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketCols = `id, match_id, type, status, liquidity_usdc, risk_multiplier, updated_at`

func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var status string
	if err := row.Scan(
		&m.ID, &m.MatchID, &m.Type, &status,
		&m.Liquidity, &m.RiskMultiplier, &m.UpdatedAt,
	); err != nil {
		return domain.Market{}, err
	}
	m.Status = domain.MarketStatus(status)
	return m, nil
}

// GetMarket returns the market with its outcomes in display order.
func (s *MarketStore) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	m, err := scanMarket(s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}

	m.Outcomes, err = s.ListOutcomes(ctx, id)
	if err != nil {
		return domain.Market{}, err
	}
	return m, nil
}

// GetMatch returns a match by id.
func (s *MarketStore) GetMatch(ctx context.Context, id string) (domain.Match, error) {
	const query = `
		SELECT id, title, sport, home_team, away_team, status,
		       home_goals, away_goals, simulation_minute, positions, start_time
		FROM matches WHERE id = $1`

	var m domain.Match
	var sport *string
	var status string
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&m.ID, &m.Title, &sport, &m.HomeTeam, &m.AwayTeam, &status,
		&m.HomeGoals, &m.AwayGoals, &m.SimulationMinute, &m.Positions, &m.StartsAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Match{}, domain.ErrNotFound
		}
		return domain.Match{}, fmt.Errorf("postgres: get match %s: %w", id, err)
	}
	if sport != nil {
		m.Sport = *sport
	}
	m.Status = domain.MarketStatus(status)
	return m, nil
}

// ListOutcomes returns a market's outcomes ordered by position, then id.
func (s *MarketStore) ListOutcomes(ctx context.Context, marketID string) ([]domain.Outcome, error) {
	const query = `
		SELECT id, market_id, label, outcome_slug, pool, current_fee_rate
		FROM outcomes WHERE market_id = $1
		ORDER BY position, id`

	rows, err := s.pool.Query(ctx, query, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list outcomes %s: %w", marketID, err)
	}
	defer rows.Close()

	var outcomes []domain.Outcome
	for rows.Next() {
		var o domain.Outcome
		if err := rows.Scan(&o.ID, &o.MarketID, &o.Label, &o.Slug, &o.Pool, &o.FeeRate); err != nil {
			return nil, fmt.Errorf("postgres: scan outcome: %w", err)
		}
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list outcomes %s: %w", marketID, err)
	}
	return outcomes, nil
}

// ListActiveMarkets returns markets that are not resolved, most recently
// updated first. Outcomes are not loaded.
func (s *MarketStore) ListActiveMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 1000
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+marketCols+` FROM markets
		 WHERE status <> $1
		 ORDER BY updated_at DESC
		 LIMIT $2 OFFSET $3`,
		string(domain.StatusResolved), limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list active markets: %w", err)
	}
	return markets, nil
}

var _ domain.MarketStore = (*MarketStore)(nil)
