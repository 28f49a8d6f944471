package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/matchmarket/internal/domain"
)

// PositionStore implements domain.PositionStore over the positions table.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// ListOpen returns a user's positions holding shares.
func (s *PositionStore) ListOpen(ctx context.Context, userID string) ([]domain.Position, error) {
	const query = `
		SELECT id, user_id, market_id, outcome_id, shares, avg_price, amount_spent
		FROM positions
		WHERE user_id = $1 AND shares > 0
		ORDER BY market_id, outcome_id`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions %s: %w", userID, err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		var p domain.Position
		if err := rows.Scan(
			&p.ID, &p.UserID, &p.MarketID, &p.OutcomeID,
			&p.Shares, &p.AvgPrice, &p.AmountSpent,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list open positions %s: %w", userID, err)
	}
	return positions, nil
}

var _ domain.PositionStore = (*PositionStore)(nil)
