package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/matchmarket/internal/decode"
	"github.com/alanyoungcy/matchmarket/internal/domain"
)

// defaultHistoryLimit applies when ListOpts carries no limit.
const defaultHistoryLimit = 500

// HistoryStore implements domain.HistoryStore over price_history. Rows are
// read as JSON objects and go through the same decoder as feed events, so a
// malformed row is dropped instead of reaching an aggregator.
type HistoryStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewHistoryStore creates a new HistoryStore backed by the given connection pool.
func NewHistoryStore(pool *pgxpool.Pool, logger *slog.Logger) *HistoryStore {
	return &HistoryStore{pool: pool, logger: logger.With(slog.String("component", "history_store"))}
}

// ListByMarket returns the latest price points of every outcome of a market.
func (s *HistoryStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.PricePoint, error) {
	query, args := historyQuery("market_id", marketID, opts)
	return s.list(ctx, "market "+marketID, query, args)
}

// ListByOutcome returns the latest price points of one outcome.
func (s *HistoryStore) ListByOutcome(ctx context.Context, outcomeID string, opts domain.ListOpts) ([]domain.PricePoint, error) {
	query, args := historyQuery("outcome_id", outcomeID, opts)
	return s.list(ctx, "outcome "+outcomeID, query, args)
}

func (s *HistoryStore) list(ctx context.Context, what, query string, args []any) ([]domain.PricePoint, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list history %s: %w", what, err)
	}
	defer rows.Close()

	var raws []json.RawMessage
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("postgres: scan price point: %w", err)
		}
		raws = append(raws, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list history %s: %w", what, err)
	}

	points, rejected := decodePoints(raws)
	for _, e := range rejected {
		s.logger.WarnContext(ctx, "postgres: skipping price point",
			slog.String("query", what),
			slog.String("error", e.Error()),
		)
	}
	return points, nil
}

// decodePoints decodes newest-first rows into ascending points.
func decodePoints(raws []json.RawMessage) ([]domain.PricePoint, []*decode.DecodeError) {
	points, rejected := decode.Partition(decode.All(raws, decode.DecodePricePoint))
	reversePoints(points)
	return points, rejected
}

// historyQuery selects newest first so LIMIT keeps the most recent rows;
// list reverses them into ascending order.
func historyQuery(col, id string, opts domain.ListOpts) (string, []any) {
	var b strings.Builder
	b.WriteString(`SELECT json_build_object(
		'market_id', market_id, 'outcome_id', outcome_id, 'price', price, 'time', created_at)
		FROM price_history WHERE `)
	b.WriteString(col)
	b.WriteString(` = $1`)
	args := []any{id}

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
		limit = defaultHistoryLimit
	}
	args = append(args, limit)
	fmt.Fprintf(&b, ` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args))
	return b.String(), args
}

func reversePoints(p []domain.PricePoint) {
	for i, j := 0, len(p)-1; i < j; i, j = i+1, j-1 {
		p[i], p[j] = p[j], p[i]
	}
}

var _ domain.HistoryStore = (*HistoryStore)(nil)
