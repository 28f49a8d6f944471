package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore reads market metadata from the market data store.
type MarketStore interface {
	GetMarket(ctx context.Context, id string) (Market, error)
	GetMatch(ctx context.Context, id string) (Match, error)
	ListOutcomes(ctx context.Context, marketID string) ([]Outcome, error)
	ListActiveMarkets(ctx context.Context, opts ListOpts) ([]Market, error)
}

// HistoryStore reads raw price observations. Both lists return the most
// recent opts.Limit rows at or after opts.Since, in ascending time order.
type HistoryStore interface {
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]PricePoint, error)
	ListByOutcome(ctx context.Context, outcomeID string, opts ListOpts) ([]PricePoint, error)
}

// TradeStore reads executed trades.
type TradeStore interface {
	// ListRecent returns the latest limit trades, newest first. An empty
	// outcomeID covers every outcome of the market.
	ListRecent(ctx context.Context, marketID, outcomeID string, limit int) ([]Trade, error)
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]Trade, error)
}

// PositionStore reads user positions.
type PositionStore interface {
	ListOpen(ctx context.Context, userID string) ([]Position, error)
}
