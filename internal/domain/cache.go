package domain

import (
	"context"
	"time"
)

// PricingSnapshot is the derived pricing state of a market at a point in time.
type PricingSnapshot struct {
	MarketID       string             `json:"market_id"`
	Type           MarketType         `json:"type"`
	Outcomes       []EffectiveOutcome `json:"outcomes"`
	NoPrices       map[string]float64 `json:"no_prices"`
	TotalEffective float64            `json:"total_effective"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// PricingCache stores the latest derived pricing per market.
type PricingCache interface {
	SetPricing(ctx context.Context, snap PricingSnapshot) error
	GetPricing(ctx context.Context, marketID string) (PricingSnapshot, error)
	GetPrices(ctx context.Context, marketID string) (map[string]float64, error)
}

// OrderbookCache stores the aggregated trade-tape depth per outcome.
type OrderbookCache interface {
	SetBook(ctx context.Context, book OrderBook) error
	GetBook(ctx context.Context, marketID, outcomeID string) (OrderBook, error)
	GetBBO(ctx context.Context, marketID, outcomeID string) (bestBid, bestAsk float64, err error)
}

// HistoryCache stores built chart series per market, outcome and timeframe.
// An empty outcome id addresses the multi-outcome series.
type HistoryCache interface {
	SetSeries(ctx context.Context, key SeriesKey, rows []HistoryRow) error
	GetSeries(ctx context.Context, key SeriesKey) ([]HistoryRow, error)
	UpsertRow(ctx context.Context, key SeriesKey, row HistoryRow) error
}

// SeriesKey addresses one cached chart series.
type SeriesKey struct {
	MarketID  string
	OutcomeID string
	Timeframe string
}

// MarketCache provides fast market metadata lookups.
type MarketCache interface {
	Set(ctx context.Context, market Market) error
	Get(ctx context.Context, id string) (Market, error)
	Invalidate(ctx context.Context, id string) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Lease is a held distributed lock.
type Lease interface {
	// Refresh extends the lease by its TTL. It returns ErrLockHeld when the
	// lease has expired and another holder took the key.
	Refresh(ctx context.Context) error
	// Release gives the key up. It is safe to call more than once.
	Release()
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
