package domain

import (
	"context"
	"encoding/json"
	"time"
)

// ChangeType is the kind of row mutation carried by a ChangeEvent.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// Tables whose changes the workers react to.
const (
	TableOutcomes     = "outcomes"
	TableMarkets      = "markets"
	TablePriceHistory = "price_history"
	TableTrades       = "trades"
)

// ChangeEvent is an undecoded row mutation. Rows are decoded at the boundary
// before they reach any aggregator.
type ChangeEvent struct {
	Table      string          `json:"table"`
	Type       ChangeType      `json:"type"`
	MarketID   string          `json:"market_id"`
	New        json.RawMessage `json:"record,omitempty"`
	Old        json.RawMessage `json:"old_record,omitempty"`
	ReceivedAt time.Time       `json:"-"`
}

// Subscription filters a change feed. An empty MarketID matches every market,
// and an empty Table matches every table.
type Subscription struct {
	Table    string
	MarketID string
}

// Matches reports whether ev passes the subscription filter.
func (s Subscription) Matches(ev ChangeEvent) bool {
	if s.Table != "" && s.Table != ev.Table {
		return false
	}
	if s.MarketID != "" && s.MarketID != ev.MarketID {
		return false
	}
	return true
}

// ChangeFeed delivers row change events. The owner opens it once, hands
// subscriptions to workers and closes it on shutdown; Close ends every
// subscription channel.
type ChangeFeed interface {
	Open(ctx context.Context) error
	Subscribe(ctx context.Context, sub Subscription) (<-chan ChangeEvent, error)
	Close() error
}
