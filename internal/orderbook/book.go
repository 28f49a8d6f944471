// Package orderbook aggregates the executed-trade tape into price levels.
// It is a depth-like view of prints, not a live order book: levels only grow
// and are never cancelled.
package orderbook

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/matchmarket/internal/domain"
)

// DefaultWindow is the number of most recent trades a book is built from.
const DefaultWindow = 100

// Print is the part of a trade the book needs.
type Print struct {
	Price  float64
	Shares float64
	Side   domain.TradeSide
}

// PrintOf extracts the book-relevant fields of a trade.
func PrintOf(t domain.Trade) Print {
	return Print{Price: t.Price, Shares: t.Shares, Side: t.Side}
}

type level struct {
	price decimal.Decimal
	size  decimal.Decimal
}

// Book holds bids and asks for one outcome. Buys land on bids, everything
// else on asks; prices are rounded to cents and sizes summed per level.
// A Book has a single owner and is not safe for concurrent use.
type Book struct {
	marketID  string
	outcomeID string
	bids      []level // descending
	asks      []level // ascending
	updatedAt time.Time
}

// New returns an empty book.
func New(marketID, outcomeID string) *Book {
	return &Book{marketID: marketID, outcomeID: outcomeID}
}

// Build replaces the book with the aggregate of prints.
func (b *Book) Build(prints []Print) domain.OrderBook {
	b.bids, b.asks = nil, nil
	for _, p := range prints {
		b.add(p)
	}
	b.updatedAt = time.Now().UTC()
	return b.Snapshot()
}

// Apply adds one print, growing an existing level or inserting a new one at
// its sorted position.
func (b *Book) Apply(p Print) domain.OrderBook {
	b.add(p)
	b.updatedAt = time.Now().UTC()
	return b.Snapshot()
}

func (b *Book) add(p Print) {
	price := roundPrice(p.Price)
	shares := decimal.NewFromFloat(p.Shares)
	if p.Side == domain.SideBuy {
		b.bids = upsert(b.bids, price, shares, func(a, c decimal.Decimal) bool { return a.GreaterThan(c) })
		return
	}
	b.asks = upsert(b.asks, price, shares, func(a, c decimal.Decimal) bool { return a.LessThan(c) })
}

// upsert keeps levels ordered by before and merges equal prices.
func upsert(levels []level, price, shares decimal.Decimal, before func(a, b decimal.Decimal) bool) []level {
	i := sort.Search(len(levels), func(i int) bool { return !before(levels[i].price, price) })
	if i < len(levels) && levels[i].price.Equal(price) {
		levels[i].size = levels[i].size.Add(shares)
		return levels
	}
	levels = append(levels, level{})
	copy(levels[i+1:], levels[i:])
	levels[i] = level{price: price, size: shares}
	return levels
}

// roundPrice rounds to cents with halves going up, matching the display
// layer's rounding of the raw float.
func roundPrice(p float64) decimal.Decimal {
	cents := decimal.NewFromFloat(p * 100).Add(decimal.NewFromFloat(0.5)).Floor()
	return cents.Div(decimal.NewFromInt(100))
}

// Snapshot returns a copy of the book.
func (b *Book) Snapshot() domain.OrderBook {
	return domain.OrderBook{
		MarketID:  b.marketID,
		OutcomeID: b.outcomeID,
		Bids:      levels(b.bids),
		Asks:      levels(b.asks),
		UpdatedAt: b.updatedAt,
	}
}

func levels(in []level) []domain.OrderBookLevel {
	out := make([]domain.OrderBookLevel, len(in))
	for i, l := range in {
		out[i] = domain.OrderBookLevel{Price: l.price.InexactFloat64(), Size: l.size.InexactFloat64()}
	}
	return out
}
