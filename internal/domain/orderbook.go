package domain

import "time"

// OrderBookLevel is an aggregated price level. Price is rounded to cents.
type OrderBookLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// OrderBook is a depth-like view of one outcome built from executed trades.
type OrderBook struct {
	MarketID  string           `json:"market_id"`
	OutcomeID string           `json:"outcome_id"`
	Bids      []OrderBookLevel `json:"bids"`
	Asks      []OrderBookLevel `json:"asks"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// BestBid returns the highest bid price, or 0 when there are no bids.
func (b OrderBook) BestBid() float64 {
	if len(b.Bids) == 0 {
		return 0
	}
	return b.Bids[0].Price
}

// BestAsk returns the lowest ask price, or 0 when there are no asks.
func (b OrderBook) BestAsk() float64 {
	if len(b.Asks) == 0 {
		return 0
	}
	return b.Asks[0].Price
}
