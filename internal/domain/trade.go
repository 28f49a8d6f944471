package domain

import "time"

// TradeSide is the direction of an executed trade.
type TradeSide string

const (
	SideBuy  TradeSide = "buy"
	SideSell TradeSide = "sell"
)

// Trade is an executed print from the trade tape.
type Trade struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	MarketID  string    `json:"market_id"`
	OutcomeID string    `json:"outcome_id"`
	Side      TradeSide `json:"side"`
	Shares    float64   `json:"shares"`
	Price     float64   `json:"price"`
	Amount    float64   `json:"amount"`
	Time      time.Time `json:"ts"`
}
