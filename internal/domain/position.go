package domain

// Position is a user's holding in one outcome.
type Position struct {
	ID          string  `json:"id"`
	UserID      string  `json:"user_id"`
	MarketID    string  `json:"market_id"`
	OutcomeID   string  `json:"outcome_id"`
	Shares      float64 `json:"shares"`
	AvgPrice    float64 `json:"avg_price"`
	AmountSpent float64 `json:"amount_spent"`
}
