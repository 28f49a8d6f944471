package domain

// Well-known outcome slugs. Multi-outcome markets may use free-form slugs.
const (
	SlugHome = "home"
	SlugAway = "away"
	SlugDraw = "draw"
	SlugYes  = "yes"
	SlugNo   = "no"
)

// Outcome is one selectable result of a market. Slugs are not guaranteed
// unique; callers fall back to ID when they collide.
type Outcome struct {
	ID       string   `json:"id"`
	MarketID string   `json:"market_id,omitempty"`
	Label    string   `json:"label"`
	Slug     string   `json:"outcome_slug,omitempty"`
	Pool     float64  `json:"pool"`
	FeeRate  *float64 `json:"current_fee_rate,omitempty"`
}

// Fee returns the outcome's fee rate, or 0 when none is set.
func (o Outcome) Fee() float64 {
	if o.FeeRate == nil {
		return 0
	}
	return *o.FeeRate
}

// PricedOutcome is an outcome with its raw inverse-pool price.
type PricedOutcome struct {
	ID           string  `json:"id"`
	Label        string  `json:"label"`
	Pool         float64 `json:"pool"`
	Slug         string  `json:"outcome_slug,omitempty"`
	Price        float64 `json:"price"`
	PriceDisplay string  `json:"priceDisplay"`
	Probability  string  `json:"probability"`
}

// EffectiveOutcome adds the normalized and fee-inclusive prices.
type EffectiveOutcome struct {
	PricedOutcome
	NormalizedPrice float64 `json:"normalizedPrice"`
	EffectivePrice  float64 `json:"effectivePrice"`
	FeeRate         float64 `json:"feeRate"`
}
