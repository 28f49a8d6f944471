package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/matchmarket/internal/domain"
)

// PositionValue is a position marked to the current outcome price.
type PositionValue struct {
	domain.Position
	CurrentPrice  float64 `json:"current_price"`
	CurrentValue  float64 `json:"current_value"`
	ProfitLoss    float64 `json:"profit_loss"`
	ProfitLossPct float64 `json:"profit_loss_pct"`
}

// ValuePosition marks a position to priceByID. A missing price falls back
// to the position's average entry price.
func ValuePosition(pos domain.Position, priceByID map[string]float64) PositionValue {
	shares := decimal.NewFromFloat(pos.Shares)
	spent := decimal.NewFromFloat(pos.AmountSpent)

	avg := decimal.NewFromFloat(pos.AvgPrice)
	if avg.IsZero() && !shares.IsZero() {
		avg = spent.Div(shares)
	}
	current := avg
	if p, ok := priceByID[pos.OutcomeID]; ok {
		current = decimal.NewFromFloat(p)
	}

	value := shares.Mul(current)
	pnl := value.Sub(spent)
	pct := decimal.Zero
	if spent.IsPositive() {
		pct = pnl.Div(spent).Mul(decimal.NewFromInt(100))
	}

	return PositionValue{
		Position:      pos,
		CurrentPrice:  current.InexactFloat64(),
		CurrentValue:  value.InexactFloat64(),
		ProfitLoss:    pnl.InexactFloat64(),
		ProfitLossPct: pct.InexactFloat64(),
	}
}

// PriceMap prices every outcome of every market with the raw inverse-pool
// price.
func PriceMap(markets []domain.Market) map[string]float64 {
	out := make(map[string]float64)
	for _, m := range markets {
		for _, p := range CalculateOdds(m.Outcomes) {
			out[p.ID] = p.Price
		}
	}
	return out
}

// SellEstimate is the expected proceeds of selling a share of a holding.
type SellEstimate struct {
	Shares   float64 `json:"shares"`
	Proceeds float64 `json:"proceeds"`
}

// EstimateSell prices selling pct percent of a YES holding at price.
func EstimateSell(shares, pct, price float64) SellEstimate {
	sold := decimal.NewFromFloat(shares).Mul(decimal.NewFromFloat(pct)).Div(decimal.NewFromInt(100))
	return SellEstimate{
		Shares:   sold.InexactFloat64(),
		Proceeds: sold.Mul(decimal.NewFromFloat(price)).InexactFloat64(),
	}
}

// EstimateNoSell prices selling pct percent of a NO holding, which is spread
// across every other outcome. Each leg is valued at its own price, falling
// back to fallback when unpriced.
func EstimateNoSell(legs []domain.Position, pct float64, priceByID map[string]float64, fallback float64) SellEstimate {
	var total SellEstimate
	for _, leg := range legs {
		price, ok := priceByID[leg.OutcomeID]
		if !ok {
			price = fallback
		}
		e := EstimateSell(leg.Shares, pct, price)
		total.Shares += e.Shares
		total.Proceeds += e.Proceeds
	}
	return total
}
