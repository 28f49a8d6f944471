// Package pricing derives outcome prices from AMM pools.
//
// Prices follow an inverse-pool law: weight_i = 1/max(pool_i, MinPool) and
// price_i = weight_i / Σweight. An outcome with less pool behind it gets a
// higher price. This is not a constant-product spot price.
package pricing

import (
	"math"

	"github.com/alanyoungcy/matchmarket/internal/domain"
	"github.com/alanyoungcy/matchmarket/internal/numfmt"
)

// MinPool is the floor applied to every pool before taking its reciprocal.
const MinPool = 0.0001

// CalculateOdds maps an outcome set to raw prices. Prices are rounded to two
// decimals before the cent and percent displays are derived from them. When
// the total weight is zero or not a number every outcome gets 1/n.
func CalculateOdds(outcomes []domain.Outcome) []domain.PricedOutcome {
	out := make([]domain.PricedOutcome, 0, len(outcomes))
	if len(outcomes) == 0 {
		return out
	}

	weights := make([]float64, len(outcomes))
	var total float64
	for i, o := range outcomes {
		weights[i] = 1 / math.Max(o.Pool, MinPool)
		total += weights[i]
	}

	if total == 0 || !numfmt.Finite(total) {
		uniform := 1 / float64(len(outcomes))
		for _, o := range outcomes {
			out = append(out, priced(o, uniform))
		}
		return out
	}

	for i, o := range outcomes {
		out = append(out, priced(o, numfmt.RoundTo(weights[i]/total, 2)))
	}
	return out
}

func priced(o domain.Outcome, price float64) domain.PricedOutcome {
	return domain.PricedOutcome{
		ID:           o.ID,
		Label:        o.Label,
		Pool:         o.Pool,
		Slug:         o.Slug,
		Price:        price,
		PriceDisplay: numfmt.Cents(price),
		Probability:  numfmt.Percent(price),
	}
}
