package pricing

import (
	"math"

	"github.com/alanyoungcy/matchmarket/internal/domain"
)

// EffectivePricing is the fee-inclusive view of an outcome set. Normalized
// prices sum to 1 whenever the raw prices have a positive total. Effective
// prices sum to TotalEffective, which carries the fee overround and is not
// required to equal 1.
type EffectivePricing struct {
	Priced         []domain.PricedOutcome
	Effective      []domain.EffectiveOutcome
	EffectiveByID  map[string]float64
	NormalizedByID map[string]float64
	TotalEffective float64
}

// BuildEffectivePricing prices outcomes with CalculateOdds, rescales the raw
// prices to sum to 1 and applies each outcome's fee multiplier.
func BuildEffectivePricing(outcomes []domain.Outcome) EffectivePricing {
	priced := CalculateOdds(outcomes)

	var baseTotal float64
	for _, p := range priced {
		baseTotal += clampPrice(p.Price)
	}

	feeByID := make(map[string]float64, len(outcomes))
	for _, o := range outcomes {
		feeByID[o.ID] = o.Fee()
	}

	ep := EffectivePricing{
		Priced:         priced,
		Effective:      make([]domain.EffectiveOutcome, 0, len(priced)),
		EffectiveByID:  make(map[string]float64, len(priced)),
		NormalizedByID: make(map[string]float64, len(priced)),
	}
	for _, p := range priced {
		raw := clampPrice(p.Price)
		normalized := raw
		if baseTotal > 0 {
			normalized = raw / baseTotal
		}
		fee := feeByID[p.ID]
		effective := normalized * (1 + fee)

		p.Price = raw
		ep.Effective = append(ep.Effective, domain.EffectiveOutcome{
			PricedOutcome:   p,
			NormalizedPrice: normalized,
			EffectivePrice:  effective,
			FeeRate:         fee,
		})
		ep.EffectiveByID[p.ID] = effective
		ep.NormalizedByID[p.ID] = normalized
		ep.TotalEffective += effective
	}
	return ep
}

func clampPrice(p float64) float64 {
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	return p
}

// YesPrice returns the effective price of the selected outcome. An id that is
// not in the set falls back to a uniform 1/n.
func (ep EffectivePricing) YesPrice(selectedID string) float64 {
	if v, ok := ep.EffectiveByID[selectedID]; ok {
		return v
	}
	return ep.fallback()
}

// NoPrice returns the price of betting against the selected outcome. With
// more than two outcomes it is the combined effective price of every other
// outcome, fees included. With two or fewer it is the plain complement of the
// selected normalized price.
func (ep EffectivePricing) NoPrice(selectedID string) float64 {
	if len(ep.Effective) > 2 {
		return math.Max(0, ep.TotalEffective-ep.YesPrice(selectedID))
	}
	normalized, ok := ep.NormalizedByID[selectedID]
	if !ok {
		normalized = ep.fallback()
	}
	return 1 - normalized
}

// NoPrices returns NoPrice for every outcome keyed by id.
func (ep EffectivePricing) NoPrices() map[string]float64 {
	out := make(map[string]float64, len(ep.Effective))
	for _, e := range ep.Effective {
		out[e.ID] = ep.NoPrice(e.ID)
	}
	return out
}

func (ep EffectivePricing) fallback() float64 {
	if len(ep.Effective) == 0 {
		return 0.33
	}
	return 1 / float64(len(ep.Effective))
}
