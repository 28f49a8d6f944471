package pricing

import (
	"math"
	"testing"

	"github.com/alanyoungcy/matchmarket/internal/domain"
)

func fee(v float64) *float64 { return &v }

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestBuildEffectivePricingNormalizes(t *testing.T) {
	sets := [][]float64{{100, 300}, {50, 75, 125}, {1, 2, 3, 4}}
	for _, pools := range sets {
		ep := BuildEffectivePricing(outcomes(pools...))
		var sum float64
		for _, v := range ep.NormalizedByID {
			sum += v
		}
		if !approx(sum, 1) {
			t.Errorf("pools %v: normalized sum = %v", pools, sum)
		}
		if !approx(ep.TotalEffective, 1) {
			t.Errorf("pools %v: total effective without fees = %v", pools, ep.TotalEffective)
		}
	}
}

func TestBuildEffectivePricingFees(t *testing.T) {
	set := outcomes(100, 300)
	set[0].FeeRate = fee(0.05)

	ep := BuildEffectivePricing(set)
	if !approx(ep.NormalizedByID["a"], 0.75) {
		t.Fatalf("normalized a = %v", ep.NormalizedByID["a"])
	}
	if !approx(ep.EffectiveByID["a"], 0.75*1.05) {
		t.Errorf("effective a = %v, want %v", ep.EffectiveByID["a"], 0.75*1.05)
	}
	if !approx(ep.EffectiveByID["b"], 0.25) {
		t.Errorf("effective b = %v, want 0.25", ep.EffectiveByID["b"])
	}
	if !approx(ep.TotalEffective, 0.75*1.05+0.25) {
		t.Errorf("total = %v", ep.TotalEffective)
	}
	if ep.Effective[0].FeeRate != 0.05 || ep.Effective[1].FeeRate != 0 {
		t.Errorf("fee rates = %v/%v", ep.Effective[0].FeeRate, ep.Effective[1].FeeRate)
	}
}

func TestNoPrice(t *testing.T) {
	t.Run("two outcomes use the complement", func(t *testing.T) {
		set := outcomes(100, 300)
		set[0].FeeRate = fee(0.2)
		ep := BuildEffectivePricing(set)
		if got := ep.NoPrice("a"); !approx(got, 0.25) {
			t.Errorf("NoPrice(a) = %v, want 0.25", got)
		}
	})

	t.Run("multi outcome sums the others with fees", func(t *testing.T) {
		set := outcomes(100, 200, 400)
		for i := range set {
			set[i].FeeRate = fee(0.1)
		}
		ep := BuildEffectivePricing(set)
		want := ep.EffectiveByID["b"] + ep.EffectiveByID["c"]
		if got := ep.NoPrice("a"); !approx(got, want) {
			t.Errorf("NoPrice(a) = %v, want %v", got, want)
		}
		if ep.TotalEffective <= 1 {
			t.Errorf("fees should push total above 1, got %v", ep.TotalEffective)
		}
	})

	t.Run("never negative", func(t *testing.T) {
		ep := EffectivePricing{
			Effective:      make([]domain.EffectiveOutcome, 3),
			EffectiveByID:  map[string]float64{"a": 0.9},
			TotalEffective: 0.5,
		}
		if got := ep.NoPrice("a"); got != 0 {
			t.Errorf("NoPrice = %v, want 0", got)
		}
	})
}

func TestNoPrices(t *testing.T) {
	ep := BuildEffectivePricing(outcomes(100, 300))
	got := ep.NoPrices()
	if !approx(got["a"], 0.25) || !approx(got["b"], 0.75) {
		t.Errorf("NoPrices = %v", got)
	}
}
