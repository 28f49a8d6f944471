package pricing

import (
	"math"
	"testing"

	"github.com/alanyoungcy/matchmarket/internal/domain"
)

func TestValuePosition(t *testing.T) {
	pos := domain.Position{OutcomeID: "a", Shares: 10, AmountSpent: 4, AvgPrice: 0.4}

	got := ValuePosition(pos, map[string]float64{"a": 0.6})
	if got.CurrentValue != 6 || got.ProfitLoss != 2 || got.ProfitLossPct != 50 {
		t.Errorf("ValuePosition = %+v", got)
	}

	unpriced := ValuePosition(domain.Position{OutcomeID: "x", Shares: 10, AmountSpent: 5}, nil)
	if unpriced.CurrentPrice != 0.5 || unpriced.ProfitLoss != 0 {
		t.Errorf("unpriced = %+v", unpriced)
	}
}

func TestPriceMap(t *testing.T) {
	got := PriceMap([]domain.Market{{Outcomes: outcomes(100, 300)}})
	if got["a"] != 0.75 || got["b"] != 0.25 {
		t.Errorf("PriceMap = %v", got)
	}
}

func TestEstimateSell(t *testing.T) {
	yes := EstimateSell(10, 50, 0.6)
	if yes.Shares != 5 || math.Abs(yes.Proceeds-3) > 1e-12 {
		t.Errorf("EstimateSell = %+v", yes)
	}

	legs := []domain.Position{
		{OutcomeID: "b", Shares: 10},
		{OutcomeID: "c", Shares: 4},
	}
	no := EstimateNoSell(legs, 100, map[string]float64{"b": 0.3}, 0.5)
	if no.Shares != 14 || math.Abs(no.Proceeds-5) > 1e-12 {
		t.Errorf("EstimateNoSell = %+v", no)
	}
}
