package pricing

import (
	"fmt"
	"math"

	"github.com/alanyoungcy/matchmarket/internal/domain"
	"github.com/alanyoungcy/matchmarket/internal/numfmt"
)

// Rules holds the trading guard parameters applied to every market.
type Rules struct {
	MaxBetRatio       float64
	NoCooldownRatio   float64
	SlippageTolerance float64
	BuyMarkup         float64
	SellMarkdown      float64
}

// DefaultRules returns the guard parameters used by the trade desk.
func DefaultRules() Rules {
	return Rules{
		MaxBetRatio:       0.15,
		NoCooldownRatio:   0.10,
		SlippageTolerance: 0.01,
		BuyMarkup:         1.01,
		SellMarkdown:      0.99,
	}
}

// BetLimits bounds the stake a single buy may carry.
type BetLimits struct {
	MaxAllowedBet   float64 `json:"max_allowed_bet"`
	NoCooldownLimit float64 `json:"no_cooldown_limit"`
	Suspended       bool    `json:"suspended"`
}

// Limits computes the stake limits for a market. A market whose risk
// multiplier is zero or negative is suspended.
func (r Rules) Limits(m domain.Market) BetLimits {
	risk := m.Risk()
	maxAllowed := m.Liquidity * r.MaxBetRatio * risk
	return BetLimits{
		MaxAllowedBet:   maxAllowed,
		NoCooldownLimit: math.Min(m.Liquidity*r.NoCooldownRatio, maxAllowed),
		Suspended:       risk <= 0,
	}
}

// CheckStake validates a buy amount against the market's limits.
func (r Rules) CheckStake(m domain.Market, amount float64) error {
	l := r.Limits(m)
	if l.Suspended {
		return fmt.Errorf("pricing: market %s: %w", m.ID, domain.ErrMarketSuspended)
	}
	if amount <= 0 {
		return fmt.Errorf("pricing: amount must be positive: %w", domain.ErrInvalidInput)
	}
	if amount > l.MaxAllowedBet {
		return fmt.Errorf("pricing: amount %.2f exceeds max bet %.2f: %w", amount, l.MaxAllowedBet, domain.ErrInvalidInput)
	}
	return nil
}

// MinShares is the slippage floor passed to the execution service for a
// quoted share count.
func (r Rules) MinShares(expected float64) float64 {
	if expected <= 0 {
		return 0
	}
	return expected * (1 - r.SlippageTolerance)
}

// BuyPrice applies the buy markup to a base price.
func (r Rules) BuyPrice(base float64) float64 { return base * r.BuyMarkup }

// SellPrice applies the sell markdown to a base price.
func (r Rules) SellPrice(base float64) float64 { return base * r.SellMarkdown }

// CooldownSeconds predicts the cooldown a buy triggers. Trades up to 10% of
// liquidity are free; above that the cooldown grows quadratically with a
// five second floor.
func CooldownSeconds(investment, liquidity float64) int {
	if investment <= 0 || liquidity <= 0 {
		return 0
	}
	pct := investment / liquidity * 100
	if pct <= 10 {
		return 0
	}
	minutes := 0.8 * math.Pow(pct-10, 2)
	seconds := int(math.Floor(minutes * 60))
	if seconds < 5 {
		seconds = 5
	}
	return seconds
}

// PriceLabel is a floor-cent and percent rendering of a price.
type PriceLabel struct {
	Display string `json:"display"`
	Percent string `json:"percent"`
}

// FormatPrice renders a price with truncated cents.
func FormatPrice(price float64) PriceLabel {
	return PriceLabel{Display: numfmt.FloorCents(price), Percent: numfmt.Percent(price)}
}

// Quote is the execution service's answer for a proposed buy.
type Quote struct {
	Shares        float64 `json:"shares"`
	PricePerShare float64 `json:"price_per_share"`
	OddsDecimal   float64 `json:"odds_decimal"`
}

// Ticket summarizes a quoted buy for display.
type Ticket struct {
	Amount          float64 `json:"amount"`
	Shares          float64 `json:"shares"`
	MinShares       float64 `json:"min_shares"`
	PotentialReturn float64 `json:"potential_return"`
	NetProfit       float64 `json:"net_profit"`
	ROI             float64 `json:"roi"`
	Cooldown        int     `json:"cooldown_seconds"`
}

// Ticket builds the buy summary for a quote. A quote with no shares yields an
// empty ticket.
func (r Rules) Ticket(m domain.Market, amount float64, q Quote) Ticket {
	t := Ticket{Amount: amount, Cooldown: CooldownSeconds(amount, m.Liquidity)}
	if q.Shares <= 0 {
		return t
	}
	t.Shares = q.Shares
	t.MinShares = r.MinShares(q.Shares)
	t.PotentialReturn = q.Shares
	t.NetProfit = q.Shares - amount
	if amount > 0 {
		t.ROI = t.NetProfit / amount * 100
	}
	return t
}
