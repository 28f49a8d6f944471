package pricing

import (
	"strings"

	"github.com/alanyoungcy/matchmarket/internal/domain"
	"github.com/alanyoungcy/matchmarket/internal/numfmt"
)

// defaultCents is shown for a 1X2 leg that cannot be priced.
const defaultCents = 33

// YesNo is a pair of complementary cent prices.
type YesNo struct {
	Yes int `json:"yes"`
	No  int `json:"no"`
}

// MatchPrices are the home/draw/away cent prices shown on a match card.
type MatchPrices struct {
	Home YesNo `json:"home"`
	Draw YesNo `json:"draw"`
	Away YesNo `json:"away"`
}

// OutcomeSummary is one outcome row of a match card.
type OutcomeSummary struct {
	ID       string  `json:"id"`
	Slug     string  `json:"slug,omitempty"`
	Label    string  `json:"label"`
	Price    float64 `json:"price"`
	Position int     `json:"position,omitempty"`
}

// MatchView is the priced card for a match and its primary market.
type MatchView struct {
	MatchID    string            `json:"match_id"`
	HomeTeam   string            `json:"home_team"`
	AwayTeam   string            `json:"away_team"`
	Status     string            `json:"status"`
	MarketType domain.MarketType `json:"market_type"`
	HasDraw    bool              `json:"has_draw"`
	Outcomes   []OutcomeSummary  `json:"outcomes"`
	Prices     MatchPrices       `json:"prices"`
}

// BuildMatchPrices derives 1X2 cent prices from effective pricing. With three
// or more outcomes home, draw and away are found by slug and fall back to
// positions 0, 1 and 2. With exactly two the draw leg is 0.
func BuildMatchPrices(ep EffectivePricing) MatchPrices {
	home, draw, away := defaultCents, defaultCents, defaultCents
	priced := ep.Priced

	cents := func(p domain.PricedOutcome) int {
		v, ok := ep.EffectiveByID[p.ID]
		if !ok {
			v = p.Price
		}
		return int(numfmt.Round(v * 100))
	}
	find := func(slug string, pos int) domain.PricedOutcome {
		for _, p := range priced {
			if p.Slug == slug {
				return p
			}
		}
		return priced[pos]
	}

	switch {
	case len(priced) >= 3:
		home = cents(find(domain.SlugHome, 0))
		draw = cents(find(domain.SlugDraw, 1))
		away = cents(find(domain.SlugAway, 2))
	case len(priced) == 2:
		home = cents(priced[0])
		away = cents(priced[1])
		draw = 0
	}

	return MatchPrices{
		Home: YesNo{Yes: home, No: 100 - home},
		Draw: YesNo{Yes: draw, No: 100 - draw},
		Away: YesNo{Yes: away, No: 100 - away},
	}
}

// BuildMatchView assembles the priced card for a match and its market.
func BuildMatchView(match domain.Match, market domain.Market) MatchView {
	home, away := TeamNames(match)
	ep := BuildEffectivePricing(market.Outcomes)
	mt := ResolveMarketType(market.Type, market.Outcomes)

	position := make(map[string]int, len(match.Positions))
	for i, id := range match.Positions {
		position[id] = i + 1
	}

	var uniform float64
	if n := len(market.Outcomes); n > 0 {
		uniform = 1 / float64(n)
	}
	summaries := make([]OutcomeSummary, 0, len(market.Outcomes))
	for _, o := range market.Outcomes {
		price, ok := ep.EffectiveByID[o.ID]
		if !ok {
			price = uniform
		}
		summaries = append(summaries, OutcomeSummary{
			ID:       o.ID,
			Slug:     o.Slug,
			Label:    o.Label,
			Price:    price,
			Position: position[o.ID],
		})
	}

	return MatchView{
		MatchID:    match.ID,
		HomeTeam:   home,
		AwayTeam:   away,
		Status:     DisplayStatus(match.Status),
		MarketType: mt,
		HasDraw:    mt == domain.MarketType1X2,
		Outcomes:   summaries,
		Prices:     BuildMatchPrices(ep),
	}
}

// TeamNames returns the home and away names, falling back to the
// "Home vs Away" title and then to generic labels.
func TeamNames(m domain.Match) (home, away string) {
	parts := strings.SplitN(m.Title, " vs ", 2)
	titleHome := strings.TrimSpace(parts[0])
	var titleAway string
	if len(parts) > 1 {
		titleAway = strings.TrimSpace(parts[1])
	}
	home = firstNonEmpty(m.HomeTeam, titleHome, "Home")
	away = firstNonEmpty(m.AwayTeam, titleAway, "Away")
	return home, away
}

// DisplayStatus maps a store status to the lifecycle shown to users.
func DisplayStatus(s domain.MarketStatus) string {
	switch s {
	case domain.StatusOpen:
		return "SCHEDULED"
	case domain.StatusLocked:
		return "LIVE"
	default:
		return "RESOLVED"
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
