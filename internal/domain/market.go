package domain

import "time"

// MarketType classifies how outcomes are presented and priced.
type MarketType string

const (
	MarketType1X2    MarketType = "1X2"
	MarketTypeBinary MarketType = "BINARY"
	MarketTypeMulti  MarketType = "MULTI"
)

// MarketStatus is the trading state shared by matches and markets.
type MarketStatus string

const (
	StatusOpen     MarketStatus = "OPEN"
	StatusLocked   MarketStatus = "LOCKED"
	StatusResolved MarketStatus = "RESOLVED"
)

// Match is a sports fixture that owns one or more markets.
type Match struct {
	ID               string       `json:"id"`
	Title            string       `json:"title"`
	Sport            string       `json:"sport,omitempty"`
	HomeTeam         string       `json:"home_team"`
	AwayTeam         string       `json:"away_team"`
	Status           MarketStatus `json:"status"`
	HomeGoals        int          `json:"home_goals"`
	AwayGoals        int          `json:"away_goals"`
	SimulationMinute *int         `json:"simulation_minute,omitempty"`
	// Positions is the finishing order of outcome ids for multi-outcome events.
	Positions []string  `json:"positions,omitempty"`
	StartsAt  time.Time `json:"start_time"`
}

// Market is a set of ordered outcomes backed by AMM pools. Outcome order is
// significant: it drives 1X2 position fallback and default selection.
type Market struct {
	ID             string       `json:"id"`
	MatchID        string       `json:"match_id"`
	Type           string       `json:"type"`
	Status         MarketStatus `json:"status"`
	Liquidity      float64      `json:"liquidity_usdc"`
	RiskMultiplier *float64     `json:"risk_multiplier,omitempty"`
	Outcomes       []Outcome    `json:"outcomes,omitempty"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Risk returns the market's risk multiplier, defaulting to 1.
func (m Market) Risk() float64 {
	if m.RiskMultiplier == nil {
		return 1
	}
	return *m.RiskMultiplier
}
