package odds

import (
	"github.com/alanyoungcy/matchmarket/internal/domain"
	"github.com/alanyoungcy/matchmarket/internal/numfmt"
)

// FormatOutcomePrice renders an outcome's probability for a region. US shows
// cents, every other region shows decimal odds. A non-finite or non-positive
// probability renders as fallback.
func FormatOutcomePrice(p float64, region Format, fallback string) string {
	if !numfmt.Finite(p) || p <= 0 {
		return fallback
	}
	if region == FormatUS {
		return numfmt.Cents(p)
	}
	return numfmt.Fixed(1/p, 2)
}

// Moneyline returns the "ML" caption shown under US prices, or "" when the
// probability has no finite line.
func Moneyline(p float64) string {
	if !numfmt.Finite(p) || p <= 0 || p >= 1 {
		return ""
	}
	return "ML " + Convert(p, FormatUS)
}

// OutcomeLabel names an outcome for display. Home and yes map to the home
// team, away and no to the away team.
func OutcomeLabel(slug, label, homeTeam, awayTeam string) string {
	switch slug {
	case domain.SlugHome, domain.SlugYes:
		return homeTeam
	case domain.SlugAway, domain.SlugNo:
		return awayTeam
	case domain.SlugDraw:
		return "Draw"
	}
	if label != "" {
		return label
	}
	return slug
}
