package pricing

import (
	"strings"

	"github.com/alanyoungcy/matchmarket/internal/domain"
)

// ResolveMarketType classifies a market. A declared type naming 1X2, BINARY
// or MULTI wins; otherwise the outcome slugs and count decide.
func ResolveMarketType(declared string, outcomes []domain.Outcome) domain.MarketType {
	normalized := strings.ToUpper(declared)
	switch {
	case strings.Contains(normalized, "1X2"):
		return domain.MarketType1X2
	case strings.Contains(normalized, "BINARY"):
		return domain.MarketTypeBinary
	case strings.Contains(normalized, "MULTI"):
		return domain.MarketTypeMulti
	}

	slugs := make(map[string]bool, len(outcomes))
	for _, o := range outcomes {
		slugs[strings.ToLower(o.Slug)] = true
	}

	switch {
	case slugs[domain.SlugHome] && slugs[domain.SlugAway] && slugs[domain.SlugDraw]:
		return domain.MarketType1X2
	case len(outcomes) == 2 || (slugs[domain.SlugYes] && slugs[domain.SlugNo]):
		return domain.MarketTypeBinary
	case len(outcomes) > 2:
		return domain.MarketTypeMulti
	}
	return domain.MarketTypeBinary
}
