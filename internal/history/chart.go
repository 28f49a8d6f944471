package history

import (
	"math"
	"sort"
	"time"

	"github.com/alanyoungcy/matchmarket/internal/domain"
	"github.com/alanyoungcy/matchmarket/internal/numfmt"
	"github.com/alanyoungcy/matchmarket/internal/pricing"
)

const (
	maxVisibleOutcomes = 4
	fallbackPoints     = 10
	fallbackSpacing    = 6 * time.Minute
)

// ChartOutcome identifies one series of a chart. Slug is unique within a
// chart: empty or repeated slugs are replaced by the outcome id.
type ChartOutcome struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Slug  string `json:"slug"`
}

// ChartOutcomes derives the chart series list from a market's outcomes.
func ChartOutcomes(outcomes []domain.Outcome) []ChartOutcome {
	counts := make(map[string]int, len(outcomes))
	for _, o := range outcomes {
		if o.Slug != "" {
			counts[o.Slug]++
		}
	}

	out := make([]ChartOutcome, 0, len(outcomes))
	for _, o := range outcomes {
		slug := o.Slug
		if slug == "" || counts[slug] > 1 {
			slug = o.ID
		}
		out = append(out, ChartOutcome{ID: o.ID, Label: o.Label, Slug: slug})
	}
	return out
}

// VisibleOutcomes picks the outcome ids drawn on the chart. A selected
// outcome is drawn alone. Markets with more than four outcomes show the four
// with the largest pools.
func VisibleOutcomes(outcomes []domain.Outcome, selectedID string) []string {
	if selectedID != "" {
		return []string{selectedID}
	}
	if len(outcomes) <= maxVisibleOutcomes {
		ids := make([]string, 0, len(outcomes))
		for _, o := range outcomes {
			ids = append(ids, o.ID)
		}
		return ids
	}

	sorted := make([]domain.Outcome, len(outcomes))
	copy(sorted, outcomes)
	sort.SliceStable(sorted, func(i, j int) bool { return poolOf(sorted[i]) > poolOf(sorted[j]) })

	top := make(map[string]bool, maxVisibleOutcomes)
	for _, o := range sorted[:maxVisibleOutcomes] {
		top[o.ID] = true
	}
	// keep display order
	ids := make([]string, 0, maxVisibleOutcomes)
	for _, o := range outcomes {
		if top[o.ID] {
			ids = append(ids, o.ID)
		}
	}
	return ids
}

func poolOf(o domain.Outcome) float64 {
	if math.IsNaN(o.Pool) {
		return 0
	}
	return o.Pool
}

// PoolPercentages returns each outcome's current inverse-pool price as a
// one-decimal percentage.
func PoolPercentages(outcomes []domain.Outcome) map[string]float64 {
	out := make(map[string]float64, len(outcomes))
	if len(outcomes) == 0 {
		return out
	}
	for _, p := range pricing.CalculateOdds(outcomes) {
		out[p.ID] = numfmt.Round(p.Price*1000) / 10
	}
	return out
}

// FallbackRows draws a flat series from current pool prices for markets
// without any recorded history: ten points six minutes apart ending at now.
func FallbackRows(outcomes []domain.Outcome, now time.Time) []domain.HistoryRow {
	if len(outcomes) == 0 {
		return nil
	}
	percents := PoolPercentages(outcomes)
	even := 100 / float64(len(outcomes))

	rows := make([]domain.HistoryRow, 0, fallbackPoints)
	for i := fallbackPoints - 1; i >= 0; i-- {
		row := domain.HistoryRow{
			Time:   now.Add(-time.Duration(i) * fallbackSpacing).UTC(),
			Values: make(map[string]float64, len(outcomes)),
		}
		for _, o := range outcomes {
			v := percents[o.ID]
			if v <= 0 {
				v = even
			}
			row.Values[o.ID] = v
		}
		rows = append(rows, row)
	}
	return rows
}

// ExtendRows carries a cached series onto g. Rows older than the first
// bucket are dropped and the last row is repeated into every later bucket,
// so a series built a few minutes ago still ends at the current bucket.
func ExtendRows(rows []domain.HistoryRow, g Grid) []domain.HistoryRow {
	if len(rows) == 0 {
		return rows
	}
	start := g.Start()
	out := make([]domain.HistoryRow, 0, g.Len())
	for _, r := range rows {
		if !r.Time.Before(start) {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		out = append(out, rows[len(rows)-1].Clone())
		out[0].Time = start
	}
	last := out[len(out)-1]
	for _, t := range g.Points {
		if t.After(last.Time) {
			next := last.Clone()
			next.Time = t
			out = append(out, next)
		}
	}
	return out
}

// CurrentPrices reads the latest chart value per outcome. When the series is
// empty or carries no positive value it falls back to pool percentages.
func CurrentPrices(rows []domain.HistoryRow, outcomes []domain.Outcome) map[string]float64 {
	fallback := PoolPercentages(outcomes)
	if len(rows) == 0 {
		return fallback
	}
	last := rows[len(rows)-1]
	out := make(map[string]float64, len(outcomes))
	valid := false
	for _, o := range outcomes {
		v := last.Values[o.ID]
		out[o.ID] = v
		if v > 0 {
			valid = true
		}
	}
	if !valid {
		return fallback
	}
	return out
}

// YDomain computes the chart's percentage axis over the visible series.
// Values are padded by 15% of their range with a floor of 5, snapped to
// multiples of 5 within [0, 100], and widened to a span of at least 10.
func YDomain(rows []domain.HistoryRow, visible []string) [2]float64 {
	full := [2]float64{0, 100}
	if len(rows) == 0 || len(visible) == 0 {
		return full
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, r := range rows {
		for _, id := range visible {
			if v := r.Values[id]; v > 0 {
				lo = math.Min(lo, v)
				hi = math.Max(hi, v)
			}
		}
	}
	if math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		return full
	}

	pad := math.Max((hi-lo)*0.15, 5)
	dmin := math.Max(0, math.Floor((lo-pad)/5)*5)
	dmax := math.Min(100, math.Ceil((hi+pad)/5)*5)
	if dmax-dmin < 10 {
		mid := (dmin + dmax) / 2
		return [2]float64{math.Max(0, mid-5), math.Min(100, mid+5)}
	}
	return [2]float64{dmin, dmax}
}
