package history

import (
	"math"
	"sort"
	"time"

	"github.com/alanyoungcy/matchmarket/internal/domain"
	"github.com/alanyoungcy/matchmarket/internal/numfmt"
)

// Aggregator builds and incrementally maintains a multi-outcome chart. Every
// row carries one percentage per outcome and sums to 100; the last outcome
// in the list absorbs the rounding remainder.
//
// An Aggregator is not safe for concurrent use. It is owned by exactly one
// goroutine, normally the market's worker.
type Aggregator struct {
	tf        Timeframe
	outcomes  []ChartOutcome
	known     map[string]bool
	lastKnown map[string]float64
	grid      Grid
	rows      []domain.HistoryRow
}

// NewAggregator returns an aggregator for outcomes in display order.
func NewAggregator(tf Timeframe, outcomes []ChartOutcome) *Aggregator {
	a := &Aggregator{
		tf:        tf,
		outcomes:  outcomes,
		known:     make(map[string]bool, len(outcomes)),
		lastKnown: make(map[string]float64, len(outcomes)),
	}
	for _, o := range outcomes {
		a.known[o.ID] = true
	}
	a.resetLastKnown()
	return a
}

// Timeframe returns the aggregator's timeframe.
func (a *Aggregator) Timeframe() Timeframe { return a.tf }

// Outcomes returns the outcomes the aggregator tracks, in row order.
func (a *Aggregator) Outcomes() []ChartOutcome { return a.outcomes }

// Grid returns the grid of the last Build.
func (a *Aggregator) Grid() Grid { return a.grid }

// Build replaces the series with one row per grid bucket ending at now.
// Observations are applied in time order; the last one per bucket and
// outcome wins. Outcomes without an observation keep their previous value,
// starting from an even split.
func (a *Aggregator) Build(points []domain.PricePoint, now time.Time) []domain.HistoryRow {
	a.grid = NewGrid(a.tf, now)
	a.resetLastKnown()
	a.rows = nil
	if len(a.outcomes) == 0 {
		return nil
	}

	buckets := bucketize(points, a.grid)
	a.rows = make([]domain.HistoryRow, 0, a.grid.Len())
	for _, t := range a.grid.Points {
		for id, price := range buckets[t.UnixMilli()] {
			if a.known[id] {
				a.lastKnown[id] = price
			}
		}
		a.rows = append(a.rows, a.normalizedRow(t))
	}
	return a.Rows()
}

// Apply folds one realtime observation into the series. Only the bucket the
// observation falls into is touched: it is replaced when present, otherwise
// inserted in time order. Observations for unknown outcomes are ignored and
// reported with ok=false.
func (a *Aggregator) Apply(p domain.PricePoint) (row domain.HistoryRow, ok bool) {
	if !a.known[p.OutcomeID] {
		return domain.HistoryRow{}, false
	}
	a.lastKnown[p.OutcomeID] = p.Price

	row = a.normalizedRow(bucketStart(p.Time, a.tf.BucketWidth()))
	a.upsert(row)
	return row.Clone(), true
}

// Rows returns a copy of the current series.
func (a *Aggregator) Rows() []domain.HistoryRow {
	out := make([]domain.HistoryRow, len(a.rows))
	for i, r := range a.rows {
		out[i] = r.Clone()
	}
	return out
}

func (a *Aggregator) resetLastKnown() {
	var initial float64
	if n := len(a.outcomes); n > 0 {
		initial = 1 / float64(n)
	}
	for _, o := range a.outcomes {
		a.lastKnown[o.ID] = initial
	}
}

// normalizedRow converts the last-known prices into percentages at t. A
// non-positive total resets every outcome to the even split first.
func (a *Aggregator) normalizedRow(t time.Time) domain.HistoryRow {
	var total float64
	for _, o := range a.outcomes {
		total += a.lastKnown[o.ID]
	}
	if total <= 0 {
		a.resetLastKnown()
		total = 0
		for _, o := range a.outcomes {
			total += a.lastKnown[o.ID]
		}
	}

	row := domain.HistoryRow{Time: t, Values: make(map[string]float64, len(a.outcomes))}
	var running float64
	last := len(a.outcomes) - 1
	for i, o := range a.outcomes {
		if i == last {
			row.Values[o.ID] = math.Max(0, numfmt.RoundTo(100-running, 1))
			break
		}
		rounded := numfmt.RoundTo(a.lastKnown[o.ID]/total*100, 1)
		row.Values[o.ID] = rounded
		running += rounded
	}
	return row
}

func (a *Aggregator) upsert(row domain.HistoryRow) {
	i := sort.Search(len(a.rows), func(i int) bool { return !a.rows[i].Time.Before(row.Time) })
	if i < len(a.rows) && a.rows[i].Time.Equal(row.Time) {
		a.rows[i] = row
		return
	}
	a.rows = append(a.rows, domain.HistoryRow{})
	copy(a.rows[i+1:], a.rows[i:])
	a.rows[i] = row
}

// bucketize groups points by bucket start in milliseconds. Points are taken
// in time order so the latest observation per bucket and outcome wins.
func bucketize(points []domain.PricePoint, g Grid) map[int64]map[string]float64 {
	sorted := make([]domain.PricePoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	buckets := make(map[int64]map[string]float64)
	for _, p := range sorted {
		key := g.BucketOf(p.Time).UnixMilli()
		b, ok := buckets[key]
		if !ok {
			b = make(map[string]float64)
			buckets[key] = b
		}
		b[p.OutcomeID] = p.Price
	}
	return buckets
}
