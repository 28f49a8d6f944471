package history

import (
	"sort"
	"time"

	"github.com/alanyoungcy/matchmarket/internal/domain"
)

// SingleAggregator charts one outcome's raw price. Gaps are forward-filled
// from 0 and values are not normalized. Like Aggregator it has one owner.
type SingleAggregator struct {
	tf        Timeframe
	outcomeID string
	grid      Grid
	rows      []domain.HistoryRow
}

// NewSingleAggregator returns an aggregator for one outcome.
func NewSingleAggregator(tf Timeframe, outcomeID string) *SingleAggregator {
	return &SingleAggregator{tf: tf, outcomeID: outcomeID}
}

// Build replaces the series with one row per grid bucket ending at now.
// Points for other outcomes are ignored.
func (s *SingleAggregator) Build(points []domain.PricePoint, now time.Time) []domain.HistoryRow {
	s.grid = NewGrid(s.tf, now)

	own := make([]domain.PricePoint, 0, len(points))
	for _, p := range points {
		if p.OutcomeID == s.outcomeID {
			own = append(own, p)
		}
	}
	buckets := bucketize(own, s.grid)

	var last float64
	s.rows = make([]domain.HistoryRow, 0, s.grid.Len())
	for _, t := range s.grid.Points {
		if v, ok := buckets[t.UnixMilli()][s.outcomeID]; ok {
			last = v
		}
		s.rows = append(s.rows, s.row(t, last))
	}
	return s.Rows()
}

// Apply sets the price of the bucket p falls into, inserting the bucket in
// time order when it does not exist yet.
func (s *SingleAggregator) Apply(p domain.PricePoint) (domain.HistoryRow, bool) {
	if p.OutcomeID != s.outcomeID {
		return domain.HistoryRow{}, false
	}
	row := s.row(bucketStart(p.Time, s.tf.BucketWidth()), p.Price)

	i := sort.Search(len(s.rows), func(i int) bool { return !s.rows[i].Time.Before(row.Time) })
	if i < len(s.rows) && s.rows[i].Time.Equal(row.Time) {
		s.rows[i] = row
	} else {
		s.rows = append(s.rows, domain.HistoryRow{})
		copy(s.rows[i+1:], s.rows[i:])
		s.rows[i] = row
	}
	return row.Clone(), true
}

// Rows returns a copy of the current series.
func (s *SingleAggregator) Rows() []domain.HistoryRow {
	out := make([]domain.HistoryRow, len(s.rows))
	for i, r := range s.rows {
		out[i] = r.Clone()
	}
	return out
}

func (s *SingleAggregator) row(t time.Time, price float64) domain.HistoryRow {
	return domain.HistoryRow{Time: t, Values: map[string]float64{s.outcomeID: price}}
}
