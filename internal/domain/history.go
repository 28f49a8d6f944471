package domain

import "time"

// PricePoint is a single price observation for an outcome.
type PricePoint struct {
	MarketID  string
	OutcomeID string
	Price     float64
	Time      time.Time
}

// HistoryRow is one chart bucket. Values holds a price per outcome id; for
// multi-outcome series the values are percentages summing to 100.
type HistoryRow struct {
	Time   time.Time          `json:"time"`
	Values map[string]float64 `json:"values"`
}

// Clone returns a deep copy of the row.
func (r HistoryRow) Clone() HistoryRow {
	out := HistoryRow{Time: r.Time, Values: make(map[string]float64, len(r.Values))}
	for k, v := range r.Values {
		out.Values[k] = v
	}
	return out
}
