package history

import (
	"math"
	"testing"
	"time"

	"github.com/alanyoungcy/matchmarket/internal/domain"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 30, 0, time.UTC)

func chartOutcomes(ids ...string) []ChartOutcome {
	out := make([]ChartOutcome, len(ids))
	for i, id := range ids {
		out[i] = ChartOutcome{ID: id, Label: id, Slug: id}
	}
	return out
}

func rowSum(r domain.HistoryRow) float64 {
	var s float64
	for _, v := range r.Values {
		s += v
	}
	return s
}

func TestAggregatorEmptyThreeWay(t *testing.T) {
	a := NewAggregator(Timeframe1H, chartOutcomes("a", "b", "c"))
	rows := a.Build(nil, testNow)
	if len(rows) != 60 {
		t.Fatalf("rows = %d, want 60", len(rows))
	}
	for _, r := range rows {
		if r.Values["a"] != 33.3 || r.Values["b"] != 33.3 || r.Values["c"] != 33.4 {
			t.Fatalf("row %v = %v, want 33.3/33.3/33.4", r.Time, r.Values)
		}
		if math.Abs(rowSum(r)-100) > 1e-9 {
			t.Fatalf("row %v sums to %v", r.Time, rowSum(r))
		}
	}
}

func TestAggregatorForwardFill(t *testing.T) {
	a := NewAggregator(Timeframe1H, chartOutcomes("a", "b"))
	g := NewGrid(Timeframe1H, testNow)
	third := g.Points[2]

	rows := a.Build([]domain.PricePoint{
		{OutcomeID: "a", Price: 0.6, Time: third.Add(10 * time.Second)},
		{OutcomeID: "b", Price: 0.4, Time: third.Add(20 * time.Second)},
	}, testNow)

	for i, r := range rows {
		wantA, wantB := 50.0, 50.0
		if i >= 2 {
			wantA, wantB = 60, 40
		}
		if r.Values["a"] != wantA || r.Values["b"] != wantB {
			t.Fatalf("bucket %d = %v, want a=%v b=%v", i+1, r.Values, wantA, wantB)
		}
	}
}

func TestAggregatorLastWriteWins(t *testing.T) {
	a := NewAggregator(Timeframe1H, chartOutcomes("a", "b"))
	bucket := NewGrid(Timeframe1H, testNow).End()

	// out of order on purpose: the later timestamp must win
	rows := a.Build([]domain.PricePoint{
		{OutcomeID: "a", Price: 0.9, Time: bucket.Add(40 * time.Second)},
		{OutcomeID: "a", Price: 0.1, Time: bucket.Add(5 * time.Second)},
		{OutcomeID: "b", Price: 0.1, Time: bucket.Add(10 * time.Second)},
	}, testNow)

	last := rows[len(rows)-1]
	if last.Values["a"] != 90 || last.Values["b"] != 10 {
		t.Errorf("last row = %v, want a=90 b=10", last.Values)
	}
}

func TestAggregatorZeroTotalResets(t *testing.T) {
	a := NewAggregator(Timeframe1H, chartOutcomes("a", "b"))
	bucket := NewGrid(Timeframe1H, testNow).End()

	rows := a.Build([]domain.PricePoint{
		{OutcomeID: "a", Price: 0, Time: bucket},
		{OutcomeID: "b", Price: 0, Time: bucket},
	}, testNow)

	last := rows[len(rows)-1]
	if last.Values["a"] != 50 || last.Values["b"] != 50 {
		t.Errorf("last row = %v, want even split", last.Values)
	}
	row, ok := a.Apply(domain.PricePoint{OutcomeID: "a", Price: 1.5, Time: bucket})
	if !ok || row.Values["a"] != 75 || row.Values["b"] != 25 {
		t.Errorf("row after reset = %v, want b held at 0.5", row.Values)
	}
}

func TestAggregatorIgnoresUnknownAndOutOfGrid(t *testing.T) {
	a := NewAggregator(Timeframe1H, chartOutcomes("a", "b"))
	g := NewGrid(Timeframe1H, testNow)

	rows := a.Build([]domain.PricePoint{
		{OutcomeID: "zz", Price: 5, Time: g.End()},
		{OutcomeID: "a", Price: 0.9, Time: g.Start().Add(-time.Hour)},
	}, testNow)
	for _, r := range rows {
		if r.Values["a"] != 50 || r.Values["b"] != 50 {
			t.Fatalf("row %v = %v, want even split", r.Time, r.Values)
		}
		if _, ok := r.Values["zz"]; ok {
			t.Fatalf("row %v carries unknown outcome", r.Time)
		}
	}
}

func TestAggregatorApply(t *testing.T) {
	a := NewAggregator(Timeframe1H, chartOutcomes("a", "b", "c"))
	a.Build(nil, testNow)
	g := a.Grid()

	t.Run("replaces existing bucket", func(t *testing.T) {
		row, ok := a.Apply(domain.PricePoint{OutcomeID: "a", Price: 2.0 / 3, Time: g.End().Add(15 * time.Second)})
		if !ok {
			t.Fatal("Apply rejected known outcome")
		}
		if !row.Time.Equal(g.End()) {
			t.Errorf("row time = %v, want %v", row.Time, g.End())
		}
		// last known is a=2/3, b=1/3, c=1/3
		if row.Values["a"] != 50 || row.Values["b"] != 25 || row.Values["c"] != 25 {
			t.Errorf("row = %v", row.Values)
		}
		rows := a.Rows()
		if len(rows) != 60 || rows[59].Values["a"] != 50 {
			t.Errorf("series not updated in place: len %d last %v", len(rows), rows[59].Values)
		}
		if rows[58].Values["a"] != 33.3 {
			t.Errorf("previous bucket changed: %v", rows[58].Values)
		}
	})

	t.Run("inserts new bucket in order", func(t *testing.T) {
		next := g.End().Add(time.Minute)
		if _, ok := a.Apply(domain.PricePoint{OutcomeID: "b", Price: 2.0 / 3, Time: next}); !ok {
			t.Fatal("Apply rejected known outcome")
		}
		before := g.Start().Add(-time.Minute)
		if _, ok := a.Apply(domain.PricePoint{OutcomeID: "c", Price: 2.0 / 3, Time: before}); !ok {
			t.Fatal("Apply rejected known outcome")
		}
		rows := a.Rows()
		if len(rows) != 62 {
			t.Fatalf("rows = %d, want 62", len(rows))
		}
		if !rows[0].Time.Equal(before) || !rows[61].Time.Equal(next) {
			t.Errorf("rows not sorted: first %v last %v", rows[0].Time, rows[61].Time)
		}
		for i := 1; i < len(rows); i++ {
			if !rows[i-1].Time.Before(rows[i].Time) {
				t.Fatalf("rows out of order at %d", i)
			}
		}
	})

	t.Run("ignores unknown outcome", func(t *testing.T) {
		if _, ok := a.Apply(domain.PricePoint{OutcomeID: "zz", Price: 1, Time: g.End()}); ok {
			t.Error("Apply accepted unknown outcome")
		}
	})

	t.Run("rows always sum to 100", func(t *testing.T) {
		for _, r := range a.Rows() {
			if math.Abs(rowSum(r)-100) > 1e-9 {
				t.Fatalf("row %v sums to %v", r.Time, rowSum(r))
			}
		}
	})
}

func TestAggregatorNoOutcomes(t *testing.T) {
	a := NewAggregator(Timeframe1D, nil)
	if rows := a.Build([]domain.PricePoint{{OutcomeID: "a", Price: 1, Time: testNow}}, testNow); len(rows) != 0 {
		t.Errorf("rows = %d, want 0", len(rows))
	}
}

func TestSingleAggregator(t *testing.T) {
	s := NewSingleAggregator(Timeframe1H, "a")
	g := NewGrid(Timeframe1H, testNow)

	rows := s.Build([]domain.PricePoint{
		{OutcomeID: "a", Price: 0.42, Time: g.Points[2]},
		{OutcomeID: "b", Price: 0.99, Time: g.Points[5]},
	}, testNow)

	for i, r := range rows {
		want := 0.0
		if i >= 2 {
			want = 0.42
		}
		if r.Values["a"] != want {
			t.Fatalf("bucket %d = %v, want %v", i+1, r.Values["a"], want)
		}
	}

	row, ok := s.Apply(domain.PricePoint{OutcomeID: "a", Price: 0.5, Time: g.End().Add(time.Minute)})
	if !ok || row.Values["a"] != 0.5 {
		t.Fatalf("Apply = %v, %v", row, ok)
	}
	if n := len(s.Rows()); n != 61 {
		t.Errorf("rows = %d, want 61", n)
	}
	if _, ok := s.Apply(domain.PricePoint{OutcomeID: "b", Price: 0.5, Time: g.End()}); ok {
		t.Error("Apply accepted another outcome")
	}
}
