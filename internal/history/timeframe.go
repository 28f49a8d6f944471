// Package history turns raw price observations into fixed-width chart
// buckets. Multi-outcome series are forward-filled and renormalized so each
// row sums to 100; single-outcome series are forward-filled as-is.
package history

import (
	"fmt"
	"strings"
	"time"
)

// Timeframe is a chart lookback window.
type Timeframe string

const (
	Timeframe1H Timeframe = "1H"
	Timeframe4H Timeframe = "4H"
	Timeframe1D Timeframe = "1D"
	Timeframe1W Timeframe = "1W"
	Timeframe1M Timeframe = "1M"
)

// Timeframes lists every supported timeframe, shortest first.
var Timeframes = []Timeframe{Timeframe1H, Timeframe4H, Timeframe1D, Timeframe1W, Timeframe1M}

// ParseTimeframe parses a timeframe name case-insensitively.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Timeframes {
		if tf == known {
			return tf, nil
		}
	}
	return "", fmt.Errorf("history: unknown timeframe %q", s)
}

// BucketMinutes is the bucket width in minutes.
func (tf Timeframe) BucketMinutes() int {
	switch tf {
	case Timeframe1H, Timeframe4H:
		return 1
	case Timeframe1W:
		return 60
	case Timeframe1M:
		return 240
	default:
		return 10
	}
}

// HoursBack is the lookback length in hours.
func (tf Timeframe) HoursBack() int {
	switch tf {
	case Timeframe1H:
		return 1
	case Timeframe4H:
		return 4
	case Timeframe1W:
		return 7 * 24
	case Timeframe1M:
		return 30 * 24
	default:
		return 24
	}
}

// BucketWidth is the bucket width as a duration.
func (tf Timeframe) BucketWidth() time.Duration {
	return time.Duration(tf.BucketMinutes()) * time.Minute
}

// Grid is the ordered set of bucket start times for one query.
type Grid struct {
	Width  time.Duration
	Points []time.Time
}

// NewGrid anchors a grid at now truncated to the bucket width and walks
// backward over the timeframe's lookback.
func NewGrid(tf Timeframe, now time.Time) Grid {
	width := tf.BucketWidth()
	end := bucketStart(now, width)

	count := int((float64(tf.HoursBack()*60) / float64(tf.BucketMinutes())) + 0.5)
	if count < 1 {
		count = 1
	}
	start := end.Add(-time.Duration(count-1) * width)

	points := make([]time.Time, count)
	for i := range points {
		points[i] = start.Add(time.Duration(i) * width)
	}
	return Grid{Width: width, Points: points}
}

// Start is the first bucket boundary.
func (g Grid) Start() time.Time { return g.Points[0] }

// End is the last bucket boundary.
func (g Grid) End() time.Time { return g.Points[len(g.Points)-1] }

// Len is the number of buckets.
func (g Grid) Len() int { return len(g.Points) }

// BucketOf returns the start of the bucket t falls into.
func (g Grid) BucketOf(t time.Time) time.Time { return bucketStart(t, g.Width) }

// bucketStart floors t to a multiple of width since the Unix epoch.
func bucketStart(t time.Time, width time.Duration) time.Time {
	ms := t.UnixMilli()
	w := width.Milliseconds()
	q := ms / w
	if ms%w != 0 && ms < 0 {
		q--
	}
	return time.UnixMilli(q * w).UTC()
}

// MultiRowLimit bounds the raw rows fetched for a multi-outcome chart.
func MultiRowLimit(buckets, outcomes int) int {
	return clampInt(buckets*outcomes*6, 500, 10000)
}

// SingleRowLimit bounds the raw rows fetched for a single-outcome chart.
func SingleRowLimit(buckets int) int {
	return clampInt(buckets*6, 500, 5000)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
