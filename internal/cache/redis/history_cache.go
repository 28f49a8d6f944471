package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/matchmarket/internal/domain"
)

// multiSeries stands in for the empty outcome id of the multi-outcome series.
const multiSeries = "_"

// DefaultSeriesCap bounds the number of rows kept per cached series.
const DefaultSeriesCap = 2000

// HistoryCache implements domain.HistoryCache. A series is a sorted set at
// "series:{market}:{outcome|_}:{timeframe}" scored by bucket time in unix
// milliseconds, with one JSON row per member.
type HistoryCache struct {
	c   *Client
	cap int64
}

// NewHistoryCache creates a HistoryCache keeping at most capRows rows per
// series. A non-positive capRows uses DefaultSeriesCap.
func NewHistoryCache(c *Client, capRows int) *HistoryCache {
	if capRows <= 0 {
		capRows = DefaultSeriesCap
	}
	return &HistoryCache{c: c, cap: int64(capRows)}
}

func (hc *HistoryCache) key(k domain.SeriesKey) string {
	outcome := k.OutcomeID
	if outcome == "" {
		outcome = multiSeries
	}
	return hc.c.Key("series", k.MarketID, outcome, k.Timeframe)
}

// SetSeries replaces the series. An empty rows slice is stored as an empty
// marker so readers can tell "built but empty" from "not cached".
func (hc *HistoryCache) SetSeries(ctx context.Context, k domain.SeriesKey, rows []domain.HistoryRow) error {
	members, err := seriesMembers(rows)
	if err != nil {
		return fmt.Errorf("redis: set series %s: %w", hc.key(k), err)
	}
	key := hc.key(k)

	pipe := hc.c.rdb.TxPipeline()
	pipe.Del(ctx, key, key+":empty")
	if len(members) == 0 {
		pipe.Set(ctx, key+":empty", "1", 0)
	} else {
		pipe.ZAdd(ctx, key, members...)
		pipe.ZRemRangeByRank(ctx, key, 0, -hc.cap-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set series %s: %w", key, err)
	}
	return nil
}

// UpsertRow replaces the row in the same bucket, or appends a new one.
func (hc *HistoryCache) UpsertRow(ctx context.Context, k domain.SeriesKey, row domain.HistoryRow) error {
	members, err := seriesMembers([]domain.HistoryRow{row})
	if err != nil {
		return fmt.Errorf("redis: upsert row %s: %w", hc.key(k), err)
	}
	key := hc.key(k)
	score := strconv.FormatInt(row.Time.UnixMilli(), 10)

	pipe := hc.c.rdb.TxPipeline()
	pipe.Del(ctx, key+":empty")
	pipe.ZRemRangeByScore(ctx, key, score, score)
	pipe.ZAdd(ctx, key, members...)
	pipe.ZRemRangeByRank(ctx, key, 0, -hc.cap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: upsert row %s: %w", key, err)
	}
	return nil
}

// GetSeries returns rows in ascending time order, or domain.ErrNotFound when
// the series was never built.
func (hc *HistoryCache) GetSeries(ctx context.Context, k domain.SeriesKey) ([]domain.HistoryRow, error) {
	key := hc.key(k)
	raw, err := hc.c.rdb.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: get series %s: %w", key, err)
	}
	if len(raw) == 0 {
		n, err := hc.c.rdb.Exists(ctx, key+":empty").Result()
		if err != nil {
			return nil, fmt.Errorf("redis: get series %s: %w", key, err)
		}
		if n == 0 {
			return nil, domain.ErrNotFound
		}
		return []domain.HistoryRow{}, nil
	}
	return parseSeries(raw)
}

func seriesMembers(rows []domain.HistoryRow) ([]redis.Z, error) {
	members := make([]redis.Z, 0, len(rows))
	for _, r := range rows {
		data, err := json.Marshal(r)
		if err != nil {
			return nil, err
		}
		members = append(members, redis.Z{Score: float64(r.Time.UnixMilli()), Member: string(data)})
	}
	return members, nil
}

func parseSeries(raw []string) ([]domain.HistoryRow, error) {
	rows := make([]domain.HistoryRow, 0, len(raw))
	for _, m := range raw {
		var r domain.HistoryRow
		if err := json.Unmarshal([]byte(m), &r); err != nil {
			return nil, fmt.Errorf("redis: unmarshal row: %w", err)
		}
		r.Time = r.Time.In(time.UTC)
		rows = append(rows, r)
	}
	return rows, nil
}

var _ domain.HistoryCache = (*HistoryCache)(nil)
