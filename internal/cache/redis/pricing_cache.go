package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/matchmarket/internal/domain"
)

// PricingCache implements domain.PricingCache. Each market is a hash at
// "pricing:{marketID}":
//
//	snapshot      - the full PricingSnapshot as JSON
//	price:{outcome} - raw inverse-pool price, for cheap portfolio lookups
//	total           - total effective price
type PricingCache struct {
	c *Client
}

// NewPricingCache creates a PricingCache.
func NewPricingCache(c *Client) *PricingCache {
	return &PricingCache{c: c}
}

const pricePrefix = "price:"

func (pc *PricingCache) key(marketID string) string { return pc.c.Key("pricing", marketID) }

// SetPricing replaces the market's pricing hash atomically.
func (pc *PricingCache) SetPricing(ctx context.Context, snap domain.PricingSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal pricing %s: %w", snap.MarketID, err)
	}
	key := pc.key(snap.MarketID)

	pipe := pc.c.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, pricingFields(snap, data))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set pricing %s: %w", snap.MarketID, err)
	}
	return nil
}

func pricingFields(snap domain.PricingSnapshot, data []byte) map[string]interface{} {
	fields := map[string]interface{}{
		"snapshot": data,
		"total":    strconv.FormatFloat(snap.TotalEffective, 'f', -1, 64),
	}
	for _, o := range snap.Outcomes {
		fields[pricePrefix+o.ID] = strconv.FormatFloat(o.Price, 'f', -1, 64)
	}
	return fields
}

// GetPricing returns domain.ErrNotFound when the market has no snapshot.
func (pc *PricingCache) GetPricing(ctx context.Context, marketID string) (domain.PricingSnapshot, error) {
	data, err := pc.c.rdb.HGet(ctx, pc.key(marketID), "snapshot").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.PricingSnapshot{}, domain.ErrNotFound
		}
		return domain.PricingSnapshot{}, fmt.Errorf("redis: get pricing %s: %w", marketID, err)
	}
	var snap domain.PricingSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.PricingSnapshot{}, fmt.Errorf("redis: unmarshal pricing %s: %w", marketID, err)
	}
	return snap, nil
}

// GetPrices returns the raw price per outcome id.
func (pc *PricingCache) GetPrices(ctx context.Context, marketID string) (map[string]float64, error) {
	vals, err := pc.c.rdb.HGetAll(ctx, pc.key(marketID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: get prices %s: %w", marketID, err)
	}
	if len(vals) == 0 {
		return nil, domain.ErrNotFound
	}
	return parsePrices(vals), nil
}

func parsePrices(vals map[string]string) map[string]float64 {
	out := make(map[string]float64)
	for field, v := range vals {
		id, ok := strings.CutPrefix(field, pricePrefix)
		if !ok {
			continue
		}
		price, err := strconv.ParseFloat(v, 64)
		if err != nil {
			continue
		}
		out[id] = price
	}
	return out
}

var _ domain.PricingCache = (*PricingCache)(nil)
