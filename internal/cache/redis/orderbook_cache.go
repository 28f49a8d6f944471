package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/matchmarket/internal/domain"
)

// OrderbookCache implements domain.OrderbookCache. Each outcome's book is
// stored as:
//
//	book:{market}:{outcome}      - the full OrderBook as JSON
//	book:{market}:{outcome}:bbo  - hash with "bid", "ask" and "ts"
type OrderbookCache struct {
	c *Client
}

// NewOrderbookCache creates an OrderbookCache backed by the given Client.
func NewOrderbookCache(c *Client) *OrderbookCache {
	return &OrderbookCache{c: c}
}

func (oc *OrderbookCache) bookKey(marketID, outcomeID string) string {
	return oc.c.Key("book", marketID, outcomeID)
}

func (oc *OrderbookCache) bboKey(marketID, outcomeID string) string {
	return oc.c.Key("book", marketID, outcomeID, "bbo")
}

// SetBook replaces the book and its best bid/ask in one transaction.
func (oc *OrderbookCache) SetBook(ctx context.Context, book domain.OrderBook) error {
	data, err := json.Marshal(book)
	if err != nil {
		return fmt.Errorf("redis: marshal book %s/%s: %w", book.MarketID, book.OutcomeID, err)
	}
	bbo := oc.bboKey(book.MarketID, book.OutcomeID)

	pipe := oc.c.rdb.TxPipeline()
	pipe.Set(ctx, oc.bookKey(book.MarketID, book.OutcomeID), data, 0)
	pipe.Del(ctx, bbo)
	pipe.HSet(ctx, bbo, bboFields(book))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set book %s/%s: %w", book.MarketID, book.OutcomeID, err)
	}
	return nil
}

func bboFields(book domain.OrderBook) map[string]interface{} {
	return map[string]interface{}{
		"bid": strconv.FormatFloat(book.BestBid(), 'f', -1, 64),
		"ask": strconv.FormatFloat(book.BestAsk(), 'f', -1, 64),
		"ts":  strconv.FormatInt(book.UpdatedAt.UnixMilli(), 10),
	}
}

// GetBook returns domain.ErrNotFound when no book is cached.
func (oc *OrderbookCache) GetBook(ctx context.Context, marketID, outcomeID string) (domain.OrderBook, error) {
	data, err := oc.c.rdb.Get(ctx, oc.bookKey(marketID, outcomeID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.OrderBook{}, domain.ErrNotFound
		}
		return domain.OrderBook{}, fmt.Errorf("redis: get book %s/%s: %w", marketID, outcomeID, err)
	}
	var book domain.OrderBook
	if err := json.Unmarshal(data, &book); err != nil {
		return domain.OrderBook{}, fmt.Errorf("redis: unmarshal book %s/%s: %w", marketID, outcomeID, err)
	}
	return book, nil
}

// GetBBO returns the best bid and ask. A side with no levels reads as 0.
func (oc *OrderbookCache) GetBBO(ctx context.Context, marketID, outcomeID string) (float64, float64, error) {
	vals, err := oc.c.rdb.HGetAll(ctx, oc.bboKey(marketID, outcomeID)).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("redis: get bbo %s/%s: %w", marketID, outcomeID, err)
	}
	if len(vals) == 0 {
		return 0, 0, domain.ErrNotFound
	}
	bid, ask, _ := parseBBO(vals)
	return bid, ask, nil
}

func parseBBO(vals map[string]string) (bid, ask float64, at time.Time) {
	bid, _ = strconv.ParseFloat(vals["bid"], 64)
	ask, _ = strconv.ParseFloat(vals["ask"], 64)
	if ms, err := strconv.ParseInt(vals["ts"], 10, 64); err == nil {
		at = time.UnixMilli(ms).UTC()
	}
	return bid, ask, at
}

var _ domain.OrderbookCache = (*OrderbookCache)(nil)
