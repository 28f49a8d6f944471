package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/matchmarket/internal/domain"
)

// UpdateKind tags a message pushed to market subscribers.
type UpdateKind string

const (
	UpdatePricing   UpdateKind = "pricing"
	UpdateHistory   UpdateKind = "history"
	UpdateOrderbook UpdateKind = "orderbook"
	UpdateMarket    UpdateKind = "market"
)

// Update is the JSON message published on a market's bus channel and
// forwarded to WebSocket clients.
type Update struct {
	Kind      UpdateKind `json:"kind"`
	MarketID  string     `json:"market_id"`
	OutcomeID string     `json:"outcome_id,omitempty"`
	Timeframe string     `json:"timeframe,omitempty"`
	Data      any        `json:"data"`
	At        time.Time  `json:"at"`
}

// MarketChannel is the bus channel carrying updates for one market.
func MarketChannel(marketID string) string { return "market:" + marketID }

// MarketChannelPattern matches every market channel.
const MarketChannelPattern = "market:*"

func publish(ctx context.Context, bus domain.SignalBus, logger *slog.Logger, u Update) {
	if bus == nil {
		return
	}
	data, err := json.Marshal(u)
	if err != nil {
		logger.Warn("encode update failed", slog.String("kind", string(u.Kind)), slog.String("error", err.Error()))
		return
	}
	if err := bus.Publish(ctx, MarketChannel(u.MarketID), data); err != nil {
		logger.Warn("publish update failed",
			slog.String("market_id", u.MarketID),
			slog.String("kind", string(u.Kind)),
			slog.String("error", err.Error()),
		)
	}
}
