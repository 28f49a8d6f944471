package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/matchmarket/internal/domain"
	"github.com/alanyoungcy/matchmarket/internal/history"
	"github.com/alanyoungcy/matchmarket/internal/orderbook"
	"github.com/alanyoungcy/matchmarket/internal/pricing"
)

// MarketService serves the derived market views to the API. It reads what
// the workers cached and falls back to computing from the store on a miss.
type MarketService struct {
	deps   Deps
	rules  pricing.Rules
	window int
	logger *slog.Logger
	now    func() time.Time
}

// NewMarketService creates a MarketService.
func NewMarketService(deps Deps, rules pricing.Rules, bookWindow int) *MarketService {
	if bookWindow <= 0 {
		bookWindow = orderbook.DefaultWindow
	}
	return &MarketService{
		deps:   deps,
		rules:  rules,
		window: bookWindow,
		logger: deps.Logger.With(slog.String("component", "market_service")),
		now:    time.Now,
	}
}

// MarketDetail is a market with its resolved type and stake limits.
type MarketDetail struct {
	domain.Market
	ResolvedType domain.MarketType  `json:"resolved_type"`
	Limits       pricing.BetLimits  `json:"limits"`
	Match        *pricing.MatchView `json:"match,omitempty"`
}

// GetMarket retrieves a market by ID, checking the cache first and falling
// back to the store on a miss. Outcomes follow the realtime, embedded,
// refetched precedence.
func (s *MarketService) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	m, err := s.deps.MarketCache.Get(ctx, id)
	if err == nil && len(m.Outcomes) > 0 {
		return m, nil
	}

	m, err = s.deps.Markets.GetMarket(ctx, id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get market %q: %w", id, err)
	}
	outcomes, _, err := ResolveOutcomes(ctx, Embedded(m), Refetched(s.deps.Markets, id))
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get market %q: %w", id, err)
	}
	m.Outcomes = outcomes

	if cacheErr := s.deps.MarketCache.Set(ctx, m); cacheErr != nil {
		s.logger.WarnContext(ctx, "market_service: cache set failed",
			slog.String("market_id", id),
			slog.String("error", cacheErr.Error()),
		)
	}
	return m, nil
}

// Detail returns the market with its type, limits and, when the market
// belongs to a match, the match card.
func (s *MarketService) Detail(ctx context.Context, id string) (MarketDetail, error) {
	m, err := s.GetMarket(ctx, id)
	if err != nil {
		return MarketDetail{}, err
	}
	d := MarketDetail{
		Market:       m,
		ResolvedType: pricing.ResolveMarketType(m.Type, m.Outcomes),
		Limits:       s.rules.Limits(m),
	}
	if m.MatchID != "" {
		match, err := s.deps.Markets.GetMatch(ctx, m.MatchID)
		if err == nil {
			view := pricing.BuildMatchView(match, m)
			d.Match = &view
		} else {
			s.logger.DebugContext(ctx, "market_service: match lookup failed",
				slog.String("match_id", m.MatchID),
				slog.String("error", err.Error()),
			)
		}
	}
	return d, nil
}

// PricingView is everything a trading panel needs to price a market.
type PricingView struct {
	MarketID       string                    `json:"market_id"`
	Type           domain.MarketType         `json:"type"`
	Outcomes       []domain.EffectiveOutcome `json:"outcomes"`
	NoPrices       map[string]float64        `json:"no_prices"`
	TotalEffective float64                   `json:"total_effective"`
	MatchPrices    *pricing.MatchPrices      `json:"match_prices,omitempty"`
}

// Pricing recomputes pricing from the market's current outcome set.
func (s *MarketService) Pricing(ctx context.Context, id string) (PricingView, error) {
	m, err := s.GetMarket(ctx, id)
	if err != nil {
		return PricingView{}, err
	}
	ep := pricing.BuildEffectivePricing(m.Outcomes)
	v := PricingView{
		MarketID:       id,
		Type:           pricing.ResolveMarketType(m.Type, m.Outcomes),
		Outcomes:       ep.Effective,
		NoPrices:       ep.NoPrices(),
		TotalEffective: ep.TotalEffective,
	}
	if v.Type == domain.MarketType1X2 {
		mp := pricing.BuildMatchPrices(ep)
		v.MatchPrices = &mp
	}
	return v, nil
}

// HistoryView is a chart series with its display helpers.
type HistoryView struct {
	Timeframe history.Timeframe   `json:"timeframe"`
	OutcomeID string              `json:"outcome_id,omitempty"`
	Rows      []domain.HistoryRow `json:"rows"`
	Visible   []string            `json:"visible"`
	YDomain   [2]float64          `json:"y_domain"`
	Current   map[string]float64  `json:"current"`
	Fallback  bool                `json:"fallback,omitempty"`
}

// History returns the chart for a market. With an outcome id it is that
// outcome's raw price series; otherwise it is the normalized multi-outcome
// series. When the history cannot be read the chart is a flat line at pool
// prices.
func (s *MarketService) History(ctx context.Context, id string, tf history.Timeframe, outcomeID string) (HistoryView, error) {
	m, err := s.GetMarket(ctx, id)
	if err != nil {
		return HistoryView{}, err
	}
	if outcomeID != "" && indexOf(m.Outcomes, outcomeID) < 0 {
		return HistoryView{}, fmt.Errorf("market_service: history %q: outcome %q: %w", id, outcomeID, domain.ErrNotFound)
	}

	now := s.now()
	key := domain.SeriesKey{MarketID: id, OutcomeID: outcomeID, Timeframe: string(tf)}
	rows, err := s.deps.SeriesCache.GetSeries(ctx, key)
	if err == nil && len(rows) > 0 {
		rows = history.ExtendRows(rows, history.NewGrid(tf, now))
	} else {
		rows, err = s.buildSeries(ctx, m, tf, outcomeID, now)
		if err != nil {
			s.logger.WarnContext(ctx, "market_service: history fetch failed, drawing pool prices",
				slog.String("market_id", id),
				slog.String("timeframe", string(tf)),
				slog.String("error", err.Error()),
			)
			rows = nil
		}
	}

	v := HistoryView{Timeframe: tf, OutcomeID: outcomeID, Rows: rows}
	if len(v.Rows) == 0 {
		v.Rows = history.FallbackRows(m.Outcomes, now)
		v.Fallback = true
	}
	if outcomeID != "" {
		v.Visible = []string{outcomeID}
	} else {
		v.Visible = history.VisibleOutcomes(m.Outcomes, "")
	}
	v.YDomain = history.YDomain(v.Rows, v.Visible)
	v.Current = history.CurrentPrices(v.Rows, m.Outcomes)
	return v, nil
}

func (s *MarketService) buildSeries(ctx context.Context, m domain.Market, tf history.Timeframe, outcomeID string, now time.Time) ([]domain.HistoryRow, error) {
	grid := history.NewGrid(tf, now)
	since := grid.Start()

	if outcomeID != "" {
		points, err := s.deps.History.ListByOutcome(ctx, outcomeID, domain.ListOpts{
			Since: &since,
			Limit: history.SingleRowLimit(grid.Len()),
		})
		if err != nil {
			return nil, fmt.Errorf("market_service: history %q: %w", m.ID, err)
		}
		return history.NewSingleAggregator(tf, outcomeID).Build(points, now), nil
	}

	points, err := s.deps.History.ListByMarket(ctx, m.ID, domain.ListOpts{
		Since: &since,
		Limit: history.MultiRowLimit(grid.Len(), len(m.Outcomes)),
	})
	if err != nil {
		return nil, fmt.Errorf("market_service: history %q: %w", m.ID, err)
	}
	return history.NewAggregator(tf, history.ChartOutcomes(m.Outcomes)).Build(points, now), nil
}

// OrderBook returns the trade-tape depth of one outcome. An empty outcome
// id selects the market's first outcome.
func (s *MarketService) OrderBook(ctx context.Context, id, outcomeID string) (domain.OrderBook, error) {
	m, err := s.GetMarket(ctx, id)
	if err != nil {
		return domain.OrderBook{}, err
	}
	if outcomeID == "" {
		if len(m.Outcomes) == 0 {
			return domain.OrderBook{}, fmt.Errorf("market_service: order book %q: no outcomes: %w", id, domain.ErrNotFound)
		}
		outcomeID = m.Outcomes[0].ID
	} else if indexOf(m.Outcomes, outcomeID) < 0 {
		return domain.OrderBook{}, fmt.Errorf("market_service: order book %q: outcome %q: %w", id, outcomeID, domain.ErrNotFound)
	}

	if book, err := s.deps.BookCache.GetBook(ctx, id, outcomeID); err == nil {
		return book, nil
	}

	trades, err := s.deps.Trades.ListRecent(ctx, id, outcomeID, s.window)
	if err != nil {
		return domain.OrderBook{}, fmt.Errorf("market_service: order book %q: %w", id, err)
	}
	prints := make([]orderbook.Print, len(trades))
	for i, t := range trades {
		prints[i] = orderbook.PrintOf(t)
	}
	return orderbook.New(id, outcomeID).Build(prints), nil
}

// QuoteSide selects which side of an outcome a quote is for.
type QuoteSide string

const (
	QuoteYes QuoteSide = "yes"
	QuoteNo  QuoteSide = "no"
)

// QuoteView is a local estimate of a buy. The execution service makes the
// binding quote; MinShares is the slippage guard to send along with it.
type QuoteView struct {
	OutcomeID string             `json:"outcome_id"`
	Side      QuoteSide          `json:"side"`
	BasePrice float64            `json:"base_price"`
	BuyPrice  float64            `json:"buy_price"`
	SellPrice float64            `json:"sell_price"`
	Label     pricing.PriceLabel `json:"label"`
	Quote     pricing.Quote      `json:"quote"`
	Ticket    pricing.Ticket     `json:"ticket"`
	Limits    pricing.BetLimits  `json:"limits"`
}

// Quote estimates buying amount of the YES or NO side of an outcome.
func (s *MarketService) Quote(ctx context.Context, id, outcomeID string, side QuoteSide, amount float64) (QuoteView, error) {
	m, err := s.GetMarket(ctx, id)
	if err != nil {
		return QuoteView{}, err
	}
	if indexOf(m.Outcomes, outcomeID) < 0 {
		return QuoteView{}, fmt.Errorf("market_service: quote %q: outcome %q: %w", id, outcomeID, domain.ErrNotFound)
	}
	if err := s.rules.CheckStake(m, amount); err != nil {
		return QuoteView{}, fmt.Errorf("market_service: quote %q: %w", id, err)
	}

	ep := pricing.BuildEffectivePricing(m.Outcomes)
	base := ep.YesPrice(outcomeID)
	if side == QuoteNo {
		base = ep.NoPrice(outcomeID)
	}

	v := QuoteView{
		OutcomeID: outcomeID,
		Side:      side,
		BasePrice: base,
		BuyPrice:  s.rules.BuyPrice(base),
		SellPrice: s.rules.SellPrice(base),
		Label:     pricing.FormatPrice(base),
		Limits:    s.rules.Limits(m),
	}
	if v.BuyPrice > 0 {
		v.Quote = pricing.Quote{
			Shares:        amount / v.BuyPrice,
			PricePerShare: v.BuyPrice,
			OddsDecimal:   1 / v.BuyPrice,
		}
	}
	v.Ticket = s.rules.Ticket(m, amount, v.Quote)
	return v, nil
}

// SellQuoteView estimates selling part of a user's holding in one outcome.
type SellQuoteView struct {
	OutcomeID  string    `json:"outcome_id"`
	Side       QuoteSide `json:"side"`
	Percent    float64   `json:"percent"`
	HeldShares float64   `json:"held_shares"`
	pricing.SellEstimate
}

// SellQuote estimates the proceeds of selling pct percent of a user's YES or
// NO holding in an outcome. The NO holding is the user's positions in every
// other outcome of the market, each sold at its own effective price.
func (s *MarketService) SellQuote(ctx context.Context, id, outcomeID, userID string, side QuoteSide, pct float64) (SellQuoteView, error) {
	if pct <= 0 || pct > 100 {
		return SellQuoteView{}, fmt.Errorf("market_service: sell quote %q: percent %v: %w", id, pct, domain.ErrInvalidInput)
	}
	m, err := s.GetMarket(ctx, id)
	if err != nil {
		return SellQuoteView{}, err
	}
	if indexOf(m.Outcomes, outcomeID) < 0 {
		return SellQuoteView{}, fmt.Errorf("market_service: sell quote %q: outcome %q: %w", id, outcomeID, domain.ErrNotFound)
	}
	positions, err := s.deps.Positions.ListOpen(ctx, userID)
	if err != nil {
		return SellQuoteView{}, fmt.Errorf("market_service: sell quote %q: positions %q: %w", id, userID, err)
	}

	ep := pricing.BuildEffectivePricing(m.Outcomes)
	v := SellQuoteView{OutcomeID: outcomeID, Side: side, Percent: pct}
	if side == QuoteNo {
		var legs []domain.Position
		for _, p := range positions {
			if p.MarketID == id && p.OutcomeID != outcomeID {
				legs = append(legs, p)
				v.HeldShares += p.Shares
			}
		}
		v.SellEstimate = pricing.EstimateNoSell(legs, pct, ep.EffectiveByID, 1/float64(len(m.Outcomes)))
		return v, nil
	}

	for _, p := range positions {
		if p.MarketID == id && p.OutcomeID == outcomeID {
			v.HeldShares += p.Shares
		}
	}
	v.SellEstimate = pricing.EstimateSell(v.HeldShares, pct, ep.YesPrice(outcomeID))
	return v, nil
}

// Positions marks a user's open positions to the current effective prices.
func (s *MarketService) Positions(ctx context.Context, userID string) ([]pricing.PositionValue, error) {
	positions, err := s.deps.Positions.ListOpen(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("market_service: positions %q: %w", userID, err)
	}

	prices := make(map[string]float64)
	seen := make(map[string]bool)
	for _, p := range positions {
		if seen[p.MarketID] {
			continue
		}
		seen[p.MarketID] = true
		for k, v := range s.marketPrices(ctx, p.MarketID) {
			prices[k] = v
		}
	}

	out := make([]pricing.PositionValue, len(positions))
	for i, p := range positions {
		out[i] = pricing.ValuePosition(p, prices)
	}
	return out, nil
}

// marketPrices returns the raw inverse-pool price of every outcome, without
// fees or normalization. The workers' cached prices are preferred.
func (s *MarketService) marketPrices(ctx context.Context, marketID string) map[string]float64 {
	if prices, err := s.deps.PricingCache.GetPrices(ctx, marketID); err == nil && len(prices) > 0 {
		return prices
	}
	m, err := s.GetMarket(ctx, marketID)
	if err != nil {
		s.logger.DebugContext(ctx, "market_service: price lookup failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return pricing.PriceMap([]domain.Market{m})
}
