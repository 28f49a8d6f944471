package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/matchmarket/internal/domain"
	"github.com/alanyoungcy/matchmarket/internal/history"
	"github.com/alanyoungcy/matchmarket/internal/service"
)

// MarketService is the part of the service layer the market handler needs.
type MarketService interface {
	Detail(ctx context.Context, id string) (service.MarketDetail, error)
	Pricing(ctx context.Context, id string) (service.PricingView, error)
	History(ctx context.Context, id string, tf history.Timeframe, outcomeID string) (service.HistoryView, error)
	OrderBook(ctx context.Context, id, outcomeID string) (domain.OrderBook, error)
	Quote(ctx context.Context, id, outcomeID string, side service.QuoteSide, amount float64) (service.QuoteView, error)
	SellQuote(ctx context.Context, id, outcomeID, userID string, side service.QuoteSide, pct float64) (service.SellQuoteView, error)
}

// MarketHandler serves market-related HTTP endpoints.
type MarketHandler struct {
	markets   MarketService
	defaultTF history.Timeframe
	logger    *slog.Logger
}

// NewMarketHandler creates a MarketHandler. defaultTF is used when a history
// request names no timeframe.
func NewMarketHandler(markets MarketService, defaultTF history.Timeframe, logger *slog.Logger) *MarketHandler {
	if defaultTF == "" {
		defaultTF = history.Timeframe1D
	}
	return &MarketHandler{markets: markets, defaultTF: defaultTF, logger: logger}
}

// GetMarket returns a market with its resolved type and limits.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	d, err := h.markets.Detail(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "get market", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// GetPricing returns the priced and effective outcomes.
// GET /api/markets/{id}/pricing
func (h *MarketHandler) GetPricing(w http.ResponseWriter, r *http.Request) {
	v, err := h.markets.Pricing(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get pricing", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// GetHistory returns chart rows for a timeframe.
// GET /api/markets/{id}/history?timeframe=1D&outcome=...
func (h *MarketHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tf := h.defaultTF
	if s := q.Get("timeframe"); s != "" {
		parsed, err := history.ParseTimeframe(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		tf = parsed
	}

	v, err := h.markets.History(r.Context(), pathParam(r, "id"), tf, strings.TrimSpace(q.Get("outcome")))
	if err != nil {
		writeServiceError(w, r, h.logger, "get history", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// GetOrderBook returns the trade-tape depth of one outcome.
// GET /api/markets/{id}/orderbook?outcome=...
func (h *MarketHandler) GetOrderBook(w http.ResponseWriter, r *http.Request) {
	book, err := h.markets.OrderBook(r.Context(), pathParam(r, "id"), strings.TrimSpace(r.URL.Query().Get("outcome")))
	if err != nil {
		writeServiceError(w, r, h.logger, "get orderbook", err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// GetQuote estimates a buy.
// GET /api/markets/{id}/quote?outcome=...&side=yes|no&amount=...
func (h *MarketHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	outcomeID := strings.TrimSpace(q.Get("outcome"))
	if outcomeID == "" {
		writeError(w, http.StatusBadRequest, "missing outcome")
		return
	}

	side, ok := parseSide(q.Get("side"))
	if !ok {
		writeError(w, http.StatusBadRequest, "side must be yes or no")
		return
	}

	amount, _, ok := queryFloat(r, "amount")
	if !ok {
		writeError(w, http.StatusBadRequest, "amount must be a number")
		return
	}

	v, err := h.markets.Quote(r.Context(), pathParam(r, "id"), outcomeID, side, amount)
	if err != nil {
		writeServiceError(w, r, h.logger, "get quote", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// GetSellQuote estimates selling part of a user's holding. pct defaults to
// the whole holding.
// GET /api/markets/{id}/sell-quote?user=...&outcome=...&side=yes|no&pct=...
func (h *MarketHandler) GetSellQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := strings.TrimSpace(q.Get("user"))
	outcomeID := strings.TrimSpace(q.Get("outcome"))
	if userID == "" || outcomeID == "" {
		writeError(w, http.StatusBadRequest, "missing user or outcome")
		return
	}
	side, ok := parseSide(q.Get("side"))
	if !ok {
		writeError(w, http.StatusBadRequest, "side must be yes or no")
		return
	}
	pct, present, ok := queryFloat(r, "pct")
	if present && !ok {
		writeError(w, http.StatusBadRequest, "pct must be a number")
		return
	}
	if !present {
		pct = 100
	}

	v, err := h.markets.SellQuote(r.Context(), pathParam(r, "id"), outcomeID, userID, side, pct)
	if err != nil {
		writeServiceError(w, r, h.logger, "get sell quote", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func parseSide(s string) (service.QuoteSide, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "yes":
		return service.QuoteYes, true
	case "no":
		return service.QuoteNo, true
	}
	return "", false
}
