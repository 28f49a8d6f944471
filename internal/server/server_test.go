package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/matchmarket/internal/domain"
	"github.com/alanyoungcy/matchmarket/internal/history"
	"github.com/alanyoungcy/matchmarket/internal/pricing"
	"github.com/alanyoungcy/matchmarket/internal/server/handler"
	"github.com/alanyoungcy/matchmarket/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubMarkets struct {
	lastTF      history.Timeframe
	lastOutcome string
	lastSide    service.QuoteSide
	lastAmount  float64
	lastPct     float64
}

func (s *stubMarkets) Detail(_ context.Context, id string) (service.MarketDetail, error) {
	switch id {
	case "m1":
		return service.MarketDetail{Market: domain.Market{ID: "m1"}, ResolvedType: domain.MarketTypeBinary}, nil
	case "boom":
		return service.MarketDetail{}, errors.New("db down")
	}
	return service.MarketDetail{}, fmt.Errorf("get %s: %w", id, domain.ErrNotFound)
}

func (s *stubMarkets) Pricing(_ context.Context, id string) (service.PricingView, error) {
	return service.PricingView{MarketID: id, TotalEffective: 1}, nil
}

func (s *stubMarkets) History(_ context.Context, id string, tf history.Timeframe, outcomeID string) (service.HistoryView, error) {
	s.lastTF, s.lastOutcome = tf, outcomeID
	return service.HistoryView{Timeframe: tf, OutcomeID: outcomeID}, nil
}

func (s *stubMarkets) OrderBook(_ context.Context, id, outcomeID string) (domain.OrderBook, error) {
	return domain.OrderBook{MarketID: id, OutcomeID: outcomeID}, nil
}

func (s *stubMarkets) Quote(_ context.Context, id, outcomeID string, side service.QuoteSide, amount float64) (service.QuoteView, error) {
	s.lastSide, s.lastAmount = side, amount
	if amount > 100 {
		return service.QuoteView{}, fmt.Errorf("too big: %w", domain.ErrInvalidInput)
	}
	if id == "suspended" {
		return service.QuoteView{}, domain.ErrMarketSuspended
	}
	return service.QuoteView{OutcomeID: outcomeID, Side: side}, nil
}

func (s *stubMarkets) SellQuote(_ context.Context, id, outcomeID, userID string, side service.QuoteSide, pct float64) (service.SellQuoteView, error) {
	s.lastSide, s.lastPct = side, pct
	if pct > 100 {
		return service.SellQuoteView{}, fmt.Errorf("percent: %w", domain.ErrInvalidInput)
	}
	return service.SellQuoteView{OutcomeID: outcomeID, Side: side, Percent: pct}, nil
}

type stubPositions struct{}

func (stubPositions) Positions(_ context.Context, userID string) ([]pricing.PositionValue, error) {
	return []pricing.PositionValue{
		{Position: domain.Position{UserID: userID, AmountSpent: 10}, CurrentValue: 12.5},
		{Position: domain.Position{UserID: userID, AmountSpent: 5}, CurrentValue: 4},
	}, nil
}

type denyAll struct {
	mu    sync.Mutex
	calls int
}

func (d *denyAll) Allow(context.Context, string, int, time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return d.calls <= 1, nil
}

func newTestServer(t *testing.T, cfg Config, markets *stubMarkets, limiter domain.RateLimiter) *httptest.Server {
	t.Helper()
	logger := testLogger()
	h := Handlers{
		Health:    handler.NewHealthHandler(nil, logger),
		Markets:   handler.NewMarketHandler(markets, history.Timeframe1D, logger),
		Odds:      handler.NewOddsHandler(logger),
		Positions: handler.NewPositionHandler(stubPositions{}, logger),
	}
	srv := httptest.NewServer(Routes(cfg, h, nil, limiter, logger))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string, header ...string) (int, map[string]any) {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, url, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp.StatusCode, body
}

func TestRoutesStatusMapping(t *testing.T) {
	srv := newTestServer(t, Config{}, &stubMarkets{}, nil)

	tests := []struct {
		name string
		path string
		want int
	}{
		{"health", "/health", http.StatusOK},
		{"market", "/api/markets/m1", http.StatusOK},
		{"not found", "/api/markets/nope", http.StatusNotFound},
		{"internal", "/api/markets/boom", http.StatusInternalServerError},
		{"pricing", "/api/markets/m1/pricing", http.StatusOK},
		{"bad timeframe", "/api/markets/m1/history?timeframe=2Y", http.StatusBadRequest},
		{"orderbook", "/api/markets/m1/orderbook?outcome=a", http.StatusOK},
		{"quote missing outcome", "/api/markets/m1/quote?amount=5", http.StatusBadRequest},
		{"quote bad side", "/api/markets/m1/quote?outcome=a&side=maybe&amount=5", http.StatusBadRequest},
		{"quote bad amount", "/api/markets/m1/quote?outcome=a&amount=x", http.StatusBadRequest},
		{"quote over limit", "/api/markets/m1/quote?outcome=a&amount=500", http.StatusBadRequest},
		{"quote suspended", "/api/markets/suspended/quote?outcome=a&amount=5", http.StatusConflict},
		{"quote ok", "/api/markets/m1/quote?outcome=a&side=NO&amount=5", http.StatusOK},
		{"sell quote missing user", "/api/markets/m1/sell-quote?outcome=a", http.StatusBadRequest},
		{"sell quote bad pct", "/api/markets/m1/sell-quote?user=u1&outcome=a&pct=half", http.StatusBadRequest},
		{"sell quote over 100", "/api/markets/m1/sell-quote?user=u1&outcome=a&pct=150", http.StatusBadRequest},
		{"sell quote ok", "/api/markets/m1/sell-quote?user=u1&outcome=a&side=no&pct=25", http.StatusOK},
		{"odds", "/api/odds?p=0.4&format=uk", http.StatusOK},
		{"odds bad format", "/api/odds?p=0.4&format=jp", http.StatusBadRequest},
		{"odds missing p", "/api/odds", http.StatusBadRequest},
		{"positions", "/api/positions/u1", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, body := get(t, srv.URL+tt.path); code != tt.want {
				t.Fatalf("GET %s = %d (%v), want %d", tt.path, code, body, tt.want)
			}
		})
	}
}

func TestHistoryDefaultsAndParams(t *testing.T) {
	markets := &stubMarkets{}
	srv := newTestServer(t, Config{}, markets, nil)

	get(t, srv.URL+"/api/markets/m1/history")
	if markets.lastTF != history.Timeframe1D || markets.lastOutcome != "" {
		t.Fatalf("defaults: tf=%s outcome=%q", markets.lastTF, markets.lastOutcome)
	}
	get(t, srv.URL+"/api/markets/m1/history?timeframe=4h&outcome=b")
	if markets.lastTF != history.Timeframe4H || markets.lastOutcome != "b" {
		t.Fatalf("params: tf=%s outcome=%q", markets.lastTF, markets.lastOutcome)
	}
}

func TestQuoteSideParsing(t *testing.T) {
	markets := &stubMarkets{}
	srv := newTestServer(t, Config{}, markets, nil)

	get(t, srv.URL+"/api/markets/m1/quote?outcome=a&amount=12.5")
	if markets.lastSide != service.QuoteYes || markets.lastAmount != 12.5 {
		t.Fatalf("side=%s amount=%v", markets.lastSide, markets.lastAmount)
	}
}

func TestSellQuoteDefaultsToWholeHolding(t *testing.T) {
	markets := &stubMarkets{}
	srv := newTestServer(t, Config{}, markets, nil)

	code, body := get(t, srv.URL+"/api/markets/m1/sell-quote?user=u1&outcome=a")
	if code != http.StatusOK || markets.lastPct != 100 || markets.lastSide != service.QuoteYes {
		t.Fatalf("code=%d pct=%v side=%s", code, markets.lastPct, markets.lastSide)
	}
	if body["percent"] != 100.0 {
		t.Errorf("body = %v", body)
	}
}

func TestOddsResponse(t *testing.T) {
	srv := newTestServer(t, Config{}, &stubMarkets{}, nil)
	_, body := get(t, srv.URL+"/api/odds?p=0.4&format=US")
	if body["odds"] != "+150" || body["moneyline"] != "ML +150" {
		t.Fatalf("body = %v", body)
	}
	_, body = get(t, srv.URL+"/api/odds?p=0.4")
	if body["odds"] != "2.50" {
		t.Fatalf("EU odds = %v", body["odds"])
	}
}

func TestPositionsTotals(t *testing.T) {
	srv := newTestServer(t, Config{}, &stubMarkets{}, nil)
	_, body := get(t, srv.URL+"/api/positions/u1")
	if body["total_value"] != 16.5 || body["total_spent"] != 15.0 {
		t.Fatalf("totals = %v / %v", body["total_value"], body["total_spent"])
	}
}

func TestAPIKey(t *testing.T) {
	srv := newTestServer(t, Config{APIKey: "secret"}, &stubMarkets{}, nil)

	if code, _ := get(t, srv.URL+"/health"); code != http.StatusOK {
		t.Fatalf("health must stay public, got %d", code)
	}
	if code, _ := get(t, srv.URL+"/api/markets/m1"); code != http.StatusUnauthorized {
		t.Fatalf("missing key = %d", code)
	}
	if code, _ := get(t, srv.URL+"/api/markets/m1", "Authorization", "Bearer secret"); code != http.StatusOK {
		t.Fatalf("bearer = %d", code)
	}
	if code, _ := get(t, srv.URL+"/api/markets/m1", "X-API-Key", "wrong"); code != http.StatusUnauthorized {
		t.Fatalf("wrong key = %d", code)
	}
}

func TestRateLimit(t *testing.T) {
	limiter := &denyAll{}
	srv := newTestServer(t, Config{RateLimit: 1}, &stubMarkets{}, limiter)

	if code, _ := get(t, srv.URL+"/api/markets/m1"); code != http.StatusOK {
		t.Fatalf("first = %d", code)
	}
	if code, _ := get(t, srv.URL+"/api/markets/m1"); code != http.StatusTooManyRequests {
		t.Fatalf("second = %d", code)
	}
	if code, _ := get(t, srv.URL+"/health"); code != http.StatusOK {
		t.Fatalf("health is not limited, got %d", code)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, Config{CORSOrigins: []string{"https://app.example"}}, &stubMarkets{}, nil)

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/markets/m1", nil)
	req.Header.Set("Origin", "https://app.example")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Fatalf("allow origin = %q", got)
	}
	if !strings.Contains(resp.Header.Get("Access-Control-Allow-Methods"), "GET") {
		t.Fatal("GET not allowed")
	}
}
