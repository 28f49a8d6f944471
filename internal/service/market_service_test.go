package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/alanyoungcy/matchmarket/internal/domain"
	"github.com/alanyoungcy/matchmarket/internal/history"
	"github.com/alanyoungcy/matchmarket/internal/pricing"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func newTestService(env *testEnv) *MarketService {
	return NewMarketService(env.deps(), pricing.DefaultRules(), 0)
}

func TestPricingView(t *testing.T) {
	env := newTestEnv()
	fee := 0.05
	a := outcome("a", 100)
	a.FeeRate = &fee
	env.markets.put(domain.Market{ID: "m1"}, a, outcome("b", 300))
	svc := newTestService(env)

	v, err := svc.Pricing(context.Background(), "m1")
	if err != nil {
		t.Fatal(err)
	}
	if v.Type != domain.MarketTypeBinary {
		t.Errorf("type = %s", v.Type)
	}
	if !approx(v.Outcomes[0].EffectivePrice, 0.75*1.05) {
		t.Errorf("effective a = %v", v.Outcomes[0].EffectivePrice)
	}
	if !approx(v.NoPrices["a"], 0.25) {
		t.Errorf("no price a = %v, want 0.25", v.NoPrices["a"])
	}
	if v.MatchPrices != nil {
		t.Error("binary market should not carry match prices")
	}

	if _, err := svc.Pricing(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing market: %v", err)
	}
}

func TestPricingViewMatchPrices(t *testing.T) {
	env := newTestEnv()
	env.markets.put(domain.Market{ID: "m1", Type: "1X2"},
		domain.Outcome{ID: "h", Slug: domain.SlugHome, Pool: 100},
		domain.Outcome{ID: "d", Slug: domain.SlugDraw, Pool: 100},
		domain.Outcome{ID: "a", Slug: domain.SlugAway, Pool: 100},
	)
	v, err := newTestService(env).Pricing(context.Background(), "m1")
	if err != nil {
		t.Fatal(err)
	}
	if v.MatchPrices == nil {
		t.Fatal("missing match prices")
	}
	if v.MatchPrices.Home.Yes+v.MatchPrices.Home.No != 100 {
		t.Errorf("home = %+v", v.MatchPrices.Home)
	}
}

func TestGetMarketBackfillsCache(t *testing.T) {
	env := newTestEnv()
	env.markets.put(domain.Market{ID: "m1"}, outcome("a", 1), outcome("b", 1))
	svc := newTestService(env)

	if _, err := svc.GetMarket(context.Background(), "m1"); err != nil {
		t.Fatal(err)
	}
	cached, err := env.cache.Get(context.Background(), "m1")
	if err != nil || len(cached.Outcomes) != 2 {
		t.Errorf("cache not back-filled: %+v %v", cached, err)
	}
}

func TestQuote(t *testing.T) {
	env := newTestEnv()
	env.markets.put(domain.Market{ID: "m1", Liquidity: 1000}, outcome("a", 100), outcome("b", 300))
	svc := newTestService(env)
	ctx := context.Background()

	q, err := svc.Quote(ctx, "m1", "a", QuoteYes, 10)
	if err != nil {
		t.Fatal(err)
	}
	if !approx(q.BasePrice, 0.75) || !approx(q.BuyPrice, 0.7575) || !approx(q.SellPrice, 0.7425) {
		t.Errorf("prices = %v/%v/%v", q.BasePrice, q.BuyPrice, q.SellPrice)
	}
	if !approx(q.Quote.Shares, 10/0.7575) || !approx(q.Ticket.MinShares, 10/0.7575*0.99) {
		t.Errorf("quote = %+v ticket = %+v", q.Quote, q.Ticket)
	}
	if q.Label.Display != "75¢" {
		t.Errorf("label = %q", q.Label.Display)
	}

	no, err := svc.Quote(ctx, "m1", "a", QuoteNo, 10)
	if err != nil || !approx(no.BasePrice, 0.25) {
		t.Errorf("no side = %v, %v", no.BasePrice, err)
	}

	if _, err := svc.Quote(ctx, "m1", "zz", QuoteYes, 10); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown outcome: %v", err)
	}
	if _, err := svc.Quote(ctx, "m1", "a", QuoteYes, 500); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("stake over max bet: %v", err)
	}

	zero := 0.0
	env.markets.put(domain.Market{ID: "m2", Liquidity: 1000, RiskMultiplier: &zero}, outcome("a", 1), outcome("b", 1))
	if _, err := svc.Quote(ctx, "m2", "a", QuoteYes, 10); !errors.Is(err, domain.ErrMarketSuspended) {
		t.Errorf("suspended market: %v", err)
	}
}

func TestOrderBookFallsBackToTrades(t *testing.T) {
	env := newTestEnv()
	env.markets.put(domain.Market{ID: "m1"}, outcome("a", 1), outcome("b", 1))
	env.trades.trades = []domain.Trade{
		{MarketID: "m1", OutcomeID: "a", Price: 0.401, Shares: 5, Side: domain.SideBuy},
		{MarketID: "m1", OutcomeID: "b", Price: 0.6, Shares: 1, Side: domain.SideSell},
		{MarketID: "m1", OutcomeID: "a", Price: 0.404, Shares: 3, Side: domain.SideBuy},
	}
	svc := newTestService(env)

	book, err := svc.OrderBook(context.Background(), "m1", "")
	if err != nil {
		t.Fatal(err)
	}
	if book.OutcomeID != "a" || len(book.Bids) != 1 || book.Bids[0].Size != 8 || len(book.Asks) != 0 {
		t.Errorf("book = %+v", book)
	}
	if _, err := svc.OrderBook(context.Background(), "m1", "zz"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown outcome: %v", err)
	}
}

func TestHistoryFallbackAndBuild(t *testing.T) {
	env := newTestEnv()
	env.markets.put(domain.Market{ID: "m1"}, outcome("a", 100), outcome("b", 300))
	svc := newTestService(env)
	now := time.Date(2024, 5, 1, 12, 0, 30, 0, time.UTC)
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	env.history.err = errors.New("connection refused")
	v, err := svc.History(ctx, "m1", history.Timeframe1H, "")
	if err != nil {
		t.Fatal(err)
	}
	if !v.Fallback || len(v.Rows) != 10 || v.Rows[0].Values["a"] != 75 {
		t.Errorf("fallback rows = %d (fallback=%v)", len(v.Rows), v.Fallback)
	}
	env.history.err = nil

	env.history.points = []domain.PricePoint{
		{MarketID: "m1", OutcomeID: "a", Price: 0.7, Time: now.Add(-10 * time.Minute)},
		{MarketID: "m1", OutcomeID: "b", Price: 0.3, Time: now.Add(-10 * time.Minute)},
	}
	v, err = svc.History(ctx, "m1", history.Timeframe1H, "")
	if err != nil {
		t.Fatal(err)
	}
	if v.Fallback || len(v.Rows) != 60 {
		t.Fatalf("rows = %d (fallback=%v)", len(v.Rows), v.Fallback)
	}
	last := v.Rows[len(v.Rows)-1].Values
	if last["a"] != 70 || last["b"] != 30 {
		t.Errorf("last row = %v", last)
	}

	single, err := svc.History(ctx, "m1", history.Timeframe1H, "b")
	if err != nil {
		t.Fatal(err)
	}
	if got := single.Rows[len(single.Rows)-1].Values["b"]; got != 0.3 {
		t.Errorf("single series last = %v", got)
	}

	if _, err := svc.History(ctx, "m1", history.Timeframe1H, "zz"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown outcome: %v", err)
	}
}

func TestHistoryWithoutPointsIsEvenGrid(t *testing.T) {
	env := newTestEnv()
	env.markets.put(domain.Market{ID: "m1"}, outcome("a", 100), outcome("b", 100), outcome("c", 100))
	svc := newTestService(env)
	svc.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 30, 0, time.UTC) }

	v, err := svc.History(context.Background(), "m1", history.Timeframe1H, "")
	if err != nil {
		t.Fatal(err)
	}
	if v.Fallback || len(v.Rows) != 60 {
		t.Fatalf("rows = %d (fallback=%v), want a 60-bucket grid", len(v.Rows), v.Fallback)
	}
	for _, r := range v.Rows {
		if r.Values["a"] != 33.3 || r.Values["b"] != 33.3 || r.Values["c"] != 33.4 {
			t.Fatalf("row %v = %v, want 33.3/33.3/33.4", r.Time, r.Values)
		}
	}
}

func TestHistoryExtendsCachedSeriesToNow(t *testing.T) {
	env := newTestEnv()
	env.markets.put(domain.Market{ID: "m1"}, outcome("a", 100), outcome("b", 300))
	built := time.Date(2024, 5, 1, 12, 0, 30, 0, time.UTC)
	rows := history.NewAggregator(history.Timeframe1H, history.ChartOutcomes([]domain.Outcome{outcome("a", 100), outcome("b", 300)})).
		Build([]domain.PricePoint{
			{OutcomeID: "a", Price: 0.6, Time: built},
			{OutcomeID: "b", Price: 0.4, Time: built},
		}, built)
	ctx := context.Background()
	env.cache.SetSeries(ctx, domain.SeriesKey{MarketID: "m1", Timeframe: "1H"}, rows)

	svc := newTestService(env)
	now := built.Add(150 * time.Second)
	svc.now = func() time.Time { return now }

	v, err := svc.History(ctx, "m1", history.Timeframe1H, "")
	if err != nil {
		t.Fatal(err)
	}
	grid := history.NewGrid(history.Timeframe1H, now)
	if len(v.Rows) != grid.Len() {
		t.Fatalf("rows = %d, want %d", len(v.Rows), grid.Len())
	}
	last := v.Rows[len(v.Rows)-1]
	if !last.Time.Equal(grid.End()) || last.Values["a"] != 60 {
		t.Errorf("last row = %v %v, want %v at 60", last.Time, last.Values, grid.End())
	}
}

func TestPositionsUseCachedRawPrices(t *testing.T) {
	env := newTestEnv()
	env.markets.put(domain.Market{ID: "m1"}, outcome("a", 100), outcome("b", 300))
	env.positions.positions = []domain.Position{
		{ID: "p1", UserID: "u1", MarketID: "m1", OutcomeID: "a", Shares: 10, AvgPrice: 0.5, AmountSpent: 5},
		{ID: "p2", UserID: "u2", MarketID: "m1", OutcomeID: "b", Shares: 1, AvgPrice: 0.5, AmountSpent: 0.5},
	}
	ctx := context.Background()
	env.cache.SetPricing(ctx, domain.PricingSnapshot{
		MarketID: "m1",
		Outcomes: []domain.EffectiveOutcome{
			{PricedOutcome: domain.PricedOutcome{ID: "a", Price: 0.8}, EffectivePrice: 0.84},
			{PricedOutcome: domain.PricedOutcome{ID: "b", Price: 0.2}, EffectivePrice: 0.21},
		},
	})

	got, err := newTestService(env).Positions(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("positions = %d", len(got))
	}
	if !approx(got[0].CurrentValue, 8) || !approx(got[0].ProfitLoss, 3) || !approx(got[0].ProfitLossPct, 60) {
		t.Errorf("valued = %+v", got[0])
	}
}

func TestPositionsIgnoreFeesOnColdCache(t *testing.T) {
	env := newTestEnv()
	fee := 0.05
	a := outcome("a", 100)
	a.FeeRate = &fee
	env.markets.put(domain.Market{ID: "m1"}, a, outcome("b", 300))
	env.positions.positions = []domain.Position{
		{ID: "p1", UserID: "u1", MarketID: "m1", OutcomeID: "a", Shares: 10, AvgPrice: 0.5, AmountSpent: 5},
	}

	got, err := newTestService(env).Positions(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || !approx(got[0].CurrentPrice, 0.75) || !approx(got[0].CurrentValue, 7.5) {
		t.Errorf("valued = %+v, want the raw 0.75 price", got)
	}
}

func TestSellQuote(t *testing.T) {
	env := newTestEnv()
	fee := 0.1
	b := outcome("b", 300)
	b.FeeRate = &fee
	env.markets.put(domain.Market{ID: "m1"}, outcome("a", 100), b)
	env.positions.positions = []domain.Position{
		{ID: "p1", UserID: "u1", MarketID: "m1", OutcomeID: "a", Shares: 10},
		{ID: "p2", UserID: "u1", MarketID: "m1", OutcomeID: "b", Shares: 8},
		{ID: "p3", UserID: "u1", MarketID: "m2", OutcomeID: "x", Shares: 50},
	}
	svc := newTestService(env)
	ctx := context.Background()

	yes, err := svc.SellQuote(ctx, "m1", "a", "u1", QuoteYes, 50)
	if err != nil {
		t.Fatal(err)
	}
	if yes.HeldShares != 10 || !approx(yes.Shares, 5) || !approx(yes.Proceeds, 3.75) {
		t.Errorf("yes = %+v", yes)
	}

	no, err := svc.SellQuote(ctx, "m1", "a", "u1", QuoteNo, 50)
	if err != nil {
		t.Fatal(err)
	}
	if no.HeldShares != 8 || !approx(no.Shares, 4) || !approx(no.Proceeds, 1.1) {
		t.Errorf("no = %+v", no)
	}

	if _, err := svc.SellQuote(ctx, "m1", "a", "u1", QuoteYes, 0); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("zero percent: %v", err)
	}
	if _, err := svc.SellQuote(ctx, "m1", "zz", "u1", QuoteYes, 50); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown outcome: %v", err)
	}
}
