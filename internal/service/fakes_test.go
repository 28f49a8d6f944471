package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/alanyoungcy/matchmarket/internal/domain"
	"github.com/alanyoungcy/matchmarket/internal/feed"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeMarkets struct {
	mu       sync.Mutex
	markets  map[string]domain.Market
	outcomes map[string][]domain.Outcome
	matches  map[string]domain.Match
	listed   int
}

func newFakeMarkets() *fakeMarkets {
	return &fakeMarkets{
		markets:  make(map[string]domain.Market),
		outcomes: make(map[string][]domain.Outcome),
		matches:  make(map[string]domain.Match),
	}
}

func (f *fakeMarkets) put(m domain.Market, outcomes ...domain.Outcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markets[m.ID] = m
	f.outcomes[m.ID] = outcomes
}

func (f *fakeMarkets) GetMarket(_ context.Context, id string) (domain.Market, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (f *fakeMarkets) GetMatch(_ context.Context, id string) (domain.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.matches[id]
	if !ok {
		return domain.Match{}, domain.ErrNotFound
	}
	return m, nil
}

func (f *fakeMarkets) ListOutcomes(_ context.Context, marketID string) ([]domain.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listed++
	out := make([]domain.Outcome, len(f.outcomes[marketID]))
	copy(out, f.outcomes[marketID])
	return out, nil
}

func (f *fakeMarkets) ListActiveMarkets(_ context.Context, _ domain.ListOpts) ([]domain.Market, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Market
	for _, m := range f.markets {
		if m.Status == "" || m.Status == domain.StatusOpen {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type fakeHistory struct {
	mu     sync.Mutex
	points []domain.PricePoint
	err    error
}

func (f *fakeHistory) ListByMarket(_ context.Context, marketID string, opts domain.ListOpts) ([]domain.PricePoint, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.list(func(p domain.PricePoint) bool { return p.MarketID == marketID }, opts), nil
}

func (f *fakeHistory) ListByOutcome(_ context.Context, outcomeID string, opts domain.ListOpts) ([]domain.PricePoint, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.list(func(p domain.PricePoint) bool { return p.OutcomeID == outcomeID }, opts), nil
}

func (f *fakeHistory) list(keep func(domain.PricePoint) bool, opts domain.ListOpts) []domain.PricePoint {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.PricePoint
	for _, p := range f.points {
		if !keep(p) || (opts.Since != nil && p.Time.Before(*opts.Since)) {
			continue
		}
		out = append(out, p)
	}
	return out
}

type fakeTrades struct {
	mu     sync.Mutex
	trades []domain.Trade // oldest first
}

func (f *fakeTrades) ListRecent(_ context.Context, marketID, outcomeID string, limit int) ([]domain.Trade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Trade
	for i := len(f.trades) - 1; i >= 0 && len(out) < limit; i-- {
		t := f.trades[i]
		if t.MarketID == marketID && (outcomeID == "" || t.OutcomeID == outcomeID) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTrades) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Trade, error) {
	return f.ListRecent(ctx, marketID, "", 1<<30)
}

type fakePositions struct {
	positions []domain.Position
}

func (f *fakePositions) ListOpen(_ context.Context, userID string) ([]domain.Position, error) {
	var out []domain.Position
	for _, p := range f.positions {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

// memCache implements every cache interface in memory.
type memCache struct {
	mu      sync.Mutex
	pricing map[string]domain.PricingSnapshot
	books   map[string]domain.OrderBook
	series  map[domain.SeriesKey][]domain.HistoryRow
	markets map[string]domain.Market
}

func newMemCache() *memCache {
	return &memCache{
		pricing: make(map[string]domain.PricingSnapshot),
		books:   make(map[string]domain.OrderBook),
		series:  make(map[domain.SeriesKey][]domain.HistoryRow),
		markets: make(map[string]domain.Market),
	}
}

func (c *memCache) SetPricing(_ context.Context, snap domain.PricingSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pricing[snap.MarketID] = snap
	return nil
}

func (c *memCache) GetPricing(_ context.Context, marketID string) (domain.PricingSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.pricing[marketID]
	if !ok {
		return domain.PricingSnapshot{}, domain.ErrNotFound
	}
	return s, nil
}

func (c *memCache) GetPrices(ctx context.Context, marketID string) (map[string]float64, error) {
	s, err := c.GetPricing(ctx, marketID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(s.Outcomes))
	for _, o := range s.Outcomes {
		out[o.ID] = o.Price
	}
	return out, nil
}

func (c *memCache) SetBook(_ context.Context, b domain.OrderBook) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.books[b.MarketID+"/"+b.OutcomeID] = b
	return nil
}

func (c *memCache) GetBook(_ context.Context, marketID, outcomeID string) (domain.OrderBook, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.books[marketID+"/"+outcomeID]
	if !ok {
		return domain.OrderBook{}, domain.ErrNotFound
	}
	return b, nil
}

func (c *memCache) GetBBO(ctx context.Context, marketID, outcomeID string) (float64, float64, error) {
	b, err := c.GetBook(ctx, marketID, outcomeID)
	if err != nil {
		return 0, 0, err
	}
	return b.BestBid(), b.BestAsk(), nil
}

func (c *memCache) SetSeries(_ context.Context, key domain.SeriesKey, rows []domain.HistoryRow) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.series[key] = rows
	return nil
}

func (c *memCache) GetSeries(_ context.Context, key domain.SeriesKey) ([]domain.HistoryRow, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rows, ok := c.series[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]domain.HistoryRow(nil), rows...), nil
}

func (c *memCache) UpsertRow(_ context.Context, key domain.SeriesKey, row domain.HistoryRow) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	rows := c.series[key]
	for i := range rows {
		if rows[i].Time.Equal(row.Time) {
			rows[i] = row
			return nil
		}
	}
	rows = append(rows, row)
	sort.Slice(rows, func(i, j int) bool { return rows[i].Time.Before(rows[j].Time) })
	c.series[key] = rows
	return nil
}

func (c *memCache) Set(_ context.Context, m domain.Market) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markets[m.ID] = m
	return nil
}

func (c *memCache) Get(_ context.Context, id string) (domain.Market, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (c *memCache) Invalidate(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.markets, id)
	return nil
}

type fakeBus struct {
	mu        sync.Mutex
	published map[string][][]byte
}

func newFakeBus() *fakeBus { return &fakeBus{published: make(map[string][][]byte)} }

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return make(chan []byte), nil
}

func (b *fakeBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *fakeBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func (b *fakeBus) count(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published[channel])
}

type testEnv struct {
	markets   *fakeMarkets
	history   *fakeHistory
	trades    *fakeTrades
	positions *fakePositions
	cache     *memCache
	bus       *fakeBus
	feed      *feed.MemoryFeed
}

func newTestEnv() *testEnv {
	return &testEnv{
		markets:   newFakeMarkets(),
		history:   &fakeHistory{},
		trades:    &fakeTrades{},
		positions: &fakePositions{},
		cache:     newMemCache(),
		bus:       newFakeBus(),
		feed:      feed.NewMemoryFeed(testLogger()),
	}
}

func (e *testEnv) deps() Deps {
	return Deps{
		Markets:      e.markets,
		History:      e.history,
		Trades:       e.trades,
		Positions:    e.positions,
		PricingCache: e.cache,
		BookCache:    e.cache,
		SeriesCache:  e.cache,
		MarketCache:  e.cache,
		Bus:          e.bus,
		Feed:         e.feed,
		Logger:       testLogger(),
	}
}

func outcome(id string, pool float64) domain.Outcome {
	return domain.Outcome{ID: id, Label: id, Pool: pool}
}
