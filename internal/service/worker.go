package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/matchmarket/internal/decode"
	"github.com/alanyoungcy/matchmarket/internal/domain"
	"github.com/alanyoungcy/matchmarket/internal/feed"
	"github.com/alanyoungcy/matchmarket/internal/history"
	"github.com/alanyoungcy/matchmarket/internal/orderbook"
	"github.com/alanyoungcy/matchmarket/internal/pricing"
)

// errMarketGone stops a worker whose market row was deleted.
var errMarketGone = errors.New("market deleted")

// Deps are the collaborators shared by every market worker and the read
// service. Bus and Locks may be nil.
type Deps struct {
	Markets      domain.MarketStore
	History      domain.HistoryStore
	Trades       domain.TradeStore
	Positions    domain.PositionStore
	PricingCache domain.PricingCache
	BookCache    domain.OrderbookCache
	SeriesCache  domain.HistoryCache
	MarketCache  domain.MarketCache
	Bus          domain.SignalBus
	Feed         domain.ChangeFeed
	Locks        domain.LockManager
	Logger       *slog.Logger
}

// WorkerConfig tunes every market worker.
type WorkerConfig struct {
	Timeframes []history.Timeframe
	BookWindow int
	Debounce   time.Duration
	// Regrid is how often series are rebuilt from the store so the grid
	// slides forward with the clock.
	Regrid  time.Duration
	LockTTL time.Duration
}

// DefaultWorkerConfig charts every timeframe and debounces for 400ms.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Timeframes: history.Timeframes,
		BookWindow: orderbook.DefaultWindow,
		Debounce:   feed.DefaultDebounce,
		Regrid:     time.Minute,
		LockTTL:    30 * time.Second,
	}
}

type singleKey struct {
	tf        history.Timeframe
	outcomeID string
}

// MarketWorker owns every aggregator of one market. All state is touched
// only from the Run goroutine; change events, debounced recomputes and
// refetches are serialized through its select loop.
type MarketWorker struct {
	id     string
	deps   Deps
	cfg    WorkerConfig
	logger *slog.Logger
	now    func() time.Time

	market   domain.Market
	outcomes []domain.Outcome
	multi    map[history.Timeframe]*history.Aggregator
	single   map[singleKey]*history.SingleAggregator
	books    map[string]*orderbook.Book
	// stale is set when the outcome set changed from an event and the
	// aggregators wait for the next refetch to be rebuilt.
	stale bool

	recompute *feed.Debouncer
	refetch   *feed.Debouncer
}

// NewMarketWorker creates a worker for marketID.
func NewMarketWorker(marketID string, deps Deps, cfg WorkerConfig) *MarketWorker {
	return &MarketWorker{
		id:        marketID,
		deps:      deps,
		cfg:       cfg,
		logger:    deps.Logger.With(slog.String("component", "market_worker"), slog.String("market_id", marketID)),
		now:       time.Now,
		recompute: feed.NewDebouncer(cfg.Debounce),
		refetch:   feed.NewDebouncer(cfg.Debounce),
	}
}

// Run loads the market, then applies change events until ctx is done, the
// feed closes or the market is deleted.
func (w *MarketWorker) Run(ctx context.Context) error {
	// Subscribe before loading so nothing between the snapshot and the
	// subscription is lost; events queue in the subscription buffer.
	events, err := w.deps.Feed.Subscribe(ctx, domain.Subscription{MarketID: w.id})
	if err != nil {
		return fmt.Errorf("worker: subscribe %s: %w", w.id, err)
	}
	if err := w.load(ctx); err != nil {
		return err
	}
	defer w.recompute.Stop()
	defer w.refetch.Stop()

	regrid := time.NewTicker(w.cfg.Regrid)
	defer regrid.Stop()

	w.logger.Info("worker started", slog.Int("outcomes", len(w.outcomes)))
	defer w.logger.Info("worker stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return domain.ErrFeedClosed
			}
			if err := w.handle(ctx, ev); err != nil {
				if errors.Is(err, errMarketGone) {
					return nil
				}
				w.logger.Debug("change event skipped",
					slog.String("table", ev.Table),
					slog.String("type", string(ev.Type)),
					slog.String("error", err.Error()),
				)
			}
		case <-w.recompute.C():
			w.publishPricing(ctx)
		case <-w.refetch.C():
			if err := w.reloadOutcomes(ctx); err != nil {
				w.logger.Warn("outcome refetch failed", slog.String("error", err.Error()))
			}
		case <-regrid.C:
			if err := w.rebuildHistory(ctx); err != nil {
				w.logger.Warn("history rebuild failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (w *MarketWorker) load(ctx context.Context) error {
	m, err := w.deps.Markets.GetMarket(ctx, w.id)
	if err != nil {
		return fmt.Errorf("worker: load market %s: %w", w.id, err)
	}
	outcomes, src, err := ResolveOutcomes(ctx, Embedded(m), Refetched(w.deps.Markets, w.id))
	if err != nil {
		return fmt.Errorf("worker: load market %s: %w", w.id, err)
	}
	w.market = m
	w.setOutcomes(outcomes)
	w.logger.Debug("outcomes resolved", slog.String("source", string(src)))

	if err := w.rebuildHistory(ctx); err != nil {
		return err
	}
	if err := w.rebuildBooks(ctx); err != nil {
		return err
	}
	w.publishPricing(ctx)
	return nil
}

// setOutcomes replaces the outcome set and resets the aggregators when the
// set of ids changed.
func (w *MarketWorker) setOutcomes(outcomes []domain.Outcome) bool {
	changed := w.multi == nil || !sameOutcomeSet(w.outcomes, outcomes)
	w.outcomes = outcomes
	if !changed {
		return false
	}
	chart := history.ChartOutcomes(outcomes)
	w.multi = make(map[history.Timeframe]*history.Aggregator, len(w.cfg.Timeframes))
	w.single = make(map[singleKey]*history.SingleAggregator)
	for _, tf := range w.cfg.Timeframes {
		w.multi[tf] = history.NewAggregator(tf, chart)
		for _, o := range outcomes {
			w.single[singleKey{tf, o.ID}] = history.NewSingleAggregator(tf, o.ID)
		}
	}
	w.books = make(map[string]*orderbook.Book, len(outcomes))
	for _, o := range outcomes {
		w.books[o.ID] = orderbook.New(w.id, o.ID)
	}
	return true
}

func (w *MarketWorker) rebuildHistory(ctx context.Context) error {
	now := w.now()
	for _, tf := range w.cfg.Timeframes {
		grid := history.NewGrid(tf, now)
		since := grid.Start()
		points, err := w.deps.History.ListByMarket(ctx, w.id, domain.ListOpts{
			Since: &since,
			Limit: history.MultiRowLimit(grid.Len(), len(w.outcomes)),
		})
		if err != nil {
			return fmt.Errorf("worker: load history %s/%s: %w", w.id, tf, err)
		}

		rows := w.multi[tf].Build(points, now)
		w.storeSeries(ctx, domain.SeriesKey{MarketID: w.id, Timeframe: string(tf)}, rows)
		for _, o := range w.outcomes {
			rows := w.single[singleKey{tf, o.ID}].Build(points, now)
			w.storeSeries(ctx, domain.SeriesKey{MarketID: w.id, OutcomeID: o.ID, Timeframe: string(tf)}, rows)
		}
	}
	return nil
}

func (w *MarketWorker) storeSeries(ctx context.Context, key domain.SeriesKey, rows []domain.HistoryRow) {
	if err := w.deps.SeriesCache.SetSeries(ctx, key, rows); err != nil {
		w.logger.Warn("cache series failed",
			slog.String("timeframe", key.Timeframe),
			slog.String("error", err.Error()),
		)
	}
}

func (w *MarketWorker) rebuildBooks(ctx context.Context) error {
	for _, o := range w.outcomes {
		trades, err := w.deps.Trades.ListRecent(ctx, w.id, o.ID, w.cfg.BookWindow)
		if err != nil {
			return fmt.Errorf("worker: load trades %s/%s: %w", w.id, o.ID, err)
		}
		prints := make([]orderbook.Print, len(trades))
		for i, t := range trades {
			prints[i] = orderbook.PrintOf(t)
		}
		w.storeBook(ctx, w.books[o.ID].Build(prints))
	}
	return nil
}

func (w *MarketWorker) storeBook(ctx context.Context, book domain.OrderBook) {
	if err := w.deps.BookCache.SetBook(ctx, book); err != nil {
		w.logger.Warn("cache book failed",
			slog.String("outcome_id", book.OutcomeID),
			slog.String("error", err.Error()),
		)
	}
}

func (w *MarketWorker) handle(ctx context.Context, ev domain.ChangeEvent) error {
	switch ev.Table {
	case domain.TableOutcomes:
		next, refetch, err := ApplyOutcomeEvent(w.outcomes, ev)
		if err != nil {
			return err
		}
		if w.setOutcomes(next) {
			// A new or removed outcome changes every chart row.
			w.stale = true
			refetch = true
		}
		w.recompute.Trigger()
		if refetch {
			w.refetch.Trigger()
		}

	case domain.TableMarkets:
		if ev.Type == domain.ChangeDelete {
			w.invalidateMarket(ctx)
			return errMarketGone
		}
		m, err := decode.DecodeMarket(ev.New).Unwrap()
		if err != nil {
			return err
		}
		w.market = m
		w.invalidateMarket(ctx)
		w.recompute.Trigger()

	case domain.TablePriceHistory:
		if ev.Type == domain.ChangeDelete {
			return nil
		}
		p, err := decode.DecodePricePoint(ev.New).Unwrap()
		if err != nil {
			return err
		}
		w.applyPoint(ctx, p)

	case domain.TableTrades:
		if ev.Type != domain.ChangeInsert {
			return nil
		}
		t, err := decode.DecodeTrade(ev.New).Unwrap()
		if err != nil {
			return err
		}
		w.applyTrade(ctx, t)
	}
	return nil
}

func (w *MarketWorker) applyPoint(ctx context.Context, p domain.PricePoint) {
	for tf, agg := range w.multi {
		key := domain.SeriesKey{MarketID: w.id, Timeframe: string(tf)}
		if row, ok := agg.Apply(p); ok {
			if err := w.deps.SeriesCache.UpsertRow(ctx, key, row); err != nil {
				w.logger.Warn("cache row failed", slog.String("error", err.Error()))
			}
			publish(ctx, w.deps.Bus, w.logger, Update{
				Kind: UpdateHistory, MarketID: w.id, Timeframe: string(tf), Data: row, At: w.now().UTC(),
			})
		}

		single, ok := w.single[singleKey{tf, p.OutcomeID}]
		if !ok {
			continue
		}
		if row, ok := single.Apply(p); ok {
			key.OutcomeID = p.OutcomeID
			if err := w.deps.SeriesCache.UpsertRow(ctx, key, row); err != nil {
				w.logger.Warn("cache row failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (w *MarketWorker) applyTrade(ctx context.Context, t domain.Trade) {
	book, ok := w.books[t.OutcomeID]
	if !ok {
		return
	}
	snap := book.Apply(orderbook.PrintOf(t))
	w.storeBook(ctx, snap)
	publish(ctx, w.deps.Bus, w.logger, Update{
		Kind: UpdateOrderbook, MarketID: w.id, OutcomeID: t.OutcomeID, Data: snap, At: w.now().UTC(),
	})
}

func (w *MarketWorker) reloadOutcomes(ctx context.Context) error {
	outcomes, err := w.deps.Markets.ListOutcomes(ctx, w.id)
	if err != nil {
		return fmt.Errorf("worker: refetch outcomes %s: %w", w.id, err)
	}
	if len(outcomes) == 0 {
		return nil
	}
	if w.setOutcomes(outcomes) || w.stale {
		w.stale = false
		if err := w.rebuildHistory(ctx); err != nil {
			return err
		}
		if err := w.rebuildBooks(ctx); err != nil {
			return err
		}
	}
	w.publishPricing(ctx)
	return nil
}

// publishPricing recomputes pricing from the full outcome set and pushes
// it to the caches and subscribers.
func (w *MarketWorker) publishPricing(ctx context.Context) {
	ep := pricing.BuildEffectivePricing(w.outcomes)
	snap := domain.PricingSnapshot{
		MarketID:       w.id,
		Type:           pricing.ResolveMarketType(w.market.Type, w.outcomes),
		Outcomes:       ep.Effective,
		NoPrices:       ep.NoPrices(),
		TotalEffective: ep.TotalEffective,
		UpdatedAt:      w.now().UTC(),
	}
	if err := w.deps.PricingCache.SetPricing(ctx, snap); err != nil {
		w.logger.Warn("cache pricing failed", slog.String("error", err.Error()))
	}

	m := w.market
	m.Outcomes = w.outcomes
	if err := w.deps.MarketCache.Set(ctx, m); err != nil {
		w.logger.Warn("cache market failed", slog.String("error", err.Error()))
	}
	publish(ctx, w.deps.Bus, w.logger, Update{Kind: UpdatePricing, MarketID: w.id, Data: snap, At: snap.UpdatedAt})
}

func (w *MarketWorker) invalidateMarket(ctx context.Context) {
	if err := w.deps.MarketCache.Invalidate(ctx, w.id); err != nil {
		w.logger.Warn("invalidate market failed", slog.String("error", err.Error()))
	}
	publish(ctx, w.deps.Bus, w.logger, Update{Kind: UpdateMarket, MarketID: w.id, Data: w.market, At: w.now().UTC()})
}
