package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	s3blob "github.com/alanyoungcy/matchmarket/internal/blob/s3"
	"github.com/alanyoungcy/matchmarket/internal/config"
	"github.com/alanyoungcy/matchmarket/internal/domain"
	"github.com/alanyoungcy/matchmarket/internal/feed"
	"github.com/alanyoungcy/matchmarket/internal/history"
	"github.com/alanyoungcy/matchmarket/internal/pricing"
	"github.com/alanyoungcy/matchmarket/internal/server"
	"github.com/alanyoungcy/matchmarket/internal/server/handler"
	"github.com/alanyoungcy/matchmarket/internal/server/ws"
	"github.com/alanyoungcy/matchmarket/internal/service"
)

// ServeMode runs the market workers, the WebSocket hub and the HTTP API in
// one process.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startWorkers(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// APIMode serves reads only. Caches are filled by worker processes; misses
// are computed from the store.
func (a *App) APIMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting api mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// WorkerMode runs the market workers without an HTTP listener.
func (a *App) WorkerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting worker mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startWorkers(ctx, g, deps)
	return g.Wait()
}

// ExportMode writes every active market's chart series and trade tape to
// object storage under a fresh run id, then returns.
func (a *App) ExportMode(ctx context.Context, deps *Dependencies) error {
	if deps.Blob == nil {
		return fmt.Errorf("export mode: blob storage not configured")
	}
	runID := uuid.NewString()
	logger := a.logger.With(slog.String("run_id", runID))
	logger.InfoContext(ctx, "starting export mode")

	tf, err := history.ParseTimeframe(a.cfg.Export.Timeframe)
	if err != nil {
		return fmt.Errorf("export mode: %w", err)
	}

	markets := a.marketService(deps)
	series := func(ctx context.Context, marketID, timeframe string) ([]domain.HistoryRow, error) {
		v, err := markets.History(ctx, marketID, history.Timeframe(timeframe), "")
		if err != nil {
			return nil, err
		}
		if v.Fallback {
			return nil, nil
		}
		return v.Rows, nil
	}
	archiver := s3blob.NewArchiver(deps.Blob, deps.Service.Trades, series, logger)

	active, err := deps.Service.Markets.ListActiveMarkets(ctx, domain.ListOpts{})
	if err != nil {
		return fmt.Errorf("export mode: list markets: %w", err)
	}

	since := time.Now().UTC().Add(-a.cfg.Export.Lookback.Duration)
	var failed int
	for _, m := range active {
		res, err := archiver.ExportMarket(ctx, runID, m.ID, string(tf), since)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failed++
			logger.WarnContext(ctx, "export market failed",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		logger.InfoContext(ctx, "exported market",
			slog.String("market_id", m.ID),
			slog.Int("series_rows", res.SeriesRows),
			slog.Int64("trades", res.Trades),
		)
	}

	logger.InfoContext(ctx, "export finished",
		slog.Int("markets", len(active)),
		slog.Int("failed", failed),
	)
	if failed > 0 {
		return fmt.Errorf("export mode: %d of %d markets failed", failed, len(active))
	}
	return nil
}

func (a *App) startWorkers(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	sup := service.NewSupervisor(
		deps.Service,
		workerConfig(a.cfg, a.logger),
		a.cfg.Workers.SyncInterval.Duration,
		a.cfg.Workers.MaxWorkers,
	)
	g.Go(func() error {
		return sup.Run(ctx)
	})

	if deps.Relay != nil {
		g.Go(func() error {
			return feed.Relay(ctx, deps.Service.Feed, deps.Relay, a.logger)
		})
	}
}

func (a *App) marketService(deps *Dependencies) *service.MarketService {
	return service.NewMarketService(deps.Service, pricingRules(a.cfg), a.cfg.Orderbook.TradeWindow)
}

func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	hub := ws.NewHub(deps.Service.Bus, a.cfg.Server.CORSOrigins, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	markets := a.marketService(deps)
	defaultTF, err := history.ParseTimeframe(a.cfg.History.DefaultTimeframe)
	if err != nil {
		defaultTF = history.Timeframe1D
	}
	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(deps.checks, a.logger),
		Markets:   handler.NewMarketHandler(markets, defaultTF, a.logger),
		Odds:      handler.NewOddsHandler(a.logger),
		Positions: handler.NewPositionHandler(markets, a.logger),
	}
	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)))
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

func pricingRules(cfg *config.Config) pricing.Rules {
	return pricing.Rules{
		MaxBetRatio:       cfg.Pricing.MaxBetRatio,
		NoCooldownRatio:   cfg.Pricing.NoCooldownRatio,
		SlippageTolerance: cfg.Pricing.SlippageTolerance,
		BuyMarkup:         cfg.Pricing.BuyMarkup,
		SellMarkdown:      cfg.Pricing.SellMarkdown,
	}
}

// workerConfig maps the config sections onto service.WorkerConfig. Unknown
// timeframes were rejected by Validate and are skipped here.
func workerConfig(cfg *config.Config, logger *slog.Logger) service.WorkerConfig {
	wc := service.DefaultWorkerConfig()
	if len(cfg.History.Timeframes) > 0 {
		wc.Timeframes = wc.Timeframes[:0:0]
		for _, s := range cfg.History.Timeframes {
			tf, err := history.ParseTimeframe(s)
			if err != nil {
				logger.Warn("skipping timeframe", slog.String("timeframe", s))
				continue
			}
			wc.Timeframes = append(wc.Timeframes, tf)
		}
	}
	wc.BookWindow = cfg.Orderbook.TradeWindow
	wc.Debounce = cfg.Feed.Debounce.Duration
	wc.Regrid = cfg.History.Regrid.Duration
	wc.LockTTL = cfg.Workers.LockTTL.Duration
	return wc
}
