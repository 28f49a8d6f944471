package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/matchmarket/internal/domain"
)

// Supervisor runs one MarketWorker per active market. Across processes the
// lock "market:{id}" keeps a single owner per market.
type Supervisor struct {
	deps       Deps
	cfg        WorkerConfig
	interval   time.Duration
	maxWorkers int
	logger     *slog.Logger

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// NewSupervisor creates a supervisor that re-lists active markets every
// interval and runs at most maxWorkers workers.
func NewSupervisor(deps Deps, cfg WorkerConfig, interval time.Duration, maxWorkers int) *Supervisor {
	return &Supervisor{
		deps:       deps,
		cfg:        cfg,
		interval:   interval,
		maxWorkers: maxWorkers,
		logger:     deps.Logger.With(slog.String("component", "supervisor")),
		running:    make(map[string]context.CancelFunc),
	}
}

// Run blocks until ctx is done, then stops every worker and waits for them.
func (s *Supervisor) Run(ctx context.Context) error {
	var g errgroup.Group
	if s.maxWorkers > 0 {
		g.SetLimit(s.maxWorkers)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sync(ctx, &g)
	for {
		select {
		case <-ctx.Done():
			s.stopAll()
			_ = g.Wait()
			return ctx.Err()
		case <-ticker.C:
			s.sync(ctx, &g)
		}
	}
}

// Running returns the ids of markets with a live worker.
func (s *Supervisor) Running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.running))
	for id := range s.running {
		ids = append(ids, id)
	}
	return ids
}

func (s *Supervisor) sync(ctx context.Context, g *errgroup.Group) {
	markets, err := s.deps.Markets.ListActiveMarkets(ctx, domain.ListOpts{Limit: s.maxWorkers})
	if err != nil {
		s.logger.Warn("list active markets failed", slog.String("error", err.Error()))
		return
	}

	active := make(map[string]bool, len(markets))
	for _, m := range markets {
		active[m.ID] = true
	}

	s.mu.Lock()
	for id, cancel := range s.running {
		if !active[id] {
			s.logger.Info("market inactive, stopping worker", slog.String("market_id", id))
			cancel()
		}
	}
	s.mu.Unlock()

	for _, m := range markets {
		if s.isRunning(m.ID) {
			continue
		}
		s.start(ctx, g, m.ID)
	}
}

func (s *Supervisor) isRunning(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[id]
	return ok
}

func (s *Supervisor) start(ctx context.Context, g *errgroup.Group, id string) {
	var lease domain.Lease
	if s.deps.Locks != nil {
		l, err := s.deps.Locks.Acquire(ctx, MarketChannel(id), s.cfg.LockTTL)
		if err != nil {
			if !errors.Is(err, domain.ErrLockHeld) {
				s.logger.Warn("acquire market lock failed", slog.String("market_id", id), slog.String("error", err.Error()))
			}
			return
		}
		lease = l
	}

	wctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.running[id] = cancel
	s.mu.Unlock()

	started := g.TryGo(func() error {
		defer s.forget(id)
		defer cancel()
		if lease != nil {
			defer lease.Release()
			go s.keepLease(wctx, cancel, lease, id)
		}
		err := NewMarketWorker(id, s.deps, s.cfg).Run(wctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("worker exited", slog.String("market_id", id), slog.String("error", err.Error()))
		}
		return nil
	})
	if !started {
		s.logger.Warn("worker limit reached", slog.String("market_id", id), slog.Int("max_workers", s.maxWorkers))
		cancel()
		s.forget(id)
		if lease != nil {
			lease.Release()
		}
	}
}

// keepLease refreshes the market lock until ctx ends. Losing the lock stops
// the worker so two processes never own one market.
func (s *Supervisor) keepLease(ctx context.Context, cancel context.CancelFunc, lease domain.Lease, id string) {
	ticker := time.NewTicker(s.cfg.LockTTL / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := lease.Refresh(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Warn("market lock lost", slog.String("market_id", id), slog.String("error", err.Error()))
				cancel()
				return
			}
		}
	}
}

func (s *Supervisor) forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, id)
}

func (s *Supervisor) stopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cancel := range s.running {
		cancel()
	}
}
