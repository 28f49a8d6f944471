package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/matchmarket/internal/domain"
)

// DefaultChannel is the NOTIFY channel the notify_change trigger writes to.
const DefaultChannel = "matchmarket_changes"

// PostgresFeed turns LISTEN/NOTIFY payloads from the market data store into
// change events. It holds one dedicated pool connection while open.
type PostgresFeed struct {
	pool    *pgxpool.Pool
	channel string
	backoff Backoff
	logger  *slog.Logger
	fan     *fanout

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPostgresFeed creates a feed listening on channel.
func NewPostgresFeed(pool *pgxpool.Pool, channel string, logger *slog.Logger) *PostgresFeed {
	if channel == "" {
		channel = DefaultChannel
	}
	logger = logger.With(slog.String("component", "postgres_feed"))
	return &PostgresFeed{
		pool:    pool,
		channel: channel,
		backoff: DefaultBackoff(),
		logger:  logger,
		fan:     newFanout(logger),
	}
}

// Open acquires a connection, issues LISTEN and starts delivering events.
func (f *PostgresFeed) Open(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		return nil
	}
	conn, err := f.listen(ctx)
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.done = make(chan struct{})
	go f.run(runCtx, conn)
	f.logger.Info("listening", slog.String("channel", f.channel))
	return nil
}

func (f *PostgresFeed) listen(ctx context.Context) (*pgxpool.Conn, error) {
	var conn *pgxpool.Conn
	err := f.backoff.Retry(ctx, f.logger, "listen "+f.channel, func(ctx context.Context) error {
		c, err := f.pool.Acquire(ctx)
		if err != nil {
			return err
		}
		if _, err := c.Exec(ctx, "LISTEN "+pgx.Identifier{f.channel}.Sanitize()); err != nil {
			c.Release()
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("feed: listen: %w", err)
	}
	return conn, nil
}

func (f *PostgresFeed) run(ctx context.Context, conn *pgxpool.Conn) {
	defer close(f.done)
	defer f.fan.close()
	defer func() {
		if conn != nil {
			conn.Release()
		}
	}()

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			f.logger.Warn("notification wait failed, relistening", slog.String("error", err.Error()))
			conn.Release()
			conn = nil
			if conn, err = f.listen(ctx); err != nil {
				if !errors.Is(err, context.Canceled) {
					f.logger.Error("change feed lost", slog.String("error", err.Error()))
				}
				return
			}
			continue
		}

		ev, err := ParseEvent([]byte(n.Payload))
		if err != nil {
			f.logger.Debug("bad notification", slog.String("error", err.Error()))
			continue
		}
		f.fan.dispatch(ev)
	}
}

// Subscribe returns events matching sub.
func (f *PostgresFeed) Subscribe(ctx context.Context, sub domain.Subscription) (<-chan domain.ChangeEvent, error) {
	return f.fan.add(ctx, sub)
}

// Close stops listening and ends every subscription.
func (f *PostgresFeed) Close() error {
	f.mu.Lock()
	cancel, done := f.cancel, f.done
	f.mu.Unlock()
	if cancel == nil {
		f.fan.close()
		return nil
	}
	cancel()
	<-done
	return nil
}

var _ domain.ChangeFeed = (*PostgresFeed)(nil)
