package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/matchmarket/internal/domain"
)

// DefaultBusChannel is the pub/sub channel change events are relayed on.
const DefaultBusChannel = "changes"

// BusFeed reads change events relayed over a SignalBus. It lets API and
// worker processes share one upstream LISTEN connection.
type BusFeed struct {
	bus      domain.SignalBus
	channel  string
	backoff  Backoff
	throttle *Throttle
	logger   *slog.Logger
	fan      *fanout

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewBusFeed creates a feed reading channel on bus.
func NewBusFeed(bus domain.SignalBus, channel string, logger *slog.Logger) *BusFeed {
	if channel == "" {
		channel = DefaultBusChannel
	}
	logger = logger.With(slog.String("component", "bus_feed"))
	return &BusFeed{
		bus:      bus,
		channel:  channel,
		backoff:  DefaultBackoff(),
		throttle: NewThrottle(time.Second),
		logger:   logger,
		fan:      newFanout(logger),
	}
}

// Open subscribes to the bus channel and starts delivering events.
func (f *BusFeed) Open(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(context.Background())
	msgs, err := f.subscribe(ctx, runCtx)
	if err != nil {
		cancel()
		return err
	}
	f.cancel = cancel
	f.done = make(chan struct{})
	go f.run(runCtx, msgs)
	return nil
}

// subscribe retries under retryCtx but binds the subscription to runCtx so
// it outlives the Open call.
func (f *BusFeed) subscribe(retryCtx, runCtx context.Context) (<-chan []byte, error) {
	var msgs <-chan []byte
	err := f.backoff.Retry(retryCtx, f.logger, "subscribe "+f.channel, func(context.Context) error {
		ch, err := f.bus.Subscribe(runCtx, f.channel)
		if err != nil {
			return err
		}
		msgs = ch
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("feed: subscribe: %w", err)
	}
	return msgs, nil
}

func (f *BusFeed) run(ctx context.Context, msgs <-chan []byte) {
	defer close(f.done)
	defer f.fan.close()

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgs:
			if ok {
				ev, err := ParseEvent(data)
				if err != nil {
					f.logger.Debug("bad bus message", slog.String("error", err.Error()))
					continue
				}
				f.fan.dispatch(ev)
				continue
			}
			if ctx.Err() != nil {
				return
			}
			// The bus dropped the subscription. Resubscribe at most once a
			// second so a flapping connection cannot spin.
			for !f.throttle.Allow() {
				select {
				case <-ctx.Done():
					return
				case <-time.After(100 * time.Millisecond):
				}
			}
			f.logger.Warn("bus subscription closed, resubscribing")
			var err error
			if msgs, err = f.subscribe(ctx, ctx); err != nil {
				f.logger.Error("change feed lost", slog.String("error", err.Error()))
				return
			}
		}
	}
}

// Subscribe returns events matching sub.
func (f *BusFeed) Subscribe(ctx context.Context, sub domain.Subscription) (<-chan domain.ChangeEvent, error) {
	return f.fan.add(ctx, sub)
}

// Publish relays ev to every BusFeed reading the same channel.
func (f *BusFeed) Publish(ctx context.Context, ev domain.ChangeEvent) error {
	data, err := EncodeEvent(ev)
	if err != nil {
		return err
	}
	return f.bus.Publish(ctx, f.channel, data)
}

// Close unsubscribes and ends every subscription.
func (f *BusFeed) Close() error {
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

var _ domain.ChangeFeed = (*BusFeed)(nil)

// Relay forwards every event from src to dst until ctx is done or src closes.
// A process holding the Postgres LISTEN connection uses it to fan changes out
// to processes running with a bus feed.
func Relay(ctx context.Context, src domain.ChangeFeed, dst *BusFeed, logger *slog.Logger) error {
	events, err := src.Subscribe(ctx, domain.Subscription{})
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return domain.ErrFeedClosed
			}
			if err := dst.Publish(ctx, ev); err != nil {
				logger.Warn("relay publish failed",
					slog.String("table", ev.Table),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
