package feed

import (
	"context"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/matchmarket/internal/domain"
)

// subscriberBuffer is the per-subscription channel capacity. A subscriber
// that falls this far behind loses events; its worker resyncs from the store
// on the next debounced refetch.
const subscriberBuffer = 256

type subscriber struct {
	sub domain.Subscription
	ch  chan domain.ChangeEvent
}

// fanout delivers events to every matching subscription. It is shared by all
// ChangeFeed implementations.
type fanout struct {
	mu     sync.Mutex
	subs   map[int]*subscriber
	next   int
	closed bool
	done   chan struct{}
	logger *slog.Logger
}

func newFanout(logger *slog.Logger) *fanout {
	return &fanout{subs: make(map[int]*subscriber), done: make(chan struct{}), logger: logger}
}

// add registers a subscription that lives until ctx is done or the fanout
// is closed.
func (f *fanout) add(ctx context.Context, sub domain.Subscription) (<-chan domain.ChangeEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, domain.ErrFeedClosed
	}
	id := f.next
	f.next++
	s := &subscriber{sub: sub, ch: make(chan domain.ChangeEvent, subscriberBuffer)}
	f.subs[id] = s

	go func() {
		select {
		case <-ctx.Done():
			f.remove(id)
		case <-f.done:
		}
	}()
	return s.ch, nil
}

func (f *fanout) remove(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.subs[id]; ok {
		delete(f.subs, id)
		close(s.ch)
	}
}

func (f *fanout) dispatch(ev domain.ChangeEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subs {
		if !s.sub.Matches(ev) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			f.logger.Warn("subscriber lagging, event dropped",
				slog.String("table", ev.Table),
				slog.String("market_id", ev.MarketID),
			)
		}
	}
}

func (f *fanout) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	close(f.done)
	for id, s := range f.subs {
		delete(f.subs, id)
		close(s.ch)
	}
}
