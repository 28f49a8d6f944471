package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/matchmarket/internal/domain"
)

// MemoryFeed is an in-process ChangeFeed. Events are injected with Publish.
// It backs tests and single-binary deployments where the writer lives in the
// same process.
type MemoryFeed struct {
	fan *fanout
}

// NewMemoryFeed creates an unopened in-process feed.
func NewMemoryFeed(logger *slog.Logger) *MemoryFeed {
	return &MemoryFeed{fan: newFanout(logger.With(slog.String("component", "memory_feed")))}
}

// Open is a no-op; the feed is usable as soon as it is created.
func (f *MemoryFeed) Open(ctx context.Context) error { return nil }

// Subscribe returns events matching sub until ctx is done or the feed closes.
func (f *MemoryFeed) Subscribe(ctx context.Context, sub domain.Subscription) (<-chan domain.ChangeEvent, error) {
	return f.fan.add(ctx, sub)
}

// Publish delivers ev to every matching subscriber.
func (f *MemoryFeed) Publish(ev domain.ChangeEvent) {
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now().UTC()
	}
	f.fan.dispatch(ev)
}

// Close ends every subscription.
func (f *MemoryFeed) Close() error {
	f.fan.close()
	return nil
}

var _ domain.ChangeFeed = (*MemoryFeed)(nil)
