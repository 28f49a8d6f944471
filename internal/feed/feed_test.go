package feed

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/matchmarket/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func recv(t *testing.T, ch <-chan domain.ChangeEvent) domain.ChangeEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return domain.ChangeEvent{}
}

func TestMemoryFeedFiltersBySubscription(t *testing.T) {
	f := NewMemoryFeed(testLogger())
	ctx := context.Background()
	if err := f.Open(ctx); err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	m1, _ := f.Subscribe(ctx, domain.Subscription{MarketID: "m1"})
	trades, _ := f.Subscribe(ctx, domain.Subscription{Table: domain.TableTrades})

	f.Publish(domain.ChangeEvent{Table: domain.TableOutcomes, Type: domain.ChangeUpdate, MarketID: "m2"})
	f.Publish(domain.ChangeEvent{Table: domain.TableTrades, Type: domain.ChangeInsert, MarketID: "m1"})

	if ev := recv(t, m1); ev.Table != domain.TableTrades {
		t.Errorf("m1 got %+v", ev)
	}
	if ev := recv(t, trades); ev.MarketID != "m1" || ev.ReceivedAt.IsZero() {
		t.Errorf("trades got %+v", ev)
	}
	select {
	case ev := <-m1:
		t.Errorf("unexpected extra event %+v", ev)
	default:
	}
}

func TestMemoryFeedCloseEndsSubscriptions(t *testing.T) {
	f := NewMemoryFeed(testLogger())
	ch, err := f.Subscribe(context.Background(), domain.Subscription{})
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	if _, ok := <-ch; ok {
		t.Error("channel still open after Close")
	}
	if _, err := f.Subscribe(context.Background(), domain.Subscription{}); !errors.Is(err, domain.ErrFeedClosed) {
		t.Errorf("subscribe after close: %v", err)
	}
}

func TestCloseReleasesSubscriptionWatchers(t *testing.T) {
	f := NewMemoryFeed(testLogger())
	before := runtime.NumGoroutine()

	chans := make([]<-chan domain.ChangeEvent, 0, 50)
	for i := 0; i < 50; i++ {
		ch, err := f.Subscribe(context.Background(), domain.Subscription{})
		if err != nil {
			t.Fatal(err)
		}
		chans = append(chans, ch)
	}
	if n := runtime.NumGoroutine(); n < before+50 {
		t.Fatalf("goroutines = %d, want at least %d", n, before+50)
	}

	f.Close()
	for _, ch := range chans {
		if _, ok := <-ch; ok {
			t.Fatal("channel still open after Close")
		}
	}
	deadline := time.Now().Add(2 * time.Second)
	for runtime.NumGoroutine() > before+5 {
		if time.Now().After(deadline) {
			t.Fatalf("goroutines = %d after Close, started with %d", runtime.NumGoroutine(), before)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	f := NewMemoryFeed(testLogger())
	defer f.Close()
	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := f.Subscribe(ctx, domain.Subscription{})
	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("unexpected event")
		}
	case <-time.After(time.Second):
		t.Error("channel not closed after cancel")
	}
}

func TestParseEvent(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"table":"outcomes","type":"update","market_id":"m1","record":{"id":"a","pool":5}}`))
	if err != nil {
		t.Fatal(err)
	}
	if ev.Type != domain.ChangeUpdate || ev.MarketID != "m1" {
		t.Errorf("got %+v", ev)
	}
	var rec map[string]any
	if err := json.Unmarshal(ev.New, &rec); err != nil || rec["id"] != "a" {
		t.Errorf("record = %s", ev.New)
	}

	for _, bad := range []string{
		`not json`,
		`{"table":"outcomes","type":"TRUNCATE"}`,
		`{"table":"users","type":"INSERT"}`,
	} {
		if _, err := ParseEvent([]byte(bad)); err == nil {
			t.Errorf("%s: expected error", bad)
		}
	}
}

func TestBackoffDelays(t *testing.T) {
	b := DefaultBackoff()
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	for i, w := range want {
		if got := b.Delay(i + 1); got != w {
			t.Errorf("Delay(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	b := Backoff{Base: time.Millisecond, MaxAttempts: 3}
	calls := 0
	boom := errors.New("boom")
	err := b.Retry(context.Background(), testLogger(), "op", func(context.Context) error {
		calls++
		return boom
	})
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}

	calls = 0
	err = b.Retry(context.Background(), testLogger(), "op", func(context.Context) error {
		calls++
		if calls < 2 {
			return boom
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Errorf("err=%v calls=%d", err, calls)
	}
}

func TestThrottle(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	th := NewThrottle(time.Second)
	th.now = func() time.Time { return now }

	if !th.Allow() {
		t.Fatal("first call refused")
	}
	now = now.Add(500 * time.Millisecond)
	if th.Allow() {
		t.Error("second call within interval allowed")
	}
	now = now.Add(600 * time.Millisecond)
	if !th.Allow() {
		t.Error("call after interval refused")
	}
}

func TestDebouncerCoalescesBurst(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()
	for i := 0; i < 5; i++ {
		d.Trigger()
		time.Sleep(5 * time.Millisecond)
	}
	select {
	case <-d.C():
	case <-time.After(time.Second):
		t.Fatal("no signal after burst")
	}
	select {
	case <-d.C():
		t.Error("burst produced more than one signal")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDebouncerStopCancelsPending(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	d.Trigger()
	d.Stop()
	select {
	case <-d.C():
		t.Error("signal after Stop")
	case <-time.After(80 * time.Millisecond):
	}
}

// fakeBus is an in-memory SignalBus.
type fakeBus struct {
	mu   sync.Mutex
	subs map[string][]chan []byte
}

func newFakeBus() *fakeBus { return &fakeBus{subs: make(map[string][]chan []byte)} }

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[channel] {
		ch <- payload
	}
	return nil
}

func (b *fakeBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 16)
	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], ch)
	b.mu.Unlock()
	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[channel]
		for i, c := range subs {
			if c == ch {
				b.subs[channel] = append(subs[:i], subs[i+1:]...)
				close(ch)
				return
			}
		}
	}()
	return ch, nil
}

func (b *fakeBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *fakeBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func TestBusFeedRelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newFakeBus()
	reader := NewBusFeed(bus, "", testLogger())
	if err := reader.Open(ctx); err != nil {
		t.Fatal(err)
	}
	defer reader.Close()
	events, err := reader.Subscribe(ctx, domain.Subscription{MarketID: "m1"})
	if err != nil {
		t.Fatal(err)
	}

	src := NewMemoryFeed(testLogger())
	defer src.Close()
	writer := NewBusFeed(bus, "", testLogger())
	go Relay(ctx, src, writer, testLogger())

	// Give the relay a moment to subscribe to the source.
	deadline := time.Now().Add(time.Second)
	for {
		src.Publish(domain.ChangeEvent{Table: domain.TableTrades, Type: domain.ChangeInsert, MarketID: "m1"})
		select {
		case ev := <-events:
			if ev.Table != domain.TableTrades || ev.Type != domain.ChangeInsert {
				t.Errorf("got %+v", ev)
			}
			return
		case <-time.After(20 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			t.Fatal("relayed event never arrived")
		}
	}
}
