package feed

import (
	"sync"
	"time"
)

// DefaultDebounce is how long a burst of changes is coalesced before the
// market is recomputed.
const DefaultDebounce = 400 * time.Millisecond

// Debouncer coalesces bursts of Trigger calls into a single signal on C,
// delivered once no Trigger has happened for the delay. The signal is sent
// on a channel rather than as a callback so the receiving goroutine keeps
// exclusive ownership of its state.
type Debouncer struct {
	delay time.Duration
	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
	c     chan struct{}
}

// NewDebouncer returns a debouncer with the given quiet period.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay, c: make(chan struct{}, 1)}
}

// C returns the channel that receives one value per settled burst.
func (d *Debouncer) C() <-chan struct{} { return d.c }

// Trigger restarts the quiet period.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	stale := gen != d.gen
	d.mu.Unlock()
	if stale {
		return
	}
	select {
	case d.c <- struct{}{}:
	default:
	}
}

// Stop cancels any pending signal.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
