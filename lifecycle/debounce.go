package lifecycle

import (
	"sync"
	"time"
)

// debouncer collapses bursts of notifications into one flush: the window
// restarts on every notification, and max notifications flush immediately.
type debouncer struct {
	clock  Clock
	window time.Duration
	max    int
	flush  func(n int)

	mu    sync.Mutex
	count int
	timer Timer
	gen   int
}

func newDebouncer(clock Clock, window time.Duration, max int, flush func(n int)) *debouncer {
	if window <= 0 {
		window = 500 * time.Millisecond
	}
	if max <= 0 {
		max = 50
	}
	return &debouncer{clock: clock, window: window, max: max, flush: flush}
}

// add records one notification. It reports whether it triggered an
// immediate flush.
func (d *debouncer) add() bool {
	d.mu.Lock()
	d.count++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	if d.count >= d.max {
		n := d.count
		d.count = 0
		d.mu.Unlock()
		d.flush(n)
		return true
	}
	gen := d.gen
	d.timer = d.clock.AfterFunc(d.window, func() { d.expire(gen) })
	d.mu.Unlock()
	return false
}

func (d *debouncer) expire(gen int) {
	d.mu.Lock()
	if gen != d.gen || d.count == 0 {
		d.mu.Unlock()
		return
	}
	n := d.count
	d.count = 0
	d.timer = nil
	d.mu.Unlock()
	d.flush(n)
}

// stop drops pending notifications.
func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.count = 0
	d.gen++
}
