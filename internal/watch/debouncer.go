package watch

import (
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Debouncer coalesces rapid events per path into a single callback
// invocation. Each path has its own quiet period, so a burst on one file
// never delays another.
type Debouncer struct {
	interval time.Duration
	clock    clock.Clock
	callback func(path string)

	mu      sync.Mutex
	timers  map[string]*clock.Timer
	stopped bool
}

// NewDebouncer creates a debouncer that waits for interval of quiet on a
// path before firing callback with it. A non-positive interval fires
// synchronously.
func NewDebouncer(interval time.Duration, clk clock.Clock, callback func(path string)) *Debouncer {
	if clk == nil {
		clk = clock.New()
	}

	return &Debouncer{
		interval: interval,
		clock:    clk,
		callback: callback,
		timers:   make(map[string]*clock.Timer),
	}
}

// Trigger records an event for path, restarting its quiet period.
func (d *Debouncer) Trigger(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if d.interval <= 0 {
		d.mu.Unlock()
		d.fire(path)
		d.mu.Lock()

		return
	}

	if t, ok := d.timers[path]; ok {
		t.Stop()
	}

	var t *clock.Timer

	t = d.clock.AfterFunc(d.interval, func() {
		d.mu.Lock()
		if d.stopped || d.timers[path] != t {
			// Stopped, or superseded by a later trigger.
			d.mu.Unlock()
			return
		}

		delete(d.timers, path)
		d.mu.Unlock()

		d.fire(path)
	})
	d.timers[path] = t
}

// pending returns the number of paths waiting for their quiet period.
func (d *Debouncer) pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.timers)
}

// Stop cancels every pending callback. Later triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true

	for path, t := range d.timers {
		t.Stop()
		delete(d.timers, path)
	}
}

func (d *Debouncer) fire(path string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("debouncer callback panicked", slog.String("path", path), slog.Any("error", r))
		}
	}()

	d.callback(path)
}
