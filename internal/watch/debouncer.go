package watch

import (
	"log/slog"
	"sync"
	"time"
)

// Debouncer collapses a burst of file events into a single callback. Every
// Trigger restarts the quiet-period timer; when it expires the callback
// receives the most recently triggered path.
type Debouncer struct {
	quiet time.Duration
	fire  func(path string)

	mu      sync.Mutex
	pending *time.Timer
	last    string
}

// NewDebouncer creates a Debouncer that fires after quiet elapses with no
// further triggers.
func NewDebouncer(quiet time.Duration, fire func(path string)) *Debouncer {
	return &Debouncer{quiet: quiet, fire: fire}
}

// Trigger notes an event for path and restarts the quiet-period timer.
func (d *Debouncer) Trigger(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.last = path

	if d.pending != nil {
		d.pending.Stop()
	}

	d.pending = time.AfterFunc(d.quiet, d.expire)
}

// expire runs on the timer goroutine once the quiet period has passed.
func (d *Debouncer) expire() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("debounced callback panicked", slog.Any("error", r))
		}
	}()

	d.mu.Lock()
	path := d.last
	d.mu.Unlock()

	d.fire(path)
}

// Stop discards any pending callback.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending != nil {
		d.pending.Stop()
		d.pending = nil
	}
}
