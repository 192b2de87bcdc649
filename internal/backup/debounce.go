package backup

import (
	"sync"
	"time"
)

// DefaultDebounceDelay is how long a burst of mutations settles before a
// single auto-backup runs.
const DefaultDebounceDelay = 5 * time.Second

// Debouncer coalesces bursts of Request calls into one delayed run: each call
// atomically cancels any scheduled-but-not-yet-run task and schedules a new
// one, so only the last call in a burst results in a write.
type Debouncer struct {
	delay time.Duration
	run   func()

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// NewDebouncer creates a Debouncer invoking run after delay. A non-positive
// delay uses DefaultDebounceDelay.
func NewDebouncer(delay time.Duration, run func()) *Debouncer {
	if delay <= 0 {
		delay = DefaultDebounceDelay
	}
	return &Debouncer{delay: delay, run: run}
}

// Request schedules (or re-schedules) the run. Last-scheduled-wins: a timer
// that races this call and loses is stopped before it can fire.
func (d *Debouncer) Request() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		// Stop may return false when the timer is already expiring; the
		// losing callback is dropped by the handle check in expire.
		d.timer.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(d.delay, func() {
		d.expire(t)
	})
	d.timer = t
}

// expire runs the scheduled task. Only the currently scheduled timer may run
// it: a callback that lost a re-schedule race, or whose task was already taken
// by Flush or Stop, is stale and does nothing.
func (d *Debouncer) expire(t *time.Timer) {
	d.mu.Lock()
	if d.stopped || d.timer != t {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.mu.Unlock()
	d.run()
}

// Flush runs any pending task immediately. Used at shutdown so a coalesced
// backup is not lost.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	pending := d.timer != nil
	if pending {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()
	if pending {
		d.run()
	}
}

// Stop cancels any pending task and refuses further requests.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
