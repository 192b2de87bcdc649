package backup

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncer_CoalescesBursts(t *testing.T) {
	var runs atomic.Int32
	d := NewDebouncer(50*time.Millisecond, func() { runs.Add(1) })
	defer d.Stop()

	// A burst of requests results in exactly one run.
	for i := 0; i < 10; i++ {
		d.Request()
	}
	time.Sleep(200 * time.Millisecond)

	if got := runs.Load(); got != 1 {
		t.Errorf("runs = %d, want 1", got)
	}
}

func TestDebouncer_EachRequestResetsDelay(t *testing.T) {
	var runs atomic.Int32
	d := NewDebouncer(80*time.Millisecond, func() { runs.Add(1) })
	defer d.Stop()

	d.Request()
	time.Sleep(40 * time.Millisecond)
	d.Request() // resets the window before the first could fire

	time.Sleep(50 * time.Millisecond)
	if got := runs.Load(); got != 0 {
		t.Errorf("ran %d times before the reset window elapsed", got)
	}

	time.Sleep(100 * time.Millisecond)
	if got := runs.Load(); got != 1 {
		t.Errorf("runs = %d, want 1", got)
	}
}

func TestDebouncer_Flush(t *testing.T) {
	var runs atomic.Int32
	d := NewDebouncer(time.Hour, func() { runs.Add(1) })
	defer d.Stop()

	d.Request()
	d.Flush()
	if got := runs.Load(); got != 1 {
		t.Errorf("runs after flush = %d, want 1", got)
	}

	// Flush with nothing pending is a no-op.
	d.Flush()
	if got := runs.Load(); got != 1 {
		t.Errorf("runs after idle flush = %d, want 1", got)
	}
}

func TestDebouncer_StaleExpiryDoesNotClobberReschedule(t *testing.T) {
	var runs atomic.Int32
	d := NewDebouncer(time.Hour, func() { runs.Add(1) })
	defer d.Stop()

	// Two requests; the first timer's callback runs after losing the
	// re-schedule race and must neither run the task nor drop the
	// replacement's handle.
	d.Request()
	d.mu.Lock()
	old := d.timer
	d.mu.Unlock()

	d.Request()
	d.mu.Lock()
	replacement := d.timer
	d.mu.Unlock()

	d.expire(old)
	if got := runs.Load(); got != 0 {
		t.Errorf("stale expiry ran the task %d times", got)
	}
	d.mu.Lock()
	current := d.timer
	d.mu.Unlock()
	if current != replacement {
		t.Error("stale expiry dropped the scheduled timer's handle")
	}

	// Flush takes the task; the replacement's own late callback is then stale.
	d.Flush()
	d.expire(replacement)
	if got := runs.Load(); got != 1 {
		t.Errorf("runs = %d, want exactly 1 (flush only)", got)
	}
}

func TestDebouncer_StopCancelsPending(t *testing.T) {
	var runs atomic.Int32
	d := NewDebouncer(30*time.Millisecond, func() { runs.Add(1) })

	d.Request()
	d.Stop()
	d.Request() // ignored after Stop

	time.Sleep(100 * time.Millisecond)
	if got := runs.Load(); got != 0 {
		t.Errorf("runs = %d, want 0 after Stop", got)
	}
}
