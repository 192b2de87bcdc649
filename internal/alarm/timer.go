package alarm

import (
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultInexactWindow bounds how late an inexact wake may fire.
const DefaultInexactWindow = 10 * time.Minute

// TimerService is the in-process implementation of Service: one time.Timer
// per reminder id, replaced atomically on re-schedule. Exactness is gated by
// a runtime switch standing in for the revocable OS permission.
type TimerService struct {
	exactAllowed atomic.Bool
	window       time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewTimerService creates a TimerService. A non-positive inexactWindow uses
// DefaultInexactWindow.
func NewTimerService(exactAllowed bool, inexactWindow time.Duration) *TimerService {
	if inexactWindow <= 0 {
		inexactWindow = DefaultInexactWindow
	}
	s := &TimerService{
		window: inexactWindow,
		timers: make(map[string]*time.Timer),
	}
	s.exactAllowed.Store(exactAllowed)
	return s
}

// SetExactAllowed flips the exact-scheduling switch at runtime.
func (s *TimerService) SetExactAllowed(v bool) {
	s.exactAllowed.Store(v)
}

func (s *TimerService) CanScheduleExact() bool {
	return s.exactAllowed.Load()
}

func (s *TimerService) ScheduleExact(id string, at time.Time, fire func(id string)) error {
	s.arm(id, time.Until(at), fire)
	return nil
}

// ScheduleInexact arms a wake somewhere in [at, at+window], mirroring the
// batching slack OS-level inexact alarms have.
func (s *TimerService) ScheduleInexact(id string, at time.Time, fire func(id string)) error {
	slack := rand.N(s.window)
	s.arm(id, time.Until(at)+slack, fire)
	return nil
}

func (s *TimerService) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
}

// Stop cancels every outstanding timer. Used at daemon shutdown.
func (s *TimerService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

// Pending returns the number of armed timers. Exposed for status reporting.
func (s *TimerService) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *TimerService) arm(id string, d time.Duration, fire func(id string)) {
	if d < 0 {
		d = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.timers[id]; ok {
		// Stop may return false when the old timer is already expiring; its
		// callback loses the slot check in expire and delivers nothing.
		old.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		s.expire(id, t, fire)
	})
	s.timers[id] = t
}

// expire delivers a fired timer. Only the timer currently holding the id's
// slot may deliver: a callback whose handle was replaced by a re-schedule, or
// removed by Cancel or Stop, is stale and dropped.
func (s *TimerService) expire(id string, t *time.Timer, fire func(id string)) {
	s.mu.Lock()
	if current, ok := s.timers[id]; !ok || current != t {
		s.mu.Unlock()
		return
	}
	delete(s.timers, id)
	s.mu.Unlock()
	fire(id)
}
