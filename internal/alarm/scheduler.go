package alarm

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kalambet/remindd/internal/storage"
)

// Service is the exact-alarm facility the scheduler drives (spec'd by the OS
// on mobile platforms; an in-process timer service here). Exact scheduling may
// be refused by policy at any time, which is why CanScheduleExact is consulted
// on every call rather than cached.
type Service interface {
	CanScheduleExact() bool
	ScheduleExact(id string, at time.Time, fire func(id string)) error
	ScheduleInexact(id string, at time.Time, fire func(id string)) error
	Cancel(id string)
}

// Outcome reports what a Schedule call did.
type Outcome int

const (
	// Skipped means nothing was armed: the reminder is disabled or its
	// effective trigger is not in the future. Not an error.
	Skipped Outcome = iota
	// Scheduled means an exact wake was armed.
	Scheduled
	// Degraded means exact scheduling was unavailable and an inexact wake
	// was armed for the same target instead.
	Degraded
)

func (o Outcome) String() string {
	switch o {
	case Scheduled:
		return "scheduled"
	case Degraded:
		return "degraded"
	default:
		return "skipped"
	}
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Scheduler decides between exact and degraded scheduling and keeps exactly
// one outstanding request slot per reminder id.
type Scheduler struct {
	svc    Service
	clock  Clock
	logger *slog.Logger

	mu       sync.Mutex
	onFire   func(id string)
	degraded bool
}

// NewScheduler creates a Scheduler over the given alarm service.
func NewScheduler(svc Service) *Scheduler {
	return &Scheduler{
		svc:    svc,
		clock:  realClock{},
		logger: slog.Default(),
	}
}

// NewSchedulerWithClock creates a Scheduler with a custom clock (for testing).
func NewSchedulerWithClock(svc Service, clock Clock) *Scheduler {
	return &Scheduler{
		svc:    svc,
		clock:  clock,
		logger: slog.Default(),
	}
}

// SetFireHandler installs the callback invoked when an armed alarm fires.
// Must be called before Schedule; wired late so the lifecycle controller can
// be constructed with the scheduler as a dependency.
func (s *Scheduler) SetFireHandler(fn func(id string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFire = fn
}

// Schedule arms a wake for the reminder's effective trigger time.
// Disabled reminders and stale triggers are skipped rather than armed: a
// stale schedule must never reach the service. Re-scheduling an id replaces
// its slot.
func (s *Scheduler) Schedule(r storage.Reminder) (Outcome, error) {
	if !r.Enabled {
		return Skipped, nil
	}
	target := r.EffectiveTrigger()
	if !target.After(s.clock.Now()) {
		return Skipped, nil
	}

	s.mu.Lock()
	fire := s.onFire
	s.mu.Unlock()
	if fire == nil {
		return Skipped, fmt.Errorf("scheduler has no fire handler")
	}

	if s.svc.CanScheduleExact() {
		if err := s.svc.ScheduleExact(r.ID, target, fire); err != nil {
			return Skipped, fmt.Errorf("scheduling exact alarm for %s: %w", r.ID, err)
		}
		s.setDegraded(false)
		return Scheduled, nil
	}

	// Permission/policy condition, not a programming error: fall back to an
	// inexact wake at the same target and record the degradation.
	if err := s.svc.ScheduleInexact(r.ID, target, fire); err != nil {
		return Skipped, fmt.Errorf("scheduling inexact alarm for %s: %w", r.ID, err)
	}
	s.setDegraded(true)
	s.logger.Warn("exact alarms unavailable, scheduled inexact wake", "id", r.ID, "at", target)
	return Degraded, nil
}

// Cancel drops the reminder's slot. Idempotent: canceling an id with no
// outstanding schedule is a no-op.
func (s *Scheduler) Cancel(id string) {
	s.svc.Cancel(id)
}

// Degraded reports whether the most recent scheduling fell back to an
// inexact wake. Observability only; never surfaced as an error.
func (s *Scheduler) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

func (s *Scheduler) setDegraded(v bool) {
	s.mu.Lock()
	s.degraded = v
	s.mu.Unlock()
}
