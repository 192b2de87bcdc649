package lifecycle

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kalambet/remindd/internal/alarm"
	"github.com/kalambet/remindd/internal/notify"
	"github.com/kalambet/remindd/internal/recurrence"
	"github.com/kalambet/remindd/internal/storage"
)

// ErrRecurring is returned when a complete request targets a recurring
// reminder; recurring reminders advance, they don't complete.
var ErrRecurring = errors.New("reminder is recurring")

// ReminderStore is the slice of storage the controller needs.
// Implemented by storage.Store.
type ReminderStore interface {
	GetActive() ([]storage.Reminder, error)
	GetByID(id string) (storage.Reminder, error)
	Insert(r storage.Reminder) (string, error)
	Update(r storage.Reminder) error
	DeleteByID(id string) error
}

// AlarmScheduler arms and disarms wake requests. Implemented by alarm.Scheduler.
type AlarmScheduler interface {
	Schedule(r storage.Reminder) (alarm.Outcome, error)
	Cancel(id string)
}

// Notifier reflects reminder state into user-visible alerts.
// Implemented by notify.Aggregator.
type Notifier interface {
	Show(id string, c notify.Content) error
	Cancel(id string) error
}

// BackupTrigger requests an eventual snapshot write. Implemented by
// backup.Debouncer.
type BackupTrigger interface {
	Request()
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Controller is the sole writer of reminder state transitions. Every mutation
// of a given reminder runs under that reminder's lock, so fire, snooze,
// complete and recovery never interleave on the same record; mutations of
// different reminders proceed concurrently.
type Controller struct {
	store    ReminderStore
	alarms   AlarmScheduler
	notifier Notifier
	backups  BackupTrigger
	clock    Clock
	logger   *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a Controller.
func New(store ReminderStore, alarms AlarmScheduler, notifier Notifier, backups BackupTrigger) *Controller {
	return &Controller{
		store:    store,
		alarms:   alarms,
		notifier: notifier,
		backups:  backups,
		clock:    realClock{},
		logger:   slog.Default(),
		locks:    make(map[string]*sync.Mutex),
	}
}

// NewWithClock creates a Controller with a custom clock (for testing).
func NewWithClock(store ReminderStore, alarms AlarmScheduler, notifier Notifier, backups BackupTrigger, clock Clock) *Controller {
	c := New(store, alarms, notifier, backups)
	c.clock = clock
	return c
}

func (c *Controller) lockFor(id string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[id]
	if !ok {
		l = &sync.Mutex{}
		c.locks[id] = l
	}
	return l
}

// Create validates and stores a new reminder, arms its alarm and requests a
// backup. The reminder's original time is anchored here, once.
func (c *Controller) Create(title, notes string, at time.Time, rule recurrence.Rule) (storage.Reminder, error) {
	if err := rule.Validate(); err != nil {
		return storage.Reminder{}, err
	}
	if title == "" {
		return storage.Reminder{}, fmt.Errorf("reminder title is required")
	}

	now := c.clock.Now()
	r := storage.Reminder{
		Title:       title,
		Notes:       notes,
		NextTrigger: at,
		Original:    at,
		Rule:        rule,
		Enabled:     true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	id, err := c.store.Insert(r)
	if err != nil {
		return storage.Reminder{}, fmt.Errorf("inserting reminder: %w", err)
	}
	r.ID = id

	if _, err := c.alarms.Schedule(r); err != nil {
		c.logger.Error("arming new reminder failed", "id", id, "error", err)
	}
	c.backups.Request()
	return r, nil
}

// EditRequest carries the user-editable fields of a reminder.
type EditRequest struct {
	Title   string
	Notes   string
	At      time.Time
	Rule    recurrence.Rule
	Enabled bool
}

// Edit applies the request. The anchor is copied forward unless the chosen
// date/time actually changed, in which case it resets to the new value and
// any snooze is cleared.
func (c *Controller) Edit(id string, req EditRequest) (storage.Reminder, error) {
	if err := req.Rule.Validate(); err != nil {
		return storage.Reminder{}, err
	}

	l := c.lockFor(id)
	l.Lock()
	defer l.Unlock()

	r, err := c.store.GetByID(id)
	if err != nil {
		return storage.Reminder{}, err
	}

	if !req.At.Equal(r.NextTrigger) {
		r.Original = req.At
		r.NextTrigger = req.At
		r.Snoozed = false
		r.SnoozeUntil = time.Time{}
	}
	r.Title = req.Title
	r.Notes = req.Notes
	r.Rule = req.Rule
	r.Enabled = req.Enabled
	if r.Enabled {
		r.CompletedAt = time.Time{}
	}
	r.UpdatedAt = c.clock.Now()

	if err := c.store.Update(r); err != nil {
		return storage.Reminder{}, fmt.Errorf("updating reminder %s: %w", id, err)
	}

	c.alarms.Cancel(id)
	if _, err := c.alarms.Schedule(r); err != nil {
		c.logger.Error("re-arming edited reminder failed", "id", id, "error", err)
	}
	c.backups.Request()
	return r, nil
}

// Delete removes the reminder, its alarm slot and any visible notification.
func (c *Controller) Delete(id string) error {
	l := c.lockFor(id)
	l.Lock()
	defer l.Unlock()

	if err := c.store.DeleteByID(id); err != nil {
		return err
	}
	c.alarms.Cancel(id)
	if err := c.notifier.Cancel(id); err != nil {
		c.logger.Error("clearing notification for deleted reminder", "id", id, "error", err)
	}
	c.backups.Request()
	return nil
}

// HandleFire is the alarm callback. A missing reminder is a no-op: it was
// deleted after the alarm was armed.
func (c *Controller) HandleFire(id string) error {
	l := c.lockFor(id)
	l.Lock()
	defer l.Unlock()

	r, err := c.store.GetByID(id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading fired reminder %s: %w", id, err)
	}
	return c.fire(r)
}

// fire runs the firing transition: surface the notification, then advance,
// snooze-clear or complete, then request a backup. Shared verbatim between
// the live alarm path and boot recovery so the two always agree.
// Callers hold the reminder's lock.
func (c *Controller) fire(r storage.Reminder) error {
	now := c.clock.Now()

	if err := c.notifier.Show(r.ID, notify.Content{Title: r.Title, Body: r.Notes}); err != nil {
		c.logger.Error("showing notification", "id", r.ID, "error", err)
	}

	switch {
	case r.Snoozed:
		// A snooze-triggered fire never advances recurrence: the advance
		// already happened when the reminder originally fired.
		r.Snoozed = false
		r.SnoozeUntil = time.Time{}

	case r.Rule.IsRecurring():
		after := r.NextTrigger
		if now.After(after) {
			// Missed fire (late alarm or boot recovery): advance from now so a
			// long-overdue reminder lands in the future in one step.
			after = now
		}
		next, ok := recurrence.NextOccurrence(after, r.Original, r.Rule)
		if ok {
			r.NextTrigger = next
		} else {
			// Defensive dead code per the data-model invariants.
			c.logger.Error("recurring reminder produced no next occurrence", "id", r.ID, "rule", r.Rule.String())
		}

	default:
		r.CompletedAt = now
		r.Enabled = false
	}

	r.UpdatedAt = now
	if err := c.store.Update(r); err != nil {
		return fmt.Errorf("updating fired reminder %s: %w", r.ID, err)
	}

	if r.Enabled {
		if _, err := c.alarms.Schedule(r); err != nil {
			c.logger.Error("re-arming fired reminder failed", "id", r.ID, "error", err)
		}
	}
	c.backups.Request()
	return nil
}

// Snooze overrides the effective trigger time, re-enabling the reminder if a
// one-shot had already completed, and clears its visible notification.
func (c *Controller) Snooze(id string, until time.Time) (storage.Reminder, error) {
	if !until.After(c.clock.Now()) {
		return storage.Reminder{}, fmt.Errorf("snooze target %s is not in the future", until.Format("2006-01-02 15:04"))
	}

	l := c.lockFor(id)
	l.Lock()
	defer l.Unlock()

	r, err := c.store.GetByID(id)
	if err != nil {
		return storage.Reminder{}, err
	}

	r.Snoozed = true
	r.SnoozeUntil = until
	r.Enabled = true
	r.CompletedAt = time.Time{}
	r.UpdatedAt = c.clock.Now()

	if err := c.store.Update(r); err != nil {
		return storage.Reminder{}, fmt.Errorf("updating snoozed reminder %s: %w", id, err)
	}

	if _, err := c.alarms.Schedule(r); err != nil {
		c.logger.Error("arming snooze failed", "id", id, "error", err)
	}
	if err := c.notifier.Cancel(id); err != nil {
		c.logger.Error("clearing notification for snoozed reminder", "id", id, "error", err)
	}
	c.backups.Request()
	return r, nil
}

// Complete acknowledges a fired (or about-to-fire) one-shot reminder:
// completed-at set, disabled, alarm and notification cleared. Recurring
// reminders are refused with ErrRecurring.
func (c *Controller) Complete(id string) (storage.Reminder, error) {
	l := c.lockFor(id)
	l.Lock()
	defer l.Unlock()

	r, err := c.store.GetByID(id)
	if err != nil {
		return storage.Reminder{}, err
	}
	if r.Rule.IsRecurring() {
		return storage.Reminder{}, ErrRecurring
	}

	now := c.clock.Now()
	r.CompletedAt = now
	r.Enabled = false
	r.Snoozed = false
	r.SnoozeUntil = time.Time{}
	r.UpdatedAt = now

	if err := c.store.Update(r); err != nil {
		return storage.Reminder{}, fmt.Errorf("updating completed reminder %s: %w", id, err)
	}

	c.alarms.Cancel(id)
	if err := c.notifier.Cancel(id); err != nil {
		c.logger.Error("clearing notification for completed reminder", "id", id, "error", err)
	}
	c.backups.Request()
	return r, nil
}

// Dismiss withdraws the visible notification without touching reminder state.
func (c *Controller) Dismiss(id string) error {
	return c.notifier.Cancel(id)
}
