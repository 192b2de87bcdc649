package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/remindd/internal/alarm"
	"github.com/kalambet/remindd/internal/notify"
	"github.com/kalambet/remindd/internal/recurrence"
	"github.com/kalambet/remindd/internal/storage"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

// mockStore is an in-memory ReminderStore.
type mockStore struct {
	mu        sync.Mutex
	reminders map[string]storage.Reminder
	order     []string
}

func newMockStore() *mockStore {
	return &mockStore{reminders: make(map[string]storage.Reminder)}
}

func (m *mockStore) GetActive() ([]storage.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.Reminder
	for _, id := range m.order {
		if r := m.reminders[id]; r.Enabled {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockStore) GetByID(id string) (storage.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reminders[id]
	if !ok {
		return storage.Reminder{}, storage.ErrNotFound
	}
	return r, nil
}

func (m *mockStore) Insert(r storage.Reminder) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	m.reminders[r.ID] = r
	m.order = append(m.order, r.ID)
	return r.ID, nil
}

func (m *mockStore) Update(r storage.Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reminders[r.ID]; !ok {
		return storage.ErrNotFound
	}
	m.reminders[r.ID] = r
	return nil
}

func (m *mockStore) DeleteByID(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reminders, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *mockStore) snapshot() map[string]storage.Reminder {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]storage.Reminder, len(m.reminders))
	for id, r := range m.reminders {
		out[id] = r
	}
	return out
}

// mockAlarms records schedule and cancel calls.
type mockAlarms struct {
	mu        sync.Mutex
	scheduled map[string]time.Time
	canceled  []string
}

func newMockAlarms() *mockAlarms {
	return &mockAlarms{scheduled: make(map[string]time.Time)}
}

func (m *mockAlarms) Schedule(r storage.Reminder) (alarm.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scheduled[r.ID] = r.EffectiveTrigger()
	return alarm.Scheduled, nil
}

func (m *mockAlarms) Cancel(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.scheduled, id)
	m.canceled = append(m.canceled, id)
}

func (m *mockAlarms) armedAt(id string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.scheduled[id]
	return at, ok
}

// mockNotifier records shown and canceled notifications.
type mockNotifier struct {
	mu       sync.Mutex
	shown    map[string]notify.Content
	canceled map[string]int
}

func newMockNotifier() *mockNotifier {
	return &mockNotifier{shown: make(map[string]notify.Content), canceled: make(map[string]int)}
}

func (m *mockNotifier) Show(id string, c notify.Content) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shown[id] = c
	return nil
}

func (m *mockNotifier) Cancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.shown, id)
	m.canceled[id]++
	return nil
}

type mockBackups struct {
	requests int
}

func (m *mockBackups) Request() { m.requests++ }

func newController(now time.Time) (*Controller, *mockStore, *mockAlarms, *mockNotifier, *mockBackups) {
	store := newMockStore()
	alarms := newMockAlarms()
	notifier := newMockNotifier()
	backups := &mockBackups{}
	c := NewWithClock(store, alarms, notifier, backups, &fakeClock{now: now})
	return c, store, alarms, notifier, backups
}

func TestCreate(t *testing.T) {
	now := time.Date(2024, time.June, 1, 10, 0, 0, 0, time.Local)
	at := time.Date(2024, time.June, 2, 9, 0, 0, 0, time.Local)
	c, store, alarms, _, backups := newController(now)

	r, err := c.Create("dentist", "bring card", at, recurrence.Rule{Kind: recurrence.None})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if r.ID == "" {
		t.Fatal("no id assigned")
	}
	if !r.Original.Equal(at) || !r.NextTrigger.Equal(at) {
		t.Errorf("anchor/trigger = %v/%v, want %v", r.Original, r.NextTrigger, at)
	}
	if !r.Enabled {
		t.Error("new reminder should be enabled")
	}
	got, _ := store.GetByID(r.ID)
	if got.Title != "dentist" {
		t.Errorf("stored title = %q", got.Title)
	}
	if armed, ok := alarms.armedAt(r.ID); !ok || !armed.Equal(at) {
		t.Errorf("alarm armed at %v (%v), want %v", armed, ok, at)
	}
	if backups.requests != 1 {
		t.Errorf("backup requests = %d, want 1", backups.requests)
	}
}

func TestCreate_Invalid(t *testing.T) {
	c, _, _, _, _ := newController(time.Now())

	if _, err := c.Create("", "", time.Now().Add(time.Hour), recurrence.Rule{Kind: recurrence.None}); err == nil {
		t.Error("empty title accepted")
	}
	if _, err := c.Create("x", "", time.Now().Add(time.Hour), recurrence.Rule{Kind: recurrence.Weekly}); err == nil {
		t.Error("weekly rule without days accepted")
	}
}

func TestHandleFire_OneShotCompletes(t *testing.T) {
	trigger := time.Date(2024, time.June, 2, 9, 0, 0, 0, time.Local)
	c, store, alarms, notifier, _ := newController(trigger)

	id, _ := store.Insert(storage.Reminder{
		Title: "dentist", NextTrigger: trigger, Original: trigger, Enabled: true,
	})

	if err := c.HandleFire(id); err != nil {
		t.Fatalf("HandleFire: %v", err)
	}

	got, _ := store.GetByID(id)
	if got.Enabled {
		t.Error("one-shot still enabled after firing")
	}
	if !got.CompletedAt.Equal(trigger) {
		t.Errorf("completed at = %v, want %v", got.CompletedAt, trigger)
	}
	if _, shown := notifier.shown[id]; !shown {
		t.Error("notification was not surfaced")
	}
	if _, armed := alarms.armedAt(id); armed {
		t.Error("completed one-shot must not be re-armed")
	}
}

func TestHandleFire_RecurringAdvances(t *testing.T) {
	anchor := time.Date(2024, time.January, 10, 8, 0, 0, 0, time.Local)
	trigger := time.Date(2024, time.June, 2, 8, 0, 0, 0, time.Local)
	c, store, alarms, notifier, _ := newController(trigger)

	rule := recurrence.Rule{Kind: recurrence.EveryNDays, N: 3}
	id, _ := store.Insert(storage.Reminder{
		Title: "water plants", NextTrigger: trigger, Original: anchor, Rule: rule, Enabled: true,
	})

	if err := c.HandleFire(id); err != nil {
		t.Fatalf("HandleFire: %v", err)
	}

	want, _ := recurrence.NextOccurrence(trigger, anchor, rule)
	got, _ := store.GetByID(id)
	if !got.NextTrigger.Equal(want) {
		t.Errorf("next trigger = %v, want %v", got.NextTrigger, want)
	}
	if !got.Original.Equal(anchor) {
		t.Errorf("anchor moved to %v", got.Original)
	}
	if !got.Enabled {
		t.Error("recurring reminder disabled by firing")
	}
	if armed, ok := alarms.armedAt(id); !ok || !armed.Equal(want) {
		t.Errorf("re-armed at %v (%v), want %v", armed, ok, want)
	}
	if c := notifier.shown[id]; c.Title != "water plants" {
		t.Errorf("notification content = %+v", c)
	}
}

func TestHandleFire_SnoozeFireNeverAdvancesRecurrence(t *testing.T) {
	anchor := time.Date(2024, time.January, 1, 9, 0, 0, 0, time.Local)
	next := time.Date(2024, time.June, 3, 9, 0, 0, 0, time.Local)
	snoozeUntil := time.Date(2024, time.June, 2, 9, 15, 0, 0, time.Local)
	c, store, _, _, _ := newController(snoozeUntil)

	id, _ := store.Insert(storage.Reminder{
		Title: "standup", NextTrigger: next, Original: anchor,
		Rule:    recurrence.Rule{Kind: recurrence.Daily},
		Enabled: true, Snoozed: true, SnoozeUntil: snoozeUntil,
	})

	if err := c.HandleFire(id); err != nil {
		t.Fatalf("HandleFire: %v", err)
	}

	got, _ := store.GetByID(id)
	if got.Snoozed || !got.SnoozeUntil.IsZero() {
		t.Errorf("snooze not cleared: %+v", got)
	}
	if !got.NextTrigger.Equal(next) {
		t.Errorf("snooze fire advanced recurrence: %v, want %v", got.NextTrigger, next)
	}
}

func TestHandleFire_DeletedReminder(t *testing.T) {
	c, _, _, notifier, backups := newController(time.Now())

	if err := c.HandleFire("gone"); err != nil {
		t.Fatalf("fire for deleted reminder should be a no-op, got %v", err)
	}
	if len(notifier.shown) != 0 {
		t.Error("notification shown for deleted reminder")
	}
	if backups.requests != 0 {
		t.Error("backup requested for deleted reminder")
	}
}

func TestSnooze(t *testing.T) {
	now := time.Date(2024, time.June, 2, 9, 5, 0, 0, time.Local)
	until := now.Add(15 * time.Minute)
	c, store, alarms, notifier, _ := newController(now)

	// A fired one-shot: completed and disabled.
	id, _ := store.Insert(storage.Reminder{
		Title: "dentist", NextTrigger: now.Add(-5 * time.Minute), Original: now.Add(-5 * time.Minute),
		CompletedAt: now.Add(-4 * time.Minute),
	})
	notifier.Show(id, notify.Content{Title: "dentist"})

	r, err := c.Snooze(id, until)
	if err != nil {
		t.Fatalf("Snooze: %v", err)
	}
	if !r.Snoozed || !r.SnoozeUntil.Equal(until) {
		t.Errorf("snooze state = %+v", r)
	}
	if !r.Enabled || !r.CompletedAt.IsZero() {
		t.Error("snooze must re-enable a completed one-shot")
	}
	if armed, ok := alarms.armedAt(id); !ok || !armed.Equal(until) {
		t.Errorf("armed at %v (%v), want %v", armed, ok, until)
	}
	if _, shown := notifier.shown[id]; shown {
		t.Error("snooze left the notification visible")
	}
}

func TestSnooze_RejectsPast(t *testing.T) {
	now := time.Date(2024, time.June, 2, 9, 0, 0, 0, time.Local)
	c, store, _, _, _ := newController(now)
	id, _ := store.Insert(storage.Reminder{Title: "x", NextTrigger: now, Original: now, Enabled: true})

	if _, err := c.Snooze(id, now.Add(-time.Minute)); err == nil {
		t.Error("past snooze target accepted")
	}
	if _, err := c.Snooze(id, now); err == nil {
		t.Error("snooze target equal to now accepted")
	}
}

func TestComplete(t *testing.T) {
	now := time.Date(2024, time.June, 2, 9, 5, 0, 0, time.Local)
	c, store, alarms, notifier, _ := newController(now)

	id, _ := store.Insert(storage.Reminder{
		Title: "dentist", NextTrigger: now.Add(time.Hour), Original: now.Add(time.Hour),
		Enabled: true, Snoozed: true, SnoozeUntil: now.Add(time.Hour),
	})
	alarms.Schedule(storage.Reminder{ID: id, NextTrigger: now.Add(time.Hour)})
	notifier.Show(id, notify.Content{Title: "dentist"})

	r, err := c.Complete(id)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if r.Enabled || !r.CompletedAt.Equal(now) {
		t.Errorf("completion state = %+v", r)
	}
	if r.Snoozed || !r.SnoozeUntil.IsZero() {
		t.Error("completion did not clear snooze")
	}
	if _, armed := alarms.armedAt(id); armed {
		t.Error("alarm still armed after completion")
	}
	if _, shown := notifier.shown[id]; shown {
		t.Error("notification still visible after completion")
	}
}

func TestComplete_RecurringRefused(t *testing.T) {
	now := time.Now()
	c, store, _, _, _ := newController(now)
	id, _ := store.Insert(storage.Reminder{
		Title: "standup", NextTrigger: now, Original: now,
		Rule: recurrence.Rule{Kind: recurrence.Daily}, Enabled: true,
	})

	if _, err := c.Complete(id); !errors.Is(err, ErrRecurring) {
		t.Errorf("err = %v, want ErrRecurring", err)
	}
}

func TestEdit_AnchorSemantics(t *testing.T) {
	anchor := time.Date(2024, time.January, 31, 9, 0, 0, 0, time.Local)
	trigger := time.Date(2024, time.June, 30, 9, 0, 0, 0, time.Local)
	now := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.Local)
	c, store, _, _, _ := newController(now)

	id, _ := store.Insert(storage.Reminder{
		Title: "rent", NextTrigger: trigger, Original: anchor,
		Rule: recurrence.Rule{Kind: recurrence.Monthly}, Enabled: true,
	})

	// Editing text only keeps the anchor.
	r, err := c.Edit(id, EditRequest{
		Title: "pay rent", Notes: "wire it", At: trigger,
		Rule: recurrence.Rule{Kind: recurrence.Monthly}, Enabled: true,
	})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if !r.Original.Equal(anchor) {
		t.Errorf("anchor reset by a text-only edit: %v", r.Original)
	}

	// Changing the time resets the anchor and clears any snooze.
	store.Update(func() storage.Reminder {
		cur, _ := store.GetByID(id)
		cur.Snoozed = true
		cur.SnoozeUntil = now.Add(time.Hour)
		return cur
	}())
	newAt := time.Date(2024, time.July, 15, 10, 30, 0, 0, time.Local)
	r, err = c.Edit(id, EditRequest{
		Title: "pay rent", At: newAt,
		Rule: recurrence.Rule{Kind: recurrence.Monthly}, Enabled: true,
	})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if !r.Original.Equal(newAt) || !r.NextTrigger.Equal(newAt) {
		t.Errorf("anchor/trigger = %v/%v, want %v", r.Original, r.NextTrigger, newAt)
	}
	if r.Snoozed || !r.SnoozeUntil.IsZero() {
		t.Error("time change did not clear snooze")
	}
}

func TestDelete(t *testing.T) {
	now := time.Now()
	c, store, alarms, notifier, _ := newController(now)
	id, _ := store.Insert(storage.Reminder{Title: "x", NextTrigger: now, Original: now, Enabled: true})
	alarms.Schedule(storage.Reminder{ID: id, NextTrigger: now})
	notifier.Show(id, notify.Content{Title: "x"})

	if err := c.Delete(id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.GetByID(id); !errors.Is(err, storage.ErrNotFound) {
		t.Error("reminder still stored")
	}
	if _, armed := alarms.armedAt(id); armed {
		t.Error("alarm still armed")
	}
	if _, shown := notifier.shown[id]; shown {
		t.Error("notification still visible")
	}
}

func TestRecover_MissedAndUpcoming(t *testing.T) {
	now := time.Date(2024, time.June, 10, 12, 0, 0, 0, time.Local)
	c, store, alarms, notifier, _ := newController(now)

	anchor := time.Date(2024, time.January, 1, 9, 0, 0, 0, time.Local)
	overdueRecurring, _ := store.Insert(storage.Reminder{
		Title: "standing call", NextTrigger: time.Date(2024, time.June, 8, 9, 0, 0, 0, time.Local),
		Original: anchor, Rule: recurrence.Rule{Kind: recurrence.Daily}, Enabled: true,
	})
	overdueOneShot, _ := store.Insert(storage.Reminder{
		Title: "missed dentist", NextTrigger: time.Date(2024, time.June, 9, 14, 0, 0, 0, time.Local),
		Original: time.Date(2024, time.June, 9, 14, 0, 0, 0, time.Local), Enabled: true,
	})
	upcoming, _ := store.Insert(storage.Reminder{
		Title: "future", NextTrigger: now.Add(2 * time.Hour), Original: now.Add(2 * time.Hour), Enabled: true,
	})

	if err := c.Recover(context.Background()); err != nil {
		t.Fatalf("Recover: %v", err)
	}

	// Overdue recurring advanced past now in one step and re-armed.
	got, _ := store.GetByID(overdueRecurring)
	wantNext, _ := recurrence.NextOccurrence(now, anchor, recurrence.Rule{Kind: recurrence.Daily})
	if !got.NextTrigger.Equal(wantNext) {
		t.Errorf("recurring next = %v, want %v", got.NextTrigger, wantNext)
	}
	if _, shown := notifier.shown[overdueRecurring]; !shown {
		t.Error("missed recurring fire produced no notification")
	}

	// Overdue one-shot completed.
	got, _ = store.GetByID(overdueOneShot)
	if got.Enabled || got.CompletedAt.IsZero() {
		t.Errorf("missed one-shot not completed: %+v", got)
	}

	// Upcoming reminder simply re-armed, untouched.
	got, _ = store.GetByID(upcoming)
	if !got.Enabled || !got.CompletedAt.IsZero() {
		t.Errorf("upcoming reminder mutated: %+v", got)
	}
	if armed, ok := alarms.armedAt(upcoming); !ok || !armed.Equal(now.Add(2*time.Hour)) {
		t.Errorf("upcoming armed at %v (%v)", armed, ok)
	}
	if _, shown := notifier.shown[upcoming]; shown {
		t.Error("upcoming reminder fired during recovery")
	}
}

func TestRecover_Idempotent(t *testing.T) {
	now := time.Date(2024, time.June, 10, 12, 0, 0, 0, time.Local)
	c, store, _, _, _ := newController(now)

	anchor := time.Date(2024, time.January, 1, 9, 0, 0, 0, time.Local)
	store.Insert(storage.Reminder{
		Title: "daily", NextTrigger: time.Date(2024, time.March, 1, 9, 0, 0, 0, time.Local),
		Original: anchor, Rule: recurrence.Rule{Kind: recurrence.Daily}, Enabled: true,
	})
	store.Insert(storage.Reminder{
		Title: "one shot", NextTrigger: time.Date(2024, time.June, 1, 9, 0, 0, 0, time.Local),
		Original: time.Date(2024, time.June, 1, 9, 0, 0, 0, time.Local), Enabled: true,
	})

	if err := c.Recover(context.Background()); err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	first := store.snapshot()

	if err := c.Recover(context.Background()); err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	second := store.snapshot()

	if len(first) != len(second) {
		t.Fatalf("record count changed: %d -> %d", len(first), len(second))
	}
	for id, w := range first {
		g := second[id]
		if !g.NextTrigger.Equal(w.NextTrigger) || g.Enabled != w.Enabled ||
			!g.CompletedAt.Equal(w.CompletedAt) || g.Snoozed != w.Snoozed {
			t.Errorf("second sweep changed %s: %+v -> %+v", id, w, g)
		}
	}
}

// staleSnapshotStore serves Recover a snapshot that predates later mutations,
// standing in for a snooze or edit racing the sweep between its GetActive call
// and the per-reminder lock.
type staleSnapshotStore struct {
	*mockStore
	stale []storage.Reminder
}

func (s *staleSnapshotStore) GetActive() ([]storage.Reminder, error) {
	return s.stale, nil
}

func TestRecover_ConcurrentSnoozeSurvivesSweep(t *testing.T) {
	now := time.Date(2024, time.June, 10, 12, 0, 0, 0, time.Local)
	store := newMockStore()
	alarms := newMockAlarms()
	notifier := newMockNotifier()

	overdue := time.Date(2024, time.June, 9, 9, 0, 0, 0, time.Local)
	anchor := time.Date(2024, time.January, 1, 9, 0, 0, 0, time.Local)
	id, _ := store.Insert(storage.Reminder{
		Title: "standup", NextTrigger: overdue, Original: anchor,
		Rule: recurrence.Rule{Kind: recurrence.Daily}, Enabled: true,
	})
	stale, _ := store.GetActive()

	// The user snoozes after the sweep snapshotted but before it reaches
	// this reminder.
	until := time.Date(2024, time.June, 10, 12, 30, 0, 0, time.Local)
	cur, _ := store.GetByID(id)
	cur.Snoozed = true
	cur.SnoozeUntil = until
	store.Update(cur)

	c := NewWithClock(&staleSnapshotStore{mockStore: store, stale: stale}, alarms, notifier, &mockBackups{}, &fakeClock{now: now})
	if err := c.Recover(context.Background()); err != nil {
		t.Fatalf("Recover: %v", err)
	}

	got, _ := store.GetByID(id)
	if !got.Snoozed || !got.SnoozeUntil.Equal(until) {
		t.Errorf("concurrent snooze lost by recovery sweep: snoozed=%v until=%v (want snoozed until %v)",
			got.Snoozed, got.SnoozeUntil, until)
	}
	if !got.NextTrigger.Equal(overdue) {
		t.Errorf("sweep advanced recurrence over the snooze: %v", got.NextTrigger)
	}
	if _, shown := notifier.shown[id]; shown {
		t.Error("sweep fired from the stale snapshot")
	}
	if armed, ok := alarms.armedAt(id); !ok || !armed.Equal(until) {
		t.Errorf("armed at %v (%v), want the snooze target %v", armed, ok, until)
	}
}

func TestRecover_DeletedBetweenSnapshotAndSweep(t *testing.T) {
	now := time.Date(2024, time.June, 10, 12, 0, 0, 0, time.Local)
	store := newMockStore()
	notifier := newMockNotifier()

	overdue := time.Date(2024, time.June, 9, 9, 0, 0, 0, time.Local)
	id, _ := store.Insert(storage.Reminder{
		Title: "gone", NextTrigger: overdue, Original: overdue, Enabled: true,
	})
	stale, _ := store.GetActive()
	store.DeleteByID(id)

	c := NewWithClock(&staleSnapshotStore{mockStore: store, stale: stale}, newMockAlarms(), notifier, &mockBackups{}, &fakeClock{now: now})
	if err := c.Recover(context.Background()); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if len(notifier.shown) != 0 {
		t.Error("sweep fired a deleted reminder")
	}
}

func TestRecover_OverdueSnoozeClearsWithoutAdvance(t *testing.T) {
	now := time.Date(2024, time.June, 10, 12, 0, 0, 0, time.Local)
	c, store, _, notifier, _ := newController(now)

	next := time.Date(2024, time.June, 11, 9, 0, 0, 0, time.Local)
	id, _ := store.Insert(storage.Reminder{
		Title: "snoozed", NextTrigger: next, Original: next,
		Rule:    recurrence.Rule{Kind: recurrence.Daily},
		Enabled: true, Snoozed: true,
		SnoozeUntil: time.Date(2024, time.June, 10, 9, 0, 0, 0, time.Local),
	})

	if err := c.Recover(context.Background()); err != nil {
		t.Fatalf("Recover: %v", err)
	}

	got, _ := store.GetByID(id)
	if got.Snoozed {
		t.Error("overdue snooze not cleared at boot")
	}
	if !got.NextTrigger.Equal(next) {
		t.Errorf("boot snooze fire advanced recurrence: %v", got.NextTrigger)
	}
	if _, shown := notifier.shown[id]; !shown {
		t.Error("overdue snooze produced no notification")
	}
}
