package storage

import (
	"errors"
	"time"

	"github.com/kalambet/remindd/internal/recurrence"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Reminder is the central entity. Zero-valued SnoozeUntil/CompletedAt mean
// "not set"; the corresponding columns are NULL in that case.
type Reminder struct {
	ID          string
	Title       string
	Notes       string
	NextTrigger time.Time
	Original    time.Time // the user-chosen anchor; never advances
	Rule        recurrence.Rule
	Enabled     bool
	Snoozed     bool
	SnoozeUntil time.Time
	CompletedAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EffectiveTrigger is the instant the reminder should actually fire:
// the snooze target if snoozed, else the computed next trigger.
func (r Reminder) EffectiveTrigger() time.Time {
	if r.Snoozed && !r.SnoozeUntil.IsZero() {
		return r.SnoozeUntil
	}
	return r.NextTrigger
}
