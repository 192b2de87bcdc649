package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/remindd/internal/storage"
)

// recoverConcurrency bounds the boot sweep. Reminder counts are small; this
// keeps the sqlite write path from thrashing.
const recoverConcurrency = 4

// Recover reconciles stored state with wall-clock time after a restart.
// Enabled reminders whose effective trigger has passed are treated as missed
// fires and run through the regular firing transition; the rest are re-armed.
// One broken reminder is logged and skipped, never aborts the sweep. Running
// the sweep twice back to back leaves the store unchanged the second time.
func (c *Controller) Recover(ctx context.Context) error {
	reminders, err := c.store.GetActive()
	if err != nil {
		return fmt.Errorf("loading reminders for recovery: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(recoverConcurrency)
	for _, r := range reminders {
		id := r.ID
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			c.recoverOne(id)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("recovery sweep: %w", err)
	}
	c.logger.Info("recovery sweep complete", "reminders", len(reminders))
	return nil
}

func (c *Controller) recoverOne(id string) {
	defer func() {
		if p := recover(); p != nil {
			c.logger.Error("panic recovering reminder", "id", id, "panic", p)
		}
	}()

	l := c.lockFor(id)
	l.Lock()
	defer l.Unlock()

	// The sweep's GetActive snapshot is taken before this lock, so a mutation
	// (snooze, edit, delete) can land in between. Re-read the record under the
	// lock and act on current state only, exactly like HandleFire.
	r, err := c.store.GetByID(id)
	if errors.Is(err, storage.ErrNotFound) {
		return
	}
	if err != nil {
		c.logger.Error("reloading reminder for recovery", "id", id, "error", err)
		return
	}
	if !r.Enabled {
		return
	}

	if !r.EffectiveTrigger().After(c.clock.Now()) {
		c.logger.Info("missed fire detected", "id", r.ID, "title", r.Title, "due", r.EffectiveTrigger())
		if err := c.fire(r); err != nil {
			c.logger.Error("recovering missed fire", "id", r.ID, "error", err)
		}
		return
	}

	if _, err := c.alarms.Schedule(r); err != nil {
		c.logger.Error("re-arming reminder at boot", "id", r.ID, "error", err)
	}
}
