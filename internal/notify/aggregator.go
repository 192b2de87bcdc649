package notify

import (
	"fmt"
	"log/slog"
	"sync"
)

// GroupID is the id of the single count-based summary notification.
const GroupID = "remindd-summary"

// Content is what a notification displays.
type Content struct {
	Title string
	Body  string
}

// Service displays, updates and cancels user-visible notifications.
// Notify with an already-shown id updates it in place.
type Service interface {
	Notify(id string, c Content) error
	Cancel(id string) error
}

// Set is the persisted pending-notification set. Implemented by PendingSet.
type Set interface {
	Add(id string) error
	Remove(id string) error
	IDs() ([]string, error)
	Len() (int, error)
}

// Aggregator keeps the pending set and the group summary notification in step
// with individual show/cancel calls. The fire handler and user-initiated
// complete/snooze paths race against each other here, so every read-modify-
// write of the set is serialized.
type Aggregator struct {
	mu     sync.Mutex
	set    Set
	svc    Service
	logger *slog.Logger
}

// NewAggregator creates an Aggregator over the given set and service.
func NewAggregator(set Set, svc Service) *Aggregator {
	return &Aggregator{
		set:    set,
		svc:    svc,
		logger: slog.Default(),
	}
}

// Show adds the id to the pending set, displays its notification and
// refreshes the summary.
func (a *Aggregator) Show(id string, c Content) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.set.Add(id); err != nil {
		return fmt.Errorf("recording pending notification %s: %w", id, err)
	}
	if err := a.svc.Notify(id, c); err != nil {
		return fmt.Errorf("showing notification %s: %w", id, err)
	}
	a.refreshSummary()
	return nil
}

// Cancel removes the id from the pending set and withdraws its notification.
// Canceling an id that is not pending is a no-op on the set but still clears
// any stray visible notification.
func (a *Aggregator) Cancel(id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.set.Remove(id); err != nil {
		return fmt.Errorf("clearing pending notification %s: %w", id, err)
	}
	if err := a.svc.Cancel(id); err != nil {
		return fmt.Errorf("canceling notification %s: %w", id, err)
	}
	a.refreshSummary()
	return nil
}

// Pending returns the ids currently showing.
func (a *Aggregator) Pending() ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.set.IDs()
}

// refreshSummary updates the count-based group notification, withdrawing it
// when the set empties. Callers hold a.mu.
func (a *Aggregator) refreshSummary() {
	n, err := a.set.Len()
	if err != nil {
		a.logger.Error("reading pending set size", "error", err)
		return
	}
	if n == 0 {
		if err := a.svc.Cancel(GroupID); err != nil {
			a.logger.Error("withdrawing summary notification", "error", err)
		}
		return
	}
	title := fmt.Sprintf("%d reminders pending", n)
	if n == 1 {
		title = "1 reminder pending"
	}
	if err := a.svc.Notify(GroupID, Content{Title: title}); err != nil {
		a.logger.Error("updating summary notification", "error", err)
	}
}
