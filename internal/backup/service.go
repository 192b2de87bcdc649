package backup

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kalambet/remindd/internal/recurrence"
	"github.com/kalambet/remindd/internal/storage"
)

// AutoName is the rolling auto-backup target, overwritten on every debounced
// write. Manual backups get timestamped names so they are never silently
// overwritten by the next auto-backup.
const AutoName = "reminders-backup.txt"

// Store is the slice of storage the backup service needs.
// Implemented by storage.Store.
type Store interface {
	GetAll() ([]storage.Reminder, error)
	Insert(r storage.Reminder) (string, error)
	DeleteAll() error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Service owns backup writes, destructive restore and additive import.
// Writes to the document store are serialized: a debounce race can at worst
// queue a second write behind a running one, never interleave two.
type Service struct {
	store  Store
	docs   DocumentStore
	clock  Clock
	logger *slog.Logger

	writeMu sync.Mutex
}

// NewService creates a backup Service.
func NewService(store Store, docs DocumentStore) *Service {
	return &Service{
		store:  store,
		docs:   docs,
		clock:  realClock{},
		logger: slog.Default(),
	}
}

// NewServiceWithClock creates a Service with a custom clock (for testing).
func NewServiceWithClock(store Store, docs DocumentStore, clock Clock) *Service {
	return &Service{
		store:  store,
		docs:   docs,
		clock:  clock,
		logger: slog.Default(),
	}
}

// WriteAuto snapshots the store to the rolling auto-backup target.
// Errors are reported, not fatal: the next debounced trigger retries.
func (s *Service) WriteAuto() error {
	return s.write(AutoName)
}

// WriteManual snapshots the store to a fresh timestamped target and returns
// its name.
func (s *Service) WriteManual() (string, error) {
	name := fmt.Sprintf("reminders-backup-%s.txt", s.clock.Now().Format("20060102-150405"))
	if err := s.write(name); err != nil {
		return "", err
	}
	return name, nil
}

func (s *Service) write(name string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	records, err := s.store.GetAll()
	if err != nil {
		return fmt.Errorf("reading reminders for backup: %w", err)
	}
	if err := s.docs.Write(name, Encode(records)); err != nil {
		return fmt.Errorf("writing backup %s: %w", name, err)
	}
	s.logger.Info("backup written", "name", name, "records", len(records))
	return nil
}

// Restore replaces the entire store with the decoded contents of the named
// backup. Destructive and deliberately without undo; confirming intent is the
// caller's job. Returns the number of restored records.
func (s *Service) Restore(name string) (int, error) {
	data, err := s.docs.Read(name)
	if err != nil {
		return 0, err
	}

	records, skipped, err := Decode(data)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 && skipped > 0 {
		return 0, fmt.Errorf("backup %s contains no usable rows (%d skipped)", name, skipped)
	}
	if skipped > 0 {
		s.logger.Warn("skipped malformed backup rows", "name", name, "skipped", skipped)
	}

	if err := s.store.DeleteAll(); err != nil {
		return 0, fmt.Errorf("clearing store for restore: %w", err)
	}
	restored := 0
	for _, r := range records {
		if _, err := s.store.Insert(r); err != nil {
			s.logger.Error("restoring record failed", "id", r.ID, "error", err)
			continue
		}
		restored++
	}
	return restored, nil
}

// Import additively inserts rows from a hand-authored file. Each accepted
// row becomes a new reminder with a fresh id and a freshly anchored original
// time; recurring rows whose datetime already passed arm at their next
// occurrence. Returns (accepted, skipped).
func (s *Service) Import(data []byte) (int, int, error) {
	rows, skipped, err := ParseImport(data)
	if err != nil {
		return 0, skipped, err
	}

	now := s.clock.Now()
	accepted := 0
	for _, row := range rows {
		next := row.At
		if !next.After(now) && row.Rule.IsRecurring() {
			if n, ok := recurrence.NextOccurrence(now, row.At, row.Rule); ok {
				next = n
			}
		}
		r := storage.Reminder{
			Title:       row.Title,
			Notes:       row.Notes,
			NextTrigger: next,
			Original:    row.At,
			Rule:        row.Rule,
			Enabled:     true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if _, err := s.store.Insert(r); err != nil {
			s.logger.Error("importing row failed", "title", row.Title, "error", err)
			skipped++
			continue
		}
		accepted++
	}
	return accepted, skipped, nil
}
