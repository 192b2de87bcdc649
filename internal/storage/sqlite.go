package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/kalambet/remindd/internal/recurrence"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding reminders and settings.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "remindd.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying connection for tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

// migrate reads embedded SQL migration files and applies any that haven't run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// --- Reminders ---

const reminderColumns = "id, title, notes, next_trigger, original, recurrence, enabled, snoozed, snooze_until, completed_at, created_at, updated_at"

// Insert stores a reminder. A missing ID is assigned here and stays stable
// for the record's lifetime; restore passes records with their old IDs intact.
func (s *Store) Insert(r Reminder) (string, error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	_, err := s.db.Exec(`
		INSERT INTO reminders (`+reminderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Title, r.Notes,
		encodeTime(r.NextTrigger), encodeTime(r.Original), r.Rule.String(),
		boolToInt(r.Enabled), boolToInt(r.Snoozed),
		encodeNullableTime(r.SnoozeUntil), encodeNullableTime(r.CompletedAt),
		encodeTime(r.CreatedAt), encodeTime(r.UpdatedAt),
	)
	if err != nil {
		return "", err
	}
	return r.ID, nil
}

// Update rewrites every mutable column of an existing reminder.
func (s *Store) Update(r Reminder) error {
	res, err := s.db.Exec(`
		UPDATE reminders
		SET title = ?, notes = ?, next_trigger = ?, original = ?, recurrence = ?,
		    enabled = ?, snoozed = ?, snooze_until = ?, completed_at = ?, updated_at = ?
		WHERE id = ?`,
		r.Title, r.Notes,
		encodeTime(r.NextTrigger), encodeTime(r.Original), r.Rule.String(),
		boolToInt(r.Enabled), boolToInt(r.Snoozed),
		encodeNullableTime(r.SnoozeUntil), encodeNullableTime(r.CompletedAt),
		encodeTime(r.UpdatedAt), r.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GetByID(id string) (Reminder, error) {
	row := s.db.QueryRow(`SELECT `+reminderColumns+` FROM reminders WHERE id = ?`, id)
	r, err := scanReminder(row)
	if err == sql.ErrNoRows {
		return Reminder{}, ErrNotFound
	}
	return r, err
}

// ResolveID maps a full id or a unique id prefix to the full id. The CLI
// shows shortened ids, so every user-facing surface resolves through here
// before touching a reminder. An ambiguous prefix is an error, not a guess.
func (s *Store) ResolveID(idOrPrefix string) (string, error) {
	var id string
	err := s.db.QueryRow(`SELECT id FROM reminders WHERE id = ?`, idOrPrefix).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", err
	}
	if idOrPrefix == "" || strings.ContainsAny(idOrPrefix, "%_") {
		return "", ErrNotFound
	}

	rows, err := s.db.Query(`SELECT id FROM reminders WHERE id LIKE ? || '%' LIMIT 2`, idOrPrefix)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var matches []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return "", err
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	switch len(matches) {
	case 0:
		return "", ErrNotFound
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("reminder id %q is ambiguous", idOrPrefix)
	}
}

// GetAll returns every reminder ordered by next trigger time.
func (s *Store) GetAll() ([]Reminder, error) {
	return s.query(`SELECT ` + reminderColumns + ` FROM reminders ORDER BY next_trigger ASC, created_at ASC`)
}

// GetActive returns enabled reminders ordered by next trigger time.
func (s *Store) GetActive() ([]Reminder, error) {
	return s.query(`SELECT ` + reminderColumns + ` FROM reminders WHERE enabled = 1 ORDER BY next_trigger ASC, created_at ASC`)
}

func (s *Store) query(q string, args ...any) ([]Reminder, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *Store) DeleteByID(id string) error {
	res, err := s.db.Exec(`DELETE FROM reminders WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteAll() error {
	_, err := s.db.Exec(`DELETE FROM reminders`)
	return err
}

func (s *Store) Count() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM reminders`).Scan(&n)
	return n, err
}

// --- Settings ---

func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return value, err
}

// --- scanning helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReminder(row rowScanner) (Reminder, error) {
	var r Reminder
	var next, original, createdAt, updatedAt, rule string
	var enabled, snoozed int
	var snoozeUntil, completedAt sql.NullString

	err := row.Scan(&r.ID, &r.Title, &r.Notes, &next, &original, &rule,
		&enabled, &snoozed, &snoozeUntil, &completedAt, &createdAt, &updatedAt)
	if err != nil {
		return Reminder{}, err
	}

	if r.NextTrigger, err = decodeTime(next); err != nil {
		return Reminder{}, fmt.Errorf("parsing next_trigger for %s: %w", r.ID, err)
	}
	if r.Original, err = decodeTime(original); err != nil {
		return Reminder{}, fmt.Errorf("parsing original for %s: %w", r.ID, err)
	}
	if r.CreatedAt, err = decodeTime(createdAt); err != nil {
		return Reminder{}, fmt.Errorf("parsing created_at for %s: %w", r.ID, err)
	}
	if r.UpdatedAt, err = decodeTime(updatedAt); err != nil {
		return Reminder{}, fmt.Errorf("parsing updated_at for %s: %w", r.ID, err)
	}
	if r.Rule, err = recurrence.Parse(rule); err != nil {
		return Reminder{}, fmt.Errorf("parsing recurrence for %s: %w", r.ID, err)
	}
	r.Enabled = enabled != 0
	r.Snoozed = snoozed != 0
	if snoozeUntil.Valid && snoozeUntil.String != "" {
		if r.SnoozeUntil, err = decodeTime(snoozeUntil.String); err != nil {
			return Reminder{}, fmt.Errorf("parsing snooze_until for %s: %w", r.ID, err)
		}
	}
	if completedAt.Valid && completedAt.String != "" {
		if r.CompletedAt, err = decodeTime(completedAt.String); err != nil {
			return Reminder{}, fmt.Errorf("parsing completed_at for %s: %w", r.ID, err)
		}
	}
	return r, nil
}

// Timestamps are stored as RFC3339 with the original offset preserved:
// scheduling is local-clock based, so wall time must survive the round trip.
func encodeTime(t time.Time) string {
	return t.Format(time.RFC3339)
}

func decodeTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func encodeNullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(time.RFC3339)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
