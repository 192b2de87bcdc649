package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/remindd/internal/lifecycle"
	"github.com/kalambet/remindd/internal/recurrence"
	"github.com/kalambet/remindd/internal/snooze"
	"github.com/kalambet/remindd/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB
const maxImportBodySize = 10 << 20 // 10MB

// timeLayout is the human-facing datetime form accepted alongside RFC 3339.
const timeLayout = "2006-01-02 15:04"

// Lifecycle is the reminder state machine surface the API mutates through.
// Implemented by lifecycle.Controller.
type Lifecycle interface {
	Create(title, notes string, at time.Time, rule recurrence.Rule) (storage.Reminder, error)
	Edit(id string, req lifecycle.EditRequest) (storage.Reminder, error)
	Delete(id string) error
	Snooze(id string, until time.Time) (storage.Reminder, error)
	Complete(id string) (storage.Reminder, error)
	Dismiss(id string) error
	Recover(ctx context.Context) error
}

// ReminderReader is the read-only storage surface. Implemented by storage.Store.
type ReminderReader interface {
	GetAll() ([]storage.Reminder, error)
	GetActive() ([]storage.Reminder, error)
	GetByID(id string) (storage.Reminder, error)
	ResolveID(idOrPrefix string) (string, error)
}

// BackupRunner is the backup surface. Implemented by backup.Service.
type BackupRunner interface {
	WriteManual() (string, error)
	Restore(name string) (int, error)
	Import(data []byte) (int, int, error)
}

// PresetManager is the snooze preset surface. Implemented by snooze.Manager.
type PresetManager interface {
	List() ([]snooze.Preset, error)
	Save(presets []snooze.Preset) error
	Resolve(index int, now time.Time) (time.Time, error)
}

// AlarmStatus exposes scheduler health. Implemented by alarm.Scheduler.
type AlarmStatus interface {
	Degraded() bool
}

// NotificationReader lists currently visible reminder notifications.
// Implemented by notify.Aggregator.
type NotificationReader interface {
	Pending() ([]string, error)
}

type AppDeps struct {
	Control       Lifecycle
	Reminders     ReminderReader
	Backups       BackupRunner
	Presets       PresetManager
	Alarms        AlarmStatus
	Notifications NotificationReader
	Token         string
}

// NewAppHandler builds the localhost REST surface. Health stays unauthenticated;
// everything else requires the bearer token when one is configured.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}

		r.Get("/status", handleStatus(deps))

		r.Get("/reminders", handleListReminders(deps))
		r.Post("/reminders", handleCreateReminder(deps))
		r.Get("/reminders/{id}", handleGetReminder(deps))
		r.Put("/reminders/{id}", handleEditReminder(deps))
		r.Delete("/reminders/{id}", handleDeleteReminder(deps))
		r.Post("/reminders/{id}/snooze", handleSnooze(deps))
		r.Post("/reminders/{id}/complete", handleComplete(deps))
		r.Post("/reminders/{id}/dismiss", handleDismiss(deps))

		r.Get("/snooze-presets", handleGetPresets(deps))
		r.Put("/snooze-presets", handlePutPresets(deps))

		r.Post("/backups", handleRunBackup(deps))
		r.Post("/backups/restore", handleRestore(deps))
		r.Post("/import", handleImport(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// ReminderJSON is the wire form of a reminder.
type ReminderJSON struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Notes       string `json:"notes,omitempty"`
	At          string `json:"at"`
	EffectiveAt string `json:"effective_at"`
	Original    string `json:"original"`
	Recurrence  string `json:"recurrence"`
	Enabled     bool   `json:"enabled"`
	Snoozed     bool   `json:"snoozed"`
	SnoozeUntil string `json:"snooze_until,omitempty"`
	CompletedAt string `json:"completed_at,omitempty"`
	CreatedAt   string `json:"created_at"`
}

func toJSON(r storage.Reminder) ReminderJSON {
	out := ReminderJSON{
		ID:          r.ID,
		Title:       r.Title,
		Notes:       r.Notes,
		At:          r.NextTrigger.Format(time.RFC3339),
		EffectiveAt: r.EffectiveTrigger().Format(time.RFC3339),
		Original:    r.Original.Format(time.RFC3339),
		Recurrence:  r.Rule.String(),
		Enabled:     r.Enabled,
		Snoozed:     r.Snoozed,
		CreatedAt:   r.CreatedAt.Format(time.RFC3339),
	}
	if !r.SnoozeUntil.IsZero() {
		out.SnoozeUntil = r.SnoozeUntil.Format(time.RFC3339)
	}
	if !r.CompletedAt.IsZero() {
		out.CompletedAt = r.CompletedAt.Format(time.RFC3339)
	}
	return out
}

type reminderRequest struct {
	Title      string `json:"title"`
	Notes      string `json:"notes"`
	At         string `json:"at"`
	Recurrence string `json:"recurrence"`
	Enabled    *bool  `json:"enabled"`
}

func parseWhen(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(timeLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid datetime %q (want RFC 3339 or %q)", s, timeLayout)
	}
	return t, nil
}

func parseRule(s string) (recurrence.Rule, error) {
	if s == "" {
		return recurrence.Rule{Kind: recurrence.None}, nil
	}
	return recurrence.Parse(s)
}

func handleStatus(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		active, err := deps.Reminders.GetActive()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to read reminders: %v", err)
			return
		}
		pending, err := deps.Notifications.Pending()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to read notifications: %v", err)
			return
		}

		var nextAt time.Time
		for _, rem := range active {
			at := rem.EffectiveTrigger()
			if nextAt.IsZero() || at.Before(nextAt) {
				nextAt = at
			}
		}
		next := ""
		if !nextAt.IsZero() {
			next = nextAt.Format(time.RFC3339)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"active_reminders":      len(active),
			"pending_notifications": len(pending),
			"alarms_degraded":       deps.Alarms.Degraded(),
			"next_trigger":          next,
		})
	}
}

func handleListReminders(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			reminders []storage.Reminder
			err       error
		)
		if r.URL.Query().Get("active") == "true" {
			reminders, err = deps.Reminders.GetActive()
		} else {
			reminders, err = deps.Reminders.GetAll()
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list reminders: %v", err)
			return
		}

		out := make([]ReminderJSON, len(reminders))
		for i, rem := range reminders {
			out[i] = toJSON(rem)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}

func handleCreateReminder(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req reminderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Title == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "title is required")
			return
		}
		at, err := parseWhen(req.At)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		rule, err := parseRule(req.Recurrence)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		rem, err := deps.Control.Create(req.Title, req.Notes, at, rule)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(toJSON(rem))
	}
}

// resolveReminderID turns the {id} path segment, which may be a shortened id
// as shown by the CLI, into a full id. Writes the error response on failure.
func resolveReminderID(deps AppDeps, w http.ResponseWriter, raw string) (string, bool) {
	id, err := deps.Reminders.ResolveID(raw)
	if errors.Is(err, storage.ErrNotFound) {
		httpError(w, http.StatusNotFound, "not_found", "reminder not found")
		return "", false
	}
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
		return "", false
	}
	return id, true
}

func handleGetReminder(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := resolveReminderID(deps, w, chi.URLParam(r, "id"))
		if !ok {
			return
		}

		rem, err := deps.Reminders.GetByID(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "reminder not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get reminder: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(toJSON(rem))
	}
}

func handleEditReminder(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := resolveReminderID(deps, w, chi.URLParam(r, "id"))
		if !ok {
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req reminderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Title == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "title is required")
			return
		}
		at, err := parseWhen(req.At)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		rule, err := parseRule(req.Recurrence)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		enabled := true
		if req.Enabled != nil {
			enabled = *req.Enabled
		}

		rem, err := deps.Control.Edit(id, lifecycle.EditRequest{
			Title:   req.Title,
			Notes:   req.Notes,
			At:      at,
			Rule:    rule,
			Enabled: enabled,
		})
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "reminder not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(toJSON(rem))
	}
}

func handleDeleteReminder(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := resolveReminderID(deps, w, chi.URLParam(r, "id"))
		if !ok {
			return
		}

		if err := deps.Control.Delete(id); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete reminder: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	}
}

type snoozeRequest struct {
	Until  string `json:"until"`
	Preset *int   `json:"preset"`
}

func handleSnooze(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := resolveReminderID(deps, w, chi.URLParam(r, "id"))
		if !ok {
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req snoozeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		var until time.Time
		switch {
		case req.Preset != nil:
			t, err := deps.Presets.Resolve(*req.Preset, time.Now())
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
				return
			}
			until = t
		case req.Until != "":
			t, err := parseWhen(req.Until)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
				return
			}
			until = t
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "one of until or preset is required")
			return
		}

		rem, err := deps.Control.Snooze(id, until)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "reminder not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(toJSON(rem))
	}
}

func handleComplete(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := resolveReminderID(deps, w, chi.URLParam(r, "id"))
		if !ok {
			return
		}

		rem, err := deps.Control.Complete(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "reminder not found")
			return
		}
		if errors.Is(err, lifecycle.ErrRecurring) {
			httpError(w, http.StatusConflict, "invalid_request_error", "recurring reminders cannot be completed; snooze or delete instead")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to complete reminder: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(toJSON(rem))
	}
}

func handleDismiss(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := resolveReminderID(deps, w, chi.URLParam(r, "id"))
		if !ok {
			return
		}

		if err := deps.Control.Dismiss(id); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to dismiss notification: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "dismissed"})
	}
}

func handleGetPresets(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		presets, err := deps.Presets.List()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list presets: %v", err)
			return
		}

		out := make([]string, len(presets))
		for i, p := range presets {
			out[i] = p.String()
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string][]string{"presets": out})
	}
}

func handlePutPresets(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req struct {
			Presets []string `json:"presets"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		presets := make([]snooze.Preset, 0, len(req.Presets))
		for _, s := range req.Presets {
			p, err := snooze.Parse(s)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
				return
			}
			presets = append(presets, p)
		}
		if err := deps.Presets.Save(presets); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "updated"})
	}
}

func handleRunBackup(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, err := deps.Backups.WriteManual()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "backup failed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"name": name})
	}
}

func handleRestore(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Name == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "name is required")
			return
		}

		restored, err := deps.Backups.Restore(req.Name)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "restore failed: %v", err)
			return
		}

		// The restored set replaced the live one; re-arm alarms to match it.
		if err := deps.Control.Recover(r.Context()); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "rescheduling after restore: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int{"restored": restored})
	}
}

func handleImport(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxImportBodySize)
		defer r.Body.Close()

		data, err := io.ReadAll(r.Body)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading import body: %v", err)
			return
		}

		accepted, skipped, err := deps.Backups.Import(data)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "import failed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int{"accepted": accepted, "skipped": skipped})
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
