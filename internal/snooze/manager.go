package snooze

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kalambet/remindd/internal/storage"
)

const settingKey = "snooze_presets"

// SettingsStore is the slice of storage the Manager needs.
// Implemented by storage.Store.
type SettingsStore interface {
	GetSetting(key string) (string, error)
	SetSetting(key, value string) error
}

// Manager provides cached access to the user's ordered snooze preset list,
// persisted as a JSON array of compact preset strings in the settings table.
type Manager struct {
	store SettingsStore

	mu     sync.Mutex
	cached []Preset
}

// NewManager creates a Manager over the given settings store.
func NewManager(store SettingsStore) *Manager {
	return &Manager{store: store}
}

// List returns the configured presets in order, falling back to Defaults
// when none have been saved yet.
func (m *Manager) List() ([]Preset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cached != nil {
		return append([]Preset(nil), m.cached...), nil
	}

	raw, err := m.store.GetSetting(settingKey)
	if errors.Is(err, storage.ErrNotFound) {
		return Defaults(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading snooze presets: %w", err)
	}

	var texts []string
	if err := json.Unmarshal([]byte(raw), &texts); err != nil {
		return nil, fmt.Errorf("decoding snooze presets: %w", err)
	}
	presets := make([]Preset, 0, len(texts))
	for _, s := range texts {
		p, err := Parse(s)
		if err != nil {
			return nil, fmt.Errorf("decoding snooze preset %q: %w", s, err)
		}
		presets = append(presets, p)
	}

	m.cached = presets
	return append([]Preset(nil), presets...), nil
}

// Save replaces the ordered preset list.
func (m *Manager) Save(presets []Preset) error {
	for _, p := range presets {
		if err := p.Validate(); err != nil {
			return err
		}
	}

	texts := make([]string, len(presets))
	for i, p := range presets {
		texts[i] = p.String()
	}
	raw, err := json.Marshal(texts)
	if err != nil {
		return fmt.Errorf("encoding snooze presets: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.SetSetting(settingKey, string(raw)); err != nil {
		return fmt.Errorf("saving snooze presets: %w", err)
	}
	m.cached = append([]Preset(nil), presets...)
	return nil
}

// Resolve computes the snooze target for the preset at the given index.
func (m *Manager) Resolve(index int, now time.Time) (time.Time, error) {
	presets, err := m.List()
	if err != nil {
		return time.Time{}, err
	}
	if index < 0 || index >= len(presets) {
		return time.Time{}, fmt.Errorf("no snooze preset at index %d (have %d)", index, len(presets))
	}
	return presets[index].Resolve(now), nil
}
