package snooze

import (
	"testing"
	"time"

	"github.com/kalambet/remindd/internal/storage"
)

func TestResolve_RelativeMinutes(t *testing.T) {
	now := time.Date(2024, time.June, 1, 10, 0, 0, 0, time.Local)
	got := Preset{Kind: RelativeMinutes, N: 15}.Resolve(now)
	if want := now.Add(15 * time.Minute); !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestResolve_RelativeDays(t *testing.T) {
	now := time.Date(2024, time.June, 1, 10, 0, 0, 0, time.Local)
	got := Preset{Kind: RelativeDays, N: 2}.Resolve(now)
	if want := time.Date(2024, time.June, 3, 10, 0, 0, 0, time.Local); !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestResolve_TimeOfDay(t *testing.T) {
	p := Preset{Kind: TimeOfDay, Hour: 9, Minute: 0}

	// Still in the future today.
	now := time.Date(2024, time.June, 1, 7, 30, 0, 0, time.Local)
	got := p.Resolve(now)
	if want := time.Date(2024, time.June, 1, 9, 0, 0, 0, time.Local); !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}

	// Already past: tomorrow.
	now = time.Date(2024, time.June, 1, 9, 0, 0, 0, time.Local)
	got = p.Resolve(now)
	if want := time.Date(2024, time.June, 2, 9, 0, 0, 0, time.Local); !got.Equal(want) {
		t.Errorf("exactly at target: got %v, want %v", got, want)
	}
}

func TestParseAndString(t *testing.T) {
	cases := []struct {
		text   string
		preset Preset
	}{
		{"15m", Preset{Kind: RelativeMinutes, N: 15}},
		{"2d", Preset{Kind: RelativeDays, N: 2}},
		{"08:30", Preset{Kind: TimeOfDay, Hour: 8, Minute: 30}},
	}
	for _, tc := range cases {
		got, err := Parse(tc.text)
		if err != nil {
			t.Errorf("Parse(%q): %v", tc.text, err)
			continue
		}
		if got != tc.preset {
			t.Errorf("Parse(%q) = %+v, want %+v", tc.text, got, tc.preset)
		}
		if s := tc.preset.String(); s != tc.text {
			t.Errorf("String(%+v) = %q, want %q", tc.preset, s, tc.text)
		}
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, text := range []string{"", "m", "0m", "-1d", "25:00", "08:60", "10x"} {
		if _, err := Parse(text); err == nil {
			t.Errorf("Parse(%q): expected error", text)
		}
	}
}

// mockSettings is an in-memory SettingsStore.
type mockSettings struct {
	values map[string]string
}

func (m *mockSettings) GetSetting(key string) (string, error) {
	v, ok := m.values[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func (m *mockSettings) SetSetting(key, value string) error {
	if m.values == nil {
		m.values = make(map[string]string)
	}
	m.values[key] = value
	return nil
}

func TestManager_DefaultsWhenUnset(t *testing.T) {
	m := NewManager(&mockSettings{})
	got, err := m.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != len(Defaults()) {
		t.Errorf("len = %d, want %d", len(got), len(Defaults()))
	}
}

func TestManager_SaveAndList(t *testing.T) {
	store := &mockSettings{}
	m := NewManager(store)

	want := []Preset{
		{Kind: RelativeMinutes, N: 30},
		{Kind: TimeOfDay, Hour: 18, Minute: 0},
	}
	if err := m.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Order is preserved, including through a fresh manager (no cache).
	fresh := NewManager(store)
	got, err := fresh.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestManager_SaveRejectsInvalid(t *testing.T) {
	m := NewManager(&mockSettings{})
	err := m.Save([]Preset{{Kind: RelativeMinutes, N: 0}})
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestManager_Resolve(t *testing.T) {
	m := NewManager(&mockSettings{})
	if err := m.Save([]Preset{{Kind: RelativeMinutes, N: 10}}); err != nil {
		t.Fatal(err)
	}

	now := time.Date(2024, time.June, 1, 8, 0, 0, 0, time.Local)
	got, err := m.Resolve(0, now)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if want := now.Add(10 * time.Minute); !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}

	if _, err := m.Resolve(5, now); err == nil {
		t.Error("expected error for out-of-range index")
	}
}
