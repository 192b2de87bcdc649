package backup

import (
	"strings"
	"testing"
	"time"

	"github.com/kalambet/remindd/internal/recurrence"
	"github.com/kalambet/remindd/internal/storage"
)

func ts(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.Local)
}

func sampleRecords() []storage.Reminder {
	return []storage.Reminder{
		{
			ID:          "id-1",
			Title:       "pipes | and \\ slashes",
			Notes:       "line one\nline two\r\nwindows line",
			NextTrigger: ts(2024, time.June, 2, 9, 0),
			Original:    ts(2024, time.June, 1, 9, 0),
			Rule:        recurrence.Rule{Kind: recurrence.Daily},
			Enabled:     true,
			CreatedAt:   ts(2024, time.May, 30, 12, 0),
			UpdatedAt:   ts(2024, time.May, 30, 12, 0),
		},
		{
			ID:          "id-2",
			Title:       "dentist",
			Notes:       "",
			NextTrigger: ts(2024, time.July, 10, 14, 30),
			Original:    ts(2024, time.July, 10, 14, 30),
			Enabled:     false,
			Snoozed:     true,
			SnoozeUntil: ts(2024, time.July, 10, 15, 0),
			CompletedAt: ts(2024, time.July, 10, 14, 35),
			CreatedAt:   ts(2024, time.June, 1, 8, 0),
			UpdatedAt:   ts(2024, time.June, 1, 8, 0),
		},
		{
			ID:          "id-3",
			Title:       "team sync",
			NextTrigger: ts(2024, time.June, 3, 10, 0),
			Original:    ts(2024, time.January, 1, 10, 0),
			Rule:        recurrence.Rule{Kind: recurrence.Weekly, Days: []time.Weekday{time.Monday, time.Wednesday}},
			Enabled:     true,
			CreatedAt:   ts(2024, time.January, 1, 10, 0),
			UpdatedAt:   ts(2024, time.January, 1, 10, 0),
		},
	}
}

func TestRoundTrip(t *testing.T) {
	want := sampleRecords()
	got, skipped, err := Decode(Encode(want))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if skipped != 0 {
		t.Errorf("skipped = %d, want 0", skipped)
	}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		w, g := want[i], got[i]
		if g.ID != w.ID || g.Title != w.Title || g.Notes != w.Notes {
			t.Errorf("record %d text mismatch: %+v", i, g)
		}
		if !g.NextTrigger.Equal(w.NextTrigger) || !g.Original.Equal(w.Original) || !g.CreatedAt.Equal(w.CreatedAt) {
			t.Errorf("record %d time mismatch: %+v", i, g)
		}
		if !g.SnoozeUntil.Equal(w.SnoozeUntil) || !g.CompletedAt.Equal(w.CompletedAt) {
			t.Errorf("record %d optional time mismatch: %+v", i, g)
		}
		if !g.Rule.Equal(w.Rule) {
			t.Errorf("record %d rule = %v, want %v", i, g.Rule, w.Rule)
		}
		if g.Enabled != w.Enabled || g.Snoozed != w.Snoozed {
			t.Errorf("record %d flags mismatch: %+v", i, g)
		}
	}
}

func TestEncode_EscapesReservedCharacters(t *testing.T) {
	data := string(Encode(sampleRecords()[:1]))
	lines := strings.Split(strings.TrimRight(data, "\n"), "\n")
	// Header plus exactly one row: embedded newlines must be escaped away.
	if len(lines) != 2 {
		t.Fatalf("expected 2 physical lines, got %d:\n%s", len(lines), data)
	}
	row := lines[1]
	if !strings.Contains(row, `\|`) {
		t.Error("delimiter in title was not escaped")
	}
	if !strings.Contains(row, `\\`) {
		t.Error("backslash in title was not escaped")
	}
	if !strings.Contains(row, `\n`) || !strings.Contains(row, `\r`) {
		t.Error("newline/CR in notes were not escaped")
	}
}

func TestDecode_SkipsMalformedRows(t *testing.T) {
	data := Encode(sampleRecords()[:1])
	mangled := string(data) +
		"only|three|fields\n" +
		"bad title|not-a-date|2024-06-01 09:00|NONE||true|false||2024-06-01 09:00||id-x\n"

	got, skipped, err := Decode([]byte(mangled))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("accepted = %d, want 1", len(got))
	}
	if skipped != 2 {
		t.Errorf("skipped = %d, want 2", skipped)
	}
}

func TestDecode_BadHeader(t *testing.T) {
	if _, _, err := Decode([]byte("not|a|real|header\nrow|x|y|z\n")); err == nil {
		t.Error("expected error for unusable header")
	}
}

func TestDecode_Empty(t *testing.T) {
	got, skipped, err := Decode(nil)
	if err != nil || skipped != 0 || len(got) != 0 {
		t.Errorf("Decode(nil) = %v, %d, %v", got, skipped, err)
	}
}

func TestSplitFields(t *testing.T) {
	got := splitFields(`a\|b|c\\d|e\nf`)
	want := []string{"a|b", `c\d`, "e\nf"}
	if len(got) != len(want) {
		t.Fatalf("got %q", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("field %d = %q, want %q", i, got[i], want[i])
		}
	}
}
