package backup

import (
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/remindd/internal/recurrence"
	"github.com/kalambet/remindd/internal/storage"
)

// Backup files are delimiter-separated text: a header row naming the columns,
// then one row per reminder. The delimiter never appears unescaped inside a
// field, and embedded newlines are escaped, so rows are plain lines.
const (
	// Delimiter separates fields within a row.
	Delimiter = '|'
	// TimeLayout is the fixed local-time format, no zone marker.
	TimeLayout = "2006-01-02 15:04"
)

var columns = []string{
	"title", "next_trigger", "original", "recurrence", "notes",
	"enabled", "snoozed", "snooze_until", "created_at", "completed_at", "id",
}

// Encode renders the records as backup file bytes. Decode(Encode(x)) == x for
// every valid record (times at minute precision, which is all the format
// carries).
func Encode(records []storage.Reminder) []byte {
	var b strings.Builder
	b.WriteString(strings.Join(columns, string(Delimiter)))
	b.WriteByte('\n')

	for _, r := range records {
		fields := []string{
			escape(r.Title),
			r.NextTrigger.Format(TimeLayout),
			r.Original.Format(TimeLayout),
			r.Rule.String(),
			escape(r.Notes),
			fmt.Sprintf("%t", r.Enabled),
			fmt.Sprintf("%t", r.Snoozed),
			formatOptional(r.SnoozeUntil),
			r.CreatedAt.Format(TimeLayout),
			formatOptional(r.CompletedAt),
			escape(r.ID),
		}
		b.WriteString(strings.Join(fields, string(Delimiter)))
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// Decode parses backup file bytes. Malformed rows are skipped, not fatal:
// the second return value counts them. A missing or unusable header is an
// error since no row could be interpreted.
func Decode(data []byte) ([]storage.Reminder, int, error) {
	lines := splitLines(string(data))
	if len(lines) == 0 {
		return nil, 0, nil
	}

	pos, err := headerPositions(lines[0])
	if err != nil {
		return nil, 0, err
	}

	var records []storage.Reminder
	skipped := 0
	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		r, err := decodeRow(line, pos)
		if err != nil {
			skipped++
			continue
		}
		records = append(records, r)
	}
	return records, skipped, nil
}

func headerPositions(header string) (map[string]int, error) {
	names := splitFields(header)
	pos := make(map[string]int, len(names))
	for i, n := range names {
		pos[strings.ToLower(strings.TrimSpace(n))] = i
	}
	for _, c := range columns {
		if _, ok := pos[c]; !ok {
			return nil, fmt.Errorf("backup header missing column %q", c)
		}
	}
	return pos, nil
}

func decodeRow(line string, pos map[string]int) (storage.Reminder, error) {
	fields := splitFields(line)
	get := func(col string) (string, error) {
		i := pos[col]
		if i >= len(fields) {
			return "", fmt.Errorf("row has %d fields, column %q is at %d", len(fields), col, i)
		}
		return fields[i], nil
	}

	var r storage.Reminder
	var err error

	if r.Title, err = get("title"); err != nil {
		return storage.Reminder{}, err
	}
	if r.Notes, err = get("notes"); err != nil {
		return storage.Reminder{}, err
	}
	if r.ID, err = get("id"); err != nil {
		return storage.Reminder{}, err
	}

	if r.NextTrigger, err = parseTimeField(get, "next_trigger", true); err != nil {
		return storage.Reminder{}, err
	}
	if r.Original, err = parseTimeField(get, "original", true); err != nil {
		return storage.Reminder{}, err
	}
	if r.CreatedAt, err = parseTimeField(get, "created_at", true); err != nil {
		return storage.Reminder{}, err
	}
	if r.SnoozeUntil, err = parseTimeField(get, "snooze_until", false); err != nil {
		return storage.Reminder{}, err
	}
	if r.CompletedAt, err = parseTimeField(get, "completed_at", false); err != nil {
		return storage.Reminder{}, err
	}
	r.UpdatedAt = r.CreatedAt

	ruleText, err := get("recurrence")
	if err != nil {
		return storage.Reminder{}, err
	}
	if r.Rule, err = recurrence.Parse(ruleText); err != nil {
		return storage.Reminder{}, err
	}

	if r.Enabled, err = parseBoolField(get, "enabled"); err != nil {
		return storage.Reminder{}, err
	}
	if r.Snoozed, err = parseBoolField(get, "snoozed"); err != nil {
		return storage.Reminder{}, err
	}
	return r, nil
}

func parseTimeField(get func(string) (string, error), col string, required bool) (time.Time, error) {
	s, err := get(col)
	if err != nil {
		return time.Time{}, err
	}
	if s == "" {
		if required {
			return time.Time{}, fmt.Errorf("column %q is empty", col)
		}
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(TimeLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %q: %w", col, err)
	}
	return t, nil
}

func parseBoolField(get func(string) (string, error), col string) (bool, error) {
	s, err := get(col)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(s) {
	case "true", "1":
		return true, nil
	case "false", "0", "":
		return false, nil
	default:
		return false, fmt.Errorf("column %q has non-boolean value %q", col, s)
	}
}

func formatOptional(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(TimeLayout)
}

// escape protects the reserved characters: backslash, the delimiter, newline
// and carriage return. unescapeInto reverses each exactly.
func escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case rune(Delimiter):
			b.WriteByte('\\')
			b.WriteRune(r)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// splitFields splits a row on unescaped delimiters and unescapes each field.
func splitFields(line string) []string {
	var fields []string
	var b strings.Builder
	escaped := false
	for _, r := range line {
		if escaped {
			switch r {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			default:
				// Covers \\ and \<delimiter>; anything else passes through.
				b.WriteRune(r)
			}
			escaped = false
			continue
		}
		switch r {
		case '\\':
			escaped = true
		case rune(Delimiter):
			fields = append(fields, b.String())
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	fields = append(fields, b.String())
	return fields
}

// splitLines splits on newlines, tolerating CRLF endings and a trailing
// newline. Embedded newlines inside fields are escaped, so this is safe.
func splitLines(s string) []string {
	raw := strings.Split(s, "\n")
	var lines []string
	for _, l := range raw {
		l = strings.TrimSuffix(l, "\r")
		if l == "" {
			continue
		}
		lines = append(lines, l)
	}
	return lines
}
