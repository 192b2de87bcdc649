package backup

import (
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/remindd/internal/recurrence"
)

// ImportedRow is one accepted line of a hand-authored import file.
type ImportedRow struct {
	Title string
	Notes string
	At    time.Time
	Rule  recurrence.Rule
}

// importTimeLayouts are accepted in order; hand-authored files often omit
// the time-of-day.
var importTimeLayouts = []string{TimeLayout, "2006-01-02"}

// ParseImport reads the loose import format: a header with at least "title"
// and "datetime" columns (case-insensitive), optional "recurrence" and
// "notes", separated by commas or the backup delimiter. Unparseable lines
// are skipped and counted; the whole parse fails only when the header is
// unusable or a non-empty file yields zero rows.
func ParseImport(data []byte) ([]ImportedRow, int, error) {
	lines := splitLines(string(data))
	if len(lines) == 0 {
		return nil, 0, nil
	}

	sep := ","
	if strings.ContainsRune(lines[0], rune(Delimiter)) {
		sep = string(Delimiter)
	}

	pos := make(map[string]int)
	for i, name := range strings.Split(lines[0], sep) {
		pos[strings.ToLower(strings.TrimSpace(name))] = i
	}
	titleIdx, okTitle := pos["title"]
	dateIdx, okDate := pos["datetime"]
	if !okTitle || !okDate {
		return nil, 0, fmt.Errorf("import header must name title and datetime columns")
	}
	notesIdx, hasNotes := pos["notes"]
	ruleIdx, hasRule := pos["recurrence"]

	var rows []ImportedRow
	skipped := 0
	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, sep)
		at := func(i int) string {
			if i >= len(fields) {
				return ""
			}
			return strings.TrimSpace(fields[i])
		}

		row := ImportedRow{Title: at(titleIdx)}
		if row.Title == "" {
			skipped++
			continue
		}
		t, err := parseImportTime(at(dateIdx))
		if err != nil {
			skipped++
			continue
		}
		row.At = t
		if hasNotes {
			row.Notes = at(notesIdx)
		}
		if hasRule {
			rule, err := recurrence.Parse(at(ruleIdx))
			if err != nil {
				skipped++
				continue
			}
			row.Rule = rule
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 && skipped > 0 {
		return nil, skipped, fmt.Errorf("no usable rows in import file (%d skipped)", skipped)
	}
	return rows, skipped, nil
}

func parseImportTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty datetime")
	}
	for _, layout := range importTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized datetime %q", s)
}
