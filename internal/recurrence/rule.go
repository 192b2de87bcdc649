package recurrence

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind enumerates the supported recurrence shapes.
type Kind int

const (
	None Kind = iota
	Daily
	EveryNDays
	Weekly
	Monthly
	Yearly
)

// Rule is a tagged union: Kind selects the variant, N is only meaningful for
// EveryNDays and Days only for Weekly.
type Rule struct {
	Kind Kind
	N    int
	Days []time.Weekday
}

// IsRecurring reports whether the rule produces further occurrences.
func (r Rule) IsRecurring() bool {
	return r.Kind != None
}

// Validate checks the variant-specific parameters.
func (r Rule) Validate() error {
	switch r.Kind {
	case None, Daily, Monthly, Yearly:
		return nil
	case EveryNDays:
		if r.N < 1 {
			return fmt.Errorf("every-n-days interval must be >= 1, got %d", r.N)
		}
		return nil
	case Weekly:
		if len(r.Days) == 0 {
			return fmt.Errorf("weekly rule requires at least one weekday")
		}
		return nil
	default:
		return fmt.Errorf("unknown recurrence kind %d", r.Kind)
	}
}

var dayAbbr = map[time.Weekday]string{
	time.Monday:    "MON",
	time.Tuesday:   "TUE",
	time.Wednesday: "WED",
	time.Thursday:  "THU",
	time.Friday:    "FRI",
	time.Saturday:  "SAT",
	time.Sunday:    "SUN",
}

var abbrDay = func() map[string]time.Weekday {
	m := make(map[string]time.Weekday, len(dayAbbr))
	for d, a := range dayAbbr {
		m[a] = d
	}
	return m
}()

// String renders the rule in the textual form used by backup files:
// NONE, DAILY, EVERY_N_DAYS:<n>, WEEKLY:<abbr,abbr,...>, MONTHLY, YEARLY.
func (r Rule) String() string {
	switch r.Kind {
	case Daily:
		return "DAILY"
	case EveryNDays:
		return "EVERY_N_DAYS:" + strconv.Itoa(r.N)
	case Weekly:
		days := append([]time.Weekday(nil), r.Days...)
		sort.Slice(days, func(i, j int) bool { return weekOrder(days[i]) < weekOrder(days[j]) })
		abbrs := make([]string, len(days))
		for i, d := range days {
			abbrs[i] = dayAbbr[d]
		}
		return "WEEKLY:" + strings.Join(abbrs, ",")
	case Monthly:
		return "MONTHLY"
	case Yearly:
		return "YEARLY"
	default:
		return "NONE"
	}
}

// weekOrder sorts Monday first so WEEKLY:MON,...,SUN reads naturally.
func weekOrder(d time.Weekday) int {
	if d == time.Sunday {
		return 7
	}
	return int(d)
}

// Parse is the inverse of String. Unknown forms are an error; weekday
// abbreviations are case-insensitive and duplicates collapse.
func Parse(s string) (Rule, error) {
	s = strings.TrimSpace(s)
	upper := strings.ToUpper(s)
	switch upper {
	case "", "NONE":
		return Rule{}, nil
	case "DAILY":
		return Rule{Kind: Daily}, nil
	case "MONTHLY":
		return Rule{Kind: Monthly}, nil
	case "YEARLY":
		return Rule{Kind: Yearly}, nil
	}

	if rest, ok := strings.CutPrefix(upper, "EVERY_N_DAYS:"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(rest))
		if err != nil {
			return Rule{}, fmt.Errorf("parsing interval in %q: %w", s, err)
		}
		r := Rule{Kind: EveryNDays, N: n}
		if err := r.Validate(); err != nil {
			return Rule{}, err
		}
		return r, nil
	}

	if rest, ok := strings.CutPrefix(upper, "WEEKLY:"); ok {
		seen := make(map[time.Weekday]bool)
		var days []time.Weekday
		for _, part := range strings.Split(rest, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			d, ok := abbrDay[part]
			if !ok {
				return Rule{}, fmt.Errorf("unknown weekday %q in %q", part, s)
			}
			if !seen[d] {
				seen[d] = true
				days = append(days, d)
			}
		}
		r := Rule{Kind: Weekly, Days: days}
		if err := r.Validate(); err != nil {
			return Rule{}, err
		}
		return r, nil
	}

	return Rule{}, fmt.Errorf("unknown recurrence %q", s)
}

// Equal compares two rules, treating Weekly day sets as sets.
func (r Rule) Equal(o Rule) bool {
	if r.Kind != o.Kind {
		return false
	}
	switch r.Kind {
	case EveryNDays:
		return r.N == o.N
	case Weekly:
		if len(r.Days) != len(o.Days) {
			return false
		}
		set := make(map[time.Weekday]bool, len(r.Days))
		for _, d := range r.Days {
			set[d] = true
		}
		for _, d := range o.Days {
			if !set[d] {
				return false
			}
		}
		return true
	default:
		return true
	}
}
