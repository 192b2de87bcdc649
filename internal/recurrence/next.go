package recurrence

import "time"

// NextOccurrence computes the first trigger after the given instant.
//
// The time-of-day (hour, minute; seconds are zeroed) always comes from the
// anchor — the instant the user originally chose — and only the date component
// advances from after. The function is pure: it is called both from the live
// fire path and from boot recovery, and the two must agree.
//
// Returns ok=false for a None rule and, defensively, for a Weekly rule whose
// day set is empty or an EveryNDays rule with a non-positive interval; those
// must never reach this package but must not derail scheduling if they do.
func NextOccurrence(after, anchor time.Time, rule Rule) (time.Time, bool) {
	switch rule.Kind {
	case Daily:
		return atAnchorTime(after.AddDate(0, 0, 1), anchor), true

	case EveryNDays:
		if rule.N < 1 {
			return time.Time{}, false
		}
		return atAnchorTime(after.AddDate(0, 0, rule.N), anchor), true

	case Weekly:
		if len(rule.Days) == 0 {
			return time.Time{}, false
		}
		want := make(map[time.Weekday]bool, len(rule.Days))
		for _, d := range rule.Days {
			want[d] = true
		}
		// At most 7 steps: the set is non-empty.
		next := after.AddDate(0, 0, 1)
		for i := 0; i < 7; i++ {
			if want[next.Weekday()] {
				return atAnchorTime(next, anchor), true
			}
			next = next.AddDate(0, 0, 1)
		}
		return time.Time{}, false

	case Monthly:
		y, m, _ := after.Date()
		return clampedDate(y, m+1, anchor, after.Location()), true

	case Yearly:
		y, m, _ := after.Date()
		return clampedDate(y+1, m, anchor, after.Location()), true

	default:
		return time.Time{}, false
	}
}

// atAnchorTime keeps d's date and substitutes the anchor's time-of-day.
func atAnchorTime(d, anchor time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), anchor.Hour(), anchor.Minute(), 0, 0, d.Location())
}

// clampedDate builds a date in the given year/month using the anchor's
// day-of-month, clamped to the month's length (Jan 31 -> Feb 28/29), at the
// anchor's time-of-day. month may be out of [1,12]; time.Date normalizes it.
func clampedDate(year int, month time.Month, anchor time.Time, loc *time.Location) time.Time {
	// Normalize year/month first so the length check targets the right month.
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	day := anchor.Day()
	if last := daysIn(first.Year(), first.Month(), loc); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, anchor.Hour(), anchor.Minute(), 0, 0, loc)
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	// Day zero of the following month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
