package snooze

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind selects the preset variant.
type Kind int

const (
	// RelativeMinutes snoozes n minutes from now.
	RelativeMinutes Kind = iota
	// RelativeDays snoozes n days from now.
	RelativeDays
	// TimeOfDay snoozes to the next occurrence of a wall-clock time:
	// today if still in the future, else tomorrow.
	TimeOfDay
)

// Preset is a pure function from "now" to a snooze target. N holds the
// minute/day count for the relative variants; Hour/Minute the wall-clock
// time for TimeOfDay.
type Preset struct {
	Kind   Kind
	N      int
	Hour   int
	Minute int
}

// Resolve computes the snooze target for the given instant.
func (p Preset) Resolve(now time.Time) time.Time {
	switch p.Kind {
	case RelativeMinutes:
		return now.Add(time.Duration(p.N) * time.Minute)
	case RelativeDays:
		return now.AddDate(0, 0, p.N)
	case TimeOfDay:
		target := time.Date(now.Year(), now.Month(), now.Day(), p.Hour, p.Minute, 0, 0, now.Location())
		if !target.After(now) {
			target = target.AddDate(0, 0, 1)
		}
		return target
	default:
		return now
	}
}

// Validate checks variant parameters.
func (p Preset) Validate() error {
	switch p.Kind {
	case RelativeMinutes, RelativeDays:
		if p.N < 1 {
			return fmt.Errorf("relative preset count must be >= 1, got %d", p.N)
		}
		return nil
	case TimeOfDay:
		if p.Hour < 0 || p.Hour > 23 || p.Minute < 0 || p.Minute > 59 {
			return fmt.Errorf("invalid time of day %02d:%02d", p.Hour, p.Minute)
		}
		return nil
	default:
		return fmt.Errorf("unknown preset kind %d", p.Kind)
	}
}

// String renders the compact form presets are persisted and displayed in:
// "15m", "2d", "08:30".
func (p Preset) String() string {
	switch p.Kind {
	case RelativeMinutes:
		return strconv.Itoa(p.N) + "m"
	case RelativeDays:
		return strconv.Itoa(p.N) + "d"
	case TimeOfDay:
		return fmt.Sprintf("%02d:%02d", p.Hour, p.Minute)
	default:
		return "?"
	}
}

// Parse is the inverse of String.
func Parse(s string) (Preset, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Preset{}, fmt.Errorf("empty preset")
	}

	if hh, mm, ok := strings.Cut(s, ":"); ok {
		h, err := strconv.Atoi(hh)
		if err != nil {
			return Preset{}, fmt.Errorf("parsing hour in %q: %w", s, err)
		}
		m, err := strconv.Atoi(mm)
		if err != nil {
			return Preset{}, fmt.Errorf("parsing minute in %q: %w", s, err)
		}
		p := Preset{Kind: TimeOfDay, Hour: h, Minute: m}
		if err := p.Validate(); err != nil {
			return Preset{}, err
		}
		return p, nil
	}

	unit := s[len(s)-1]
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return Preset{}, fmt.Errorf("parsing count in %q: %w", s, err)
	}
	var p Preset
	switch unit {
	case 'm':
		p = Preset{Kind: RelativeMinutes, N: n}
	case 'd':
		p = Preset{Kind: RelativeDays, N: n}
	default:
		return Preset{}, fmt.Errorf("unknown preset unit %q in %q", string(unit), s)
	}
	if err := p.Validate(); err != nil {
		return Preset{}, err
	}
	return p, nil
}

// Defaults is the preset list used until the user configures their own.
func Defaults() []Preset {
	return []Preset{
		{Kind: RelativeMinutes, N: 15},
		{Kind: RelativeMinutes, N: 60},
		{Kind: RelativeDays, N: 1},
		{Kind: TimeOfDay, Hour: 9, Minute: 0},
	}
}
