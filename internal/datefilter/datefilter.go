package datefilter

import (
	"fmt"
	"strings"
	"time"
)

// Bound is one side of a Range. A zero At means unbounded. A DateOnly bound
// matches every instant of that calendar day in the workout's own offset.
type Bound struct {
	At       time.Time
	DateOnly bool
}

// Range is an inclusive workout start filter
type Range struct {
	Start Bound
	End   Bound
}

// IsSet reports whether the bound restricts anything
func (b Bound) IsSet() bool {
	return !b.At.IsZero()
}

// Included reports whether a workout starting at start falls inside r
func Included(start time.Time, r Range) bool {
	if r.Start.IsSet() && compare(start, r.Start) < 0 {
		return false
	}
	if r.End.IsSet() && compare(start, r.End) > 0 {
		return false
	}
	return true
}

// compare orders start against b, by calendar day for date-only bounds
func compare(start time.Time, b Bound) int {
	if !b.DateOnly {
		return start.Compare(b.At)
	}

	y1, m1, d1 := start.Date()
	y2, m2, d2 := b.At.Date()
	switch {
	case y1 != y2:
		return cmpInt(y1, y2)
	case m1 != m2:
		return cmpInt(int(m1), int(m2))
	default:
		return cmpInt(d1, d2)
	}
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// ParseBound parses YYYYMMDD or YYYY-MM-DD as a date-only bound and
// RFC 3339 as an instant. An empty string is unbounded.
func ParseBound(s string) (Bound, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Bound{}, nil
	}

	for _, layout := range []string{"20060102", time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return Bound{At: t, DateOnly: true}, nil
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return Bound{At: t}, nil
	}

	return Bound{}, fmt.Errorf("invalid date %q: use YYYYMMDD, YYYY-MM-DD or RFC 3339", s)
}

// ParseRange parses both bounds and checks start is not after end
func ParseRange(start, end string) (Range, error) {
	var r Range
	var err error

	if r.Start, err = ParseBound(start); err != nil {
		return Range{}, fmt.Errorf("start date: %w", err)
	}
	if r.End, err = ParseBound(end); err != nil {
		return Range{}, fmt.Errorf("end date: %w", err)
	}
	if r.Start.IsSet() && r.End.IsSet() && r.Start.At.After(r.End.At) {
		return Range{}, fmt.Errorf("start date %s is after end date %s", start, end)
	}

	return r, nil
}
