package track

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/planbiir/gpace/internal/geo"
)

// timestamp layouts seen in Apple Health routes and GPX exports
var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05 Z07:00",
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseTimestamp tries multiple timestamp formats. Values without a zone are UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrUnparsableTimestamp)
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrUnparsableTimestamp, s)
}

// Consolidate merges the positions of all route files of one workout into
// a single route ordered by timestamp. Exact duplicates are dropped.
func Consolidate(routes ...[]geo.Position) []geo.Position {
	var total int
	for _, r := range routes {
		total += len(r)
	}

	merged := make([]geo.Position, 0, total)
	for _, r := range routes {
		merged = append(merged, r...)
	}

	// ties on time are ordered by coordinates so duplicates end up adjacent
	slices.SortStableFunc(merged, func(a, b geo.Position) int {
		return cmp.Or(
			a.Time.Compare(b.Time),
			cmp.Compare(a.Lat, b.Lat),
			cmp.Compare(a.Lon, b.Lon),
		)
	})

	return slices.CompactFunc(merged, func(a, b geo.Position) bool {
		return a.Lat == b.Lat && a.Lon == b.Lon && a.Time.Equal(b.Time)
	})
}

// Summary returns basic statistics about a route
func Summary(points []geo.Position) (pointCount int, duration time.Duration, distance float64) {
	pointCount = len(points)
	if len(points) < 2 {
		return
	}

	duration = points[len(points)-1].Time.Sub(points[0].Time)
	for i := 1; i < len(points); i++ {
		distance += geo.Distance(points[i-1], points[i])
	}
	return
}
