package ledger

import (
	"cmp"
	"slices"
	"time"

	"github.com/planbiir/gpace/internal/segment"
)

// Entry is one flagged interval of one route
type Entry struct {
	RouteID      string
	WorkoutStart time.Time
	segment.PenaltyEvent
}

type key struct {
	route    string
	from, to int
}

// Ledger collects penalty events of a whole run. The same interval seen
// from several overlapping windows is kept once.
type Ledger struct {
	entries []Entry
	seen    map[key]struct{}
}

// New creates an empty ledger
func New() *Ledger {
	return &Ledger{seen: make(map[key]struct{})}
}

// Record adds the events of one route, skipping intervals already recorded.
// It returns how many events were new.
func (l *Ledger) Record(routeID string, workoutStart time.Time, events ...segment.PenaltyEvent) int {
	var added int
	for _, ev := range events {
		k := key{route: routeID, from: ev.From, to: ev.To}
		if _, ok := l.seen[k]; ok {
			continue
		}
		l.seen[k] = struct{}{}
		l.entries = append(l.entries, Entry{RouteID: routeID, WorkoutStart: workoutStart, PenaltyEvent: ev})
		added++
	}
	return added
}

// Len returns the number of distinct flagged intervals
func (l *Ledger) Len() int {
	return len(l.entries)
}

// Entries returns a copy of the ledger ordered by event time
func (l *Ledger) Entries() []Entry {
	out := slices.Clone(l.entries)
	slices.SortStableFunc(out, func(a, b Entry) int {
		return cmp.Or(
			a.At.Compare(b.At),
			cmp.Compare(a.RouteID, b.RouteID),
			cmp.Compare(a.From, b.From),
		)
	})
	return out
}
