package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planbiir/gpace/internal/segment"
)

var base = time.Date(2022, 3, 1, 8, 0, 0, 0, time.UTC)

func event(from int, at time.Duration) segment.PenaltyEvent {
	return segment.PenaltyEvent{From: from, To: from + 1, SpeedKmh: 40, At: base.Add(at), Seconds: 3}
}

func TestRecordDeduplicates(t *testing.T) {
	l := New()

	assert.Equal(t, 1, l.Record("wk_0", base, event(20, 200*time.Second)))
	// the same interval again from an overlapping window
	assert.Equal(t, 0, l.Record("wk_0", base, event(20, 200*time.Second)))
	// same indices in another route are distinct
	assert.Equal(t, 1, l.Record("wk_1", base, event(20, 300*time.Second)))

	assert.Equal(t, 2, l.Len())
}

func TestEntriesSortedByTime(t *testing.T) {
	l := New()
	l.Record("wk_1", base, event(5, 50*time.Second), event(1, 10*time.Second))
	l.Record("wk_0", base, event(9, 30*time.Second), event(3, 10*time.Second))

	entries := l.Entries()
	require.Len(t, entries, 4)

	for i := 1; i < len(entries); i++ {
		assert.False(t, entries[i].At.Before(entries[i-1].At))
	}
	// equal timestamps fall back to route then index
	assert.Equal(t, "wk_0", entries[0].RouteID)
	assert.Equal(t, "wk_1", entries[1].RouteID)
	assert.Equal(t, 9, entries[2].From)
}

func TestEntriesIsACopy(t *testing.T) {
	l := New()
	l.Record("wk_0", base, event(1, 0))

	entries := l.Entries()
	entries[0].RouteID = "changed"

	assert.Equal(t, "wk_0", l.Entries()[0].RouteID)
}
