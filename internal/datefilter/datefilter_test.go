package datefilter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncludedInstantBounds(t *testing.T) {
	start := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2022, 12, 31, 23, 59, 59, 0, time.UTC)
	r := Range{Start: Bound{At: start}, End: Bound{At: end}}

	assert.True(t, Included(start, r))
	assert.False(t, Included(start.Add(-time.Nanosecond), r))
	assert.True(t, Included(end, r))
	assert.False(t, Included(end.Add(time.Nanosecond), r))
}

func TestIncludedUnbounded(t *testing.T) {
	ts := time.Date(1999, 6, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, Included(ts, Range{}))
	assert.True(t, Included(ts, Range{End: Bound{At: ts}}))
	assert.False(t, Included(ts, Range{Start: Bound{At: ts.Add(time.Second)}}))
}

func TestIncludedComparesInstantsAcrossOffsets(t *testing.T) {
	cet := time.FixedZone("CET", 3600)
	bound := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	r := Range{Start: Bound{At: bound}}

	// 00:30 CET is 23:30 UTC the day before
	assert.False(t, Included(time.Date(2022, 1, 1, 0, 30, 0, 0, cet), r))
	assert.True(t, Included(time.Date(2022, 1, 1, 1, 0, 0, 0, cet), r))
}

func TestIncludedDateOnlyUsesWorkoutOffset(t *testing.T) {
	r, err := ParseRange("20220101", "20220131")
	require.NoError(t, err)

	cet := time.FixedZone("CET", 3600)
	// same instant as 2021-12-31 23:30 UTC, but Jan 1st locally
	assert.True(t, Included(time.Date(2022, 1, 1, 0, 30, 0, 0, cet), r))
	assert.True(t, Included(time.Date(2022, 1, 31, 23, 59, 0, 0, cet), r))
	assert.False(t, Included(time.Date(2022, 2, 1, 0, 0, 0, 0, cet), r))
	assert.False(t, Included(time.Date(2021, 12, 31, 23, 59, 59, 0, cet), r))
}

func TestParseBound(t *testing.T) {
	b, err := ParseBound("20211226")
	require.NoError(t, err)
	assert.True(t, b.DateOnly)
	assert.Equal(t, time.December, b.At.Month())

	b, err = ParseBound("2021-12-26")
	require.NoError(t, err)
	assert.True(t, b.DateOnly)

	b, err = ParseBound("2021-12-26T10:00:00+01:00")
	require.NoError(t, err)
	assert.False(t, b.DateOnly)

	b, err = ParseBound("")
	require.NoError(t, err)
	assert.False(t, b.IsSet())

	_, err = ParseBound("26/12/2021")
	assert.Error(t, err)
}

func TestParseRangeRejectsInverted(t *testing.T) {
	_, err := ParseRange("20220201", "20220101")
	assert.Error(t, err)
}
