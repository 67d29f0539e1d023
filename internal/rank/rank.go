package rank

import (
	"cmp"
	"math"
	"slices"
	"time"
)

// Result is one workout's best segment for a target distance
type Result struct {
	WorkoutID    string
	WorkoutStart time.Time
	Distance     float64 // target distance in meters
	Covered      float64 // meters actually covered by the window
	Raw          float64 // seconds
	Adjusted     float64 // seconds, used for ranking
	Start, End   int     // window bounds in the workout's route
	Penalties    int

	seq uint64
}

// SpeedKmh is the average speed over the covered distance at raw duration
func (r Result) SpeedKmh() float64 {
	if r.Raw <= 0 {
		return 0
	}
	return r.Covered / r.Raw * 3.6
}

// Aggregator keeps the N best results per target distance. It is not safe
// for concurrent use.
type Aggregator struct {
	n       int
	buckets map[float64][]Result
	seq     uint64
}

// New creates an aggregator keeping n results for each of distances
func New(n int, distances []float64) *Aggregator {
	a := &Aggregator{
		n:       max(n, 0),
		buckets: make(map[float64][]Result, len(distances)),
	}
	for _, d := range distances {
		a.buckets[d] = make([]Result, 0, a.n)
	}
	return a
}

// Offer inserts r into the ranking of distance and reports whether it was
// kept. Infinite or NaN durations and unconfigured distances are rejected.
func (a *Aggregator) Offer(distance float64, r Result) bool {
	bucket, ok := a.buckets[distance]
	if !ok || a.n == 0 {
		return false
	}
	if math.IsInf(r.Adjusted, 0) || math.IsNaN(r.Adjusted) {
		return false
	}

	a.seq++
	r.seq = a.seq
	r.Distance = distance

	pos, _ := slices.BinarySearchFunc(bucket, r, compare)
	if pos >= a.n {
		return false
	}

	bucket = slices.Insert(bucket, pos, r)
	if len(bucket) > a.n {
		bucket = bucket[:a.n]
	}
	a.buckets[distance] = bucket
	return true
}

// Results returns the ranking of one distance, best first
func (a *Aggregator) Results(distance float64) []Result {
	return slices.Clone(a.buckets[distance])
}

// Distances returns the configured distances in ascending order
func (a *Aggregator) Distances() []float64 {
	out := make([]float64, 0, len(a.buckets))
	for d := range a.buckets {
		out = append(out, d)
	}
	slices.Sort(out)
	return out
}

// All returns a copy of every ranking
func (a *Aggregator) All() map[float64][]Result {
	out := make(map[float64][]Result, len(a.buckets))
	for d, bucket := range a.buckets {
		out[d] = slices.Clone(bucket)
	}
	return out
}

// compare orders by adjusted duration, then earlier workout start, then
// discovery order. An unknown start ranks after any known one.
func compare(a, b Result) int {
	return cmp.Or(
		cmp.Compare(a.Adjusted, b.Adjusted),
		compareStart(a.WorkoutStart, b.WorkoutStart),
		cmp.Compare(a.seq, b.seq),
	)
}

func compareStart(a, b time.Time) int {
	switch {
	case a.IsZero() && b.IsZero():
		return 0
	case a.IsZero():
		return 1
	case b.IsZero():
		return -1
	}
	return a.Compare(b)
}
