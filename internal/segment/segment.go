package segment

import (
	"iter"
	"math"
	"time"

	"github.com/planbiir/gpace/internal/geo"
)

// Params controls how GPS noise is penalized
type Params struct {
	MaxSpeedKmh    float64 // intervals faster than this are penalized; <= 0 disables
	PenaltySeconds float64 // seconds added per penalized interval
}

// DefaultParams returns the running defaults
func DefaultParams() Params {
	return Params{
		MaxSpeedKmh:    20.0,
		PenaltySeconds: 3.0,
	}
}

// PenaltyEvent is one interval flagged as faster than the speed limit
type PenaltyEvent struct {
	From, To int       // point indices of the interval, To == From+1
	SpeedKmh float64   // instantaneous speed of the interval
	At       time.Time // timestamp of the later point
	Seconds  float64   // penalty applied
}

// Candidate is one window of a route covering the target distance.
// An unrealizable window has Reached false, End -1 and infinite durations.
type Candidate struct {
	Start, End int
	Distance   float64 // meters actually covered
	Raw        float64 // elapsed seconds between Start and End
	Adjusted   float64 // Raw plus penalties
	Penalties  []PenaltyEvent
	Reached    bool
}

// Outcome is the best window of one route for one target distance
type Outcome struct {
	Candidate
	Found bool
}

// profile holds the per-interval prefix sums of one route.
// Index k describes the interval between points k-1 and k.
type profile struct {
	cumDist []float64
	cumTime []float64
	cumFlag []int
	flagged []PenaltyEvent // ordered by To
}

func newProfile(points []geo.Position, params Params) *profile {
	n := len(points)
	p := &profile{
		cumDist: make([]float64, n),
		cumTime: make([]float64, n),
		cumFlag: make([]int, n),
	}

	for k := 1; k < n; k++ {
		d := geo.Distance(points[k-1], points[k])
		dt := max(0, points[k].Time.Sub(points[k-1].Time).Seconds())

		p.cumDist[k] = p.cumDist[k-1] + d
		p.cumTime[k] = p.cumTime[k-1] + dt
		p.cumFlag[k] = p.cumFlag[k-1]

		// zero elapsed time with movement is jitter, not a speed violation
		if dt <= 0 || params.MaxSpeedKmh <= 0 {
			continue
		}
		speed := geo.SpeedKmh(d, dt)
		if speed > params.MaxSpeedKmh {
			p.cumFlag[k]++
			p.flagged = append(p.flagged, PenaltyEvent{
				From:     k - 1,
				To:       k,
				SpeedKmh: speed,
				At:       points[k].Time,
				Seconds:  params.PenaltySeconds,
			})
		}
	}

	return p
}

// Scan yields one candidate per start index of the route, in ascending
// start order. Both window bounds only move forward, so a full scan is
// O(n) after the O(n) interval pass.
//
// Routes with fewer than 2 points yield nothing. A target <= 0 is met at
// the start point itself: every window is [l, l] with zero duration.
// Start indices from which the target cannot be reached yield an
// unrealizable candidate.
func Scan(points []geo.Position, target float64, params Params) iter.Seq[Candidate] {
	return func(yield func(Candidate) bool) {
		n := len(points)
		if n < 2 {
			return
		}

		if target <= 0 {
			for l := range n {
				if !yield(Candidate{Start: l, End: l, Reached: true}) {
					return
				}
			}
			return
		}

		p := newProfile(points, params)
		reachable := !math.IsNaN(target)

		r := 0
		lo, hi := 0, 0 // p.flagged[lo:hi] lie inside the current window
		for l := range n {
			if r <= l {
				r = l + 1
			}
			for reachable && r < n && p.cumDist[r]-p.cumDist[l] < target {
				r++
			}
			if !reachable || r >= n {
				if !yield(unreachable(l)) {
					return
				}
				continue
			}

			for lo < len(p.flagged) && p.flagged[lo].To <= l {
				lo++
			}
			for hi < len(p.flagged) && p.flagged[hi].To <= r {
				hi++
			}

			raw := p.cumTime[r] - p.cumTime[l]
			flagged := p.cumFlag[r] - p.cumFlag[l]
			c := Candidate{
				Start:     l,
				End:       r,
				Distance:  p.cumDist[r] - p.cumDist[l],
				Raw:       raw,
				Adjusted:  raw + float64(flagged)*params.PenaltySeconds,
				Penalties: p.flagged[lo:hi:hi],
				Reached:   true,
			}
			if !yield(c) {
				return
			}
		}
	}
}

// FindBest returns the window with the lowest adjusted duration. Ties go
// to the earliest start. When no window reaches the target, Found is false
// and the adjusted duration is +Inf.
func FindBest(points []geo.Position, target float64, params Params) Outcome {
	best := NoOutcome()
	for c := range Scan(points, target, params) {
		best.Consider(c)
	}
	return best
}

// NoOutcome is the outcome of a route without any realized window
func NoOutcome() Outcome {
	return Outcome{Candidate: unreachable(-1)}
}

// Consider keeps c if it is a realized window strictly faster than the
// current best, and reports whether it did.
func (o *Outcome) Consider(c Candidate) bool {
	if !c.Reached || c.Adjusted >= o.Adjusted {
		return false
	}
	*o = Outcome{Candidate: c, Found: true}
	return true
}

func unreachable(start int) Candidate {
	return Candidate{
		Start:    start,
		End:      -1,
		Raw:      math.Inf(1),
		Adjusted: math.Inf(1),
	}
}
