package speedstats

import (
	"cmp"
	"math"
	"slices"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/planbiir/gpace/internal/geo"
	"github.com/planbiir/gpace/internal/track"
)

// Thresholds are the speeds, in km/h, whose exceedances are counted
var Thresholds = []float64{20, 25, 30, 35, 40, 50}

// Percentiles reported by Summarize
var Percentiles = []float64{90, 95, 99, 99.9}

// Point is a position and the route file it was read from
type Point struct {
	geo.Position
	Source string
}

// Interval describes the move from the previous point to this one. The
// first interval of a sequence has zero duration, distance and speed.
type Interval struct {
	Time     time.Time
	Duration float64 // seconds, never negative
	Distance float64 // meters
	SpeedKmh float64
	Source   string
}

// ThresholdCount is the number of intervals faster than a threshold
type ThresholdCount struct {
	Kmh     float64
	Count   int
	Percent float64
}

// Summary describes the speed distribution of a set of intervals
type Summary struct {
	Count       int
	Min         float64
	Max         float64
	Mean        float64
	Median      float64
	Percentiles map[float64]float64
	Over        []ThresholdCount

	// intervals above 35 km/h, the usual signature of GPS jumps
	FastCount        int
	FastMeanDuration float64
	FastMaxDuration  float64

	Top []Interval
}

// Activity is the activity guessed from the P95 interval speed
type Activity struct {
	Kind        string
	P95Kmh      float64
	MaxSpeedKmh float64 // plausible upper bound for this activity
	SampleCount int
}

// PointsOn reads every source and keeps the points whose local calendar
// date is date (YYYY-MM-DD), ordered by time. Unreadable routes and bad
// timestamps are skipped.
func PointsOn(sources []*track.Source, date string) []Point {
	var points []Point
	for _, src := range sources {
		for p, err := range src.Positions() {
			if err != nil {
				continue
			}
			if p.Time.Format(time.DateOnly) == date {
				points = append(points, Point{Position: p, Source: src.Name})
			}
		}
	}

	slices.SortStableFunc(points, func(a, b Point) int {
		return a.Time.Compare(b.Time)
	})
	return points
}

// Intervals computes one row per point
func Intervals(points []Point) []Interval {
	rows := make([]Interval, len(points))
	for i, p := range points {
		rows[i] = Interval{Time: p.Time, Source: p.Source}
		if i == 0 {
			continue
		}

		prev := points[i-1]
		dur := max(0, p.Time.Sub(prev.Time).Seconds())
		dist := geo.Distance(prev.Position, p.Position)
		rows[i].Duration = dur
		rows[i].Distance = dist
		rows[i].SpeedKmh = geo.SpeedKmh(dist, dur)
	}
	return rows
}

// Summarize computes the speed distribution of intervals. It reports false
// when there is nothing to summarize.
func Summarize(intervals []Interval) (Summary, bool) {
	if len(intervals) == 0 {
		return Summary{}, false
	}

	speeds := make([]float64, len(intervals))
	for i, iv := range intervals {
		speeds[i] = iv.SpeedKmh
	}
	sorted := slices.Clone(speeds)
	slices.Sort(sorted)

	s := Summary{
		Count:       len(sorted),
		Min:         sorted[0],
		Max:         sorted[len(sorted)-1],
		Mean:        stat.Mean(sorted, nil),
		Median:      Percentile(sorted, 50),
		Percentiles: make(map[float64]float64, len(Percentiles)),
	}
	for _, p := range Percentiles {
		s.Percentiles[p] = Percentile(sorted, p)
	}

	for _, t := range Thresholds {
		count := 0
		for _, v := range speeds {
			if v > t {
				count++
			}
		}
		s.Over = append(s.Over, ThresholdCount{
			Kmh:     t,
			Count:   count,
			Percent: float64(count) / float64(len(speeds)) * 100,
		})
	}

	var fast []float64
	for _, iv := range intervals {
		if iv.SpeedKmh > 35 {
			fast = append(fast, iv.Duration)
		}
	}
	if len(fast) > 0 {
		s.FastCount = len(fast)
		s.FastMeanDuration = stat.Mean(fast, nil)
		s.FastMaxDuration = slices.Max(fast)
	}

	top := slices.Clone(intervals)
	slices.SortStableFunc(top, func(a, b Interval) int {
		return cmp.Compare(b.SpeedKmh, a.SpeedKmh)
	})
	s.Top = top[:min(10, len(top))]

	return s, true
}

// DetectActivity classifies intervals by their P95 speed
func DetectActivity(intervals []Interval) Activity {
	var speeds []float64
	for _, iv := range intervals {
		// m/s, within reasonable bounds
		v := iv.SpeedKmh / 3.6
		if iv.Duration > 0 && v > 0 && v < 100 {
			speeds = append(speeds, v)
		}
	}
	if len(speeds) == 0 {
		return Activity{Kind: "unknown", MaxSpeedKmh: 12.0 * 3.6}
	}

	p95 := Percentile(speeds, 95)

	a := Activity{P95Kmh: p95 * 3.6, SampleCount: len(speeds)}
	switch {
	case p95 <= 8.0: // 28.8 km/h
		a.Kind = "running/hiking"
		a.MaxSpeedKmh = 12.0 * 3.6
	case p95 <= 20.0: // 72 km/h
		a.Kind = "cycling"
		a.MaxSpeedKmh = 30.0 * 3.6
	default:
		a.Kind = "high-speed"
		a.MaxSpeedKmh = 50.0 * 3.6
	}
	return a
}

// Percentile returns the p-th percentile (0..100) of values using linear
// interpolation between closest ranks
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0.0
	}

	sorted := slices.Clone(values)
	slices.Sort(sorted)

	index := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))

	if lower == upper {
		return sorted[lower]
	}

	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}
