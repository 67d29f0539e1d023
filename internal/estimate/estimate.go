package estimate

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/planbiir/gpace/internal/rank"
	"github.com/planbiir/gpace/internal/speedstats"
)

// Strategy selects how an optimal time is projected
type Strategy string

const (
	Linear   Strategy = "linear"   // regression of time against age
	Weighted Strategy = "weighted" // exponentially decayed mean time
	Speed    Strategy = "speed"    // decayed mean speed projected to the target
	Median   Strategy = "median"   // median of the fastest times
	Ensemble Strategy = "ensemble" // mean of median, weighted and speed
)

// DefaultHalfLifeDays is the age at which a performance weighs half as much
const DefaultHalfLifeDays = 30.0

// Sample is one observed performance
type Sample struct {
	Seconds float64
	Date    time.Time // zero when unknown
	Meters  float64   // distance actually covered, 0 when unknown
}

// Samples converts a ranking, best first, into samples
func Samples(results []rank.Result) []Sample {
	out := make([]Sample, len(results))
	for i, r := range results {
		out[i] = Sample{Seconds: r.Adjusted, Date: r.WorkoutStart, Meters: r.Covered}
	}
	return out
}

// Estimator projects optimal times relative to a reference instant
type Estimator struct {
	Now          time.Time
	HalfLifeDays float64
}

// New returns an estimator anchored at now
func New(now time.Time) Estimator {
	return Estimator{Now: now, HalfLifeDays: DefaultHalfLifeDays}
}

func (e Estimator) daysAgo(d time.Time) float64 {
	if d.IsZero() {
		return math.Inf(1)
	}
	return e.Now.Sub(d).Hours() / 24
}

func (e Estimator) weight(d time.Time) float64 {
	days := e.daysAgo(d)
	if math.IsInf(days, 1) {
		return 0
	}
	return math.Pow(2, -days/e.HalfLifeDays)
}

// Linear fits time against age over the 5 fastest dated samples. An
// improving trend is extrapolated to today, never beyond 10% under the
// best observed time; otherwise the best observed time is returned.
// It needs 3 dated samples and returns +Inf otherwise.
func (e Estimator) Linear(samples []Sample) float64 {
	if len(samples) < 3 {
		return math.Inf(1)
	}
	recent := samples[:min(5, len(samples))]

	var x, y []float64
	minObserved := math.Inf(1)
	for _, s := range recent {
		minObserved = min(minObserved, s.Seconds)
		if s.Date.IsZero() {
			continue
		}
		x = append(x, e.daysAgo(s.Date))
		y = append(y, s.Seconds)
	}
	if len(x) < 3 {
		return math.Inf(1)
	}

	var intercept, slope float64
	if stat.Variance(x, nil) == 0 {
		intercept = stat.Mean(y, nil)
	} else {
		intercept, slope = stat.LinearRegression(x, y, nil, false)
	}

	if slope < 0 {
		return max(minObserved*0.90, min(intercept, minObserved))
	}
	return minObserved
}

// Weighted is the age-weighted mean time of the 10 fastest dated samples.
// It needs 2 of them.
func (e Estimator) Weighted(samples []Sample) float64 {
	if len(samples) < 2 {
		return math.Inf(1)
	}

	var times, weights []float64
	for _, s := range samples[:min(10, len(samples))] {
		if s.Date.IsZero() {
			continue
		}
		times = append(times, s.Seconds)
		weights = append(weights, e.weight(s.Date))
	}
	if len(times) < 2 || floats.Sum(weights) == 0 {
		return math.Inf(1)
	}
	return stat.Mean(times, weights)
}

// Speed projects the age-weighted mean speed of the 10 fastest samples to
// target meters. Samples without a covered distance count as target.
func (e Estimator) Speed(samples []Sample, target float64) float64 {
	if len(samples) < 2 || target <= 0 {
		return math.Inf(1)
	}

	var speeds, weights []float64
	for _, s := range samples[:min(10, len(samples))] {
		meters := s.Meters
		if meters <= 0 {
			meters = target
		}
		if s.Date.IsZero() || s.Seconds <= 0 {
			continue
		}
		speeds = append(speeds, meters/1000/(s.Seconds/3600))
		weights = append(weights, e.weight(s.Date))
	}
	if len(speeds) < 2 || floats.Sum(weights) == 0 {
		return math.Inf(1)
	}

	avg := stat.Mean(speeds, weights)
	if avg <= 0 {
		return math.Inf(1)
	}
	return target / 1000 / avg * 3600
}

// Median is the interpolated median of the 15 fastest times
func (e Estimator) Median(samples []Sample) float64 {
	if len(samples) == 0 {
		return math.Inf(1)
	}
	times := make([]float64, 0, 15)
	for _, s := range samples[:min(15, len(samples))] {
		times = append(times, s.Seconds)
	}
	return speedstats.Percentile(times, 50)
}

// Estimate returns the optimal time for target meters. It reports false
// with fewer than 2 samples or when the strategy cannot produce a finite
// positive time.
func (e Estimator) Estimate(samples []Sample, target float64, strategy Strategy) (float64, bool) {
	if len(samples) < 2 {
		return 0, false
	}

	var est float64
	switch strategy {
	case Linear:
		est = e.Linear(samples)
	case Weighted:
		est = e.Weighted(samples)
	case Speed:
		est = e.Speed(samples, target)
	case Median:
		est = e.Median(samples)
	case Ensemble:
		var valid []float64
		for _, v := range []float64{e.Median(samples), e.Weighted(samples), e.Speed(samples, target)} {
			if usable(v) {
				valid = append(valid, v)
			}
		}
		if len(valid) == 0 {
			return 0, false
		}
		est = stat.Mean(valid, nil)
	default:
		return 0, false
	}

	if !usable(est) {
		return 0, false
	}
	return est, true
}

func usable(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v) && v > 0
}

// ParseStrategy validates a strategy name
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(s); st {
	case Linear, Weighted, Speed, Median, Ensemble:
		return st, nil
	}
	return "", fmt.Errorf("unknown estimation strategy %q", s)
}
