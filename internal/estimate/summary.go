package estimate

import (
	"github.com/planbiir/gpace/internal/rank"
)

// Confidence labels
const (
	InsufficientData   = "insufficient data"
	UnableToEstimate   = "unable to estimate"
	FlatTrend          = "(flat/recovery trend)"
	ModestImprovement  = "(modest improvement)"
	SteadyImprovement  = "(steady improvement)"
	OptimisticEstimate = "(strong improvement — optimistic)"
	StrongTrend        = "(strong upward trend)"
)

// Summary is the projection for one distance
type Summary struct {
	Optimal        float64 `json:"optimal_s,omitempty"`
	HasOptimal     bool    `json:"-"`
	Best           float64 `json:"best_s,omitempty"`
	HasBest        bool    `json:"-"`
	ImprovementPct float64 `json:"improvement_pct"`
	Confidence     string  `json:"confidence"`
	Count          int     `json:"count"`
}

// Summarize projects an ensemble optimal time for every ranking
func (e Estimator) Summarize(results map[float64][]rank.Result) map[float64]Summary {
	out := make(map[float64]Summary, len(results))

	for d, ranking := range results {
		s := Summary{Count: len(ranking)}
		if len(ranking) > 0 {
			s.Best, s.HasBest = ranking[0].Adjusted, true
		}
		if len(ranking) < 2 {
			s.Confidence = InsufficientData
			out[d] = s
			continue
		}

		est, ok := e.Estimate(Samples(ranking), d, Ensemble)
		if !ok {
			s.Confidence = UnableToEstimate
			out[d] = s
			continue
		}

		s.Optimal, s.HasOptimal = est, true
		if s.Best > 0 {
			s.ImprovementPct = (s.Best - est) / s.Best * 100
		}
		s.Confidence = Confidence(est, s.Best, s.ImprovementPct)
		out[d] = s
	}

	return out
}

// Confidence labels an estimate by how far it lies below the best time
func Confidence(estimated, best, improvementPct float64) string {
	switch {
	case improvementPct <= 1:
		return FlatTrend
	case improvementPct <= 3:
		return ModestImprovement
	case improvementPct <= 5:
		return SteadyImprovement
	}

	if best > 0 && estimated > 0 && (best-estimated)/best > 0.10 {
		return OptimisticEstimate
	}
	return StrongTrend
}
