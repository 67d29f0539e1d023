package analysis

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/rs/zerolog"

	"github.com/planbiir/gpace/internal/datefilter"
	"github.com/planbiir/gpace/internal/geo"
	"github.com/planbiir/gpace/internal/ledger"
	"github.com/planbiir/gpace/internal/rank"
	"github.com/planbiir/gpace/internal/segment"
	"github.com/planbiir/gpace/internal/track"
)

// Workout is one recorded session and the route files that belong to it
type Workout struct {
	ID     string
	Start  time.Time
	End    time.Time
	Routes []*track.Source
}

// TimestampPolicy decides what a bad point timestamp does to its route
type TimestampPolicy int

const (
	// SkipPoint drops the offending point and keeps reading the route
	SkipPoint TimestampPolicy = iota
	// AbortRoute discards the whole route file
	AbortRoute
)

// Options configures a run
type Options struct {
	Distances      []float64
	Top            int
	Params         segment.Params
	Range          datefilter.Range
	OnBadTimestamp TimestampPolicy

	Logger   *zerolog.Logger
	Debug    bool
	Progress func(done int) // called for every enumerated workout
}

// Stats counts what happened during a run
type Stats struct {
	Workouts        int `json:"workouts"`
	Filtered        int `json:"filtered_by_date"`
	Processed       int `json:"processed"`
	WithoutPoints   int `json:"without_points"`
	MalformedRoutes int `json:"malformed_routes"`
	AbortedRoutes   int `json:"aborted_routes"`
	BadTimestamps   int `json:"bad_timestamps"`
	Points          int `json:"points"`
}

// Report is the outcome of a run
type Report struct {
	Distances []float64
	Results   map[float64][]rank.Result
	Penalties []ledger.Entry
	Stats     Stats
}

// ProcessWorkouts finds, for every workout passing the date range and every
// target distance, the fastest penalized segment, and keeps the best Top
// per distance. Bad routes and points are skipped; only an enumeration
// error or a cancelled context stops the run early, returning what was
// gathered so far.
func ProcessWorkouts(ctx context.Context, workouts iter.Seq2[Workout, error], opts Options) (Report, error) {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	agg := rank.New(opts.Top, opts.Distances)
	// one scan per distinct distance
	distances := agg.Distances()
	penalties := ledger.New()
	var stats Stats

	report := func() Report {
		return Report{
			Distances: agg.Distances(),
			Results:   agg.All(),
			Penalties: penalties.Entries(),
			Stats:     stats,
		}
	}

	for w, err := range workouts {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return report(), ctxErr
		}
		if err != nil {
			return report(), fmt.Errorf("failed to enumerate workouts: %w", err)
		}
		stats.Workouts++
		if opts.Progress != nil {
			opts.Progress(stats.Workouts)
		}

		// unknown start dates are never filtered out
		if !w.Start.IsZero() && !datefilter.Included(w.Start, opts.Range) {
			stats.Filtered++
			continue
		}

		points := loadPoints(w, opts.OnBadTimestamp, &stats, logger)
		if len(points) == 0 {
			stats.WithoutPoints++
			logger.Debug().Str("workout", w.ID).Msg("No points for workout")
			continue
		}
		stats.Processed++
		stats.Points += len(points)

		start := w.Start
		if start.IsZero() {
			start = points[0].Time
		}

		for _, d := range distances {
			outcome := scanRoute(w.ID, start, points, d, opts.Params, penalties)
			if !outcome.Found {
				continue
			}

			kept := agg.Offer(d, rank.Result{
				WorkoutID:    w.ID,
				WorkoutStart: start,
				Covered:      outcome.Distance,
				Raw:          outcome.Raw,
				Adjusted:     outcome.Adjusted,
				Start:        outcome.Start,
				End:          outcome.End,
				Penalties:    len(outcome.Penalties),
			})

			if opts.Debug {
				count, _, total := track.Summary(points)
				logger.Debug().
					Str("workout", w.ID).
					Float64("distance", d).
					Float64("adjusted_s", outcome.Adjusted).
					Float64("covered_m", outcome.Distance).
					Int("best_i", outcome.Start).
					Int("best_j", outcome.End).
					Int("penalties", len(outcome.Penalties)).
					Int("points", count).
					Float64("total_m", total).
					Bool("kept", kept).
					Msg("Best segment")
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return report(), err
	}

	logger.Info().
		Int("workouts", stats.Workouts).
		Int("processed", stats.Processed).
		Int("filtered", stats.Filtered).
		Int("malformed_routes", stats.MalformedRoutes).
		Int("bad_timestamps", stats.BadTimestamps).
		Int("penalties", penalties.Len()).
		Msg("Processing completed")

	return report(), nil
}

// scanRoute runs the window scan once, records every flagged interval of
// every realized window and returns the best window.
func scanRoute(routeID string, start time.Time, points []geo.Position, target float64, params segment.Params, l *ledger.Ledger) segment.Outcome {
	best := segment.NoOutcome()
	recordedTo := -1

	for c := range segment.Scan(points, target, params) {
		if !c.Reached {
			continue
		}

		// windows only move forward, so anything at or before recordedTo is known
		for i, ev := range c.Penalties {
			if ev.To > recordedTo {
				l.Record(routeID, start, c.Penalties[i:]...)
				recordedTo = c.Penalties[len(c.Penalties)-1].To
				break
			}
		}

		best.Consider(c)
	}

	return best
}

// loadPoints reads and consolidates every route file of a workout
func loadPoints(w Workout, policy TimestampPolicy, stats *Stats, logger zerolog.Logger) []geo.Position {
	routes := make([][]geo.Position, 0, len(w.Routes))

	for _, src := range w.Routes {
		var points []geo.Position
		aborted := false

		for p, err := range src.Positions() {
			if err != nil {
				stats.BadTimestamps++
				var tsErr *track.TimestampError
				if errors.As(err, &tsErr) {
					logger.Debug().Str("route", src.Name).Int("index", tsErr.Index).Str("raw", tsErr.Raw).Msg("Bad timestamp")
				}
				if policy == AbortRoute {
					aborted = true
					break
				}
				continue
			}
			points = append(points, p)
		}

		if aborted {
			stats.AbortedRoutes++
			logger.Warn().Str("workout", w.ID).Str("route", src.Name).Msg("Route aborted on bad timestamp")
			continue
		}
		if err := src.Err(); err != nil {
			stats.MalformedRoutes++
			logger.Warn().Err(err).Str("workout", w.ID).Str("route", src.Name).Msg("Skipping malformed route")
			continue
		}
		routes = append(routes, points)
	}

	return track.Consolidate(routes...)
}
