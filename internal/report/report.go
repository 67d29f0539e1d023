package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/planbiir/gpace/internal/analysis"
	"github.com/planbiir/gpace/internal/estimate"
	"github.com/planbiir/gpace/internal/ledger"
)

const (
	dateLayout      = "02/01/2006"
	timestampLayout = "02/01/2006 15:04:05"
)

// FormatDuration renders seconds as HH:MM:SS, rounded to the second.
// Infinite or NaN durations render as "-".
func FormatDuration(s float64) string {
	if math.IsInf(s, 0) || math.IsNaN(s) {
		return "-"
	}
	total := int64(math.Round(s))
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

// FormatDistance renders a distance in meters as a short label
func FormatDistance(d float64) string {
	switch {
	case math.Abs(d-21097.5) < 0.5:
		return "Half Marathon"
	case math.Abs(d-42195) < 0.5:
		return "Marathon"
	}

	if d >= 1000 {
		km := d / 1000
		if math.Abs(km-math.Round(km)) < 1e-6 {
			return fmt.Sprintf("%d km", int64(math.Round(km)))
		}
		s := strings.TrimRight(strings.TrimRight(strconv.FormatFloat(km, 'f', 2, 64), "0"), ".")
		return s + " km"
	}
	return fmt.Sprintf("%d m", int64(math.Round(d)))
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Format(dateLayout)
}

// WriteResults writes the ranking of every distance, shortest distance first
func WriteResults(w io.Writer, r analysis.Report) error {
	var b strings.Builder

	for _, d := range r.Distances {
		fmt.Fprintf(&b, "\nDistance: %s\n", FormatDistance(d))

		rows := r.Results[d]
		if len(rows) == 0 {
			b.WriteString("  No segments found\n")
			continue
		}
		for i, res := range rows {
			fmt.Fprintf(&b, "  %2d. %s  %s", i+1, formatDate(res.WorkoutStart), FormatDuration(res.Adjusted))
			if res.Penalties > 0 {
				fmt.Fprintf(&b, "  (raw %s, %d penalized)", FormatDuration(res.Raw), res.Penalties)
			}
			b.WriteString("\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// WritePenalties writes the penalty warnings block. Nothing is written
// when there are no entries.
func WritePenalties(w io.Writer, entries []ledger.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("\n=== PENALTY WARNINGS ===\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%s | interval %d->%d | %.1f km/h | +%ss\n",
			e.At.Format(timestampLayout), e.From, e.To, e.SpeedKmh,
			strconv.FormatFloat(e.Seconds, 'f', -1, 64))
	}
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteEstimates writes the projected optimal time of every distance
func WriteEstimates(w io.Writer, distances []float64, summary map[float64]estimate.Summary) error {
	var b strings.Builder
	b.WriteString("\n=== ESTIMATED OPTIMAL TIMES ===\n")

	for _, d := range distances {
		s, ok := summary[d]
		if !ok {
			continue
		}
		label := FormatDistance(d)
		if !s.HasOptimal {
			fmt.Fprintf(&b, "  %-14s -  %s (%d results)\n", label, s.Confidence, s.Count)
			continue
		}
		fmt.Fprintf(&b, "  %-14s %s  best %s  %+.1f%%  %s\n",
			label, FormatDuration(s.Optimal), FormatDuration(s.Best), s.ImprovementPct, s.Confidence)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

type jsonResult struct {
	Rank      int     `json:"rank"`
	WorkoutID string  `json:"workout_id"`
	Date      string  `json:"date,omitempty"`
	Seconds   float64 `json:"seconds"`
	Duration  string  `json:"duration"`
	Raw       float64 `json:"raw_seconds"`
	Covered   float64 `json:"covered_m"`
	Penalties int     `json:"penalties"`
	SpeedKmh  float64 `json:"speed_kmh"`
	Start     int     `json:"start_index"`
	End       int     `json:"end_index"`
}

type jsonDistance struct {
	Meters   float64           `json:"distance_m"`
	Label    string            `json:"label"`
	Results  []jsonResult      `json:"results"`
	Estimate *estimate.Summary `json:"estimate,omitempty"`
}

type jsonPenalty struct {
	WorkoutID string  `json:"workout_id"`
	At        string  `json:"at"`
	From      int     `json:"from"`
	To        int     `json:"to"`
	SpeedKmh  float64 `json:"speed_kmh"`
	Seconds   float64 `json:"seconds"`
}

type jsonReport struct {
	RunID     string         `json:"run_id,omitempty"`
	Distances []jsonDistance `json:"distances"`
	Penalties []jsonPenalty  `json:"penalties"`
	Stats     analysis.Stats `json:"stats"`
}

// WriteJSON writes the whole run as one indented JSON document. summary
// may be nil.
func WriteJSON(w io.Writer, runID string, r analysis.Report, summary map[float64]estimate.Summary) error {
	out := jsonReport{
		RunID:     runID,
		Distances: make([]jsonDistance, 0, len(r.Distances)),
		Penalties: make([]jsonPenalty, 0, len(r.Penalties)),
		Stats:     r.Stats,
	}

	for _, d := range r.Distances {
		jd := jsonDistance{Meters: d, Label: FormatDistance(d), Results: []jsonResult{}}
		for i, res := range r.Results[d] {
			jr := jsonResult{
				Rank:      i + 1,
				WorkoutID: res.WorkoutID,
				Seconds:   res.Adjusted,
				Duration:  FormatDuration(res.Adjusted),
				Raw:       res.Raw,
				Covered:   res.Covered,
				Penalties: res.Penalties,
				SpeedKmh:  res.SpeedKmh(),
				Start:     res.Start,
				End:       res.End,
			}
			if !res.WorkoutStart.IsZero() {
				jr.Date = res.WorkoutStart.Format(time.RFC3339)
			}
			jd.Results = append(jd.Results, jr)
		}
		if s, ok := summary[d]; ok {
			jd.Estimate = &s
		}
		out.Distances = append(out.Distances, jd)
	}

	for _, e := range r.Penalties {
		out.Penalties = append(out.Penalties, jsonPenalty{
			WorkoutID: e.RouteID,
			At:        e.At.Format(time.RFC3339),
			From:      e.From,
			To:        e.To,
			SpeedKmh:  e.SpeedKmh,
			Seconds:   e.Seconds,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}
