package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/planbiir/gpace/internal/export"
	"github.com/planbiir/gpace/internal/logger"
	"github.com/planbiir/gpace/internal/speedstats"
	"github.com/planbiir/gpace/internal/track"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, stdout io.Writer) int {
	flags := pflag.NewFlagSet("gpoints", pflag.ContinueOnError)
	zipFlag := flags.String("zip", "", "Path to an Apple Health export.zip")
	dirFlag := flags.String("dir", "", "Directory of .gpx/.xml route files")
	dateFlag := flags.String("date", "", "Calendar date to inspect (YYYY-MM-DD)")
	statsFlag := flags.Bool("stats", false, "Print the speed distribution and a suggested --max-speed")
	outFlag := flags.String("output", "", "Write the interval rows as CSV to this file instead of stdout")
	levelFlag := flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: gpoints (--zip export.zip | --dir routes/) --date YYYY-MM-DD [--stats]\n\n")
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	log := logger.New(logger.Config{Level: *levelFlag})

	if (*zipFlag == "") == (*dirFlag == "") {
		log.Error().Msg("exactly one of --zip or --dir is required")
		flags.Usage()
		return 2
	}
	if _, err := time.Parse(time.DateOnly, *dateFlag); err != nil {
		log.Error().Str("date", *dateFlag).Msg("--date must be YYYY-MM-DD")
		return 2
	}

	sources, closeFn, err := routeSources(*zipFlag, *dirFlag, &log)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open input")
		return 1
	}
	defer closeFn()

	points := speedstats.PointsOn(sources, *dateFlag)
	log.Info().Int("routes", len(sources)).Int("points", len(points)).Str("date", *dateFlag).Msg("Points collected")
	if len(points) == 0 {
		fmt.Fprintf(stdout, "No points found for %s\n", *dateFlag)
		return 0
	}
	intervals := speedstats.Intervals(points)

	if *outFlag != "" {
		err = writeFile(*outFlag, func(w io.Writer) error { return writeCSV(w, intervals) })
	} else {
		err = writeCSV(stdout, intervals)
	}
	if err != nil {
		log.Error().Err(err).Str("path", *outFlag).Msg("Failed to write intervals")
		return 1
	}

	if *statsFlag {
		printStats(stdout, intervals)
	}
	return 0
}

// routeSources lists the route files of an export or a directory
func routeSources(zipPath, dir string, log *zerolog.Logger) ([]*track.Source, func(), error) {
	if zipPath != "" {
		archive, err := export.Open(zipPath, export.Options{Logger: log})
		if err != nil {
			return nil, nil, err
		}
		return archive.RouteFiles(), func() { _ = archive.Close() }, nil
	}

	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		ext := strings.ToLower(filepath.Ext(path))
		if !d.IsDir() && (ext == ".gpx" || ext == ".xml") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	slices.Sort(paths)

	sources := make([]*track.Source, len(paths))
	for i, p := range paths {
		sources[i] = track.FileSource(p)
	}
	return sources, func() {}, nil
}

// writeCSV writes one row per interval. Write errors surface on Flush.
func writeCSV(w io.Writer, intervals []speedstats.Interval) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "timestamp,duration_s,distance_m,speed_kmh,source_file")
	for _, iv := range intervals {
		fmt.Fprintf(bw, "%s,%.0f,%.2f,%.2f,%s\n",
			iv.Time.Format(time.RFC3339), iv.Duration, iv.Distance, iv.SpeedKmh, filepath.Base(iv.Source))
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write rows: %w", err)
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func printStats(w io.Writer, intervals []speedstats.Interval) {
	s, ok := speedstats.Summarize(intervals)
	if !ok {
		return
	}

	fmt.Fprintf(w, "\nIntervals: %d\n", s.Count)
	fmt.Fprintf(w, "Speed km/h: min %.2f  max %.2f  mean %.2f  median %.2f\n", s.Min, s.Max, s.Mean, s.Median)
	for _, p := range speedstats.Percentiles {
		fmt.Fprintf(w, "  P%-5g %.2f\n", p, s.Percentiles[p])
	}

	fmt.Fprintf(w, "\nIntervals over threshold:\n")
	for _, o := range s.Over {
		fmt.Fprintf(w, "  > %2.0f km/h: %d (%.2f%%)\n", o.Kmh, o.Count, o.Percent)
	}
	if s.FastCount > 0 {
		fmt.Fprintf(w, "\nIntervals > 35 km/h: %d, mean duration %.1fs, max duration %.0fs\n",
			s.FastCount, s.FastMeanDuration, s.FastMaxDuration)
	}

	fmt.Fprintf(w, "\nTop %d intervals:\n", len(s.Top))
	for i, iv := range s.Top {
		fmt.Fprintf(w, "  %2d. %s  %6.2f km/h  %.0fs  %.1fm\n",
			i+1, iv.Time.Format(time.TimeOnly), iv.SpeedKmh, iv.Duration, iv.Distance)
	}

	a := speedstats.DetectActivity(intervals)
	fmt.Fprintf(w, "\nDetected activity: %s (P95 %.1f km/h, %d samples)\n", a.Kind, a.P95Kmh, a.SampleCount)
	fmt.Fprintf(w, "Suggested --max-speed %.1f\n", a.MaxSpeedKmh)
}
