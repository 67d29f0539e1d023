package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/planbiir/gpace/internal/analysis"
	"github.com/planbiir/gpace/internal/config"
	"github.com/planbiir/gpace/internal/estimate"
	"github.com/planbiir/gpace/internal/export"
	"github.com/planbiir/gpace/internal/logger"
	"github.com/planbiir/gpace/internal/report"
)

// progressEvery is how many workouts pass between progress logs
const progressEvery = 25

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "gpace - Fastest segments of your GPS workouts\n\n")
	fmt.Fprintf(w, "usage: gpace --zip export.zip [options]\n")
	fmt.Fprintf(w, "       gpace --dir routes/ [options]\n\n")
	fmt.Fprintf(w, "examples:\n")
	fmt.Fprintf(w, "  gpace --zip export.zip\n")
	fmt.Fprintf(w, "  gpace --zip export.zip --distances 400,1000,5000 --top 10\n")
	fmt.Fprintf(w, "  gpace --zip export.zip --start-date 20210101 --end-date 20211231 --verbose\n\n")
	fmt.Fprintf(w, "options:\n")
	fmt.Fprint(w, config.Usage())
}

func run(args []string, stdout io.Writer) int {
	cfg, err := config.Load(args)
	if errors.Is(err, pflag.ErrHelp) {
		usage(stdout)
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		usage(os.Stderr)
		return 2
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		usage(os.Stderr)
		return 2
	}

	runID := uuid.NewString()
	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
		File:   cfg.LogFile,
	}).With().Str("run_id", runID).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workouts, closeInput, err := openInput(cfg, &log)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open input")
		return 1
	}
	defer closeInput()

	dateRange, _ := cfg.Range()
	opts := analysis.Options{
		Distances: cfg.Distances,
		Top:       cfg.Top,
		Params:    cfg.Params(),
		Range:     dateRange,
		Logger:    &log,
		Debug:     cfg.Debug,
	}
	if cfg.AbortOnBadTime {
		opts.OnBadTimestamp = analysis.AbortRoute
	}
	if cfg.Progress {
		opts.Progress = func(done int) {
			if done%progressEvery == 0 {
				log.Info().Int("workouts", done).Msg("Processing workouts")
			}
		}
	}

	log.Info().
		Str("zip", cfg.Zip).
		Str("dir", cfg.Dir).
		Floats64("distances", cfg.Distances).
		Float64("max_speed_kmh", cfg.MaxSpeedKmh).
		Float64("penalty_s", cfg.PenaltySeconds).
		Msg("Starting analysis")

	started := time.Now()
	rep, err := analysis.ProcessWorkouts(ctx, workouts, opts)
	exitCode := 0
	if err != nil {
		// partial results are still worth printing
		log.Error().Err(err).Msg("Processing stopped early")
		exitCode = 1
	}
	log.Info().Dur("elapsed", time.Since(started)).Int("processed", rep.Stats.Processed).Msg("Analysis done")

	var summary map[float64]estimate.Summary
	if cfg.Estimate {
		summary = estimate.New(time.Now()).Summarize(rep.Results)
	}

	if err := writeReport(stdout, cfg, runID, rep, summary, cfg.Verbose); err != nil {
		log.Error().Err(err).Msg("Failed to write results")
		return 1
	}

	if cfg.OutputFile != "" {
		if err := writeFile(cfg.OutputFile, func(w io.Writer) error {
			return writeReport(w, cfg, runID, rep, summary, false)
		}); err != nil {
			log.Error().Err(err).Str("path", cfg.OutputFile).Msg("Failed to write output file")
			return 1
		}
		log.Info().Str("path", cfg.OutputFile).Msg("Results written")
	}

	if cfg.PenaltyFile != "" && len(rep.Penalties) > 0 {
		if err := writeFile(cfg.PenaltyFile, func(w io.Writer) error {
			return report.WritePenalties(w, rep.Penalties)
		}); err != nil {
			log.Error().Err(err).Str("path", cfg.PenaltyFile).Msg("Failed to write penalty file")
			return 1
		}
		log.Info().Str("path", cfg.PenaltyFile).Int("penalties", len(rep.Penalties)).Msg("Penalty warnings written")
	}

	return exitCode
}

// openInput returns the workouts of the configured export or directory
func openInput(cfg config.Config, log *zerolog.Logger) (iter.Seq2[analysis.Workout, error], func(), error) {
	if cfg.Dir != "" {
		return export.Dir(cfg.Dir, log), func() {}, nil
	}

	archive, err := export.Open(cfg.Zip, export.Options{Activity: cfg.Activity, Logger: log})
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := archive.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close archive")
		}
	}
	return archive.Workouts(), closeFn, nil
}

func writeReport(w io.Writer, cfg config.Config, runID string, rep analysis.Report, summary map[float64]estimate.Summary, penalties bool) error {
	if cfg.JSON {
		return report.WriteJSON(w, runID, rep, summary)
	}

	if penalties {
		if err := report.WritePenalties(w, rep.Penalties); err != nil {
			return err
		}
	}
	if err := report.WriteResults(w, rep); err != nil {
		return err
	}
	if summary != nil {
		return report.WriteEstimates(w, rep.Distances, summary)
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
