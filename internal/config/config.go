// Package config loads gpace settings from flags, GPACE_* environment
// variables, an optional config file and a .env file.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/planbiir/gpace/internal/datefilter"
	"github.com/planbiir/gpace/internal/segment"
)

// EnvPrefix prefixes every environment variable, e.g. GPACE_MAX_SPEED
const EnvPrefix = "GPACE"

// DefaultDistances are the target distances in meters
var DefaultDistances = []float64{400, 800, 1000, 5000, 10000, 15000, 20000, 21097.5, 42195}

// Config holds application configuration
type Config struct {
	Zip string // Apple Health export.zip
	Dir string // directory of .gpx/.xml route files

	Top            int
	Distances      []float64
	MaxSpeedKmh    float64
	PenaltySeconds float64
	StartDate      string
	EndDate        string
	Activity       string
	AbortOnBadTime bool

	OutputFile  string
	PenaltyFile string
	Verbose     bool // print penalty warnings
	Debug       bool // log the winning window of every workout
	Progress    bool
	JSON        bool
	Estimate    bool

	LogLevel  string
	LogFile   string
	LogPretty bool
}

// Default returns the configuration used when nothing is set
func Default() Config {
	params := segment.DefaultParams()
	return Config{
		Top:            5,
		Distances:      append([]float64(nil), DefaultDistances...),
		MaxSpeedKmh:    params.MaxSpeedKmh,
		PenaltySeconds: params.PenaltySeconds,
		Activity:       "HKWorkoutActivityTypeRunning",
		Progress:       true,
		Estimate:       true,
		LogLevel:       "info",
	}
}

// newFlagSet declares every flag with its default
func newFlagSet(name string) *pflag.FlagSet {
	def := Default()
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SortFlags = false

	fs.String("zip", "", "Path to an Apple Health export.zip")
	fs.String("dir", "", "Directory of .gpx/.xml route files, one workout per file")
	fs.Int("top", def.Top, "Number of top segments per distance")
	fs.String("distances", joinFloats(def.Distances), "Comma separated target distances in meters")
	fs.Float64("max-speed", def.MaxSpeedKmh, "Instantaneous speed in km/h above which an interval is penalized (0 disables)")
	fs.Float64("speed-penalty", def.PenaltySeconds, "Seconds added for every interval above --max-speed (alias --penalty-seconds)")
	fs.String("start-date", "", "Only workouts starting on or after this date (YYYYMMDD)")
	fs.String("end-date", "", "Only workouts starting on or before this date (YYYYMMDD)")
	fs.String("activity", def.Activity, "Workout activity type to analyze")
	fs.Bool("abort-on-bad-timestamp", false, "Discard a whole route file when one of its timestamps is invalid")
	fs.StringP("output-file", "o", "", "Also write results to this file")
	fs.String("penalty-file", "", "Write penalty warnings to this file")
	fs.Bool("verbose", false, "Show warnings for intervals exceeding --max-speed")
	fs.Bool("debug", false, "Log the best window of every workout")
	fs.Bool("progress", def.Progress, "Log progress while processing")
	fs.Bool("no-progress", false, "Disable progress logging")
	fs.Bool("json", false, "Print results as JSON")
	fs.Bool("estimate", def.Estimate, "Estimate optimal times from the top results")
	fs.String("log-level", def.LogLevel, "Log level: debug, info, warn, error")
	fs.String("log-file", "", "Also write logs to this file, rotated by size")
	fs.Bool("log-pretty", false, "Human readable console logs")
	fs.String("config", "", "Optional YAML or TOML config file")

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		if name == "penalty-seconds" {
			name = "speed-penalty"
		}
		return pflag.NormalizedName(name)
	})
	return fs
}

// Usage returns the flag help text
func Usage() string {
	return newFlagSet("gpace").FlagUsages()
}

// Load builds the configuration from command line args (without the program
// name). Flags win over GPACE_* variables, which win over the config file.
// A .env file in the working directory is loaded first when present.
func Load(args []string) (Config, error) {
	_ = godotenv.Load()

	fs := newFlagSet("gpace")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return Config{}, fmt.Errorf("failed to bind flags: %w", err)
	}

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	distances, err := parseDistances(v.Get("distances"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Zip:            v.GetString("zip"),
		Dir:            v.GetString("dir"),
		Top:            v.GetInt("top"),
		Distances:      distances,
		MaxSpeedKmh:    v.GetFloat64("max-speed"),
		PenaltySeconds: v.GetFloat64("speed-penalty"),
		StartDate:      v.GetString("start-date"),
		EndDate:        v.GetString("end-date"),
		Activity:       v.GetString("activity"),
		AbortOnBadTime: v.GetBool("abort-on-bad-timestamp"),
		OutputFile:     v.GetString("output-file"),
		PenaltyFile:    v.GetString("penalty-file"),
		Verbose:        v.GetBool("verbose"),
		Debug:          v.GetBool("debug"),
		Progress:       v.GetBool("progress") && !v.GetBool("no-progress"),
		JSON:           v.GetBool("json"),
		Estimate:       v.GetBool("estimate"),
		LogLevel:       v.GetString("log-level"),
		LogFile:        v.GetString("log-file"),
		LogPretty:      v.GetBool("log-pretty"),
	}
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}

	return cfg, nil
}

// Validate checks the configuration before a run
func (c Config) Validate() error {
	var errs []error

	switch {
	case c.Zip == "" && c.Dir == "":
		errs = append(errs, errors.New("one of --zip or --dir is required"))
	case c.Zip != "" && c.Dir != "":
		errs = append(errs, errors.New("--zip and --dir are mutually exclusive"))
	}
	if c.Top <= 0 {
		errs = append(errs, fmt.Errorf("--top must be positive, got %d", c.Top))
	}
	if len(c.Distances) == 0 {
		errs = append(errs, errors.New("at least one distance is required"))
	}
	seen := make(map[float64]bool, len(c.Distances))
	for _, d := range c.Distances {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("distance must be positive, got %v", d))
		}
		if seen[d] {
			errs = append(errs, fmt.Errorf("distance %v is listed more than once", d))
		}
		seen[d] = true
	}
	if c.MaxSpeedKmh < 0 {
		errs = append(errs, fmt.Errorf("--max-speed must not be negative, got %v", c.MaxSpeedKmh))
	}
	if c.PenaltySeconds < 0 {
		errs = append(errs, fmt.Errorf("--speed-penalty must not be negative, got %v", c.PenaltySeconds))
	}
	if _, err := c.Range(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Range returns the workout start filter
func (c Config) Range() (datefilter.Range, error) {
	return datefilter.ParseRange(c.StartDate, c.EndDate)
}

// Params returns the penalty parameters of the segment finder
func (c Config) Params() segment.Params {
	return segment.Params{
		MaxSpeedKmh:    c.MaxSpeedKmh,
		PenaltySeconds: c.PenaltySeconds,
	}
}

// parseDistances accepts "400,800" from flags and env, or a list from a
// config file
func parseDistances(raw any) ([]float64, error) {
	var items []string
	switch v := raw.(type) {
	case string:
		items = strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' })
	case []any:
		for _, item := range v {
			items = append(items, cast.ToString(item))
		}
	default:
		s, err := cast.ToStringE(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid distances %v: %w", raw, err)
		}
		items = strings.Split(s, ",")
	}

	out := make([]float64, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		d, err := strconv.ParseFloat(item, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid distance %q: %w", item, err)
		}
		out = append(out, d)
	}
	return out, nil
}

func joinFloats(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, ",")
}
