// Package config parses and validates the command-line configuration of
// hiersurr. Flags take precedence over HIERSURR_ environment variables,
// which take precedence over the defaults below.
package config

import (
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/agbru/hiersurr/internal/correction"
	apperrors "github.com/agbru/hiersurr/internal/errors"
	"github.com/agbru/hiersurr/internal/response"
)

// EnvPrefix prefixes every environment variable override.
const EnvPrefix = "HIERSURR_"

// Defaults.
const (
	DefaultProblem     = "forrester"
	DefaultMode        = "auto-corrected"
	DefaultSamples     = 100
	DefaultRatio       = 10.0
	DefaultConcurrency = 4
	DefaultCorrection  = "additive"
	DefaultPropagation = "single"
	DefaultTimeout     = 5 * time.Minute
	DefaultSeed        = 1
	DefaultLogLevel    = "warn"
)

// AppConfig holds the parsed configuration.
type AppConfig struct {
	// Problem names a built-in study ensemble. Ignored when EnsembleFile is set.
	Problem string
	// EnsembleFile is a YAML ensemble definition.
	EnsembleFile string
	// Mode is the response mode of a single evaluation.
	Mode string
	// At is the comma separated point of a single evaluation; empty means
	// the centre of the domain.
	At string
	// Samples is the number of shared study samples; 0 runs a single
	// evaluation instead of a study.
	Samples int
	// Ratio is the number of surrogate evaluations per truth evaluation.
	Ratio float64
	// Async makes the models evaluate asynchronously.
	Async bool
	// Concurrency bounds the in-flight evaluations of each model.
	Concurrency int
	// Latency is added to each model evaluation.
	Latency time.Duration
	// Correction is the correction type name.
	Correction string
	// Order is the correction order, 0 to 2.
	Order int
	// Propagation is the correction propagation policy name.
	Propagation string
	// MetricsAddr serves /metrics, /healthz and /workers when set.
	MetricsAddr string
	// Timeout bounds the whole run.
	Timeout time.Duration
	// Seed seeds the study sampler.
	Seed uint64
	Quiet   bool
	Verbose bool
	NoColor bool
	// LogLevel is a zerolog level name.
	LogLevel string
}

// ParseConfig parses args into an AppConfig, applies environment
// overrides for the flags not given explicitly, and validates the result.
//
// Parameters:
//   - programName: the name shown in usage output.
//   - args: the arguments without the program name.
//   - errorOutput: receives usage and parse errors.
//
// Returns:
//   - AppConfig: the validated configuration.
//   - error: flag.ErrHelp for -h, a parse error, or a ConfigError.
func ParseConfig(programName string, args []string, errorOutput io.Writer) (AppConfig, error) {
	fs := flag.NewFlagSet(programName, flag.ContinueOnError)
	fs.SetOutput(errorOutput)
	config := AppConfig{}

	fs.StringVar(&config.Problem, "problem", DefaultProblem, "Built-in study problem (forrester, trapezoid).")
	fs.StringVar(&config.EnsembleFile, "ensemble", "", "YAML ensemble definition file.")
	fs.StringVar(&config.Mode, "mode", DefaultMode, "Response mode of a single evaluation ("+modeList()+").")
	fs.StringVar(&config.At, "at", "", "Comma separated point of a single evaluation.")
	fs.IntVar(&config.Samples, "samples", DefaultSamples, "Shared study samples; 0 runs a single evaluation.")
	fs.IntVar(&config.Samples, "n", DefaultSamples, "Shorthand for -samples.")
	fs.Float64Var(&config.Ratio, "ratio", DefaultRatio, "Surrogate evaluations per truth evaluation.")
	fs.BoolVar(&config.Async, "async", false, "Evaluate models asynchronously.")
	fs.IntVar(&config.Concurrency, "concurrency", DefaultConcurrency, "In-flight evaluations per model.")
	fs.DurationVar(&config.Latency, "latency", 0, "Latency added to each model evaluation.")
	fs.StringVar(&config.Correction, "correction", DefaultCorrection, "Correction type (additive, multiplicative, combined).")
	fs.IntVar(&config.Order, "order", 0, "Correction order (0, 1 or 2).")
	fs.StringVar(&config.Propagation, "propagation", DefaultPropagation, "Correction propagation (single, full-model-form, full-resolution).")
	fs.StringVar(&config.MetricsAddr, "metrics-addr", "", "Address serving metrics and the worker hub.")
	fs.DurationVar(&config.Timeout, "timeout", DefaultTimeout, "Maximum run time.")
	fs.Uint64Var(&config.Seed, "seed", DefaultSeed, "Study sampler seed.")
	fs.BoolVar(&config.Quiet, "quiet", false, "Print results only.")
	fs.BoolVar(&config.Quiet, "q", false, "Shorthand for -quiet.")
	fs.BoolVar(&config.Verbose, "verbose", false, "Print every output of a single evaluation.")
	fs.BoolVar(&config.Verbose, "v", false, "Shorthand for -verbose.")
	fs.BoolVar(&config.NoColor, "no-color", false, "Disable colored output.")
	fs.StringVar(&config.LogLevel, "log-level", DefaultLogLevel, "Log level (debug, info, warn, error).")

	if err := fs.Parse(args); err != nil {
		return AppConfig{}, err
	}
	if fs.NArg() > 0 {
		return AppConfig{}, apperrors.NewConfigError("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	applyEnvOverrides(&config, fs)

	if err := config.Validate(); err != nil {
		fmt.Fprintln(errorOutput, "Configuration error:", err)
		return AppConfig{}, err
	}
	return config, nil
}

// Validate checks the configuration for semantic errors.
func (c AppConfig) Validate() error {
	if c.EnsembleFile == "" && c.Problem != "forrester" && c.Problem != "trapezoid" {
		return apperrors.NewConfigError("unknown problem %q (want forrester or trapezoid)", c.Problem)
	}
	if _, err := response.ParseMode(c.Mode); err != nil {
		return apperrors.NewConfigError("%v", err)
	}
	if c.Samples < 0 || c.Samples == 1 {
		return apperrors.NewConfigError("samples must be 0 or at least 2, got %d", c.Samples)
	}
	if c.Ratio < 1 {
		return apperrors.NewConfigError("ratio must be at least 1, got %g", c.Ratio)
	}
	if c.Concurrency < 1 {
		return apperrors.NewConfigError("concurrency must be positive, got %d", c.Concurrency)
	}
	if c.Latency < 0 {
		return apperrors.NewConfigError("latency must not be negative, got %s", c.Latency)
	}
	if _, err := c.CorrectionSettings(); err != nil {
		return err
	}
	if _, err := correction.ParsePropagation(c.Propagation); err != nil {
		return err
	}
	if c.Timeout <= 0 {
		return apperrors.NewConfigError("timeout must be positive, got %s", c.Timeout)
	}
	if _, err := c.Point(); err != nil {
		return err
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return apperrors.NewConfigError("invalid log level %q", c.LogLevel)
	}
	return nil
}

// CorrectionSettings returns the parsed correction type and order.
func (c AppConfig) CorrectionSettings() (correction.Settings, error) {
	t, err := correction.ParseType(c.Correction)
	if err != nil {
		return correction.Settings{}, err
	}
	s := correction.Settings{Type: t, Order: c.Order}
	return s, s.Validate()
}

// Point parses At. It returns nil when At is empty.
func (c AppConfig) Point() ([]float64, error) {
	if strings.TrimSpace(c.At) == "" {
		return nil, nil
	}
	fields := strings.Split(c.At, ",")
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, apperrors.NewConfigError("invalid coordinate %q in -at", f)
		}
		out[i] = v
	}
	return out, nil
}

func modeList() string {
	names := make([]string, 0, len(response.Modes()))
	for _, m := range response.Modes() {
		names = append(names, m.String())
	}
	return strings.Join(names, ", ")
}
