package orchestration

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agbru/hiersurr/internal/dispatch"
	apperrors "github.com/agbru/hiersurr/internal/errors"
	"github.com/agbru/hiersurr/internal/response"
)

// ProgressBufferMultiplier sizes the progress channel per phase so batches
// rarely wait on a slow display.
const ProgressBufferMultiplier = 5

const (
	phaseShared = iota
	phaseExtra
	numPhases
)

// StudyOptions configures a control variate study.
type StudyOptions struct {
	// Samples is the number of points evaluated by both fidelities.
	Samples int
	// Ratio is the number of surrogate evaluations per truth evaluation;
	// at least 1.
	Ratio float64
	// Seed seeds the sampler.
	Seed uint64
	// Lower and Upper bound the sampled variables.
	Lower, Upper []float64
	// Output selects the response output the study estimates.
	Output int
}

// Validate checks the options.
func (o StudyOptions) Validate() error {
	if o.Samples < 2 {
		return apperrors.NewConfigError("study needs at least 2 samples, got %d", o.Samples)
	}
	if o.Ratio < 1 || math.IsNaN(o.Ratio) {
		return apperrors.NewConfigError("study ratio must be at least 1, got %g", o.Ratio)
	}
	if o.Output < 0 {
		return apperrors.NewConfigError("study output must be non-negative, got %d", o.Output)
	}
	return nil
}

// Report is the outcome of a study.
type Report struct {
	ID            uuid.UUID
	Estimator     ControlVariate
	Output        int
	SharedMode    response.Mode
	ExtraMode     response.Mode
	SharedElapsed time.Duration
	ExtraElapsed  time.Duration
	Duration      time.Duration
}

// RunStudy estimates the mean of one truth output with a two-fidelity
// control variate. The shared samples run in aggregated mode so both
// fidelities see the same points; the extra surrogate samples run in
// uncorrected mode.
//
// Parameters:
//   - ctx: cancels the study.
//   - ev: the dispatcher.
//   - opts: the study options.
//   - reporter: displays progress; use NullProgressReporter for quiet mode.
//   - out: the writer progress is displayed on.
//
// Returns:
//   - Report: the estimate and timings.
//   - error: a ConfigError for invalid options, or the first batch failure.
func RunStudy(ctx context.Context, ev Evaluator, opts StudyOptions, reporter ProgressReporter, out io.Writer) (Report, error) {
	if err := opts.Validate(); err != nil {
		return Report{}, err
	}
	shared, err := ev.Session(response.AggregatedModels)
	if err != nil {
		return Report{}, err
	}
	extra, err := ev.Session(response.UncorrectedSurrogate)
	if err != nil {
		return Report{}, err
	}
	numLF := extra.NumFunctions()
	numHF := shared.NumFunctions() - numLF
	if opts.Output >= numHF || opts.Output >= numLF {
		return Report{}, apperrors.NewConfigError("study output %d out of range: truth has %d outputs, surrogate %d", opts.Output, numHF, numLF)
	}
	sampler, err := NewSampler(opts.Seed, opts.Lower, opts.Upper)
	if err != nil {
		return Report{}, err
	}
	numExtra := int(math.Round((opts.Ratio - 1) * float64(opts.Samples)))
	points := sampler.Draw(opts.Samples + numExtra)
	numVars := len(opts.Lower)

	report := Report{ID: uuid.New(), Output: opts.Output, SharedMode: shared.Mode(), ExtraMode: extra.Mode()}
	start := time.Now()

	progressChan := make(chan ProgressUpdate, numPhases*ProgressBufferMultiplier)
	var displayWg sync.WaitGroup
	displayWg.Add(1)
	go reporter.DisplayProgress(&displayWg, progressChan, numPhases, out)
	defer func() {
		close(progressChan)
		displayWg.Wait()
	}()

	setShared := response.Uniform(shared.NumFunctions(), 0, numVars)
	setShared.Requests[opts.Output] = response.Value
	setShared.Requests[numHF+opts.Output] = response.Value
	sharedResp, err := RunBatch(ctx, ev, shared, points[:opts.Samples], setShared, progressChan, phaseShared)
	if err != nil {
		return Report{}, fmt.Errorf("shared samples: %w", err)
	}
	report.SharedElapsed = time.Since(start)

	setExtra := response.Uniform(numLF, 0, numVars)
	setExtra.Requests[opts.Output] = response.Value
	extraStart := time.Now()
	extraResp, err := RunBatch(ctx, ev, extra, points[opts.Samples:], setExtra, progressChan, phaseExtra)
	if err != nil {
		return Report{}, fmt.Errorf("extra surrogate samples: %w", err)
	}
	if numExtra == 0 {
		progressChan <- ProgressUpdate{Phase: phaseExtra, Value: 1}
	}
	report.ExtraElapsed = time.Since(extraStart)

	hi := make([]float64, len(sharedResp))
	lo := make([]float64, len(sharedResp))
	for i, r := range sharedResp {
		hi[i], lo[i] = r.Values[opts.Output], r.Values[numHF+opts.Output]
	}
	loExtra := make([]float64, len(extraResp))
	for i, r := range extraResp {
		loExtra[i] = r.Values[opts.Output]
	}
	if report.Estimator, err = EstimateControlVariate(hi, lo, loExtra); err != nil {
		return Report{}, err
	}
	report.Duration = time.Since(start)
	return report, nil
}

// EvaluateOnce runs one blocking evaluation of every output in mode at vars.
func EvaluateOnce(ctx context.Context, ev Evaluator, mode response.Mode, vars response.Variables) (*dispatch.Session, *response.Response, error) {
	s, err := ev.Session(mode)
	if err != nil {
		return nil, nil, err
	}
	resp, err := ev.Evaluate(ctx, s, vars, response.Uniform(s.NumFunctions(), response.Value, len(vars.Continuous)))
	if err != nil {
		return s, nil, err
	}
	return s, resp, nil
}
