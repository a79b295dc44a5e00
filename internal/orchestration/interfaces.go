package orchestration

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/agbru/hiersurr/internal/dispatch"
	"github.com/agbru/hiersurr/internal/response"
)

// Evaluator is the part of a dispatcher a study drives.
// *dispatch.Dispatcher implements it.
type Evaluator interface {
	Session(mode response.Mode, opts ...dispatch.SessionOption) (*dispatch.Session, error)
	Evaluate(ctx context.Context, s *dispatch.Session, vars response.Variables, set response.ActiveSet) (*response.Response, error)
	EvaluateAsync(ctx context.Context, s *dispatch.Session, vars response.Variables, set response.ActiveSet) (dispatch.Handle, error)
	Synchronize(ctx context.Context) (map[dispatch.Handle]*response.Response, error)
	SynchronizeNowait(ctx context.Context) (map[dispatch.Handle]*response.Response, error)
}

// ProgressReporter defines the interface for displaying study progress.
// It decouples the orchestration layer from the presentation layer.
type ProgressReporter interface {
	// DisplayProgress consumes updates until progressChan is closed.
	// It must be called in its own goroutine.
	//
	// Parameters:
	//   - wg: A WaitGroup to signal when display is complete.
	//   - progressChan: Channel receiving progress updates from the batches.
	//   - numPhases: The number of study phases being tracked.
	//   - out: The writer for progress output.
	DisplayProgress(wg *sync.WaitGroup, progressChan <-chan ProgressUpdate, numPhases int, out io.Writer)
}

// ProgressReporterFunc is a function adapter that implements ProgressReporter.
type ProgressReporterFunc func(wg *sync.WaitGroup, progressChan <-chan ProgressUpdate, numPhases int, out io.Writer)

// DisplayProgress calls the underlying function.
func (f ProgressReporterFunc) DisplayProgress(wg *sync.WaitGroup, progressChan <-chan ProgressUpdate, numPhases int, out io.Writer) {
	f(wg, progressChan, numPhases, out)
}

// NullProgressReporter is a no-op implementation of ProgressReporter.
// It drains the progress channel without displaying anything.
type NullProgressReporter struct{}

// DisplayProgress drains the channel without output.
func (NullProgressReporter) DisplayProgress(wg *sync.WaitGroup, progressChan <-chan ProgressUpdate, _ int, _ io.Writer) {
	defer wg.Done()
	DrainChannel(progressChan)
}

// ResultPresenter renders study outcomes.
type ResultPresenter interface {
	// PresentReport displays the estimator summary of a study.
	PresentReport(report Report, out io.Writer)
	// PresentResponse displays one combined response.
	PresentResponse(s *dispatch.Session, resp *response.Response, duration time.Duration, out io.Writer)
}

// ErrorHandler handles study errors and returns exit codes.
type ErrorHandler interface {
	HandleError(err error, duration time.Duration, out io.Writer) int
}
