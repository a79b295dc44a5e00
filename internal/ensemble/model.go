// Package ensemble holds the ordered sequence of fidelity models and maps
// active keys onto them.
//
// Models are ordered from lowest to highest fidelity: form 0 is the
// cheapest model form and the last form is the truth. Inside a form, a
// model may offer several solution levels ordered from coarse to fine.
package ensemble

//go:generate mockgen -source=model.go -destination=mocks/mock_model.go -package=mocks

import (
	"context"
	"fmt"

	"github.com/agbru/hiersurr/internal/response"
)

// Model is a single fidelity model. Implementations are driven by one
// controlling goroutine; only the work launched by EvaluateAsync may run
// concurrently, and its completions are collected by Synchronize.
type Model interface {
	// Name identifies the model in logs and errors.
	Name() string
	// NumFunctions is the number of outputs the model produces.
	NumFunctions() int
	// Evaluate runs one blocking evaluation.
	Evaluate(ctx context.Context, vars response.Variables, set response.ActiveSet) (*response.Response, error)
	// EvaluateAsync launches one evaluation and returns its model-local id.
	// Ids are monotonic per model.
	EvaluateAsync(ctx context.Context, vars response.Variables, set response.ActiveSet) (int, error)
	// Synchronize returns completions keyed by model-local id. With block
	// set it waits for every outstanding launch; otherwise it returns only
	// what has already finished, possibly nothing. Launches that failed are
	// left out of the map and named by a *FailedError in the error chain.
	Synchronize(ctx context.Context, block bool) (map[int]*response.Response, error)
	// CurrentResponse is the result of the most recent blocking evaluation.
	CurrentResponse() *response.Response
	// Capacity is the number of evaluations the model can run at once.
	Capacity() int
	// Asynchronous reports whether launches really overlap.
	Asynchronous() bool
	// SolutionLevels is the number of discretization levels (at least 1).
	SolutionLevels() int
	// SetSolutionLevel selects the level used by subsequent evaluations.
	// activekey.NoLevel selects the model's default level.
	SetSolutionLevel(level int) error
}

// FailedError names the model-local ids of launches that completed with an
// error. Those ids are never returned by a later Synchronize.
type FailedError struct {
	IDs []int
	Err error
}

func (e *FailedError) Error() string {
	if len(e.IDs) == 1 {
		return fmt.Sprintf("evaluation %d: %v", e.IDs[0], e.Err)
	}
	return fmt.Sprintf("evaluations %v: %v", e.IDs, e.Err)
}

func (e *FailedError) Unwrap() error { return e.Err }
