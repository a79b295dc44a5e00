package orchestration

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/agbru/hiersurr/internal/dispatch"
	apperrors "github.com/agbru/hiersurr/internal/errors"
	"github.com/agbru/hiersurr/internal/response"
)

// Sampler draws uniform points in a box.
type Sampler struct {
	rng          *rand.Rand
	lower, upper []float64
}

// NewSampler returns a sampler seeded with seed over [lower, upper].
func NewSampler(seed uint64, lower, upper []float64) (*Sampler, error) {
	if len(lower) != len(upper) || len(lower) == 0 {
		return nil, apperrors.ValidationError{Field: "bounds", Message: fmt.Sprintf("%d lower and %d upper bounds", len(lower), len(upper))}
	}
	for i := range lower {
		if lower[i] > upper[i] {
			return nil, apperrors.ValidationError{Field: "bounds", Message: fmt.Sprintf("lower bound %g exceeds upper bound %g for variable %d", lower[i], upper[i], i)}
		}
	}
	return &Sampler{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), lower: lower, upper: upper}, nil
}

// Draw returns n points.
func (s *Sampler) Draw(n int) []response.Variables {
	out := make([]response.Variables, n)
	for i := range out {
		x := make([]float64, len(s.lower))
		for j := range x {
			x[j] = s.lower[j] + s.rng.Float64()*(s.upper[j]-s.lower[j])
		}
		out[i] = response.Variables{Continuous: x}
	}
	return out
}

// RunBatch evaluates every point under session s and returns the responses
// in point order. Asynchronous sessions keep up to s.Capacity() evaluations
// in flight, collecting finished ones with SynchronizeNowait and waiting
// with Synchronize only when nothing has finished yet.
//
// Parameters:
//   - ctx: cancels the batch.
//   - ev: the dispatcher.
//   - s: the session the points are evaluated under.
//   - points: the inputs.
//   - set: the request for every point.
//   - progress: receives the completed fraction; may be nil.
//   - phase: the phase index reported with progress.
//
// Returns:
//   - []*response.Response: one response per point.
//   - error: the first evaluation or synchronization failure.
func RunBatch(ctx context.Context, ev Evaluator, s *dispatch.Session, points []response.Variables, set response.ActiveSet, progress chan<- ProgressUpdate, phase int) ([]*response.Response, error) {
	out := make([]*response.Response, len(points))
	report := func(done int) {
		if progress == nil || len(points) == 0 {
			return
		}
		select {
		case progress <- ProgressUpdate{Phase: phase, Value: float64(done) / float64(len(points))}:
		case <-ctx.Done():
		}
	}

	if !s.Asynchronous() {
		for i, p := range points {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			r, err := ev.Evaluate(ctx, s, p, set)
			if err != nil {
				return nil, fmt.Errorf("point %d: %w", i, err)
			}
			out[i] = r
			report(i + 1)
		}
		return out, nil
	}

	inflight := make(map[dispatch.Handle]int, s.Capacity())
	next, done := 0, 0
	for done < len(points) {
		for next < len(points) && len(inflight) < s.Capacity() {
			h, err := ev.EvaluateAsync(ctx, s, points[next], set)
			if err != nil {
				return nil, fmt.Errorf("point %d: %w", next, err)
			}
			inflight[h] = next
			next++
		}
		got, err := ev.SynchronizeNowait(ctx)
		if err != nil {
			return nil, err
		}
		if len(got) == 0 {
			if got, err = ev.Synchronize(ctx); err != nil {
				return nil, err
			}
			if len(got) == 0 {
				return nil, fmt.Errorf("batch stalled with %d evaluations in flight", len(inflight))
			}
		}
		for h, r := range got {
			i, ok := inflight[h]
			if !ok {
				return nil, apperrors.ValidationError{Field: "handle", Message: fmt.Sprintf("unexpected handle %d", h)}
			}
			delete(inflight, h)
			out[i] = r
			done++
		}
		report(done)
	}
	return out, nil
}
