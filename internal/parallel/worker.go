package parallel

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/agbru/hiersurr/internal/ensemble"
	apperrors "github.com/agbru/hiersurr/internal/errors"
	"github.com/agbru/hiersurr/internal/logging"
	"github.com/agbru/hiersurr/internal/response"
)

// ErrNoActiveModel is returned by Worker.Evaluate before any model has been
// designated or after the designated model was stopped.
var ErrNoActiveModel = errors.New("parallel: no active model")

// Worker serves evaluations for whichever model the announcement stream
// designates. A Worker is driven by one goroutine.
type Worker struct {
	name    string
	ens     *ensemble.Ensemble
	logger  logging.Logger
	state   State
	mode    response.Mode
	current ensemble.Model
	lastSeq uint64
	served  int
}

// NewWorker creates a worker routing into ens.
func NewWorker(name string, ens *ensemble.Ensemble, logger logging.Logger) *Worker {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Worker{name: name, ens: ens, logger: logger}
}

// State returns the state announced last.
func (w *Worker) State() State { return w.state }

// Served returns the number of evaluations the worker ran.
func (w *Worker) Served() int { return w.served }

// Serve processes announcements until the terminal Idle announcement, the
// channel closing or ctx ending.
func (w *Worker) Serve(ctx context.Context, in <-chan Announcement) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case a, ok := <-in:
			if !ok {
				return nil
			}
			done, err := w.Handle(a)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}
	}
}

// Handle applies one announcement. It reports true on the terminal Idle
// announcement.
func (w *Worker) Handle(a Announcement) (bool, error) {
	if a.Seq != 0 && a.Seq <= w.lastSeq {
		w.logger.Warn("stale announcement ignored", logging.String("worker", w.name), logging.Uint64("seq", a.Seq))
		return false, nil
	}
	w.lastSeq = a.Seq
	if a.Stop {
		w.current = nil
		return false, nil
	}
	switch a.State {
	case Idle:
		w.state, w.current = Idle, nil
		return true, nil
	case TruthActive:
		if a.Mode == response.UncorrectedSurrogate {
			return false, apperrors.NewConfigError("worker %s: truth model requested under %s mode", w.name, a.Mode)
		}
	case SurrogateActive:
	default:
		return false, apperrors.NewConfigError("worker %s: unknown state %d", w.name, uint8(a.State))
	}
	m, err := w.ens.Assign(a.Key())
	if err != nil {
		return false, fmt.Errorf("worker %s: %w", w.name, err)
	}
	w.state, w.mode, w.current = a.State, a.Mode, m
	w.logger.Debug("serving", logging.String("worker", w.name), logging.String("model", m.Name()), logging.Stringer("state", a.State))
	return false, nil
}

// Evaluate runs one evaluation on the designated model.
func (w *Worker) Evaluate(ctx context.Context, vars response.Variables, set response.ActiveSet) (*response.Response, error) {
	if w.current == nil {
		return nil, ErrNoActiveModel
	}
	w.served++
	return w.current.Evaluate(ctx, vars, set)
}

// RunWorkers serves every worker on its own subscription until all of them
// return. The first failure cancels the others.
func RunWorkers(ctx context.Context, workers []*Worker, subs []<-chan Announcement) error {
	if len(workers) != len(subs) {
		return fmt.Errorf("parallel: %d workers for %d subscriptions", len(workers), len(subs))
	}
	g, ctx := errgroup.WithContext(ctx)
	for i, w := range workers {
		w, in := w, subs[i]
		g.Go(func() error { return w.Serve(ctx, in) })
	}
	return g.Wait()
}
