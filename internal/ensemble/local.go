package ensemble

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/agbru/hiersurr/internal/activekey"
	apperrors "github.com/agbru/hiersurr/internal/errors"
	"github.com/agbru/hiersurr/internal/logging"
	"github.com/agbru/hiersurr/internal/response"
)

// Func computes one response of a model at a solution level.
type Func func(ctx context.Context, level int, vars response.Variables, set response.ActiveSet) (*response.Response, error)

// LocalOptions configures a LocalModel.
type LocalOptions struct {
	// NumFunctions is the number of outputs Func produces.
	NumFunctions int
	// Levels is the number of solution levels; values below 1 mean 1.
	Levels int
	// Concurrency bounds the launches running at once; values below 1 mean 1.
	Concurrency int
	// Async makes EvaluateAsync overlap launches. When false every launch
	// completes before EvaluateAsync returns.
	Async bool
	// Latency is added to every evaluation to emulate an expensive model.
	Latency time.Duration
	// Logger receives debug traces; nil disables logging.
	Logger logging.Logger
}

type completion struct {
	id   int
	resp *response.Response
	err  error
}

// LocalModel runs a Func in-process. Asynchronous launches run on a
// semaphore-bounded pool of goroutines which only ever send their result on
// a model-local channel; Synchronize is the single reader.
type LocalModel struct {
	name    string
	fn      Func
	opts    LocalOptions
	sem     *semaphore.Weighted
	logger  logging.Logger
	level   int
	nextID  int
	pending int
	done    chan completion
	current *response.Response
	ready   []completion
}

// NewLocalModel creates a LocalModel named name evaluating fn.
func NewLocalModel(name string, fn Func, opts LocalOptions) *LocalModel {
	opts.Levels = max(opts.Levels, 1)
	opts.Concurrency = max(opts.Concurrency, 1)
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	return &LocalModel{
		name:   name,
		fn:     fn,
		opts:   opts,
		sem:    semaphore.NewWeighted(int64(opts.Concurrency)),
		logger: logger,
		level:  opts.Levels - 1,
		done:   make(chan completion, opts.Concurrency),
	}
}

func (m *LocalModel) Name() string { return m.name }
func (m *LocalModel) NumFunctions() int { return m.opts.NumFunctions }
func (m *LocalModel) CurrentResponse() *response.Response { return m.current }
func (m *LocalModel) Capacity() int { return m.opts.Concurrency }
func (m *LocalModel) Asynchronous() bool { return m.opts.Async }
func (m *LocalModel) SolutionLevels() int { return m.opts.Levels }
func (m *LocalModel) Level() int { return m.level }

// SetSolutionLevel selects the level for later evaluations. NoLevel selects
// the finest level.
func (m *LocalModel) SetSolutionLevel(level int) error {
	if level == activekey.NoLevel {
		m.level = m.opts.Levels - 1
		return nil
	}
	if level < 0 || level >= m.opts.Levels {
		return fmt.Errorf("level %d out of range [0,%d)", level, m.opts.Levels)
	}
	m.level = level
	return nil
}

// Evaluate runs fn at the current level and records the result as the
// current response.
func (m *LocalModel) Evaluate(ctx context.Context, vars response.Variables, set response.ActiveSet) (*response.Response, error) {
	resp, err := m.run(ctx, m.level, vars, set)
	if err != nil {
		return nil, apperrors.ModelError{Model: m.name, Cause: err}
	}
	m.current = resp
	return resp, nil
}

// EvaluateAsync launches fn on the pool. The solution level in effect now is
// the one the launch uses, whatever happens to the model afterwards.
func (m *LocalModel) EvaluateAsync(ctx context.Context, vars response.Variables, set response.ActiveSet) (int, error) {
	m.nextID++
	c := completion{id: m.nextID}
	level := m.level
	vars, set = vars.Copy(), set.Copy()

	if !m.opts.Async {
		c.resp, c.err = m.run(ctx, level, vars, set)
		m.ready = append(m.ready, c)
		return c.id, nil
	}

	m.pending++
	m.logger.Debug("launch", logging.String("model", m.name), logging.Int("id", c.id), logging.Int("level", level))
	go func() {
		// Launched work is never canceled.
		_ = m.sem.Acquire(context.Background(), 1)
		c.resp, c.err = m.run(context.Background(), level, vars, set)
		m.sem.Release(1)
		m.done <- c
	}()
	return c.id, nil
}

// Synchronize collects completions. A blocking call waits for every
// outstanding launch unless ctx ends first, in which case nothing collected
// so far is lost: it is returned by the next call. Successful completions
// are returned together with the first failure, if any.
func (m *LocalModel) Synchronize(ctx context.Context, block bool) (map[int]*response.Response, error) {
	got := m.ready
	m.ready = nil
drain:
	for m.pending > 0 {
		select {
		case c := <-m.done:
			m.pending--
			got = append(got, c)
		default:
			break drain
		}
	}
	for block && m.pending > 0 {
		select {
		case <-ctx.Done():
			m.ready = got
			return nil, ctx.Err()
		case c := <-m.done:
			m.pending--
			got = append(got, c)
		}
	}

	out := make(map[int]*response.Response, len(got))
	var failed *FailedError
	for _, c := range got {
		if c.err != nil {
			if failed == nil {
				failed = &FailedError{Err: c.err}
			}
			failed.IDs = append(failed.IDs, c.id)
			continue
		}
		out[c.id] = c.resp
	}
	if failed != nil {
		sort.Ints(failed.IDs)
		return out, apperrors.ModelError{Model: m.name, Cause: failed}
	}
	return out, nil
}

// Outstanding returns the number of launches not yet collected.
func (m *LocalModel) Outstanding() int { return m.pending + len(m.ready) }

func (m *LocalModel) run(ctx context.Context, level int, vars response.Variables, set response.ActiveSet) (*response.Response, error) {
	if m.opts.Latency > 0 {
		t := time.NewTimer(m.opts.Latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	return m.fn(ctx, level, vars, set)
}
