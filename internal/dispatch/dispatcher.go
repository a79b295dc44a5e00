// Package dispatch evaluates hierarchical responses. A Dispatcher splits
// each request between the surrogate and truth models according to the
// session's response mode, launches the evaluations synchronously or
// asynchronously, re-associates asynchronous completions with the request
// that issued them and combines the fidelities into one response.
//
// A Dispatcher is driven by a single goroutine. Only the models' own
// workers run concurrently with it, and Synchronize is the only call that
// waits on them.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/agbru/hiersurr/internal/activekey"
	"github.com/agbru/hiersurr/internal/correction"
	"github.com/agbru/hiersurr/internal/ensemble"
	apperrors "github.com/agbru/hiersurr/internal/errors"
	"github.com/agbru/hiersurr/internal/logging"
	"github.com/agbru/hiersurr/internal/parallel"
	"github.com/agbru/hiersurr/internal/rekey"
	"github.com/agbru/hiersurr/internal/response"
)

// Handle identifies one top-level evaluation. Handles increase by one with
// every Evaluate or EvaluateAsync call.
type Handle int

// ModeSwitcher is told which fidelity is about to be evaluated.
// *parallel.Coordinator implements it.
type ModeSwitcher interface {
	Activate(ctx context.Context, state parallel.State, mode response.Mode, key activekey.Key) error
}

// Recorder receives dispatcher measurements. *metrics.Metrics implements it.
type Recorder interface {
	// EvaluationStarted counts one sub-model evaluation.
	EvaluationStarted(mode response.Mode, slot rekey.Slot, async bool)
	// ApproximationBuilt counts one truth build for a corrected mode.
	ApproximationBuilt()
	// CorrectionsApplied counts applied correction pairs.
	CorrectionsApplied(n int)
	// ResponsesEmitted counts combined responses returned to callers.
	ResponsesEmitted(mode response.Mode, n int)
	// Backlog reports the pending and cached map sizes of a slot.
	Backlog(slot rekey.Slot, pending, cached int)
}

type nopRecorder struct{}

func (nopRecorder) EvaluationStarted(response.Mode, rekey.Slot, bool) {}
func (nopRecorder) ApproximationBuilt()                               {}
func (nopRecorder) CorrectionsApplied(int)                            {}
func (nopRecorder) ResponsesEmitted(response.Mode, int)               {}
func (nopRecorder) Backlog(rekey.Slot, int, int)                      {}

type nopSwitcher struct{}

func (nopSwitcher) Activate(context.Context, parallel.State, response.Mode, activekey.Key) error {
	return nil
}

// RebuildFunc reports whether the approximation built at last must be
// rebuilt before evaluating at current.
type RebuildFunc func(last, current response.Variables) bool

// InactiveChanged is the default RebuildFunc: rebuild when the inactive
// variables moved.
func InactiveChanged(last, current response.Variables) bool {
	return !slices.Equal(last.Inactive, current.Inactive)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option { return func(d *Dispatcher) { d.logger = l } }

// WithRecorder sets the measurement sink.
func WithRecorder(r Recorder) Option { return func(d *Dispatcher) { d.recorder = r } }

// WithCoordinator announces every fidelity change to s. Workers refuse to
// serve the truth model under UNCORRECTED_SURROGATE, so such sessions must
// route every output to the surrogate.
func WithCoordinator(s ModeSwitcher) Option {
	return func(d *Dispatcher) { d.switcher, d.coordinated = s, true }
}

// WithCorrection sets the correction type and order. Corrected modes
// default to a zeroth order additive correction.
func WithCorrection(t correction.Type, order int) Option {
	return func(d *Dispatcher) { d.corrSettings.Type, d.corrSettings.Order = t, order }
}

// WithPropagation selects how corrections are chained across the hierarchy.
func WithPropagation(p correction.Propagation) Option { return func(d *Dispatcher) { d.propagation = p } }

// WithSurrogateIndices restricts surrogate evaluation to these outputs in
// the uncorrected and auto-corrected modes. The others go to the truth model.
func WithSurrogateIndices(idx ...int) Option {
	return func(d *Dispatcher) { d.surrogateIdx = slices.Clone(idx) }
}

// WithRebuild replaces the rebuild predicate.
func WithRebuild(fn RebuildFunc) Option { return func(d *Dispatcher) { d.rebuild = fn } }

// WithTracer sets the tracer used for spans.
func WithTracer(t trace.Tracer) Option { return func(d *Dispatcher) { d.tracer = t } }

// Dispatcher evaluates hierarchical responses over an ensemble.
type Dispatcher struct {
	ens          *ensemble.Ensemble
	engine       *correction.Engine
	rk           *rekey.Rekeyer
	logger       logging.Logger
	recorder     Recorder
	switcher     ModeSwitcher
	coordinated  bool
	tracer       trace.Tracer
	corrSettings correction.Settings
	propagation  correction.Propagation
	surrogateIdx []int
	rebuild      RebuildFunc

	counter  int
	sessions int
	// owner maps every outstanding top-level id to its session.
	owner map[int]*Session
	// builds records the variables of the last truth build per active key.
	builds map[activekey.Key]response.Variables
	// launches maps model-local ids to dispatcher-wide launch ids per model.
	launches map[ensemble.Model]map[int]int
	// launchSeq numbers launches across all models.
	launchSeq int
	// empty holds the responses of requests that asked for nothing.
	empty map[int]*response.Response
	// discarded holds launch ids whose evaluation was abandoned after its
	// partner failed; their completions are dropped on arrival.
	discarded map[int]bool
}

// New creates a dispatcher over ens.
//
// Returns:
//   - *Dispatcher: the dispatcher.
//   - error: a ConfigError for invalid correction settings.
func New(ens *ensemble.Ensemble, opts ...Option) (*Dispatcher, error) {
	if ens == nil {
		return nil, apperrors.NewConfigError("dispatch: nil ensemble")
	}
	d := &Dispatcher{
		ens:          ens,
		rk:           rekey.New(),
		logger:       logging.Nop(),
		recorder:     nopRecorder{},
		switcher:     nopSwitcher{},
		tracer:       otel.Tracer("github.com/agbru/hiersurr/internal/dispatch"),
		corrSettings: correction.Settings{Type: correction.Additive},
		rebuild:      InactiveChanged,
		owner:        make(map[int]*Session),
		builds:       make(map[activekey.Key]response.Variables),
		launches:     make(map[ensemble.Model]map[int]int),
		empty:        make(map[int]*response.Response),
		discarded:    make(map[int]bool),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.corrSettings.Type == 0 {
		d.corrSettings.Type = correction.Additive
	}
	d.corrSettings.Indices = d.surrogateIdx
	engine, err := correction.NewEngine(d.corrSettings)
	if err != nil {
		return nil, err
	}
	d.engine = engine
	return d, nil
}

// Engine exposes the correction engine.
func (d *Dispatcher) Engine() *correction.Engine { return d.engine }

// Ensemble returns the model ensemble.
func (d *Dispatcher) Ensemble() *ensemble.Ensemble { return d.ens }

// Evaluations returns the number of top-level evaluations issued so far.
func (d *Dispatcher) Evaluations() int { return d.counter }

// Outstanding returns the number of asynchronous evaluations not yet
// returned by a synchronize call.
func (d *Dispatcher) Outstanding() int { return len(d.owner) }

// Backlog returns the pending and cached counts of a slot.
func (d *Dispatcher) Backlog(slot rekey.Slot) (pending, cached int) {
	return d.rk.Pending(slot), d.rk.CachedCount(slot)
}

func (d *Dispatcher) prepare(s *Session, set response.ActiveSet) (Split, error) {
	if s == nil {
		return Split{}, apperrors.ValidationError{Field: "session", Message: "nil session"}
	}
	if len(set.Requests) != s.size {
		return Split{}, apperrors.ValidationError{Field: "requests", Message: fmt.Sprintf(
			"%s expects %d requests, got %d", s, s.size, len(set.Requests))}
	}
	split, err := s.handler.split(set, d.surrogateIdx, s.hf.NumFunctions(), s.lf.NumFunctions())
	if err != nil {
		return Split{}, err
	}
	// Corrections are computed from and applied to the surrogate value even
	// when only derivatives were asked for.
	switch t := d.corrSettings.Type; {
	case s.handler.corrected:
		split.LF = withSupportingData(split.LF, t)
	case s.mode == response.ModelDiscrepancy && t == correction.Multiplicative:
		split.LF, split.HF = withSupportingData(split.LF, t), withSupportingData(split.HF, t)
	}
	return split, nil
}

// assign designates the model of a slot for evaluation: it announces the
// change to workers and resets the model's solution level.
func (d *Dispatcher) assign(ctx context.Context, s *Session, slot rekey.Slot) (ensemble.Model, error) {
	state, key := parallel.TruthActive, s.keys.Truth
	if slot == rekey.Surrogate {
		state, key = parallel.SurrogateActive, s.keys.Surrogate
	}
	if err := d.switcher.Activate(ctx, state, s.mode, key); err != nil {
		return nil, apperrors.WrapError(err, "activate %s", state)
	}
	return d.ens.Assign(key)
}

// Evaluate runs one blocking top-level evaluation.
//
// Parameters:
//   - ctx: cancels blocking model calls.
//   - s: the session fixing mode and keys.
//   - vars: the input variables.
//   - set: the request, sized by s.NumFunctions().
//
// Returns:
//   - *response.Response: the combined response.
//   - error: a ValidationError for a malformed request, a ModelError for a
//     failed sub-evaluation.
func (d *Dispatcher) Evaluate(ctx context.Context, s *Session, vars response.Variables, set response.ActiveSet) (*response.Response, error) {
	split, err := d.prepare(s, set)
	if err != nil {
		return nil, err
	}
	d.counter++
	top := d.counter
	ctx, span := d.tracer.Start(ctx, "dispatch.Evaluate", trace.WithAttributes(
		attribute.String("mode", s.mode.String()),
		attribute.Int("eval_id", top),
		attribute.Bool("truth", split.RunHF()),
		attribute.Bool("surrogate", split.RunLF()),
	))
	defer span.End()

	resp, err := d.evaluate(ctx, s, vars, split)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "evaluation failed")
		return nil, err
	}
	d.recorder.ResponsesEmitted(s.mode, 1)
	return resp, nil
}

func (d *Dispatcher) evaluate(ctx context.Context, s *Session, vars response.Variables, split Split) (*response.Response, error) {
	if !split.RunHF() && !split.RunLF() {
		return emptyResponse(s), nil
	}
	if s.handler.corrected && split.RunLF() {
		if err := d.ensureBuilt(ctx, s, vars, split.LF.DerivVars); err != nil {
			return nil, err
		}
	}
	var hi, lo *response.Response
	if split.RunHF() {
		m, err := d.assign(ctx, s, rekey.Truth)
		if err != nil {
			return nil, err
		}
		d.recorder.EvaluationStarted(s.mode, rekey.Truth, false)
		if hi, err = m.Evaluate(ctx, vars, split.HF); err != nil {
			return nil, modelError(m, err)
		}
	}
	if split.RunLF() {
		m, err := d.assign(ctx, s, rekey.Surrogate)
		if err != nil {
			return nil, err
		}
		d.recorder.EvaluationStarted(s.mode, rekey.Surrogate, false)
		if lo, err = m.Evaluate(ctx, vars, split.LF); err != nil {
			return nil, modelError(m, err)
		}
		if s.handler.corrected {
			lo = lo.Copy()
			if err := d.correct(s, vars, lo); err != nil {
				return nil, err
			}
		}
	}
	return s.handler.combine(d, s, hi, lo)
}

// EvaluateAsync issues one top-level evaluation without waiting for it.
// Launches on asynchronous models happen first; synchronous models are then
// evaluated in place and their results held until the next synchronize
// call returns the handle.
func (d *Dispatcher) EvaluateAsync(ctx context.Context, s *Session, vars response.Variables, set response.ActiveSet) (Handle, error) {
	split, err := d.prepare(s, set)
	if err != nil {
		return 0, err
	}
	d.counter++
	top := d.counter
	ctx, span := d.tracer.Start(ctx, "dispatch.EvaluateAsync", trace.WithAttributes(
		attribute.String("mode", s.mode.String()),
		attribute.Int("eval_id", top),
	))
	defer span.End()

	if s.handler.corrected && split.RunLF() {
		if err := d.ensureBuilt(ctx, s, vars, split.LF.DerivVars); err != nil {
			span.RecordError(err)
			return 0, err
		}
	}

	type job struct {
		slot rekey.Slot
		set  response.ActiveSet
	}
	var nonblocking, blocking []job
	for _, j := range []job{{rekey.Truth, split.HF}, {rekey.Surrogate, split.LF}} {
		if j.set.Empty() {
			continue
		}
		m := s.hf
		if j.slot == rekey.Surrogate {
			m = s.lf
		}
		if m.Asynchronous() {
			nonblocking = append(nonblocking, j)
		} else {
			blocking = append(blocking, j)
		}
	}

	if len(nonblocking)+len(blocking) == 0 {
		d.empty[top] = emptyResponse(s)
		return Handle(top), nil
	}
	d.owner[top] = s
	for _, j := range nonblocking {
		if err := d.launch(ctx, s, top, j.slot, vars, j.set); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "launch failed")
			return 0, err
		}
	}
	for _, j := range blocking {
		m, err := d.assign(ctx, s, j.slot)
		if err != nil {
			return 0, err
		}
		d.recorder.EvaluationStarted(s.mode, j.slot, false)
		resp, err := m.Evaluate(ctx, vars, j.set)
		if err != nil {
			span.RecordError(err)
			return 0, modelError(m, err)
		}
		resp = resp.Copy()
		if j.slot == rekey.Surrogate && s.handler.corrected {
			if err := d.correct(s, vars, resp); err != nil {
				return 0, err
			}
		}
		d.rk.Cache(j.slot, top, resp)
	}
	d.reportBacklog()
	return Handle(top), nil
}

func (d *Dispatcher) launch(ctx context.Context, s *Session, top int, slot rekey.Slot, vars response.Variables, set response.ActiveSet) error {
	m, err := d.assign(ctx, s, slot)
	if err != nil {
		return err
	}
	sub, err := m.EvaluateAsync(ctx, vars, set)
	if err != nil {
		return modelError(m, err)
	}
	d.recorder.EvaluationStarted(s.mode, slot, true)
	d.launchSeq++
	ids, ok := d.launches[m]
	if !ok {
		ids = make(map[int]int)
		d.launches[m] = ids
	}
	ids[sub] = d.launchSeq
	d.rk.Track(slot, d.launchSeq, top)
	if slot == rekey.Surrogate && s.handler.corrected {
		d.rk.StoreVars(top, vars)
	}
	return nil
}

// ensureBuilt runs the truth build of a corrected session when none exists
// for its active key or the rebuild predicate fires.
func (d *Dispatcher) ensureBuilt(ctx context.Context, s *Session, vars response.Variables, dvv []int) error {
	last, built := d.builds[s.keys.Active]
	if built && d.engine.HasTruthRef(s.keys.Truth) && !d.rebuild(last, vars) {
		return nil
	}
	return d.BuildApproximation(ctx, s, vars, dvv)
}

// BuildApproximation evaluates the truth model at vars with the data the
// correction needs and stores the result as the truth reference of the
// session's truth key.
func (d *Dispatcher) BuildApproximation(ctx context.Context, s *Session, vars response.Variables, dvv []int) error {
	ctx, span := d.tracer.Start(ctx, "dispatch.BuildApproximation", trace.WithAttributes(
		attribute.String("truth_key", s.keys.Truth.String()),
	))
	defer span.End()

	if dvv == nil {
		dvv = make([]int, len(vars.Continuous))
		for i := range dvv {
			dvv[i] = i
		}
	}
	n := s.hf.NumFunctions()
	set := response.ActiveSet{Requests: make([]response.Request, n), DerivVars: slices.Clone(dvv)}
	order := d.engine.Settings().Order
	for i := range set.Requests {
		if d.surrogateIdx == nil || slices.Contains(d.surrogateIdx, i) {
			set.Requests[i] = response.DataOrder(order)
		}
	}
	m, err := d.assign(ctx, s, rekey.Truth)
	if err != nil {
		return err
	}
	d.recorder.EvaluationStarted(s.mode, rekey.Truth, false)
	resp, err := m.Evaluate(ctx, vars, set)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "truth build failed")
		return modelError(m, err)
	}
	d.engine.UpdateTruth(s.keys.Truth, vars, resp)
	d.builds[s.keys.Active] = vars.Copy()
	d.recorder.ApproximationBuilt()
	d.logger.Debug("approximation built", logging.Stringer("truth", s.keys.Truth), logging.Int("outputs", n))
	return nil
}

// correct applies the session's correction ladder to resp in place.
func (d *Dispatcher) correct(s *Session, vars response.Variables, resp *response.Response) error {
	n, err := d.engine.Apply(vars, resp, s.pairs)
	if err != nil {
		return err
	}
	d.recorder.CorrectionsApplied(n)
	return nil
}

func (d *Dispatcher) reportBacklog() {
	for _, slot := range []rekey.Slot{rekey.Surrogate, rekey.Truth} {
		d.recorder.Backlog(slot, d.rk.Pending(slot), d.rk.CachedCount(slot))
	}
}

func modelError(m ensemble.Model, err error) error {
	var me apperrors.ModelError
	if errors.As(err, &me) {
		return err
	}
	return apperrors.ModelError{Model: m.Name(), Cause: err}
}

func emptyResponse(s *Session) *response.Response {
	return response.New(response.ActiveSet{Requests: make([]response.Request, s.size)})
}
