package correction

import (
	"fmt"
	"sort"
	"strings"

	"github.com/agbru/hiersurr/internal/activekey"
	apperrors "github.com/agbru/hiersurr/internal/errors"
	"github.com/agbru/hiersurr/internal/response"
)

// Propagation selects which pairs of configurations are corrected when a
// surrogate response is promoted toward the truth.
type Propagation uint8

const (
	// Single corrects with the active pair only.
	Single Propagation = iota
	// FullModelForm sweeps adjacent model forms from the surrogate form up
	// to the top form.
	FullModelForm
	// FullResolution sweeps adjacent solution levels of the surrogate form.
	FullResolution
)

func (p Propagation) String() string {
	switch p {
	case Single:
		return "single"
	case FullModelForm:
		return "full-model-form"
	case FullResolution:
		return "full-resolution"
	}
	return fmt.Sprintf("propagation(%d)", uint8(p))
}

// ParsePropagation parses a propagation policy name.
func ParsePropagation(s string) (Propagation, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-") {
	case "single", "":
		return Single, nil
	case "full-model-form", "model-form":
		return FullModelForm, nil
	case "full-resolution", "resolution":
		return FullResolution, nil
	}
	return 0, apperrors.NewConfigError("unknown correction propagation %q", s)
}

type truthRef struct {
	vars response.Variables
	resp *response.Response
}

// Engine owns the corrections of a hierarchy and the truth references they
// are computed from. Corrections are created on first use and kept for the
// Engine's lifetime. An Engine is not safe for concurrent use.
type Engine struct {
	settings    Settings
	corrections map[activekey.Key]*Correction
	truth       map[activekey.Fidelity]truthRef
	computes    int
}

// NewEngine creates an engine whose corrections share the given settings.
func NewEngine(s Settings) (*Engine, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		settings:    s,
		corrections: make(map[activekey.Key]*Correction),
		truth:       make(map[activekey.Fidelity]truthRef),
	}, nil
}

// Settings returns the engine settings.
func (e *Engine) Settings() Settings { return e.settings }

// Correction returns the correction for an aggregated pair key, creating it
// when absent.
func (e *Engine) Correction(pair activekey.Key) *Correction {
	c, ok := e.corrections[pair]
	if !ok {
		c = New(e.settings)
		e.corrections[pair] = c
	}
	return c
}

// Computed reports whether the correction for pair exists and is computed.
func (e *Engine) Computed(pair activekey.Key) bool {
	c, ok := e.corrections[pair]
	return ok && c.Computed()
}

// Computes returns the number of successful correction computations.
func (e *Engine) Computes() int { return e.computes }

// UpdateTruth stores the latest truth response for a truth key and marks
// every correction targeting that configuration for recomputation.
func (e *Engine) UpdateTruth(truthKey activekey.Key, vars response.Variables, resp *response.Response) {
	f := truthKey.Component(0)
	e.truth[f] = truthRef{vars: vars.Copy(), resp: resp.Copy()}
	for pair, c := range e.corrections {
		if pair.Component(0) == f {
			c.Invalidate()
		}
	}
}

// TruthRef returns the stored truth response for a truth key.
func (e *Engine) TruthRef(truthKey activekey.Key) (*response.Response, response.Variables, bool) {
	ref, ok := e.truth[truthKey.Component(0)]
	return ref.resp, ref.vars, ok
}

// HasTruthRef reports whether a truth response is stored for truthKey.
func (e *Engine) HasTruthRef(truthKey activekey.Key) bool {
	_, ok := e.truth[truthKey.Component(0)]
	return ok
}

// Pairs returns the ordered pair keys a correction pass visits.
//
// Parameters:
//   - policy: the propagation policy.
//   - keys: the active key set.
//   - numForms: the number of model forms in the ensemble.
//   - numLevels: the number of solution levels of the surrogate form.
//
// Returns:
//   - []activekey.Key: aggregated pair keys, lowest fidelity first.
//   - error: a ConfigError when a resolution sweep has no level to start from.
func (e *Engine) Pairs(policy Propagation, keys activekey.Set, numForms, numLevels int) ([]activekey.Key, error) {
	surr := keys.Surrogate.Component(0)
	switch policy {
	case Single:
		return []activekey.Key{keys.Active}, nil
	case FullModelForm:
		var pairs []activekey.Key
		for i := surr.Form; i < numForms-1; i++ {
			hi := activekey.New(i, i+1, surr.Level)
			lo := activekey.New(i, i, surr.Level)
			pairs = append(pairs, activekey.Aggregate(hi, lo, activekey.SingleReduction))
		}
		return pairs, nil
	case FullResolution:
		if !surr.HasLevel() {
			return nil, apperrors.NewConfigError("resolution correction sweep requires a solution level in surrogate key %s", keys.Surrogate)
		}
		var pairs []activekey.Key
		for i := surr.Level; i < numLevels-1; i++ {
			hi := activekey.New(i, surr.Form, i+1)
			lo := activekey.New(i, surr.Form, i)
			pairs = append(pairs, activekey.Aggregate(hi, lo, activekey.SingleReduction))
		}
		return pairs, nil
	}
	return nil, apperrors.NewConfigError("unknown correction propagation %s", policy)
}

// Apply corrects resp at vars with each pair in turn. A pair whose
// correction is not computed is computed from its truth reference and resp
// first; without a truth reference the pair is skipped.
//
// Returns:
//   - int: the number of pairs applied.
//   - error: the first computation failure.
func (e *Engine) Apply(vars response.Variables, resp *response.Response, pairs []activekey.Key) (int, error) {
	applied := 0
	for _, pair := range pairs {
		ok, err := e.singleApply(vars, resp, pair)
		if err != nil {
			return applied, fmt.Errorf("correction %s: %w", pair, err)
		}
		if ok {
			applied++
		}
	}
	return applied, nil
}

func (e *Engine) singleApply(vars response.Variables, resp *response.Response, pair activekey.Key) (bool, error) {
	c := e.Correction(pair)
	if !c.Computed() {
		ok, err := e.ComputeFor(pair, vars, resp)
		if !ok || err != nil {
			return false, err
		}
	}
	return true, c.Apply(vars, resp)
}

// ComputeFor computes the correction for pair from its truth reference and
// approx evaluated at vars. It reports false, without error, when no truth
// reference exists yet.
func (e *Engine) ComputeFor(pair activekey.Key, vars response.Variables, approx *response.Response) (bool, error) {
	truthKey, _ := pair.Split()
	ref, ok := e.truth[truthKey.Component(0)]
	if !ok {
		return false, nil
	}
	if err := e.Correction(pair).Compute(vars, ref.resp, approx); err != nil {
		return false, err
	}
	e.computes++
	return true, nil
}

// Keys returns the pair keys with a correction, in key order.
func (e *Engine) Keys() []activekey.Key {
	keys := make([]activekey.Key, 0, len(e.corrections))
	for k := range e.corrections {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}
