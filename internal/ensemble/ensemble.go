package ensemble

import (
	"fmt"

	"github.com/agbru/hiersurr/internal/activekey"
	apperrors "github.com/agbru/hiersurr/internal/errors"
)

// Ensemble is an ordered, fixed sequence of fidelity models.
type Ensemble struct {
	models []Model
}

// New builds an ensemble from models ordered by increasing fidelity.
//
// Returns:
//   - *Ensemble: the ensemble.
//   - error: a ConfigError when no model is given or a model is nil.
func New(models ...Model) (*Ensemble, error) {
	if len(models) == 0 {
		return nil, apperrors.NewConfigError("ensemble: at least one model is required")
	}
	for i, m := range models {
		if m == nil {
			return nil, apperrors.NewConfigError("ensemble: model form %d is nil", i)
		}
	}
	return &Ensemble{models: append([]Model(nil), models...)}, nil
}

// NumForms returns the number of model forms.
func (e *Ensemble) NumForms() int { return len(e.models) }

// NumLevels returns the solution levels offered by a form, or 0 when the
// form does not exist.
func (e *Ensemble) NumLevels(form int) int {
	if form < 0 || form >= len(e.models) {
		return 0
	}
	return max(e.models[form].SolutionLevels(), 1)
}

// Model returns the model at a form index.
func (e *Ensemble) Model(form int) (Model, error) {
	if form < 0 || form >= len(e.models) {
		return nil, apperrors.NewConfigError("ensemble: model form %d out of range [0,%d)", form, len(e.models))
	}
	return e.models[form], nil
}

// Models returns the models in fidelity order.
func (e *Ensemble) Models() []Model { return append([]Model(nil), e.models...) }

// Multifidelity reports whether more than one model form is present.
func (e *Ensemble) Multifidelity() bool { return len(e.models) > 1 }

// Multilevel reports whether the truth form offers more than one level.
func (e *Ensemble) Multilevel() bool { return e.NumLevels(len(e.models)-1) > 1 }

// DefaultKeys returns the keys active before a caller selects its own.
// With both hierarchies present the pair spans the cheapest form at its
// coarsest level and the truth form at its finest level. Pure model form
// hierarchies carry no level, and pure level hierarchies stay on the truth
// form.
func (e *Ensemble) DefaultKeys() activekey.Set {
	last := len(e.models) - 1
	top := e.NumLevels(last) - 1
	var truth, surr activekey.Key
	switch {
	case e.Multifidelity() && e.Multilevel():
		truth = activekey.New(0, last, top)
		surr = activekey.New(0, 0, 0)
	case e.Multifidelity():
		truth = activekey.New(0, last, activekey.NoLevel)
		surr = activekey.New(0, 0, activekey.NoLevel)
	case e.Multilevel():
		truth = activekey.New(0, last, top)
		surr = activekey.New(0, last, 0)
	default:
		truth = activekey.New(0, 0, activekey.NoLevel)
		surr = truth
	}
	return activekey.NewSet(truth, surr)
}

// KeysFor derives the truth and surrogate keys for an active key. An
// aggregated key is split; a simple key designates the truth model and the
// surrogate alike. KeysFor has no side effects.
func (e *Ensemble) KeysFor(active activekey.Key) activekey.Set {
	return activekey.FromActive(active)
}

// Validate checks that a simple key designates an existing model and level.
func (e *Ensemble) Validate(key activekey.Key) error {
	if key.IsEmpty() {
		return apperrors.NewConfigError("ensemble: empty key")
	}
	if key.IsAggregated() {
		return apperrors.NewConfigError("ensemble: key %s designates two models", key)
	}
	if _, err := e.Model(key.Form()); err != nil {
		return err
	}
	if lev := key.Level(); lev != activekey.NoLevel && lev >= e.NumLevels(key.Form()) {
		return apperrors.NewConfigError("ensemble: level %d out of range for model form %d (%d levels)",
			lev, key.Form(), e.NumLevels(key.Form()))
	}
	return nil
}

// Assign resolves a simple key to its model and selects the key's solution
// level on it. The level is set on every call because two keys may share a
// model instance at different levels.
func (e *Ensemble) Assign(key activekey.Key) (Model, error) {
	if err := e.Validate(key); err != nil {
		return nil, err
	}
	m := e.models[key.Form()]
	if err := m.SetSolutionLevel(key.Level()); err != nil {
		return nil, apperrors.ModelError{Model: m.Name(), Cause: fmt.Errorf("set solution level %d: %w", key.Level(), err)}
	}
	return m, nil
}

// SameInstance reports whether two keys resolve to the same model value.
func (e *Ensemble) SameInstance(a, b activekey.Key) bool {
	if a.IsEmpty() || b.IsEmpty() {
		return false
	}
	fa, fb := a.Form(), b.Form()
	if fa < 0 || fb < 0 || fa >= len(e.models) || fb >= len(e.models) {
		return false
	}
	return fa == fb || e.models[fa] == e.models[fb]
}
