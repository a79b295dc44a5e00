package dispatch

import (
	"fmt"
	"slices"

	"github.com/agbru/hiersurr/internal/correction"
	apperrors "github.com/agbru/hiersurr/internal/errors"
	"github.com/agbru/hiersurr/internal/response"
)

// Split is the part of a request routed to each fidelity. A side whose set
// is empty is not evaluated.
type Split struct {
	LF response.ActiveSet
	HF response.ActiveSet
}

// RunLF reports whether the surrogate model is evaluated.
func (s Split) RunLF() bool { return !s.LF.Empty() }

// RunHF reports whether the truth model is evaluated.
func (s Split) RunHF() bool { return !s.HF.Empty() }

// splitByIndices routes the outputs in surrogate (all when nil) to the
// surrogate model and the rest to the truth model. Both masks keep the full
// request length.
func splitByIndices(set response.ActiveSet, surrogate []int) Split {
	lf, hf := set.Copy(), set.Copy()
	for i := range set.Requests {
		if surrogate == nil || slices.Contains(surrogate, i) {
			hf.Requests[i] = 0
		} else {
			lf.Requests[i] = 0
		}
	}
	return Split{LF: lf, HF: hf}
}

// splitAggregated routes the first numHF outputs to the truth model and
// the remaining numLF to the surrogate.
func splitAggregated(set response.ActiveSet, numHF, numLF int) (Split, error) {
	if len(set.Requests) != numHF+numLF {
		return Split{}, apperrors.ValidationError{Field: "requests", Message: fmt.Sprintf(
			"aggregated request has %d entries, want %d truth + %d surrogate", len(set.Requests), numHF, numLF)}
	}
	return Split{
		HF: response.ActiveSet{Requests: slices.Clone(set.Requests[:numHF]), DerivVars: slices.Clone(set.DerivVars)},
		LF: response.ActiveSet{Requests: slices.Clone(set.Requests[numHF:]), DerivVars: slices.Clone(set.DerivVars)},
	}, nil
}

// withSupportingData adds to every requested output the data a correction
// of type t reads besides the requested components: the value, and for
// quotient-based types the gradient wherever a Hessian is requested.
func withSupportingData(set response.ActiveSet, t correction.Type) response.ActiveSet {
	out := set.Copy()
	for i, r := range out.Requests {
		if r == 0 {
			continue
		}
		r |= response.Value
		if t != correction.Additive && r&response.Hessian != 0 {
			r |= response.Gradient
		}
		out.Requests[i] = r
	}
	return out
}

// SplitRequest divides a request between the fidelities for a mode.
//
// Parameters:
//   - mode: the response mode.
//   - set: the caller's request.
//   - surrogate: the surrogate output indices, nil for all outputs.
//   - numHF, numLF: the output counts of the truth and surrogate models.
//
// Returns:
//   - Split: the per-fidelity requests.
//   - error: a ValidationError when an aggregated request has the wrong length.
func SplitRequest(mode response.Mode, set response.ActiveSet, surrogate []int, numHF, numLF int) (Split, error) {
	h, ok := handlerFor(mode)
	if !ok {
		return Split{}, apperrors.NewConfigError("unknown response mode %s", mode)
	}
	return h.split(set, surrogate, numHF, numLF)
}
