// Package combine merges truth and surrogate responses into the single
// response a hierarchical evaluation returns.
package combine

import (
	"slices"

	"github.com/agbru/hiersurr/internal/correction"
	"github.com/agbru/hiersurr/internal/response"
)

// Discrepancy returns the discrepancy estimate between hi and lo under the
// correction's type.
func Discrepancy(corr *correction.Correction, hi, lo *response.Response) (*response.Response, error) {
	return corr.Discrepancy(hi, lo)
}

// Aggregate concatenates hi and lo into numHF+numLF outputs: the first
// numHF are the truth outputs, the rest the surrogate ones. A nil side
// keeps its place with zero request masks, so every output index means the
// same thing whichever fidelities ran.
func Aggregate(hi, lo *response.Response, numHF, numLF int) *response.Response {
	out := &response.Response{
		Set:       response.ActiveSet{Requests: make([]response.Request, numHF+numLF)},
		Values:    make([]float64, numHF+numLF),
		Gradients: make([][]float64, numHF+numLF),
		Hessians:  make([][][]float64, numHF+numLF),
	}
	place := func(r *response.Response, offset, n int) {
		if r == nil {
			return
		}
		c := r.Copy()
		if out.Set.DerivVars == nil {
			out.Set.DerivVars = c.Set.DerivVars
		}
		for i := 0; i < n && i < c.NumFunctions(); i++ {
			out.Set.Requests[offset+i] = c.Requested(i)
			out.Values[offset+i] = c.Values[i]
			out.Gradients[offset+i] = c.Gradients[i]
			out.Hessians[offset+i] = c.Hessians[i]
		}
	}
	place(hi, 0, numHF)
	place(lo, numHF, numLF)
	return out
}

// Overlay builds the response of a split evaluation: outputs listed in
// surrogate come from lo and every other output from hi. A nil surrogate
// list means every output is a surrogate output. When one side is nil the
// other is returned as a copy.
func Overlay(hi, lo *response.Response, surrogate []int) *response.Response {
	switch {
	case hi == nil:
		return lo.Copy()
	case lo == nil:
		return hi.Copy()
	}
	out := hi.Copy()
	n := max(hi.NumFunctions(), lo.NumFunctions())
	grow(out, n)
	fromLo := func(i int) bool {
		return surrogate == nil || slices.Contains(surrogate, i)
	}
	for i := 0; i < n; i++ {
		if !fromLo(i) || i >= lo.NumFunctions() {
			continue
		}
		out.Set.Requests[i] = lo.Requested(i)
		out.Values[i] = lo.Values[i]
		out.Gradients[i] = slices.Clone(lo.Gradients[i])
		if lo.Hessians[i] != nil {
			h := make([][]float64, len(lo.Hessians[i]))
			for j, row := range lo.Hessians[i] {
				h[j] = slices.Clone(row)
			}
			out.Hessians[i] = h
		} else {
			out.Hessians[i] = nil
		}
	}
	if out.Set.DerivVars == nil {
		out.Set.DerivVars = slices.Clone(lo.Set.DerivVars)
	}
	return out
}

func grow(r *response.Response, n int) {
	for len(r.Values) < n {
		r.Values = append(r.Values, 0)
		r.Gradients = append(r.Gradients, nil)
		r.Hessians = append(r.Hessians, nil)
	}
	for len(r.Set.Requests) < n {
		r.Set.Requests = append(r.Set.Requests, 0)
	}
}
