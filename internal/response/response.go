// Package response holds the data exchanged with fidelity models: input
// variables, per-output request masks and the response values with their
// optional derivatives.
package response

import (
	"fmt"
	"slices"
)

// Request is the per-output bit mask of requested data.
type Request uint8

const (
	Value    Request = 1 << iota // function value
	Gradient                     // gradient with respect to the derivative variables
	Hessian                      // Hessian with respect to the derivative variables
)

// DataOrder returns the request mask needed to build a correction of the
// given order: values for 0, values and gradients for 1, everything for 2.
func DataOrder(order int) Request {
	switch {
	case order <= 0:
		return Value
	case order == 1:
		return Value | Gradient
	}
	return Value | Gradient | Hessian
}

// ActiveSet describes what an evaluation must produce.
type ActiveSet struct {
	// Requests has one mask per output; a zero mask skips that output.
	Requests []Request
	// DerivVars lists the variable indices derivatives are taken against.
	DerivVars []int
}

// Uniform builds an active set requesting the same mask for n outputs
// with derivatives against the first numVars variables.
func Uniform(n int, r Request, numVars int) ActiveSet {
	reqs := make([]Request, n)
	for i := range reqs {
		reqs[i] = r
	}
	dvv := make([]int, numVars)
	for i := range dvv {
		dvv[i] = i
	}
	return ActiveSet{Requests: reqs, DerivVars: dvv}
}

// Empty reports whether no output is requested.
func (s ActiveSet) Empty() bool {
	for _, r := range s.Requests {
		if r != 0 {
			return false
		}
	}
	return true
}

// Copy returns a deep copy of the set.
func (s ActiveSet) Copy() ActiveSet {
	return ActiveSet{Requests: slices.Clone(s.Requests), DerivVars: slices.Clone(s.DerivVars)}
}

// Variables are the inputs of one evaluation. Inactive values are carried
// along but never differentiated; a change in them invalidates a previously
// built correction.
type Variables struct {
	Continuous []float64
	Inactive   []float64
}

// Copy returns a deep copy of v.
func (v Variables) Copy() Variables {
	return Variables{Continuous: slices.Clone(v.Continuous), Inactive: slices.Clone(v.Inactive)}
}

// Equal reports whether two variable sets hold identical values.
func (v Variables) Equal(o Variables) bool {
	return slices.Equal(v.Continuous, o.Continuous) && slices.Equal(v.Inactive, o.Inactive)
}

// Response holds the outputs of one evaluation. Gradients[i] and
// Hessians[i] are nil for outputs whose request mask did not include them.
type Response struct {
	Set       ActiveSet
	Values    []float64
	Gradients [][]float64
	Hessians  [][][]float64
}

// New allocates a response shaped for set: one value slot per output and
// derivative storage sized by the number of derivative variables wherever
// the mask asks for it.
func New(set ActiveSet) *Response {
	n := len(set.Requests)
	nv := len(set.DerivVars)
	r := &Response{
		Set:       set.Copy(),
		Values:    make([]float64, n),
		Gradients: make([][]float64, n),
		Hessians:  make([][][]float64, n),
	}
	for i, req := range set.Requests {
		if req&Gradient != 0 {
			r.Gradients[i] = make([]float64, nv)
		}
		if req&Hessian != 0 {
			h := make([][]float64, nv)
			for j := range h {
				h[j] = make([]float64, nv)
			}
			r.Hessians[i] = h
		}
	}
	return r
}

// NumFunctions returns the number of outputs.
func (r *Response) NumFunctions() int { return len(r.Values) }

// Requested returns the mask for output i, or zero when out of range.
func (r *Response) Requested(i int) Request {
	if i < 0 || i >= len(r.Set.Requests) {
		return 0
	}
	return r.Set.Requests[i]
}

// HasGradient reports whether output i carries a gradient.
func (r *Response) HasGradient(i int) bool {
	return i >= 0 && i < len(r.Gradients) && r.Gradients[i] != nil
}

// HasHessian reports whether output i carries a Hessian.
func (r *Response) HasHessian(i int) bool {
	return i >= 0 && i < len(r.Hessians) && r.Hessians[i] != nil
}

// Copy returns a deep copy. A nil response copies to nil.
func (r *Response) Copy() *Response {
	if r == nil {
		return nil
	}
	c := &Response{
		Set:       r.Set.Copy(),
		Values:    slices.Clone(r.Values),
		Gradients: make([][]float64, len(r.Gradients)),
		Hessians:  make([][][]float64, len(r.Hessians)),
	}
	for i, g := range r.Gradients {
		c.Gradients[i] = slices.Clone(g)
	}
	for i, h := range r.Hessians {
		if h == nil {
			continue
		}
		c.Hessians[i] = make([][]float64, len(h))
		for j, row := range h {
			c.Hessians[i][j] = slices.Clone(row)
		}
	}
	return c
}

func (r *Response) String() string {
	if r == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%v", r.Values)
}
