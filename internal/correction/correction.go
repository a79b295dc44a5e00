// Package correction builds and applies discrepancy corrections that map a
// low-fidelity response onto a high-fidelity one.
//
// A Correction is anchored at the variables where both responses were
// computed. Away from the anchor it is extended by a Taylor series whose
// order (0, 1 or 2) bounds the derivative data it needs.
package correction

import (
	"fmt"
	"math"
	"slices"
	"strings"

	apperrors "github.com/agbru/hiersurr/internal/errors"
	"github.com/agbru/hiersurr/internal/response"
)

// Type selects the correction form.
type Type uint8

const (
	// Additive corrects by adding hi - lo.
	Additive Type = iota + 1
	// Multiplicative corrects by scaling with hi / lo.
	Multiplicative
	// Combined blends the additive and multiplicative corrections.
	Combined
)

func (t Type) String() string {
	switch t {
	case Additive:
		return "additive"
	case Multiplicative:
		return "multiplicative"
	case Combined:
		return "combined"
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// ParseType parses a correction type name.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "additive", "add":
		return Additive, nil
	case "multiplicative", "mult":
		return Multiplicative, nil
	case "combined":
		return Combined, nil
	}
	return 0, apperrors.NewConfigError("unknown correction type %q", s)
}

// Settings configures every correction an Engine creates.
type Settings struct {
	Type  Type
	Order int
	// Indices restricts corrections to these outputs; nil means all.
	Indices []int
}

// Validate checks the type and order.
func (s Settings) Validate() error {
	if s.Type < Additive || s.Type > Combined {
		return apperrors.NewConfigError("invalid correction type %d", uint8(s.Type))
	}
	if s.Order < 0 || s.Order > 2 {
		return apperrors.NewConfigError("correction order %d not in [0,2]", s.Order)
	}
	return nil
}

// taylor is a scalar field expanded about an anchor point.
type taylor struct {
	value float64
	grad  []float64
	hess  [][]float64
}

func (t taylor) at(dx []float64) float64 {
	v := t.value
	if t.grad != nil {
		v += dot(t.grad, dx)
	}
	if t.hess != nil {
		for i := range dx {
			if i < len(t.hess) {
				v += 0.5 * dx[i] * dot(t.hess[i], dx)
			}
		}
	}
	return v
}

func (t taylor) gradAt(dx []float64) []float64 {
	if t.grad == nil {
		return nil
	}
	g := slices.Clone(t.grad)
	if t.hess != nil {
		for i := range g {
			if i < len(t.hess) {
				g[i] += dot(t.hess[i], dx)
			}
		}
	}
	return g
}

func dot(a, b []float64) float64 {
	var s float64
	for i := 0; i < len(a) && i < len(b); i++ {
		s += a[i] * b[i]
	}
	return s
}

// Correction is one discrepancy correction between a truth and a surrogate
// configuration. The zero value is not usable; use New.
//
// A Correction is uninitialized until Compute succeeds. Apply is a pure
// function of the stored state and its arguments.
type Correction struct {
	settings Settings
	computed bool
	anchor   []float64
	add      map[int]taylor
	mult     map[int]taylor
	gamma    map[int]float64

	// truth and surrogate values at the previous anchor, kept for the
	// combined weighting.
	prevAnchor []float64
	prevTruth  map[int]float64
	prevApprox map[int]float64
}

// New creates an uninitialized correction.
func New(s Settings) *Correction {
	return &Correction{settings: s}
}

// Computed reports whether the correction has been computed since it was
// created or last invalidated.
func (c *Correction) Computed() bool { return c.computed }

// Invalidate marks the correction for recomputation. The anchor history used
// by combined corrections survives.
func (c *Correction) Invalidate() { c.computed = false }

// Settings returns the correction settings.
func (c *Correction) Settings() Settings { return c.settings }

// DataOrder is the request mask the truth data must satisfy.
func (c *Correction) DataOrder() response.Request { return response.DataOrder(c.settings.Order) }

// Anchor returns a copy of the anchor variables, or nil before Compute.
func (c *Correction) Anchor() []float64 { return slices.Clone(c.anchor) }

func (c *Correction) indices(n int) []int {
	if c.settings.Indices == nil {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	idx := make([]int, 0, len(c.settings.Indices))
	for _, i := range c.settings.Indices {
		if i >= 0 && i < n {
			idx = append(idx, i)
		}
	}
	return idx
}

// Compute anchors the correction at vars so that approx corrected by it
// reproduces truth. Derivative terms are only built up to the configured
// order and only where both responses carry them.
//
// Returns:
//   - error: a ValidationError when the responses disagree in size or a
//     multiplicative correction meets a zero surrogate value.
func (c *Correction) Compute(vars response.Variables, truth, approx *response.Response) error {
	if truth == nil || approx == nil {
		return apperrors.ValidationError{Field: "response", Message: "correction needs both truth and surrogate responses"}
	}
	if truth.NumFunctions() != approx.NumFunctions() {
		return apperrors.ValidationError{Field: "response", Message: fmt.Sprintf(
			"truth has %d outputs, surrogate has %d", truth.NumFunctions(), approx.NumFunctions())}
	}
	add := make(map[int]taylor)
	mult := make(map[int]taylor)
	idx := c.indices(truth.NumFunctions())
	for _, i := range idx {
		if c.settings.Type != Multiplicative {
			add[i] = additive(truth, approx, i, c.settings.Order)
		}
		if c.settings.Type != Additive {
			m, err := multiplicative(truth, approx, i, c.settings.Order)
			if err != nil {
				return err
			}
			mult[i] = m
		}
	}

	gamma := make(map[int]float64)
	if c.settings.Type == Combined {
		for _, i := range idx {
			gamma[i] = c.combinedWeight(i, add[i], mult[i], vars.Continuous)
		}
	}

	c.add, c.mult, c.gamma = add, mult, gamma
	c.anchor = slices.Clone(vars.Continuous)
	c.prevAnchor = slices.Clone(vars.Continuous)
	c.prevTruth = make(map[int]float64, len(idx))
	c.prevApprox = make(map[int]float64, len(idx))
	for _, i := range idx {
		c.prevTruth[i] = truth.Values[i]
		c.prevApprox[i] = approx.Values[i]
	}
	c.computed = true
	return nil
}

func wantGrad(truth, approx *response.Response, i, order int) bool {
	return order >= 1 && truth.HasGradient(i) && approx.HasGradient(i)
}

func wantHess(truth, approx *response.Response, i, order int) bool {
	return order >= 2 && truth.HasHessian(i) && approx.HasHessian(i)
}

// additive builds alpha = hi - lo with derivative terms up to order.
func additive(truth, approx *response.Response, i, order int) taylor {
	t := taylor{value: truth.Values[i] - approx.Values[i]}
	if wantGrad(truth, approx, i, order) {
		t.grad = make([]float64, len(truth.Gradients[i]))
		for j := range t.grad {
			t.grad[j] = truth.Gradients[i][j] - approx.Gradients[i][j]
		}
	}
	if wantHess(truth, approx, i, order) {
		t.hess = make([][]float64, len(truth.Hessians[i]))
		for j := range t.hess {
			t.hess[j] = make([]float64, len(truth.Hessians[i][j]))
			for k := range t.hess[j] {
				t.hess[j][k] = truth.Hessians[i][j][k] - approx.Hessians[i][j][k]
			}
		}
	}
	return t
}

// multiplicative builds beta = hi/lo with quotient rule derivatives:
// grad beta = (grad hi - beta grad lo) / lo and
// hess beta = (hess hi - beta hess lo - grad beta grad lo' - grad lo grad beta') / lo.
func multiplicative(truth, approx *response.Response, i, order int) (taylor, error) {
	lo := approx.Values[i]
	if lo == 0 {
		return taylor{}, apperrors.ValidationError{Field: "response", Message: fmt.Sprintf(
			"multiplicative correction undefined for zero surrogate value at output %d", i)}
	}
	beta := truth.Values[i] / lo
	t := taylor{value: beta}
	if wantGrad(truth, approx, i, order) {
		gl := approx.Gradients[i]
		t.grad = make([]float64, len(truth.Gradients[i]))
		for j := range t.grad {
			t.grad[j] = (truth.Gradients[i][j] - beta*gl[j]) / lo
		}
		if wantHess(truth, approx, i, order) {
			t.hess = make([][]float64, len(truth.Hessians[i]))
			for j := range t.hess {
				t.hess[j] = make([]float64, len(truth.Hessians[i][j]))
				for k := range t.hess[j] {
					t.hess[j][k] = (truth.Hessians[i][j][k] - beta*approx.Hessians[i][j][k] -
						t.grad[j]*gl[k] - gl[j]*t.grad[k]) / lo
				}
			}
		}
	}
	return t, nil
}

// combinedWeight picks gamma so that the blended correction, built at the
// new anchor, reproduces the truth value recorded at the previous anchor.
func (c *Correction) combinedWeight(i int, add, mult taylor, anchor []float64) float64 {
	hiPrev, okT := c.prevTruth[i]
	loPrev, okA := c.prevApprox[i]
	if c.prevAnchor == nil || !okT || !okA {
		return 1
	}
	dx := delta(c.prevAnchor, anchor)
	a := loPrev + add.at(dx)
	m := loPrev * mult.at(dx)
	den := a - m
	if math.Abs(den) < 1e-12*math.Max(1, math.Abs(a)) {
		return 1
	}
	return (hiPrev - m) / den
}

// delta returns x - anchor over the common length.
func delta(x, anchor []float64) []float64 {
	dx := make([]float64, len(x))
	for i := range dx {
		if i < len(anchor) {
			dx[i] = x[i] - anchor[i]
		}
	}
	return dx
}

// Apply corrects resp in place at vars. Each requested component of an
// output (value, gradient, Hessian) is corrected on its own; unrequested
// outputs are left alone. Multiplicative and combined corrections of
// derivatives read the surrogate value, so resp must carry it.
func (c *Correction) Apply(vars response.Variables, resp *response.Response) error {
	if !c.computed {
		return apperrors.NewConfigError("correction applied before it was computed")
	}
	dx := delta(vars.Continuous, c.anchor)
	for _, i := range c.indices(resp.NumFunctions()) {
		if resp.Set.Requests != nil && resp.Requested(i) == 0 {
			continue
		}
		switch c.settings.Type {
		case Additive:
			c.applyAdditive(resp, i, dx)
		case Multiplicative:
			c.applyMultiplicative(resp.Copy(), resp, i, dx)
		case Combined:
			c.applyCombined(resp, i, dx)
		}
	}
	return nil
}

func wantsValue(resp *response.Response, i int) bool {
	return resp.Set.Requests == nil || resp.Requested(i)&response.Value != 0
}

// applyAdditive adds the additive correction to resp.
func (c *Correction) applyAdditive(resp *response.Response, i int, dx []float64) {
	t, ok := c.add[i]
	if !ok {
		return
	}
	if wantsValue(resp, i) {
		resp.Values[i] += t.at(dx)
	}
	if g := t.gradAt(dx); g != nil && resp.HasGradient(i) {
		for j := range resp.Gradients[i] {
			if j < len(g) {
				resp.Gradients[i][j] += g[j]
			}
		}
	}
	if t.hess != nil && resp.HasHessian(i) {
		for j := range resp.Hessians[i] {
			for k := range resp.Hessians[i][j] {
				if j < len(t.hess) && k < len(t.hess[j]) {
					resp.Hessians[i][j][k] += t.hess[j][k]
				}
			}
		}
	}
}

// applyMultiplicative sets output i of resp to lo*beta, reading the
// uncorrected data from lo.
func (c *Correction) applyMultiplicative(lo, resp *response.Response, i int, dx []float64) {
	t, ok := c.mult[i]
	if !ok {
		return
	}
	beta := t.at(dx)
	gb := t.gradAt(dx)
	f := lo.Values[i]

	if wantsValue(resp, i) {
		resp.Values[i] = f * beta
	}
	if resp.HasGradient(i) {
		gl := lo.Gradients[i]
		for j := range resp.Gradients[i] {
			v := gl[j] * beta
			if j < len(gb) {
				v += f * gb[j]
			}
			resp.Gradients[i][j] = v
		}
	}
	if resp.HasHessian(i) {
		hl := lo.Hessians[i]
		var gl []float64
		if lo.HasGradient(i) {
			gl = lo.Gradients[i]
		}
		for j := range resp.Hessians[i] {
			for k := range resp.Hessians[i][j] {
				v := hl[j][k] * beta
				if gl != nil && j < len(gb) && k < len(gb) {
					v += gl[j]*gb[k] + gb[j]*gl[k]
				}
				if t.hess != nil && j < len(t.hess) && k < len(t.hess[j]) {
					v += f * t.hess[j][k]
				}
				resp.Hessians[i][j][k] = v
			}
		}
	}
}

// applyCombined sets output i of resp to gamma*additive + (1-gamma)*multiplicative.
func (c *Correction) applyCombined(resp *response.Response, i int, dx []float64) {
	g := c.gamma[i]
	a, m := resp.Copy(), resp.Copy()
	c.applyAdditive(a, i, dx)
	c.applyMultiplicative(resp, m, i, dx)

	if wantsValue(resp, i) {
		resp.Values[i] = g*a.Values[i] + (1-g)*m.Values[i]
	}
	if resp.HasGradient(i) {
		for j := range resp.Gradients[i] {
			resp.Gradients[i][j] = g*a.Gradients[i][j] + (1-g)*m.Gradients[i][j]
		}
	}
	if resp.HasHessian(i) {
		for j := range resp.Hessians[i] {
			for k := range resp.Hessians[i][j] {
				resp.Hessians[i][j][k] = g*a.Hessians[i][j][k] + (1-g)*m.Hessians[i][j][k]
			}
		}
	}
}

// Discrepancy returns the discrepancy between truth and approx as a new
// response shaped like truth: hi - lo for additive and combined
// corrections, hi / lo for multiplicative ones. Every derivative truth
// carries is differenced too, whatever the correction order. The
// correction state is not touched.
//
// Returns:
//   - *response.Response: the discrepancy, with truth's request masks.
//   - error: a ConfigError for mismatched sizes, a ValidationError when
//     approx lacks a derivative truth carries or a multiplicative
//     discrepancy meets a zero surrogate value.
func (c *Correction) Discrepancy(truth, approx *response.Response) (*response.Response, error) {
	if truth == nil || approx == nil {
		return nil, apperrors.ValidationError{Field: "response", Message: "discrepancy needs both truth and surrogate responses"}
	}
	if truth.NumFunctions() != approx.NumFunctions() {
		return nil, apperrors.NewConfigError("discrepancy: truth has %d outputs, surrogate has %d",
			truth.NumFunctions(), approx.NumFunctions())
	}
	out := truth.Copy()
	for i := range out.Values {
		if (out.HasGradient(i) && !approx.HasGradient(i)) || (out.HasHessian(i) && !approx.HasHessian(i)) {
			return nil, apperrors.ValidationError{Field: "response", Message: fmt.Sprintf(
				"surrogate output %d lacks derivatives the truth output carries", i)}
		}
		var t taylor
		if c.settings.Type == Multiplicative {
			if out.HasHessian(i) && !out.HasGradient(i) {
				return nil, apperrors.ValidationError{Field: "response", Message: fmt.Sprintf(
					"multiplicative Hessian discrepancy at output %d needs gradients", i)}
			}
			m, err := multiplicative(truth, approx, i, 2)
			if err != nil {
				return nil, err
			}
			t = m
		} else {
			t = additive(truth, approx, i, 2)
		}
		out.Values[i] = t.value
		if out.HasGradient(i) {
			copy(out.Gradients[i], t.grad)
		}
		if out.HasHessian(i) {
			out.Hessians[i] = t.hess
		}
	}
	return out, nil
}
