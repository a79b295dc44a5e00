package correction

import (
	"errors"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	apperrors "github.com/agbru/hiersurr/internal/errors"
	"github.com/agbru/hiersurr/internal/response"
)

const tol = 1e-9

func near(a, b float64) bool { return math.Abs(a-b) <= tol*math.Max(1, math.Abs(b)) }

func values(vals ...float64) *response.Response {
	r := response.New(response.Uniform(len(vals), response.Value, 1))
	copy(r.Values, vals)
	return r
}

// withGrad builds a single-output response with a value and gradient.
func withGrad(v float64, g ...float64) *response.Response {
	r := response.New(response.Uniform(1, response.Value|response.Gradient, len(g)))
	r.Values[0] = v
	copy(r.Gradients[0], g)
	return r
}

func at(x ...float64) response.Variables { return response.Variables{Continuous: x} }

func TestAdditiveZeroOrder(t *testing.T) {
	t.Parallel()
	c := New(Settings{Type: Additive})
	if c.Computed() {
		t.Fatal("new correction reports computed")
	}
	if err := c.Compute(at(0), values(5.0), values(4.5)); err != nil {
		t.Fatal(err)
	}

	d, err := c.Discrepancy(values(5.0), values(4.5))
	if err != nil {
		t.Fatal(err)
	}
	if !near(d.Values[0], 0.5) {
		t.Errorf("discrepancy = %v, want 0.5", d.Values[0])
	}

	lo := values(4.7)
	if err := c.Apply(at(0.3), lo); err != nil {
		t.Fatal(err)
	}
	if !near(lo.Values[0], 5.2) {
		t.Errorf("corrected value = %v, want 5.2", lo.Values[0])
	}
}

func TestApplyBeforeComputeFails(t *testing.T) {
	t.Parallel()
	var cfgErr apperrors.ConfigError
	if err := New(Settings{Type: Additive}).Apply(at(0), values(1)); !errors.As(err, &cfgErr) {
		t.Errorf("Apply() error = %v, want ConfigError", err)
	}
}

func TestFirstOrderReproducesTruthAtAnchor(t *testing.T) {
	t.Parallel()
	for _, typ := range []Type{Additive, Multiplicative, Combined} {
		t.Run(typ.String(), func(t *testing.T) {
			t.Parallel()
			c := New(Settings{Type: typ, Order: 1})
			hi := withGrad(3, 1, -2)
			lo := withGrad(2, 0.5, 0.25)
			if err := c.Compute(at(1, 1), hi, lo); err != nil {
				t.Fatal(err)
			}
			got := lo.Copy()
			if err := c.Apply(at(1, 1), got); err != nil {
				t.Fatal(err)
			}
			if !near(got.Values[0], 3) || !near(got.Gradients[0][0], 1) || !near(got.Gradients[0][1], -2) {
				t.Errorf("corrected = %v %v, want 3 [1 -2]", got.Values, got.Gradients[0])
			}
		})
	}
}

func TestAdditiveFirstOrderTaylor(t *testing.T) {
	t.Parallel()
	c := New(Settings{Type: Additive, Order: 1})
	if err := c.Compute(at(0), withGrad(1, 2), withGrad(0, 1)); err != nil {
		t.Fatal(err)
	}
	// alpha(x) = 1 + 1*(x - 0)
	lo := withGrad(10, 0)
	if err := c.Apply(at(2), lo); err != nil {
		t.Fatal(err)
	}
	if !near(lo.Values[0], 13) || !near(lo.Gradients[0][0], 1) {
		t.Errorf("corrected = %v %v, want 13 [1]", lo.Values[0], lo.Gradients[0])
	}
}

func TestSecondOrderUsesHessian(t *testing.T) {
	t.Parallel()
	set := response.Uniform(1, response.DataOrder(2), 1)
	hi, lo := response.New(set), response.New(set)
	hi.Values[0], hi.Gradients[0][0], hi.Hessians[0][0][0] = 1, 0, 4
	lo.Values[0], lo.Gradients[0][0], lo.Hessians[0][0][0] = 0, 0, 2

	c := New(Settings{Type: Additive, Order: 2})
	if err := c.Compute(at(0), hi, lo); err != nil {
		t.Fatal(err)
	}
	// alpha(x) = 1 + 0.5*2*x^2
	r := response.New(set)
	if err := c.Apply(at(3), r); err != nil {
		t.Fatal(err)
	}
	if !near(r.Values[0], 10) || !near(r.Gradients[0][0], 6) || !near(r.Hessians[0][0][0], 2) {
		t.Errorf("corrected = %v %v %v", r.Values[0], r.Gradients[0], r.Hessians[0])
	}
}

func TestDerivativesIgnoredWhenMissing(t *testing.T) {
	t.Parallel()
	c := New(Settings{Type: Additive, Order: 1})
	if err := c.Compute(at(0), withGrad(1, 5), values(0)); err != nil {
		t.Fatal(err)
	}
	lo := values(0)
	if err := c.Apply(at(10), lo); err != nil {
		t.Fatal(err)
	}
	if !near(lo.Values[0], 1) {
		t.Errorf("value-only surrogate should get a constant shift, got %v", lo.Values[0])
	}
}

func TestGradientOnlyRequestCorrected(t *testing.T) {
	t.Parallel()
	// surrogate 1+x, truth 3+4x, anchored at 0
	tests := []struct {
		typ      Type
		wantGrad float64
	}{
		{Additive, 4},
		{Multiplicative, 4},
		{Combined, 4},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			t.Parallel()
			c := New(Settings{Type: tt.typ, Order: 1})
			if err := c.Compute(at(0), withGrad(3, 4), withGrad(1, 1)); err != nil {
				t.Fatal(err)
			}
			lo := withGrad(1, 1)
			lo.Set.Requests[0] = response.Gradient
			if err := c.Apply(at(0), lo); err != nil {
				t.Fatal(err)
			}
			if !near(lo.Gradients[0][0], tt.wantGrad) {
				t.Errorf("corrected gradient = %v, want %v", lo.Gradients[0][0], tt.wantGrad)
			}
			if lo.Values[0] != 1 {
				t.Errorf("unrequested value changed to %v", lo.Values[0])
			}
		})
	}
}

func TestDiscrepancyCarriesRequestedDerivatives(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		typ      Type
		hi, lo   *response.Response
		value    float64
		gradient float64
	}{
		{"additive", Additive, withGrad(5, 3), withGrad(4.5, 1), 0.5, 2},
		{"multiplicative", Multiplicative, withGrad(6, 3), withGrad(3, 1), 2, 1.0 / 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			// order 0 still differences every derivative the request carries
			d, err := New(Settings{Type: tt.typ}).Discrepancy(tt.hi, tt.lo)
			if err != nil {
				t.Fatal(err)
			}
			if !d.HasGradient(0) {
				t.Fatalf("requested gradient missing, requests %v", d.Set.Requests)
			}
			if !near(d.Values[0], tt.value) || !near(d.Gradients[0][0], tt.gradient) {
				t.Errorf("discrepancy = %v %v, want %v [%v]", d.Values[0], d.Gradients[0], tt.value, tt.gradient)
			}
		})
	}
}

func TestDiscrepancyMissingSurrogateDerivative(t *testing.T) {
	t.Parallel()
	var vErr apperrors.ValidationError
	if _, err := New(Settings{Type: Additive}).Discrepancy(withGrad(5, 3), values(4.5)); !errors.As(err, &vErr) {
		t.Errorf("Discrepancy() error = %v, want ValidationError", err)
	}
}

func TestMultiplicativeZeroSurrogate(t *testing.T) {
	t.Parallel()
	var vErr apperrors.ValidationError
	if err := New(Settings{Type: Multiplicative}).Compute(at(0), values(1), values(0)); !errors.As(err, &vErr) {
		t.Errorf("Compute() error = %v, want ValidationError", err)
	}
}

func TestSizeMismatch(t *testing.T) {
	t.Parallel()
	c := New(Settings{Type: Additive})
	if err := c.Compute(at(0), values(1, 2), values(1)); err == nil {
		t.Error("Compute accepted mismatched sizes")
	}
	if _, err := c.Discrepancy(values(1, 2), values(1)); err == nil {
		t.Error("Discrepancy accepted mismatched sizes")
	}
}

func TestCombinedWeightMatchesPreviousAnchor(t *testing.T) {
	t.Parallel()
	c := New(Settings{Type: Combined})
	if err := c.Compute(at(0), values(2), values(1)); err != nil {
		t.Fatal(err)
	}
	// first compute: gamma = 1, pure additive.
	if g := c.gamma[0]; g != 1 {
		t.Fatalf("first gamma = %v, want 1", g)
	}
	if err := c.Compute(at(1), values(5), values(2)); err != nil {
		t.Fatal(err)
	}
	prev := values(1)
	if err := c.Apply(at(0), prev); err != nil {
		t.Fatal(err)
	}
	if !near(prev.Values[0], 2) {
		t.Errorf("previous anchor corrected to %v, want 2", prev.Values[0])
	}
	cur := values(2)
	_ = c.Apply(at(1), cur)
	if !near(cur.Values[0], 5) {
		t.Errorf("current anchor corrected to %v, want 5", cur.Values[0])
	}
}

func TestIndicesRestrictCorrection(t *testing.T) {
	t.Parallel()
	c := New(Settings{Type: Additive, Indices: []int{1}})
	if err := c.Compute(at(0), values(10, 10), values(1, 1)); err != nil {
		t.Fatal(err)
	}
	r := values(1, 1)
	_ = c.Apply(at(0), r)
	if r.Values[0] != 1 || !near(r.Values[1], 10) {
		t.Errorf("corrected = %v, want [1 10]", r.Values)
	}
}

func TestParseType(t *testing.T) {
	t.Parallel()
	for _, typ := range []Type{Additive, Multiplicative, Combined} {
		got, err := ParseType(typ.String())
		if err != nil || got != typ {
			t.Errorf("ParseType(%q) = %v, %v", typ, got, err)
		}
	}
	if _, err := ParseType("quadratic"); err == nil {
		t.Error("expected error for unknown type")
	}
	if err := (Settings{Type: Additive, Order: 3}).Validate(); err == nil {
		t.Error("order 3 accepted")
	}
}

// TestApplyIdempotentOnCopies checks that applying a computed correction to
// independent copies of one response always yields identical results.
func TestApplyIdempotentOnCopies(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("apply is a pure function of its inputs", prop.ForAll(
		func(typ int, hi, lo, g1, g2, x, probe float64) bool {
			c := New(Settings{Type: Type(typ), Order: 1})
			if err := c.Compute(at(x), withGrad(hi, g1), withGrad(lo, g2)); err != nil {
				return false
			}
			base := withGrad(probe, g2)
			a, b := base.Copy(), base.Copy()
			if c.Apply(at(x+0.5), a) != nil || c.Apply(at(x+0.5), b) != nil {
				return false
			}
			return a.Values[0] == b.Values[0] && a.Gradients[0][0] == b.Gradients[0][0]
		},
		gen.IntRange(int(Additive), int(Combined)),
		gen.Float64Range(-10, 10),
		gen.Float64Range(0.5, 10),
		gen.Float64Range(-3, 3),
		gen.Float64Range(-3, 3),
		gen.Float64Range(-1, 1),
		gen.Float64Range(-10, 10),
	))

	properties.TestingRun(t)
}
