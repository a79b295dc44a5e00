// Package problem provides the benchmark models a study runs against and
// builds ensembles of them, either from a named problem or from a YAML
// ensemble file.
package problem

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/agbru/hiersurr/internal/ensemble"
	apperrors "github.com/agbru/hiersurr/internal/errors"
	"github.com/agbru/hiersurr/internal/response"
)

// Problem is one benchmark model function together with its input domain.
type Problem struct {
	// Name identifies the problem in configuration and ensemble files.
	Name string
	// Func evaluates the problem.
	Func ensemble.Func
	// NumFunctions is the number of outputs.
	NumFunctions int
	// Lower and Upper bound each continuous variable.
	Lower, Upper []float64
	// Levels is the number of solution levels the problem resolves.
	Levels int
}

var registry = map[string]Problem{
	"forrester-hi": {Name: "forrester-hi", Func: forresterHi, NumFunctions: 1, Lower: []float64{0}, Upper: []float64{1}, Levels: 1},
	"forrester-lo": {Name: "forrester-lo", Func: forresterLo, NumFunctions: 1, Lower: []float64{0}, Upper: []float64{1}, Levels: 1},
	"trapezoid":    {Name: "trapezoid", Func: trapezoid, NumFunctions: 1, Lower: []float64{0.5}, Upper: []float64{2}, Levels: 4},
}

// Lookup returns the named problem.
func Lookup(name string) (Problem, error) {
	p, ok := registry[name]
	if !ok {
		return Problem{}, apperrors.NewConfigError("unknown problem %q (known: %v)", name, Names())
	}
	return p, nil
}

// Names lists the registered problems in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func checkVars(name string, vars response.Variables, n int) error {
	if len(vars.Continuous) != n {
		return apperrors.ValidationError{Field: "variables", Message: fmt.Sprintf("%s takes %d continuous variables, got %d", name, n, len(vars.Continuous))}
	}
	return nil
}

// Forrester returns the high fidelity Forrester function at x and its
// first and second derivatives.
//
//	f(x) = (6x-2)² sin(12x-4)
func Forrester(x float64) (f, df, d2f float64) {
	u := 6*x - 2
	s, c := math.Sin(2*u), math.Cos(2*u)
	f = u * u * s
	df = 12*u*s + 12*u*u*c
	d2f = 72*s + 288*u*c - 144*u*u*s
	return f, df, d2f
}

// ForresterLow is the usual low fidelity companion 0.5 f(x) + 10(x-0.5) - 5.
func ForresterLow(x float64) (f, df, d2f float64) {
	hf, hd, hd2 := Forrester(x)
	return 0.5*hf + 10*(x-0.5) - 5, 0.5*hd + 10, 0.5 * hd2
}

func forresterHi(_ context.Context, _ int, vars response.Variables, set response.ActiveSet) (*response.Response, error) {
	if err := checkVars("forrester-hi", vars, 1); err != nil {
		return nil, err
	}
	f, df, d2f := Forrester(vars.Continuous[0])
	return fill(set, f, df, d2f), nil
}

func forresterLo(_ context.Context, _ int, vars response.Variables, set response.ActiveSet) (*response.Response, error) {
	if err := checkVars("forrester-lo", vars, 1); err != nil {
		return nil, err
	}
	f, df, d2f := ForresterLow(vars.Continuous[0])
	return fill(set, f, df, d2f), nil
}

// Panels returns the number of trapezoid panels used at a solution level.
func Panels(level int) int { return 1 << (level + 2) }

// Trapezoid approximates I(x) = ∫₀¹ exp(x·t) dt with Panels(level) panels,
// together with dI/dx and d²I/dx².
func Trapezoid(x float64, level int) (f, df, d2f float64) {
	n := Panels(level)
	h := 1 / float64(n)
	for i := 0; i <= n; i++ {
		t := float64(i) * h
		w := h
		if i == 0 || i == n {
			w = h / 2
		}
		e := math.Exp(x * t)
		f += w * e
		df += w * t * e
		d2f += w * t * t * e
	}
	return f, df, d2f
}

// TrapezoidExact is the closed form of the integral Trapezoid approximates.
func TrapezoidExact(x float64) float64 {
	if x == 0 {
		return 1
	}
	return math.Expm1(x) / x
}

func trapezoid(ctx context.Context, level int, vars response.Variables, set response.ActiveSet) (*response.Response, error) {
	if err := checkVars("trapezoid", vars, 1); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, df, d2f := Trapezoid(vars.Continuous[0], max(level, 0))
	return fill(set, f, df, d2f), nil
}

// fill writes a single output with one variable into a response shaped by set.
func fill(set response.ActiveSet, f, df, d2f float64) *response.Response {
	r := response.New(set)
	req := r.Requested(0)
	if req&response.Value != 0 {
		r.Values[0] = f
	}
	for k, v := range set.DerivVars {
		if v != 0 {
			continue
		}
		if req&response.Gradient != 0 {
			r.Gradients[0][k] = df
		}
		if req&response.Hessian != 0 {
			r.Hessians[0][k][k] = d2f
		}
	}
	return r
}
