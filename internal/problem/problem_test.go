package problem

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agbru/hiersurr/internal/ensemble"
	apperrors "github.com/agbru/hiersurr/internal/errors"
	"github.com/agbru/hiersurr/internal/response"
)

func TestForresterKnownValues(t *testing.T) {
	t.Parallel()
	f, _, _ := Forrester(1)
	assert.InDelta(t, 16*math.Sin(8), f, 1e-12)
	lo, _, _ := ForresterLow(0.5)
	hi, _, _ := Forrester(0.5)
	assert.InDelta(t, 0.5*hi-5, lo, 1e-12)
}

// TestForresterDerivatives_PropertyBased compares the analytic derivatives
// with central differences.
func TestForresterDerivatives_PropertyBased(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	const h = 1e-5
	for name, fn := range map[string]func(float64) (float64, float64, float64){"hi": Forrester, "lo": ForresterLow} {
		properties.Property(name+" derivatives match finite differences", prop.ForAll(
			func(x float64) bool {
				fp, dp, _ := fn(x + h)
				fm, dm, _ := fn(x - h)
				_, df, d2f := fn(x)
				return math.Abs((fp-fm)/(2*h)-df) < 1e-4*(1+math.Abs(df)) &&
					math.Abs((dp-dm)/(2*h)-d2f) < 1e-3*(1+math.Abs(d2f))
			},
			gen.Float64Range(0, 1),
		))
	}
	properties.TestingRun(t)
}

func TestTrapezoidConvergesWithLevel(t *testing.T) {
	t.Parallel()
	const x = 1.5
	exact := TrapezoidExact(x)
	prev := math.Inf(1)
	for level := 0; level < 5; level++ {
		f, _, _ := Trapezoid(x, level)
		err := math.Abs(f - exact)
		assert.Less(t, err, prev, "level %d", level)
		prev = err
	}
	assert.Equal(t, 4, Panels(0))
	assert.Equal(t, 32, Panels(3))
	assert.InDelta(t, 1.0, TrapezoidExact(0), 0)
}

func TestModelFuncShapesResponse(t *testing.T) {
	t.Parallel()
	p, err := Lookup("forrester-hi")
	require.NoError(t, err)
	set := response.Uniform(1, response.Value|response.Gradient|response.Hessian, 1)
	r, err := p.Func(context.Background(), 0, response.Variables{Continuous: []float64{0.3}}, set)
	require.NoError(t, err)
	f, df, d2f := Forrester(0.3)
	assert.Equal(t, f, r.Values[0])
	assert.Equal(t, df, r.Gradients[0][0])
	assert.Equal(t, d2f, r.Hessians[0][0][0])

	_, err = p.Func(context.Background(), 0, response.Variables{Continuous: []float64{1, 2}}, set)
	var vErr apperrors.ValidationError
	assert.True(t, errors.As(err, &vErr))
}

func TestLookupUnknown(t *testing.T) {
	t.Parallel()
	_, err := Lookup("rosenbrock")
	var cfgErr apperrors.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, []string{"forrester-hi", "forrester-lo", "trapezoid"}, Names())
}

const twoModels = `
models:
  - name: expensive
    problem: forrester-hi
    form: 1
    async: false
  - name: cheap
    problem: forrester-lo
    form: 0
    concurrency: 8
    latency: 5ms
`

func TestLoadEnsemble(t *testing.T) {
	t.Parallel()
	ens, problems, err := LoadEnsemble(strings.NewReader(twoModels), Defaults{Async: true, Concurrency: 2})
	require.NoError(t, err)
	require.Equal(t, 2, ens.NumForms())
	assert.Equal(t, "forrester-lo", problems[0].Name)
	assert.Equal(t, "forrester-hi", problems[1].Name)

	cheap, err := ens.Model(0)
	require.NoError(t, err)
	assert.Equal(t, "cheap", cheap.Name())
	assert.True(t, cheap.Asynchronous())
	assert.Equal(t, 8, cheap.Capacity())

	expensive, err := ens.Model(1)
	require.NoError(t, err)
	assert.False(t, expensive.Asynchronous())
	assert.Equal(t, 2, expensive.Capacity())
}

func TestLoadEnsembleErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", "models: []\n"},
		{"unknown field", "models:\n  - name: a\n    problem: forrester-hi\n    colour: red\n"},
		{"unknown problem", "models:\n  - name: a\n    problem: nope\n"},
		{"gap in forms", "models:\n  - name: a\n    problem: forrester-hi\n    form: 1\n"},
		{"duplicate forms", "models:\n  - {name: a, problem: forrester-lo}\n  - {name: b, problem: forrester-hi}\n"},
		{"bad latency", "models:\n  - name: a\n    problem: forrester-hi\n    latency: soon\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, _, err := LoadEnsemble(strings.NewReader(tt.doc), Defaults{})
			var cfgErr apperrors.ConfigError
			assert.True(t, errors.As(err, &cfgErr), "LoadEnsemble() error = %v, want ConfigError", err)
		})
	}
}

func TestBuiltinEnsembles(t *testing.T) {
	t.Parallel()
	ens, _, err := BuiltinEnsemble("forrester", Defaults{Latency: time.Millisecond})
	require.NoError(t, err)
	assert.True(t, ens.Multifidelity())
	assert.False(t, ens.Multilevel())

	ens, problems, err := BuiltinEnsemble("trapezoid", Defaults{})
	require.NoError(t, err)
	assert.True(t, ens.Multilevel())
	assert.Equal(t, problems[0].Levels, ens.NumLevels(0))

	_, _, err = BuiltinEnsemble("nope", Defaults{})
	var cfgErr apperrors.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestLocalModelAtEachLevel(t *testing.T) {
	t.Parallel()
	p, err := Lookup("trapezoid")
	require.NoError(t, err)
	m := ensemble.NewLocalModel("trap", p.Func, ensemble.LocalOptions{NumFunctions: 1, Levels: p.Levels})
	vars := response.Variables{Continuous: []float64{1}}
	for level := 0; level < p.Levels; level++ {
		require.NoError(t, m.SetSolutionLevel(level))
		r, err := m.Evaluate(context.Background(), vars, response.Uniform(1, response.Value, 1))
		require.NoError(t, err)
		want, _, _ := Trapezoid(1, level)
		assert.Equal(t, want, r.Values[0])
	}
}
