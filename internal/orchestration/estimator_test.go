package orchestration

import (
	"errors"
	"math"
	"testing"

	apperrors "github.com/agbru/hiersurr/internal/errors"
)

func TestEstimateControlVariate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name          string
		hi, lo, extra []float64
		estimate      float64
		beta          float64
		rho           float64
		ratio         float64
	}{
		{
			name:     "perfectly correlated surrogate",
			hi:       []float64{3, 5, 7, 9},
			lo:       []float64{1, 2, 3, 4},
			extra:    []float64{5, 6},
			estimate: 8,
			beta:     2,
			rho:      1,
			ratio:    2.0 / 3.0,
		},
		{
			name:     "no extra samples",
			hi:       []float64{1, 2, 4},
			lo:       []float64{0, 1, 1},
			estimate: 7.0 / 3.0,
			beta:     2,
			rho:      2 / math.Sqrt(7),
			ratio:    1,
		},
		{
			name:     "constant surrogate",
			hi:       []float64{1, 2, 3},
			lo:       []float64{4, 4, 4},
			extra:    []float64{10},
			estimate: 2,
			ratio:    1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cv, err := EstimateControlVariate(tt.hi, tt.lo, tt.extra)
			if err != nil {
				t.Fatal(err)
			}
			for _, c := range []struct {
				name      string
				got, want float64
			}{
				{"Estimate", cv.Estimate, tt.estimate},
				{"Beta", cv.Beta, tt.beta},
				{"Rho", cv.Rho, tt.rho},
				{"VarianceRatio", cv.VarianceRatio, tt.ratio},
			} {
				if math.Abs(c.got-c.want) > 1e-12 {
					t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
				}
			}
			if cv.Shared != len(tt.hi) || cv.Extra != len(tt.extra) {
				t.Errorf("samples = %d/%d, want %d/%d", cv.Shared, cv.Extra, len(tt.hi), len(tt.extra))
			}
		})
	}
}

func TestEstimateControlVariateErrors(t *testing.T) {
	t.Parallel()
	var vErr apperrors.ValidationError
	if _, err := EstimateControlVariate([]float64{1, 2}, []float64{1}, nil); !errors.As(err, &vErr) {
		t.Errorf("mismatched pairs: error = %v, want ValidationError", err)
	}
	if _, err := EstimateControlVariate([]float64{1}, []float64{1}, nil); !errors.As(err, &vErr) {
		t.Errorf("single pair: error = %v, want ValidationError", err)
	}
}

func TestStandardError(t *testing.T) {
	t.Parallel()
	cv := ControlVariate{HiVariance: 4, VarianceRatio: 0.25, Shared: 16}
	if got := cv.StandardError(); math.Abs(got-0.25) > 1e-15 {
		t.Errorf("StandardError() = %v, want 0.25", got)
	}
	if got := (ControlVariate{}).StandardError(); !math.IsNaN(got) {
		t.Errorf("StandardError() without samples = %v, want NaN", got)
	}
}
