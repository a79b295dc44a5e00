package orchestration

import (
	"fmt"
	"math"

	apperrors "github.com/agbru/hiersurr/internal/errors"
)

// ControlVariate is a two-fidelity estimate of the truth mean. The
// surrogate is evaluated at every shared sample and at Extra additional
// samples; its mean over all of them corrects the truth mean.
type ControlVariate struct {
	// Estimate is the control variate estimate of the truth mean.
	Estimate float64
	// MonteCarlo is the plain truth sample mean.
	MonteCarlo float64
	// Beta is the control variate weight cov(hi, lo) / var(lo).
	Beta float64
	// Rho is the sample correlation between truth and surrogate.
	Rho float64
	// VarianceRatio is the estimator variance relative to plain Monte Carlo
	// with the same truth samples: 1 - (1 - N/(N+M)) ρ².
	VarianceRatio float64
	// HiVariance is the sample variance of the truth outputs.
	HiVariance float64
	// Shared and Extra count the samples of each phase.
	Shared, Extra int
	// LoMeanShared and LoMeanAll are the surrogate means over the shared
	// samples and over all samples.
	LoMeanShared, LoMeanAll float64
}

// StandardError is the estimated standard deviation of Estimate.
func (c ControlVariate) StandardError() float64 {
	if c.Shared == 0 {
		return math.NaN()
	}
	return math.Sqrt(c.HiVariance * c.VarianceRatio / float64(c.Shared))
}

// EstimateControlVariate combines paired truth and surrogate outputs with
// surrogate-only outputs.
//
// Returns:
//   - ControlVariate: the estimate and its diagnostics.
//   - error: a ValidationError when fewer than two pairs are given or the
//     paired slices differ in length.
func EstimateControlVariate(hi, loShared, loExtra []float64) (ControlVariate, error) {
	n := len(hi)
	if n != len(loShared) {
		return ControlVariate{}, apperrors.ValidationError{Field: "samples", Message: fmt.Sprintf("%d truth and %d surrogate paired samples", n, len(loShared))}
	}
	if n < 2 {
		return ControlVariate{}, apperrors.ValidationError{Field: "samples", Message: "at least two paired samples are needed"}
	}
	meanHi, meanLo := mean(hi), mean(loShared)
	var covHL, varH, varL float64
	for i := range hi {
		dh, dl := hi[i]-meanHi, loShared[i]-meanLo
		covHL += dh * dl
		varH += dh * dh
		varL += dl * dl
	}
	covHL /= float64(n - 1)
	varH /= float64(n - 1)
	varL /= float64(n - 1)

	cv := ControlVariate{
		MonteCarlo:   meanHi,
		HiVariance:   varH,
		Shared:       n,
		Extra:        len(loExtra),
		LoMeanShared: meanLo,
		LoMeanAll:    (meanLo*float64(n) + sum(loExtra)) / float64(n+len(loExtra)),
	}
	if varL > 0 {
		cv.Beta = covHL / varL
	}
	if varL > 0 && varH > 0 {
		cv.Rho = covHL / math.Sqrt(varH*varL)
	}
	cv.Estimate = meanHi + cv.Beta*(cv.LoMeanAll-meanLo)
	share := float64(n) / float64(n+len(loExtra))
	cv.VarianceRatio = 1 - (1-share)*cv.Rho*cv.Rho
	return cv, nil
}

func sum(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	return sum(xs) / float64(len(xs))
}
