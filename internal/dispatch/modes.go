package dispatch

import (
	"github.com/agbru/hiersurr/internal/combine"
	"github.com/agbru/hiersurr/internal/ensemble"
	apperrors "github.com/agbru/hiersurr/internal/errors"
	"github.com/agbru/hiersurr/internal/response"
)

// modeHandler gathers everything that varies with the response mode.
type modeHandler struct {
	// usesLF and usesHF report which fidelities the mode may evaluate.
	usesLF, usesHF bool
	// corrected modes build truth references and correct surrogate data.
	corrected bool
	// requireBoth holds one-sided completions until the partner arrives.
	requireBoth bool
	split       func(set response.ActiveSet, surrogate []int, numHF, numLF int) (Split, error)
	combine     func(d *Dispatcher, s *Session, hi, lo *response.Response) (*response.Response, error)
	size        func(numHF, numLF int) (int, error)
	parallel    func(lf, hf ensemble.Model) (async bool, capacity int)
}

var modeHandlers = [...]modeHandler{
	response.UncorrectedSurrogate: {
		usesLF: true, usesHF: true,
		split:    splitIndices,
		combine:  overlay,
		size:     lfSize,
		parallel: func(lf, _ ensemble.Model) (bool, int) { return lf.Asynchronous(), lf.Capacity() },
	},
	response.AutoCorrectedSurrogate: {
		usesLF: true, usesHF: true, corrected: true,
		split:    splitIndices,
		combine:  overlay,
		size:     lfSize,
		parallel: either,
	},
	response.BypassSurrogate: {
		usesHF:   true,
		split:    truthOnly,
		combine:  truthResponse,
		size:     hfSize,
		parallel: func(_, hf ensemble.Model) (bool, int) { return hf.Asynchronous(), hf.Capacity() },
	},
	response.ModelDiscrepancy: {
		usesLF: true, usesHF: true, requireBoth: true,
		split: func(set response.ActiveSet, _ []int, _, _ int) (Split, error) {
			return Split{LF: set.Copy(), HF: set.Copy()}, nil
		},
		combine: func(d *Dispatcher, s *Session, hi, lo *response.Response) (*response.Response, error) {
			return combine.Discrepancy(d.engine.Correction(s.keys.Active), hi, lo)
		},
		size: func(numHF, numLF int) (int, error) {
			if numHF != numLF {
				return 0, apperrors.NewConfigError("model discrepancy needs equal response sizes, truth has %d and surrogate %d", numHF, numLF)
			}
			return numHF, nil
		},
		parallel: either,
	},
	response.AggregatedModels: {
		usesLF: true, usesHF: true, requireBoth: true,
		split: func(set response.ActiveSet, _ []int, numHF, numLF int) (Split, error) {
			return splitAggregated(set, numHF, numLF)
		},
		combine: func(_ *Dispatcher, s *Session, hi, lo *response.Response) (*response.Response, error) {
			return combine.Aggregate(hi, lo, s.hf.NumFunctions(), s.lf.NumFunctions()), nil
		},
		size:     func(numHF, numLF int) (int, error) { return numHF + numLF, nil },
		parallel: either,
	},
	response.NoSurrogate: {
		usesHF:   true,
		split:    truthOnly,
		combine:  truthResponse,
		size:     hfSize,
		parallel: func(_, hf ensemble.Model) (bool, int) { return hf.Asynchronous(), hf.Capacity() },
	},
}

func handlerFor(mode response.Mode) (*modeHandler, bool) {
	if !mode.Valid() {
		return nil, false
	}
	return &modeHandlers[mode], true
}

func splitIndices(set response.ActiveSet, surrogate []int, _, _ int) (Split, error) {
	return splitByIndices(set, surrogate), nil
}

func truthOnly(set response.ActiveSet, _ []int, _, _ int) (Split, error) {
	return Split{HF: set.Copy()}, nil
}

func overlay(d *Dispatcher, _ *Session, hi, lo *response.Response) (*response.Response, error) {
	return combine.Overlay(hi, lo, d.surrogateIdx), nil
}

func truthResponse(_ *Dispatcher, _ *Session, hi, _ *response.Response) (*response.Response, error) {
	return hi, nil
}

func lfSize(_, numLF int) (int, error) { return numLF, nil }
func hfSize(numHF, _ int) (int, error) { return numHF, nil }

func either(lf, hf ensemble.Model) (bool, int) {
	return lf.Asynchronous() || hf.Asynchronous(), max(lf.Capacity(), hf.Capacity())
}
