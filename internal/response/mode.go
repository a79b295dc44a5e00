package response

import (
	"fmt"
	"strings"
)

// Mode selects how a hierarchical evaluation routes work between the
// surrogate and truth fidelities and how their results are combined.
type Mode uint8

const (
	// UncorrectedSurrogate returns low-fidelity results as they are.
	UncorrectedSurrogate Mode = iota
	// AutoCorrectedSurrogate corrects low-fidelity results toward the truth
	// reference using a discrepancy correction.
	AutoCorrectedSurrogate
	// BypassSurrogate sends every request to the truth model.
	BypassSurrogate
	// ModelDiscrepancy evaluates both fidelities and returns their discrepancy.
	ModelDiscrepancy
	// AggregatedModels evaluates both fidelities and concatenates their outputs.
	AggregatedModels
	// NoSurrogate evaluates the truth model only.
	NoSurrogate
)

var modeNames = [...]string{
	UncorrectedSurrogate:   "uncorrected",
	AutoCorrectedSurrogate: "auto-corrected",
	BypassSurrogate:        "bypass",
	ModelDiscrepancy:       "discrepancy",
	AggregatedModels:       "aggregated",
	NoSurrogate:            "none",
}

// Modes lists every response mode in declaration order.
func Modes() []Mode {
	return []Mode{UncorrectedSurrogate, AutoCorrectedSurrogate, BypassSurrogate, ModelDiscrepancy, AggregatedModels, NoSurrogate}
}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// Valid reports whether m is one of the declared modes.
func (m Mode) Valid() bool { return int(m) < len(modeNames) }

// ParseMode parses a mode name as printed by String. Matching is case
// insensitive and accepts underscores in place of dashes.
func ParseMode(s string) (Mode, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
	for i, name := range modeNames {
		if name == norm {
			return Mode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown response mode %q", s)
}
