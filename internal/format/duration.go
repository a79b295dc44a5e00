// Package format holds the pure formatting helpers shared by the CLI
// presenter and the progress display: durations, ETAs, progress bars and
// estimator figures.
package format

import (
	"fmt"
	"math"
	"time"
)

// FormatExecutionDuration formats a time.Duration for display.
// It shows microseconds below a millisecond, milliseconds below a second,
// and the default string representation otherwise.
//
// Parameters:
//   - d: The duration to format.
//
// Returns:
//   - string: A formatted string representing the duration.
func FormatExecutionDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%d\u00b5s", d.Microseconds())
	} else if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Round(time.Millisecond).String()
}

// FormatEstimate prints an estimate with six significant digits, switching
// to exponent notation for very large or very small magnitudes.
func FormatEstimate(v float64) string {
	switch {
	case math.IsNaN(v):
		return "n/a"
	case v == 0:
		return "0"
	case math.Abs(v) >= 1e6 || math.Abs(v) < 1e-4:
		return fmt.Sprintf("%.5e", v)
	}
	return fmt.Sprintf("%.6g", v)
}

// FormatPercent prints a fraction as a percentage with one decimal.
func FormatPercent(fraction float64) string {
	if math.IsNaN(fraction) {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", 100*fraction)
}
