// # Naming Conventions
//
// Functions in this package follow consistent naming patterns based on their behavior:
//
//   - Display* and Print* functions write formatted output to an [io.Writer].
//     They handle presentation logic and colorization.
//     Examples: [DisplayQuietReport], [DisplayProgress], [PrintExecutionConfig].
//
//   - Format* functions return a formatted string without performing I/O.
//     They are pure functions suitable for composition.
//     Examples: [FormatQuietReport], [FormatQuietResponse].

package cli

import (
	"fmt"
	"io"
	"runtime"
	"strconv"
	"strings"

	"github.com/agbru/hiersurr/internal/config"
	"github.com/agbru/hiersurr/internal/ensemble"
	"github.com/agbru/hiersurr/internal/orchestration"
	"github.com/agbru/hiersurr/internal/response"
	"github.com/agbru/hiersurr/internal/ui"
)

// FormatQuietReport formats a study for quiet mode: the estimate and its
// standard error on one line, suitable for scripting.
func FormatQuietReport(report orchestration.Report) string {
	cv := report.Estimator
	return strconv.FormatFloat(cv.Estimate, 'g', -1, 64) + " " + strconv.FormatFloat(cv.StandardError(), 'g', -1, 64)
}

// DisplayQuietReport writes FormatQuietReport to out.
func DisplayQuietReport(out io.Writer, report orchestration.Report) {
	fmt.Fprintln(out, FormatQuietReport(report))
}

// FormatQuietResponse formats the values of a response separated by spaces.
func FormatQuietResponse(resp *response.Response) string {
	parts := make([]string, len(resp.Values))
	for i, v := range resp.Values {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, " ")
}

// DisplayQuietResponse writes FormatQuietResponse to out.
func DisplayQuietResponse(out io.Writer, resp *response.Response) {
	fmt.Fprintln(out, FormatQuietResponse(resp))
}

// PrintExecutionConfig displays the run configuration.
//
// Parameters:
//   - cfg: The application configuration.
//   - out: The writer for standard output.
func PrintExecutionConfig(cfg config.AppConfig, out io.Writer) {
	fmt.Fprintf(out, "--- Execution Configuration ---\n")
	if cfg.Samples > 0 {
		fmt.Fprintf(out, "Control variate study with %s%d%s shared samples and ratio %s%g%s, timeout %s%s%s.\n",
			ui.ColorMagenta(), cfg.Samples, ui.ColorReset(), ui.ColorMagenta(), cfg.Ratio, ui.ColorReset(),
			ui.ColorYellow(), cfg.Timeout, ui.ColorReset())
	} else {
		fmt.Fprintf(out, "Single %s%s%s evaluation, timeout %s%s%s.\n",
			ui.ColorMagenta(), cfg.Mode, ui.ColorReset(), ui.ColorYellow(), cfg.Timeout, ui.ColorReset())
	}
	fmt.Fprintf(out, "Correction: %s%s%s order %d, propagation %s.\n",
		ui.ColorCyan(), cfg.Correction, ui.ColorReset(), cfg.Order, cfg.Propagation)
	fmt.Fprintf(out, "Environment: %s%d%s logical processors, Go %s%s%s.\n",
		ui.ColorCyan(), runtime.NumCPU(), ui.ColorReset(), ui.ColorCyan(), runtime.Version(), ui.ColorReset())
}

// PrintEnsemble lists the models of the ensemble from lowest to highest
// fidelity.
func PrintEnsemble(ens *ensemble.Ensemble, out io.Writer) {
	fmt.Fprintf(out, "Ensemble:")
	for form, m := range ens.Models() {
		fmt.Fprintf(out, " %s%s%s (form %d", ui.ColorGreen(), m.Name(), ui.ColorReset(), form)
		if levels := m.SolutionLevels(); levels > 1 {
			fmt.Fprintf(out, ", %d levels", levels)
		}
		if m.Asynchronous() {
			fmt.Fprintf(out, ", async x%d", m.Capacity())
		}
		fmt.Fprintf(out, ")")
	}
	fmt.Fprintf(out, ".\n\n--- Starting Execution ---\n")
}
