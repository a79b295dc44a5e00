package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/agbru/hiersurr/internal/dispatch"
	apperrors "github.com/agbru/hiersurr/internal/errors"
	"github.com/agbru/hiersurr/internal/format"
	"github.com/agbru/hiersurr/internal/orchestration"
	"github.com/agbru/hiersurr/internal/response"
	"github.com/agbru/hiersurr/internal/ui"
)

// CLIProgressReporter implements orchestration.ProgressReporter with a
// spinner and progress bar.
type CLIProgressReporter struct{}

var _ orchestration.ProgressReporter = CLIProgressReporter{}

// DisplayProgress displays a spinner and progress bar for a running study.
func (CLIProgressReporter) DisplayProgress(wg *sync.WaitGroup, progressChan <-chan orchestration.ProgressUpdate, numPhases int, out io.Writer) {
	DisplayProgress(wg, progressChan, numPhases, out)
}

// CLIResultPresenter renders reports and responses as lipgloss tables.
type CLIResultPresenter struct{}

var (
	_ orchestration.ResultPresenter = CLIResultPresenter{}
	_ orchestration.ErrorHandler    = CLIResultPresenter{}
)

// newTable returns a bordered two-column table styled with the active theme.
func newTable(headers ...string) *table.Table {
	theme := ui.GetCurrentTableTheme()
	header := lipgloss.NewStyle().Foreground(theme.Header).Bold(true).Padding(0, 1)
	label := lipgloss.NewStyle().Foreground(theme.Label).Padding(0, 1)
	value := lipgloss.NewStyle().Foreground(theme.Value).Padding(0, 1).Align(lipgloss.Right)
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(theme.Border)).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return header
			case col == 0:
				return label
			}
			return value
		})
}

// PresentReport displays the control variate summary of a study.
func (CLIResultPresenter) PresentReport(report orchestration.Report, out io.Writer) {
	cv := report.Estimator
	t := newTable("Quantity", "Value").Rows(
		[]string{"Control variate estimate", format.FormatEstimate(cv.Estimate)},
		[]string{"Standard error", format.FormatEstimate(cv.StandardError())},
		[]string{"Truth-only mean", format.FormatEstimate(cv.MonteCarlo)},
		[]string{"Control weight (beta)", format.FormatEstimate(cv.Beta)},
		[]string{"Correlation (rho)", format.FormatEstimate(cv.Rho)},
		[]string{"Variance ratio", format.FormatPercent(cv.VarianceRatio)},
		[]string{"Shared samples (" + report.SharedMode.String() + ")", strconv.Itoa(cv.Shared)},
		[]string{"Surrogate samples (" + report.ExtraMode.String() + ")", strconv.Itoa(cv.Extra)},
		[]string{"Shared phase", format.FormatExecutionDuration(report.SharedElapsed)},
		[]string{"Surrogate phase", format.FormatExecutionDuration(report.ExtraElapsed)},
	)
	fmt.Fprintf(out, "\n--- Study %s (output %d) ---\n", report.ID, report.Output)
	fmt.Fprintln(out, t.Render())
	fmt.Fprintf(out, "Completed in %s%s%s.\n", ui.ColorYellow(), format.FormatExecutionDuration(report.Duration), ui.ColorReset())
}

// PresentResponse displays every output of one combined response, with
// gradients when they were requested.
func (CLIResultPresenter) PresentResponse(s *dispatch.Session, resp *response.Response, duration time.Duration, out io.Writer) {
	headers := []string{"Output", "Value"}
	withGrad := false
	for i := range resp.Values {
		if resp.HasGradient(i) {
			withGrad = true
			headers = append(headers, "Gradient")
			break
		}
	}
	t := newTable(headers...)
	for i, v := range resp.Values {
		row := []string{strconv.Itoa(i), format.FormatEstimate(v)}
		if withGrad {
			row = append(row, formatVector(resp.Gradients[i]))
		}
		t.Row(row...)
	}
	fmt.Fprintf(out, "\n--- %s ---\n", s)
	fmt.Fprintln(out, t.Render())
	fmt.Fprintf(out, "Evaluated in %s%s%s.\n", ui.ColorYellow(), format.FormatExecutionDuration(duration), ui.ColorReset())
}

func formatVector(v []float64) string {
	if v == nil {
		return "-"
	}
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = format.FormatEstimate(x)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// HandleError prints a categorized error message and returns the exit code
// for err.
func (CLIResultPresenter) HandleError(err error, duration time.Duration, out io.Writer) int {
	if err == nil {
		return apperrors.ExitSuccess
	}
	var (
		cfgErr   apperrors.ConfigError
		modelErr apperrors.ModelError
	)
	elapsed := format.FormatExecutionDuration(duration)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		fmt.Fprintf(out, "%sTimed out after %s.%s\n", ui.ColorYellow(), elapsed, ui.ColorReset())
	case errors.Is(err, context.Canceled):
		fmt.Fprintf(out, "%sCanceled after %s.%s\n", ui.ColorYellow(), elapsed, ui.ColorReset())
	case errors.As(err, &cfgErr):
		fmt.Fprintf(out, "%sConfiguration error:%s %v\n", ui.ColorRed(), ui.ColorReset(), err)
	case errors.As(err, &modelErr):
		fmt.Fprintf(out, "%sModel %s failed%s after %s: %v\n", ui.ColorRed(), modelErr.Model, ui.ColorReset(), elapsed, modelErr.Cause)
	default:
		fmt.Fprintf(out, "%sError%s after %s: %v\n", ui.ColorRed(), ui.ColorReset(), elapsed, err)
	}
	return apperrors.ExitCode(err)
}
