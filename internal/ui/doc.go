// Package ui provides theme and color support for the command-line output.
// It defines ANSI color schemes for inline text and lipgloss styles for the
// result tables, honoring --no-color and the NO_COLOR environment variable.
package ui
