package ui

import (
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Theme defines a color scheme for UI output.
// Each field contains an ANSI escape code for the corresponding color category.
type Theme struct {
	// Name is the identifier of the theme.
	Name string
	// Primary is the main accent color for important elements.
	Primary string
	// Secondary is used for less prominent elements.
	Secondary string
	// Success indicates positive outcomes or completed operations.
	Success string
	// Warning is used for caution messages or non-critical issues.
	Warning string
	// Error indicates failures or critical issues.
	Error string
	// Info is used for informational messages.
	Info string
	// Bold is the escape code for bold text.
	Bold string
	// Underline is the escape code for underlined text.
	Underline string
	// Reset clears all formatting.
	Reset string
}

var (
	// DarkTheme is optimized for dark terminal backgrounds.
	DarkTheme = Theme{
		Name:      "dark",
		Primary:   "\033[38;5;39m",  // Bright blue
		Secondary: "\033[38;5;245m", // Grey
		Success:   "\033[38;5;82m",  // Bright green
		Warning:   "\033[38;5;220m", // Yellow
		Error:     "\033[38;5;196m", // Red
		Info:      "\033[38;5;141m", // Purple
		Bold:      "\033[1m",
		Underline: "\033[4m",
		Reset:     "\033[0m",
	}

	// LightTheme is optimized for light terminal backgrounds.
	LightTheme = Theme{
		Name:      "light",
		Primary:   "\033[38;5;27m",  // Dark blue
		Secondary: "\033[38;5;240m", // Dark grey
		Success:   "\033[38;5;28m",  // Dark green
		Warning:   "\033[38;5;130m", // Orange
		Error:     "\033[38;5;124m", // Dark red
		Info:      "\033[38;5;54m",  // Dark purple
		Bold:      "\033[1m",
		Underline: "\033[4m",
		Reset:     "\033[0m",
	}

	// NoColorTheme disables all color output.
	// Used when NO_COLOR is set or --no-color flag is provided.
	NoColorTheme = Theme{Name: "none"}

	currentTheme = DarkTheme
	themeMutex   sync.RWMutex
)

// TableTheme holds the lipgloss colors of the result tables.
type TableTheme struct {
	Header lipgloss.TerminalColor
	Border lipgloss.TerminalColor
	Label  lipgloss.TerminalColor
	Value  lipgloss.TerminalColor
	Good   lipgloss.TerminalColor
	Bad    lipgloss.TerminalColor
}

var (
	// DarkTableTheme colors tables on dark backgrounds.
	DarkTableTheme = TableTheme{
		Header: lipgloss.Color("#4FB3FF"),
		Border: lipgloss.Color("#666666"),
		Label:  lipgloss.Color("#E0E0E0"),
		Value:  lipgloss.Color("#FFD75F"),
		Good:   lipgloss.Color("#9ece6a"),
		Bad:    lipgloss.Color("#FF4444"),
	}

	// LightTableTheme colors tables on light backgrounds.
	LightTableTheme = TableTheme{
		Header: lipgloss.Color("#005FAF"),
		Border: lipgloss.Color("#8A8A8A"),
		Label:  lipgloss.Color("#303030"),
		Value:  lipgloss.Color("#875F00"),
		Good:   lipgloss.Color("#008700"),
		Bad:    lipgloss.Color("#AF0000"),
	}

	// NoColorTableTheme renders tables with the terminal's default colors.
	NoColorTableTheme = TableTheme{
		Header: lipgloss.NoColor{},
		Border: lipgloss.NoColor{},
		Label:  lipgloss.NoColor{},
		Value:  lipgloss.NoColor{},
		Good:   lipgloss.NoColor{},
		Bad:    lipgloss.NoColor{},
	}
)

// GetCurrentTableTheme returns the table theme matching the active theme.
func GetCurrentTableTheme() TableTheme {
	themeMutex.RLock()
	defer themeMutex.RUnlock()

	switch currentTheme.Name {
	case "none":
		return NoColorTableTheme
	case "light":
		return LightTableTheme
	}
	return DarkTableTheme
}

// GetCurrentTheme returns the currently active theme in a thread-safe manner.
func GetCurrentTheme() Theme {
	themeMutex.RLock()
	defer themeMutex.RUnlock()
	return currentTheme
}

// SetCurrentTheme sets the currently active theme in a thread-safe manner.
// This is primarily used for testing purposes to restore state.
func SetCurrentTheme(t Theme) {
	themeMutex.Lock()
	defer themeMutex.Unlock()
	currentTheme = t
}

// SetTheme changes the active theme by name.
// Valid names are: "dark", "light", "none".
// Unknown names default to dark theme.
//
// Parameters:
//   - name: The name of the theme to activate.
func SetTheme(name string) {
	themeMutex.Lock()
	defer themeMutex.Unlock()

	switch name {
	case "light":
		currentTheme = LightTheme
	case "none":
		currentTheme = NoColorTheme
	default:
		currentTheme = DarkTheme
	}
}

// InitTheme initializes the theme based on the noColor flag and environment.
// It respects the NO_COLOR environment variable (https://no-color.org/).
//
// Parameters:
//   - noColor: If true, disables all color output regardless of environment.
func InitTheme(noColor bool) {
	themeMutex.Lock()
	defer themeMutex.Unlock()

	if noColor {
		currentTheme = NoColorTheme
		return
	}
	// Any value disables colors, even an empty one.
	if _, exists := os.LookupEnv("NO_COLOR"); exists {
		currentTheme = NoColorTheme
		return
	}
	currentTheme = DarkTheme
}
