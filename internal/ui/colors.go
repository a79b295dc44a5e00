package ui

// Color accessors return the escape code of the active theme, or "" when
// colors are disabled.

func ColorReset() string     { return GetCurrentTheme().Reset }
func ColorBold() string      { return GetCurrentTheme().Bold }
func ColorUnderline() string { return GetCurrentTheme().Underline }
func ColorPrimary() string   { return GetCurrentTheme().Primary }
func ColorDim() string       { return GetCurrentTheme().Secondary }
func ColorGreen() string     { return GetCurrentTheme().Success }
func ColorYellow() string    { return GetCurrentTheme().Warning }
func ColorRed() string       { return GetCurrentTheme().Error }
func ColorMagenta() string   { return GetCurrentTheme().Info }
func ColorBlue() string      { return GetCurrentTheme().Primary }
func ColorCyan() string      { return GetCurrentTheme().Info }
