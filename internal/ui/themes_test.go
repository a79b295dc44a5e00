package ui

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
)

func TestInitTheme(t *testing.T) {
	defer SetCurrentTheme(GetCurrentTheme())

	t.Setenv("NO_COLOR", "1")
	InitTheme(false)
	if GetCurrentTheme().Name != "none" || ColorGreen() != "" || ColorReset() != "" {
		t.Errorf("NO_COLOR should disable colors, theme = %s", GetCurrentTheme().Name)
	}
	if _, ok := GetCurrentTableTheme().Header.(lipgloss.NoColor); !ok {
		t.Error("table theme should be colorless")
	}
}

func TestInitThemeNoColorFlag(t *testing.T) {
	defer SetCurrentTheme(GetCurrentTheme())
	InitTheme(true)
	if GetCurrentTheme().Name != "none" {
		t.Errorf("theme = %s, want none", GetCurrentTheme().Name)
	}
}

func TestSetTheme(t *testing.T) {
	defer SetCurrentTheme(GetCurrentTheme())
	tests := []struct {
		name  string
		want  string
		table TableTheme
	}{
		{"light", "light", LightTableTheme},
		{"none", "none", NoColorTableTheme},
		{"dark", "dark", DarkTableTheme},
		{"sepia", "dark", DarkTableTheme},
	}
	for _, tt := range tests {
		SetTheme(tt.name)
		if got := GetCurrentTheme().Name; got != tt.want {
			t.Errorf("SetTheme(%q) theme = %s, want %s", tt.name, got, tt.want)
		}
		if GetCurrentTableTheme() != tt.table {
			t.Errorf("SetTheme(%q) table theme mismatch", tt.name)
		}
	}
	SetTheme("dark")
	if ColorGreen() != DarkTheme.Success {
		t.Errorf("ColorGreen() = %q", ColorGreen())
	}
}
