package ui

import "github.com/charmbracelet/lipgloss"

// Color palette
// - Default (white/black): Primary text
// - Accent (soft purple #A78BFA): paths, object references, package names
// - Muted (gray): ids, hints, secondary counts
// - No colored success/error/warning - use unicode symbols only

const accentColor = "#A78BFA"

var (
	// Accent style for file paths, object references, highlights
	Accent = lipgloss.NewStyle().Foreground(lipgloss.Color(accentColor))

	// Muted style for secondary info and hints
	Muted = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086"))

	// Bold style for emphasis
	Bold = lipgloss.NewStyle().Bold(true)

	// AccentBold combines accent color with bold
	AccentBold = lipgloss.NewStyle().Foreground(lipgloss.Color(accentColor)).Bold(true)
)

// AccentColor returns the accent as a color string usable by glamour.
func AccentColor() string {
	return accentColor
}
