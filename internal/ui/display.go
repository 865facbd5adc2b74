package ui

import (
	"os"

	"github.com/charmbracelet/x/term"
)

// DefaultTermWidth is used when stdout is not a terminal or its size is
// unknown.
const DefaultTermWidth = 120

// DisplayContext carries the width reports are laid out for.
type DisplayContext struct {
	TermWidth int
	IsTTY     bool
}

// NewDisplayContext sizes output to the terminal on stdout.
func NewDisplayContext() *DisplayContext {
	fd := os.Stdout.Fd()
	d := &DisplayContext{TermWidth: DefaultTermWidth, IsTTY: term.IsTerminal(fd)}
	if !d.IsTTY {
		return d
	}
	if w, _, err := term.GetSize(fd); err == nil && w > 0 {
		d.TermWidth = w
	}
	return d
}

// NewDisplayContextWithWidth fixes the width, for tests and piped output.
func NewDisplayContextWithWidth(width int) *DisplayContext {
	return &DisplayContext{TermWidth: width, IsTTY: true}
}

// AvailableWidth is the width left after a left margin, never below 20.
func (d *DisplayContext) AvailableWidth(leftMargin int) int {
	if w := d.TermWidth - leftMargin; w > 20 {
		return w
	}
	return 20
}
