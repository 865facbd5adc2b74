package ui

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/ansi"
	"github.com/charmbracelet/glamour/styles"
)

// MarkdownRenderMargin is the left margin used for terminal markdown rendering.
const MarkdownRenderMargin = 2

// RenderMarkdown renders markdown for terminal display. Package reports
// (counts, file tables) are built as markdown and rendered here.
func RenderMarkdown(content string, width int) (string, error) {
	if width <= 0 {
		width = DefaultTermWidth
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithStyles(markdownStyle()),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}

	rendered, err := r.Render(content)
	if err != nil {
		return "", err
	}

	// glamour adds trailing newlines; normalize to a single trailing newline.
	rendered = strings.TrimRight(rendered, "\n") + "\n"
	return rendered, nil
}

// markdownStyle is glamour's plain style with the accent on headings and
// box-drawing table rules.
func markdownStyle() ansi.StyleConfig {
	s := styles.NoTTYStyleConfig
	margin := uint(MarkdownRenderMargin)
	s.Document.Margin = &margin

	accent := AccentColor()
	bold := true
	s.Heading.Color = &accent
	s.Heading.Bold = &bold

	col, row := "│", "─"
	s.Table.CenterSeparator = &col
	s.Table.ColumnSeparator = &col
	s.Table.RowSeparator = &row
	return s
}
