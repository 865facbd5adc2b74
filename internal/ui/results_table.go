package ui

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// SkipRow is one file of an unpack that was imported but could not be
// matched to its packed images.
type SkipRow struct {
	Path   string
	Reason string
}

// SkipTable lists skipped files numbered, with the path and reason columns
// sharing the terminal width.
type SkipTable struct {
	display *DisplayContext
	rows    []SkipRow
}

const (
	skipIndent    = 2
	skipGutter    = 2
	skipPathMin   = 20
	skipPathMax   = 100
	skipReasonMin = 15
	skipReasonMax = 80
)

func NewSkipTable(display *DisplayContext) *SkipTable {
	return &SkipTable{display: display}
}

func (t *SkipTable) Add(path, reason string) {
	t.rows = append(t.rows, SkipRow{Path: path, Reason: reason})
}

func (t *SkipTable) Len() int { return len(t.rows) }

// widths returns the number, path and reason content widths, gutters
// excluded. The reason column is sized to its longest entry first, since a
// wrapped reason splits its counts across lines. The path column takes the
// rest, no wider than its longest entry; long paths are truncated from the
// left.
func (t *SkipTable) widths() (int, int, int) {
	num := len(strconv.Itoa(len(t.rows)))
	if num < 2 {
		num = 2
	}
	longestPath, longestReason := 0, 0
	for _, r := range t.rows {
		longestPath = max(longestPath, len(r.Path))
		longestReason = max(longestReason, len(r.Reason))
	}
	flex := t.display.TermWidth - skipIndent - num - 2*skipGutter
	reason := clamp(longestReason, skipReasonMin, skipReasonMax)
	path := clamp(flex-reason, skipPathMin, skipPathMax)
	if longestPath < path {
		path = max(longestPath, 1)
	}
	return num, path, reason
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (t *SkipTable) Render() string {
	if len(t.rows) == 0 {
		return ""
	}
	num, path, reason := t.widths()

	data := make([][]string, len(t.rows))
	for i, r := range t.rows {
		data[i] = []string{
			FormatRowNum(i+1, len(t.rows)),
			TruncateWithEllipsis(r.Path, path),
			r.Reason,
		}
	}

	return table.New().
		Border(lipgloss.Border{Middle: "─", Top: "─", Bottom: "─"}).
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderColumn(false).
		BorderRow(true).
		BorderStyle(Muted).
		StyleFunc(func(_, col int) lipgloss.Style {
			switch col {
			case 0:
				return Muted.Width(num + skipGutter).Align(lipgloss.Right).PaddingRight(skipGutter)
			case 1:
				return lipgloss.NewStyle().Width(path + skipGutter).PaddingRight(skipGutter)
			default:
				return Muted.Width(reason)
			}
		}).
		Rows(data...).
		Render()
}

// TruncateWithEllipsis shortens s to at most max bytes, keeping the tail,
// since the file name at the end of a path is the useful part.
func TruncateWithEllipsis(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[len(s)-max:]
	}
	return "..." + s[len(s)-(max-3):]
}

// FormatRowNum right-aligns num to the width of maxNum, at least two digits.
func FormatRowNum(num, maxNum int) string {
	w := len(strconv.Itoa(maxNum))
	if w < 2 {
		w = 2
	}
	s := strconv.Itoa(num)
	for len(s) < w {
		s = " " + s
	}
	return s
}
