package ui

import "strings"

// Table lays out key/value style rows in space-separated columns, without
// borders. Used for config dumps and seeded ids.
type Table struct {
	widths []int
	rows   [][]string
}

func NewTable(cols int) *Table {
	return &Table{widths: make([]int, cols)}
}

// AddRow appends a row; extra cells are dropped and missing ones left blank.
func (t *Table) AddRow(cells ...string) {
	row := make([]string, len(t.widths))
	copy(row, cells)
	for i, c := range row {
		t.widths[i] = max(t.widths[i], len(c))
	}
	t.rows = append(t.rows, row)
}

func (t *Table) String() string {
	var b strings.Builder
	for _, row := range t.rows {
		last := len(row) - 1
		for i, c := range row {
			b.WriteString(c)
			if i < last {
				b.WriteString(strings.Repeat(" ", t.widths[i]-len(c)+2))
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}
