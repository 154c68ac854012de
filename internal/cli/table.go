package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
)

// ellipsis marks a truncated cell.
const ellipsis = "…"

// table renders aligned plain-text columns. Widths are display widths, so
// CJK text and emoji in page answers stay aligned where tabwriter would not.
type table struct {
	header []string
	rows   [][]string
	max    []int // per-column cap; 0 means unbounded
}

func newTable(header ...string) *table {
	return &table{header: header, max: make([]int, len(header))}
}

// limit caps the display width of column i.
func (t *table) limit(i, width int) *table {
	if i >= 0 && i < len(t.max) {
		t.max[i] = width
	}
	return t
}

func (t *table) add(cells ...string) {
	row := make([]string, len(t.header))
	for i := range row {
		if i < len(cells) {
			row[i] = clean(cells[i])
		}
		if t.max[i] > 0 {
			row[i] = truncate(row[i], t.max[i])
		}
	}
	t.rows = append(t.rows, row)
}

func (t *table) render(w io.Writer) error {
	widths := make([]int, len(t.header))
	for i, h := range t.header {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if cw := runewidth.StringWidth(cell); cw > widths[i] {
				widths[i] = cw
			}
		}
	}

	for _, row := range append([][]string{t.header}, t.rows...) {
		var sb strings.Builder
		for i, cell := range row {
			sb.WriteString(cell)
			if i == len(row)-1 {
				break
			}
			sb.WriteString(strings.Repeat(" ", widths[i]-runewidth.StringWidth(cell)+2))
		}
		if _, err := fmt.Fprintln(w, strings.TrimRight(sb.String(), " ")); err != nil {
			return err
		}
	}
	return nil
}

// truncate shortens s to at most width display cells.
func truncate(s string, width int) string {
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, ellipsis)
}

// clean flattens whitespace so one record stays on one line.
func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
