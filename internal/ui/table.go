package ui

import (
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

type Align int

const (
	AlignLeft Align = iota
	AlignRight
)

type TruncateMode int

const (
	TruncateNone   TruncateMode = iota
	TruncateEnd                 // "hello wo…"
	TruncateMiddle              // "hel…rld"
	TruncateStart               // "…o world"
)

// Column configures a column in the table.
type Column struct {
	Header       string
	Align        Align
	MaxWidth     int          // 0 = unlimited
	Truncate     TruncateMode // defaults to TruncateEnd when MaxWidth > 0
	Ellipsis     string       // default: "…"
	PaddingRight int          // default: 2 spaces

	// Style, if set, picks a style per cell. It is applied after padding so
	// column widths are measured on plain text.
	Style func(cell string) lipgloss.Style
}

type Table struct {
	columns []Column
	rows    [][]string

	ShowHeader    bool
	ShowSeparator bool
}

func NewTable(columns ...Column) *Table {
	for i := range columns {
		if columns[i].PaddingRight == 0 {
			columns[i].PaddingRight = 2
		}
		if columns[i].Ellipsis == "" {
			columns[i].Ellipsis = "…"
		}
		if columns[i].MaxWidth > 0 && columns[i].Truncate == TruncateNone {
			columns[i].Truncate = TruncateEnd
		}
	}

	return &Table{
		columns:       columns,
		ShowHeader:    true,
		ShowSeparator: true,
	}
}

func (t *Table) AddRow(cells ...string) {
	row := make([]string, len(t.columns))
	copy(row, cells)
	t.rows = append(t.rows, row)
}

func (t *Table) Len() int {
	return len(t.rows)
}

func (t *Table) Render(w io.Writer) error {
	if len(t.columns) == 0 {
		return nil
	}

	widths := t.computeWidths()

	if t.ShowHeader {
		headerCells := make([]string, len(t.columns))
		for i, c := range t.columns {
			headerCells[i] = c.Header
		}
		if err := t.writeRow(w, headerCells, widths, false); err != nil {
			return err
		}
		if t.ShowSeparator {
			if err := t.writeSeparator(w, widths); err != nil {
				return err
			}
		}
	}

	for _, row := range t.rows {
		if err := t.writeRow(w, row, widths, true); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) computeWidths() []int {
	widths := make([]int, len(t.columns))
	for i, col := range t.columns {
		widths[i] = cellWidth(applyTruncation(col, col.Header))
	}
	for _, row := range t.rows {
		for i, cell := range row {
			widths[i] = max(widths[i], cellWidth(applyTruncation(t.columns[i], cell)))
		}
	}
	return widths
}

func (t *Table) writeRow(w io.Writer, cells []string, widths []int, styled bool) error {
	var b strings.Builder
	for i, raw := range cells {
		col := t.columns[i]
		out := align(applyTruncation(col, raw), widths[i], col.Align)
		if styled && col.Style != nil {
			out = col.Style(raw).Render(out)
		}
		b.WriteString(out)
		if i < len(cells)-1 {
			b.WriteString(strings.Repeat(" ", col.PaddingRight))
		}
	}
	b.WriteString("\n")
	_, err := io.WriteString(w, b.String())
	return err
}

func (t *Table) writeSeparator(w io.Writer, widths []int) error {
	var b strings.Builder
	for i, col := range t.columns {
		b.WriteString(strings.Repeat("-", widths[i]))
		if i < len(t.columns)-1 {
			b.WriteString(strings.Repeat(" ", col.PaddingRight))
		}
	}
	b.WriteString("\n")
	_, err := io.WriteString(w, b.String())
	return err
}

func applyTruncation(col Column, s string) string {
	if col.MaxWidth <= 0 || col.Truncate == TruncateNone {
		return s
	}
	runes := []rune(s)
	if len(runes) <= col.MaxWidth {
		return s
	}
	ell := col.Ellipsis
	if col.MaxWidth <= len([]rune(ell)) {
		return string(runes[:col.MaxWidth])
	}

	avail := col.MaxWidth - len([]rune(ell))
	switch col.Truncate {
	case TruncateStart:
		return ell + string(runes[len(runes)-avail:])
	case TruncateMiddle:
		left := avail / 2
		right := avail - left
		return string(runes[:left]) + ell + string(runes[len(runes)-right:])
	default:
		return string(runes[:avail]) + ell
	}
}

func align(s string, width int, a Align) string {
	l := cellWidth(s)
	if l >= width {
		return s
	}
	pad := strings.Repeat(" ", width-l)
	if a == AlignRight {
		return pad + s
	}
	return s + pad
}

// cellWidth is the terminal width of s, ignoring ANSI sequences.
func cellWidth(s string) int {
	return lipgloss.Width(s)
}
