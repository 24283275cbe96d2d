package main

import (
	"encoding/json"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// column describes one table column. Numeric columns are right-aligned.
type column struct {
	title   string
	numeric bool
}

// tableSpec is a table of string cells. When groupBy is set, a separator
// is drawn each time that column's value changes between rows.
type tableSpec struct {
	columns []column
	rows    [][]string
	groupBy *int
	footer  []string
}

func groupColumn(i int) *int { return &i }

func renderTable(spec tableSpec) string {
	if len(spec.columns) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(spec.columns))
	configs := make([]table.ColumnConfig, len(spec.columns))
	for i, c := range spec.columns {
		header[i] = c.title
		align := text.AlignLeft
		if c.numeric {
			align = text.AlignRight
		}
		configs[i] = table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft, AlignFooter: align}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for n, row := range spec.rows {
		if g := spec.groupBy; g != nil && n > 0 && cell(row, *g) != cell(spec.rows[n-1], *g) {
			tw.AppendSeparator()
		}
		tw.AppendRow(toRow(row, len(spec.columns)))
	}
	if spec.footer != nil {
		tw.AppendFooter(toRow(spec.footer, len(spec.columns)))
	}
	return tw.Render()
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

// toRow pads or truncates cells to width.
func toRow(cells []string, width int) table.Row {
	r := make(table.Row, width)
	for i := range r {
		r[i] = cell(cells, i)
	}
	return r
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
