package main

import (
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

// renderTable renders rows with rounded borders on a terminal and falls back
// to a plain, border-free layout when output is piped. rightAligned lists
// 1-based column numbers to right-align (counts, percentages).
func renderTable(out io.Writer, headers []string, rows [][]string, rightAligned ...int) string {
	tw := table.NewWriter()
	if isTerminal(out) {
		tw.SetStyle(table.StyleRounded)
	} else {
		plain := table.StyleDefault
		plain.Options = table.OptionsNoBordersAndSeparators
		tw.SetStyle(plain)
	}

	header := make(table.Row, len(headers))
	for i, title := range headers {
		header[i] = title
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(headers))
		for i := range r {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	if len(rightAligned) > 0 {
		configs := make([]table.ColumnConfig, 0, len(rightAligned))
		for _, column := range rightAligned {
			configs = append(configs, table.ColumnConfig{
				Number:      column,
				Align:       text.AlignRight,
				AlignHeader: text.AlignLeft,
			})
		}
		tw.SetColumnConfigs(configs)
	}

	return tw.Render()
}

func isTerminal(out io.Writer) bool {
	file, ok := out.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
