package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// column describes one column of a CLI table. Numeric columns are right
// aligned. Cells longer than width runes are cut short with "...".
type column struct {
	title   string
	numeric bool
	width   int
}

var (
	historyColumns = []column{
		{title: "ID", numeric: true},
		{title: "Started"},
		{title: "PID", numeric: true},
		{title: "Status"},
		{title: "Exit", numeric: true},
		{title: "Duration", numeric: true},
		{title: "Command", width: 60},
	}
	queueColumns   = []column{{title: "Counter"}, {title: "Value", numeric: true}}
	journalColumns = []column{{title: "Status"}, {title: "Count", numeric: true}}
	clientColumns  = []column{{title: "FIFO"}, {title: "PID", numeric: true}, {title: "Alive"}}
)

// renderTable draws rows under cols. Short rows are padded with empty cells
// and extra cells are dropped.
func renderTable(cols []column, rows [][]string) string {
	if len(cols) == 0 {
		return ""
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(cols))
	configs := make([]table.ColumnConfig, len(cols))
	for i, col := range cols {
		header[i] = col.title
		configs[i] = table.ColumnConfig{Number: i + 1, AlignHeader: text.AlignLeft}
		if col.numeric {
			configs[i].Align = text.AlignRight
		}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, cells := range rows {
		row := make(table.Row, len(cols))
		for i, col := range cols {
			cell := ""
			if i < len(cells) {
				cell = shorten(cells[i], col.width)
			}
			row[i] = cell
		}
		tw.AppendRow(row)
	}
	return tw.Render() + "\n"
}

func shorten(s string, width int) string {
	if width <= 3 {
		return s
	}
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-3]) + "..."
}
