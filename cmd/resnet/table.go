package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/born-ml/resnet/resnet"
)

var (
	cellStyle         = lipgloss.NewStyle().Padding(0, 1)
	rightAlignedStyle = lipgloss.NewStyle().Align(lipgloss.Right).Padding(0, 1)
	headerStyle       = lipgloss.NewStyle().Padding(0, 1).Bold(true).Reverse(true)
	tableBorderColor  = "#705090"
)

// summaryTable renders one row per layer, indenting block internals.
func summaryTable(rows []resnet.LayerSummary) string {
	table := lgtable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color(tableBorderColor))).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == lgtable.HeaderRow:
				return headerStyle
			case col == 3:
				return rightAlignedStyle
			default:
				return cellStyle
			}
		}).
		Headers("Layer", "Type", "Output Shape", "Params")

	for _, r := range rows {
		params := ""
		if r.Params > 0 {
			params = humanize.Comma(int64(r.Params))
		}
		table.Row(strings.Repeat("  ", r.Depth)+r.Name, r.Kind, r.OutputShape.String(), params)
	}
	return table.String()
}
