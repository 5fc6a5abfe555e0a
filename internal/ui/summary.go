package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// SessionSummary is printed after the board exits.
type SessionSummary struct {
	Room      string
	Result    string
	CallState string
	Duration  string
	RxPackets uint64
	RxBytes   uint64
}

// SessionSummaryView renders the post-session summary table.
func SessionSummaryView(summary SessionSummary) string {
	headers := []string{"Metric", "Value"}
	rows := [][]string{
		{"Room", summary.Room},
		{"Result", summary.Result},
		{"Call", summary.CallState},
		{"Duration", summary.Duration},
		{"Media Received", fmt.Sprintf("%d packets / %s", summary.RxPackets, formatBytes(int64(summary.RxBytes)))},
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return tbl.Render()
}

// RenderSessionSummary outputs the summary directly to stdout.
func RenderSessionSummary(summary SessionSummary) {
	fmt.Println(SessionSummaryView(summary))
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
