package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// CallSummary describes a finished call.
type CallSummary struct {
	Peer     string
	Duration time.Duration
	Tracks   int
	Bytes    uint64
	Reason   string
}

func CallSummaryView(summary CallSummary) string {
	headers := []string{"Metric", "Value"}
	rows := [][]string{
		{"Peer", summary.Peer},
		{"Duration", FormatDuration(summary.Duration)},
		{"Tracks", fmt.Sprintf("%d", summary.Tracks)},
		{"Received", FormatSize(summary.Bytes)},
		{"Ended", summary.Reason},
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

func RenderCallSummary(summary CallSummary) {
	fmt.Println(CallSummaryView(summary))
}

// IdentityView shows who we are on the relay.
func IdentityView(identity, name, server string) string {
	content := fmt.Sprintf("%s Connected!\n\n%s Identity:  %s\n%s Name:      %s\n%s Server:    %s",
		IconSuccess,
		IconIdentity, BoldStyle.Foreground(Primary).Render(identity),
		IconPeer, BoldStyle.Render(name),
		IconConnect, MutedStyle.Render(server),
	)
	return SuccessBoxStyle.Render(content)
}

func RenderIdentity(identity, name, server string) {
	fmt.Println(IdentityView(identity, name, server))
}
