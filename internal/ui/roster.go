package ui

import (
	"cmp"
	"fmt"
	"slices"

	prettytable "github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/lo"

	"github.com/st4rkjatt/videoChatSimple/internal/protocol"
)

// SortedRoster orders participants by name, then identity.
func SortedRoster(roster map[string]protocol.Participant) []protocol.Participant {
	people := lo.Values(roster)
	slices.SortFunc(people, func(a, b protocol.Participant) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.Identity, b.Identity))
	})
	return people
}

// RosterView renders the connected participants. self is marked.
func RosterView(self string, roster map[string]protocol.Participant) string {
	if len(roster) == 0 {
		return MutedStyle.Render("Nobody is online")
	}

	t := prettytable.NewWriter()
	t.SetStyle(prettytable.StyleRounded)
	t.AppendHeader(prettytable.Row{"#", "Name", "Identity", ""})
	for i, p := range SortedRoster(roster) {
		mark := ""
		if p.Identity == self {
			mark = "(you)"
		}
		t.AppendRow(prettytable.Row{i + 1, TruncateString(p.Name, 32), p.Identity, mark})
	}
	t.AppendFooter(prettytable.Row{"", fmt.Sprintf("%d online", len(roster)), "", ""})
	return t.Render()
}

func RenderRoster(self string, roster map[string]protocol.Participant) {
	fmt.Println(RosterView(self, roster))
}
