package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

type RoomInfo struct {
	RoomID   string
	PeerID   string
	Gamemode string
}

func (r RoomInfo) View() string {
	content := fmt.Sprintf("%s Room Hosted!\n\n%s Room ID:   %s\n%s Host Peer: %s\n%s Gamemode:  %s",
		IconSuccess,
		IconCopy, BoldStyle.Foreground(Primary).Render(r.RoomID),
		IconConnect, MutedStyle.Render(r.PeerID),
		IconGame, r.Gamemode,
	)
	return RoomBoxStyle.Render(content)
}

func RenderRoomInfo(info RoomInfo) {
	fmt.Println(info.View())
}

// PlayersView renders the connected peers as a numbered table.
func PlayersView(peers []string) string {
	if len(peers) == 0 {
		return MutedStyle.Render("No players connected")
	}

	rows := make([][]string, 0, len(peers))
	for i, id := range peers {
		rows = append(rows, []string{fmt.Sprintf("%d", i+1), TruncateString(id, 40)})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("#", "Peer").
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
