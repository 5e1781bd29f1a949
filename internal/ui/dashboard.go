package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BioHazard786/warphost/internal/host"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

const refreshInterval = 500 * time.Millisecond

type refreshMsg time.Time

type dashboardModel struct {
	snapshot func() host.Snapshot
	current  host.Snapshot
	spinner  spinner.Model
	quitting bool
}

func newDashboardModel(snapshot func() host.Snapshot) *dashboardModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle
	return &dashboardModel{snapshot: snapshot, current: snapshot(), spinner: s}
}

func (m *dashboardModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, refresh())
}

func refresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

func (m *dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case refreshMsg:
		m.current = m.snapshot()
		return m, refresh()
	}
	return m, nil
}

func (m *dashboardModel) View() string {
	if m.quitting {
		return ""
	}
	snap := m.current

	var b strings.Builder
	status := StatusStyle.Render("ONLINE")
	if !snap.Connected {
		status = OfflineStyle.Render("RECONNECTING")
	}
	roomID := snap.RoomID
	if roomID == "" {
		roomID = m.spinner.View()
	}
	fmt.Fprintf(&b, "%s %s  %s\n", IconRoom, BoldStyle.Foreground(Primary).Render(roomID), status)
	fmt.Fprintf(&b, "%s Uptime: %s\n", IconTime, FormatTimeDuration(snap.Uptime))
	if snap.StatusText != "" {
		fmt.Fprintf(&b, "%s %s\n", IconInfo, MutedStyle.Render(snap.StatusText))
	}
	fmt.Fprintf(&b, "\n%s Players (%d)\n", IconPeer, len(snap.Peers))
	b.WriteString(PlayersView(snap.Peers))

	return DashboardBoxStyle.Render(b.String()) + "\n" + FooterStyle.Render("Press q to stop hosting") + "\n"
}

// RunDashboard shows a live view of the room until the user quits or ctx
// ends. Quitting by key returns nil.
func RunDashboard(ctx context.Context, snapshot func() host.Snapshot) error {
	p := tea.NewProgram(newDashboardModel(snapshot), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}
