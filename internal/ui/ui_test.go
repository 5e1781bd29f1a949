package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/BioHazard786/warphost/internal/host"
	"github.com/BioHazard786/warphost/internal/webrtc"
	tea "github.com/charmbracelet/bubbletea"
)

func TestFormatTimeDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{42 * time.Second, "42s"},
		{3*time.Minute + 5*time.Second, "3m 5s"},
		{2*time.Hour + 61*time.Second, "2h 1m 1s"},
	}
	for _, tt := range tests {
		if got := FormatTimeDuration(tt.in); got != tt.want {
			t.Errorf("FormatTimeDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTruncateString(t *testing.T) {
	if got := TruncateString("peer-1", 10); got != "peer-1" {
		t.Errorf("short string changed: %q", got)
	}
	if got := TruncateString("abcdefghijkl", 8); got != "abcde..." {
		t.Errorf("got %q", got)
	}
}

func TestICEServersViewMasksPasswords(t *testing.T) {
	out := ICEServersView([]webrtc.ICEServer{
		{Hostname: "stun.l.google.com", Port: 19302},
		{Hostname: "74.208.44.199", Port: 3478, Username: "u", Password: "s3cret", RelayType: webrtc.RelayTurnUDP},
	})
	if strings.Contains(out, "s3cret") {
		t.Errorf("password leaked:\n%s", out)
	}
	for _, want := range []string{"stun:stun.l.google.com:19302", "turn:74.208.44.199:3478?transport=udp", "relay"} {
		if !strings.Contains(out, want) {
			t.Errorf("view missing %q:\n%s", want, out)
		}
	}
}

func TestPlayersView(t *testing.T) {
	if out := PlayersView(nil); !strings.Contains(out, "No players") {
		t.Errorf("empty view = %q", out)
	}
	out := PlayersView([]string{"peer-a", "peer-b"})
	if !strings.Contains(out, "peer-a") || !strings.Contains(out, "peer-b") {
		t.Errorf("view missing peers:\n%s", out)
	}
}

func TestDashboardRefreshesAndQuits(t *testing.T) {
	calls := 0
	m := newDashboardModel(func() host.Snapshot {
		calls++
		return host.Snapshot{RoomID: "ABCD", Peers: make([]string, calls), Connected: true, Uptime: 90 * time.Second}
	})

	if !strings.Contains(m.View(), "ABCD") || !strings.Contains(m.View(), "1m 30s") {
		t.Errorf("initial view:\n%s", m.View())
	}

	if _, cmd := m.Update(refreshMsg(time.Now())); cmd == nil {
		t.Error("refresh did not schedule the next tick")
	}
	if !strings.Contains(m.View(), "Players (2)") {
		t.Errorf("refresh not applied:\n%s", m.View())
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("q did not quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not return tea.Quit")
	}
	if m.View() != "" {
		t.Error("view not cleared after quit")
	}
}

func TestDashboardShowsReconnecting(t *testing.T) {
	m := newDashboardModel(func() host.Snapshot { return host.Snapshot{} })
	if !strings.Contains(m.View(), "RECONNECTING") {
		t.Errorf("view:\n%s", m.View())
	}
}
