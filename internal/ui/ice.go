package ui

import (
	"fmt"
	"strings"

	"github.com/BioHazard786/warphost/internal/webrtc"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// ICEServersView lists the servers a join will gather against. Passwords
// are masked.
func ICEServersView(servers []webrtc.ICEServer) string {
	t := table.NewWriter()
	t.SetTitle("ICE Servers")
	t.SetStyle(table.StyleRounded)
	t.Style().Title.Align = text.AlignCenter
	t.AppendHeader(table.Row{"#", "URL", "Kind", "Username", "Password"})

	for i, s := range servers {
		kind := "stun"
		if s.IsRelay() {
			kind = "relay"
		}
		t.AppendRow(table.Row{i + 1, s.URL(), kind, s.Username, mask(s.Password)})
	}
	return t.Render()
}

func RenderICEServers(servers []webrtc.ICEServer) {
	fmt.Println(ICEServersView(servers))
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return strings.Repeat("*", 8)
}
