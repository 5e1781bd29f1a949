package webrtc

import (
	"testing"

	pion "github.com/pion/webrtc/v4"
)

func TestICEServerURL(t *testing.T) {
	tests := []struct {
		server ICEServer
		want   string
	}{
		{ICEServer{Hostname: "stun.l.google.com", Port: 19302}, "stun:stun.l.google.com:19302"},
		{ICEServer{Hostname: "74.208.44.199", Port: 3478, RelayType: RelayTurnUDP}, "turn:74.208.44.199:3478?transport=udp"},
		{ICEServer{Hostname: "relay.example", Port: 3478, RelayType: RelayTurnTCP}, "turn:relay.example:3478?transport=tcp"},
		{ICEServer{Hostname: "relay.example", Port: 5349, RelayType: RelayTurnTLS}, "turns:relay.example:5349?transport=tcp"},
	}
	for _, tt := range tests {
		if got := tt.server.URL(); got != tt.want {
			t.Errorf("URL() = %q, want %q", got, tt.want)
		}
	}
}

func TestToPionServersCarriesRelayCredentials(t *testing.T) {
	servers := append(DefaultSTUNServers(), ICEServer{
		Hostname:  "74.208.44.199",
		Port:      3478,
		Username:  "u",
		Password:  "p",
		RelayType: RelayTurnUDP,
	}, ICEServer{})

	got := toPionServers(servers)
	if len(got) != 6 {
		t.Fatalf("len = %d, want 6 (empty hostname skipped)", len(got))
	}
	if got[0].Username != "" {
		t.Errorf("STUN server carries username %q", got[0].Username)
	}
	turn := got[5]
	if turn.Username != "u" || turn.Credential != "p" {
		t.Errorf("relay credentials = %q/%v, want u/p", turn.Username, turn.Credential)
	}
}

func TestTransportPolicyNeedsRelayServer(t *testing.T) {
	if got := transportPolicy(Config{ForceRelay: true}); got != pion.ICETransportPolicyAll {
		t.Errorf("forced without relay = %v, want all", got)
	}
	cfg := Config{
		ForceRelay: true,
		ICEServers: []ICEServer{{Hostname: "relay", Port: 3478, RelayType: RelayTurnUDP}},
	}
	if got := transportPolicy(cfg); got != pion.ICETransportPolicyRelay {
		t.Errorf("forced with relay = %v, want relay", got)
	}
}

func TestStateTerminal(t *testing.T) {
	for _, s := range []State{StateClosed, StateFailed, StateDisconnected} {
		if !s.Terminal() {
			t.Errorf("%s.Terminal() = false", s)
		}
	}
	for _, s := range []State{StateNew, StateConnecting, StateConnected} {
		if s.Terminal() {
			t.Errorf("%s.Terminal() = true", s)
		}
	}
}
