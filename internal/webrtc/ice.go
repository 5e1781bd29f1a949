package webrtc

import (
	"fmt"
	"net"
	"strings"

	pion "github.com/pion/webrtc/v4"
)

// RelayType names the transport of a relay-assist server. An empty type is a
// plain STUN server.
type RelayType string

const (
	RelayNone    RelayType = ""
	RelayTurnUDP RelayType = "TurnUdp"
	RelayTurnTCP RelayType = "TurnTcp"
	RelayTurnTLS RelayType = "TurnTls"
)

// ICEServer is one candidate-gathering server.
type ICEServer struct {
	Hostname  string    `json:"hostname"`
	Port      int       `json:"port"`
	Username  string    `json:"username,omitempty"`
	Password  string    `json:"password,omitempty"`
	RelayType RelayType `json:"relayType,omitempty"`
}

// IsRelay reports whether the server is a TURN relay.
func (s ICEServer) IsRelay() bool {
	return s.RelayType != RelayNone
}

// URL renders the server as an ICE URL.
func (s ICEServer) URL() string {
	hostport := net.JoinHostPort(s.Hostname, fmt.Sprint(s.Port))
	switch s.RelayType {
	case RelayTurnUDP:
		return "turn:" + hostport + "?transport=udp"
	case RelayTurnTCP:
		return "turn:" + hostport + "?transport=tcp"
	case RelayTurnTLS:
		return "turns:" + hostport + "?transport=tcp"
	default:
		return "stun:" + hostport
	}
}

// DefaultSTUNServers are the public servers every session gathers against.
func DefaultSTUNServers() []ICEServer {
	return []ICEServer{
		{Hostname: "stun.l.google.com", Port: 19302},
		{Hostname: "stun1.l.google.com", Port: 19302},
		{Hostname: "stun2.l.google.com", Port: 19302},
		{Hostname: "stun3.l.google.com", Port: 19302},
		{Hostname: "stun4.l.google.com", Port: 19302},
	}
}

func toPionServers(servers []ICEServer) []pion.ICEServer {
	out := make([]pion.ICEServer, 0, len(servers))
	for _, s := range servers {
		if s.Hostname == "" {
			continue
		}
		ice := pion.ICEServer{URLs: []string{s.URL()}}
		if s.IsRelay() {
			ice.Username = s.Username
			ice.Credential = s.Password
		}
		out = append(out, ice)
	}
	return out
}

// transportPolicy restricts gathering to relay candidates when forced and at
// least one relay server is available. Without a relay server forcing would
// leave no candidates at all.
func transportPolicy(cfg Config) pion.ICETransportPolicy {
	hasRelay := false
	for _, s := range cfg.ICEServers {
		if s.IsRelay() {
			hasRelay = true
			break
		}
	}
	if hasRelay && (cfg.ForceRelay || BehindRestrictiveNAT()) {
		return pion.ICETransportPolicyRelay
	}
	return pion.ICETransportPolicyAll
}

// BehindRestrictiveNAT reports whether an active interface looks like a VPN
// tunnel or carries a CGNAT address (100.64.0.0/10), where direct paths
// usually fail.
func BehindRestrictiveNAT() bool {
	interfaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	_, cgnat, _ := net.ParseCIDR("100.64.0.0/10")

	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		name := strings.ToLower(iface.Name)
		for _, marker := range []string{"tun", "tap", "wg", "ppp", "warp"} {
			if strings.Contains(name, marker) {
				return true
			}
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && cgnat.Contains(ipnet.IP) {
				return true
			}
		}
	}
	return false
}
