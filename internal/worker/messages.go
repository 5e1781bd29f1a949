// Package worker carries messages between the host and the game simulation,
// which runs as a separate process.
package worker

// Inbound message types, sent by the simulation.
const (
	TypeClientMessage   = "clientMessage"
	TypeUpdatePlayers   = "updatePlayers"
	TypeServerStarted   = "serverStarted"
	TypeServerStartText = "serverStartText"
)

// Outbound message types, sent by the host.
const (
	TypeStartServer   = "startServer"
	TypePlayerJoin    = "playerJoin"
	TypePlayerDc      = "playerDc"
	TypeServerMessage = "serverMessage"
)

// Inbound is a message from the simulation. Which fields are set depends on
// Type.
type Inbound struct {
	Type     string `msgpack:"type"`
	PlayerID string `msgpack:"playerId,omitempty"`
	Data     any    `msgpack:"data,omitempty"`
	Players  any    `msgpack:"players,omitempty"`
	Name     string `msgpack:"name,omitempty"`
	Desc     string `msgpack:"desc,omitempty"`
	Text     string `msgpack:"text,omitempty"`
	Tip      string `msgpack:"tip,omitempty"`
}

func ClientMessage(playerID string, data any) Inbound {
	return Inbound{Type: TypeClientMessage, PlayerID: playerID, Data: data}
}

func UpdatePlayers(players any, name, desc string) Inbound {
	return Inbound{Type: TypeUpdatePlayers, Players: players, Name: name, Desc: desc}
}

func ServerStarted() Inbound {
	return Inbound{Type: TypeServerStarted}
}

func ServerStartText(text, tip string) Inbound {
	return Inbound{Type: TypeServerStartText, Text: text, Tip: tip}
}

// Outbound is a message to the simulation.
type Outbound struct {
	Type     string      `msgpack:"type"`
	PlayerID string      `msgpack:"playerId,omitempty"`
	Server   *ServerInfo `msgpack:"server,omitempty"`
	Data     []any       `msgpack:"data,omitempty"`
}

// ServerInfo selects the game mode to run.
type ServerInfo struct {
	Suffix   string `msgpack:"suffix"`
	Gamemode string `msgpack:"gamemode"`
}

func StartServer(suffix, gamemode string) Outbound {
	return Outbound{Type: TypeStartServer, Server: &ServerInfo{Suffix: suffix, Gamemode: gamemode}}
}

func PlayerJoin(playerID string) Outbound {
	return Outbound{Type: TypePlayerJoin, PlayerID: playerID}
}

func PlayerDc(playerID string) Outbound {
	return Outbound{Type: TypePlayerDc, PlayerID: playerID}
}

// ServerMessage forwards a decoded player payload as [playerID, payload].
func ServerMessage(playerID string, payload any) Outbound {
	return Outbound{Type: TypeServerMessage, Data: []any{playerID, payload}}
}
