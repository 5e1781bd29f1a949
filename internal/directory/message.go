package directory

import "encoding/json"

// Directory message types.
const (
	TypePlayerJoin = "playerJoin"
	TypeHostRoomID = "hostRoomId"
	TypePing       = "ping"
)

// Message is an inbound directory frame.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Text returns Data as a string. Non-string data is returned as raw JSON.
func (m Message) Text() string {
	if len(m.Data) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(m.Data, &s); err == nil {
		return s
	}
	return string(m.Data)
}

// Pong answers a ping.
type Pong struct {
	Ping bool `json:"ping"`
}

// Status is the room listing published to the directory.
type Status struct {
	Players any    `json:"players"`
	Name    string `json:"name"`
	Desc    string `json:"desc,omitempty"`
}
