package signaling

// Message is one frame on the relay socket, in both directions.
type Message struct {
	Type    string   `json:"type"`
	Src     string   `json:"src,omitempty"`
	Dst     string   `json:"dst,omitempty"`
	Payload *Payload `json:"payload,omitempty"`
}

// Relay message types.
const (
	MessageTypeOpen       = "OPEN"
	MessageTypeOffer      = "OFFER"
	MessageTypeAnswer     = "ANSWER"
	MessageTypeCandidate  = "CANDIDATE"
	MessageTypeLeave      = "LEAVE"
	MessageTypeExpire     = "EXPIRE"
	MessageTypeError      = "ERROR"
	MessageTypeIDTaken    = "ID-TAKEN"
	MessageTypeInvalidKey = "INVALID-KEY"
	MessageTypeHeartbeat  = "HEARTBEAT"
)

const (
	connectionTypeData = "data"
	serializationRaw   = "raw"
)

// Payload carries negotiation data. Only the fields relevant to the message
// type are set.
type Payload struct {
	SDP           *SessionDescription `json:"sdp,omitempty"`
	Candidate     *Candidate          `json:"candidate,omitempty"`
	Type          string              `json:"type,omitempty"`
	ConnectionID  string              `json:"connectionId,omitempty"`
	Label         string              `json:"label,omitempty"`
	Reliable      bool                `json:"reliable,omitempty"`
	Serialization string              `json:"serialization,omitempty"`
	Metadata      any                 `json:"metadata,omitempty"`
	Msg           string              `json:"msg,omitempty"`
}

type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type Candidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        string  `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

func (m *Message) connectionID() string {
	if m.Payload == nil {
		return ""
	}
	return m.Payload.ConnectionID
}

func (m *Message) errorText() string {
	if m.Payload == nil || m.Payload.Msg == "" {
		return m.Type
	}
	return m.Payload.Msg
}
