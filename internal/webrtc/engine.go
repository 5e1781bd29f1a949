// Package webrtc is the narrow set of negotiation primitives the signaling
// layer drives. The production engine is pion; tests use webrtctest.
package webrtc

// SDPKind is the type of a session description.
type SDPKind string

const (
	SDPOffer  SDPKind = "offer"
	SDPAnswer SDPKind = "answer"
)

// State mirrors the engine's peer connection state.
type State string

const (
	StateNew          State = "new"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateFailed       State = "failed"
	StateClosed       State = "closed"
)

// Terminal reports whether the state ends the connection.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateFailed || s == StateDisconnected
}

// Config configures one Session.
type Config struct {
	ICEServers []ICEServer
	ForceRelay bool
}

// Engine creates transport sessions.
type Engine interface {
	NewSession(cfg Config) (Session, error)
}

// Session is one engine peer connection. Callbacks must be registered before
// SetLocalDescription or SetRemoteDescription is called.
type Session interface {
	OnLocalDescription(fn func(sdp string, kind SDPKind))
	OnLocalCandidate(fn func(candidate, mid string))
	OnStateChange(fn func(State))
	OnDataChannel(fn func(DataChannel))

	CreateDataChannel(label string, ordered bool) (DataChannel, error)

	// SetLocalDescription generates an offer and reports it through
	// OnLocalDescription.
	SetLocalDescription() error

	// SetRemoteDescription applies a remote description. Applying an offer
	// generates the answer and reports it through OnLocalDescription.
	SetRemoteDescription(sdp string, kind SDPKind) error

	AddRemoteCandidate(candidate, mid string) error
	Close() error
}

// DataChannel is the binary message surface of an open session.
type DataChannel interface {
	Label() string
	OnOpen(fn func())
	OnMessage(fn func([]byte))
	OnClose(fn func())
	SendBinary(data []byte) error
	BufferedAmount() uint64
	IsOpen() bool
	Close() error
}
