package failure

import (
	"errors"
	"fmt"
)

var (
	ErrSignaling       = errors.New("signaling failure")
	ErrNegotiation     = errors.New("negotiation failure")
	ErrDirectoryLost   = errors.New("directory session lost")
	ErrCredentialFetch = errors.New("credential fetch failure")
	ErrRoutingMiss     = errors.New("routing miss")
	ErrNotOpen         = errors.New("not open")
	ErrClosed          = errors.New("closed")
	ErrPeerExists      = errors.New("peer connection already exists")
)

// Error attaches the failing operation, and the peer when there is one, to
// one of the sentinel errors above.
type Error struct {
	Op      string
	Peer    string
	Err     error
	Details string
}

func (e *Error) Error() string {
	if e.Peer != "" {
		if e.Details != "" {
			return fmt.Sprintf("%s %s: %v (%s)", e.Op, e.Peer, e.Err, e.Details)
		}
		return fmt.Sprintf("%s %s: %v", e.Op, e.Peer, e.Err)
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

func NewPeer(op, peer string, err error) *Error {
	return &Error{Op: op, Peer: peer, Err: err}
}

func Wrap(op string, err error, details string) *Error {
	return &Error{Op: op, Err: err, Details: details}
}

// Cause joins a sentinel with the underlying error so both match errors.Is.
func Cause(op, peer string, sentinel, cause error) *Error {
	return &Error{Op: op, Peer: peer, Err: errors.Join(sentinel, cause)}
}
