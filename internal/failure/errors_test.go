package failure

import (
	"errors"
	"io"
	"testing"
)

func TestErrorMessageFormats(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"op only", New("open relay", ErrSignaling), "open relay: signaling failure"},
		{"with peer", NewPeer("send", "peer-1", ErrNotOpen), "send peer-1: not open"},
		{"with details", Wrap("fetch", ErrCredentialFetch, "status 503"), "fetch: credential fetch failure (status 503)"},
		{"peer and details", &Error{Op: "route", Peer: "p", Err: ErrRoutingMiss, Details: "gone"}, "route p: routing miss (gone)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCauseMatchesBothErrors(t *testing.T) {
	err := Cause("apply answer", "peer-7", ErrNegotiation, io.ErrUnexpectedEOF)
	if !errors.Is(err, ErrNegotiation) {
		t.Error("errors.Is(err, ErrNegotiation) = false")
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("errors.Is(err, io.ErrUnexpectedEOF) = false")
	}
}
