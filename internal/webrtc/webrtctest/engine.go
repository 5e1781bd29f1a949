// Package webrtctest provides a scriptable in-memory webrtc.Engine. Tests
// play the remote side: they open channels, deliver messages, report state
// changes and control the buffered amount seen by senders.
package webrtctest

import (
	"errors"
	"sync"

	"github.com/BioHazard786/warphost/internal/webrtc"
)

const (
	OfferSDP  = "v=0 fake-offer"
	AnswerSDP = "v=0 fake-answer"
)

// Engine records every session it creates on Sessions.
type Engine struct {
	sessions chan *Session

	mu  sync.Mutex
	err error
}

var _ webrtc.Engine = (*Engine)(nil)

func NewEngine() *Engine {
	return &Engine{sessions: make(chan *Session, 64)}
}

// Sessions delivers sessions in creation order.
func (e *Engine) Sessions() <-chan *Session { return e.sessions }

// FailNextSession makes the next NewSession call return err.
func (e *Engine) FailNextSession(err error) {
	e.mu.Lock()
	e.err = err
	e.mu.Unlock()
}

func (e *Engine) NewSession(cfg webrtc.Config) (webrtc.Session, error) {
	e.mu.Lock()
	err := e.err
	e.err = nil
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s := &Session{config: cfg}
	e.sessions <- s
	return s, nil
}

// Session is a fake engine connection.
type Session struct {
	config webrtc.Config

	mu            sync.Mutex
	onDescription func(string, webrtc.SDPKind)
	onCandidate   func(string, string)
	onState       func(webrtc.State)
	onChannel     func(webrtc.DataChannel)
	channel       *Channel
	remote        []Description
	candidates    []Candidate
	remoteErr     error
	candidateErr  error
	closed        bool
}

type Description struct {
	SDP  string
	Kind webrtc.SDPKind
}

type Candidate struct {
	Candidate string
	Mid       string
}

func (s *Session) Config() webrtc.Config { return s.config }

func (s *Session) OnLocalDescription(fn func(string, webrtc.SDPKind)) {
	s.mu.Lock()
	s.onDescription = fn
	s.mu.Unlock()
}

func (s *Session) OnLocalCandidate(fn func(string, string)) {
	s.mu.Lock()
	s.onCandidate = fn
	s.mu.Unlock()
}

func (s *Session) OnStateChange(fn func(webrtc.State)) {
	s.mu.Lock()
	s.onState = fn
	s.mu.Unlock()
}

func (s *Session) OnDataChannel(fn func(webrtc.DataChannel)) {
	s.mu.Lock()
	s.onChannel = fn
	s.mu.Unlock()
}

func (s *Session) CreateDataChannel(label string, ordered bool) (webrtc.DataChannel, error) {
	ch := newChannel(label, ordered)
	s.mu.Lock()
	s.channel = ch
	s.mu.Unlock()
	return ch, nil
}

func (s *Session) SetLocalDescription() error {
	s.mu.Lock()
	fn := s.onDescription
	s.mu.Unlock()
	if fn != nil {
		fn(OfferSDP, webrtc.SDPOffer)
	}
	return nil
}

func (s *Session) SetRemoteDescription(sdp string, kind webrtc.SDPKind) error {
	s.mu.Lock()
	if s.remoteErr != nil {
		err := s.remoteErr
		s.mu.Unlock()
		return err
	}
	s.remote = append(s.remote, Description{SDP: sdp, Kind: kind})
	fn := s.onDescription
	s.mu.Unlock()

	if kind == webrtc.SDPOffer && fn != nil {
		fn(AnswerSDP, webrtc.SDPAnswer)
	}
	return nil
}

func (s *Session) AddRemoteCandidate(candidate, mid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.candidateErr != nil {
		return s.candidateErr
	}
	s.candidates = append(s.candidates, Candidate{Candidate: candidate, Mid: mid})
	return nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// RejectRemoteDescriptions makes SetRemoteDescription fail with err.
func (s *Session) RejectRemoteDescriptions(err error) {
	s.mu.Lock()
	s.remoteErr = err
	s.mu.Unlock()
}

// RejectCandidates makes AddRemoteCandidate fail with err.
func (s *Session) RejectCandidates(err error) {
	s.mu.Lock()
	s.candidateErr = err
	s.mu.Unlock()
}

// EmitCandidate reports a local candidate as if gathering found it.
func (s *Session) EmitCandidate(candidate, mid string) {
	s.mu.Lock()
	fn := s.onCandidate
	s.mu.Unlock()
	if fn != nil {
		fn(candidate, mid)
	}
}

// EmitState reports an engine state change.
func (s *Session) EmitState(state webrtc.State) {
	s.mu.Lock()
	fn := s.onState
	s.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

// DeliverChannel hands a remote-created channel to the session's owner.
func (s *Session) DeliverChannel(label string) (*Channel, error) {
	s.mu.Lock()
	fn := s.onChannel
	ch := newChannel(label, true)
	s.channel = ch
	s.mu.Unlock()
	if fn == nil {
		return nil, errors.New("webrtctest: no data channel handler registered")
	}
	fn(ch)
	return ch, nil
}

// Channel returns the most recent channel, created locally or delivered.
func (s *Session) Channel() *Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel
}

func (s *Session) RemoteDescriptions() []Description {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Description(nil), s.remote...)
}

func (s *Session) RemoteCandidates() []Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Candidate(nil), s.candidates...)
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
