package webrtc

import (
	"fmt"
	"sync"

	pion "github.com/pion/webrtc/v4"
)

// PionEngine creates sessions backed by pion/webrtc.
type PionEngine struct {
	api *pion.API
}

var _ Engine = (*PionEngine)(nil)

// NewPionEngine returns an engine using pion's default API.
func NewPionEngine() *PionEngine {
	return &PionEngine{api: pion.NewAPI()}
}

func (e *PionEngine) NewSession(cfg Config) (Session, error) {
	pc, err := e.api.NewPeerConnection(pion.Configuration{
		ICEServers:         toPionServers(cfg.ICEServers),
		ICETransportPolicy: transportPolicy(cfg),
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	s := &pionSession{pc: pc}
	pc.OnICECandidate(s.handleCandidate)
	return s, nil
}

// pionSession holds back local candidates until the local description has
// been reported, so a relay never forwards a candidate ahead of its offer or
// answer.
type pionSession struct {
	pc *pion.PeerConnection

	mu            sync.Mutex
	onDescription func(string, SDPKind)
	onCandidate   func(string, string)
	described     bool
	early         []pion.ICECandidateInit
}

func (s *pionSession) OnLocalDescription(fn func(string, SDPKind)) {
	s.mu.Lock()
	s.onDescription = fn
	s.mu.Unlock()
}

func (s *pionSession) OnLocalCandidate(fn func(string, string)) {
	s.mu.Lock()
	s.onCandidate = fn
	s.mu.Unlock()
}

func (s *pionSession) OnStateChange(fn func(State)) {
	s.pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		fn(State(state.String()))
	})
}

func (s *pionSession) OnDataChannel(fn func(DataChannel)) {
	s.pc.OnDataChannel(func(dc *pion.DataChannel) {
		fn(wrapChannel(dc))
	})
}

func (s *pionSession) CreateDataChannel(label string, ordered bool) (DataChannel, error) {
	dc, err := s.pc.CreateDataChannel(label, &pion.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return nil, fmt.Errorf("create data channel: %w", err)
	}
	return wrapChannel(dc), nil
}

func (s *pionSession) SetLocalDescription() error {
	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	s.describe(offer.SDP, SDPOffer)
	return nil
}

func (s *pionSession) SetRemoteDescription(sdp string, kind SDPKind) error {
	desc := pion.SessionDescription{SDP: sdp}
	switch kind {
	case SDPOffer:
		desc.Type = pion.SDPTypeOffer
	case SDPAnswer:
		desc.Type = pion.SDPTypeAnswer
	default:
		return fmt.Errorf("unexpected description type %q", kind)
	}
	if err := s.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	if kind != SDPOffer {
		return nil
	}

	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	s.describe(answer.SDP, SDPAnswer)
	return nil
}

func (s *pionSession) AddRemoteCandidate(candidate, mid string) error {
	init := pion.ICECandidateInit{Candidate: candidate}
	if mid != "" {
		init.SDPMid = &mid
	}
	if err := s.pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("add ICE candidate: %w", err)
	}
	return nil
}

func (s *pionSession) Close() error {
	return s.pc.Close()
}

func (s *pionSession) describe(sdp string, kind SDPKind) {
	s.mu.Lock()
	fn := s.onDescription
	s.mu.Unlock()
	if fn != nil {
		fn(sdp, kind)
	}

	s.mu.Lock()
	s.described = true
	early := s.early
	s.early = nil
	emit := s.onCandidate
	s.mu.Unlock()

	if emit == nil {
		return
	}
	for _, c := range early {
		emit(c.Candidate, derefMid(c.SDPMid))
	}
}

func (s *pionSession) handleCandidate(c *pion.ICECandidate) {
	if c == nil {
		return
	}
	init := c.ToJSON()

	s.mu.Lock()
	if !s.described {
		s.early = append(s.early, init)
		s.mu.Unlock()
		return
	}
	emit := s.onCandidate
	s.mu.Unlock()

	if emit != nil {
		emit(init.Candidate, derefMid(init.SDPMid))
	}
}

func derefMid(mid *string) string {
	if mid == nil {
		return ""
	}
	return *mid
}

type pionChannel struct {
	dc *pion.DataChannel
}

func wrapChannel(dc *pion.DataChannel) *pionChannel {
	return &pionChannel{dc: dc}
}

func (c *pionChannel) Label() string { return c.dc.Label() }

func (c *pionChannel) OnOpen(fn func()) { c.dc.OnOpen(fn) }

func (c *pionChannel) OnMessage(fn func([]byte)) {
	c.dc.OnMessage(func(msg pion.DataChannelMessage) {
		fn(msg.Data)
	})
}

func (c *pionChannel) OnClose(fn func()) { c.dc.OnClose(fn) }

func (c *pionChannel) SendBinary(data []byte) error { return c.dc.Send(data) }

func (c *pionChannel) BufferedAmount() uint64 { return c.dc.BufferedAmount() }

func (c *pionChannel) IsOpen() bool {
	return c.dc.ReadyState() == pion.DataChannelStateOpen
}

func (c *pionChannel) Close() error { return c.dc.Close() }
