package signaling

import (
	"log/slog"
	"sync"
	"time"

	"github.com/BioHazard786/warphost/internal/clock"
	"github.com/BioHazard786/warphost/internal/failure"
	"github.com/BioHazard786/warphost/internal/webrtc"
)

const (
	// HighWaterMark is the buffered amount at which sends are deferred.
	HighWaterMark = 4 * 1024 * 1024
	// RetryInterval is how often deferred frames are retried.
	RetryInterval = 100 * time.Millisecond

	saturationWarnEvery = 50
)

// Role is which side of the negotiation a Conn plays. The initiator sends
// the offer.
type Role string

const (
	RoleInitiator Role = "initiator"
	RoleResponder Role = "responder"
)

// State is a Conn's lifecycle stage. StateClosed is terminal.
type State string

const (
	StateNegotiating State = "negotiating"
	StateOpen        State = "open"
	StateClosed      State = "closed"
)

// Observer receives one Conn's lifecycle. Calls for a Conn are made one at a
// time on a goroutine owned by the Conn, and OnOpen always comes first.
type Observer interface {
	OnOpen(c *Conn)
	OnData(c *Conn, data []byte)
	OnClose(c *Conn)
}

// ErrorObserver is implemented by observers that want negotiation failures.
// OnError is called before the matching OnClose.
type ErrorObserver interface {
	OnError(c *Conn, err error)
}

// ConnectionObserver is implemented by observers that want to hear about
// connections started by remote peers.
type ConnectionObserver interface {
	OnConnection(c *Conn)
}

type nopObserver struct{}

func (nopObserver) OnOpen(*Conn)         {}
func (nopObserver) OnData(*Conn, []byte) {}
func (nopObserver) OnClose(*Conn)        {}

// relay is the part of Client a Conn talks back to.
type relay interface {
	send(msg *Message)
	remove(c *Conn)
}

// Conn is the session with one remote peer.
type Conn struct {
	peerID   string
	role     Role
	label    string
	reliable bool
	metadata any

	relay    relay
	engine   webrtc.Engine
	observer Observer
	clock    clock.Clock
	logger   *slog.Logger
	events   serializer

	mu      sync.Mutex
	state   State
	session webrtc.Session
	channel webrtc.DataChannel
	pending [][]byte
	retry   *clock.Timer
	retries int
	opened  chan struct{}
	done    chan struct{}
	err     error
}

type connParams struct {
	peerID   string
	role     Role
	label    string
	reliable bool
	metadata any
	relay    relay
	engine   webrtc.Engine
	observer Observer
	clock    clock.Clock
	logger   *slog.Logger
}

func newConn(p connParams) *Conn {
	if p.observer == nil {
		p.observer = nopObserver{}
	}
	return &Conn{
		peerID:   p.peerID,
		role:     p.role,
		label:    p.label,
		reliable: p.reliable,
		metadata: p.metadata,
		relay:    p.relay,
		engine:   p.engine,
		observer: p.observer,
		clock:    p.clock,
		logger:   p.logger.With("peer", p.peerID, "connection", p.label),
		state:    StateNegotiating,
		opened:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// PeerID is the remote peer's relay id.
func (c *Conn) PeerID() string { return c.peerID }

// Label is the connection id shared with the remote peer.
func (c *Conn) Label() string { return c.label }

// Role reports whether this side sent or answered the offer.
func (c *Conn) Role() Role { return c.role }

// Metadata is what the initiator attached to the offer.
func (c *Conn) Metadata() any { return c.metadata }

// State is the current lifecycle stage.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Opened is closed once the data channel is open.
func (c *Conn) Opened() <-chan struct{} { return c.opened }

// Done is closed once the Conn is closed.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err is the negotiation or relay failure that closed the Conn, if any.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Pending is the number of deferred outbound frames.
func (c *Conn) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Conn) startInitiator(cfg webrtc.Config) error {
	session, err := c.acquire(cfg)
	if err != nil {
		return err
	}
	dc, err := session.CreateDataChannel(c.label, c.reliable)
	if err != nil {
		return c.fail("create data channel", err)
	}
	c.attach(dc)
	if err := session.SetLocalDescription(); err != nil {
		return c.fail("create offer", err)
	}
	return nil
}

func (c *Conn) startResponder(cfg webrtc.Config, offer string) error {
	session, err := c.acquire(cfg)
	if err != nil {
		return err
	}
	if err := session.SetRemoteDescription(offer, webrtc.SDPOffer); err != nil {
		return c.fail("apply offer", err)
	}
	return nil
}

func (c *Conn) acquire(cfg webrtc.Config) (webrtc.Session, error) {
	session, err := c.engine.NewSession(cfg)
	if err != nil {
		return nil, c.fail("create session", err)
	}

	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		session.Close()
		return nil, failure.NewPeer("negotiate", c.peerID, failure.ErrClosed)
	}
	c.session = session
	c.mu.Unlock()

	session.OnLocalDescription(c.sendDescription)
	session.OnLocalCandidate(c.sendCandidate)
	session.OnStateChange(c.handleState)
	if c.role == RoleResponder {
		session.OnDataChannel(c.attach)
	}
	return session, nil
}

func (c *Conn) attach(dc webrtc.DataChannel) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		dc.Close()
		return
	}
	c.channel = dc
	c.mu.Unlock()

	dc.OnOpen(c.markOpen)
	dc.OnMessage(c.handleMessage)
	dc.OnClose(func() {
		c.logger.Debug("data channel closed")
		c.Close()
	})
	if dc.IsOpen() {
		c.markOpen()
	}
}

func (c *Conn) sendDescription(sdp string, kind webrtc.SDPKind) {
	if c.State() == StateClosed {
		return
	}
	desc := &SessionDescription{Type: string(kind), SDP: sdp}
	switch kind {
	case webrtc.SDPOffer:
		c.relay.send(&Message{Type: MessageTypeOffer, Dst: c.peerID, Payload: &Payload{
			SDP:           desc,
			Type:          connectionTypeData,
			ConnectionID:  c.label,
			Label:         c.label,
			Reliable:      c.reliable,
			Serialization: serializationRaw,
			Metadata:      c.metadata,
		}})
	case webrtc.SDPAnswer:
		c.relay.send(&Message{Type: MessageTypeAnswer, Dst: c.peerID, Payload: &Payload{
			SDP:          desc,
			Type:         connectionTypeData,
			ConnectionID: c.label,
		}})
	}
}

func (c *Conn) sendCandidate(candidate, mid string) {
	if c.State() == StateClosed {
		return
	}
	c.relay.send(&Message{Type: MessageTypeCandidate, Dst: c.peerID, Payload: &Payload{
		Candidate:    &Candidate{Candidate: candidate, SDPMid: mid},
		Type:         connectionTypeData,
		ConnectionID: c.label,
	}})
}

func (c *Conn) handleState(s webrtc.State) {
	c.logger.Debug("engine state changed", "state", s)
	if s.Terminal() {
		c.Close()
	}
}

// handleSignal applies an ANSWER, CANDIDATE, LEAVE or EXPIRE routed here by
// the client.
func (c *Conn) handleSignal(msg *Message) {
	c.mu.Lock()
	session := c.session
	closed := c.state == StateClosed
	c.mu.Unlock()
	if closed {
		return
	}

	switch msg.Type {
	case MessageTypeAnswer:
		if c.role != RoleInitiator || session == nil {
			c.logger.Warn("unexpected answer")
			return
		}
		if msg.Payload == nil || msg.Payload.SDP == nil {
			c.fail("apply answer", errMissingSDP)
			return
		}
		if err := session.SetRemoteDescription(msg.Payload.SDP.SDP, webrtc.SDPAnswer); err != nil {
			c.fail("apply answer", err)
		}

	case MessageTypeCandidate:
		if session == nil {
			return
		}
		if msg.Payload == nil || msg.Payload.Candidate == nil {
			c.fail("add candidate", errMissingCandidate)
			return
		}
		cand := msg.Payload.Candidate
		if err := session.AddRemoteCandidate(cand.Candidate, cand.SDPMid); err != nil {
			c.fail("add candidate", err)
		}

	case MessageTypeLeave, MessageTypeExpire:
		c.logger.Info("peer left", "reason", msg.Type)
		c.Close()
	}
}

func (c *Conn) markOpen() {
	c.mu.Lock()
	opened := c.openLocked()
	c.mu.Unlock()
	if opened {
		c.logger.Info("data channel open")
		c.events.post(func() { c.observer.OnOpen(c) })
	}
}

func (c *Conn) openLocked() bool {
	if c.state != StateNegotiating {
		return false
	}
	c.state = StateOpen
	close(c.opened)
	return true
}

func (c *Conn) handleMessage(data []byte) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	opened := c.openLocked()
	c.mu.Unlock()

	if opened {
		c.events.post(func() { c.observer.OnOpen(c) })
	}
	frame := append([]byte(nil), data...)
	c.events.post(func() { c.observer.OnData(c, frame) })
}

// Send transmits data, deferring it while the channel's buffer is at or above
// HighWaterMark. It never blocks. Data sent before the Conn is open or after
// it closes is dropped.
func (c *Conn) Send(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateOpen || c.channel == nil {
		c.logger.Warn("dropping send on connection that is not open", "state", c.state, "bytes", len(data))
		return
	}

	if len(c.pending) > 0 || c.channel.BufferedAmount() >= HighWaterMark {
		c.pending = append(c.pending, append([]byte(nil), data...))
		c.scheduleRetryLocked()
		return
	}
	if err := c.channel.SendBinary(data); err != nil {
		c.logger.Warn("send failed", "err", err)
	}
}

func (c *Conn) scheduleRetryLocked() {
	if c.retry != nil {
		return
	}
	c.retry = c.clock.AfterFunc(RetryInterval, c.drain)
}

func (c *Conn) drain() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.retry = nil
	if c.state != StateOpen {
		return
	}
	for len(c.pending) > 0 && c.channel.BufferedAmount() < HighWaterMark {
		if err := c.channel.SendBinary(c.pending[0]); err != nil {
			c.logger.Warn("send failed", "err", err)
		}
		c.pending[0] = nil
		c.pending = c.pending[1:]
	}
	if len(c.pending) == 0 {
		c.retries = 0
		return
	}
	c.retries++
	if c.retries%saturationWarnEvery == 0 {
		c.logger.Warn("data channel saturated",
			"queued", len(c.pending),
			"buffered", c.channel.BufferedAmount(),
			"retries", c.retries)
	}
	c.scheduleRetryLocked()
}

// Close tears the Conn down. Only the first call has any effect.
func (c *Conn) Close() {
	c.closeWith(nil)
}

func (c *Conn) fail(op string, err error) error {
	wrapped := failure.Cause(op, c.peerID, failure.ErrNegotiation, err)
	c.logger.Warn("negotiation failed", "op", op, "err", err)
	c.closeWith(wrapped)
	return wrapped
}

func (c *Conn) closeWith(err error) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	c.err = err
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	dropped := len(c.pending)
	c.pending = nil
	session, channel := c.session, c.channel
	close(c.done)
	c.mu.Unlock()

	if channel != nil {
		channel.Close()
	}
	if session != nil {
		session.Close()
	}
	c.relay.remove(c)

	if dropped > 0 {
		c.logger.Warn("connection closed", "dropped_frames", dropped)
	} else {
		c.logger.Info("connection closed")
	}

	if err != nil {
		if eo, ok := c.observer.(ErrorObserver); ok {
			c.events.post(func() { eo.OnError(c, err) })
		}
	}
	c.events.post(func() { c.observer.OnClose(c) })
}

// serializer runs posted functions one at a time, in order, on its own
// goroutine.
type serializer struct {
	mu      sync.Mutex
	queue   []func()
	running bool
}

func (s *serializer) post(fn func()) {
	s.mu.Lock()
	s.queue = append(s.queue, fn)
	if !s.running {
		s.running = true
		go s.run()
	}
	s.mu.Unlock()
}

func (s *serializer) run() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.running = false
			s.mu.Unlock()
			return
		}
		fn := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()
		fn()
	}
}
