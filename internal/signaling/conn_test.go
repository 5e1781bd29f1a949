package signaling

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/BioHazard786/warphost/internal/clock"
	"github.com/BioHazard786/warphost/internal/failure"
	"github.com/BioHazard786/warphost/internal/testutil"
	"github.com/BioHazard786/warphost/internal/webrtc"
	"github.com/BioHazard786/warphost/internal/webrtc/webrtctest"
)

const wait = 2 * time.Second

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRelay struct {
	mu      sync.Mutex
	removed []*Conn
	msgs    chan *Message
}

func newFakeRelay() *fakeRelay {
	return &fakeRelay{msgs: make(chan *Message, 64)}
}

func (r *fakeRelay) send(msg *Message) { r.msgs <- msg }

func (r *fakeRelay) remove(c *Conn) {
	r.mu.Lock()
	r.removed = append(r.removed, c)
	r.mu.Unlock()
}

func (r *fakeRelay) removedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.removed)
}

// recorder turns observer calls into strings on a channel.
type recorder struct {
	events chan string
	errs   chan error
}

func newRecorder() *recorder {
	return &recorder{events: make(chan string, 64), errs: make(chan error, 8)}
}

func (r *recorder) OnOpen(c *Conn) { r.events <- "open " + c.PeerID() }

func (r *recorder) OnData(c *Conn, data []byte) {
	r.events <- fmt.Sprintf("data %s %s", c.PeerID(), data)
}

func (r *recorder) OnClose(c *Conn) { r.events <- "close " + c.PeerID() }

func (r *recorder) OnError(c *Conn, err error) {
	r.errs <- err
	r.events <- "error " + c.PeerID()
}

func (r *recorder) OnConnection(c *Conn) { r.events <- "connection " + c.PeerID() }

func (r *recorder) expect(t *testing.T, want string) {
	t.Helper()
	got := testutil.RequireReceive(t, r.events, wait, "waiting for %q", want)
	if got != want {
		t.Fatalf("observer event = %q, want %q", got, want)
	}
}

type connFixture struct {
	conn    *Conn
	relay   *fakeRelay
	engine  *webrtctest.Engine
	session *webrtctest.Session
	clock   *clock.FakeClock
	obs     *recorder
}

func newInitiator(t *testing.T) *connFixture {
	t.Helper()
	f := &connFixture{
		relay:  newFakeRelay(),
		engine: webrtctest.NewEngine(),
		clock:  clock.Fake(time.Unix(0, 0)),
		obs:    newRecorder(),
	}
	f.conn = newConn(connParams{
		peerID:   "peer-1",
		role:     RoleInitiator,
		label:    "dc_test",
		reliable: true,
		relay:    f.relay,
		engine:   f.engine,
		observer: f.obs,
		clock:    f.clock,
		logger:   discardLogger(),
	})
	if err := f.conn.startInitiator(webrtc.Config{}); err != nil {
		t.Fatalf("startInitiator: %v", err)
	}
	f.session = testutil.RequireReceive(t, f.engine.Sessions(), wait)
	return f
}

func (f *connFixture) open(t *testing.T) *webrtctest.Channel {
	t.Helper()
	ch := f.session.Channel()
	ch.Open()
	f.obs.expect(t, "open peer-1")
	return ch
}

func TestInitiatorSendsOffer(t *testing.T) {
	f := newInitiator(t)

	msg := testutil.RequireReceive(t, f.relay.msgs, wait)
	if msg.Type != MessageTypeOffer || msg.Dst != "peer-1" {
		t.Fatalf("got %s to %s, want OFFER to peer-1", msg.Type, msg.Dst)
	}
	p := msg.Payload
	if p.SDP == nil || p.SDP.SDP != webrtctest.OfferSDP || p.SDP.Type != "offer" {
		t.Errorf("sdp = %+v", p.SDP)
	}
	if p.ConnectionID != "dc_test" || p.Label != "dc_test" {
		t.Errorf("connectionId = %q, label = %q", p.ConnectionID, p.Label)
	}
	if p.Type != "data" || p.Serialization != "raw" || !p.Reliable {
		t.Errorf("payload = %+v", p)
	}
	if !f.session.Channel().Ordered() {
		t.Error("reliable connection should use an ordered channel")
	}
}

func TestInitiatorAppliesAnswerAndCandidates(t *testing.T) {
	f := newInitiator(t)

	f.conn.handleSignal(&Message{Type: MessageTypeAnswer, Src: "peer-1", Payload: &Payload{
		SDP: &SessionDescription{Type: "answer", SDP: "remote-answer"},
	}})
	f.conn.handleSignal(&Message{Type: MessageTypeCandidate, Src: "peer-1", Payload: &Payload{
		Candidate: &Candidate{Candidate: "candidate:1", SDPMid: "0"},
	}})

	descs := f.session.RemoteDescriptions()
	if len(descs) != 1 || descs[0].SDP != "remote-answer" || descs[0].Kind != webrtc.SDPAnswer {
		t.Errorf("remote descriptions = %+v", descs)
	}
	cands := f.session.RemoteCandidates()
	if len(cands) != 1 || cands[0].Candidate != "candidate:1" || cands[0].Mid != "0" {
		t.Errorf("remote candidates = %+v", cands)
	}
}

func TestLocalCandidateIsRelayed(t *testing.T) {
	f := newInitiator(t)
	testutil.RequireReceive(t, f.relay.msgs, wait) // offer

	f.session.EmitCandidate("candidate:host", "0")
	msg := testutil.RequireReceive(t, f.relay.msgs, wait)
	if msg.Type != MessageTypeCandidate {
		t.Fatalf("type = %s, want CANDIDATE", msg.Type)
	}
	if msg.Payload.Candidate.Candidate != "candidate:host" || msg.Payload.Candidate.SDPMid != "0" {
		t.Errorf("candidate = %+v", msg.Payload.Candidate)
	}
	if msg.Payload.ConnectionID != "dc_test" || msg.Payload.Type != "data" {
		t.Errorf("payload = %+v", msg.Payload)
	}
}

func TestSendBelowMarkIsImmediate(t *testing.T) {
	f := newInitiator(t)
	ch := f.open(t)

	ch.SetBuffered(HighWaterMark - 1)
	f.conn.Send([]byte("hello"))

	sent := ch.Sent()
	if len(sent) != 1 || string(sent[0]) != "hello" {
		t.Fatalf("sent = %q", sent)
	}
	if f.clock.PendingCount() != 0 {
		t.Error("no retry should be scheduled")
	}
}

func TestSendAtMarkIsRetriedInOrder(t *testing.T) {
	f := newInitiator(t)
	ch := f.open(t)

	ch.SetBuffered(HighWaterMark)
	f.conn.Send([]byte("a"))
	f.conn.Send([]byte("b"))
	if n := len(ch.Sent()); n != 0 {
		t.Fatalf("sent %d frames while saturated", n)
	}

	f.clock.Advance(RetryInterval)
	if n := len(ch.Sent()); n != 0 {
		t.Fatalf("sent %d frames while still saturated", n)
	}
	if f.conn.Pending() != 2 {
		t.Fatalf("pending = %d, want 2", f.conn.Pending())
	}

	// Later frames queue behind deferred ones even once the buffer drains.
	ch.SetBuffered(0)
	f.conn.Send([]byte("c"))
	if n := len(ch.Sent()); n != 0 {
		t.Fatalf("frame jumped the queue: sent %d", n)
	}

	f.clock.Advance(RetryInterval)
	var got [][]byte
	for _, frame := range ch.Sent() {
		got = append(got, frame)
	}
	if !bytes.Equal(bytes.Join(got, []byte(",")), []byte("a,b,c")) {
		t.Fatalf("sent = %q, want a,b,c", got)
	}
	if f.conn.Pending() != 0 || f.clock.PendingCount() != 0 {
		t.Errorf("pending = %d, timers = %d", f.conn.Pending(), f.clock.PendingCount())
	}
}

func TestSendKeepsRetryingWhileSaturated(t *testing.T) {
	f := newInitiator(t)
	ch := f.open(t)

	ch.SetBuffered(HighWaterMark + 1)
	f.conn.Send([]byte("x"))
	for i := 0; i < 120; i++ {
		f.clock.Advance(RetryInterval)
	}
	if f.conn.Pending() != 1 {
		t.Fatalf("pending = %d, want frame kept", f.conn.Pending())
	}

	ch.SetBuffered(0)
	f.clock.Advance(RetryInterval)
	if sent := ch.Sent(); len(sent) != 1 || string(sent[0]) != "x" {
		t.Fatalf("sent = %q", sent)
	}
}

func TestSendWhileNegotiatingIsDropped(t *testing.T) {
	f := newInitiator(t)

	f.conn.Send([]byte("early"))
	if n := len(f.session.Channel().Sent()); n != 0 {
		t.Fatalf("sent %d frames before open", n)
	}
	if f.conn.Pending() != 0 {
		t.Fatal("frame was queued before open")
	}
}

func TestSendAfterCloseIsDropped(t *testing.T) {
	f := newInitiator(t)
	ch := f.open(t)

	f.conn.Close()
	f.conn.Send([]byte("late"))
	if n := len(ch.Sent()); n != 0 {
		t.Fatalf("sent %d frames after close", n)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	f := newInitiator(t)
	ch := f.open(t)

	ch.SetBuffered(HighWaterMark)
	f.conn.Send([]byte("queued"))

	f.conn.Close()
	f.conn.Close()

	f.obs.expect(t, "close peer-1")
	testutil.RequireNoReceive(t, f.obs.events, 50*time.Millisecond)

	if f.conn.State() != StateClosed {
		t.Errorf("state = %s", f.conn.State())
	}
	if !f.session.Closed() {
		t.Error("session not closed")
	}
	if f.relay.removedCount() != 1 {
		t.Errorf("removed %d times", f.relay.removedCount())
	}
	if f.conn.Pending() != 0 || f.clock.PendingCount() != 0 {
		t.Errorf("pending = %d, timers = %d", f.conn.Pending(), f.clock.PendingCount())
	}
	testutil.RequireClosed(t, f.conn.Done(), wait)
}

func TestTerminalEngineStateCloses(t *testing.T) {
	for _, state := range []webrtc.State{webrtc.StateFailed, webrtc.StateDisconnected, webrtc.StateClosed} {
		t.Run(string(state), func(t *testing.T) {
			f := newInitiator(t)
			f.open(t)

			f.session.EmitState(webrtc.StateConnected)
			if f.conn.State() != StateOpen {
				t.Fatalf("state = %s after connected", f.conn.State())
			}
			f.session.EmitState(state)
			f.obs.expect(t, "close peer-1")
		})
	}
}

func TestDataChannelCloseCloses(t *testing.T) {
	f := newInitiator(t)
	ch := f.open(t)

	ch.CloseRemote()
	f.obs.expect(t, "close peer-1")
}

func TestRejectedAnswerReportsNegotiationError(t *testing.T) {
	f := newInitiator(t)
	f.session.RejectRemoteDescriptions(errors.New("bad sdp"))

	f.conn.handleSignal(&Message{Type: MessageTypeAnswer, Payload: &Payload{
		SDP: &SessionDescription{Type: "answer", SDP: "garbage"},
	}})

	f.obs.expect(t, "error peer-1")
	f.obs.expect(t, "close peer-1")
	err := <-f.obs.errs
	if !errors.Is(err, failure.ErrNegotiation) {
		t.Errorf("err = %v, want ErrNegotiation", err)
	}
	if !errors.Is(f.conn.Err(), failure.ErrNegotiation) {
		t.Errorf("Err() = %v", f.conn.Err())
	}
}

func TestRejectedCandidateReportsNegotiationError(t *testing.T) {
	f := newInitiator(t)
	f.session.RejectCandidates(errors.New("bad candidate"))

	f.conn.handleSignal(&Message{Type: MessageTypeCandidate, Payload: &Payload{
		Candidate: &Candidate{Candidate: "nope"},
	}})

	f.obs.expect(t, "error peer-1")
	f.obs.expect(t, "close peer-1")
}

func TestSessionCreateFailure(t *testing.T) {
	engine := webrtctest.NewEngine()
	engine.FailNextSession(errors.New("no sockets"))
	obs := newRecorder()
	conn := newConn(connParams{
		peerID:   "peer-1",
		role:     RoleInitiator,
		label:    "dc_test",
		relay:    newFakeRelay(),
		engine:   engine,
		observer: obs,
		clock:    clock.Fake(time.Unix(0, 0)),
		logger:   discardLogger(),
	})

	err := conn.startInitiator(webrtc.Config{})
	if !errors.Is(err, failure.ErrNegotiation) {
		t.Fatalf("err = %v, want ErrNegotiation", err)
	}
	obs.expect(t, "error peer-1")
	obs.expect(t, "close peer-1")
}

func TestDataBeforeOpenSignalOpensFirst(t *testing.T) {
	f := newInitiator(t)

	f.session.Channel().Receive([]byte("ping"))
	f.obs.expect(t, "open peer-1")
	f.obs.expect(t, "data peer-1 ping")

	// The late open signal must not produce a second OnOpen.
	f.session.Channel().Open()
	testutil.RequireNoReceive(t, f.obs.events, 50*time.Millisecond)
}

func TestLeaveCloses(t *testing.T) {
	for _, typ := range []string{MessageTypeLeave, MessageTypeExpire} {
		t.Run(typ, func(t *testing.T) {
			f := newInitiator(t)
			f.conn.handleSignal(&Message{Type: typ, Src: "peer-1"})
			f.obs.expect(t, "close peer-1")
		})
	}
}
