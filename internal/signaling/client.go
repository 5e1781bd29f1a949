// Package signaling speaks the PeerJS relay protocol: it registers an id
// with the relay, negotiates a data channel with each remote peer and tracks
// every peer session in a Conn.
package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/BioHazard786/warphost/internal/clock"
	"github.com/BioHazard786/warphost/internal/dns"
	"github.com/BioHazard786/warphost/internal/failure"
	"github.com/BioHazard786/warphost/internal/webrtc"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	DefaultHost = "0.peerjs.com"
	DefaultPort = 443
	DefaultPath = "/peerjs"
	DefaultKey  = "peerjs"

	// HeartbeatInterval keeps the relay from expiring an idle id.
	HeartbeatInterval = 20 * time.Second

	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
	outgoingBuffer = 64
)

var (
	errMissingSDP       = errors.New("payload has no sdp")
	errMissingCandidate = errors.New("payload has no candidate")
)

type Options struct {
	Host   string
	Port   int
	Path   string
	Key    string
	Secure bool
	// ID is the id to register. A random one is generated when empty.
	ID string

	// ICEServers and ForceRelay configure sessions started by remote peers.
	ICEServers []webrtc.ICEServer
	ForceRelay bool

	Engine            webrtc.Engine
	Clock             clock.Clock
	Logger            *slog.Logger
	Dialer            *websocket.Dialer
	HeartbeatInterval time.Duration
	Observer          Observer
}

// ConnectOptions configure one outbound connection.
type ConnectOptions struct {
	ICEServers []webrtc.ICEServer
	ForceRelay bool
	Reliable   bool
	Metadata   any
}

type clientState int

const (
	clientIdle clientState = iota
	clientOpening
	clientOpen
	// clientLost means the relay socket went away.
	clientLost
	clientClosed
)

// Client is one session with the relay.
type Client struct {
	opts   Options
	token  string
	engine webrtc.Engine
	clock  clock.Clock
	logger *slog.Logger
	dialer *websocket.Dialer

	mu       sync.Mutex
	state    clientState
	id       string
	ws       *websocket.Conn
	observer Observer
	conns    map[string]*Conn

	opened    chan error
	outgoing  chan *Message
	errs      chan error
	lost      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(opts Options) *Client {
	if opts.Host == "" {
		opts.Host = DefaultHost
		opts.Secure = true
	}
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}
	if opts.Path == "" {
		opts.Path = DefaultPath
	}
	if opts.Key == "" {
		opts.Key = DefaultKey
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = HeartbeatInterval
	}
	if opts.Engine == nil {
		opts.Engine = webrtc.NewPionEngine()
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 45 * time.Second,
			NetDialContext:   dns.DialContext,
		}
	}

	return &Client{
		opts:     opts,
		token:    uuid.NewString(),
		engine:   opts.Engine,
		clock:    opts.Clock,
		logger:   opts.Logger.With("component", "signaling"),
		dialer:   dialer,
		observer: opts.Observer,
		conns:    make(map[string]*Conn),
		opened:   make(chan error, 1),
		outgoing: make(chan *Message, outgoingBuffer),
		errs:     make(chan error, 16),
		lost:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// URL is the relay socket address, including the key, id and token.
func (c *Client) URL() string {
	scheme := "ws"
	if c.opts.Secure {
		scheme = "wss"
	}
	q := url.Values{}
	q.Set("key", c.opts.Key)
	q.Set("id", c.opts.ID)
	q.Set("token", c.token)
	u := url.URL{
		Scheme:   scheme,
		Host:     net.JoinHostPort(c.opts.Host, strconv.Itoa(c.opts.Port)),
		Path:     c.opts.Path,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// SetObserver sets the observer for connections created after the call.
func (c *Client) SetObserver(o Observer) {
	c.mu.Lock()
	c.observer = o
	c.mu.Unlock()
}

// ID is the id confirmed by the relay, empty until Open returns.
func (c *Client) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// Errors reports non-fatal relay errors, undecodable frames and the loss of
// the relay socket. Errors are dropped when nobody is reading.
func (c *Client) Errors() <-chan error { return c.errs }

// Open dials the relay and waits for it to confirm the id.
func (c *Client) Open(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.state != clientIdle {
		c.mu.Unlock()
		return "", failure.Wrap("open", failure.ErrSignaling, "client already opened")
	}
	c.state = clientOpening
	c.mu.Unlock()

	ws, _, err := c.dialer.DialContext(ctx, c.URL(), nil)
	if err != nil {
		c.setState(clientIdle)
		return "", fmt.Errorf("%w: %w", failure.New("dial relay", failure.ErrSignaling), err)
	}
	ws.SetReadLimit(maxMessageSize)

	c.mu.Lock()
	if c.state == clientClosed {
		c.mu.Unlock()
		ws.Close()
		return "", failure.New("open", failure.ErrClosed)
	}
	c.ws = ws
	c.mu.Unlock()

	go c.readPump(ws)

	select {
	case err := <-c.opened:
		if err != nil {
			c.Close()
			return "", err
		}
	case <-ctx.Done():
		c.Close()
		return "", ctx.Err()
	case <-c.done:
		return "", failure.New("open", failure.ErrClosed)
	}

	c.mu.Lock()
	switch c.state {
	case clientClosed:
		c.mu.Unlock()
		return "", failure.New("open", failure.ErrClosed)
	case clientLost:
		// The socket dropped right after OPEN.
		c.mu.Unlock()
		c.Close()
		return "", failure.Wrap("open", failure.ErrSignaling, "relay connection lost")
	}
	c.state = clientOpen
	c.id = c.opts.ID
	c.mu.Unlock()

	go c.writePump(ws)

	c.logger.Info("registered with relay", "id", c.opts.ID)
	return c.opts.ID, nil
}

func (c *Client) setState(s clientState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// ConnectTo starts a session with peerID and blocks until its data channel
// is open. When ctx ends first the connection is closed and ctx's error is
// returned. Losing the relay socket fails it with ErrSignaling.
func (c *Client) ConnectTo(ctx context.Context, peerID string, opts ConnectOptions) (*Conn, error) {
	c.mu.Lock()
	if c.state == clientLost {
		c.mu.Unlock()
		return nil, failure.Wrap("connect", failure.ErrSignaling, "relay connection lost")
	}
	if c.state != clientOpen {
		c.mu.Unlock()
		return nil, failure.NewPeer("connect", peerID, failure.ErrNotOpen)
	}
	if existing, ok := c.conns[peerID]; ok && existing.State() != StateClosed {
		c.mu.Unlock()
		return nil, failure.NewPeer("connect", peerID, failure.ErrPeerExists)
	}
	conn := newConn(connParams{
		peerID:   peerID,
		role:     RoleInitiator,
		label:    "dc_" + uuid.NewString(),
		reliable: opts.Reliable,
		metadata: opts.Metadata,
		relay:    c,
		engine:   c.engine,
		observer: c.observer,
		clock:    c.clock,
		logger:   c.logger,
	})
	c.conns[peerID] = conn
	c.mu.Unlock()

	conn.logger.Info("connecting to peer")
	err := conn.startInitiator(webrtc.Config{ICEServers: opts.ICEServers, ForceRelay: opts.ForceRelay})
	if err != nil {
		return nil, err
	}

	select {
	case <-conn.Opened():
		return conn, nil
	case <-conn.Done():
		if err := conn.Err(); err != nil {
			return nil, err
		}
		return nil, failure.NewPeer("connect", peerID, failure.ErrClosed)
	case <-ctx.Done():
		conn.Close()
		return nil, ctx.Err()
	}
}

// Conn returns the live connection for peerID, if any.
func (c *Client) Conn(peerID string) (*Conn, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	conn, ok := c.conns[peerID]
	return conn, ok
}

func (c *Client) readPump(ws *websocket.Conn) {
	defer func() {
		ws.Close()
		close(c.lost)
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.socketLost(err)
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			// The relay forwards peer payloads verbatim.
			c.logger.Warn("dropping undecodable relay frame", "bytes", len(data), "err", err)
			c.report(failure.Cause("decode relay frame", "", failure.ErrSignaling, err))
			continue
		}
		c.dispatch(&msg)
	}
}

// socketLost moves an open client to clientLost and fails every Conn still
// negotiating, since its answer and candidates can no longer arrive. Open
// data channels do not depend on the relay and are kept.
func (c *Client) socketLost(err error) {
	c.mu.Lock()
	state := c.state
	var negotiating []*Conn
	switch state {
	case clientOpening:
		c.state = clientLost
	case clientOpen:
		c.state = clientLost
		for _, conn := range c.conns {
			if conn.State() == StateNegotiating {
				negotiating = append(negotiating, conn)
			}
		}
	}
	c.mu.Unlock()

	switch state {
	case clientClosed:
		return
	case clientOpening:
		c.resolveOpen(fmt.Errorf("%w: %w", failure.New("open", failure.ErrSignaling), err))
		return
	}
	c.logger.Error("relay connection lost", "err", err, "negotiating", len(negotiating))
	for _, conn := range negotiating {
		conn.closeWith(failure.Cause("relay", conn.peerID, failure.ErrSignaling, err))
	}
	c.report(failure.Cause("relay", "", failure.ErrSignaling, err))
}

func (c *Client) resolveOpen(err error) {
	select {
	case c.opened <- err:
	default:
	}
}

func (c *Client) report(err error) {
	select {
	case c.errs <- err:
	default:
		c.logger.Debug("error dropped, nobody listening", "err", err)
	}
}

func (c *Client) dispatch(msg *Message) {
	switch msg.Type {
	case MessageTypeOpen:
		c.resolveOpen(nil)

	case MessageTypeError, MessageTypeIDTaken, MessageTypeInvalidKey:
		err := failure.Wrap("relay", failure.ErrSignaling, msg.errorText())
		c.mu.Lock()
		opening := c.state == clientOpening
		c.mu.Unlock()
		if opening {
			c.resolveOpen(err)
			return
		}
		c.logger.Warn("relay error", "type", msg.Type, "msg", msg.errorText())
		c.report(err)

	case MessageTypeOffer:
		c.handleOffer(msg)

	case MessageTypeAnswer, MessageTypeCandidate, MessageTypeLeave, MessageTypeExpire:
		conn, ok := c.route(msg)
		if !ok {
			return
		}
		conn.handleSignal(msg)

	default:
		c.logger.Debug("ignoring relay message", "type", msg.Type)
	}
}

// route finds the Conn a message is for. LEAVE and EXPIRE carry no
// connection id; the rest must match the Conn's label.
func (c *Client) route(msg *Message) (*Conn, bool) {
	c.mu.Lock()
	conn, ok := c.conns[msg.Src]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	if id := msg.connectionID(); id != "" && id != conn.label {
		c.logger.Debug("dropping message for stale connection", "peer", msg.Src, "connection", id)
		return nil, false
	}
	return conn, true
}

func (c *Client) handleOffer(msg *Message) {
	if msg.Src == "" || msg.Payload == nil || msg.Payload.SDP == nil {
		c.logger.Warn("malformed offer", "peer", msg.Src)
		return
	}

	c.mu.Lock()
	if c.state != clientOpen {
		c.mu.Unlock()
		return
	}
	if existing, ok := c.conns[msg.Src]; ok && existing.State() != StateClosed {
		c.mu.Unlock()
		c.logger.Warn("ignoring offer, connection already exists", "peer", msg.Src, "state", existing.State())
		return
	}
	label := msg.Payload.ConnectionID
	if label == "" {
		label = "dc_" + uuid.NewString()
	}
	conn := newConn(connParams{
		peerID:   msg.Src,
		role:     RoleResponder,
		label:    label,
		reliable: msg.Payload.Reliable,
		metadata: msg.Payload.Metadata,
		relay:    c,
		engine:   c.engine,
		observer: c.observer,
		clock:    c.clock,
		logger:   c.logger,
	})
	c.conns[msg.Src] = conn
	observer := c.observer
	c.mu.Unlock()

	conn.logger.Info("incoming connection")
	if co, ok := observer.(ConnectionObserver); ok {
		conn.events.post(func() { co.OnConnection(conn) })
	}
	conn.startResponder(webrtc.Config{ICEServers: c.opts.ICEServers, ForceRelay: c.opts.ForceRelay}, msg.Payload.SDP.SDP)
}

// send queues msg for writePump. Once the socket is gone the message is
// dropped.
func (c *Client) send(msg *Message) {
	msg.Src = c.opts.ID
	select {
	case <-c.lost:
		c.logger.Debug("relay connection lost, dropping message", "type", msg.Type, "dst", msg.Dst)
		return
	default:
	}
	select {
	case c.outgoing <- msg:
	case <-c.lost:
		c.logger.Debug("relay connection lost, dropping message", "type", msg.Type, "dst", msg.Dst)
	case <-c.done:
	}
}

func (c *Client) remove(conn *Conn) {
	c.mu.Lock()
	if c.conns[conn.peerID] == conn {
		delete(c.conns, conn.peerID)
	}
	c.mu.Unlock()
}

// writePump is the only writer on the socket. It also sends the heartbeat.
func (c *Client) writePump(ws *websocket.Conn) {
	ticker := c.clock.NewTicker(c.opts.HeartbeatInterval)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case msg := <-c.outgoing:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(msg); err != nil {
				c.logger.Warn("relay write failed", "type", msg.Type, "err", err)
				return
			}

		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(&Message{Type: MessageTypeHeartbeat, Src: c.opts.ID}); err != nil {
				c.logger.Warn("heartbeat failed", "err", err)
				return
			}

		case <-c.lost:
			return

		case <-c.done:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Close closes every connection and the relay socket. It is safe to call
// more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		wasOpen := c.state == clientOpen
		c.state = clientClosed
		ws := c.ws
		conns := make([]*Conn, 0, len(c.conns))
		for _, conn := range c.conns {
			conns = append(conns, conn)
		}
		c.mu.Unlock()

		for _, conn := range conns {
			conn.Close()
		}
		close(c.done)
		if ws != nil && !wasOpen {
			ws.Close()
		}
		c.logger.Info("signaling client closed")
	})
}
