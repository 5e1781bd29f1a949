// Package relaytest runs an in-process relay that speaks enough of the PeerJS
// server protocol for signaling tests: it confirms ids, forwards addressed
// messages and records everything it receives.
package relaytest

import (
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/BioHazard786/warphost/internal/signaling"
	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Relay is a running test relay.
type Relay struct {
	server   *httptest.Server
	received chan signaling.Message

	mu      sync.Mutex
	clients map[string]*client
	// holdOpen suppresses the OPEN reply for these ids.
	holdOpen map[string]bool
	queries  []url.Values
}

// rawFrame is written as a text frame without JSON encoding.
type rawFrame []byte

type client struct {
	id   string
	conn *websocket.Conn
	send chan any

	mu     sync.Mutex
	closed bool
}

func (c *client) deliver(msg any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// New starts a relay that is shut down when the test ends.
func New(t testing.TB) *Relay {
	t.Helper()
	r := &Relay{
		received: make(chan signaling.Message, 256),
		clients:  make(map[string]*client),
		holdOpen: make(map[string]bool),
	}
	r.server = httptest.NewServer(http.HandlerFunc(r.serveWs))
	t.Cleanup(r.Close)
	return r
}

// Options returns client options pointing at the relay.
func (r *Relay) Options() signaling.Options {
	u, _ := url.Parse(r.server.URL)
	host, portStr, _ := net.SplitHostPort(u.Host)
	port, _ := strconv.Atoi(portStr)
	return signaling.Options{
		Host:   host,
		Port:   port,
		Path:   "/peerjs",
		Key:    "peerjs",
		Dialer: websocket.DefaultDialer,
	}
}

// HoldOpen makes the relay accept id without ever confirming it.
func (r *Relay) HoldOpen(id string) {
	r.mu.Lock()
	r.holdOpen[id] = true
	r.mu.Unlock()
}

// Received streams every message clients send, heartbeats included.
func (r *Relay) Received() <-chan signaling.Message { return r.received }

// Queries returns the query string of every accepted socket.
func (r *Relay) Queries() []url.Values {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]url.Values(nil), r.queries...)
}

// Deliver sends msg to the client registered as id.
func (r *Relay) Deliver(id string, msg signaling.Message) bool {
	r.mu.Lock()
	c, ok := r.clients[id]
	r.mu.Unlock()
	if !ok {
		return false
	}
	return c.deliver(msg)
}

// DeliverRaw writes frame to the client registered as id exactly as given.
func (r *Relay) DeliverRaw(id string, frame []byte) bool {
	r.mu.Lock()
	c, ok := r.clients[id]
	r.mu.Unlock()
	if !ok {
		return false
	}
	return c.deliver(rawFrame(frame))
}

// Drop closes the socket of the client registered as id.
func (r *Relay) Drop(id string) {
	r.mu.Lock()
	c, ok := r.clients[id]
	r.mu.Unlock()
	if ok {
		c.conn.Close()
	}
}

func (r *Relay) Close() {
	r.mu.Lock()
	for _, c := range r.clients {
		c.conn.Close()
	}
	r.mu.Unlock()
	r.server.Close()
}

func (r *Relay) serveWs(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	id := q.Get("id")

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}

	c := &client{id: id, conn: conn, send: make(chan any, 256)}
	go c.writePump()

	r.mu.Lock()
	r.queries = append(r.queries, q)
	_, taken := r.clients[id]
	hold := r.holdOpen[id]
	if !taken {
		r.clients[id] = c
	}
	r.mu.Unlock()

	if taken {
		c.deliver(signaling.Message{Type: signaling.MessageTypeIDTaken, Payload: &signaling.Payload{Msg: "ID is taken"}})
		c.close()
		return
	}
	if !hold {
		c.deliver(signaling.Message{Type: signaling.MessageTypeOpen})
	}

	r.readPump(c)
}

func (r *Relay) readPump(c *client) {
	defer func() {
		r.mu.Lock()
		if r.clients[c.id] == c {
			delete(r.clients, c.id)
		}
		r.mu.Unlock()
		c.close()
		c.conn.Close()
	}()

	for {
		var msg signaling.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		select {
		case r.received <- msg:
		default:
		}
		if msg.Dst == "" {
			continue
		}
		msg.Src = c.id
		r.Deliver(msg.Dst, msg)
	}
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		var err error
		if raw, ok := msg.(rawFrame); ok {
			err = c.conn.WriteMessage(websocket.TextMessage, raw)
		} else {
			err = c.conn.WriteJSON(msg)
		}
		if err != nil {
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
