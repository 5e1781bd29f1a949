// Package directorytest runs an in-process room directory for tests.
package directorytest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// Server accepts host sessions and hands each one to the test.
type Server struct {
	server *httptest.Server
	conns  chan *Conn

	mu       sync.Mutex
	accepted int
	live     []*Conn
}

// Conn is the directory's side of one host session.
type Conn struct {
	ws       *websocket.Conn
	received chan json.RawMessage
	closed   chan struct{}
	writeMu  sync.Mutex
}

func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{conns: make(chan *Conn, 16)}
	s.server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// URL is the ws:// address of the server.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http")
}

// Conns delivers sessions in the order they were accepted.
func (s *Server) Conns() <-chan *Conn { return s.conns }

func (s *Server) Accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

func (s *Server) Close() {
	s.mu.Lock()
	for _, c := range s.live {
		c.ws.Close()
	}
	s.mu.Unlock()
	s.server.Close()
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &Conn{
		ws:       ws,
		received: make(chan json.RawMessage, 64),
		closed:   make(chan struct{}),
	}
	s.mu.Lock()
	s.accepted++
	s.live = append(s.live, c)
	s.mu.Unlock()

	go c.readPump()
	s.conns <- c
}

func (c *Conn) readPump() {
	defer close(c.closed)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		select {
		case c.received <- json.RawMessage(data):
		default:
		}
	}
}

// Send writes {"type":typ,"data":data}. Data is omitted when nil.
func (c *Conn) Send(typ string, data any) error {
	msg := map[string]any{"type": typ}
	if data != nil {
		msg["data"] = data
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.ws.WriteJSON(msg)
}

// SendRaw writes frame as a text frame exactly as given.
func (c *Conn) SendRaw(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

// Received streams the frames the host sent.
func (c *Conn) Received() <-chan json.RawMessage { return c.received }

// Closed is closed once the host side hangs up or the socket breaks.
func (c *Conn) Closed() <-chan struct{} { return c.closed }

// Drop closes the socket without a close handshake.
func (c *Conn) Drop() {
	c.ws.Close()
}
