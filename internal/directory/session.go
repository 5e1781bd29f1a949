// Package directory keeps the host's session with the room directory, which
// assigns the room id and forwards join requests from players.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/BioHazard786/warphost/internal/dns"
	"github.com/BioHazard786/warphost/internal/failure"
	"github.com/gorilla/websocket"
)

const (
	DefaultURL = "wss://woomy.online/host"

	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
)

type DialOptions struct {
	Dialer *websocket.Dialer
	Logger *slog.Logger
}

// Session is one directory socket. It is never reused after it closes.
type Session struct {
	ws       *websocket.Conn
	logger   *slog.Logger
	messages chan Message
	outgoing chan any
	done     chan struct{}
	once     sync.Once
}

// Dial opens a directory session.
func Dial(ctx context.Context, url string, opts DialOptions) (*Session, error) {
	dialer := opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 45 * time.Second,
			NetDialContext:   dns.DialContext,
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial directory %s: %w", url, err)
	}
	ws.SetReadLimit(maxMessageSize)

	s := &Session{
		ws:       ws,
		logger:   logger.With("component", "directory"),
		messages: make(chan Message, 32),
		outgoing: make(chan any, 32),
		done:     make(chan struct{}),
	}
	go s.readPump()
	go s.writePump()
	return s, nil
}

// Messages is closed when the socket closes.
func (s *Session) Messages() <-chan Message { return s.messages }

// Done is closed when the session ends for any reason.
func (s *Session) Done() <-chan struct{} { return s.done }

// Send queues v to be written as JSON.
func (s *Session) Send(v any) error {
	select {
	case <-s.done:
		return failure.New("directory send", failure.ErrDirectoryLost)
	default:
	}
	select {
	case s.outgoing <- v:
		return nil
	case <-s.done:
		return failure.New("directory send", failure.ErrDirectoryLost)
	}
}

func (s *Session) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *Session) readPump() {
	defer func() {
		close(s.messages)
		s.Close()
		s.ws.Close()
	}()

	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				s.logger.Warn("directory connection lost", "err", err)
			}
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn("dropping undecodable directory frame", "bytes", len(data), "err", err)
			continue
		}
		select {
		case s.messages <- msg:
		case <-s.done:
			return
		}
	}
}

func (s *Session) writePump() {
	defer s.ws.Close()

	for {
		select {
		case v := <-s.outgoing:
			s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteJSON(v); err != nil {
				s.logger.Warn("directory write failed", "err", err)
				s.Close()
				return
			}
		case <-s.done:
			s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			s.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
