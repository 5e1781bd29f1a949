package webrtctest

import (
	"sync"

	"github.com/BioHazard786/warphost/internal/webrtc"
)

// Channel is a fake data channel.
type Channel struct {
	label   string
	ordered bool

	mu        sync.Mutex
	onOpen    func()
	onMessage func([]byte)
	onClose   func()
	open      bool
	buffered  uint64
	sent      [][]byte
	sentCh    chan []byte
}

var _ webrtc.DataChannel = (*Channel)(nil)

func newChannel(label string, ordered bool) *Channel {
	return &Channel{label: label, ordered: ordered, sentCh: make(chan []byte, 256)}
}

func (c *Channel) Label() string { return c.label }

func (c *Channel) Ordered() bool { return c.ordered }

func (c *Channel) OnOpen(fn func()) {
	c.mu.Lock()
	c.onOpen = fn
	c.mu.Unlock()
}

func (c *Channel) OnMessage(fn func([]byte)) {
	c.mu.Lock()
	c.onMessage = fn
	c.mu.Unlock()
}

func (c *Channel) OnClose(fn func()) {
	c.mu.Lock()
	c.onClose = fn
	c.mu.Unlock()
}

func (c *Channel) SendBinary(data []byte) error {
	frame := append([]byte(nil), data...)
	c.mu.Lock()
	c.sent = append(c.sent, frame)
	c.mu.Unlock()
	select {
	case c.sentCh <- frame:
	default:
	}
	return nil
}

func (c *Channel) BufferedAmount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffered
}

func (c *Channel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *Channel) Close() error {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
	return nil
}

// Open signals the channel open.
func (c *Channel) Open() {
	c.mu.Lock()
	c.open = true
	fn := c.onOpen
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Receive delivers an inbound message.
func (c *Channel) Receive(data []byte) {
	c.mu.Lock()
	fn := c.onMessage
	c.mu.Unlock()
	if fn != nil {
		fn(data)
	}
}

// CloseRemote signals the channel closed by the remote side.
func (c *Channel) CloseRemote() {
	c.mu.Lock()
	c.open = false
	fn := c.onClose
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// SetBuffered sets the amount reported by BufferedAmount.
func (c *Channel) SetBuffered(n uint64) {
	c.mu.Lock()
	c.buffered = n
	c.mu.Unlock()
}

// Sent returns a copy of every frame sent so far.
func (c *Channel) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.sent...)
}

// SentFrames streams frames as they are sent.
func (c *Channel) SentFrames() <-chan []byte { return c.sentCh }
