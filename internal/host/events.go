package host

import (
	"github.com/BioHazard786/warphost/internal/directory"
	"github.com/BioHazard786/warphost/internal/failure"
	"github.com/BioHazard786/warphost/internal/signaling"
	"github.com/BioHazard786/warphost/internal/worker"
)

type event interface{}

type (
	dirReady struct {
		sess DirectorySession
		err  error
	}
	dirMessage struct {
		gen int
		msg directory.Message
	}
	dirClosed struct {
		gen int
	}
	reconnectDue struct{}

	connOpened struct{ conn *signaling.Conn }
	connData   struct {
		conn *signaling.Conn
		data []byte
	}
	connClosed struct{ conn *signaling.Conn }
	joinFailed struct {
		peerID string
		err    error
	}
)

func (h *Host) handle(ev event) {
	switch ev := ev.(type) {
	case dirReady:
		h.adoptSession(ev.sess, ev.err)
	case dirMessage:
		if ev.gen == h.gen {
			h.handleDirectory(ev.msg)
		}
	case dirClosed:
		if ev.gen == h.gen {
			h.sessionLost()
		}
	case reconnectDue:
		h.redial()
	case connOpened:
		h.register(ev.conn)
	case connData:
		h.forward(ev.conn, ev.data)
	case connClosed:
		h.unregister(ev.conn)
	case joinFailed:
		delete(h.joining, ev.peerID)
		h.logger.Warn("player join failed", "peer", ev.peerID, "err", ev.err)
	}
}

// observer feeds Conn callbacks into the event loop.
type observer struct{ h *Host }

func (o observer) OnOpen(c *signaling.Conn) { o.h.post(connOpened{c}) }

func (o observer) OnData(c *signaling.Conn, data []byte) { o.h.post(connData{c, data}) }

func (o observer) OnClose(c *signaling.Conn) { o.h.post(connClosed{c}) }

func (o observer) OnError(c *signaling.Conn, err error) {
	o.h.logger.Warn("peer connection error", "peer", c.PeerID(), "err", err)
}

func (o observer) OnConnection(c *signaling.Conn) {
	o.h.logger.Info("incoming player connection", "peer", c.PeerID())
}

var (
	_ signaling.ErrorObserver      = observer{}
	_ signaling.ConnectionObserver = observer{}
)

func (h *Host) register(c *signaling.Conn) {
	id := c.PeerID()
	delete(h.joining, id)

	h.mu.Lock()
	existing, replaced := h.peers[id]
	if replaced && existing != c && existing.State() != signaling.StateClosed {
		h.mu.Unlock()
		h.logger.Warn("closing duplicate connection", "peer", id)
		c.Close()
		return
	}
	h.peers[id] = c
	count := len(h.peers)
	h.mu.Unlock()

	// The old connection closed but its close event has not arrived yet.
	if replaced && existing != c {
		h.postWorker(worker.PlayerDc(id))
	}

	h.logger.Info("player joined", "peer", id, "players", count)
	h.postWorker(worker.PlayerJoin(id))
}

func (h *Host) unregister(c *signaling.Conn) {
	id := c.PeerID()

	h.mu.Lock()
	current, ok := h.peers[id]
	if !ok || current != c {
		h.mu.Unlock()
		return
	}
	delete(h.peers, id)
	h.mu.Unlock()

	h.logger.Info("player left", "peer", id)
	h.postWorker(worker.PlayerDc(id))
}

func (h *Host) forward(c *signaling.Conn, data []byte) {
	id := c.PeerID()
	h.mu.RLock()
	current := h.peers[id]
	h.mu.RUnlock()
	if current != c {
		return
	}

	payload, err := h.codec.Decode(data)
	if err != nil {
		h.logger.Warn("dropping undecodable frame", "peer", id, "bytes", len(data), "err", err)
		return
	}
	h.postWorker(worker.ServerMessage(id, payload))
}

func (h *Host) lookup(peerID string) (*signaling.Conn, error) {
	h.mu.RLock()
	c, ok := h.peers[peerID]
	h.mu.RUnlock()
	if !ok {
		return nil, failure.NewPeer("route", peerID, failure.ErrRoutingMiss)
	}
	return c, nil
}
