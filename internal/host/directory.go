package host

import (
	"github.com/BioHazard786/warphost/internal/directory"
	"github.com/BioHazard786/warphost/internal/signaling"
	"github.com/BioHazard786/warphost/internal/webrtc"
)

func (h *Host) adoptSession(sess DirectorySession, err error) {
	if err != nil {
		h.logger.Warn("directory redial failed", "err", err, "retry_in", h.cfg.ReconnectDelay)
		h.scheduleReconnect()
		return
	}
	if h.session != nil {
		h.session.Close()
	}
	h.gen++
	h.session = sess
	h.mu.Lock()
	h.connected = true
	h.mu.Unlock()

	gen := h.gen
	go func() {
		for msg := range sess.Messages() {
			if !h.post(dirMessage{gen: gen, msg: msg}) {
				return
			}
		}
		h.post(dirClosed{gen: gen})
	}()
	h.logger.Info("directory session open")
}

func (h *Host) sessionLost() {
	h.session = nil
	h.roomID.reset()
	h.mu.Lock()
	h.connected = false
	h.mu.Unlock()

	h.logger.Warn("directory session closed, reconnecting", "retry_in", h.cfg.ReconnectDelay)
	h.scheduleReconnect()
}

func (h *Host) scheduleReconnect() {
	if h.reconnect != nil {
		h.reconnect.Stop()
	}
	h.reconnect = h.clock.AfterFunc(h.cfg.ReconnectDelay, func() {
		select {
		case <-h.closed:
			return
		default:
		}
		h.post(reconnectDue{})
	})
}

func (h *Host) redial() {
	h.reconnect = nil
	ctx := h.ctx
	h.logger.Info("redialing directory")
	go func() {
		sess, err := h.dial(ctx)
		if !h.post(dirReady{sess: sess, err: err}) && sess != nil {
			sess.Close()
		}
	}()
}

func (h *Host) handleDirectory(msg directory.Message) {
	switch msg.Type {
	case directory.TypePlayerJoin:
		h.join(msg.Text())

	case directory.TypeHostRoomID:
		id := msg.Text()
		h.roomID.set(id)
		h.logger.Info("room id assigned", "room", id)
		if h.status != nil {
			h.sendDirectory(h.status)
		}

	case directory.TypePing:
		h.sendDirectory(directory.Pong{Ping: true})

	default:
		h.logger.Debug("ignoring directory message", "type", msg.Type)
	}
}

func (h *Host) sendDirectory(v any) {
	if h.session == nil {
		return
	}
	if err := h.session.Send(v); err != nil {
		h.logger.Warn("directory send failed", "err", err)
	}
}

// join connects to a player the directory sent us. The connection is added
// to the peer table when it opens.
func (h *Host) join(peerID string) {
	if peerID == "" {
		h.logger.Warn("join request without a player id")
		return
	}
	h.mu.RLock()
	_, connected := h.peers[peerID]
	h.mu.RUnlock()
	if connected || h.joining[peerID] {
		h.logger.Info("ignoring duplicate join", "peer", peerID)
		return
	}
	h.joining[peerID] = true
	h.logger.Info("accepting player", "peer", peerID)

	ctx := h.ctx
	servers := append([]webrtc.ICEServer(nil), h.cfg.STUNServers...)
	go func() {
		if h.creds != nil {
			relays, err := h.creds.Fetch(ctx)
			if err != nil {
				h.logger.Warn("continuing without relay credentials", "peer", peerID, "err", err)
			}
			servers = append(servers, relays...)
		}

		_, err := h.signaler.ConnectTo(ctx, peerID, signaling.ConnectOptions{
			ICEServers: servers,
			ForceRelay: h.cfg.ForceRelay,
			Reliable:   h.cfg.Reliable,
		})
		if err != nil {
			h.post(joinFailed{peerID: peerID, err: err})
		}
	}()
}
