package host

import (
	"github.com/BioHazard786/warphost/internal/directory"
	"github.com/BioHazard786/warphost/internal/worker"
)

func (h *Host) handleWorker(msg worker.Inbound) {
	switch msg.Type {
	case worker.TypeClientMessage:
		conn, err := h.lookup(msg.PlayerID)
		if err != nil {
			h.logger.Warn("dropping worker message", "peer", msg.PlayerID, "err", err)
			return
		}
		frame, err := h.codec.Encode(msg.Data)
		if err != nil {
			h.logger.Warn("encode worker message", "peer", msg.PlayerID, "err", err)
			return
		}
		conn.Send(frame)

	case worker.TypeUpdatePlayers:
		name := msg.Name
		if name == "" {
			name = h.defaultName()
		}
		h.status = &directory.Status{Players: msg.Players, Name: name, Desc: msg.Desc}
		h.sendDirectory(h.status)

	case worker.TypeServerStarted:
		h.serverOnce.Do(func() { close(h.serverUp) })
		h.logger.Info("simulation started")

	case worker.TypeServerStartText:
		h.logger.Info("simulation status", "text", msg.Text, "tip", msg.Tip)
		text := msg.Text
		if msg.Tip != "" {
			text += " - " + msg.Tip
		}
		h.mu.Lock()
		h.statusText = text
		h.mu.Unlock()

	default:
		h.logger.Debug("ignoring worker message", "type", msg.Type)
	}
}

func (h *Host) postWorker(msg worker.Outbound) {
	if err := h.worker.Post(msg); err != nil {
		h.logger.Warn("post to worker failed", "type", msg.Type, "err", err)
	}
}
