package worker

import "github.com/BioHazard786/warphost/internal/failure"

// Loopback is an in-memory worker. The caller plays the simulation: it reads
// what the host posted from Posted and answers with Emit.
type Loopback struct {
	posted   chan Outbound
	messages chan Inbound
	done     chan struct{}
}

func NewLoopback() *Loopback {
	return &Loopback{
		posted:   make(chan Outbound, 256),
		messages: make(chan Inbound, 256),
		done:     make(chan struct{}),
	}
}

func (l *Loopback) Post(msg Outbound) error {
	select {
	case <-l.done:
		return failure.New("post to worker", failure.ErrClosed)
	default:
	}
	select {
	case l.posted <- msg:
		return nil
	case <-l.done:
		return failure.New("post to worker", failure.ErrClosed)
	}
}

func (l *Loopback) Messages() <-chan Inbound { return l.messages }

func (l *Loopback) Posted() <-chan Outbound { return l.posted }

func (l *Loopback) Emit(msg Inbound) { l.messages <- msg }

func (l *Loopback) Close() {
	select {
	case <-l.done:
	default:
		close(l.done)
	}
}
