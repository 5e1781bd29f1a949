package host

import (
	"context"
	"sync"
)

// roomID holds the directory-assigned room id. Waiters are released when an
// id is set; reset makes later waiters block until the next one.
type roomID struct {
	mu    sync.Mutex
	value string
	ready chan struct{}
}

func newRoomID() *roomID {
	return &roomID{ready: make(chan struct{})}
}

func (r *roomID) set(id string) {
	if id == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.value = id
	select {
	case <-r.ready:
	default:
		close(r.ready)
	}
}

func (r *roomID) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.value = ""
	select {
	case <-r.ready:
		r.ready = make(chan struct{})
	default:
	}
}

func (r *roomID) peek() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.value
}

func (r *roomID) wait(ctx context.Context) (string, error) {
	for {
		r.mu.Lock()
		ready := r.ready
		r.mu.Unlock()

		select {
		case <-ready:
			if id := r.peek(); id != "" {
				return id, nil
			}
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}
