// Package host runs a game room: it keeps the room registered with the
// directory, connects players as they ask to join, and relays their traffic
// to and from the simulation worker.
package host

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/BioHazard786/warphost/internal/clock"
	"github.com/BioHazard786/warphost/internal/codec"
	"github.com/BioHazard786/warphost/internal/directory"
	"github.com/BioHazard786/warphost/internal/failure"
	"github.com/BioHazard786/warphost/internal/signaling"
	"github.com/BioHazard786/warphost/internal/webrtc"
	"github.com/BioHazard786/warphost/internal/worker"
)

// DefaultReconnectDelay is the wait between losing the directory and
// dialing it again.
const DefaultReconnectDelay = 5 * time.Second

// Signaler opens peer connections. *signaling.Client satisfies it.
type Signaler interface {
	ConnectTo(ctx context.Context, peerID string, opts signaling.ConnectOptions) (*signaling.Conn, error)
	SetObserver(o signaling.Observer)
	Errors() <-chan error
}

// Worker is the channel to the simulation.
type Worker interface {
	Post(msg worker.Outbound) error
	Messages() <-chan worker.Inbound
}

// CredentialSource supplies relay servers for a new connection.
type CredentialSource interface {
	Fetch(ctx context.Context) ([]webrtc.ICEServer, error)
}

// DirectorySession is one directory socket. Messages must be closed when
// the socket goes away.
type DirectorySession interface {
	Messages() <-chan directory.Message
	Send(v any) error
	Close()
}

// DialFunc opens a new directory session.
type DialFunc func(ctx context.Context) (DirectorySession, error)

// DirectoryDialer dials url with directory.Dial.
func DirectoryDialer(url string, opts directory.DialOptions) DialFunc {
	return func(ctx context.Context) (DirectorySession, error) {
		s, err := directory.Dial(ctx, url, opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

type Config struct {
	// RoomCode names the room in status updates when neither the worker
	// nor StartServer supplied a name.
	RoomCode       string
	ReconnectDelay time.Duration
	STUNServers    []webrtc.ICEServer
	ForceRelay     bool
	Reliable       bool
}

type Options struct {
	Signaler    Signaler
	Worker      Worker
	Codec       codec.Codec
	Credentials CredentialSource
	Dial        DialFunc
	Clock       clock.Clock
	Logger      *slog.Logger
	Config      Config
}

// Snapshot is a point-in-time view of the room for display.
type Snapshot struct {
	RoomID     string
	Peers      []string
	Uptime     time.Duration
	StatusText string
	Connected  bool
}

// Host owns the peer table. All of its state is changed on the goroutine
// running Run; other goroutines talk to it through events.
type Host struct {
	signaler Signaler
	worker   Worker
	codec    codec.Codec
	creds    CredentialSource
	dial     DialFunc
	clock    clock.Clock
	logger   *slog.Logger
	cfg      Config
	started  time.Time

	events    chan event
	closed    chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	roomID    *roomID

	serverUp   chan struct{}
	serverOnce sync.Once

	// Owned by the Run goroutine.
	ctx       context.Context
	joining   map[string]bool
	session   DirectorySession
	gen       int
	status    *directory.Status
	reconnect *clock.Timer

	// Written by Run, read by snapshots.
	mu         sync.RWMutex
	peers      map[string]*signaling.Conn
	connected  bool
	statusText string
	suffix     string
	running    bool
}

func New(opts Options) *Host {
	cfg := opts.Config
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.STUNServers == nil {
		cfg.STUNServers = webrtc.DefaultSTUNServers()
	}
	if opts.Codec == nil {
		opts.Codec = codec.Msgpack{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	h := &Host{
		signaler: opts.Signaler,
		worker:   opts.Worker,
		codec:    opts.Codec,
		creds:    opts.Credentials,
		dial:     opts.Dial,
		clock:    opts.Clock,
		logger:   opts.Logger.With("component", "host"),
		cfg:      cfg,
		started:  opts.Clock.Now(),
		events:   make(chan event, 256),
		closed:   make(chan struct{}),
		stopped:  make(chan struct{}),
		roomID:   newRoomID(),
		serverUp: make(chan struct{}),
		joining:  make(map[string]bool),
		peers:    make(map[string]*signaling.Conn),
	}
	h.signaler.SetObserver(observer{h})
	return h
}

// StartServer asks the worker to start the simulation and waits until it
// reports that it has. Run must be running.
func (h *Host) StartServer(ctx context.Context, suffix, gamemode string) error {
	h.mu.Lock()
	h.suffix = suffix
	h.mu.Unlock()

	if err := h.worker.Post(worker.StartServer(suffix, gamemode)); err != nil {
		return err
	}
	select {
	case <-h.serverUp:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.closed:
		return failure.New("start server", failure.ErrClosed)
	}
}

// ConnectDirectory opens the first directory session. Later sessions are
// opened by Run whenever the current one is lost.
func (h *Host) ConnectDirectory(ctx context.Context) error {
	sess, err := h.dial(ctx)
	if err != nil {
		return failure.Cause("connect directory", "", failure.ErrDirectoryLost, err)
	}
	if !h.postCtx(ctx, dirReady{sess: sess}) {
		sess.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return failure.New("connect directory", failure.ErrClosed)
	}
	return nil
}

// RoomID returns the current room id, waiting for the directory to assign
// one if needed.
func (h *Host) RoomID(ctx context.Context) (string, error) {
	return h.roomID.wait(ctx)
}

// Peers lists connected player ids in order.
func (h *Host) Peers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.peers))
	for id := range h.peers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (h *Host) Snapshot() Snapshot {
	h.mu.RLock()
	connected, text := h.connected, h.statusText
	h.mu.RUnlock()
	return Snapshot{
		RoomID:     h.roomID.peek(),
		Peers:      h.Peers(),
		Uptime:     h.clock.Now().Sub(h.started),
		StatusText: text,
		Connected:  connected,
	}
}

// Close stops the host and waits for Run to clean up. It is safe to call
// more than once.
func (h *Host) Close() {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		close(h.closed)
		running := h.running
		h.mu.Unlock()
		if running {
			<-h.stopped
		}
	})
}

// Run processes events until ctx ends or Close is called, then closes the
// directory session and every peer.
func (h *Host) Run(ctx context.Context) error {
	h.mu.Lock()
	select {
	case <-h.closed:
		h.mu.Unlock()
		return nil
	default:
	}
	if h.running {
		h.mu.Unlock()
		return failure.Wrap("run", failure.ErrClosed, "already running")
	}
	h.running = true
	h.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	h.ctx = ctx
	defer func() {
		cancel()
		h.shutdown()
		close(h.stopped)
	}()

	messages := h.worker.Messages()
	errs := h.signaler.Errors()
	for {
		select {
		case ev := <-h.events:
			h.handle(ev)

		case msg, ok := <-messages:
			if !ok {
				h.logger.Error("worker channel closed")
				messages = nil
				continue
			}
			h.handleWorker(msg)

		case err := <-errs:
			h.logger.Warn("signaling error", "err", err)

		case <-ctx.Done():
			return ctx.Err()

		case <-h.closed:
			return nil
		}
	}
}

func (h *Host) shutdown() {
	if h.reconnect != nil {
		h.reconnect.Stop()
		h.reconnect = nil
	}
	if h.session != nil {
		h.session.Close()
		h.session = nil
	}

	h.mu.Lock()
	conns := make([]*signaling.Conn, 0, len(h.peers))
	for _, c := range h.peers {
		conns = append(conns, c)
	}
	h.peers = make(map[string]*signaling.Conn)
	h.connected = false
	h.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	h.logger.Info("host stopped", "peers_closed", len(conns))
}

// post hands ev to Run. It reports false once the host is closed.
func (h *Host) post(ev event) bool {
	select {
	case h.events <- ev:
		return true
	case <-h.closed:
		return false
	case <-h.stopped:
		return false
	}
}

func (h *Host) postCtx(ctx context.Context, ev event) bool {
	select {
	case h.events <- ev:
		return true
	case <-h.closed:
		return false
	case <-h.stopped:
		return false
	case <-ctx.Done():
		return false
	}
}

func (h *Host) defaultName() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.suffix != "" {
		return h.suffix
	}
	return h.cfg.RoomCode
}
