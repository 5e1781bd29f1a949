package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/BioHazard786/warphost/internal/failure"
	"github.com/vmihailenco/msgpack/v5"
)

const stopTimeout = 5 * time.Second

// Process runs the simulation as a child process. Messages are a msgpack
// stream on the child's stdin and stdout; stderr lines are logged.
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	logger *slog.Logger

	outgoing chan Outbound
	messages chan Inbound
	exited   chan struct{}
	stopping chan struct{}
	stopOnce sync.Once
	waitErr  error
}

// Start launches command. The child is killed if ctx ends.
func Start(ctx context.Context, command []string, logger *slog.Logger) (*Process, error) {
	if len(command) == 0 {
		return nil, errors.New("worker command is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker %s: %w", command[0], err)
	}

	p := &Process{
		cmd:      cmd,
		stdin:    stdin,
		logger:   logger.With("component", "worker", "pid", cmd.Process.Pid),
		outgoing: make(chan Outbound, 256),
		messages: make(chan Inbound, 256),
		exited:   make(chan struct{}),
		stopping: make(chan struct{}),
	}

	var pipes sync.WaitGroup
	pipes.Add(2)
	go func() {
		defer pipes.Done()
		p.readLoop(stdout)
	}()
	go func() {
		defer pipes.Done()
		p.logStderr(stderr)
	}()
	go p.writeLoop()
	go func() {
		// Wait must not run until the pipes are drained.
		pipes.Wait()
		p.waitErr = cmd.Wait()
		if p.waitErr != nil {
			p.logger.Warn("worker exited", "err", p.waitErr)
		} else {
			p.logger.Info("worker exited")
		}
		close(p.exited)
	}()

	p.logger.Info("worker started", "command", command[0])
	return p, nil
}

// Post queues msg for the child. It fails once the child is gone.
func (p *Process) Post(msg Outbound) error {
	select {
	case <-p.exited:
		return failure.New("post to worker", failure.ErrClosed)
	case <-p.stopping:
		return failure.New("post to worker", failure.ErrClosed)
	default:
	}
	select {
	case p.outgoing <- msg:
		return nil
	case <-p.exited:
		return failure.New("post to worker", failure.ErrClosed)
	case <-p.stopping:
		return failure.New("post to worker", failure.ErrClosed)
	}
}

// Messages is closed when the child's stdout ends.
func (p *Process) Messages() <-chan Inbound { return p.messages }

// Exited is closed once the child has been reaped.
func (p *Process) Exited() <-chan struct{} { return p.exited }

// Err is the child's exit error, valid after Exited is closed.
func (p *Process) Err() error {
	<-p.exited
	return p.waitErr
}

// Close closes the child's stdin and waits for it to exit, killing it if it
// takes longer than a few seconds.
func (p *Process) Close() error {
	p.stopOnce.Do(func() { close(p.stopping) })
	select {
	case <-p.exited:
	case <-time.After(stopTimeout):
		p.logger.Warn("worker did not exit, killing")
		p.cmd.Process.Kill()
		<-p.exited
	}
	return nil
}

func (p *Process) readLoop(r io.Reader) {
	defer close(p.messages)

	dec := msgpack.NewDecoder(bufio.NewReader(r))
	dec.UseLooseInterfaceDecoding(true)
	for {
		var msg Inbound
		if err := dec.Decode(&msg); err != nil {
			if !errors.Is(err, io.EOF) {
				p.logger.Warn("worker stream ended", "err", err)
			}
			// Keep draining so the child never blocks on a full pipe.
			io.Copy(io.Discard, r)
			return
		}
		select {
		case p.messages <- msg:
		case <-p.stopping:
		}
	}
}

func (p *Process) writeLoop() {
	defer p.stdin.Close()

	w := bufio.NewWriter(p.stdin)
	enc := msgpack.NewEncoder(w)
	for {
		select {
		case msg := <-p.outgoing:
			if err := enc.Encode(&msg); err != nil {
				p.logger.Warn("encode worker message", "type", msg.Type, "err", err)
				continue
			}
			if err := w.Flush(); err != nil {
				p.logger.Warn("write to worker", "err", err)
				return
			}
		case <-p.stopping:
			return
		case <-p.exited:
			return
		}
	}
}

func (p *Process) logStderr(r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		p.logger.Info("worker output", "line", sc.Text())
	}
}
