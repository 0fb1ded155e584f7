package driver

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/unix"
)

// Handle is a process started in the background.
type Handle struct {
	// ID identifies this execution in logs and audit records.
	ID string

	proc *Process
	ch   *child
	done chan struct{}
	stop func() bool

	mu       sync.Mutex
	state    State
	exitCode int
	err      error
	result   *Result
}

// Start launches the process and returns without waiting for it. Only stdout
// can be captured; it is available from Wait. When logging through the
// decorator, uncaptured stdout and all of stderr go to the log context.
// Cancelling ctx kills the process.
func (p *Process) Start(ctx context.Context) (*Handle, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if p.logCommand {
		p.log.Info("start-async-program >" + p.shortCommand())
		if p.log.IsVerbose() {
			p.logContext()
		}
	}

	out, errOut := io.Discard, io.Discard
	if p.logWithDecorator {
		out, errOut = p.log.Out(), p.log.Err()
	}
	if p.collectStdout {
		out = io.Discard
	}
	ch, err := p.spawn(out, errOut, p.collectStdout, false)
	if err != nil {
		return nil, err
	}

	h := &Handle{
		ID:    ch.id,
		proc:  p.Clone(),
		ch:    ch,
		done:  make(chan struct{}),
		state: StateRunning,
	}
	h.stop = context.AfterFunc(ctx, ch.kill)
	go h.reap()
	return h, nil
}

func (h *Handle) reap() {
	code, err := h.ch.wait(context.Background())
	h.stop()
	res := h.ch.result(code)

	h.mu.Lock()
	switch {
	case h.state == StateStopping:
		h.state = StateStopped
	case err != nil || code != 0:
		h.state = StateFailed
	default:
		h.state = StateExited
	}
	h.exitCode = code
	h.err = err
	h.result = res
	state := h.state
	h.mu.Unlock()

	if err == nil && code != 0 && h.proc.failOnError && state != StateStopped {
		err = h.exitError(res)
	}
	h.proc.record(h.ch, res, true, err)
	close(h.done)
}

func (h *Handle) exitError(res *Result) *ExitError {
	return &ExitError{
		Code:   res.ExitCode,
		Args:   h.proc.Args(),
		Dir:    h.proc.dir,
		Stdout: res.Stdout,
	}
}

// PID returns the operating system process ID.
func (h *Handle) PID() int {
	return h.ch.pid()
}

// Wait blocks until the process exits. A non-zero exit code yields an
// *ExitError when failOnError is set, unless the process was stopped through
// Stop. Cancelling ctx kills the process and returns ErrInterrupted.
func (h *Handle) Wait(ctx context.Context) (*Result, error) {
	if h == nil || h.ch == nil {
		return nil, ErrNotStarted
	}
	select {
	case <-h.done:
	case <-ctx.Done():
		h.ch.kill()
		<-h.done
		return h.result, fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err())
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.result, h.err
	}
	if h.exitCode != 0 && h.proc.failOnError && h.state != StateStopped {
		return h.result, h.exitError(h.result)
	}
	return h.result, nil
}

// Stop sends SIGTERM to the process group, waits up to timeout, then sends
// SIGKILL.
func (h *Handle) Stop(ctx context.Context, timeout time.Duration) error {
	if h == nil || h.ch == nil {
		return ErrNotStarted
	}
	h.mu.Lock()
	if h.state != StateRunning {
		h.mu.Unlock()
		return nil
	}
	h.state = StateStopping
	h.mu.Unlock()

	h.ch.signal(unix.SIGTERM)

	select {
	case <-h.done:
		return nil
	case <-time.After(timeout):
		h.ch.kill()
		<-h.done
		return nil
	case <-ctx.Done():
		h.ch.kill()
		<-h.done
		return ctx.Err()
	}
}

// Alive reports whether the process is still running.
func (h *Handle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
	}
	proc, err := process.NewProcess(int32(h.PID()))
	if err != nil {
		return false
	}
	running, err := proc.IsRunning()
	return err == nil && running
}

func (h *Handle) Info() ProcessInfo {
	h.mu.Lock()
	defer h.mu.Unlock()

	info := ProcessInfo{
		ID:        h.ID,
		PID:       h.ch.pid(),
		State:     h.state,
		StartedAt: h.ch.startedAt,
		ExitCode:  h.exitCode,
	}
	if h.err != nil {
		info.Error = h.err.Error()
	}
	return info
}
