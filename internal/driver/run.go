package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/unix"

	"github.com/benaskins/kiln/internal/logbuf"
)

var (
	stdoutBanner  = "Std out was " + strings.Repeat("=", 47)
	stderrBanner  = "Std err was " + strings.Repeat("=", 47)
	closingBanner = strings.Repeat("=", 59)
)

// child is a spawned program and the goroutines copying its output.
type child struct {
	id         string
	cmd        *exec.Cmd
	group      bool
	startedAt  time.Time
	gobblers   sync.WaitGroup
	stdout     *logbuf.Buffer
	stderr     *logbuf.Buffer
	unregister func()
}

// Run executes the process and blocks until it has exited and all of its
// output has been forwarded. With SetLogCommand the whole execution is wrapped
// in a task. A non-zero exit code is an error only when failOnError is set; it
// is then reported through the log context, with any captured output
// replayed, and returned as an *ExitError.
func (p *Process) Run(ctx context.Context) (*Result, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if p.logCommand {
		task := p.log.StartTask("start-program >" + p.shortCommand())
		defer func() { _ = task.Done() }()
		if p.log.IsVerbose() {
			p.logContext()
		}
	}

	out, errOut := io.Discard, io.Discard
	if p.logWithDecorator {
		out, errOut = p.log.Out(), p.log.Err()
	}
	ch, err := p.spawn(out, errOut, p.collectStdout, p.collectStderr)
	if err != nil {
		return nil, err
	}

	code, err := ch.wait(ctx)
	res := ch.result(code)
	if err == nil && code != 0 && p.failOnError {
		p.reportFailure(res)
		err = &ExitError{
			Code:   code,
			Args:   p.Args(),
			Dir:    p.dir,
			Stdout: res.Stdout,
			Stderr: res.Stderr,
		}
	}
	p.record(ch, res, false, err)
	return res, err
}

// spawn starts the program. Unless the host's streams are inherited, stdout
// and stderr are read by one gobbler each, which copies every chunk to the
// console writer and, when requested, to a capture buffer.
func (p *Process) spawn(out, errOut io.Writer, captureOut, captureErr bool) (*child, error) {
	dir, err := p.workingDir()
	if err != nil {
		return nil, err
	}
	cmd := exec.Command(p.args[0], p.args[1:]...)
	cmd.Env = p.environ()
	cmd.Dir = dir
	ch := &child{id: uuid.NewString(), cmd: cmd}

	if p.inheritIO {
		p.log.FlushOutput()
		cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("starting %s: %w", p.args[0], err)
		}
		ch.startedAt = time.Now()
		ch.register(p.teardown)
		return ch, nil
	}

	// Own process group so the whole tree can be signalled.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	ch.group = true

	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	cmd.Stdout = outW
	var errR, errW *os.File
	if p.mergeStderr {
		cmd.Stderr = outW
	} else {
		errR, errW, err = os.Pipe()
		if err != nil {
			outR.Close()
			outW.Close()
			return nil, fmt.Errorf("creating stderr pipe: %w", err)
		}
		cmd.Stderr = errW
	}

	startErr := cmd.Start()
	// The child holds its own copies of the write ends.
	outW.Close()
	if errW != nil {
		errW.Close()
	}
	if startErr != nil {
		outR.Close()
		if errR != nil {
			errR.Close()
		}
		return nil, fmt.Errorf("starting %s: %w", p.args[0], startErr)
	}
	ch.startedAt = time.Now()

	if captureOut {
		ch.stdout = logbuf.New()
	}
	ch.gobble(outR, out, ch.stdout)
	if errR != nil {
		if captureErr {
			ch.stderr = logbuf.New()
		}
		ch.gobble(errR, errOut, ch.stderr)
	}
	ch.register(p.teardown)
	return ch, nil
}

func (ch *child) gobble(r *os.File, console io.Writer, capture *logbuf.Buffer) {
	ch.gobblers.Add(1)
	go func() {
		defer ch.gobblers.Done()
		defer r.Close()
		buf := make([]byte, 32*1024)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				_, _ = console.Write(buf[:n])
				if capture != nil {
					_, _ = capture.Write(buf[:n])
				}
			}
			if err != nil {
				return
			}
		}
	}()
}

func (ch *child) register(t *Teardown) {
	if t == nil {
		return
	}
	ch.unregister = t.Register(ch.destroy)
}

// wait blocks until the program exits, then until both gobblers have drained.
// Cancelling ctx kills the program.
func (ch *child) wait(ctx context.Context) (int, error) {
	done := make(chan error, 1)
	go func() { done <- ch.cmd.Wait() }()

	var waitErr error
	interrupted := false
	select {
	case waitErr = <-done:
	case <-ctx.Done():
		ch.kill()
		waitErr = <-done
		interrupted = true
	}
	ch.gobblers.Wait()
	if ch.unregister != nil {
		ch.unregister()
	}

	code := ch.cmd.ProcessState.ExitCode()
	if interrupted {
		return code, fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err())
	}
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return code, fmt.Errorf("waiting for %s: %w", ch.cmd.Path, waitErr)
	}
	return code, nil
}

func (ch *child) result(code int) *Result {
	res := &Result{ExitCode: code, Duration: time.Since(ch.startedAt)}
	if ch.stdout != nil {
		res.Stdout = append([]byte{}, ch.stdout.Bytes()...)
	}
	if ch.stderr != nil {
		res.Stderr = append([]byte{}, ch.stderr.Bytes()...)
	}
	return res
}

func (ch *child) pid() int {
	return ch.cmd.Process.Pid
}

func (ch *child) signal(sig unix.Signal) {
	if ch.group {
		_ = unix.Kill(-ch.pid(), sig)
		return
	}
	_ = unix.Kill(ch.pid(), sig)
}

func (ch *child) kill() {
	ch.signal(unix.SIGKILL)
}

// destroy kills the program and every descendant still alive.
func (ch *child) destroy() {
	pid := ch.pid()
	logger().Debug("destroying process tree", "pid", pid, "id", ch.id)
	killTree(int32(pid))
	if ch.group {
		_ = unix.Kill(-pid, unix.SIGKILL)
	}
}

// killTree kills descendants before their parent so none are reparented
// out of reach.
func killTree(pid int32) {
	if proc, err := process.NewProcess(pid); err == nil {
		if children, err := proc.Children(); err == nil {
			for _, c := range children {
				killTree(c.Pid)
			}
		}
	}
	_ = unix.Kill(int(pid), unix.SIGKILL)
}

func (p *Process) reportFailure(res *Result) {
	p.log.Error("Process exited with error code %d", res.ExitCode)
	p.logContext()
	if p.collectStdout {
		p.log.Error(stdoutBanner)
		p.replay(res.Stdout)
		if !p.collectStderr {
			p.log.Error(closingBanner)
		}
	}
	if p.collectStderr {
		p.log.Error(stderrBanner)
		p.replay(res.Stderr)
		p.log.Error(closingBanner)
	}
	p.log.FlushOutput()
}

// replay writes captured bytes to the error handle, between the banners.
func (p *Process) replay(b []byte) {
	if len(b) == 0 {
		return
	}
	w := p.log.Err()
	_, _ = w.Write(b)
	if b[len(b)-1] != '\n' {
		_, _ = io.WriteString(w, "\n")
	}
}

func (p *Process) record(ch *child, res *Result, async bool, err error) {
	if p.recorder == nil {
		return
	}
	r := Record{
		ID:        ch.id,
		Args:      p.Args(),
		Dir:       p.dir,
		Async:     async,
		StartedAt: ch.startedAt,
		Duration:  res.Duration,
		ExitCode:  res.ExitCode,
	}
	if err != nil {
		r.Error = err.Error()
	}
	if rerr := p.recorder.RecordRun(r); rerr != nil {
		logger().Warn("recording process run failed", "id", ch.id, "error", rerr)
	}
}
