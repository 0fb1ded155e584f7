// Package driver runs external programs on behalf of a build, streaming their
// output through a tasklog.Context.
//
// A Process is a mutable description of a command line. Run executes it and
// blocks until the program exits and all of its output has been forwarded;
// Start launches it in the background and returns a Handle.
package driver

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

var (
	// ErrNoCommand is returned when a process has no executable.
	ErrNoCommand = errors.New("no command has been specified")

	// ErrConflictingIO is returned when a process both inherits the host's
	// standard streams and logs through the decorator.
	ErrConflictingIO = errors.New("inherited IO and decorator logging cannot be used together")

	// ErrNonZeroExit matches every *ExitError.
	ErrNonZeroExit = errors.New("process returned a non-zero exit code")

	// ErrInterrupted is returned when the context is cancelled while waiting
	// for a process. The process is killed.
	ErrInterrupted = errors.New("process interrupted")

	// ErrNotStarted is returned when a handle is used before its process has
	// been started.
	ErrNotStarted = errors.New("process not started")
)

// ExitError describes a process that exited with a non-zero code while
// failOnError was set. Stdout and Stderr hold the captured output, if any.
type ExitError struct {
	Code   int
	Args   []string
	Dir    string
	Stdout []byte
	Stderr []byte
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("process has returned with error code %d: %s", e.Code, strings.Join(e.Args, " "))
}

func (e *ExitError) Is(target error) bool {
	return target == ErrNonZeroExit
}

// State represents the lifecycle state of a started process.
type State string

const (
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
	StateExited   State = "exited"
	StateFailed   State = "failed"
)

// ProcessInfo holds runtime information about a started process.
type ProcessInfo struct {
	ID        string
	PID       int
	State     State
	StartedAt time.Time
	ExitCode  int
	Error     string
}

// Result is the outcome of a finished process. Stdout and Stderr are nil
// unless capture was requested.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
}

func (r *Result) StdoutString() string {
	return string(r.Stdout)
}

// StdoutLines splits the captured stdout into lines, without line endings.
func (r *Result) StdoutLines() []string {
	s := strings.TrimRight(strings.ReplaceAll(string(r.Stdout), "\r\n", "\n"), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// Record summarises one execution for a Recorder.
type Record struct {
	ID        string
	Args      []string
	Dir       string
	Async     bool
	StartedAt time.Time
	Duration  time.Duration
	ExitCode  int
	Error     string
}

// Recorder receives a Record for every process run or started.
type Recorder interface {
	RecordRun(Record) error
}

func logger() *slog.Logger {
	return slog.Default().With("component", "driver")
}
