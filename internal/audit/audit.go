// Package audit provides append-only structured logging of process runs.
//
// Every program kiln executes, and every build it starts or finishes, can be
// recorded to an audit log (by default ~/.kiln/audit.log) as newline-delimited
// JSON.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/benaskins/kiln/internal/driver"
)

// Action describes what happened.
type Action string

const (
	ActionProcessRun   Action = "process_run"
	ActionProcessStart Action = "process_start"
	ActionBuildStart   Action = "build_start"
	ActionBuildFinish  Action = "build_finish"
)

// Entry is a single audit log record.
type Entry struct {
	Timestamp  time.Time `json:"ts"`
	Action     Action    `json:"action"`
	ID         string    `json:"id,omitempty"`
	Build      string    `json:"build,omitempty"`
	Step       string    `json:"step,omitempty"`
	Command    string    `json:"command,omitempty"`
	Dir        string    `json:"dir,omitempty"`
	ExitCode   int       `json:"exit_code"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Logger writes audit entries to an append-only file.
type Logger struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// NewLogger creates or opens an audit log file for appending.
func NewLogger(path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	return &Logger{file: f, path: path}, nil
}

// Log writes an audit entry.
func (l *Logger) Log(entry Entry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling audit entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing audit entry: %w", err)
	}
	return nil
}

// RecordRun logs a process execution. It makes Logger a driver.Recorder.
func (l *Logger) RecordRun(r driver.Record) error {
	return l.Log(entryFor(r, "", ""))
}

// ForStep returns a recorder tagging entries with a build and step name.
func (l *Logger) ForStep(build, step string) driver.Recorder {
	return stepRecorder{l: l, build: build, step: step}
}

// Path returns the file the logger appends to.
func (l *Logger) Path() string {
	return l.path
}

// Close closes the audit log file.
func (l *Logger) Close() error {
	return l.file.Close()
}

type stepRecorder struct {
	l     *Logger
	build string
	step  string
}

func (s stepRecorder) RecordRun(r driver.Record) error {
	return s.l.Log(entryFor(r, s.build, s.step))
}

func entryFor(r driver.Record, build, step string) Entry {
	action := ActionProcessRun
	if r.Async {
		action = ActionProcessStart
	}
	return Entry{
		Timestamp:  r.StartedAt.UTC(),
		Action:     action,
		ID:         r.ID,
		Build:      build,
		Step:       step,
		Command:    strings.Join(r.Args, " "),
		Dir:        r.Dir,
		ExitCode:   r.ExitCode,
		DurationMS: r.Duration.Milliseconds(),
		Error:      r.Error,
	}
}
