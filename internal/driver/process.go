package driver

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/mattn/go-shellwords"

	"github.com/benaskins/kiln/internal/tasklog"
)

// Process describes a command to execute. Setters return the receiver so
// calls can be chained. A Process is not safe for concurrent mutation, but may
// be run any number of times.
type Process struct {
	log  *tasklog.Context
	args []string
	env  map[string]string
	dir  string

	failOnError      bool
	logCommand       bool
	logWithDecorator bool
	inheritIO        bool
	mergeStderr      bool
	collectStdout    bool
	collectStderr    bool

	teardown *Teardown
	recorder Recorder

	// err holds the first error raised while building the command line; it
	// is returned by Run and Start.
	err error
}

// NewProcess creates a process whose first argument is the executable. A nil
// log discards all output.
func NewProcess(log *tasklog.Context, args ...string) *Process {
	if log == nil {
		log = tasklog.New()
	}
	return &Process{
		log:              log,
		args:             sanitize(args),
		env:              map[string]string{},
		failOnError:      true,
		logWithDecorator: true,
	}
}

// Clone returns an independent copy of p.
func (p *Process) Clone() *Process {
	c := *p
	c.args = slices.Clone(p.args)
	c.env = maps.Clone(p.env)
	return &c
}

// Args returns a copy of the command line.
func (p *Process) Args() []string {
	return slices.Clone(p.args)
}

func (p *Process) AddArgs(args ...string) *Process {
	p.args = append(p.args, sanitize(args)...)
	return p
}

func (p *Process) AddArgsIf(cond bool, args ...string) *Process {
	if cond {
		p.AddArgs(args...)
	}
	return p
}

// AddCmdLine formats a command line with tokens and appends its words, split
// with shell quoting rules.
func (p *Process) AddCmdLine(format string, tokens ...any) *Process {
	words, err := parseCmdLine(format, tokens)
	if err != nil {
		if p.err == nil {
			p.err = err
		}
		return p
	}
	return p.AddArgs(words...)
}

// RemoveArg removes the first occurrence of arg.
func (p *Process) RemoveArg(arg string) *Process {
	if i := slices.Index(p.args, arg); i >= 0 {
		p.args = slices.Delete(p.args, i, i+1)
	}
	return p
}

// SetArgAt replaces the argument at index i. Index 0 is the executable.
func (p *Process) SetArgAt(i int, arg string) *Process {
	if i < 0 || i >= len(p.args) {
		if p.err == nil {
			p.err = fmt.Errorf("argument index %d out of range [0,%d)", i, len(p.args))
		}
		return p
	}
	p.args[i] = arg
	return p
}

// InsertArgsAt inserts args before index i.
func (p *Process) InsertArgsAt(i int, args ...string) *Process {
	if i < 0 || i > len(p.args) {
		if p.err == nil {
			p.err = fmt.Errorf("argument index %d out of range [0,%d]", i, len(p.args))
		}
		return p
	}
	p.args = slices.Insert(p.args, i, sanitize(args)...)
	return p
}

// SetEnv adds an environment variable on top of the host environment.
func (p *Process) SetEnv(key, value string) *Process {
	p.env[key] = value
	return p
}

func (p *Process) SetWorkingDir(dir string) *Process {
	p.dir = dir
	return p
}

// SetFailOnError controls whether a non-zero exit code is reported and
// returned as an *ExitError. Defaults to true.
func (p *Process) SetFailOnError(fail bool) *Process {
	p.failOnError = fail
	return p
}

// SetLogCommand wraps the execution in a task named after the command line.
func (p *Process) SetLogCommand(log bool) *Process {
	p.logCommand = log
	return p
}

// SetLogWithDecorator forwards the program's output to the log context's
// decorated handles. Defaults to true.
func (p *Process) SetLogWithDecorator(log bool) *Process {
	p.logWithDecorator = log
	return p
}

// SetInheritIO connects the program directly to the host's standard streams.
// Enabling it turns off decorator logging.
func (p *Process) SetInheritIO(inherit bool) *Process {
	p.inheritIO = inherit
	if inherit {
		p.logWithDecorator = false
	}
	return p
}

// SetDestroyOnShutdown registers the running process with t so it is killed
// if still alive when t runs. A nil t disables registration.
func (p *Process) SetDestroyOnShutdown(t *Teardown) *Process {
	p.teardown = t
	return p
}

// SetMergeStderr sends the program's stderr into its stdout stream.
func (p *Process) SetMergeStderr(merge bool) *Process {
	p.mergeStderr = merge
	return p
}

func (p *Process) SetCollectStdout(collect bool) *Process {
	p.collectStdout = collect
	return p
}

func (p *Process) SetCollectStderr(collect bool) *Process {
	p.collectStderr = collect
	return p
}

func (p *Process) SetRecorder(r Recorder) *Process {
	p.recorder = r
	return p
}

func (p *Process) validate() error {
	if p.err != nil {
		return p.err
	}
	if len(p.args) == 0 || strings.TrimSpace(p.args[0]) == "" {
		return ErrNoCommand
	}
	if p.inheritIO && p.logWithDecorator {
		return ErrConflictingIO
	}
	return nil
}

// environ returns the host environment with the overrides appended. Later
// entries take precedence in os/exec.
func (p *Process) environ() []string {
	env := os.Environ()
	for _, k := range slices.Sorted(maps.Keys(p.env)) {
		env = append(env, k+"="+p.env[k])
	}
	return env
}

func (p *Process) workingDir() (string, error) {
	if p.dir == "" {
		return "", nil
	}
	abs, err := filepath.Abs(p.dir)
	if err != nil {
		return "", fmt.Errorf("resolving working dir %s: %w", p.dir, err)
	}
	return abs, nil
}

// shortCommand is the executable's base name followed by the arguments,
// shortened to 100 characters.
func (p *Process) shortCommand() string {
	name := filepath.Base(p.args[0])
	if len(p.args) == 1 {
		return name
	}
	return name + " " + ellipse(strings.Join(p.args[1:], " "), 100)
}

// logContext prints where and what is being executed.
func (p *Process) logContext() {
	dir := p.dir
	if dir == "" {
		dir = "."
	}
	width := 120
	if p.log.IsVerbose() {
		width = 480
	}
	p.log.Info("working dir   : %s", dir)
	p.log.Info("command path  : %s", p.args[0])
	p.log.Info("command args  : %s", ellipse(strings.Join(p.args[1:], " "), width))
	p.log.FlushOutput()
}

// ExecCmd runs a copy of p with args appended. p itself is not modified.
func (p *Process) ExecCmd(ctx context.Context, args ...string) (*Result, error) {
	return p.Clone().AddArgs(args...).Run(ctx)
}

// ExecCmdLine is ExecCmd for a formatted command line split with shell
// quoting rules.
func (p *Process) ExecCmdLine(ctx context.Context, format string, tokens ...any) (*Result, error) {
	words, err := parseCmdLine(format, tokens)
	if err != nil {
		return nil, err
	}
	return p.ExecCmd(ctx, words...)
}

func parseCmdLine(format string, tokens []any) ([]string, error) {
	line := format
	if len(tokens) > 0 {
		line = fmt.Sprintf(format, tokens...)
	}
	words, err := shellwords.Parse(line)
	if err != nil {
		return nil, fmt.Errorf("parsing command line %q: %w", line, err)
	}
	return words, nil
}

func sanitize(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// ellipse shortens s to width runes, replacing the tail with "...".
func ellipse(s string, width int) string {
	r := []rune(s)
	if len(r) <= 3 || width < 0 || len(r) <= width {
		return s
	}
	return string(r[:width-3]) + "..."
}
