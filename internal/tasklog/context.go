// Package tasklog renders build output as a hierarchy of tasks.
//
// A Context owns the active Decorator, the verbosity gate and the task nesting
// state. Callers emit events (Info, Warn, StartTask, EndTask...) and write raw
// bytes through Out and Err; the decorator turns both into indented, coloured
// console output. Independent chains of tasks running concurrently should each
// use their own Context (see Fork) so that their indentation does not mix.
package tasklog

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Context is the logging façade. The zero value is not usable; call New.
type Context struct {
	verbosity    atomic.Int32
	depth        atomic.Int64
	showDuration atomic.Bool
	color        atomic.Bool

	active atomic.Pointer[activeDecorator]

	mu         sync.Mutex
	style      Style
	targetOut  io.Writer
	targetErr  io.Writer
	stderrOnly bool
	stack      []*Task
	membuf     *memoryBuffer
	redirect   *redirection
	now        func() time.Time
}

// activeDecorator boxes the interface so it can be published atomically.
type activeDecorator struct {
	d Decorator
}

// Option configures a Context.
type Option func(*Context)

// WithOutput sets the real targets decorators write to. Defaults to the
// os.Stdout and os.Stderr values at the time New is called.
func WithOutput(out, err io.Writer) Option {
	return func(c *Context) {
		c.targetOut = out
		c.targetErr = err
	}
}

// WithVerbosity sets the initial verbosity. Defaults to VerbosityInfo.
func WithVerbosity(v Verbosity) Option {
	return func(c *Context) {
		c.verbosity.Store(int32(v))
	}
}

// WithStyle installs the decorator for style once the context is built.
func WithStyle(s Style) Option {
	return func(c *Context) {
		c.style = s
	}
}

// WithShowTaskDuration makes decorators print a duration line on task end.
func WithShowTaskDuration(show bool) Option {
	return func(c *Context) {
		c.showDuration.Store(show)
	}
}

// WithColor enables ANSI colour attributes in decorators that support them.
func WithColor(enabled bool) Option {
	return func(c *Context) {
		c.color.Store(enabled)
	}
}

// WithLogOnStderr sends all decorated output, including the out handle, to the
// error target.
func WithLogOnStderr(flag bool) Option {
	return func(c *Context) {
		c.stderrOnly = flag
	}
}

// WithClock replaces time.Now for task durations.
func WithClock(now func() time.Time) Option {
	return func(c *Context) {
		c.now = now
	}
}

// New creates a logging context. Until a decorator or style is set, events are
// discarded.
func New(opts ...Option) *Context {
	c := &Context{
		targetOut: os.Stdout,
		targetErr: os.Stderr,
		now:       time.Now,
	}
	c.verbosity.Store(int32(VerbosityInfo))
	c.active.Store(&activeDecorator{d: noOpDecorator{}})
	for _, opt := range opts {
		opt(c)
	}
	if c.style != "" {
		c.SetStyle(c.style)
	}
	return c
}

// SetDecorator binds d to the context's real targets and makes it the active
// decorator. An active memory buffer is dropped without being flushed.
func (c *Context) SetDecorator(d Decorator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.style = ""
	c.membuf = nil
	c.install(d)
}

// SetStyle installs a new decorator of the given style.
func (c *Context) SetStyle(s Style) {
	d := s.New()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.style = s
	c.membuf = nil
	c.install(d)
}

// Style returns the style of the active decorator, or "" for a custom or
// no-op decorator.
func (c *Context) Style() Style {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.style
}

// SetLogOnStderr routes the out handle to the error target and re-initialises
// the active decorator.
func (c *Context) SetLogOnStderr(flag bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stderrOnly = flag
	c.install(c.decorator())
}

// install must be called with c.mu held.
func (c *Context) install(d Decorator) {
	out := c.targetOut
	if c.stderrOnly {
		out = c.targetErr
	}
	d.Init(c, out, c.targetErr)
	c.active.Store(&activeDecorator{d: d})
}

// Restore returns the context to its initial state: events are discarded and
// any standard stream redirection is undone.
func (c *Context) Restore() {
	c.mu.Lock()
	c.style = ""
	c.membuf = nil
	c.active.Store(&activeDecorator{d: noOpDecorator{}})
	r := c.redirect
	c.redirect = nil
	c.mu.Unlock()

	if r != nil {
		r.restore()
	}
}

// Decorator returns the active decorator.
func (c *Context) Decorator() Decorator {
	return c.decorator()
}

func (c *Context) decorator() Decorator {
	return c.active.Load().d
}

// Out returns the decorated standard output handle. Bytes written here are
// indented like any other output. Under VerbosityMute it discards everything.
func (c *Context) Out() io.Writer {
	if c.Verbosity() == VerbosityMute {
		return io.Discard
	}
	return c.decorator().Out()
}

// Err returns the decorated standard error handle.
func (c *Context) Err() io.Writer {
	if c.Verbosity() == VerbosityMute {
		return io.Discard
	}
	return c.decorator().Err()
}

// FlushOutput flushes both decorated handles when they buffer.
func (c *Context) FlushOutput() {
	flush(c.Out())
	flush(c.Err())
}

func (c *Context) SetVerbosity(v Verbosity) {
	c.verbosity.Store(int32(v))
}

func (c *Context) Verbosity() Verbosity {
	return Verbosity(c.verbosity.Load())
}

// IsVerbose reports whether verbose messages are emitted.
func (c *Context) IsVerbose() bool {
	return c.Verbosity() >= VerbosityVerbose
}

func (c *Context) IsDebug() bool {
	return c.Verbosity() == VerbosityDebug
}

func (c *Context) SetShowTaskDuration(show bool) {
	c.showDuration.Store(show)
}

func (c *Context) ShowTaskDuration() bool {
	return c.showDuration.Load()
}

func (c *Context) SetColor(enabled bool) {
	c.color.Store(enabled)
}

func (c *Context) Color() bool {
	return c.color.Load()
}

// Depth returns the number of currently open tasks.
func (c *Context) Depth() int {
	return int(c.depth.Load())
}

func (c *Context) Info(format string, args ...any) {
	c.consume(newEvent(KindInfo, sprintf(format, args)))
}

func (c *Context) Warn(format string, args ...any) {
	c.consume(newEvent(KindWarn, sprintf(format, args)))
}

func (c *Context) Error(format string, args ...any) {
	c.consume(newEvent(KindError, sprintf(format, args)))
}

func (c *Context) Verbose(format string, args ...any) {
	if c.IsVerbose() {
		c.consume(newEvent(KindVerbose, sprintf(format, args)))
	}
}

func (c *Context) Debug(format string, args ...any) {
	if c.IsDebug() {
		c.consume(newEvent(KindDebug, sprintf(format, args)))
	}
}

// Progress emits a progress fragment. Decorators print it without a line break.
func (c *Context) Progress(message string) {
	c.consume(newEvent(KindProgress, message))
}

// Emit hands a prebuilt event to the active decorator, subject to the
// verbosity gate. It is the entry point for events received from elsewhere,
// such as a relay.
func (c *Context) Emit(ev Event) {
	c.consume(ev)
}

func (c *Context) consume(ev Event) {
	if !c.Verbosity().accepts(ev.Kind) {
		return
	}
	c.decorator().Handle(ev)
}

// Fork returns a context for an independent chain of tasks. The fork shares
// settings and real targets with c, starts at c's current depth with an empty
// task stack, and gets its own decorator so its margins are computed from its
// own depth. A fork of a context without a style discards events.
func (c *Context) Fork() *Context {
	c.mu.Lock()
	child := &Context{
		style:      c.style,
		targetOut:  c.targetOut,
		targetErr:  c.targetErr,
		stderrOnly: c.stderrOnly,
		now:        c.now,
	}
	c.mu.Unlock()

	child.verbosity.Store(c.verbosity.Load())
	child.showDuration.Store(c.showDuration.Load())
	child.color.Store(c.color.Load())
	child.depth.Store(c.depth.Load())
	child.active.Store(&activeDecorator{d: noOpDecorator{}})
	if child.style != "" {
		child.SetStyle(child.style)
	}
	return child
}

func sprintf(format string, args []any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
