package tasklog

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"time"
)

// ErrUnmatchedEndTask is returned when a task is ended without a matching
// start. It indicates a bug in the caller and should abort the build.
var ErrUnmatchedEndTask = errors.New("no start task found matching this end task")

// DurationToken is replaced by the task duration in milliseconds when it
// appears in an end task message.
const DurationToken = "%d"

// Task is the token returned by StartTask. A nil *Task is valid and ends as a
// no-op; it is returned when the start was filtered out by the verbosity gate.
type Task struct {
	ctx     *Context
	message string
	start   time.Time
}

// Message returns the text the task was started with.
func (t *Task) Message() string {
	if t == nil {
		return ""
	}
	return t.message
}

// End closes t, which must be the innermost open task of its context.
func (t *Task) End(message string) error {
	if t == nil {
		return nil
	}
	c := t.ctx
	if !c.Verbosity().accepts(KindEndTask) {
		return nil
	}

	c.mu.Lock()
	n := len(c.stack)
	if n == 0 || c.stack[n-1] != t {
		c.mu.Unlock()
		c.reportUnmatched()
		return fmt.Errorf("%w: task %q is not the innermost open task", ErrUnmatchedEndTask, t.message)
	}
	c.stack = c.stack[:n-1]
	c.mu.Unlock()

	c.finish(t, message)
	return nil
}

// Done closes t with an empty message.
func (t *Task) Done() error {
	return t.End("")
}

// StartTask announces a task. Output emitted until the matching EndTask is
// nested one level deeper.
func (c *Context) StartTask(format string, args ...any) *Task {
	return c.startTask(KindStartTask, sprintf(format, args))
}

// VerboseStartTask starts a task only when the context is verbose. Close it
// with VerboseEndTask.
func (c *Context) VerboseStartTask(format string, args ...any) *Task {
	if !c.IsVerbose() {
		return nil
	}
	return c.startTask(KindStartTaskVerbose, sprintf(format, args))
}

// DebugStartTask starts a task only at debug verbosity. Close it with
// DebugEndTask.
func (c *Context) DebugStartTask(format string, args ...any) *Task {
	if !c.IsDebug() {
		return nil
	}
	return c.startTask(KindStartTaskVerbose, sprintf(format, args))
}

// The start event is rendered before the depth is incremented, so the banner
// sits at the parent's level.
func (c *Context) startTask(kind Kind, message string) *Task {
	c.consume(newEvent(kind, message))
	if !c.Verbosity().accepts(kind) {
		return nil
	}
	t := &Task{ctx: c, message: message, start: c.now()}
	c.mu.Lock()
	c.stack = append(c.stack, t)
	c.mu.Unlock()
	c.depth.Add(1)
	return t
}

// EndTask closes the innermost open task. A message containing %d has it
// replaced by the task duration in milliseconds.
func (c *Context) EndTask(message string) error {
	if !c.Verbosity().accepts(KindEndTask) {
		return nil
	}

	c.mu.Lock()
	n := len(c.stack)
	if n == 0 {
		c.mu.Unlock()
		c.reportUnmatched()
		return fmt.Errorf("%w: check for an end task without a matching start task", ErrUnmatchedEndTask)
	}
	t := c.stack[n-1]
	c.stack = c.stack[:n-1]
	c.mu.Unlock()

	c.finish(t, message)
	return nil
}

// Done closes the innermost open task with an empty message.
func (c *Context) Done() error {
	return c.EndTask("")
}

func (c *Context) VerboseEndTask(message string) error {
	if !c.IsVerbose() {
		return nil
	}
	return c.EndTask(message)
}

func (c *Context) DebugEndTask(message string) error {
	if !c.IsDebug() {
		return nil
	}
	return c.EndTask(message)
}

func (c *Context) finish(t *Task, message string) {
	millis := c.now().Sub(t.start).Milliseconds()
	c.depth.Add(-1)
	if strings.Contains(message, DurationToken) {
		message = strings.ReplaceAll(message, DurationToken, strconv.FormatInt(millis, 10))
	}
	c.consume(newEndTaskEvent(message, millis))
}

// reportUnmatched writes the calling goroutine's stack to the real error
// target before the error is returned.
func (c *Context) reportUnmatched() {
	c.mu.Lock()
	w := c.targetErr
	c.mu.Unlock()
	fmt.Fprintf(w, "end task called with no open task\n%s", debug.Stack())
}
