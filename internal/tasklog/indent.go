package tasklog

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Indent renders tasks as a tree: everything written between a task's start
// and end, including raw bytes from child processes, is shifted right by one
// Margin per open task.
type Indent struct {
	c   *Context
	out *marginWriter
	err *marginWriter
}

func (i *Indent) Init(c *Context, out, err io.Writer) {
	i.c = c
	i.out = newMarginWriter(out, c.Depth)
	i.err = newMarginWriter(err, c.Depth)
}

func (i *Indent) Out() io.Writer { return i.out }
func (i *Indent) Err() io.Writer { return i.err }

func (i *Indent) Handle(ev Event) {
	switch ev.Kind {
	case KindStartTask, KindStartTaskVerbose:
		i.err.Flush()
		fmt.Fprintln(i.out, paint(i.c, "Task: "+ev.Message, color.Bold))
		// The depth is incremented after this returns, so the body lands one
		// level deeper than the banner.
		i.out.setPending(true)
		i.err.setPending(true)
	case KindEndTask:
		if strings.TrimSpace(ev.Message) != "" {
			fmt.Fprintln(i.out, ev.Message)
		}
		if i.c.ShowTaskDuration() {
			fmt.Fprintln(i.out, paint(i.c, durationLine(ev.DurationMillis), color.FgHiBlack))
		}
	case KindWarn:
		fmt.Fprintln(i.err, paint(i.c, "WARN: ", color.FgYellow)+ev.Message)
	case KindError:
		fmt.Fprintln(i.err, paint(i.c, "Error: ", color.FgRed, color.Bold)+ev.Message)
	case KindVerbose, KindDebug:
		fmt.Fprintln(i.out, paint(i.c, ev.Message, color.FgHiBlack))
	case KindProgress:
		io.WriteString(i.out, ev.Message)
	default:
		fmt.Fprintln(i.out, ev.Message)
	}
}
