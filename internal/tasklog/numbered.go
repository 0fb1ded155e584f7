package tasklog

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
)

// Numbered labels every task with its position in the task tree ("1", "1.2",
// "2"...) and prefixes messages with the label of the enclosing task.
type Numbered struct {
	c        *Context
	out      io.Writer
	err      io.Writer
	path     []int
	children []int
}

// Init binds n to new targets. The task tree survives re-initialisation, so
// labels carry on across a memory buffer or a switch to stderr.
func (n *Numbered) Init(c *Context, out, err io.Writer) {
	n.c = c
	n.out = out
	n.err = err
	if n.children == nil {
		n.children = []int{0}
	}
}

func (n *Numbered) Out() io.Writer { return n.out }
func (n *Numbered) Err() io.Writer { return n.err }

func (n *Numbered) Handle(ev Event) {
	switch ev.Kind {
	case KindStartTask, KindStartTaskVerbose:
		top := len(n.children) - 1
		n.children[top]++
		n.path = append(n.path, n.children[top])
		n.children = append(n.children, 0)
		fmt.Fprintf(n.out, "[%s] %s\n", n.label(), paint(n.c, "Task: "+ev.Message, color.Bold))
	case KindEndTask:
		label := n.label()
		if len(n.path) > 0 {
			n.path = n.path[:len(n.path)-1]
			n.children = n.children[:len(n.children)-1]
		}
		msg := ev.Message
		if n.c.ShowTaskDuration() {
			timing := durationLine(ev.DurationMillis)
			if msg == "" {
				msg = timing
			} else {
				msg += " (" + timing + ")"
			}
		}
		if msg == "" {
			return
		}
		if label == "" {
			fmt.Fprintln(n.out, msg)
			return
		}
		fmt.Fprintf(n.out, "[%s] %s\n", label, msg)
	case KindError:
		n.line(n.err, paint(n.c, "Error: ", color.FgRed)+ev.Message)
	case KindWarn:
		n.line(n.err, paint(n.c, "WARN: ", color.FgYellow)+ev.Message)
	case KindProgress:
		io.WriteString(n.out, ev.Message)
	default:
		n.line(n.out, ev.Message)
	}
}

func (n *Numbered) line(w io.Writer, msg string) {
	if label := n.label(); label != "" {
		fmt.Fprintf(w, "[%s] %s\n", label, msg)
		return
	}
	fmt.Fprintln(w, msg)
}

func (n *Numbered) label() string {
	parts := make([]string, len(n.path))
	for i, p := range n.path {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ".")
}
