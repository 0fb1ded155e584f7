package tasklog

import (
	"fmt"
	"io"
)

// Flat prints events one per line with no indentation and no colour.
type Flat struct {
	out io.Writer
	err io.Writer
}

func (f *Flat) Init(_ *Context, out, err io.Writer) {
	f.out = out
	f.err = err
}

func (f *Flat) Out() io.Writer { return f.out }
func (f *Flat) Err() io.Writer { return f.err }

func (f *Flat) Handle(ev Event) {
	switch ev.Kind {
	case KindStartTask, KindStartTaskVerbose:
		fmt.Fprintln(f.out, "Task: "+ev.Message)
	case KindEndTask:
		if ev.Message != "" {
			fmt.Fprintln(f.out, ev.Message)
		}
	case KindError, KindWarn:
		fmt.Fprintln(f.err, ev.Message)
	case KindProgress:
		io.WriteString(f.out, ev.Message)
	default:
		fmt.Fprintln(f.out, ev.Message)
	}
}
