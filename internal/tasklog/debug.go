package tasklog

import (
	"fmt"
	"io"
)

// Debug prints the raw event stream, one event per line, for diagnosing
// decorator problems.
type Debug struct {
	c   *Context
	out io.Writer
	err io.Writer
}

func (d *Debug) Init(c *Context, out, err io.Writer) {
	d.c = c
	d.out = out
	d.err = err
}

func (d *Debug) Out() io.Writer { return d.out }
func (d *Debug) Err() io.Writer { return d.err }

func (d *Debug) Handle(ev Event) {
	w := d.out
	if ev.Kind == KindError || ev.Kind == KindWarn {
		w = d.err
	}
	if ev.Kind == KindEndTask {
		fmt.Fprintf(w, "%s depth=%d %s duration=%dms\n", ev.Kind, d.c.Depth(), ev.Message, ev.DurationMillis)
		return
	}
	fmt.Fprintf(w, "%s depth=%d %s\n", ev.Kind, d.c.Depth(), ev.Message)
}
