package tasklog

import (
	"fmt"
	"io"
	"strings"
)

// Decorator renders events onto a pair of output handles.
//
// Init binds the decorator to the real targets. Out and Err return the
// handles raw output should be written to; they may wrap the targets, for
// example to insert a margin. Handle renders one event.
type Decorator interface {
	Init(c *Context, out, err io.Writer)
	Out() io.Writer
	Err() io.Writer
	Handle(ev Event)
}

// Style names one of the built-in decorators.
type Style string

const (
	StyleIndent Style = "indent"
	StyleFlat   Style = "flat"
	StyleNumber Style = "number"
	StyleDebug  Style = "debug"
)

// ParseStyle validates a style name from config or flags.
func ParseStyle(s string) (Style, error) {
	switch st := Style(strings.ToLower(strings.TrimSpace(s))); st {
	case StyleIndent, StyleFlat, StyleNumber, StyleDebug:
		return st, nil
	case "":
		return StyleIndent, nil
	default:
		return "", fmt.Errorf("unknown log style %q: must be indent, flat, number or debug", s)
	}
}

// New creates a fresh, uninitialised decorator for the style.
func (s Style) New() Decorator {
	switch s {
	case StyleFlat:
		return &Flat{}
	case StyleNumber:
		return &Numbered{}
	case StyleDebug:
		return &Debug{}
	default:
		return &Indent{}
	}
}

type noOpDecorator struct{}

func (noOpDecorator) Init(*Context, io.Writer, io.Writer) {}
func (noOpDecorator) Out() io.Writer                      { return io.Discard }
func (noOpDecorator) Err() io.Writer                      { return io.Discard }
func (noOpDecorator) Handle(Event)                        {}
