package tasklog

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
)

// TimerGlyph prefixes task duration lines.
const TimerGlyph = "⏱"

// FormatDuration renders elapsed milliseconds for duration lines.
func FormatDuration(millis int64) string {
	d := time.Duration(millis) * time.Millisecond
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", millis)
	case d < time.Minute:
		return fmt.Sprintf("%.3fs", d.Seconds())
	default:
		m := int(d / time.Minute)
		s := int((d % time.Minute) / time.Second)
		return fmt.Sprintf("%dm%02ds", m, s)
	}
}

func durationLine(millis int64) string {
	return TimerGlyph + " " + FormatDuration(millis)
}

// paint applies colour attributes when the context has colour enabled.
func paint(c *Context, s string, attrs ...color.Attribute) string {
	if !c.Color() || s == "" {
		return s
	}
	col := color.New(attrs...)
	col.EnableColor()
	return col.Sprint(s)
}

type flusher interface {
	Flush() error
}

func flush(w io.Writer) {
	switch f := w.(type) {
	case flusher:
		_ = f.Flush()
	case *os.File:
		_ = f.Sync()
	}
}
