package tasklog

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
)

// SlogHandler returns a slog.Handler that emits records as events of this
// context: Debug records become DEBUG events, Info INFO, Warn WARN and Error
// ERROR. Attributes follow the message as key=value pairs.
func (c *Context) SlogHandler() slog.Handler {
	return &slogHandler{c: c}
}

type slogHandler struct {
	c      *Context
	attrs  []slog.Attr
	groups string
}

func kindForLevel(l slog.Level) Kind {
	switch {
	case l >= slog.LevelError:
		return KindError
	case l >= slog.LevelWarn:
		return KindWarn
	case l >= slog.LevelInfo:
		return KindInfo
	default:
		return KindDebug
	}
}

func (h *slogHandler) Enabled(_ context.Context, l slog.Level) bool {
	return h.c.Verbosity().accepts(kindForLevel(l))
}

func (h *slogHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Message)
	for _, a := range h.attrs {
		appendAttr(&b, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		appendAttr(&b, h.groups, a)
		return true
	})
	h.c.consume(newEvent(kindForLevel(r.Level), b.String()))
	return nil
}

func (h *slogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	nh.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	nh.attrs = append(nh.attrs, h.attrs...)
	for _, a := range attrs {
		if h.groups != "" {
			a.Key = h.groups + a.Key
		}
		nh.attrs = append(nh.attrs, a)
	}
	return &nh
}

func (h *slogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := *h
	nh.groups = h.groups + name + "."
	return &nh
}

func appendAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			appendAttr(b, prefix+a.Key+".", ga)
		}
		return
	}
	b.WriteByte(' ')
	b.WriteString(prefix + a.Key)
	b.WriteByte('=')
	v := a.Value.String()
	if strings.ContainsAny(v, " \t\n\"=") || v == "" {
		v = strconv.Quote(v)
	}
	b.WriteString(v)
}
