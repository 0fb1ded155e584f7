package tasklog

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
)

func TestRelayPreservesOrder(t *testing.T) {
	t.Parallel()
	var out, errb bytes.Buffer
	c := New(WithOutput(&out, &errb))
	r := NewRelay(&Flat{}, 4)
	c.SetDecorator(r)

	var want strings.Builder
	for i := 0; i < 50; i++ {
		c.Info("line %d", i)
		fmt.Fprintf(&want, "line %d\n", i)
	}
	r.Close()

	if got := out.String(); got != want.String() {
		t.Errorf("out = %q, want %q", got, want.String())
	}
}

func TestRelayDropsAfterClose(t *testing.T) {
	t.Parallel()
	var out, errb bytes.Buffer
	c := New(WithOutput(&out, &errb))
	r := NewRelay(&Flat{}, 1)
	c.SetDecorator(r)

	c.Info("kept")
	r.Close()
	c.Info("dropped")
	r.Close()

	if got, want := out.String(), "kept\n"; got != want {
		t.Errorf("out = %q, want %q", got, want)
	}
}

func TestRelayFromForks(t *testing.T) {
	t.Parallel()
	var out, errb bytes.Buffer
	rec := &recorder{}
	r := NewRelay(rec, 16)
	sink := New(WithOutput(&out, &errb))
	sink.SetDecorator(r)

	done := make(chan struct{})
	go func() {
		defer close(done)
		w := New(WithOutput(&out, &errb))
		w.SetDecorator(forward{to: sink})
		w.StartTask("worker")
		w.Info("working")
		w.Done()
	}()
	<-done
	r.Close()

	if len(rec.events) != 3 {
		t.Fatalf("got %d events, want 3", len(rec.events))
	}
	if rec.events[0].Message != "worker" || rec.events[2].Kind != KindEndTask {
		t.Errorf("unexpected events: %+v", rec.events)
	}
}

// forward passes events to another context.
type forward struct {
	noOpDecorator
	to *Context
}

func (f forward) Handle(ev Event) { f.to.Emit(ev) }

func TestRelayIndentKeepsSenderDepth(t *testing.T) {
	t.Parallel()
	var out, errb bytes.Buffer
	c := New(WithOutput(&out, &errb))
	r := NewRelay(&Indent{}, 16)
	c.SetDecorator(r)

	c.StartTask("Build")
	c.Info("compiling")
	fmt.Fprintln(c.Out(), "raw line")
	c.Done()
	c.Info("after")
	r.Close()

	want := "Task: Build\n      compiling\n      raw line\nafter\n"
	if got := out.String(); got != want {
		t.Errorf("out = %q, want %q", got, want)
	}
}

func TestRelayIndentNested(t *testing.T) {
	t.Parallel()
	var out, errb bytes.Buffer
	c := New(WithOutput(&out, &errb))
	r := NewRelay(&Indent{}, 1)
	c.SetDecorator(r)

	c.StartTask("outer")
	c.StartTask("inner")
	c.Warn("careful")
	c.Done()
	c.Done()
	r.Close()

	if got, want := out.String(), "Task: outer\n      Task: inner\n"; got != want {
		t.Errorf("out = %q, want %q", got, want)
	}
	if got, want := errb.String(), "            WARN: careful\n"; got != want {
		t.Errorf("err = %q, want %q", got, want)
	}
}
