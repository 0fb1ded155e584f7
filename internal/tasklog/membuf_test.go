package tasklog

import (
	"errors"
	"testing"
)

func TestMemoryBufferHoldsOutput(t *testing.T) {
	t.Parallel()
	c, out, _ := newTestContext(t, StyleIndent)

	if err := c.ActivateMemoryBuffer(); err != nil {
		t.Fatalf("ActivateMemoryBuffer: %v", err)
	}
	if err := c.ActivateMemoryBuffer(); !errors.Is(err, ErrBufferActive) {
		t.Errorf("second activate error = %v, want ErrBufferActive", err)
	}

	c.StartTask("Quiet")
	c.Info("buffered")
	c.Done()
	if out.Len() != 0 {
		t.Fatalf("out = %q before flush, want empty", out.String())
	}

	if err := c.FlushMemoryBuffer(); err != nil {
		t.Fatalf("FlushMemoryBuffer: %v", err)
	}
	want := "Task: Quiet\n      buffered\n"
	if got := out.String(); got != want {
		t.Errorf("out = %q, want %q", got, want)
	}

	// Flushing drains the buffer.
	if err := c.FlushMemoryBuffer(); err != nil {
		t.Fatalf("second FlushMemoryBuffer: %v", err)
	}
	if got := out.String(); got != want {
		t.Errorf("out after second flush = %q, want %q", got, want)
	}
}

func TestMemoryBufferInactivate(t *testing.T) {
	t.Parallel()
	c, out, _ := newTestContext(t, StyleFlat)
	before := c.Decorator()

	if err := c.InactivateMemoryBuffer(); !errors.Is(err, ErrBufferInactive) {
		t.Errorf("inactivate without buffer error = %v, want ErrBufferInactive", err)
	}
	if err := c.FlushMemoryBuffer(); !errors.Is(err, ErrBufferInactive) {
		t.Errorf("flush without buffer error = %v, want ErrBufferInactive", err)
	}

	c.ActivateMemoryBuffer()
	if !c.MemoryBufferActive() {
		t.Fatal("MemoryBufferActive = false after activate")
	}
	c.Info("discarded")
	if err := c.InactivateMemoryBuffer(); err != nil {
		t.Fatalf("InactivateMemoryBuffer: %v", err)
	}
	c.Info("direct")

	if got, want := out.String(), "direct\n"; got != want {
		t.Errorf("out = %q, want %q", got, want)
	}
	if c.Decorator() != before {
		t.Error("decorator changed across activate and inactivate")
	}
	if c.Style() != StyleFlat {
		t.Errorf("Style = %q, want flat", c.Style())
	}
}

func TestMemoryBufferKeepsNumberedLabels(t *testing.T) {
	t.Parallel()
	c, out, _ := newTestContext(t, StyleNumber)

	c.StartTask("A")
	if err := c.ActivateMemoryBuffer(); err != nil {
		t.Fatalf("ActivateMemoryBuffer: %v", err)
	}
	c.StartTask("B")
	c.Done()
	if err := c.FlushMemoryBuffer(); err != nil {
		t.Fatalf("FlushMemoryBuffer: %v", err)
	}
	if err := c.InactivateMemoryBuffer(); err != nil {
		t.Fatalf("InactivateMemoryBuffer: %v", err)
	}
	c.StartTask("C")
	c.Done()
	c.Done()
	c.StartTask("D")

	want := "[1] Task: A\n[1.1] Task: B\n[1.2] Task: C\n[2] Task: D\n"
	if got := out.String(); got != want {
		t.Errorf("out = %q, want %q", got, want)
	}
}
