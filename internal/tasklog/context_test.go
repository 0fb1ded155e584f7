package tasklog

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func newTestContext(t *testing.T, style Style, opts ...Option) (*Context, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var out, errb bytes.Buffer
	all := append([]Option{WithOutput(&out, &errb), WithStyle(style)}, opts...)
	return New(all...), &out, &errb
}

func TestIndentTaskBody(t *testing.T) {
	t.Parallel()
	c, out, _ := newTestContext(t, StyleIndent)

	c.StartTask("Build")
	c.Info("compiling")
	if err := c.Done(); err != nil {
		t.Fatalf("Done: %v", err)
	}

	want := "Task: Build\n      compiling\n"
	if got := out.String(); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
	if c.Depth() != 0 {
		t.Errorf("Depth = %d, want 0", c.Depth())
	}
}

func TestIndentNestedTasks(t *testing.T) {
	t.Parallel()
	c, out, _ := newTestContext(t, StyleIndent)

	c.StartTask("A")
	c.Info("a")
	c.StartTask("B")
	c.Info("b")
	c.Done()
	c.Info("c")
	c.Done()
	c.Info("top")

	want := "Task: A\n" +
		"      a\n" +
		"      Task: B\n" +
		"            b\n" +
		"      c\n" +
		"top\n"
	if got := out.String(); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestIndentMarginPerDepth(t *testing.T) {
	t.Parallel()
	for depth := 0; depth <= 3; depth++ {
		c, out, _ := newTestContext(t, StyleIndent)
		for i := 0; i < depth; i++ {
			c.StartTask("level")
		}
		out.Reset()
		c.Info("x")
		want := strings.Repeat(Margin, depth) + "x\n"
		if got := out.String(); got != want {
			t.Errorf("depth %d: output = %q, want %q", depth, got, want)
		}
	}
}

func TestIndentRawWritesUseDepthAtLineStart(t *testing.T) {
	t.Parallel()
	c, out, _ := newTestContext(t, StyleIndent)

	c.StartTask("A")
	io.WriteString(c.Out(), "partial")
	c.Done()
	io.WriteString(c.Out(), " rest\nnext\n")

	want := "Task: A\n      partial rest\nnext\n"
	if got := out.String(); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestIndentRawErrWrites(t *testing.T) {
	t.Parallel()
	c, _, errb := newTestContext(t, StyleIndent)

	c.StartTask("A")
	io.WriteString(c.Err(), "line1\nline2\n")
	c.Done()

	want := "      line1\n      line2\n"
	if got := errb.String(); got != want {
		t.Errorf("err output = %q, want %q", got, want)
	}
}

func TestIndentWarnAndError(t *testing.T) {
	t.Parallel()
	c, out, errb := newTestContext(t, StyleIndent)

	c.Warn("careful")
	c.Error("broken %d", 3)

	if out.Len() != 0 {
		t.Errorf("out = %q, want empty", out.String())
	}
	want := "WARN: careful\nError: broken 3\n"
	if got := errb.String(); got != want {
		t.Errorf("err output = %q, want %q", got, want)
	}
}

func TestIndentProgress(t *testing.T) {
	t.Parallel()
	c, out, _ := newTestContext(t, StyleIndent)

	c.Progress("...")
	c.Progress("..")
	c.Info("done")

	if got, want := out.String(), ".....done\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestEndTaskDurationToken(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	c, out, _ := newTestContext(t, StyleIndent, WithClock(clock.Now))

	c.StartTask("Compile")
	clock.Advance(250 * time.Millisecond)
	if err := c.EndTask("took %d ms (%d)"); err != nil {
		t.Fatalf("EndTask: %v", err)
	}

	want := "Task: Compile\ntook 250 ms (250)\n"
	if got := out.String(); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestEndTaskDurationLine(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	c, out, _ := newTestContext(t, StyleIndent, WithClock(clock.Now))

	c.StartTask("Compile")
	clock.Advance(42 * time.Millisecond)
	c.Done()

	if got, want := out.String(), "Task: Compile\n"; got != want {
		t.Errorf("without durations: output = %q, want %q", got, want)
	}

	out.Reset()
	c.SetShowTaskDuration(true)
	c.StartTask("Link")
	clock.Advance(1500 * time.Millisecond)
	c.EndTask("linked")

	want := "Task: Link\nlinked\n" + TimerGlyph + " 1.500s\n"
	if got := out.String(); got != want {
		t.Errorf("with durations: output = %q, want %q", got, want)
	}
}

func TestEndTaskWithoutStart(t *testing.T) {
	t.Parallel()
	c, out, errb := newTestContext(t, StyleIndent)

	err := c.EndTask("orphan")
	if !errors.Is(err, ErrUnmatchedEndTask) {
		t.Fatalf("EndTask error = %v, want ErrUnmatchedEndTask", err)
	}
	if c.Depth() != 0 {
		t.Errorf("Depth = %d, want 0", c.Depth())
	}
	if out.Len() != 0 {
		t.Errorf("out = %q, want empty", out.String())
	}
	if !strings.Contains(errb.String(), "end task called with no open task") {
		t.Errorf("err output missing diagnostic: %q", errb.String())
	}
}

func TestTaskEndOutOfOrder(t *testing.T) {
	t.Parallel()
	c, _, _ := newTestContext(t, StyleIndent)

	outer := c.StartTask("outer")
	inner := c.StartTask("inner")

	if err := outer.Done(); !errors.Is(err, ErrUnmatchedEndTask) {
		t.Fatalf("outer.Done error = %v, want ErrUnmatchedEndTask", err)
	}
	if c.Depth() != 2 {
		t.Fatalf("Depth = %d, want 2", c.Depth())
	}
	if err := inner.Done(); err != nil {
		t.Fatalf("inner.Done: %v", err)
	}
	if err := outer.Done(); err != nil {
		t.Fatalf("outer.Done: %v", err)
	}
	if c.Depth() != 0 {
		t.Errorf("Depth = %d, want 0", c.Depth())
	}
}

func TestVerbosityGate(t *testing.T) {
	t.Parallel()

	t.Run("warn and error", func(t *testing.T) {
		t.Parallel()
		c, out, errb := newTestContext(t, StyleFlat, WithVerbosity(VerbosityWarnAndError))
		task := c.StartTask("hidden")
		c.Info("hidden")
		c.Warn("shown")
		if task != nil {
			t.Error("StartTask returned a task under warn verbosity")
		}
		if err := c.Done(); err != nil {
			t.Errorf("Done: %v", err)
		}
		if out.Len() != 0 {
			t.Errorf("out = %q, want empty", out.String())
		}
		if got := errb.String(); got != "shown\n" {
			t.Errorf("err = %q, want %q", got, "shown\n")
		}
	})

	t.Run("mute", func(t *testing.T) {
		t.Parallel()
		c, out, errb := newTestContext(t, StyleFlat, WithVerbosity(VerbosityMute))
		c.Error("nothing")
		io.WriteString(c.Out(), "raw")
		io.WriteString(c.Err(), "raw")
		if out.Len() != 0 || errb.Len() != 0 {
			t.Errorf("muted context wrote out=%q err=%q", out.String(), errb.String())
		}
	})

	t.Run("verbose and debug", func(t *testing.T) {
		t.Parallel()
		c, out, _ := newTestContext(t, StyleFlat)
		c.Verbose("v1")
		c.Debug("d1")
		c.SetVerbosity(VerbosityVerbose)
		c.Verbose("v2")
		c.Debug("d2")
		c.SetVerbosity(VerbosityDebug)
		c.Debug("d3")
		if got, want := out.String(), "v2\nd3\n"; got != want {
			t.Errorf("out = %q, want %q", got, want)
		}
	})

	t.Run("verbose tasks", func(t *testing.T) {
		t.Parallel()
		c, out, _ := newTestContext(t, StyleFlat)
		if task := c.VerboseStartTask("quiet"); task != nil {
			t.Error("VerboseStartTask returned a task at info verbosity")
		}
		c.VerboseEndTask("")
		if c.Depth() != 0 {
			t.Errorf("Depth = %d, want 0", c.Depth())
		}
		c.SetVerbosity(VerbosityVerbose)
		c.VerboseStartTask("loud")
		c.VerboseEndTask("")
		if got, want := out.String(), "Task: loud\n"; got != want {
			t.Errorf("out = %q, want %q", got, want)
		}
	})
}

func TestLogOnStderr(t *testing.T) {
	t.Parallel()
	c, out, errb := newTestContext(t, StyleFlat, WithLogOnStderr(true))

	c.Info("to err")

	if out.Len() != 0 {
		t.Errorf("out = %q, want empty", out.String())
	}
	if got := errb.String(); got != "to err\n" {
		t.Errorf("err = %q, want %q", got, "to err\n")
	}
}

func TestColorOnlyWhenEnabled(t *testing.T) {
	t.Parallel()
	c, _, errb := newTestContext(t, StyleIndent)

	c.Warn("plain")
	if strings.Contains(errb.String(), "\x1b[") {
		t.Errorf("colour disabled but output has escapes: %q", errb.String())
	}

	errb.Reset()
	c.SetColor(true)
	c.Warn("painted")
	if !strings.Contains(errb.String(), "\x1b[") {
		t.Errorf("colour enabled but output has no escapes: %q", errb.String())
	}
}

func TestRestoreDiscards(t *testing.T) {
	t.Parallel()
	c, out, _ := newTestContext(t, StyleFlat)

	c.Restore()
	c.Info("dropped")
	io.WriteString(c.Out(), "dropped")

	if out.Len() != 0 {
		t.Errorf("out = %q, want empty", out.String())
	}
	if c.Style() != "" {
		t.Errorf("Style = %q, want empty", c.Style())
	}
}

func TestForkHasOwnDepth(t *testing.T) {
	t.Parallel()
	c, out, _ := newTestContext(t, StyleIndent)

	c.StartTask("A")
	f := c.Fork()
	f.StartTask("B")
	f.Info("inside B")

	if f.Depth() != 2 {
		t.Errorf("fork Depth = %d, want 2", f.Depth())
	}
	if c.Depth() != 1 {
		t.Errorf("parent Depth = %d, want 1", c.Depth())
	}
	if err := f.Done(); err != nil {
		t.Fatalf("fork Done: %v", err)
	}
	if err := f.Done(); !errors.Is(err, ErrUnmatchedEndTask) {
		t.Errorf("second fork Done error = %v, want ErrUnmatchedEndTask", err)
	}
	c.Done()

	want := "Task: A\n      Task: B\n            inside B\n"
	if got := out.String(); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()
	tests := []struct {
		millis int64
		want   string
	}{
		{0, "0ms"},
		{999, "999ms"},
		{1500, "1.500s"},
		{59999, "59.999s"},
		{61000, "1m01s"},
		{3725000, "62m05s"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.millis); got != tt.want {
			t.Errorf("FormatDuration(%d) = %q, want %q", tt.millis, got, tt.want)
		}
	}
}

func TestParseVerbosity(t *testing.T) {
	t.Parallel()
	tests := map[string]Verbosity{
		"":        VerbosityInfo,
		"mute":    VerbosityMute,
		"quiet":   VerbosityMute,
		"WARN":    VerbosityWarnAndError,
		"info":    VerbosityInfo,
		"verbose": VerbosityVerbose,
		" debug ": VerbosityDebug,
	}
	for in, want := range tests {
		got, err := ParseVerbosity(in)
		if err != nil {
			t.Errorf("ParseVerbosity(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseVerbosity(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseVerbosity("loud"); err == nil {
		t.Error("expected error for unknown verbosity")
	}
}

func TestParseStyle(t *testing.T) {
	t.Parallel()
	for _, in := range []string{"indent", "flat", "number", "debug"} {
		got, err := ParseStyle(in)
		if err != nil {
			t.Errorf("ParseStyle(%q): %v", in, err)
		}
		if string(got) != in {
			t.Errorf("ParseStyle(%q) = %q", in, got)
		}
	}
	if got, _ := ParseStyle(""); got != StyleIndent {
		t.Errorf("ParseStyle(\"\") = %q, want indent", got)
	}
	if _, err := ParseStyle("tree"); err == nil {
		t.Error("expected error for unknown style")
	}
}
