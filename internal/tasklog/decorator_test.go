package tasklog

import (
	"encoding/json"
	"io"
	"testing"
	"time"
)

func TestFlatDecorator(t *testing.T) {
	t.Parallel()
	c, out, errb := newTestContext(t, StyleFlat)

	c.StartTask("Build")
	c.Info("compiling")
	c.Warn("slow disk")
	c.EndTask("done")

	if got, want := out.String(), "Task: Build\ncompiling\ndone\n"; got != want {
		t.Errorf("out = %q, want %q", got, want)
	}
	if got, want := errb.String(), "slow disk\n"; got != want {
		t.Errorf("err = %q, want %q", got, want)
	}
}

func TestNumberedDecorator(t *testing.T) {
	t.Parallel()
	c, out, _ := newTestContext(t, StyleNumber)

	c.Info("before")
	c.StartTask("A")
	c.Info("x")
	c.StartTask("B")
	c.Info("y")
	c.EndTask("ok")
	c.Done()
	c.StartTask("C")
	c.Done()

	want := "before\n" +
		"[1] Task: A\n" +
		"[1] x\n" +
		"[1.1] Task: B\n" +
		"[1.1] y\n" +
		"[1.1] ok\n" +
		"[2] Task: C\n"
	if got := out.String(); got != want {
		t.Errorf("out = %q, want %q", got, want)
	}
}

func TestNumberedDecoratorDuration(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	c, out, _ := newTestContext(t, StyleNumber, WithClock(clock.Now), WithShowTaskDuration(true))

	c.StartTask("A")
	clock.Advance(12 * time.Millisecond)
	c.EndTask("built")

	want := "[1] Task: A\n[1] built (" + TimerGlyph + " 12ms)\n"
	if got := out.String(); got != want {
		t.Errorf("out = %q, want %q", got, want)
	}
}

func TestDebugDecorator(t *testing.T) {
	t.Parallel()
	c, out, errb := newTestContext(t, StyleDebug)

	c.StartTask("Build")
	c.Info("compiling")
	c.Warn("hot")
	c.EndTask("finished")

	want := "START_TASK depth=0 Build\n" +
		"INFO depth=1 compiling\n" +
		"END_TASK depth=0 finished duration=0ms\n"
	if got := out.String(); got != want {
		t.Errorf("out = %q, want %q", got, want)
	}
	if got, want := errb.String(), "WARN depth=1 hot\n"; got != want {
		t.Errorf("err = %q, want %q", got, want)
	}
}

func TestCustomDecorator(t *testing.T) {
	t.Parallel()
	c, _, _ := newTestContext(t, "")
	rec := &recorder{}
	c.SetDecorator(rec)

	c.StartTask("A")
	c.Debug("filtered")
	c.Info("kept")
	c.Done()

	kinds := []Kind{KindStartTask, KindInfo, KindEndTask}
	if len(rec.events) != len(kinds) {
		t.Fatalf("got %d events, want %d: %+v", len(rec.events), len(kinds), rec.events)
	}
	for i, k := range kinds {
		if rec.events[i].Kind != k {
			t.Errorf("event %d kind = %v, want %v", i, rec.events[i].Kind, k)
		}
	}
	if rec.events[1].DurationMillis != -1 {
		t.Errorf("info duration = %d, want -1", rec.events[1].DurationMillis)
	}
	if c.Style() != "" {
		t.Errorf("Style = %q, want empty for custom decorator", c.Style())
	}
}

func TestEventJSON(t *testing.T) {
	t.Parallel()
	data, err := json.Marshal(newEndTaskEvent("done", 7))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if got, want := string(data), `{"kind":"END_TASK","message":"done","duration_ms":7}`; got != want {
		t.Errorf("json = %s, want %s", got, want)
	}

	var ev Event
	if err := json.Unmarshal([]byte(`{"kind":"BOGUS"}`), &ev); err == nil {
		t.Error("expected error for unknown kind")
	}
}

// recorder is a decorator that keeps every event it receives.
type recorder struct {
	events []Event
}

func (r *recorder) Init(*Context, io.Writer, io.Writer) {}
func (r *recorder) Out() io.Writer                      { return io.Discard }
func (r *recorder) Err() io.Writer                      { return io.Discard }
func (r *recorder) Handle(ev Event)                     { r.events = append(r.events, ev) }
