package tasklog

import (
	"io"
	"sync"
	"sync/atomic"
)

// Relay hands events to a decorator owned by a separate goroutine. Events and
// raw writes to Out and Err are passed by value over a channel and rendered in
// the order they were sent. Each one carries the sender's depth, colour and
// duration settings at send time, and the target renders with those values, so
// margins do not depend on how far the sender has moved on.
type Relay struct {
	target Decorator
	items  chan relayed
	done   chan struct{}

	src atomic.Pointer[Context]

	// renderMu guards target and view against re-initialisation while the
	// goroutine renders.
	renderMu sync.Mutex
	view     *Context

	mu     sync.RWMutex
	closed bool
}

type relayed struct {
	ev    Event
	raw   []byte
	toErr bool

	depth        int64
	color        bool
	showDuration bool
}

// NewRelay starts the goroutine rendering events on target. size is the
// channel capacity.
func NewRelay(target Decorator, size int) *Relay {
	r := &Relay{
		target: target,
		items:  make(chan relayed, size),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(r.done)
		for it := range r.items {
			r.render(it)
		}
	}()
	return r
}

// Init binds the target to a private view of c whose state is replayed from
// each relayed item.
func (r *Relay) Init(c *Context, out, err io.Writer) {
	view := &Context{targetOut: out, targetErr: err, now: c.now}
	view.verbosity.Store(c.verbosity.Load())
	view.active.Store(&activeDecorator{d: noOpDecorator{}})

	r.renderMu.Lock()
	r.view = view
	r.target.Init(view, out, err)
	r.renderMu.Unlock()
	r.src.Store(c)
}

func (r *Relay) Out() io.Writer { return relayWriter{r: r} }
func (r *Relay) Err() io.Writer { return relayWriter{r: r, toErr: true} }

// Handle queues ev. Events sent after Close are dropped.
func (r *Relay) Handle(ev Event) {
	r.send(relayed{ev: ev})
}

func (r *Relay) send(it relayed) {
	if c := r.src.Load(); c != nil {
		it.depth = c.depth.Load()
		it.color = c.Color()
		it.showDuration = c.ShowTaskDuration()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	r.items <- it
}

func (r *Relay) render(it relayed) {
	r.renderMu.Lock()
	defer r.renderMu.Unlock()
	if r.view != nil {
		r.view.depth.Store(it.depth)
		r.view.color.Store(it.color)
		r.view.showDuration.Store(it.showDuration)
	}
	switch {
	case it.raw == nil:
		r.target.Handle(it.ev)
	case it.toErr:
		r.target.Err().Write(it.raw)
	default:
		r.target.Out().Write(it.raw)
	}
}

// Close waits until every queued item has been rendered.
func (r *Relay) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return
	}
	r.closed = true
	close(r.items)
	r.mu.Unlock()
	<-r.done
}

// relayWriter queues a copy of every write. Writes after Close are dropped.
type relayWriter struct {
	r     *Relay
	toErr bool
}

func (w relayWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	w.r.send(relayed{raw: append([]byte{}, p...), toErr: w.toErr})
	return len(p), nil
}
