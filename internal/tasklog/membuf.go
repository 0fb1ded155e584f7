package tasklog

import (
	"errors"
	"io"

	"github.com/benaskins/kiln/internal/logbuf"
)

var (
	// ErrBufferActive is returned when activating an already active memory buffer.
	ErrBufferActive = errors.New("memory buffer already active")

	// ErrBufferInactive is returned when flushing or inactivating a memory
	// buffer that is not active.
	ErrBufferInactive = errors.New("memory buffer not active")
)

// memoryBuffer wraps a decorator so that everything it renders lands in
// memory instead of the real targets, which are remembered for Flush.
type memoryBuffer struct {
	wrapped Decorator
	buf     *logbuf.Buffer
	realOut io.Writer
	realErr io.Writer
}

func (m *memoryBuffer) Init(c *Context, out, err io.Writer) {
	m.realOut = out
	m.realErr = err
	m.wrapped.Init(c, m.buf, m.buf)
}

func (m *memoryBuffer) Out() io.Writer  { return m.wrapped.Out() }
func (m *memoryBuffer) Err() io.Writer  { return m.wrapped.Err() }
func (m *memoryBuffer) Handle(ev Event) { m.wrapped.Handle(ev) }

// ActivateMemoryBuffer diverts the active decorator's output into memory.
// Nothing reaches the real targets until FlushMemoryBuffer is called.
func (c *Context) ActivateMemoryBuffer() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.membuf != nil {
		return ErrBufferActive
	}
	m := &memoryBuffer{wrapped: c.decorator(), buf: logbuf.New()}
	c.install(m)
	c.membuf = m
	return nil
}

// InactivateMemoryBuffer reinstates the wrapped decorator on its real
// targets. Bytes still buffered are discarded.
func (c *Context) InactivateMemoryBuffer() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.membuf == nil {
		return ErrBufferInactive
	}
	c.install(c.membuf.wrapped)
	c.membuf = nil
	return nil
}

// FlushMemoryBuffer writes the buffered bytes verbatim to the real out target
// and empties the buffer.
func (c *Context) FlushMemoryBuffer() error {
	c.mu.Lock()
	m := c.membuf
	c.mu.Unlock()
	if m == nil {
		return ErrBufferInactive
	}
	_, err := m.buf.WriteTo(m.realOut)
	return err
}

// MemoryBufferActive reports whether output is currently being buffered.
func (c *Context) MemoryBufferActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.membuf != nil
}
