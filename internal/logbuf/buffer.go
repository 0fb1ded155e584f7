package logbuf

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"sync"
)

// Buffer is a thread-safe, unbounded byte buffer.
// It implements io.Writer so it can collect a process's output while
// another goroutine writes to the same destination.
type Buffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// New creates an empty buffer.
func New() *Buffer {
	return &Buffer{}
}

// Write implements io.Writer. Bytes are stored verbatim.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// Bytes returns a copy of the buffered bytes.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Clone(b.buf.Bytes())
}

// Len returns the number of buffered bytes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

// Reset discards the buffered bytes.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

// WriteTo drains the buffer into w. The buffer is empty afterwards even when w
// fails part way.
func (b *Buffer) WriteTo(w io.Writer) (int64, error) {
	b.mu.Lock()
	data := bytes.Clone(b.buf.Bytes())
	b.buf.Reset()
	b.mu.Unlock()

	n, err := w.Write(data)
	return int64(n), err
}

// Lines returns the complete and trailing partial lines, without newlines.
func (b *Buffer) Lines() []string {
	data := b.Bytes()
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), len(data)+1)
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	return lines
}

// Last returns the last n lines. If fewer lines exist, returns all of them.
func (b *Buffer) Last(n int) []string {
	all := b.Lines()
	if n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}
