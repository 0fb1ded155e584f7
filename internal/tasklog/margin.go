package tasklog

import (
	"bytes"
	"io"
	"sync"
)

// Margin is the indentation written once per nesting level.
const Margin = "      "

// marginWriter inserts a margin at the start of every line. The margin width
// is read from depth when the first byte of the line is written, not when the
// previous line break was seen, so a task ending between two writes changes
// the margin of the next line only.
type marginWriter struct {
	mu      sync.Mutex
	w       io.Writer
	depth   func() int
	pending bool
}

func newMarginWriter(w io.Writer, depth func() int) *marginWriter {
	return &marginWriter{w: w, depth: depth, pending: true}
}

func (m *marginWriter) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	written := 0
	for len(p) > 0 {
		line := p
		eol := bytes.IndexByte(p, '\n')
		if eol >= 0 {
			line = p[:eol+1]
		}

		chunk := line
		if m.pending {
			if d := m.depth(); d > 0 {
				chunk = append(bytes.Repeat([]byte(Margin), d), line...)
			}
			m.pending = false
		}
		if _, err := m.w.Write(chunk); err != nil {
			return written, err
		}
		written += len(line)
		m.pending = eol >= 0
		p = p[len(line):]
	}
	return written, nil
}

// setPending forces the next byte written to be preceded by a margin.
func (m *marginWriter) setPending(pending bool) {
	m.mu.Lock()
	m.pending = pending
	m.mu.Unlock()
}

func (m *marginWriter) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	flush(m.w)
	return nil
}
