package tasklog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// ErrAlreadyRedirected is returned by RedirectStdio when the standard streams
// are already redirected through this context.
var ErrAlreadyRedirected = errors.New("standard streams already redirected")

type redirection struct {
	origOut *os.File
	origErr *os.File
	wOut    *os.File
	wErr    *os.File
	wg      sync.WaitGroup
	once    sync.Once
}

// RedirectStdio replaces os.Stdout and os.Stderr with pipes whose contents are
// written to the context's decorated Out and Err handles, so that code
// printing directly to the standard streams is indented like everything else.
//
// The context must not use the redirected files as its own targets; build it
// before calling RedirectStdio. The returned function, also run by Restore,
// puts the original files back and waits until all piped bytes are rendered.
func (c *Context) RedirectStdio() (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.redirect != nil {
		return nil, ErrAlreadyRedirected
	}

	rOut, wOut, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	rErr, wErr, err := os.Pipe()
	if err != nil {
		rOut.Close()
		wOut.Close()
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}

	r := &redirection{
		origOut: os.Stdout,
		origErr: os.Stderr,
		wOut:    wOut,
		wErr:    wErr,
	}
	r.wg.Add(2)
	go r.pump(rOut, c.Out)
	go r.pump(rErr, c.Err)

	os.Stdout = wOut
	os.Stderr = wErr
	c.redirect = r

	return func() {
		c.mu.Lock()
		if c.redirect == r {
			c.redirect = nil
		}
		c.mu.Unlock()
		r.restore()
	}, nil
}

// pump copies piped bytes to whatever handle dst returns at the time of each
// read, so decorator changes apply to output already in flight.
func (r *redirection) pump(src *os.File, dst func() io.Writer) {
	defer r.wg.Done()
	defer src.Close()
	buf := make([]byte, 32*1024)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			_, _ = dst().Write(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

func (r *redirection) restore() {
	r.once.Do(func() {
		os.Stdout = r.origOut
		os.Stderr = r.origErr
		r.wOut.Close()
		r.wErr.Close()
		r.wg.Wait()
	})
}
