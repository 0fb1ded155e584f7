package driver

import (
	"maps"
	"slices"
	"sync"
)

// Teardown collects cleanup callbacks to run when the host shuts down, for
// example to kill background processes that outlive an interrupted build.
// Run is best-effort cleanup; nothing guarantees it is reached.
type Teardown struct {
	mu   sync.Mutex
	seq  int
	fns  map[int]func()
	done bool
}

func NewTeardown() *Teardown {
	return &Teardown{fns: map[int]func(){}}
}

// Register adds fn and returns a function removing it again. Registering
// after Run has started calls fn immediately.
func (t *Teardown) Register(fn func()) (unregister func()) {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		fn()
		return func() {}
	}
	t.seq++
	id := t.seq
	t.fns[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.fns, id)
		t.mu.Unlock()
	}
}

// Len returns the number of registered callbacks.
func (t *Teardown) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.fns)
}

// Run calls every registered callback once, most recent first.
func (t *Teardown) Run() {
	t.mu.Lock()
	t.done = true
	ids := slices.Sorted(maps.Keys(t.fns))
	fns := make([]func(), 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		fns = append(fns, t.fns[ids[i]])
	}
	clear(t.fns)
	t.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
