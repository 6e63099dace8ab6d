package selector

import "sync"

// Memo caches the output of a pure function for its most recent input.
// Inputs are compared with ==, so pointer fields compare by reference.
type Memo[In comparable, Out any] struct {
	name string
	fn   func(In) Out

	mu         sync.Mutex
	last       In
	out        Out
	valid      bool
	recomputes int
	onCompute  func(name string)
}

// NewMemo wraps fn. onCompute, when non-nil, is called on every recomputation.
func NewMemo[In comparable, Out any](name string, fn func(In) Out, onCompute func(name string)) *Memo[In, Out] {
	return &Memo[In, Out]{name: name, fn: fn, onCompute: onCompute}
}

// Get returns the cached output when in equals the last input, and
// recomputes otherwise.
func (m *Memo[In, Out]) Get(in In) Out {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.valid && m.last == in {
		return m.out
	}
	return m.compute(in)
}

// Recompute evaluates fn regardless of the cached input.
func (m *Memo[In, Out]) Recompute(in In) Out {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.compute(in)
}

// Invalidate drops the cached input and output.
func (m *Memo[In, Out]) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	var zeroIn In
	var zeroOut Out
	m.last, m.out, m.valid = zeroIn, zeroOut, false
}

// Recomputes returns how many times fn has run.
func (m *Memo[In, Out]) Recomputes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recomputes
}

func (m *Memo[In, Out]) compute(in In) Out {
	m.out = m.fn(in)
	m.last = in
	m.valid = true
	m.recomputes++
	if m.onCompute != nil {
		m.onCompute(m.name)
	}
	return m.out
}
