package cache

import (
	"sort"
	"sync"
)

// Notifier is a set of change callbacks. Callbacks run outside any lock, in
// registration order.
type Notifier struct {
	mu   sync.Mutex
	next int
	fns  map[int]func()
}

// Subscribe registers fn and returns a function that removes it.
func (n *Notifier) Subscribe(fn func()) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fns == nil {
		n.fns = make(map[int]func())
	}
	id := n.next
	n.next++
	n.fns[id] = fn
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.fns, id)
	}
}

// Notify runs every registered callback.
func (n *Notifier) Notify() {
	n.mu.Lock()
	ids := make([]int, 0, len(n.fns))
	for id := range n.fns {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, n.fns[id])
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
