package selector

import (
	"sync"

	"github.com/couchcryptid/weather-correlation-sync/internal/cache"
)

// Cell is an observable value. Subscribers run only when Set stores a value
// that differs (by ==) from the current one.
type Cell[T comparable] struct {
	mu   sync.RWMutex
	v    T
	subs cache.Notifier
}

// Get returns the current value.
func (c *Cell[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v
}

// Set stores v and reports whether it changed.
func (c *Cell[T]) Set(v T) bool {
	c.mu.Lock()
	if c.v == v {
		c.mu.Unlock()
		return false
	}
	c.v = v
	c.mu.Unlock()
	c.subs.Notify()
	return true
}

// Subscribe registers fn to receive each new value.
func (c *Cell[T]) Subscribe(fn func(T)) func() {
	return c.subs.Subscribe(func() { fn(c.Get()) })
}
