package cache

import "sort"

// Value caches one optional value.
type Value[A, D any] struct {
	*machine[A, D]
}

// NewValue creates a single-value container.
func NewValue[A, D any](name string, fetch FetchFunc[A, D], opts Options) *Value[A, D] {
	return &Value[A, D]{machine: newMachine(name, fetch, func(A) string { return "" }, false, opts)}
}

// Get returns the cached value.
func (v *Value[A, D]) Get() (D, bool) {
	return v.readKey("")
}

// Keyed caches one value per string key derived from the fetch args.
// Entries are isolated: work on one key never touches another.
type Keyed[A, D any] struct {
	*machine[A, D]
}

// NewKeyed creates a keyed container using keyOf to address entries.
func NewKeyed[A, D any](name string, fetch FetchFunc[A, D], keyOf func(A) string, opts Options) *Keyed[A, D] {
	return &Keyed[A, D]{machine: newMachine(name, fetch, keyOf, false, opts)}
}

// Key returns the key args address.
func (k *Keyed[A, D]) Key(args A) string {
	return k.keyOf(args)
}

// ReadKey returns the value cached under key.
func (k *Keyed[A, D]) ReadKey(key string) (D, bool) {
	return k.readKey(key)
}

// LoadingKeys lists the keys with a fetch in flight.
func (k *Keyed[A, D]) LoadingKeys() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	var keys []string
	for key, s := range k.slots {
		if s.pending > 0 {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Context caches one value together with the context that produced it.
// Dispatching for a new context drops the old value, and a response for a
// context that is no longer current is discarded.
type Context[A, D any] struct {
	*machine[A, D]
}

// NewContext creates a context container using contextOf to derive the
// context from the fetch args.
func NewContext[A, D any](name string, fetch FetchFunc[A, D], contextOf func(A) string, opts Options) *Context[A, D] {
	return &Context[A, D]{machine: newMachine(name, fetch, contextOf, true, opts)}
}

// Current returns the context of the held or loading value.
func (c *Context[A, D]) Current() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Get returns the held value regardless of args.
func (c *Context[A, D]) Get() (D, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s := c.slots[c.current]; s != nil && s.hasData {
		return s.data, true
	}
	var zero D
	return zero, false
}

var (
	_ Slice[int, int] = (*Value[int, int])(nil)
	_ Slice[int, int] = (*Keyed[int, int])(nil)
	_ Slice[int, int] = (*Context[int, int])(nil)
)
