// Package cache provides async fetch-plus-cache state containers shared by
// every dataset: a single value, values keyed by string, and a value bound to
// the context that produced it.
package cache

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/weather-correlation-sync/internal/observability"
)

// Status is the lifecycle state of a slice or of one key of a slice.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusLoading   Status = "loading"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// FetchFunc loads the data for args.
type FetchFunc[A, D any] func(ctx context.Context, args A) (D, error)

// Result is the settled outcome of one dispatch.
type Result struct {
	Key    string
	Status Status
	Err    error
}

// KeyState describes one addressed entry for diagnostics.
type KeyState struct {
	Key     string `json:"key"`
	Status  Status `json:"status"`
	Error   string `json:"error,omitempty"`
	HasData bool   `json:"has_data"`
}

// Slice is the contract shared by Value, Keyed and Context containers.
// Args address the entry: ignored by Value, mapped to a key by Keyed, and
// mapped to the current context by Context.
type Slice[A, D any] interface {
	Tracked
	Status(args A) Status
	Err(args A) string
	ShouldFetch(args A) bool
	Dispatch(ctx context.Context, args A) <-chan Result
	Fetch(ctx context.Context, args A) error
	Read(args A) (D, bool)
}

// Tracked is the type-independent part of a slice.
type Tracked interface {
	Name() string
	States() []KeyState
	Subscribe(fn func()) (unsubscribe func())
	Reset()
}

// Options configures a container. Zero values select the real clock, the
// process-wide fetch log, unregistered metrics and a discarding logger.
type Options struct {
	Policy  Policy
	Clock   clockwork.Clock
	Log     *FetchLog
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Log == nil {
		o.Log = processLog
	}
	if o.Metrics == nil {
		o.Metrics = observability.NewMetricsForTesting()
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

type slot[D any] struct {
	status  Status
	data    D
	hasData bool
	err     string
	pending int
}

// machine is the status machine behind every container. In exclusive mode
// only the entry of the current key is retained. A settlement is applied only
// to the slot its dispatch started on, so results that outlive a Reset or a
// context switch are discarded.
type machine[A, D any] struct {
	name      string
	fetch     FetchFunc[A, D]
	keyOf     func(A) string
	exclusive bool
	opts      Options

	mu      sync.Mutex
	slots   map[string]*slot[D]
	current string

	subs Notifier
}

func newMachine[A, D any](name string, fetch FetchFunc[A, D], keyOf func(A) string, exclusive bool, opts Options) *machine[A, D] {
	return &machine[A, D]{
		name:      name,
		fetch:     fetch,
		keyOf:     keyOf,
		exclusive: exclusive,
		opts:      opts.withDefaults(),
		slots:     make(map[string]*slot[D]),
	}
}

// Name returns the slice name, also its namespace in the fetch log.
func (m *machine[A, D]) Name() string {
	return m.name
}

// Status returns the status of the entry addressed by args.
func (m *machine[A, D]) Status(args A) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.lookup(m.keyOf(args)); s != nil {
		return s.status
	}
	return StatusIdle
}

// Err returns the failure message of the entry addressed by args.
func (m *machine[A, D]) Err(args A) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.lookup(m.keyOf(args)); s != nil {
		return s.err
	}
	return ""
}

// Read returns the cached data addressed by args.
func (m *machine[A, D]) Read(args A) (D, bool) {
	return m.readKey(m.keyOf(args))
}

func (m *machine[A, D]) readKey(key string) (D, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.lookup(key); s != nil && s.hasData {
		return s.data, true
	}
	var zero D
	return zero, false
}

// ShouldFetch reports whether dispatching args would do useful work under the
// slice's policy. It is false while the addressed entry is loading.
func (m *machine[A, D]) ShouldFetch(args A) bool {
	key := m.keyOf(args)

	m.mu.Lock()
	s := m.lookup(key)
	loading := s != nil && s.pending > 0
	hasData := s != nil && s.hasData
	m.mu.Unlock()

	if loading {
		m.opts.Metrics.SliceLookups.WithLabelValues(m.name, "hit").Inc()
		return false
	}

	at, recorded := m.opts.Log.Last(m.name, key)
	if m.opts.Policy.fresh(hasData, at, recorded, m.opts.Clock.Now()) {
		m.opts.Metrics.SliceLookups.WithLabelValues(m.name, "hit").Inc()
		return false
	}
	m.opts.Metrics.SliceLookups.WithLabelValues(m.name, "miss").Inc()
	return true
}

// Dispatch moves the addressed entry to loading before returning, then runs
// the fetch in the background. The channel receives this dispatch's own
// outcome exactly once.
func (m *machine[A, D]) Dispatch(ctx context.Context, args A) <-chan Result {
	key, owner := m.begin(args)
	done := make(chan Result, 1)
	go func() {
		start := m.opts.Clock.Now()
		data, err := m.fetch(ctx, args)
		m.opts.Metrics.SliceFetchDuration.WithLabelValues(m.name).Observe(m.opts.Clock.Since(start).Seconds())
		done <- m.settle(key, owner, data, err)
	}()
	return done
}

// Fetch dispatches and waits for the outcome. The error is also recorded in
// the slice; it is returned only for the caller's convenience.
func (m *machine[A, D]) Fetch(ctx context.Context, args A) error {
	return (<-m.Dispatch(ctx, args)).Err
}

// Reset returns the slice to idle, drops all data and clears the slice's
// fetch log entries. Fetches still in flight are ignored when they settle.
func (m *machine[A, D]) Reset() {
	m.mu.Lock()
	m.slots = make(map[string]*slot[D])
	m.current = ""
	m.opts.Log.Clear(m.name)
	m.mu.Unlock()

	m.opts.Logger.Debug("cache slice reset", "slice", m.name)
	m.subs.Notify()
}

// States lists every addressed entry sorted by key.
func (m *machine[A, D]) States() []KeyState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]KeyState, 0, len(m.slots))
	for k, s := range m.slots {
		out = append(out, KeyState{Key: k, Status: s.status, Error: s.err, HasData: s.hasData})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Subscribe registers fn to run after every state change.
func (m *machine[A, D]) Subscribe(fn func()) func() {
	return m.subs.Subscribe(fn)
}

func (m *machine[A, D]) lookup(key string) *slot[D] {
	if m.exclusive && key != m.current {
		return nil
	}
	return m.slots[key]
}

func (m *machine[A, D]) begin(args A) (string, *slot[D]) {
	key := m.keyOf(args)

	m.mu.Lock()
	if m.exclusive && key != m.current {
		m.slots = make(map[string]*slot[D])
		m.current = key
	}
	s, ok := m.slots[key]
	if !ok {
		s = &slot[D]{}
		m.slots[key] = s
	}
	s.pending++
	s.status = StatusLoading
	m.mu.Unlock()

	m.opts.Metrics.SliceInFlight.WithLabelValues(m.name).Inc()
	m.opts.Logger.Debug("cache slice fetch started", "slice", m.name, "key", key)
	m.subs.Notify()
	return key, s
}

func (m *machine[A, D]) settle(key string, owner *slot[D], data D, err error) Result {
	m.opts.Metrics.SliceInFlight.WithLabelValues(m.name).Dec()

	m.mu.Lock()
	s := m.lookup(key)
	if s == nil || s != owner {
		m.mu.Unlock()
		m.opts.Metrics.SliceFetches.WithLabelValues(m.name, "discarded").Inc()
		m.opts.Logger.Debug("cache slice result discarded", "slice", m.name, "key", key)
		status := StatusSucceeded
		if err != nil {
			status = StatusFailed
		}
		return Result{Key: key, Status: status, Err: err}
	}

	s.pending--
	outcome := StatusSucceeded
	if err != nil {
		outcome = StatusFailed
		s.err = err.Error()
	} else {
		s.data = data
		s.hasData = true
		s.err = ""
		m.opts.Log.Record(m.name, key, m.opts.Clock.Now())
	}
	if s.pending == 0 {
		s.status = outcome
	}
	m.mu.Unlock()

	if err != nil {
		m.opts.Metrics.SliceFetches.WithLabelValues(m.name, "error").Inc()
		m.opts.Logger.Warn("cache slice fetch failed", "slice", m.name, "key", key, "error", err)
	} else {
		m.opts.Metrics.SliceFetches.WithLabelValues(m.name, "success").Inc()
		m.opts.Logger.Debug("cache slice fetch succeeded", "slice", m.name, "key", key)
	}
	m.subs.Notify()
	return Result{Key: key, Status: outcome, Err: err}
}
