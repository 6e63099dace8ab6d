package cache

import (
	"sync"
	"time"
)

// FetchLog records when each slice key last fetched successfully. Entries
// are namespaced by slice name and key, written only by a slice's success
// path and cleared by that slice's Reset.
type FetchLog struct {
	mu      sync.RWMutex
	entries map[logKey]time.Time
}

type logKey struct {
	slice string
	key   string
}

// NewFetchLog returns an empty log.
func NewFetchLog() *FetchLog {
	return &FetchLog{entries: make(map[logKey]time.Time)}
}

// processLog is the process-wide log, empty at process start.
var processLog = NewFetchLog()

// ProcessFetchLog returns the process-wide log used when Options.Log is nil.
func ProcessFetchLog() *FetchLog {
	return processLog
}

// Record stores the fetch time of slice/key.
func (l *FetchLog) Record(slice, key string, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[logKey{slice, key}] = at
}

// Last returns the recorded fetch time of slice/key.
func (l *FetchLog) Last(slice, key string) (time.Time, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	at, ok := l.entries[logKey{slice, key}]
	return at, ok
}

// Clear drops every entry of slice.
func (l *FetchLog) Clear(slice string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k := range l.entries {
		if k.slice == slice {
			delete(l.entries, k)
		}
	}
}

// Len returns the number of recorded entries.
func (l *FetchLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
