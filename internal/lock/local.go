package lock

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// KeyedMutex is an in-process mutex per key. Entries are created on demand
// and removed by Prune once idle.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyEntry
	now     func() time.Time
}

type keyEntry struct {
	sem      chan struct{}
	refs     int
	lastUsed time.Time
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{
		entries: make(map[string]*keyEntry),
		now:     time.Now,
	}
}

// Lock blocks until key is free or ctx is done. The returned release func is
// safe to call more than once.
func (m *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	entry, ok := m.entries[key]
	if !ok {
		entry = &keyEntry{sem: make(chan struct{}, 1)}
		m.entries[key] = entry
	}
	entry.refs++
	m.mu.Unlock()

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		m.release(entry)
		return nil, fmt.Errorf("%w: %s: %w", ErrTimeout, key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.sem
			m.release(entry)
		})
	}, nil
}

func (m *KeyedMutex) release(entry *keyEntry) {
	m.mu.Lock()
	entry.refs--
	entry.lastUsed = m.now()
	m.mu.Unlock()
}

// Prune drops entries nobody holds or waits on that have been idle for at
// least idle. It returns the number of entries removed.
func (m *KeyedMutex) Prune(idle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-idle)
	removed := 0
	for key, entry := range m.entries {
		if entry.refs == 0 && !entry.lastUsed.After(cutoff) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked keys.
func (m *KeyedMutex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
