package concurrent

import (
	"context"
	"sync"
)

type keyEntry struct {
	ch   chan struct{}
	refs int
}

// KeyMutex serializes work per key while different keys proceed in
// parallel. Entries are removed once no goroutine holds or waits for them.
type KeyMutex[K comparable] struct {
	mu      sync.Mutex
	entries map[K]*keyEntry
}

func NewKeyMutex[K comparable]() *KeyMutex[K] {
	return &KeyMutex[K]{entries: make(map[K]*keyEntry)}
}

// Lock blocks until key is held or ctx is done. The returned func
// releases the key and must be called exactly once.
func (m *KeyMutex[K]) Lock(ctx context.Context, key K) (func(), error) {
	m.mu.Lock()
	entry, ok := m.entries[key]
	if !ok {
		entry = &keyEntry{ch: make(chan struct{}, 1)}
		m.entries[key] = entry
	}
	entry.refs++
	m.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
	case <-ctx.Done():
		m.release(key, entry, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { m.release(key, entry, true) })
	}, nil
}

func (m *KeyMutex[K]) release(key K, entry *keyEntry, held bool) {
	if held {
		<-entry.ch
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry.refs--
	if entry.refs == 0 {
		delete(m.entries, key)
	}
}

// Len reports how many keys are currently held or awaited.
func (m *KeyMutex[K]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
