// Package keylock serializes work per string key. Signing backends do
// not arbitrate between concurrent calls that share the same first
// subject alternative name — both would write the same identity-keyed
// certificate file — so hosts lock the identity around each Sign call.
package keylock

import "sync"

// KeyedMutex provides one mutex per key. The zero value is not usable;
// call New.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// New creates an empty KeyedMutex.
func New() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*lockEntry)}
}

// Lock blocks until the key is free and returns the corresponding
// unlock function. Distinct keys never block each other. Entries are
// evicted once no caller holds or awaits the key.
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &lockEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
