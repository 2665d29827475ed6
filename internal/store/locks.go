package store

import "sync"

// KeyedMutex hands out one mutex per entity ID, created lazily and never
// destroyed (bounded by entity count). It serializes the read-decide-write
// sequences that must be atomic per entity — the store's own lock only covers
// the map, not the decision made on what was read.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewKeyedMutex returns an empty lock registry.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*sync.Mutex)}
}

// get returns the mutex for id, installing one if absent. The registry lock
// prevents two callers from racing to install two different mutexes for the
// same id.
func (k *KeyedMutex) get(id string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	m, ok := k.locks[id]
	if !ok {
		m = &sync.Mutex{}
		k.locks[id] = m
	}
	return m
}

// WithLock runs fn with exclusive ownership of id's mutation rights. The
// unlock is deferred, so fn's error paths never leave the entity locked.
// Holding one entity's lock never blocks work on a different entity.
func (k *KeyedMutex) WithLock(id string, fn func() error) error {
	m := k.get(id)
	m.Lock()
	defer m.Unlock()
	return fn()
}
