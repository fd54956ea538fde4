package utils

import (
	"hash/fnv"
	"sync"
)

// DefaultKeyMutexShards is the stripe count used by NewKeyMutex.
const DefaultKeyMutexShards = 256

// KeyMutex provides per-key locking through a fixed set of striped
// mutexes. Unrelated keys almost never contend; the same key always maps
// to the same stripe, which gives atomic read-modify-write per key without
// a global lock.
type KeyMutex struct {
	shards []sync.Mutex
}

// NewKeyMutex creates a key mutex with the given stripe count. Counts
// below 1 fall back to DefaultKeyMutexShards.
func NewKeyMutex(shards int) *KeyMutex {
	if shards < 1 {
		shards = DefaultKeyMutexShards
	}

	return &KeyMutex{shards: make([]sync.Mutex, shards)}
}

// Lock acquires the stripe for the key.
func (m *KeyMutex) Lock(key string) {
	m.shards[m.index(key)].Lock()
}

// Unlock releases the stripe for the key.
func (m *KeyMutex) Unlock(key string) {
	m.shards[m.index(key)].Unlock()
}

func (m *KeyMutex) index(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))

	return int(h.Sum32() % uint32(len(m.shards)))
}
