package utils

import (
	"sync"
)

// OptionalMutex guards a Memory's page pool and allocation registry. It only locks when
// UseMutex is set, which mirrors memory.CreateOptions.UseMutex; a Memory owned by a single
// goroutine leaves it unset.
type OptionalMutex struct {
	Mutex    sync.Mutex
	UseMutex bool
}

// Lock acquires the mutex if locking is enabled
func (m *OptionalMutex) Lock() {
	if !m.UseMutex {
		return
	}
	m.Mutex.Lock()
}

// Unlock releases the mutex if locking is enabled. UseMutex must not change between a Lock
// and its Unlock.
func (m *OptionalMutex) Unlock() {
	if !m.UseMutex {
		return
	}
	m.Mutex.Unlock()
}
