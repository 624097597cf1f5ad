package syncx

import (
	"fmt"
	"sync/atomic"
)

type waiterMutex struct {
	mu      Mutex
	waiters atomic.Int32
}

// IDMutex is a mutex keyed by an arbitrary comparable ID: Lock(id) blocks
// only callers contending for the same id, not unrelated ids. Backs the
// per-domain console lock (one VM's serial console at a time) without
// paying for a global lock across every domain on the host.
type IDMutex[T comparable] struct {
	globalMu Mutex
	mutexes  map[T]*waiterMutex
}

func NewIDMutex[T comparable]() *IDMutex[T] {
	return &IDMutex[T]{mutexes: make(map[T]*waiterMutex)}
}

func (m *IDMutex[T]) Lock(id T) {
	m.globalMu.Lock()

	if wm, ok := m.mutexes[id]; ok {
		wm.waiters.Add(1)
		m.globalMu.Unlock()

		wm.mu.Lock()
		wm.waiters.Add(-1)
		return
	}

	wm := &waiterMutex{}
	wm.mu.Lock()
	m.mutexes[id] = wm
	m.globalMu.Unlock()
}

// TryLock attempts to acquire the lock for id without blocking.
func (m *IDMutex[T]) TryLock(id T) bool {
	m.globalMu.Lock()
	defer m.globalMu.Unlock()

	wm, ok := m.mutexes[id]
	if !ok {
		wm = &waiterMutex{}
		wm.mu.Lock()
		m.mutexes[id] = wm
		return true
	}

	return false
}

func (m *IDMutex[T]) Unlock(id T) {
	m.globalMu.Lock()
	defer m.globalMu.Unlock()

	wm, ok := m.mutexes[id]
	if !ok {
		panic(fmt.Sprintf("syncx: unlock of unlocked id mutex: %v", id))
	}

	wm.mu.Unlock()
	if wm.waiters.Load() == 0 {
		delete(m.mutexes, id)
	}
}
