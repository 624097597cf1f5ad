//go:build !deadlock

package syncx

import "sync"

// Mutex and RWMutex are plain aliases for the stdlib types in normal
// builds. Build with -tags deadlock to swap in sasha-s/go-deadlock for
// lock-ordering diagnostics.
type Mutex = sync.Mutex
type RWMutex = sync.RWMutex
