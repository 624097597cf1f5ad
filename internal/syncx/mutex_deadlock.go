//go:build deadlock

package syncx

import "github.com/sasha-s/go-deadlock"

// Mutex and RWMutex are swapped in for the stdlib versions when built with
// -tags deadlock, so that lock-ordering bugs in the agent's many
// mutex-guarded maps surface in CI instead of as a field hang.
type Mutex = deadlock.Mutex
type RWMutex = deadlock.RWMutex
