// Package console multiplexes the three competing consumers of a VM's
// single serial console (spec section 4.8): web PTY sessions, config
// extraction, and readiness probes. Exactly one of {web, extraction,
// readiness} may hold a domain's console at a time.
package console

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/archetype-labs/agent/internal/syncx"
)

// waiterMutex is an IDMutex[T] entry: a lock plus a waiter count so the
// owning map entry can be reclaimed once nobody is blocked on it.
type waiterMutex struct {
	mu      sync.Mutex
	waiters int
}

// idMutex is a per-key mutex table, the same shape as the teacher's
// util.IDMutex but specialized to domain names rather than generic,
// since this package has exactly one user of it.
type idMutex struct {
	globalMu syncx.Mutex
	mutexes  map[string]*waiterMutex
}

func (m *idMutex) Lock(id string) {
	m.globalMu.Lock()
	if wm, ok := m.mutexes[id]; ok {
		wm.waiters++
		m.globalMu.Unlock()
		wm.mu.Lock()
		m.globalMu.Lock()
		wm.waiters--
		m.globalMu.Unlock()
		return
	}
	wm := &waiterMutex{}
	wm.mu.Lock()
	m.mutexes[id] = wm
	m.globalMu.Unlock()
}

// TryLock attempts a non-blocking acquisition, returning false immediately
// if the id is already held.
func (m *idMutex) TryLock(id string) bool {
	m.globalMu.Lock()
	wm, ok := m.mutexes[id]
	if !ok {
		wm = &waiterMutex{}
		m.mutexes[id] = wm
	}
	m.globalMu.Unlock()

	if !wm.mu.TryLock() {
		return false
	}
	return true
}

func (m *idMutex) Unlock(id string) {
	m.globalMu.Lock()
	wm, ok := m.mutexes[id]
	if !ok {
		m.globalMu.Unlock()
		panic(fmt.Sprintf("console: unlock of unheld id %q", id))
	}
	if wm.waiters == 0 {
		delete(m.mutexes, id)
	}
	m.globalMu.Unlock()
	wm.mu.Unlock()
}

// Locker is the per-domain console lock: a blocking Lock with timeout and
// orphan-virsh cleanup, plus a non-blocking TryLock for readiness probes
// that should skip gracefully when the console is busy (spec section 4.8).
type Locker struct {
	locks idMutex

	extractionsMu sync.Mutex
	extractions   map[string]struct{}

	// killOrphans is overridable for tests; defaults to killOrphanedVirsh.
	killOrphans func(domainName string) int
}

func NewLocker() *Locker {
	l := &Locker{
		locks:       idMutex{mutexes: make(map[string]*waiterMutex)},
		extractions: make(map[string]struct{}),
	}
	l.killOrphans = killOrphanedVirsh
	return l
}

// IsExtractionActive reports whether a config extraction currently owns
// domainName's console, used by readiness probes to decide whether to
// even attempt TryLock.
func (l *Locker) IsExtractionActive(domainName string) bool {
	l.extractionsMu.Lock()
	defer l.extractionsMu.Unlock()
	_, ok := l.extractions[domainName]
	return ok
}

// ExtractionSession marks domainName as actively extracting for the
// duration of fn, for readiness-probe backoff.
func (l *Locker) ExtractionSession(domainName string, fn func() error) error {
	l.extractionsMu.Lock()
	l.extractions[domainName] = struct{}{}
	l.extractionsMu.Unlock()
	defer func() {
		l.extractionsMu.Lock()
		delete(l.extractions, domainName)
		l.extractionsMu.Unlock()
	}()
	return fn()
}

// Lock blocks up to timeout acquiring domainName's console lock, first
// killing orphaned virsh console processes if killOrphans is set. Returns
// an error (not a panic) on timeout, matching spec section 9's guidance
// to replace Python's TimeoutError with an explicit Err return.
func (l *Locker) Lock(domainName string, timeout time.Duration, killOrphans bool) (func(), error) {
	if killOrphans && l.killOrphans != nil {
		l.killOrphans(domainName)
	}

	done := make(chan struct{})
	var gaveUp int32
	go func() {
		l.locks.Lock(domainName)
		close(done)
		if atomic.LoadInt32(&gaveUp) == 1 {
			// The caller already timed out and stopped waiting; don't
			// leave the domain locked forever with no release function in
			// anyone's hands.
			l.locks.Unlock(domainName)
		}
	}()

	select {
	case <-done:
		return func() { l.locks.Unlock(domainName) }, nil
	case <-time.After(timeout):
		atomic.StoreInt32(&gaveUp, 1)
		return nil, fmt.Errorf("could not acquire console lock for %s within %s (another session is active)", domainName, timeout)
	}
}

// TryLock is a non-blocking acquisition for readiness probes: if an
// extraction session is active, or the lock is already held, it returns
// acquired=false rather than blocking.
func (l *Locker) TryLock(domainName string) (release func(), acquired bool) {
	if l.IsExtractionActive(domainName) {
		return nil, false
	}
	if !l.locks.TryLock(domainName) {
		return nil, false
	}
	return func() { l.locks.Unlock(domainName) }, true
}

// killOrphanedVirsh sends SIGTERM (then SIGKILL after a short grace
// period) to any "virsh ... console ... {domainName}" process that isn't
// this one, recovering from a prior session that died holding the
// console open (spec section 4.8). Returns the number of processes
// signaled.
func killOrphanedVirsh(domainName string) int {
	out, err := exec.Command("pgrep", "-f", "virsh.*console.*"+domainName).Output()
	if err != nil || len(strings.TrimSpace(string(out))) == 0 {
		return 0
	}

	myPID := os.Getpid()
	var killed []int
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		pid, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil || pid == myPID {
			continue
		}
		if proc, err := os.FindProcess(pid); err == nil {
			if proc.Signal(syscall.SIGTERM) == nil {
				killed = append(killed, pid)
			}
		}
	}
	if len(killed) == 0 {
		return 0
	}

	time.Sleep(200 * time.Millisecond)
	for _, pid := range killed {
		if proc, err := os.FindProcess(pid); err == nil {
			proc.Signal(syscall.SIGKILL)
		}
	}
	return len(killed)
}
