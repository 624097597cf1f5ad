package console

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ControlState is the console-control frame state sent to a web console's
// browser client while a piggyback extraction borrows its PTY (spec
// section 4.8).
type ControlState string

const (
	ControlReadOnly    ControlState = "read_only"
	ControlInteractive ControlState = "interactive"
)

// ControlFrame is the JSON frame shape sent over the console WebSocket.
type ControlFrame struct {
	State   ControlState `json:"state"`
	Message string       `json:"message,omitempty"`
}

// sessionMutex is a mutex whose Lock can time out, needed for the 5s-
// bounded acquisition spec section 4.8 calls for around piggyback
// extraction — sync.Mutex itself has no TryLock-with-timeout primitive
// before an explicit deadline, so this wraps one in a 1-buffered channel.
type sessionMutex struct {
	ch chan struct{}
}

func newSessionMutex() *sessionMutex {
	m := &sessionMutex{ch: make(chan struct{}, 1)}
	m.ch <- struct{}{}
	return m
}

func (m *sessionMutex) lock(timeout time.Duration) bool {
	select {
	case <-m.ch:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (m *sessionMutex) unlock() {
	m.ch <- struct{}{}
}

// Session is a live web console session: the PTY injector bound to the
// same fd the browser's WebSocket pump reads/writes, plus the flow-gate
// flags piggyback extraction toggles (spec section 4.8).
type Session struct {
	DomainName string
	Injector   *PtyInjector

	mu sessionMutex

	inputPaused   bool
	ptyReadPaused bool

	// SendControl, if set, delivers a ControlFrame to the browser; set by
	// internal/httpapi when it registers the session.
	SendControl func(ControlFrame) error
}

// registryCacheSize bounds the process-wide console-control-state cache
// (spec section 4.8); a lab with more concurrently-extracting domains than
// this would be unusual, and an evicted entry just means a reconnecting
// browser doesn't see a stale read_only banner, not a correctness issue.
const registryCacheSize = 256

// Registry tracks active web console sessions by domain name, arbitrates
// piggyback extraction against them, and remembers the last
// ControlFrame sent per domain so a reconnecting browser can replay it
// (spec section 4.8: "console control state... replayed to the new
// WebSocket so a page reload during extraction still shows the banner").
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session

	controlState *lru.Cache[string, ControlFrame]
}

func NewRegistry() *Registry {
	cache, _ := lru.New[string, ControlFrame](registryCacheSize)
	return &Registry{sessions: make(map[string]*Session), controlState: cache}
}

// Register records s as the active session for its domain, replacing any
// prior session for the same domain (a reconnect supersedes the old one).
// If a read_only control state was persisted for this domain (an
// extraction was in flight when the browser dropped), it's replayed
// immediately through s.SendControl once the caller has wired it.
func (r *Registry) Register(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.mu = *newSessionMutex()
	r.sessions[s.DomainName] = s
}

// ReplayControlState sends any persisted control state for domainName to
// s.SendControl, for a session that just registered. Separate from
// Register so the caller can wire SendControl (which needs the live
// WebSocket connection) before replay fires.
func (r *Registry) ReplayControlState(s *Session) {
	if frame, ok := r.controlState.Get(s.DomainName); ok && frame.State == ControlReadOnly && s.SendControl != nil {
		_ = s.SendControl(frame)
	}
}

func (r *Registry) setControlState(domainName string, frame ControlFrame) {
	if frame.State == ControlInteractive {
		r.controlState.Remove(domainName)
		return
	}
	r.controlState.Add(domainName, frame)
}

func (r *Registry) Unregister(domainName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, domainName)
}

func (r *Registry) lookup(domainName string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[domainName]
	return s, ok
}

// Piggyback borrows an active web console session's PTY to run fn, if one
// exists for domainName. Returns ok=false (not an error) when no session
// is registered, so the caller falls back to a dedicated virsh console.
//
// Sequence (spec section 4.8): acquire the session's mutex with a 5s
// timeout, clear both flow-gate flags so the browser-facing pump pauses,
// notify the browser the console is read-only, let in-flight reads drain,
// run fn against the shared injector (with Forward wired to mirror output
// to the browser), notify the browser the console is interactive again,
// restore the flow gates, release the mutex.
func (r *Registry) Piggyback(domainName string, fn func(*PtyInjector) error) (ok bool, err error) {
	sess, found := r.lookup(domainName)
	if !found {
		return false, nil
	}

	if !sess.mu.lock(5 * time.Second) {
		return false, fmt.Errorf("piggyback: could not acquire session mutex for %s within 5s", domainName)
	}
	defer sess.mu.unlock()

	prevInput, prevRead := sess.inputPaused, sess.ptyReadPaused
	sess.inputPaused = true
	sess.ptyReadPaused = true
	readOnly := ControlFrame{State: ControlReadOnly, Message: "Configuration in progress…"}
	r.setControlState(domainName, readOnly)
	if sess.SendControl != nil {
		_ = sess.SendControl(readOnly)
	}
	time.Sleep(100 * time.Millisecond) // let in-flight reads drain

	fnErr := fn(sess.Injector)

	interactive := ControlFrame{State: ControlInteractive}
	r.setControlState(domainName, interactive)
	if sess.SendControl != nil {
		_ = sess.SendControl(interactive)
	}
	sess.inputPaused = prevInput
	sess.ptyReadPaused = prevRead

	return true, fnErr
}
