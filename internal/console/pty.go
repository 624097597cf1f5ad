package console

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"golang.org/x/sys/unix"
)

// ExpectError classifies why Expect didn't find a match, replacing
// pexpect's TIMEOUT/EOF exceptions with explicit Err values per spec
// section 9.
type ExpectError struct {
	Kind ExpectErrorKind
	Buf  string // bytes read before the error, for diagnostics
}

type ExpectErrorKind int

const (
	ExpectTimeout ExpectErrorKind = iota
	ExpectEOF
)

func (e *ExpectError) Error() string {
	switch e.Kind {
	case ExpectEOF:
		return "console connection closed unexpectedly"
	default:
		return "timeout waiting for console response"
	}
}

// PtyInjector drives send/expect automation over a raw console fd — a
// freshly opened virsh console pty, or (for piggyback extraction) an
// already-open web console session's pty — using a select-based read
// loop rather than a buffering library, per spec section 9's explicit
// direction to avoid pexpect-style hidden state.
type PtyInjector struct {
	f *os.File

	// Forward, if set, receives every byte read during Expect/Drain —
	// piggyback extraction uses this to mirror automation output to the
	// browser in real time (spec section 4.8).
	Forward func([]byte)

	buf []byte // unconsumed bytes from the last Expect/Drain read
}

func NewPtyInjector(f *os.File) *PtyInjector {
	return &PtyInjector{f: f}
}

// Send writes raw bytes with no trailing newline.
func (p *PtyInjector) Send(s string) error {
	_, err := p.f.Write([]byte(s))
	return err
}

// SendLine writes s followed by a carriage return, matching what a real
// terminal sends on Enter (virsh console is a raw tty, not a line editor).
func (p *PtyInjector) SendLine(s string) error {
	return p.Send(s + "\r")
}

// ReadChunk reads whatever is immediately available, bounded by timeout —
// the raw-byte counterpart to Expect, with no pattern matching. Used by the
// web console's read pump to stream output straight to the browser. A nil
// chunk with a nil error means the timeout elapsed with nothing to read; a
// non-nil error means the fd is gone and the pump should stop.
func (p *PtyInjector) ReadChunk(timeout time.Duration) ([]byte, error) {
	return p.readWithTimeout(timeout)
}

// Drain reads and discards whatever is immediately available, waiting up
// to quiet for the fd to go idle. Used to flush banner noise before
// priming for a prompt.
func (p *PtyInjector) Drain(quiet time.Duration) {
	for {
		chunk, err := p.readWithTimeout(quiet)
		if err != nil || len(chunk) == 0 {
			return
		}
	}
}

// Expect blocks, reading from the fd, until one of patterns matches the
// accumulated buffer or timeout elapses. Returns the index of the
// matching pattern and everything read before the match ("before" text,
// pexpect's terminology).
func (p *PtyInjector) Expect(patterns []*regexp.Regexp, timeout time.Duration) (idx int, before string, err error) {
	deadline := time.Now().Add(timeout)
	for {
		for i, re := range patterns {
			if loc := re.FindIndex(p.buf); loc != nil {
				before = string(p.buf[:loc[0]])
				p.buf = p.buf[loc[1]:]
				return i, before, nil
			}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return -1, string(p.buf), &ExpectError{Kind: ExpectTimeout, Buf: string(p.buf)}
		}

		chunk, readErr := p.readWithTimeout(minDuration(remaining, 500*time.Millisecond))
		if len(chunk) > 0 {
			p.buf = append(p.buf, chunk...)
			if p.Forward != nil {
				p.Forward(chunk)
			}
			continue
		}
		if readErr != nil && errors.Is(readErr, errEOF) {
			return -1, string(p.buf), &ExpectError{Kind: ExpectEOF, Buf: string(p.buf)}
		}
		// timeout on this sub-read; loop and re-check the deadline
	}
}

var errEOF = errors.New("console: eof")

// readWithTimeout uses select(2) on the raw fd so a read that would
// otherwise block forever can be bounded, without needing a second
// goroutine per read (spec section 9: "return result values from the
// injector's expect" rather than relying on a buffering library's
// internal timeout machinery).
func (p *PtyInjector) readWithTimeout(timeout time.Duration) ([]byte, error) {
	fd := int(p.f.Fd())

	var rfds unix.FdSet
	fdSet(&rfds, fd)

	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	n, err := unix.Select(fd+1, &rfds, nil, nil, &tv)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil, nil
		}
		return nil, fmt.Errorf("select on console fd: %w", err)
	}
	if n == 0 {
		return nil, nil // timed out, nothing ready
	}

	buf := make([]byte, 4096)
	m, err := p.f.Read(buf)
	if m > 0 {
		return buf[:m], nil
	}
	if err != nil {
		return nil, errEOF
	}
	return nil, nil
}

// fdSet sets fd's bit in an otherwise-zeroed unix.FdSet. unix.FdSet mirrors
// the raw C fd_set bit layout (an array of machine words), so there's no
// portable Zero()/Set() helper on it — golang.org/x/sys/unix leaves that
// bit-twiddling to callers.
func fdSet(set *unix.FdSet, fd int) {
	wordBits := 64
	set.Bits[fd/wordBits] |= 1 << uint(fd%wordBits)
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
